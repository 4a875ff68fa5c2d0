/*
 * Copyright 2024 The objectcache Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package objectcache

// Mergeable is the capability a value may advertise to support partial
// updates instead of full replacement. Two header spellings of this
// capability existed upstream ("Mergable" and "Mergeable"); per the
// standardization note this package implements only the richer, later
// spelling and does not reproduce the other.
//
// Merge semantics for a single key: present=false means the key should be
// removed from self (or self cleared, if self has no notion of per-key
// removal); present=true with value=nil stores an explicit null; any other
// value overwrites.
type Mergeable interface {
	// MergeableKeys enumerates the keys an update would affect.
	MergeableKeys() []string
	// ValueForKey returns the value this object holds for key, and whether
	// the key is present at all.
	ValueForKey(key string) (value any, present bool)
	// Merge integrates a single keyed update into self.
	Merge(key string, value any, present bool) error
}

// MergeableMap is a map[string]any that implements Mergeable directly,
// useful both for tests and as a ready-made mergeable payload type.
type MergeableMap map[string]any

func (m MergeableMap) MergeableKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func (m MergeableMap) ValueForKey(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}

func (m MergeableMap) Merge(key string, value any, present bool) error {
	if !present {
		delete(m, key)
		return nil
	}
	m[key] = value
	return nil
}

// mergeValues integrates incoming's advertised keys into existing in place,
// per the Mergeable contract, and returns the first error a Merge call
// reports (later keys are then not merged). If either
// side does not advertise Mergeable, the caller should fall back to full
// replacement; mergeValues itself assumes both sides were already checked.
func mergeValues(existing, incoming Mergeable) error {
	for _, key := range incoming.MergeableKeys() {
		value, present := incoming.ValueForKey(key)
		if err := existing.Merge(key, value, present); err != nil {
			return err
		}
	}
	return nil
}
