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

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	farm "github.com/dgryski/go-farm"
)

// keyIdentity returns a stable (primary, conflict) hash pair for an
// arbitrary comparable key: an xxhash primary plus a farm fingerprint,
// the two-hash pairing described in DESIGN.md. Both halves are computed
// from the key's %v string, so two distinct keys that stringify the same
// way get the same pair.
func keyIdentity(key any) (primary, conflict uint64) {
	b := []byte(fmt.Sprintf("%v", key))
	primary = xxhash.Sum64(b)
	conflict = farm.Fingerprint64(b)
	return primary, conflict
}

// entryUUID synthesizes the EntryUUID timing-snapshot field from a key's
// identity hash pair.
func entryUUID(key any) string {
	primary, conflict := keyIdentity(key)
	return fmt.Sprintf("%016x-%016x", primary, conflict)
}
