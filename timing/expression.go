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

// Package timing supplies the expression-evaluator capability the cache
// uses to compute expiration instants. Per the design note on dynamic
// expressions, this is a minimal evaluator interface plus a handful of
// built-ins (constant, key-lookup, now-plus-offset) rather than a general
// expression language; a host embedding the cache may supply a richer
// Expression implementation of its own.
package timing

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Snapshot keys used when invoking timing expressions against a cache
// entry, per the external interfaces list.
const (
	EntryTimestamp  = "EntryTimestamp"
	EntryUUID       = "EntryUUID"
	EntryEntityName = "EntryEntityName"
	EntrySnapshot   = "EntrySnapshot"
)

// Snapshot is the mapping a timing expression is evaluated against.
type Snapshot map[string]any

// Expression is the capability supplied at cache construction. It is opaque
// to the cache: the cache only knows it must yield either a bucket
// identifier (for the map-key expression) or an instant (for the values of
// the timing map).
type Expression interface {
	Evaluate(snapshot Snapshot) (any, error)
}

// Const always evaluates to the same value, regardless of snapshot.
type Const struct{ Value any }

func (c Const) Evaluate(Snapshot) (any, error) { return c.Value, nil }

// KeyLookup evaluates to whatever the snapshot holds under Key.
type KeyLookup struct{ Key string }

func (k KeyLookup) Evaluate(snapshot Snapshot) (any, error) {
	v, ok := snapshot[k.Key]
	if !ok {
		return nil, fmt.Errorf("timing: snapshot has no key %q", k.Key)
	}
	return v, nil
}

// NowPlusOffset evaluates to the current instant plus a fixed offset. Now
// defaults to time.Now but may be overridden for deterministic tests.
type NowPlusOffset struct {
	Offset time.Duration
	Now    func() time.Time
}

func (n NowPlusOffset) Evaluate(Snapshot) (any, error) {
	now := n.Now
	if now == nil {
		now = time.Now
	}
	return now().Add(n.Offset), nil
}

// EvaluateBucket runs expr and requires the result to be a string bucket
// identifier.
func EvaluateBucket(expr Expression, snapshot Snapshot) (bucket string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("timing: bucket expression panicked: %v", r)
		}
	}()
	v, err := expr.Evaluate(snapshot)
	if err != nil {
		return "", errors.Wrap(err, "timing: bucket expression failed")
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.Errorf("timing: bucket expression yielded %T, not string", v)
	}
	return s, nil
}

// EvaluateInstant runs expr and requires the result to be a time.Time.
func EvaluateInstant(expr Expression, snapshot Snapshot) (instant time.Time, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("timing: instant expression panicked: %v", r)
		}
	}()
	v, err := expr.Evaluate(snapshot)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "timing: instant expression failed")
	}
	t, ok := v.(time.Time)
	if !ok {
		return time.Time{}, errors.Errorf("timing: instant expression yielded %T, not time.Time", v)
	}
	return t, nil
}
