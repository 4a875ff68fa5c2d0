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

// Package objectcache is a thread-safe, in-process keyed object cache with
// configurable tracking, expiration, usage counting, and policy-driven
// eviction. Eviction cycles are scheduled and executed through the sibling
// operation package.
package objectcache

import (
	"reflect"
	"time"
)

// Expirable binds a value to an expiration instant. Equal delegates to the
// wrapped value and ignores the instant. No hashing method is provided, and
// an Expirable used directly as a map key compares its instant as well as
// its value.
type Expirable[V any] struct {
	expiration time.Time
	value      V
}

// NewExpirable binds value to expiration. The instant is immutable after
// construction; callers that need to change it build a new Expirable.
func NewExpirable[V any](value V, expiration time.Time) Expirable[V] {
	return Expirable[V]{expiration: expiration, value: value}
}

// Expiration returns the bound instant.
func (e Expirable[V]) Expiration() time.Time { return e.expiration }

// Value returns the wrapped value.
func (e Expirable[V]) Value() V { return e.value }

// IsExpired reports whether now is at or past the expiration instant. Once
// true for a given now, it remains true for every later now.
func (e Expirable[V]) IsExpired(now time.Time) bool {
	return !now.Before(e.expiration)
}

// Equal delegates to the wrapped value, ignoring the expiration instant.
func (e Expirable[V]) Equal(other Expirable[V]) bool {
	return reflect.DeepEqual(e.value, other.value)
}
