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
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/objectcache/vdscache/operation"
	"github.com/objectcache/vdscache/timing"
)

// Cache is a thread-safe keyed object store mixing tracked
// (lifecycle-managed) and untracked (persistent) entries. A single
// reentrant... in this implementation, a single lock guards storage plus
// the expiration, usage, and insertion-order indices together; delegate
// callbacks are always invoked with the lock released (the "structured
// re-read snapshot" alternative the design notes call out), so a delegate
// calling back into Get/Set from within an eviction callback cannot
// deadlock.
type Cache[K comparable, V any] struct {
	cfg *Config

	mu          sync.Mutex
	storage     *storage[K, V]
	expIndex    *expirationIndex[K]
	insertOrder *insertionOrderIndex[K]
	usage       *usageIndex[K]

	delegate   Delegate[K, V]
	entityName string
	now        func() time.Time

	stats Stats

	evictionQueue *operation.Queue
	ticker        *time.Ticker
	stopTicker    chan struct{}
	tickerOnce    sync.Once

	evictMu   sync.Mutex
	evictErrs []error

	poisoned atomic.Bool
}

// Option configures a Cache at construction.
type Option[K comparable, V any] func(*Cache[K, V])

// WithDelegate installs the eviction delegate.
func WithDelegate[K comparable, V any](d Delegate[K, V]) Option[K, V] {
	return func(c *Cache[K, V]) { c.delegate = d }
}

// WithEntityName sets the EntryEntityName value offered to timing
// expressions.
func WithEntityName[K comparable, V any](name string) Option[K, V] {
	return func(c *Cache[K, V]) { c.entityName = name }
}

// WithNowFunc overrides the wall-clock source, for deterministic tests.
func WithNowFunc[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(c *Cache[K, V]) { c.now = now }
}

// WithEvictionQueue overrides the internal eviction queue, for tests that
// want to control the executor or observe queue delegate callbacks.
func WithEvictionQueue[K comparable, V any](q *operation.Queue) Option[K, V] {
	return func(c *Cache[K, V]) { c.evictionQueue = q }
}

// New builds a cache around a sealed configuration. It starts the eviction
// timer whenever ExpiresObjects, a non-zero PreferredMaxObjectCount, or
// TracksObjectUsage is set, per spec's constructor contract.
func New[K comparable, V any](cfg *Config, opts ...Option[K, V]) (*Cache[K, V], error) {
	if cfg == nil {
		return nil, &InvalidConfigError{Reason: "config must not be nil"}
	}
	c := &Cache[K, V]{
		cfg:         cfg.clone(),
		storage:     newStorage[K, V](),
		expIndex:    newExpirationIndex[K](),
		insertOrder: newInsertionOrderIndex[K](),
		usage:       newUsageIndex[K](),
		now:         time.Now,
		stopTicker:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.evictionQueue == nil {
		c.evictionQueue = operation.NewQueue("eviction")
	}

	if c.cfg.expiresObjects || c.cfg.preferredMaxObjectCount != 0 || c.cfg.tracksObjectUsage {
		c.startTimer()
	}
	return c, nil
}

func (c *Cache[K, V]) startTimer() {
	interval := c.cfg.evictionInterval
	if interval <= 0 {
		interval = defaultEvictionInterval
	}
	c.ticker = time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-c.ticker.C:
				_ = c.ProcessEvictions()
			case <-c.stopTicker:
				return
			}
		}
	}()
}

// Close stops the eviction timer. Further process_evictions calls (manual
// or via NotifyLowMemory) still work; only the periodic tick stops.
func (c *Cache[K, V]) Close() {
	c.tickerOnce.Do(func() {
		if c.ticker != nil {
			c.ticker.Stop()
		}
		close(c.stopTicker)
	})
}

// NotifyLowMemory is the host's hook for a platform low-memory signal; if
// EvictsOnLowMemory is set, it submits process_evictions immediately,
// independent of the timer. See lowmemory_linux.go for the automatic
// unix.Sysinfo-backed monitor.
func (c *Cache[K, V]) NotifyLowMemory() error {
	if !c.cfg.evictsOnLowMemory {
		return nil
	}
	return c.ProcessEvictions()
}

func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Ptr, reflect.Slice:
		return rv.IsNil()
	default:
		return false
	}
}

func (c *Cache[K, V]) poisonedErr(site string) error {
	return newErr(site, CodeInvalidState, "cache is in a poisoned state and rejects writes", nil)
}

// poison flips the cache into the fatal, write-rejecting state described in
// spec section 7 ("Fatal conditions"). Only called when an index is found
// to have drifted from storage in a way that should never happen.
func (c *Cache[K, V]) poison() {
	c.poisoned.Store(true)
}

// Set inserts or updates key. If key already exists, the value is updated
// in place (merged or replaced per ReplacesObjectsOnUpdate) and the
// expiration/insertion-order indices are refreshed; usage is never reset
// by an update. If key is new and tracked is true, it is inserted into
// every enabled index with usage initialized to 1. If key is new and
// tracked is false, it is stored only in the primary map.
func (c *Cache[K, V]) Set(key K, value V, tracked bool) error {
	if c.poisoned.Load() {
		return c.poisonedErr("Cache.Set")
	}
	if isNilValue(any(key)) {
		return newErr("Cache.Set", CodeNilKey, "key must not be nil", nil)
	}
	if isNilValue(any(value)) {
		return newErr("Cache.Set", CodeNilArgument, "value must not be nil", nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, exists := c.storage.get(key); exists {
		newVal, err := c.resolveUpdate(existing.value, value)
		if err != nil {
			return newErr("Cache.Set", CodeUnexpectedArgumentType, "merge failed", err)
		}

		var instant time.Time
		haveInstant := false
		if existing.tracked && c.cfg.expiresObjects {
			var ierr error
			instant, ierr = c.computeExpiration(key, newVal)
			if ierr != nil {
				return ierr
			}
			haveInstant = true
		}

		existing.value = newVal
		if existing.tracked {
			c.insertOrder.Touch(key)
			if haveInstant {
				c.expIndex.Set(key, instant)
			}
		}
		c.stats.sets.Add(1)
		return nil
	}

	var instant time.Time
	haveInstant := false
	if tracked && c.cfg.expiresObjects {
		var ierr error
		instant, ierr = c.computeExpiration(key, value)
		if ierr != nil {
			return ierr
		}
		haveInstant = true
	}

	c.storage.set(key, &slot[V]{value: value, tracked: tracked})
	if tracked {
		c.insertOrder.Add(key)
		if c.cfg.tracksObjectUsage {
			c.usage.Init(key)
		}
		if haveInstant {
			c.expIndex.Set(key, instant)
		}
	}
	c.stats.sets.Add(1)
	return nil
}

// resolveUpdate applies replace-or-merge semantics per
// ReplacesObjectsOnUpdate and the Mergeable contract (spec C2/C3).
func (c *Cache[K, V]) resolveUpdate(existing, incoming V) (V, error) {
	if c.cfg.replacesObjectsOnUpdate {
		return incoming, nil
	}
	existingMergeable, ok1 := any(existing).(Mergeable)
	incomingMergeable, ok2 := any(incoming).(Mergeable)
	if !ok1 || !ok2 {
		return incoming, nil
	}
	if err := mergeValues(existingMergeable, incomingMergeable); err != nil {
		var zero V
		return zero, err
	}
	return existing, nil
}

// computeExpiration evaluates the configured timing-key and timing-map
// expressions against key/value, per spec's "Expiration computation".
func (c *Cache[K, V]) computeExpiration(key K, value V) (time.Time, error) {
	snapshot := timing.Snapshot{
		timing.EntryTimestamp:  c.now(),
		timing.EntryUUID:       entryUUID(key),
		timing.EntryEntityName: c.entityName,
		timing.EntrySnapshot:   value,
	}
	bucket, err := timing.EvaluateBucket(c.cfg.expirationTimingMapKey, snapshot)
	if err != nil {
		return time.Time{}, newErr("Cache.Set", CodeExpirationEvaluationFailed,
			"timing-key expression failed", errors.WithStack(err))
	}
	expr, ok := c.cfg.expirationTimingMap[bucket]
	if !ok {
		return time.Time{}, newErr("Cache.Set", CodeExpirationEvaluationFailed,
			"no timing-map entry for bucket "+bucket, nil)
	}
	instant, err := timing.EvaluateInstant(expr, snapshot)
	if err != nil {
		return time.Time{}, newErr("Cache.Set", CodeExpirationEvaluationFailed,
			"timing-map expression failed", errors.WithStack(err))
	}
	return instant, nil
}

// Get returns the stored value, if any. It does not touch usage.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.gets.Add(1)
	sl, ok := c.storage.get(key)
	if !ok {
		c.stats.misses.Add(1)
		var zero V
		return zero, false
	}
	c.stats.hits.Add(1)
	return sl.value, true
}

// Remove forcibly deletes key from storage and every index.
func (c *Cache[K, V]) Remove(key K) error {
	if c.poisoned.Load() {
		return c.poisonedErr("Cache.Remove")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.storage.has(key) {
		return newErr("Cache.Remove", CodeEntryNotFound, "key not present", nil)
	}
	c.removeLocked(key)
	c.stats.removals.Add(1)
	return nil
}

// removeLocked deletes key from storage and every index. Caller must hold
// mu.
func (c *Cache[K, V]) removeLocked(key K) {
	c.storage.delete(key)
	c.insertOrder.Remove(key)
	c.usage.Remove(key)
	c.expIndex.Remove(key)
}

// Clear drops every entry and resets every index.
func (c *Cache[K, V]) Clear() error {
	if c.poisoned.Load() {
		return c.poisonedErr("Cache.Clear")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.storage.clear()
	c.insertOrder = newInsertionOrderIndex[K]()
	c.usage = newUsageIndex[K]()
	c.expIndex = newExpirationIndex[K]()
	return nil
}

// IncrementUsage bumps key's usage count. Fails with CodeUnableToRemove's
// sibling NotTracked condition (CodeEntryNotFound) if key is absent or
// usage tracking is disabled.
func (c *Cache[K, V]) IncrementUsage(key K) error {
	if c.poisoned.Load() {
		return c.poisonedErr("Cache.IncrementUsage")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cfg.tracksObjectUsage {
		return newErr("Cache.IncrementUsage", CodeEntryNotFound, "usage tracking is disabled", nil)
	}
	sl, ok := c.storage.get(key)
	if !ok || !sl.tracked {
		return newErr("Cache.IncrementUsage", CodeEntryNotFound, "key is not a tracked entry", nil)
	}
	c.usage.Increment(key)
	return nil
}

// DecrementUsage lowers key's usage count, floored at zero. Reaching zero
// makes the key eligible for the usage cycle, but does not remove it
// synchronously.
func (c *Cache[K, V]) DecrementUsage(key K) error {
	if c.poisoned.Load() {
		return c.poisonedErr("Cache.DecrementUsage")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cfg.tracksObjectUsage {
		return newErr("Cache.DecrementUsage", CodeEntryNotFound, "usage tracking is disabled", nil)
	}
	sl, ok := c.storage.get(key)
	if !ok || !sl.tracked {
		return newErr("Cache.DecrementUsage", CodeEntryNotFound, "key is not a tracked entry", nil)
	}
	c.usage.Decrement(key)
	return nil
}

// Evict forcibly removes key subject to the in-use policy, emitting the
// full delegate envelope for a single-entry batch in cycle Unknown.
func (c *Cache[K, V]) Evict(key K) error {
	if c.poisoned.Load() {
		return c.poisonedErr("Cache.Evict")
	}
	c.mu.Lock()
	sl, exists := c.storage.get(key)
	if !exists {
		c.mu.Unlock()
		return newErr("Cache.Evict", CodeEntryNotFound, "key not present", nil)
	}
	// Insertion seeds usage at 1 (the cache's own implicit hold); only a count
	// above that baseline reflects an outstanding external IncrementUsage.
	if sl.tracked && c.cfg.tracksObjectUsage && !c.cfg.evictsObjectsInUse && c.usage.Get(key) > 1 {
		c.mu.Unlock()
		return newErr("Cache.Evict", CodeObjectInUse, "key is in use", nil)
	}
	value := sl.value
	c.mu.Unlock()

	if c.delegate != nil {
		c.delegate.WillBeginEvictionCycle(CycleUnknown)
		c.delegate.WillEvictObjects([]K{key}, []V{value}, CycleUnknown)
	}

	c.mu.Lock()
	c.removeLocked(key)
	c.mu.Unlock()

	if c.delegate != nil {
		c.delegate.DidEvictObjects([]K{key}, []V{value}, CycleUnknown)
		c.delegate.DidCompleteEvictionCycle(CycleUnknown)
	}
	c.stats.recordEviction(CycleUnknown, 1)
	return nil
}

// ProcessEvictions submits the Expiration -> Size(policy) -> Usage cycle
// chain to the internal eviction queue and returns once accepted, not once
// completed. Errors surfaced by an individual cycle (e.g. ObjectInUse from
// a size cycle that could not reach its target) do not fail this call;
// they accumulate and are readable from EvictionErrors once the chain
// finishes.
func (c *Cache[K, V]) ProcessEvictions() error {
	if c.poisoned.Load() {
		return c.poisonedErr("Cache.ProcessEvictions")
	}
	c.evictMu.Lock()
	c.evictErrs = nil
	c.evictMu.Unlock()

	chain := c.buildEvictionChain()
	if err := c.evictionQueue.AddAll(chain); err != nil {
		return newErr("Cache.ProcessEvictions", CodeOperationEnqueueFailed, "failed to enqueue eviction chain", err)
	}
	return nil
}

// EvictionErrors returns the errors accumulated by the most recently
// submitted eviction chain's cycles. Cleared at the start of each
// ProcessEvictions call; safe to call at any point, including before the
// chain has finished (in which case it reflects whatever has completed so
// far).
func (c *Cache[K, V]) EvictionErrors() []error {
	c.evictMu.Lock()
	defer c.evictMu.Unlock()
	out := make([]error, len(c.evictErrs))
	copy(out, c.evictErrs)
	return out
}

func (c *Cache[K, V]) recordEvictionError(err error) {
	if err == nil {
		return
	}
	c.evictMu.Lock()
	c.evictErrs = append(c.evictErrs, err)
	c.evictMu.Unlock()
}

// CancelEvictions cooperatively cancels every in-flight eviction operation.
func (c *Cache[K, V]) CancelEvictions() { c.evictionQueue.CancelAll() }

// WaitForEvictions blocks until every submitted eviction operation has
// finished; primarily useful in tests.
func (c *Cache[K, V]) WaitForEvictions() { c.evictionQueue.Wait() }

// Stats returns the cache's running counters.
func (c *Cache[K, V]) Stats() *Stats { return &c.stats }

// Count returns the total number of stored entries (tracked + untracked).
func (c *Cache[K, V]) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.storage.len()
}

// TrackedCount returns the number of tracked entries.
func (c *Cache[K, V]) TrackedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trackedCountLocked()
}

func (c *Cache[K, V]) trackedCountLocked() int { return c.insertOrder.Len() }

// UntrackedCount returns the number of untracked entries.
func (c *Cache[K, V]) UntrackedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.storage.len() - c.insertOrder.Len()
}

// AllKeys returns a stable snapshot of every stored key.
func (c *Cache[K, V]) AllKeys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.storage.keys(nil)
}

// TrackedKeys returns a stable snapshot of every tracked key.
func (c *Cache[K, V]) TrackedKeys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.storage.keys(func(tracked bool) bool { return tracked })
}

// UntrackedKeys returns a stable snapshot of every untracked key.
func (c *Cache[K, V]) UntrackedKeys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.storage.keys(func(tracked bool) bool { return !tracked })
}

// AllObjects returns a stable snapshot of every stored (key, value) pair.
func (c *Cache[K, V]) AllObjects() map[K]V {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[K]V, c.storage.len())
	for k, sl := range c.storage.data {
		out[k] = sl.value
	}
	return out
}

// UsageOf returns key's current usage count (0 if absent or untracked).
func (c *Cache[K, V]) UsageOf(key K) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage.Get(key)
}
