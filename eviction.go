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
	"sync/atomic"

	"github.com/objectcache/vdscache/operation"
)

// expirationBatchSize bounds how many expired candidates a single
// WillEvictObjects/DidEvictObjects notification covers. Small cycles (a
// handful of entries) fit in one batch; large cycles are chunked so a
// cancellation observed mid-cycle still leaves "at least one and fewer
// than the full candidate set" evicted, rather than all-or-nothing.
const expirationBatchSize = 64

// evictionChainState is shared mutable state threaded through the
// Expiration -> Size -> Usage cycle chain via closures over the same
// *Cache, so a global veto (ShouldBeginEvictionCycle returning false, or
// the chain's operation queue being cancelled) observed by one cycle is
// respected by every cycle still pending in the chain.
type evictionChainState struct {
	aborted atomic.Bool
}

// buildEvictionChain constructs the three dependent eviction operations
// (Expiration, then Size by configured policy, then Usage), each gated by
// ShouldBeginEvictionCycle and by the shared abort flag, and wires Size
// and Usage to depend on their predecessor finishing first so the chain
// runs in a fixed, deterministic order on the cache's eviction queue.
func (c *Cache[K, V]) buildEvictionChain() []*operation.Operation {
	state := &evictionChainState{}

	expOp := operation.NewOperation(c.cfg.EvictionOperationClassName()+".Expiration", func(op *operation.Operation) error {
		return c.runExpirationCycle(op, state)
	})

	sizeOp := operation.NewOperation(c.cfg.EvictionOperationClassName()+".Size", func(op *operation.Operation) error {
		return c.runSizeCycle(op, state)
	})
	sizeOp.AddDependency(expOp)

	usageOp := operation.NewOperation(c.cfg.EvictionOperationClassName()+".Usage", func(op *operation.Operation) error {
		return c.runUsageCycle(op, state)
	})
	usageOp.AddDependency(sizeOp)

	return []*operation.Operation{expOp, sizeOp, usageOp}
}

// shouldRunCycle consults the shared abort flag and the delegate's global
// veto. A false result means this cycle, and every cycle still queued
// behind it, must do nothing.
func (c *Cache[K, V]) shouldRunCycle(op *operation.Operation, state *evictionChainState) bool {
	if state.aborted.Load() || op.IsCancelled() {
		return false
	}
	if c.delegate != nil && !c.delegate.ShouldBeginEvictionCycle() {
		state.aborted.Store(true)
		return false
	}
	return true
}

// runExpirationCycle evicts every entry whose expiration instant is at or
// before now, in ascending-instant order, notified in batches of up to
// expirationBatchSize so a mid-cycle cancellation still leaves a partial,
// non-empty batch evicted rather than nothing.
func (c *Cache[K, V]) runExpirationCycle(op *operation.Operation, state *evictionChainState) error {
	if !c.cfg.expiresObjects || !c.shouldRunCycle(op, state) {
		return nil
	}
	cycle := CycleExpiration
	if c.delegate != nil {
		c.delegate.WillBeginEvictionCycle(cycle)
	}

	now := c.now()
	var total int64
	offered := make(map[K]struct{})
	for {
		if op.IsCancelled() || state.aborted.Load() {
			break
		}

		c.mu.Lock()
		sorted := c.expIndex.Sorted()
		var batchKeys []K
		for _, entry := range sorted {
			if entry.Instant.After(now) {
				break
			}
			if _, seen := offered[entry.Key]; seen {
				continue
			}
			batchKeys = append(batchKeys, entry.Key)
			if len(batchKeys) >= expirationBatchSize {
				break
			}
		}
		if len(batchKeys) == 0 {
			c.mu.Unlock()
			break
		}
		batchValues := make([]V, 0, len(batchKeys))
		corrupt := false
		for _, k := range batchKeys {
			sl, ok := c.storage.get(k)
			if !ok {
				corrupt = true
				break
			}
			batchValues = append(batchValues, sl.value)
		}
		if corrupt {
			c.poison()
			c.mu.Unlock()
			break
		}
		c.mu.Unlock()

		for _, k := range batchKeys {
			offered[k] = struct{}{}
		}
		keep, values := c.filterByDelegate(batchKeys, batchValues, cycle)
		if len(keep) == 0 {
			continue
		}

		if c.delegate != nil {
			c.delegate.WillEvictObjects(keep, values, cycle)
		}
		c.mu.Lock()
		for _, k := range keep {
			c.removeLocked(k)
		}
		c.mu.Unlock()
		if c.delegate != nil {
			c.delegate.DidEvictObjects(keep, values, cycle)
		}
		total += int64(len(keep))

		if op.IsCancelled() {
			break
		}
	}

	c.stats.recordEviction(cycle, total)
	if c.delegate != nil {
		c.delegate.DidCompleteEvictionCycle(cycle)
	}
	return nil
}

// filterByDelegate applies ShouldEvictObject to each candidate, returning
// only the ones the delegate allows. A veto does not retry the candidate
// within this call. A vetoed candidate stays in the cache and its indices;
// the expiration cycle records every key it has offered and does not offer
// it again in the same cycle, and the size cycle adds a vetoed candidate
// to its skip set (see runSizeCycle), so neither cycle picks it forever in
// a tight loop.
func (c *Cache[K, V]) filterByDelegate(keys []K, values []V, cycle CycleID) ([]K, []V) {
	if c.delegate == nil {
		return keys, values
	}
	var keptKeys []K
	var keptValues []V
	for i, k := range keys {
		if c.delegate.ShouldEvictObject(k, values[i], cycle) {
			keptKeys = append(keptKeys, k)
			keptValues = append(keptValues, values[i])
		}
	}
	return keptKeys, keptValues
}

// candidateStatus reports the outcome of selecting the size cycle's next
// eviction candidate.
type candidateStatus int

const (
	candidateFound candidateStatus = iota
	// candidateNone means every remaining tracked entry is blocked (in use,
	// with EvictsObjectsInUse false) or already vetoed this cycle: the
	// target cannot be reached.
	candidateNone
	candidateCorrupt
)

// nextSizeCandidateLocked walks the insertion-order index once, in FIFO
// (oldest-first) or LIFO (newest-first) order, returning the first key that
// is neither in skip nor blocked by the in-use guard. Blocked keys are
// added to skip so the caller's next call does not re-examine them; this
// never reorders insertOrder itself, so a blocked/vetoed candidate keeps
// its place for the next eviction cycle. Caller must hold c.mu.
func (c *Cache[K, V]) nextSizeCandidateLocked(cycle CycleID, skip map[K]struct{}) (K, V, candidateStatus) {
	var zeroK K
	var zeroV V

	keys := c.insertOrder.Keys()
	if cycle == CycleLIFO {
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
	}
	for _, k := range keys {
		if _, skipped := skip[k]; skipped {
			continue
		}
		// Insertion seeds usage at 1 (index.go's Init); that baseline reference
		// is the cache's own hold, not an outstanding external use, so only a
		// count above 1 (an explicit IncrementUsage) blocks size eviction.
		if c.cfg.tracksObjectUsage && !c.cfg.evictsObjectsInUse && c.usage.Get(k) > 1 {
			skip[k] = struct{}{}
			continue
		}
		sl, ok := c.storage.get(k)
		if !ok {
			return zeroK, zeroV, candidateCorrupt
		}
		return k, sl.value, candidateFound
	}
	return zeroK, zeroV, candidateNone
}

// runSizeCycle evicts from the head (FIFO) or tail (LIFO) of the
// insertion-order index until tracked count is at or below the configured
// target, honoring EvictsObjectsInUse and the delegate's per-candidate
// veto. A negative PreferredMaxObjectCount selects aggressive mode: the
// effective target is 0, so every eligible tracked candidate is evicted.
// If no eligible candidate remains above target (every one is blocked by
// the in-use guard or vetoed), the cycle stops short and reports
// ObjectInUse rather than spinning forever.
func (c *Cache[K, V]) runSizeCycle(op *operation.Operation, state *evictionChainState) error {
	if c.cfg.preferredMaxObjectCount == 0 || !c.shouldRunCycle(op, state) {
		return nil
	}
	target := c.cfg.preferredMaxObjectCount
	if target < 0 {
		target = 0
	}
	cycle := CycleFIFO
	if c.cfg.evictionPolicy == LIFO {
		cycle = CycleLIFO
	}
	if c.delegate != nil {
		c.delegate.WillBeginEvictionCycle(cycle)
	}

	var total int64
	var cycleErr error
	skip := make(map[K]struct{})
	for {
		if op.IsCancelled() || state.aborted.Load() {
			break
		}
		c.mu.Lock()
		if c.trackedCountLocked() <= target {
			c.mu.Unlock()
			break
		}
		key, value, status := c.nextSizeCandidateLocked(cycle, skip)
		if status == candidateCorrupt {
			c.poison()
			c.mu.Unlock()
			break
		}
		if status == candidateNone {
			c.mu.Unlock()
			cycleErr = newErr("Cache.ProcessEvictions", CodeObjectInUse,
				"size cycle cannot reach target: every remaining tracked entry is in use", nil)
			break
		}
		c.mu.Unlock()

		if c.delegate != nil && !c.delegate.ShouldEvictObject(key, value, cycle) {
			skip[key] = struct{}{}
			continue
		}

		if c.delegate != nil {
			c.delegate.WillEvictObjects([]K{key}, []V{value}, cycle)
		}
		c.mu.Lock()
		c.removeLocked(key)
		c.mu.Unlock()
		if c.delegate != nil {
			c.delegate.DidEvictObjects([]K{key}, []V{value}, cycle)
		}
		total++
	}

	c.stats.recordEviction(cycle, total)
	if c.delegate != nil {
		c.delegate.DidCompleteEvictionCycle(cycle)
	}
	c.recordEvictionError(cycleErr)
	return cycleErr
}

// runUsageCycle evicts every tracked entry whose usage count has reached
// zero, when usage tracking is enabled. An entry absent from the usage
// index (per the "absent key means zero" invariant) is as eligible as one
// explicitly decremented to zero.
func (c *Cache[K, V]) runUsageCycle(op *operation.Operation, state *evictionChainState) error {
	if !c.cfg.tracksObjectUsage || !c.shouldRunCycle(op, state) {
		return nil
	}
	cycle := CycleUsage
	if c.delegate != nil {
		c.delegate.WillBeginEvictionCycle(cycle)
	}

	var total int64
	c.mu.Lock()
	candidates := make([]K, 0)
	for _, k := range c.insertOrder.Keys() {
		if c.usage.Get(k) == 0 {
			candidates = append(candidates, k)
		}
	}
	c.mu.Unlock()

	for _, key := range candidates {
		if op.IsCancelled() || state.aborted.Load() {
			break
		}
		c.mu.Lock()
		if !c.insertOrder.Has(key) || c.usage.Get(key) != 0 {
			// Removed, or re-used, since the candidate snapshot was taken.
			c.mu.Unlock()
			continue
		}
		sl, ok := c.storage.get(key)
		if !ok {
			c.poison()
			c.mu.Unlock()
			break
		}
		value := sl.value
		c.mu.Unlock()

		if c.delegate != nil && !c.delegate.ShouldEvictObject(key, value, cycle) {
			continue
		}

		if c.delegate != nil {
			c.delegate.WillEvictObjects([]K{key}, []V{value}, cycle)
		}
		c.mu.Lock()
		c.removeLocked(key)
		c.mu.Unlock()
		if c.delegate != nil {
			c.delegate.DidEvictObjects([]K{key}, []V{value}, cycle)
		}
		total++
	}

	c.stats.recordEviction(cycle, total)
	if c.delegate != nil {
		c.delegate.DidCompleteEvictionCycle(cycle)
	}
	return nil
}
