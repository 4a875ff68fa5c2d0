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

package operation

import "sync"

// MutexCoordinator serializes operations tagged with the same mutual
// exclusion category, across every queue that shares this coordinator. It
// holds only the current tail per category: a newly added operation in a
// category gets a dependency edge on that tail (if any), then becomes the
// new tail itself. That single edge is sufficient to serialize the whole
// category, since the tail it depends on in turn depended on the tail
// before it.
type MutexCoordinator struct {
	mu   sync.Mutex
	tail map[string]*Operation
}

// NewMutexCoordinator builds a standalone coordinator. Most callers want
// SharedMutexCoordinator instead; NewMutexCoordinator exists for tests that
// need isolation from the process-wide instance.
func NewMutexCoordinator() *MutexCoordinator {
	return &MutexCoordinator{tail: make(map[string]*Operation)}
}

var (
	sharedCoordinatorOnce sync.Once
	sharedCoordinator     *MutexCoordinator
)

// SharedMutexCoordinator returns the lazily-initialized process-wide
// coordinator every queue uses unless constructed WithMutexCoordinator.
func SharedMutexCoordinator() *MutexCoordinator {
	sharedCoordinatorOnce.Do(func() {
		sharedCoordinator = NewMutexCoordinator()
	})
	return sharedCoordinator
}

// AddOperation records op as the new tail of each category and, for every
// category that already had a different tail, first installs a dependency
// edge from op to that previous tail.
func (c *MutexCoordinator) AddOperation(op *Operation, categories []string) {
	if len(categories) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cat := range categories {
		if prevTail, ok := c.tail[cat]; ok && prevTail != op {
			op.AddDependency(prevTail)
		}
		c.tail[cat] = op
	}
}

// RemoveOperation drops op from each listed category's tail bookkeeping.
// Safe to call even if op was never added, or was already removed.
func (c *MutexCoordinator) RemoveOperation(op *Operation, categories []string) {
	if len(categories) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cat := range categories {
		if c.tail[cat] == op {
			delete(c.tail, cat)
		}
	}
}
