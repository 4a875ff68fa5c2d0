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

// Group presents an internal queue of child operations as a single
// operation. Two synthetic bookend operations, start and finish, are
// created at construction: every child added through AddOperation gets a
// prerequisite on start and becomes a prerequisite of finish, so the
// group's own state cannot advance past Executing until every child has
// reached Finished.
type Group struct {
	*Operation

	queue *Queue

	mu     sync.Mutex
	sealed bool
	start  *Operation
	finish *Operation
}

// NewGroup builds a group operation backed by its own internal queue. Pass
// nil for queue to have the group create a private one.
func NewGroup(name string, queue *Queue) *Group {
	if queue == nil {
		queue = NewQueue(name + ".internal")
	}
	g := &Group{
		queue:  queue,
		start:  NewOperation(name+".start", noop),
		finish: NewOperation(name+".finish", noop),
	}
	g.Operation = NewOperation(name, g.run)
	return g
}

func noop(*Operation) error { return nil }

// AddOperation inserts op into the group: it cannot begin before the
// group's start sentinel, and the group's finish sentinel cannot complete
// until op does. Fails with ErrModificationAfterEnqueue once the group
// itself has started running (its own bookends are already enqueued).
func (g *Group) AddOperation(op *Operation) error {
	g.mu.Lock()
	if g.sealed {
		g.mu.Unlock()
		return ErrModificationAfterEnqueue
	}
	g.mu.Unlock()

	op.AddDependency(g.start)
	g.finish.AddDependency(op)
	return g.queue.Add(op)
}

// run is the group's own Work: it seals the child list, enqueues the
// bookends, and blocks until finish reaches Finished. The group's own
// Finishing transition happens only once every child (and the finish
// sentinel, which depends on all of them) has completed.
func (g *Group) run(*Operation) error {
	g.mu.Lock()
	g.sealed = true
	g.mu.Unlock()

	if err := g.queue.Add(g.start); err != nil {
		return err
	}
	if err := g.queue.Add(g.finish); err != nil {
		return err
	}
	<-g.finish.Done()
	return g.finish.Err()
}
