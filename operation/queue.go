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

// QueueDelegate observes and gates additions to a Queue.
type QueueDelegate interface {
	// ShouldAddOperation may veto an enqueue; returning false fails the
	// Add call with ErrEnqueueRejected.
	ShouldAddOperation(op *Operation) bool
	WillAddOperation(op *Operation)
	DidAddOperation(op *Operation)
	OperationDidFinish(op *Operation, errs []error)
}

// QueueOption configures a Queue at construction.
type QueueOption func(*Queue)

// WithExecutor overrides the default GoExecutor.
func WithExecutor(e Executor) QueueOption {
	return func(q *Queue) { q.executor = e }
}

// WithQueueDelegate installs the queue delegate.
func WithQueueDelegate(d QueueDelegate) QueueOption {
	return func(q *Queue) { q.delegate = d }
}

// WithMutexCoordinator overrides the process-wide shared coordinator, for
// test isolation.
func WithMutexCoordinator(c *MutexCoordinator) QueueOption {
	return func(q *Queue) { q.coordinator = c }
}

// Queue accepts operations (and plain work items), installs condition
// dependencies, enforces cross-queue mutual exclusion through a
// MutexCoordinator, and notifies a delegate across the add/finish
// lifecycle.
type Queue struct {
	Name string

	mu          sync.Mutex
	inFlight    map[*Operation]struct{}
	executor    Executor
	delegate    QueueDelegate
	coordinator *MutexCoordinator
	wg          sync.WaitGroup
}

// NewQueue builds a queue. By default it runs each operation on its own
// goroutine (GoExecutor) and shares the process-wide mutex coordinator.
func NewQueue(name string, opts ...QueueOption) *Queue {
	q := &Queue{
		Name:        name,
		inFlight:    make(map[*Operation]struct{}),
		executor:    GoExecutor{},
		coordinator: SharedMutexCoordinator(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func mutexCategories(op *Operation) []string {
	var cats []string
	for _, c := range op.snapshotConditions() {
		if c.MutuallyExclusive() {
			cats = append(cats, c.Name())
		}
	}
	return cats
}

// Add submits op to the queue, following the teacher-framework contract:
// notify the operation of its impending enqueue, install condition
// dependencies (recursively enqueuing dependency operations), register
// mutually-exclusive conditions with the coordinator, attach the
// finish-time finalizer, run the should/will-add delegate hooks, and
// finally submit to the executor.
func (q *Queue) Add(op *Operation) error {
	if err := op.transition(Pending); err != nil {
		return err
	}

	for _, c := range op.snapshotConditions() {
		producer, ok := c.(DependencyProducer)
		if !ok {
			continue
		}
		dep := producer.Dependency(op)
		if dep == nil {
			continue
		}
		op.AddDependency(dep)
		if err := q.Add(dep); err != nil {
			return err
		}
	}

	cats := mutexCategories(op)
	q.coordinator.AddOperation(op, cats)

	op.addFinalizer(func(finished *Operation) {
		q.coordinator.RemoveOperation(finished, cats)
		q.mu.Lock()
		delete(q.inFlight, finished)
		q.mu.Unlock()
		if q.delegate != nil {
			q.delegate.OperationDidFinish(finished, finished.Errors())
		}
	})

	if q.delegate != nil && !q.delegate.ShouldAddOperation(op) {
		return ErrEnqueueRejected
	}
	if q.delegate != nil {
		q.delegate.WillAddOperation(op)
	}

	q.mu.Lock()
	q.inFlight[op] = struct{}{}
	q.mu.Unlock()

	q.wg.Add(1)
	q.executor.Submit(func() {
		defer q.wg.Done()
		op.run()
	})

	if q.delegate != nil {
		q.delegate.DidAddOperation(op)
	}
	return nil
}

// AddAll adds every operation, in order. If one fails to enqueue, every
// operation already added in this call is cancelled and the failures are
// aggregated into a single error.
func (q *Queue) AddAll(ops []*Operation) error {
	var added []*Operation
	var failures []error
	for _, op := range ops {
		if err := q.Add(op); err != nil {
			failures = append(failures, err)
			for _, a := range added {
				a.Cancel()
			}
			return aggregate(failures)
		}
		added = append(added, op)
	}
	return nil
}

// CancelAll marks every currently in-flight operation cancelled. Cancellation
// is cooperative: each operation observes the flag at its own pace.
func (q *Queue) CancelAll() {
	q.mu.Lock()
	ops := make([]*Operation, 0, len(q.inFlight))
	for op := range q.inFlight {
		ops = append(ops, op)
	}
	q.mu.Unlock()
	for _, op := range ops {
		op.Cancel()
	}
}

// Wait blocks until every operation submitted so far has reached Finished.
func (q *Queue) Wait() { q.wg.Wait() }
