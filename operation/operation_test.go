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

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationHappyPath(t *testing.T) {
	var ran bool
	op := NewOperation("happy", func(o *Operation) error {
		ran = true
		return nil
	})
	q := NewQueue("t", WithMutexCoordinator(NewMutexCoordinator()))
	require.NoError(t, q.Add(op))
	<-op.Done()
	assert.True(t, ran)
	assert.Equal(t, Finished, op.State())
	assert.NoError(t, op.Err())
}

func TestOperationConditionFailureSkipsExecuting(t *testing.T) {
	var ran bool
	op := NewOperation("gated", func(o *Operation) error {
		ran = true
		return nil
	})
	require.NoError(t, op.AddCondition(&FuncCondition{
		ConditionName: "always-fails",
		Eval:          func(*Operation) error { return errors.New("nope") },
	}))
	q := NewQueue("t", WithMutexCoordinator(NewMutexCoordinator()))
	require.NoError(t, q.Add(op))
	<-op.Done()
	assert.False(t, ran, "work must not run when a condition fails")
	assert.Equal(t, Finished, op.State())
	assert.Error(t, op.Err())
	var cf *ConditionFailedError
	assert.ErrorAs(t, op.Err(), &cf)
}

func TestOperationCancellationSkipsWork(t *testing.T) {
	var ran bool
	op := NewOperation("cancelled", func(o *Operation) error {
		ran = true
		return nil
	})
	op.Cancel()
	q := NewQueue("t", WithMutexCoordinator(NewMutexCoordinator()))
	require.NoError(t, q.Add(op))
	<-op.Done()
	assert.False(t, ran)
	assert.Equal(t, Finished, op.State())
}

func TestAddConditionAfterEnqueueFails(t *testing.T) {
	op := NewOperation("noop", func(*Operation) error { return nil })
	q := NewQueue("t", WithMutexCoordinator(NewMutexCoordinator()))
	require.NoError(t, q.Add(op))
	err := op.AddCondition(&MutexCondition{Category: "x"})
	assert.ErrorIs(t, err, ErrModificationAfterEnqueue)
}

func TestDependencyOrdering(t *testing.T) {
	var order []string
	var mu sync.Mutex
	record := func(name string) Work {
		return func(*Operation) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}
	first := NewOperation("first", record("first"))
	second := NewOperation("second", record("second"))
	second.AddDependency(first)

	q := NewQueue("t", WithMutexCoordinator(NewMutexCoordinator()))
	require.NoError(t, q.Add(second))
	require.NoError(t, q.Add(first))
	<-second.Done()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 2)
	assert.Equal(t, "first", order[0])
	assert.Equal(t, "second", order[1])
}

func TestMutualExclusionSerializes(t *testing.T) {
	coord := NewMutexCoordinator()
	var active int
	var maxActive int
	var mu sync.Mutex

	makeOp := func() *Operation {
		op := NewOperation("excl", func(*Operation) error {
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()
			time.Sleep(20 * time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			return nil
		})
		require.NoError(t, op.AddCondition(NewMutexCondition("category-c")))
		return op
	}

	q1 := NewQueue("q1", WithMutexCoordinator(coord))
	q2 := NewQueue("q2", WithMutexCoordinator(coord))
	op1 := makeOp()
	op2 := makeOp()
	require.NoError(t, q1.Add(op1))
	require.NoError(t, q2.Add(op2))
	<-op1.Done()
	<-op2.Done()

	assert.Equal(t, 1, maxActive, "mutually exclusive operations must not overlap")
}

func TestInvalidStateTransition(t *testing.T) {
	op := NewOperation("x", func(*Operation) error { return nil })
	err := op.transition(Executing)
	var ist *InvalidStateTransitionError
	require.ErrorAs(t, err, &ist)
	assert.Equal(t, Initialized, ist.Current)
	assert.Equal(t, Executing, ist.Requested)
}

func TestQueueCancelAll(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{})
	var sawCancel bool
	op := NewOperation("blocker", func(o *Operation) error {
		close(started)
		<-block
		sawCancel = o.IsCancelled()
		return nil
	})
	q := NewQueue("t", WithMutexCoordinator(NewMutexCoordinator()))
	require.NoError(t, q.Add(op))
	<-started
	q.CancelAll()
	close(block)
	<-op.Done()
	assert.True(t, sawCancel)
}

func TestAggregateErrors(t *testing.T) {
	err := aggregate(nil)
	assert.NoError(t, err)

	e1 := errors.New("one")
	err = aggregate([]error{e1})
	assert.Equal(t, e1, err)

	e2 := errors.New("two")
	err = aggregate([]error{e1, e2})
	var multi *MultipleErrors
	require.ErrorAs(t, err, &multi)
	assert.Len(t, multi.Errors, 2)
}
