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
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupWaitsForAllChildren(t *testing.T) {
	g := NewGroup("g", nil)
	var completed int32
	var mu sync.Mutex
	var seenStartDone []bool

	for i := 0; i < 5; i++ {
		op := NewOperation("child", func(*Operation) error {
			mu.Lock()
			seenStartDone = append(seenStartDone, g.start.State() == Finished)
			mu.Unlock()
			atomic.AddInt32(&completed, 1)
			return nil
		})
		require.NoError(t, g.AddOperation(op))
	}

	outer := NewQueue("outer", WithMutexCoordinator(NewMutexCoordinator()))
	require.NoError(t, outer.Add(g.Operation))
	<-g.Done()

	assert.Equal(t, int32(5), atomic.LoadInt32(&completed))
	assert.Equal(t, Finished, g.State())
	for _, sawStartFinished := range seenStartDone {
		assert.True(t, sawStartFinished, "child must not run before group's start sentinel finishes")
	}
}

func TestGroupSealedAfterStart(t *testing.T) {
	g := NewGroup("g", nil)
	outer := NewQueue("outer", WithMutexCoordinator(NewMutexCoordinator()))
	require.NoError(t, outer.Add(g.Operation))
	<-g.Done()

	late := NewOperation("late", func(*Operation) error { return nil })
	err := g.AddOperation(late)
	assert.ErrorIs(t, err, ErrModificationAfterEnqueue)
}
