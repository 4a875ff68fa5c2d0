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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectcache/vdscache/timing"
)

// sequencingDelegate records the order cycles begin in, so the chain's
// fixed Expiration -> Size -> Usage ordering can be asserted end to end.
type sequencingDelegate struct {
	NopDelegate[string, string]
	order []CycleID
}

func (d *sequencingDelegate) WillBeginEvictionCycle(cycle CycleID) {
	d.order = append(d.order, cycle)
}

func TestEvictionChainRunsInFixedOrder(t *testing.T) {
	fixedNow := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := mustSealConfig(t, func(m *MutableConfig) *MutableConfig {
		return m.SetExpiresObjects(true).
			SetExpirationTimingMapKey(timing.Const{Value: "short"}).
			SetExpirationTimingMap(map[string]timing.Expression{
				"short": timing.NowPlusOffset{Offset: -time.Second, Now: func() time.Time { return fixedNow }},
			}).
			SetPreferredMaxObjectCount(1).
			SetTracksObjectUsage(true)
	})
	delegate := &sequencingDelegate{}
	c, err := New[string, string](cfg,
		WithDelegate[string, string](delegate),
		WithNowFunc[string, string](func() time.Time { return fixedNow }))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Set("a", "1", true))

	require.NoError(t, c.ProcessEvictions())
	c.WaitForEvictions()

	require.Len(t, delegate.order, 3)
	assert.Equal(t, CycleExpiration, delegate.order[0])
	assert.Equal(t, CycleFIFO, delegate.order[1])
	assert.Equal(t, CycleUsage, delegate.order[2])
}

// globalVetoDelegate refuses to begin any eviction cycle at all.
type globalVetoDelegate struct {
	NopDelegate[string, string]
	began []CycleID
}

func (d *globalVetoDelegate) ShouldBeginEvictionCycle() bool { return false }

func (d *globalVetoDelegate) WillBeginEvictionCycle(cycle CycleID) {
	d.began = append(d.began, cycle)
}

func TestEvictionChainGlobalVetoSkipsEveryCycle(t *testing.T) {
	cfg := mustSealConfig(t, func(m *MutableConfig) *MutableConfig {
		return m.SetPreferredMaxObjectCount(1)
	})
	delegate := &globalVetoDelegate{}
	c, err := New[string, string](cfg, WithDelegate[string, string](delegate))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Set("a", "1", true))
	require.NoError(t, c.Set("b", "2", true))

	require.NoError(t, c.ProcessEvictions())
	c.WaitForEvictions()

	assert.Empty(t, delegate.began)
	_, ok := c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)
}

func TestCacheNegativePreferredMaxObjectCountEvictsAggressively(t *testing.T) {
	cfg := mustSealConfig(t, func(m *MutableConfig) *MutableConfig {
		return m.SetPreferredMaxObjectCount(-1).
			SetExpirationTimingMapKey(timing.Const{Value: "default"}).
			SetExpirationTimingMap(map[string]timing.Expression{
				"default": timing.NowPlusOffset{Offset: time.Minute},
			})
	})
	c, err := New[string, string](cfg)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Set("a", "1", true))
	require.NoError(t, c.Set("b", "2", true))
	require.NoError(t, c.Set("c", "3", true))
	require.Equal(t, 3, c.TrackedCount())

	require.NoError(t, c.ProcessEvictions())
	c.WaitForEvictions()

	assert.Equal(t, 0, c.TrackedCount(), "aggressive mode must drive the tracked set to zero")
	assert.Empty(t, c.EvictionErrors())
}

func TestCacheLIFOSizeCycleSkipsInUseTailAndEvictsNextCandidate(t *testing.T) {
	cfg := mustSealConfig(t, func(m *MutableConfig) *MutableConfig {
		return m.SetPreferredMaxObjectCount(2).
			SetEvictionPolicy(LIFO).
			SetTracksObjectUsage(true)
	})
	c, err := New[string, string](cfg)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Set("k1", "1", true))
	require.NoError(t, c.Set("k2", "2", true))
	require.NoError(t, c.Set("k3", "3", true))
	// k3 is the LIFO tail; mark it in use so the size cycle must skip it
	// instead of spinning on it forever.
	require.NoError(t, c.IncrementUsage("k3"))

	require.NoError(t, c.ProcessEvictions())
	c.WaitForEvictions()

	_, ok := c.Get("k3")
	assert.True(t, ok, "in-use tail must survive")
	_, ok = c.Get("k2")
	assert.False(t, ok, "size cycle must advance past the blocked tail and evict k2")
	_, ok = c.Get("k1")
	assert.True(t, ok)
	assert.Equal(t, 2, c.TrackedCount())
	assert.Empty(t, c.EvictionErrors())
}

func TestCacheSizeCycleReportsObjectInUseInsteadOfHangingWhenAllBlocked(t *testing.T) {
	cfg := mustSealConfig(t, func(m *MutableConfig) *MutableConfig {
		return m.SetPreferredMaxObjectCount(1).
			SetEvictionPolicy(FIFO).
			SetTracksObjectUsage(true)
	})
	c, err := New[string, string](cfg)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Set("a", "1", true))
	require.NoError(t, c.Set("b", "2", true))
	require.NoError(t, c.IncrementUsage("a"))
	require.NoError(t, c.IncrementUsage("b"))

	require.NoError(t, c.ProcessEvictions())
	// Must return promptly: a size cycle with every candidate blocked must
	// terminate with ObjectInUse rather than spin forever.
	done := make(chan struct{})
	go func() {
		c.WaitForEvictions()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("eviction chain did not finish: size cycle likely livelocked")
	}

	assert.Equal(t, 2, c.TrackedCount(), "neither in-use entry should have been evicted")
	errs := c.EvictionErrors()
	require.NotEmpty(t, errs)
	var cacheErr *CacheError
	require.ErrorAs(t, errs[0], &cacheErr)
	assert.Equal(t, CodeObjectInUse, cacheErr.Code)
}

func TestCacheClosePreventsFurtherTimerTicksButNotManualEviction(t *testing.T) {
	cfg := mustSealConfig(t, func(m *MutableConfig) *MutableConfig {
		return m.SetPreferredMaxObjectCount(1)
	})
	c, err := New[string, string](cfg)
	require.NoError(t, err)
	c.Close()

	require.NoError(t, c.Set("a", "1", true))
	require.NoError(t, c.Set("b", "2", true))
	require.NoError(t, c.ProcessEvictions())
	c.WaitForEvictions()

	assert.Equal(t, 1, c.TrackedCount())
}
