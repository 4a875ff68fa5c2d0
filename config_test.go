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

func TestConfigDefaults(t *testing.T) {
	cfg, err := NewMutableConfig().Seal()
	require.NoError(t, err)
	assert.True(t, cfg.ReplacesObjectsOnUpdate())
	assert.Equal(t, defaultEvictionInterval, cfg.EvictionInterval())
	assert.False(t, cfg.ExpiresObjects())
	assert.Equal(t, "EvictionOperation", cfg.EvictionOperationClassName())
}

func TestConfigExpiresObjectsRequiresTimingExpressions(t *testing.T) {
	_, err := NewMutableConfig().SetExpiresObjects(true).Seal()
	require.Error(t, err)

	cfg, err := NewMutableConfig().
		SetExpiresObjects(true).
		SetExpirationTimingMapKey(timing.Const{Value: "default"}).
		SetExpirationTimingMap(map[string]timing.Expression{
			"default": timing.NowPlusOffset{Offset: time.Minute},
		}).
		Seal()
	require.NoError(t, err)
	assert.True(t, cfg.ExpiresObjects())
}

func TestConfigNegativeMaxCountImpliesTrackingByDefault(t *testing.T) {
	cfg, err := NewMutableConfig().
		SetPreferredMaxObjectCount(-1).
		SetExpirationTimingMapKey(timing.Const{Value: "default"}).
		SetExpirationTimingMap(map[string]timing.Expression{
			"default": timing.NowPlusOffset{Offset: time.Minute},
		}).
		Seal()
	require.NoError(t, err)
	assert.True(t, cfg.ExpiresObjects())
	assert.True(t, cfg.TracksObjectUsage())
}

func TestConfigNegativeMaxCountRejectsExplicitFalse(t *testing.T) {
	_, err := NewMutableConfig().
		SetPreferredMaxObjectCount(-1).
		SetExpiresObjects(false).
		Seal()
	require.Error(t, err)

	_, err = NewMutableConfig().
		SetPreferredMaxObjectCount(-1).
		SetTracksObjectUsage(false).
		Seal()
	require.Error(t, err)
}

func TestNewConfigFromMapIgnoresUnknownKeys(t *testing.T) {
	cfg, err := NewConfigFromMap(map[string]any{
		OptTracksObjectUsage: true,
		"NotARealOption":     42,
		OptEvictionInterval:  30,
	})
	require.NoError(t, err)
	assert.True(t, cfg.TracksObjectUsage())
	assert.Equal(t, 30*time.Second, cfg.EvictionInterval())
}

func TestConfigCloneIsIndependent(t *testing.T) {
	cfg, err := NewMutableConfig().
		SetExpiresObjects(true).
		SetExpirationTimingMapKey(timing.Const{Value: "default"}).
		SetExpirationTimingMap(map[string]timing.Expression{
			"default": timing.NowPlusOffset{Offset: time.Minute},
		}).
		Seal()
	require.NoError(t, err)

	got := cfg.ExpirationTimingMap()
	got["default"] = timing.Const{Value: time.Now()}
	assert.NotEqual(t, got["default"], cfg.ExpirationTimingMap()["default"])
}
