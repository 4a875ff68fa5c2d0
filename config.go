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
	"time"

	"github.com/objectcache/vdscache/timing"
)

// EvictionPolicy selects the tiebreak order for size-driven eviction.
type EvictionPolicy int

const (
	FIFO EvictionPolicy = iota
	LIFO
)

func (p EvictionPolicy) String() string {
	if p == LIFO {
		return "LIFO"
	}
	return "FIFO"
}

// Configuration option identifiers, used when constructing a Config from a
// map[string]any (spec's "External interfaces" option identifiers).
const (
	OptExpiresObjects             = "ExpiresObjects"
	OptPreferredMaxObjectCount    = "PreferredMaxObjectCount"
	OptEvictionPolicy             = "EvictionPolicy"
	OptEvictsOnLowMemory          = "EvictsOnLowMemory"
	OptTracksObjectUsage          = "TracksObjectUsage"
	OptEvictsObjectsInUse         = "EvictsObjectsInUse"
	OptReplacesObjectsOnUpdate    = "ReplacesObjectsOnUpdate"
	OptEvictionInterval           = "EvictionInterval"
	OptArchivesUntrackedObjects   = "ArchivesUntrackedObjects"
	OptExpirationTimingMapKey     = "ExpirationTimingMapKey"
	OptExpirationTimingMap        = "ExpirationTimingMap"
	OptEvictionOperationClassName = "EvictionOperationClassName"
)

const defaultEvictionInterval = 300 * time.Second

// Config is the sealed, immutable set of tunables a Cache is built with. It
// is deep-copied into the cache at construction and never mutated again.
type Config struct {
	expiresObjects             bool
	preferredMaxObjectCount    int
	evictionPolicy             EvictionPolicy
	evictsOnLowMemory          bool
	tracksObjectUsage          bool
	evictsObjectsInUse         bool
	replacesObjectsOnUpdate    bool
	evictionInterval           time.Duration
	archivesUntrackedObjects   bool
	expirationTimingMapKey     timing.Expression
	expirationTimingMap        map[string]timing.Expression
	evictionOperationClassName string
}

func (c *Config) ExpiresObjects() bool          { return c.expiresObjects }
func (c *Config) PreferredMaxObjectCount() int  { return c.preferredMaxObjectCount }
func (c *Config) EvictionPolicy() EvictionPolicy { return c.evictionPolicy }
func (c *Config) EvictsOnLowMemory() bool       { return c.evictsOnLowMemory }
func (c *Config) TracksObjectUsage() bool       { return c.tracksObjectUsage }
func (c *Config) EvictsObjectsInUse() bool      { return c.evictsObjectsInUse }
func (c *Config) ReplacesObjectsOnUpdate() bool { return c.replacesObjectsOnUpdate }
func (c *Config) EvictionInterval() time.Duration { return c.evictionInterval }
func (c *Config) ArchivesUntrackedObjects() bool { return c.archivesUntrackedObjects }
func (c *Config) ExpirationTimingMapKey() timing.Expression {
	return c.expirationTimingMapKey
}
func (c *Config) ExpirationTimingMap() map[string]timing.Expression {
	out := make(map[string]timing.Expression, len(c.expirationTimingMap))
	for k, v := range c.expirationTimingMap {
		out[k] = v
	}
	return out
}
func (c *Config) EvictionOperationClassName() string {
	if c.evictionOperationClassName == "" {
		return "EvictionOperation"
	}
	return c.evictionOperationClassName
}

// clone deep-copies the configuration, per C3's "deep-copy on cache
// construction" contract.
func (c *Config) clone() *Config {
	out := *c
	out.expirationTimingMap = make(map[string]timing.Expression, len(c.expirationTimingMap))
	for k, v := range c.expirationTimingMap {
		out.expirationTimingMap[k] = v
	}
	return &out
}

func defaultConfig() Config {
	return Config{
		replacesObjectsOnUpdate: true,
		evictionInterval:        defaultEvictionInterval,
	}
}

// InvalidConfigError reports a configuration that fails C3's construction
// invariants.
type InvalidConfigError struct {
	Reason string
}

func (e *InvalidConfigError) Error() string { return "objectcache: invalid config: " + e.Reason }

// MutableConfig is the field-by-field builder that seals into an immutable
// Config. Unknown identifiers passed to NewConfigFromMap are ignored;
// identifiers never set take the documented defaults.
type MutableConfig struct {
	cfg Config

	expiresObjectsSet    bool
	tracksObjectUsageSet bool
}

// NewMutableConfig starts a builder at the documented defaults.
func NewMutableConfig() *MutableConfig {
	return &MutableConfig{cfg: defaultConfig()}
}

func (m *MutableConfig) SetExpiresObjects(v bool) *MutableConfig {
	m.cfg.expiresObjects = v
	m.expiresObjectsSet = true
	return m
}

func (m *MutableConfig) SetPreferredMaxObjectCount(v int) *MutableConfig {
	m.cfg.preferredMaxObjectCount = v
	return m
}

func (m *MutableConfig) SetEvictionPolicy(v EvictionPolicy) *MutableConfig {
	m.cfg.evictionPolicy = v
	return m
}

func (m *MutableConfig) SetEvictsOnLowMemory(v bool) *MutableConfig {
	m.cfg.evictsOnLowMemory = v
	return m
}

func (m *MutableConfig) SetTracksObjectUsage(v bool) *MutableConfig {
	m.cfg.tracksObjectUsage = v
	m.tracksObjectUsageSet = true
	return m
}

func (m *MutableConfig) SetEvictsObjectsInUse(v bool) *MutableConfig {
	m.cfg.evictsObjectsInUse = v
	return m
}

func (m *MutableConfig) SetReplacesObjectsOnUpdate(v bool) *MutableConfig {
	m.cfg.replacesObjectsOnUpdate = v
	return m
}

func (m *MutableConfig) SetEvictionInterval(v time.Duration) *MutableConfig {
	m.cfg.evictionInterval = v
	return m
}

func (m *MutableConfig) SetArchivesUntrackedObjects(v bool) *MutableConfig {
	m.cfg.archivesUntrackedObjects = v
	return m
}

func (m *MutableConfig) SetExpirationTimingMapKey(expr timing.Expression) *MutableConfig {
	m.cfg.expirationTimingMapKey = expr
	return m
}

func (m *MutableConfig) SetExpirationTimingMap(tm map[string]timing.Expression) *MutableConfig {
	m.cfg.expirationTimingMap = tm
	return m
}

func (m *MutableConfig) SetEvictionOperationClassName(name string) *MutableConfig {
	m.cfg.evictionOperationClassName = name
	return m
}

// Seal validates and freezes the configuration. It fails with
// InvalidConfigError if ExpiresObjects is set without both a timing-key
// expression and a non-empty timing map, or if PreferredMaxObjectCount < 0
// is set while ExpiresObjects/TracksObjectUsage were explicitly set false
// (aggressive mode implies both; explicit false is inconsistent rather than
// silently overridden).
func (m *MutableConfig) Seal() (*Config, error) {
	cfg := m.cfg

	if cfg.preferredMaxObjectCount < 0 {
		if m.expiresObjectsSet && !cfg.expiresObjects {
			return nil, &InvalidConfigError{Reason: "PreferredMaxObjectCount < 0 requires ExpiresObjects to be true"}
		}
		if m.tracksObjectUsageSet && !cfg.tracksObjectUsage {
			return nil, &InvalidConfigError{Reason: "PreferredMaxObjectCount < 0 requires TracksObjectUsage to be true"}
		}
		cfg.expiresObjects = true
		cfg.tracksObjectUsage = true
	}

	if cfg.expiresObjects {
		if cfg.expirationTimingMapKey == nil || len(cfg.expirationTimingMap) == 0 {
			return nil, &InvalidConfigError{Reason: "ExpiresObjects requires both ExpirationTimingMapKey and a non-empty ExpirationTimingMap"}
		}
	}

	return cfg.clone(), nil
}

// NewConfigFromMap builds and seals a Config from a mapping of option
// identifiers to values. Unknown identifiers are ignored.
func NewConfigFromMap(opts map[string]any) (*Config, error) {
	m := NewMutableConfig()
	for key, value := range opts {
		switch key {
		case OptExpiresObjects:
			if v, ok := value.(bool); ok {
				m.SetExpiresObjects(v)
			}
		case OptPreferredMaxObjectCount:
			if v, ok := toInt(value); ok {
				m.SetPreferredMaxObjectCount(v)
			}
		case OptEvictionPolicy:
			if v, ok := toInt(value); ok {
				m.SetEvictionPolicy(EvictionPolicy(v))
			}
		case OptEvictsOnLowMemory:
			if v, ok := value.(bool); ok {
				m.SetEvictsOnLowMemory(v)
			}
		case OptTracksObjectUsage:
			if v, ok := value.(bool); ok {
				m.SetTracksObjectUsage(v)
			}
		case OptEvictsObjectsInUse:
			if v, ok := value.(bool); ok {
				m.SetEvictsObjectsInUse(v)
			}
		case OptReplacesObjectsOnUpdate:
			if v, ok := value.(bool); ok {
				m.SetReplacesObjectsOnUpdate(v)
			}
		case OptEvictionInterval:
			switch v := value.(type) {
			case time.Duration:
				m.SetEvictionInterval(v)
			case int:
				m.SetEvictionInterval(time.Duration(v) * time.Second)
			case float64:
				m.SetEvictionInterval(time.Duration(v) * time.Second)
			}
		case OptArchivesUntrackedObjects:
			if v, ok := value.(bool); ok {
				m.SetArchivesUntrackedObjects(v)
			}
		case OptExpirationTimingMapKey:
			if v, ok := value.(timing.Expression); ok {
				m.SetExpirationTimingMapKey(v)
			}
		case OptExpirationTimingMap:
			if v, ok := value.(map[string]timing.Expression); ok {
				m.SetExpirationTimingMap(v)
			}
		case OptEvictionOperationClassName:
			if v, ok := value.(string); ok {
				m.SetEvictionOperationClassName(v)
			}
		}
		// unknown identifiers are ignored, per spec.
	}
	return m.Seal()
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
