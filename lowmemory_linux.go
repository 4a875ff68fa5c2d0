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

//go:build linux

package objectcache

import (
	"time"

	"golang.org/x/sys/unix"
)

// lowMemoryPollInterval is how often StartLowMemoryMonitor samples
// Sysinfo while looking for the configured pressure threshold.
const lowMemoryPollInterval = 5 * time.Second

// StartLowMemoryMonitor polls the kernel's available-memory figure via
// unix.Sysinfo and calls NotifyLowMemory whenever free RAM ratio drops at
// or below thresholdRatio (0 < thresholdRatio < 1). It returns a stop
// function; calling it ends the monitor goroutine. A no-op if
// EvictsOnLowMemory is unset on this cache's configuration.
func (c *Cache[K, V]) StartLowMemoryMonitor(thresholdRatio float64) (stop func()) {
	if !c.cfg.evictsOnLowMemory {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(lowMemoryPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				var info unix.Sysinfo_t
				if err := unix.Sysinfo(&info); err != nil {
					continue
				}
				if info.Totalram == 0 {
					continue
				}
				ratio := float64(info.Freeram) / float64(info.Totalram)
				if ratio <= thresholdRatio {
					_ = c.NotifyLowMemory()
				}
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}
