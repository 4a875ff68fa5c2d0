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

//go:build !linux

package objectcache

// StartLowMemoryMonitor is a no-op on platforms without a Sysinfo-style
// low-memory signal; callers relying on automatic low-memory eviction on
// these platforms must drive NotifyLowMemory themselves.
func (c *Cache[K, V]) StartLowMemoryMonitor(thresholdRatio float64) (stop func()) {
	return func() {}
}
