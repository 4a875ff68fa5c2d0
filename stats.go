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
	"fmt"
	"sync/atomic"

	"github.com/dustin/go-humanize"
)

// Stats are running counters of cache activity, in the same atomic-counter
// shape as the teacher's Metrics type, repurposed from hit-ratio/cost
// accounting to this cache's own countable events.
type Stats struct {
	sets             atomic.Int64
	gets             atomic.Int64
	hits             atomic.Int64
	misses           atomic.Int64
	removals         atomic.Int64
	evictedExpired   atomic.Int64
	evictedSize      atomic.Int64
	evictedUsage     atomic.Int64
	evictedExplicit  atomic.Int64
}

func (s *Stats) Sets() int64            { return s.sets.Load() }
func (s *Stats) Gets() int64            { return s.gets.Load() }
func (s *Stats) Hits() int64            { return s.hits.Load() }
func (s *Stats) Misses() int64          { return s.misses.Load() }
func (s *Stats) Removals() int64        { return s.removals.Load() }
func (s *Stats) EvictedExpired() int64  { return s.evictedExpired.Load() }
func (s *Stats) EvictedSize() int64     { return s.evictedSize.Load() }
func (s *Stats) EvictedUsage() int64    { return s.evictedUsage.Load() }
func (s *Stats) EvictedExplicit() int64 { return s.evictedExplicit.Load() }

// String renders a human-readable summary, the role go-humanize plays in
// the teacher's dependency list.
func (s *Stats) String() string {
	return fmt.Sprintf(
		"sets=%s gets=%s hits=%s misses=%s removals=%s evicted(expired=%s size=%s usage=%s explicit=%s)",
		humanize.Comma(s.Sets()),
		humanize.Comma(s.Gets()),
		humanize.Comma(s.Hits()),
		humanize.Comma(s.Misses()),
		humanize.Comma(s.Removals()),
		humanize.Comma(s.EvictedExpired()),
		humanize.Comma(s.EvictedSize()),
		humanize.Comma(s.EvictedUsage()),
		humanize.Comma(s.EvictedExplicit()),
	)
}

func (s *Stats) recordEviction(cycle CycleID, n int64) {
	if n == 0 {
		return
	}
	switch cycle {
	case CycleExpiration:
		s.evictedExpired.Add(n)
	case CycleFIFO, CycleLIFO:
		s.evictedSize.Add(n)
	case CycleUsage:
		s.evictedUsage.Add(n)
	default:
		s.evictedExplicit.Add(n)
	}
}
