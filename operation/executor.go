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

// Executor runs submitted work. Queue wraps one to drive operations; the
// default GoExecutor spawns one goroutine per submission, and PoolExecutor
// bounds concurrency with a fixed worker count for hosts that want to cap
// how many eviction cycles (or other operations) run at once.
type Executor interface {
	Submit(f func())
}

// GoExecutor submits every job as its own goroutine.
type GoExecutor struct{}

func (GoExecutor) Submit(f func()) { go f() }

// PoolExecutor runs submitted jobs across a fixed number of worker
// goroutines reading from a shared channel, the same single-background-loop
// shape the teacher cache used to drain its write buffer.
type PoolExecutor struct {
	jobs chan func()
}

// NewPoolExecutor starts workers goroutines pulling from a shared job queue.
// workers <= 0 is treated as 1.
func NewPoolExecutor(workers int) *PoolExecutor {
	if workers <= 0 {
		workers = 1
	}
	p := &PoolExecutor{jobs: make(chan func(), 128)}
	for i := 0; i < workers; i++ {
		go p.loop()
	}
	return p
}

func (p *PoolExecutor) loop() {
	for f := range p.jobs {
		f()
	}
}

func (p *PoolExecutor) Submit(f func()) { p.jobs <- f }
