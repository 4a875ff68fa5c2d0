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

// Package operation implements a conditional, observable, delegating unit of
// work with an explicit state machine, cross-queue mutual exclusion, and
// composability through group operations. A database cache schedules its
// eviction cycles through this framework; nothing here knows about caches.
package operation

import "fmt"

// State is one step in an operation's lifecycle. States only ever advance
// forward; there is no legal transition back to an earlier state.
type State int

const (
	Initialized State = iota
	Pending
	Evaluating
	Ready
	Executing
	Finishing
	Finished
)

func (s State) String() string {
	switch s {
	case Initialized:
		return "Initialized"
	case Pending:
		return "Pending"
	case Evaluating:
		return "Evaluating"
	case Ready:
		return "Ready"
	case Executing:
		return "Executing"
	case Finishing:
		return "Finishing"
	case Finished:
		return "Finished"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// legalTransitions enumerates the forward edges of the state machine.
// Evaluating has two legal successors: Ready on condition success, Finishing
// directly on condition failure (skipping Ready and Executing entirely).
var legalTransitions = map[State][]State{
	Initialized: {Pending},
	Pending:     {Evaluating},
	Evaluating:  {Ready, Finishing},
	Ready:       {Executing},
	Executing:   {Finishing},
	Finishing:   {Finished},
	Finished:    {},
}

func isLegalTransition(from, to State) bool {
	for _, s := range legalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
