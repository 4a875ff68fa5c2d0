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

// Condition gates whether an operation may advance from Evaluating to Ready.
// MutuallyExclusive is a class-level property: true means every operation
// carrying a condition of this Name is serialized process-wide by the mutex
// coordinator.
type Condition interface {
	Name() string
	MutuallyExclusive() bool
	Evaluate(op *Operation) error
}

// DependencyProducer is an optional capability of a Condition: a condition
// may require another operation to complete first. The queue installs the
// returned operation as a prerequisite and enqueues it recursively.
type DependencyProducer interface {
	Dependency(op *Operation) *Operation
}

// MutexCondition is a Condition whose only job is naming a mutual-exclusion
// category; it always evaluates successfully and never produces a
// dependency of its own (the mutex coordinator installs the serialization
// edge, not the condition itself).
type MutexCondition struct {
	Category string
}

func NewMutexCondition(category string) *MutexCondition {
	return &MutexCondition{Category: category}
}

func (c *MutexCondition) Name() string            { return c.Category }
func (c *MutexCondition) MutuallyExclusive() bool { return true }
func (c *MutexCondition) Evaluate(*Operation) error { return nil }

// FuncCondition adapts a plain evaluator function and an optional dependency
// producer into a Condition, for callers that don't need a dedicated type.
type FuncCondition struct {
	ConditionName string
	Exclusive     bool
	Eval          func(op *Operation) error
	Dep           func(op *Operation) *Operation
}

func (c *FuncCondition) Name() string            { return c.ConditionName }
func (c *FuncCondition) MutuallyExclusive() bool { return c.Exclusive }

func (c *FuncCondition) Evaluate(op *Operation) error {
	if c.Eval == nil {
		return nil
	}
	return c.Eval(op)
}

func (c *FuncCondition) Dependency(op *Operation) *Operation {
	if c.Dep == nil {
		return nil
	}
	return c.Dep(op)
}
