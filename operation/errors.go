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
	"errors"
	"fmt"
	"strings"
)

// ErrModificationAfterEnqueue is returned when a caller tries to add a
// condition or observer to an operation that has already left Initialized.
var ErrModificationAfterEnqueue = errors.New("operation: cannot modify conditions or observers after enqueue")

// ErrEnqueueRejected is returned when a queue delegate's ShouldAddOperation
// hook declines to accept an operation.
var ErrEnqueueRejected = errors.New("operation: queue delegate rejected enqueue")

// InvalidStateTransitionError carries the current and requested state of a
// rejected transition attempt.
type InvalidStateTransitionError struct {
	Current   State
	Requested State
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("operation: illegal transition from %s to %s", e.Current, e.Requested)
}

// ConditionFailedError wraps the error produced by a single named condition.
type ConditionFailedError struct {
	Condition string
	Err       error
}

func (e *ConditionFailedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("operation: condition %q failed", e.Condition)
	}
	return fmt.Sprintf("operation: condition %q failed: %v", e.Condition, e.Err)
}

func (e *ConditionFailedError) Unwrap() error { return e.Err }

// ExecutionPanicError wraps a panic recovered from an operation's Work
// function or from a third-party callback (timing expression, delegate)
// invoked during execution.
type ExecutionPanicError struct {
	Recovered interface{}
}

func (e *ExecutionPanicError) Error() string {
	return fmt.Sprintf("operation: execution panicked: %v", e.Recovered)
}

// MultipleErrors aggregates the failures of more than one condition, or more
// than one operation in a bulk add. It is a dedicated aggregate kind rather
// than a single chained cause, so every constituent remains inspectable.
type MultipleErrors struct {
	Errors []error
}

func (e *MultipleErrors) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	parts := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		parts = append(parts, err.Error())
	}
	return fmt.Sprintf("operation: %d errors: %s", len(e.Errors), strings.Join(parts, "; "))
}

// Unwrap exposes every constituent error to errors.Is/errors.As.
func (e *MultipleErrors) Unwrap() []error { return e.Errors }

// aggregate combines zero or more errors into nil, the single error, or a
// MultipleErrors, in that preference order.
func aggregate(errs []error) error {
	nonNil := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return &MultipleErrors{Errors: nonNil}
	}
}
