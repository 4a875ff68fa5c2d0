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

import "fmt"

// ErrorCode is the taxonomy spec section 7 names. Cache methods never
// panic; they return (result, error) where error, if non-nil, is always a
// *CacheError carrying one of these codes. Configuration failures from
// New and MutableConfig.Seal are reported as *InvalidConfigError instead.
type ErrorCode int

const (
	_ ErrorCode = iota
	CodeNilKey
	CodeNilArgument
	CodeUnexpectedArgumentType
	CodeEntryNotFound
	CodeUnableToRemove
	CodeObjectInUse
	CodeExpirationEvaluationFailed
	CodeOperationConditionFailed
	CodeOperationExecutionFailed
	CodeOperationEnqueueFailed
	CodeOperationModificationFailed
	CodeOperationInvalidState
	CodeInvalidState
)

func (c ErrorCode) String() string {
	switch c {
	case CodeNilKey:
		return "NilKey"
	case CodeNilArgument:
		return "NilArgument"
	case CodeUnexpectedArgumentType:
		return "UnexpectedArgumentType"
	case CodeEntryNotFound:
		return "EntryNotFound"
	case CodeUnableToRemove:
		return "UnableToRemove"
	case CodeObjectInUse:
		return "ObjectInUse"
	case CodeExpirationEvaluationFailed:
		return "ExpirationEvaluationFailed"
	case CodeOperationConditionFailed:
		return "OperationConditionFailed"
	case CodeOperationExecutionFailed:
		return "OperationExecutionFailed"
	case CodeOperationEnqueueFailed:
		return "OperationEnqueueFailed"
	case CodeOperationModificationFailed:
		return "OperationModificationFailed"
	case CodeOperationInvalidState:
		return "OperationInvalidState"
	case CodeInvalidState:
		return "InvalidState"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
}

// CacheError is the single error shape every public cache operation
// returns. Site is the symbolic name of the call that produced it (e.g.
// "Cache.Set"); Args is an ordered, human-readable argument descriptor
// (never the raw value, to avoid surprising a caller whose value's String
// method has side effects); Cause chains an optional underlying error.
type CacheError struct {
	Site  string
	Args  []string
	Code  ErrorCode
	Desc  string
	Cause error
}

func (e *CacheError) Error() string {
	msg := fmt.Sprintf("objectcache: %s: %s", e.Site, e.Desc)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *CacheError) Unwrap() error { return e.Cause }

func newErr(site string, code ErrorCode, desc string, cause error, args ...string) *CacheError {
	return &CacheError{Site: site, Code: code, Desc: desc, Cause: cause, Args: args}
}
