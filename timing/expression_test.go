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

package timing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstEvaluate(t *testing.T) {
	c := Const{Value: "default"}
	v, err := c.Evaluate(nil)
	require.NoError(t, err)
	assert.Equal(t, "default", v)
}

func TestKeyLookup(t *testing.T) {
	snap := Snapshot{EntryEntityName: "widget"}
	v, err := KeyLookup{Key: EntryEntityName}.Evaluate(snap)
	require.NoError(t, err)
	assert.Equal(t, "widget", v)

	_, err = KeyLookup{Key: "missing"}.Evaluate(snap)
	assert.Error(t, err)
}

func TestNowPlusOffset(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	expr := NowPlusOffset{Offset: 100 * time.Millisecond, Now: func() time.Time { return fixed }}
	v, err := expr.Evaluate(nil)
	require.NoError(t, err)
	assert.Equal(t, fixed.Add(100*time.Millisecond), v)
}

func TestEvaluateBucketTypeMismatch(t *testing.T) {
	_, err := EvaluateBucket(Const{Value: 42}, nil)
	assert.Error(t, err)
}

func TestEvaluateInstantTypeMismatch(t *testing.T) {
	_, err := EvaluateInstant(Const{Value: "not a time"}, nil)
	assert.Error(t, err)
}

func TestEvaluateInstantSuccess(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	got, err := EvaluateInstant(Const{Value: fixed}, nil)
	require.NoError(t, err)
	assert.True(t, got.Equal(fixed))
}
