// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package exec

import (
	"context"
	"testing"
	"time"

	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow"
	"github.com/stretchr/testify/assert"
)

func TestRunWithRetrySucceedsOnThirdAttempt(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, InitialDelay: 5 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2.0}

	var attempts int
	var retries []int
	start := time.Now()
	result := RunWithRetry(context.Background(), cfg, func() *workflow.TaskResult {
		attempts++
		if attempts < 3 {
			return &workflow.TaskResult{Status: workflow.StatusFailed, ExitCode: 1}
		}
		return &workflow.TaskResult{Status: workflow.StatusSucceeded, ExitCode: 0}
	}, func(attempt int) {
		retries = append(retries, attempt)
	})

	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, retries)
	assert.True(t, result.IsSuccess())
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestRunWithRetryNeverRetriesCancellation(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond}
	var attempts int
	result := RunWithRetry(context.Background(), cfg, func() *workflow.TaskResult {
		attempts++
		return &workflow.TaskResult{Status: workflow.StatusCancelled}
	}, nil)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, workflow.StatusCancelled, result.Status)
}

func TestRunWithRetryExhaustsAttempts(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond}
	var attempts int
	result := RunWithRetry(context.Background(), cfg, func() *workflow.TaskResult {
		attempts++
		return &workflow.TaskResult{Status: workflow.StatusFailed, ExitCode: 1}
	}, nil)
	assert.Equal(t, 3, attempts)
	assert.True(t, result.IsFailed())
}

func TestRetryProgressLine(t *testing.T) {
	assert.Equal(t, "Retry attempt 1/2", retryProgressLine(1, 2))
}
