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
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow"
)

// RetryConfig configures exponential backoff between task retry attempts.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (0 = no retries).
	MaxRetries int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration

	// Multiplier is the backoff multiplier (typically 2.0 for exponential).
	Multiplier float64

	// Jitter adds randomness to prevent thundering herd (0.0-1.0).
	Jitter float64
}

// DefaultRetryConfig returns sensible default retry settings; RetryCount and
// RetryDelayMs from the task override MaxRetries/InitialDelay per call.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   0,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// calculateBackoff computes the exponential delay before the given attempt
// (1-indexed), capped at MaxDelay, with jitter.
func (c RetryConfig) calculateBackoff(attempt int) time.Duration {
	backoff := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt-1))
	if backoff > float64(c.MaxDelay) {
		backoff = float64(c.MaxDelay)
	}
	if c.Jitter > 0 {
		jitterAmount := backoff * c.Jitter
		backoff += (rand.Float64() * 2 * jitterAmount) - jitterAmount
	}
	return time.Duration(backoff)
}

// shouldRetry reports whether result warrants a retry attempt: failed but
// not skipped, and not a cancellation (cancellation is never retried).
func shouldRetry(result *workflow.TaskResult) bool {
	if result.Status == workflow.StatusCancelled {
		return false
	}
	return result.IsFailed() && !result.WasSkipped()
}

// RunWithRetry wraps attempt (a single execution of the task, producing a
// TaskResult) in the retry policy: attempt is retried while shouldRetry is
// true, up to cfg.MaxRetries additional attempts, honoring ctx cancellation
// between attempts. onRetry, if non-nil, is invoked once per retry (not for
// the initial attempt) with the 1-indexed attempt number, before the delay.
func RunWithRetry(ctx context.Context, cfg RetryConfig, attempt func() *workflow.TaskResult, onRetry func(attempt int)) *workflow.TaskResult {
	var result *workflow.TaskResult
	for try := 0; try <= cfg.MaxRetries; try++ {
		if try > 0 {
			if onRetry != nil {
				onRetry(try)
			}
			delay := cfg.calculateBackoff(try)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return result
			}
		}

		result = attempt()
		if result.Status == workflow.StatusCancelled {
			return result
		}
		if !shouldRetry(result) {
			return result
		}
	}
	return result
}

// retryProgressLine formats the "Retry attempt k/N" message emitted before
// each retry.
func retryProgressLine(attempt, maxRetries int) string {
	return fmt.Sprintf("Retry attempt %d/%d", attempt, maxRetries)
}
