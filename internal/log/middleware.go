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

package log

import (
	"context"
	"log/slog"
	"time"
)

// TaskExecution represents a task execution for logging purposes.
type TaskExecution struct {
	// RunID is the workflow run this task belongs to.
	RunID string

	// TaskID is the task identifier.
	TaskID string

	// Strategy is the execution strategy chosen for this task (local, docker, ssh).
	Strategy string

	// Metadata contains additional request metadata.
	Metadata map[string]interface{}
}

// TaskOutcome represents the result of a task execution for logging purposes.
type TaskOutcome struct {
	// Success indicates the task was launched and completed (exit code 0).
	Success bool

	// Error is the error message if the task could not be launched or was
	// abandoned, distinct from a non-zero exit code.
	Error string

	// DurationMs is the duration of the task execution in milliseconds.
	DurationMs int64

	// Metadata contains additional response metadata (e.g. exit_code).
	Metadata map[string]interface{}
}

// LogTaskStart logs a task about to execute.
func LogTaskStart(logger *slog.Logger, exec *TaskExecution) {
	attrs := []any{
		"event", "task_start",
		RunIDKey, exec.RunID,
		TaskIDKey, exec.TaskID,
		"strategy", exec.Strategy,
	}

	for k, v := range exec.Metadata {
		attrs = append(attrs, k, v)
	}

	logger.Info("task execution started", attrs...)
}

// LogTaskOutcome logs the result of a task execution.
func LogTaskOutcome(logger *slog.Logger, exec *TaskExecution, outcome *TaskOutcome) {
	attrs := []any{
		"event", "task_outcome",
		RunIDKey, exec.RunID,
		TaskIDKey, exec.TaskID,
		"success", outcome.Success,
		DurationKey, outcome.DurationMs,
	}

	if outcome.Error != "" {
		attrs = append(attrs, "error", outcome.Error)
	}

	for k, v := range outcome.Metadata {
		attrs = append(attrs, k, v)
	}

	level := slog.LevelInfo
	message := "task execution completed"

	if !outcome.Success {
		level = slog.LevelError
		message = "task execution failed"
	}

	logger.Log(context.Background(), level, message, attrs...)
}

// TaskMiddleware wraps task execution with start/outcome logging.
type TaskMiddleware struct {
	logger *slog.Logger
}

// NewTaskMiddleware creates a new task execution logging middleware.
func NewTaskMiddleware(logger *slog.Logger) *TaskMiddleware {
	return &TaskMiddleware{
		logger: logger,
	}
}

// Run wraps a function that executes a task, logging start and outcome
// automatically and measuring wall-clock duration around the call.
func (m *TaskMiddleware) Run(exec *TaskExecution, handler func() error) error {
	start := time.Now()

	LogTaskStart(m.logger, exec)

	err := handler()

	outcome := &TaskOutcome{
		Success:    err == nil,
		DurationMs: time.Since(start).Milliseconds(),
	}

	if err != nil {
		outcome.Error = err.Error()
	}

	LogTaskOutcome(m.logger, exec, outcome)

	return err
}

// RunWithMetadata wraps a function that executes a task and returns
// metadata (e.g. exit code, output size) to attach to the outcome log.
func (m *TaskMiddleware) RunWithMetadata(exec *TaskExecution, handler func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	start := time.Now()

	LogTaskStart(m.logger, exec)

	metadata, err := handler()

	outcome := &TaskOutcome{
		Success:    err == nil,
		DurationMs: time.Since(start).Milliseconds(),
		Metadata:   metadata,
	}

	if err != nil {
		outcome.Error = err.Error()
	}

	LogTaskOutcome(m.logger, exec, outcome)

	return metadata, err
}
