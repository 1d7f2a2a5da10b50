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
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow"
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow/expression"
)

// DefaultTaskTimeout is the global timeout floor applied when neither the
// task nor the workflow specify one.
const DefaultTaskTimeout = 10 * time.Minute

// Executor runs exactly one task end-to-end: condition gate, command
// interpolation, input resolution, strategy selection, process supervision
// with retry, and result mapping.
type Executor struct {
	Evaluator *expression.Evaluator
}

// NewExecutor creates a task executor bound to the given expression evaluator.
func NewExecutor(evaluator *expression.Evaluator) *Executor {
	return &Executor{Evaluator: evaluator}
}

// exprContext builds the expression evaluation context for t given ctx's
// current result store.
func (e *Executor) exprContext(wctx *workflow.WorkflowContext, t *workflow.WorkflowTask, dockerInEffect bool) *expression.Context {
	env := wctx.EnvFor(dockerInEffect)
	tasks := make(map[string]expression.TaskRef)
	for _, r := range wctx.Results.All() {
		tasks[r.TaskId] = expression.TaskRef{
			Output:    outputText(r),
			ExitCode:  r.ExitCode,
			IsSuccess: r.IsSuccess(),
			IsFailed:  r.IsFailed(),
		}
	}
	return &expression.Context{
		Env:   env,
		Tasks: tasks,
		Workflow: expression.WorkflowRef{
			Name:  wctx.Workflow.Name,
			RunID: wctx.RunID,
		},
		Params:    wctx.Parameters,
		Cancelled: wctx.IsCancelled(),
		Deps:      t.DependsOn,
	}
}

func outputText(r *workflow.TaskResult) string {
	if r.Output == nil {
		return ""
	}
	return r.Output.StandardOutput
}

// Run executes t within wctx, returning its TaskResult. sink receives process
// events as they occur (may be nil).
func (e *Executor) Run(wctx *workflow.WorkflowContext, t *workflow.WorkflowTask, sink ProgressSink) *workflow.TaskResult {
	docker := EffectiveDocker(wctx.Workflow, t)
	exprCtx := e.exprContext(wctx, t, docker != nil)

	// 1. Gate.
	if skip, reason := e.gate(t, exprCtx); skip {
		now := time.Now()
		return &workflow.TaskResult{
			TaskId:       t.Id,
			Status:       workflow.StatusSkipped,
			ExitCode:     -1,
			ErrorMessage: reason,
			StartTime:    now,
			EndTime:      now,
		}
	}

	// 2. Interpolate command.
	cmd := e.Evaluator.Interpolate(t.Run, exprCtx)

	// 3. Resolve stdin.
	stdin := e.resolveInput(t.Input, exprCtx)

	// 4. Select strategy and build config.
	strategy := Select(wctx.Workflow, t)
	declaredEnv := t.Environment
	if declaredEnv == nil {
		declaredEnv = map[string]string{}
	}
	merged := make(map[string]string, len(wctx.DeclaredEnvironment)+len(declaredEnv))
	for k, v := range wctx.DeclaredEnvironment {
		merged[k] = v
	}
	for k, v := range declaredEnv {
		merged[k] = v
	}
	cfg, err := strategy.BuildConfig(wctx.Workflow, t, cmd, merged)
	if err != nil {
		now := time.Now()
		return &workflow.TaskResult{
			TaskId:       t.Id,
			Status:       workflow.StatusFailed,
			ExitCode:     -1,
			ErrorMessage: err.Error(),
			StartTime:    now,
			EndTime:      now,
		}
	}
	// 5+6. Run with retries and timeout/cancel supervision.
	retryCfg := RetryConfig{
		MaxRetries:   t.RetryCount,
		InitialDelay: retryDelay(t.RetryDelayMs),
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}

	timeout := effectiveTimeout(t, wctx.Workflow)

	result := RunWithRetry(wctx.Context(), retryCfg, func() *workflow.TaskResult {
		taskCtx, cancel := context.WithTimeout(wctx.Context(), timeout)
		wctx.Cancellation.Register(t.Id, cancel)
		defer wctx.Cancellation.Done(t.Id)
		defer cancel()
		r := Run(taskCtx, cfg, stdin, &t.Output, sink)
		r.TaskId = t.Id
		return r
	}, func(attempt int) {
		if sink != nil {
			sink.OnEvent(Event{Kind: EventRetry, Line: retryProgressLine(attempt, t.RetryCount)})
		}
	})
	result.TaskId = t.Id
	return result
}

func retryDelay(ms int64) time.Duration {
	if ms <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(ms) * time.Millisecond
}

func effectiveTimeout(t *workflow.WorkflowTask, wf *workflow.Workflow) time.Duration {
	if t.TimeoutMs > 0 {
		return time.Duration(t.TimeoutMs) * time.Millisecond
	}
	if wf.DefaultTimeoutMs > 0 {
		return time.Duration(wf.DefaultTimeoutMs) * time.Millisecond
	}
	return DefaultTaskTimeout
}

// gate evaluates t.If (or, absent an explicit condition, "all dependencies
// succeeded") and reports whether the task should be skipped.
func (e *Executor) gate(t *workflow.WorkflowTask, exprCtx *expression.Context) (bool, string) {
	if t.If != "" {
		if !e.Evaluator.EvaluateCondition(t.If, exprCtx) {
			return true, fmt.Sprintf("condition %q evaluated to false", t.If)
		}
		return false, ""
	}
	if len(t.DependsOn) == 0 {
		return false, ""
	}
	if !e.Evaluator.EvaluateCondition("success()", exprCtx) {
		return true, "one or more dependencies did not succeed"
	}
	return false, ""
}

// resolveInput dispatches on t.Type to produce the stdin byte payload.
func (e *Executor) resolveInput(in workflow.TaskInput, exprCtx *expression.Context) []byte {
	switch in.Type {
	case workflow.InputText:
		return []byte(e.Evaluator.Interpolate(in.Value, exprCtx))
	case workflow.InputBytes:
		if b, err := base64.StdEncoding.DecodeString(in.Value); err == nil {
			return b
		}
		return []byte(in.Value)
	case workflow.InputFile:
		b, err := os.ReadFile(in.FilePath)
		if err != nil {
			return nil
		}
		return b
	case workflow.InputPipe:
		v := e.Evaluator.Interpolate(in.Value, exprCtx)
		if v == "" {
			return nil
		}
		return []byte(v)
	default:
		return nil
	}
}
