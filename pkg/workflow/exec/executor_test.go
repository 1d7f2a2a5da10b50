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
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow/expression"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCtx(wf *workflow.Workflow) *workflow.WorkflowContext {
	return workflow.NewWorkflowContext(context.Background(), "run-1", wf, map[string]string{}, map[string]string{}, false)
}

func TestExecutorRunSuccess(t *testing.T) {
	wf := &workflow.Workflow{Name: "wf", Shell: "bash"}
	task := &workflow.WorkflowTask{Id: "a", Run: "exit 0"}
	ex := NewExecutor(expression.New(nil))
	r := ex.Run(newCtx(wf), task, nil)
	require.NotNil(t, r)
	assert.True(t, r.IsSuccess())
	assert.Equal(t, 0, r.ExitCode)
}

func TestExecutorConditionSkip(t *testing.T) {
	wf := &workflow.Workflow{Name: "wf", Shell: "bash"}
	task := &workflow.WorkflowTask{Id: "b", Run: "exit 1", If: "${{ success() }}", DependsOn: []string{"a"}}
	wctx := newCtx(wf)
	wctx.Results.Set("a", &workflow.TaskResult{TaskId: "a", Status: workflow.StatusFailed, ExitCode: 1})
	ex := NewExecutor(expression.New(nil))
	r := ex.Run(wctx, task, nil)
	assert.True(t, r.WasSkipped())
}

func TestExecutorTimeoutPreservesOutput(t *testing.T) {
	wf := &workflow.Workflow{Name: "wf", Shell: "bash"}
	task := &workflow.WorkflowTask{Id: "c", Run: "echo partial; sleep 10", TimeoutMs: 200}
	ex := NewExecutor(expression.New(nil))
	start := time.Now()
	r := ex.Run(newCtx(wf), task, nil)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, workflow.StatusTimedOut, r.Status)
	assert.Contains(t, r.Output.StandardOutput, "partial")
	assert.Contains(t, r.ErrorMessage, "timeout")
	assert.Equal(t, -1, r.ExitCode)
}

func TestExecutorRetriesExhaustedStillFails(t *testing.T) {
	wf := &workflow.Workflow{Name: "wf", Shell: "bash"}
	task := &workflow.WorkflowTask{Id: "flaky", Run: "exit 1", RetryCount: 2, RetryDelayMs: 5}
	ex := NewExecutor(expression.New(nil))
	r := ex.Run(newCtx(wf), task, nil)
	assert.True(t, r.IsFailed())
}

func TestExecutorPipeInput(t *testing.T) {
	wf := &workflow.Workflow{Name: "wf", Shell: "bash"}
	upstream := &workflow.WorkflowTask{Id: "up", Run: "echo hello"}
	ex := NewExecutor(expression.New(nil))
	wctx := newCtx(wf)
	upResult := ex.Run(wctx, upstream, nil)
	wctx.Results.Set("up", upResult)

	downstream := &workflow.WorkflowTask{
		Id:    "down",
		Run:   "cat",
		Input: workflow.TaskInput{Type: workflow.InputPipe, Value: "${{ tasks.up.output }}"},
	}
	r := ex.Run(wctx, downstream, nil)
	assert.True(t, r.IsSuccess())
	assert.Contains(t, r.Output.StandardOutput, "hello")
}
