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

package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cryonayes/workflow-engine-sub000/internal/metrics"
	ierrors "github.com/cryonayes/workflow-engine-sub000/pkg/errors"
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow"
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow/exec"
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow/expression"
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow/matrix"
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow/plan"
)

// Runner drives wave-by-wave execution of a Workflow's ExecutionPlan.
type Runner struct {
	Executor *exec.Executor
	logger   *slog.Logger

	mu          sync.Mutex
	running     map[string]*runState
}

// runState tracks the in-flight state of one run, used by CancelTask,
// CancelWorkflow, Subscribe and RetryTaskAsync.
type runState struct {
	wctx *workflow.WorkflowContext
	bc   *broadcaster
	// activeTasks is the set of task ids currently being executed (not yet
	// recorded in Results); RetryTaskAsync refuses to touch these.
	mu          sync.Mutex
	activeTasks map[string]bool
}

// New creates a Runner using the given expression evaluator.
func New(evaluator *expression.Evaluator, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		Executor: exec.NewExecutor(evaluator),
		logger:   logger,
		running:  make(map[string]*runState),
	}
}

// sink adapts the broadcaster to a per-task exec.ProgressSink.
type taskSink struct {
	bc     *broadcaster
	runID  string
	taskID string
}

func (s taskSink) OnEvent(ev exec.Event) {
	if ev.Kind != exec.EventStdOut && ev.Kind != exec.EventStdErr && ev.Kind != exec.EventRetry {
		return
	}
	s.bc.Emit(Event{
		Kind:   EventTaskOutput,
		Time:   time.Now(),
		RunID:  s.runID,
		TaskID: s.taskID,
		Line:   ev.Line,
		Stream: ev.Kind,
	})
}

// Run expands the workflow's matrices, builds the execution plan, and drives
// it wave by wave. It returns the final WorkflowContext once the run (or dry
// run) completes.
func (r *Runner) Run(ctx context.Context, wf *workflow.Workflow, opts RunOptions) (*workflow.WorkflowContext, error) {
	expanded := *wf
	expanded.Tasks = matrix.Expand(wf.Tasks)

	execPlan, err := plan.Build(&expanded)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	declaredEnv := make(map[string]string, len(wf.Environment)+len(opts.AdditionalEnv))
	for k, v := range wf.Environment {
		declaredEnv[k] = v
	}
	for k, v := range opts.AdditionalEnv {
		declaredEnv[k] = v
	}

	wctx := workflow.NewWorkflowContext(ctx, runID, &expanded, declaredEnv, opts.Parameters, opts.ShowCommands)

	bc := &broadcaster{}
	state := &runState{wctx: wctx, bc: bc, activeTasks: map[string]bool{}}
	r.mu.Lock()
	r.running[runID] = state
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.running, runID)
		r.mu.Unlock()
	}()

	totalTasks := 0
	for _, w := range execPlan.Waves {
		totalTasks += len(w)
	}
	totalTasks += len(execPlan.AlwaysTasks)

	bc.Emit(Event{Kind: EventWorkflowStarted, Time: time.Now(), RunID: runID, TotalTasks: totalTasks, Plan: execPlan})
	if opts.OnContextCreated != nil {
		opts.OnContextCreated(wctx)
	}

	if opts.DryRun {
		now := time.Now()
		for _, t := range allPlanTasks(execPlan) {
			wctx.Results.Set(t.Id, &workflow.TaskResult{
				TaskId: t.Id, Status: workflow.StatusSkipped, ExitCode: -1,
				ErrorMessage: "dry run", StartTime: now, EndTime: now,
			})
		}
		wctx.SetStatus(workflow.OverallSucceeded)
		r.emitCompletion(bc, wctx, execPlan)
		return wctx, nil
	}

	stepCtl := opts.StepController
	if stepCtl == nil {
		stepCtl = autoStepController{}
	}
	if opts.StepMode {
		bc.Emit(Event{Kind: EventStepPaused, Time: time.Now(), RunID: runID, IsWaitingToStart: true})
		if err := stepCtl.WaitAsync(wctx.Context()); err != nil {
			wctx.SetStatus(workflow.OverallCancelled)
			r.emitCompletion(bc, wctx, execPlan)
			return wctx, nil
		}
		bc.Emit(Event{Kind: EventStepResumed, Time: time.Now(), RunID: runID})
	}

	maxParallel := expanded.MaxParallelism
	if opts.MaxParallelism != 0 {
		maxParallel = opts.MaxParallelism
	}

	stopRegularWaves := false
	for i, wave := range execPlan.Waves {
		if stopRegularWaves {
			break
		}
		r.runWave(wctx, state, bc, wave, i, maxParallel, opts, stepCtl)
		if wctx.IsCancelled() {
			break
		}
		if waveHasBlockingFailure(wctx, wave) {
			stopRegularWaves = true
		}
	}

	if len(execPlan.AlwaysTasks) > 0 {
		r.runWave(wctx, state, bc, execPlan.AlwaysTasks, len(execPlan.Waves), maxParallel, opts, stepCtl)
	}

	wctx.SetStatus(deriveStatus(wctx, execPlan))
	r.emitCompletion(bc, wctx, execPlan)
	return wctx, nil
}

func allPlanTasks(p *workflow.ExecutionPlan) []*workflow.WorkflowTask {
	var out []*workflow.WorkflowTask
	for _, w := range p.Waves {
		out = append(out, w...)
	}
	out = append(out, p.AlwaysTasks...)
	return out
}

func waveHasBlockingFailure(wctx *workflow.WorkflowContext, wave []*workflow.WorkflowTask) bool {
	for _, t := range wave {
		r, ok := wctx.Results.Get(t.Id)
		if !ok {
			continue
		}
		if r.IsFailed() && !t.ContinueOnError {
			return true
		}
	}
	return false
}

func deriveStatus(wctx *workflow.WorkflowContext, p *workflow.ExecutionPlan) workflow.OverallStatus {
	if wctx.IsCancelled() {
		return workflow.OverallCancelled
	}
	for _, t := range allPlanTasks(p) {
		r, ok := wctx.Results.Get(t.Id)
		if !ok {
			continue
		}
		if r.IsFailed() && !t.ContinueOnError {
			return workflow.OverallFailed
		}
	}
	return workflow.OverallSucceeded
}

// runWave launches every task in wave concurrently, bounded by maxParallel,
// and waits for all of them before returning.
func (r *Runner) runWave(wctx *workflow.WorkflowContext, state *runState, bc *broadcaster, wave []*workflow.WorkflowTask, waveIndex, maxParallel int, opts RunOptions, stepCtl StepController) {
	bc.Emit(Event{Kind: EventWaveStarted, Time: time.Now(), RunID: wctx.RunID, WaveIndex: waveIndex})

	g, _ := errgroup.WithContext(wctx.Context())
	if maxParallel > 0 {
		g.SetLimit(maxParallel)
	}

	for _, t := range wave {
		t := t
		g.Go(func() error {
			r.runOneTask(wctx, state, bc, t, waveIndex, opts, stepCtl)
			return nil
		})
	}
	_ = g.Wait()

	metrics.WavesCompleted.Inc()
	bc.Emit(Event{Kind: EventWaveCompleted, Time: time.Now(), RunID: wctx.RunID, WaveIndex: waveIndex})
}

func (r *Runner) runOneTask(wctx *workflow.WorkflowContext, state *runState, bc *broadcaster, t *workflow.WorkflowTask, waveIndex int, opts RunOptions, stepCtl StepController) {
	state.mu.Lock()
	state.activeTasks[t.Id] = true
	state.mu.Unlock()
	defer func() {
		state.mu.Lock()
		delete(state.activeTasks, t.Id)
		state.mu.Unlock()
	}()

	bc.Emit(Event{Kind: EventTaskStarted, Time: time.Now(), RunID: wctx.RunID, WaveIndex: waveIndex, TaskID: t.Id})

	metrics.TasksRunning.Inc()
	result := r.Executor.Run(wctx, t, taskSink{bc: bc, runID: wctx.RunID, taskID: t.Id})
	metrics.TasksRunning.Dec()
	metrics.TasksCompleted.WithLabelValues(string(result.Status)).Inc()
	wctx.Results.Set(t.Id, result)

	switch result.Status {
	case workflow.StatusSkipped:
		bc.Emit(Event{Kind: EventTaskSkipped, Time: time.Now(), RunID: wctx.RunID, WaveIndex: waveIndex, TaskID: t.Id, Result: result})
	case workflow.StatusCancelled:
		bc.Emit(Event{Kind: EventTaskCancelled, Time: time.Now(), RunID: wctx.RunID, WaveIndex: waveIndex, TaskID: t.Id, Result: result})
	default:
		bc.Emit(Event{Kind: EventTaskCompleted, Time: time.Now(), RunID: wctx.RunID, WaveIndex: waveIndex, TaskID: t.Id, Result: result})
	}

	if opts.StepMode {
		bc.Emit(Event{Kind: EventStepPaused, Time: time.Now(), RunID: wctx.RunID, CompletedTaskID: t.Id})
		_ = stepCtl.WaitAsync(wctx.Context())
		bc.Emit(Event{Kind: EventStepResumed, Time: time.Now(), RunID: wctx.RunID})
	}
}

func (r *Runner) emitCompletion(bc *broadcaster, wctx *workflow.WorkflowContext, p *workflow.ExecutionPlan) {
	var succ, fail, skip int
	for _, t := range allPlanTasks(p) {
		res, ok := wctx.Results.Get(t.Id)
		if !ok {
			continue
		}
		switch {
		case res.WasSkipped():
			skip++
		case res.IsFailed():
			fail++
		default:
			succ++
		}
	}
	metrics.WorkflowRuns.WithLabelValues(string(wctx.Status())).Inc()
	bc.Emit(Event{
		Kind: EventWorkflowDone, Time: time.Now(), RunID: wctx.RunID,
		Status: wctx.Status(), Duration: time.Since(wctx.StartTime),
		SuccessCount: succ, FailCount: fail, SkipCount: skip,
	})
}

// CancelTask cancels a single in-flight task, leaving the rest of the run to
// continue.
func (r *Runner) CancelTask(runID, taskID string) bool {
	r.mu.Lock()
	state, ok := r.running[runID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	return state.wctx.Cancellation.Cancel(taskID)
}

// CancelWorkflow cancels the whole run's root context.
func (r *Runner) CancelWorkflow(runID string) bool {
	r.mu.Lock()
	state, ok := r.running[runID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	state.wctx.Cancel()
	return true
}

// Subscribe registers a subscriber for the given run's event stream. It is
// only valid to call this from within OnContextCreated or immediately after
// dispatching a run started concurrently (the caller is responsible for not
// racing Run's own emission of EventWorkflowStarted).
func (r *Runner) Subscribe(runID string, sub Subscriber) bool {
	r.mu.Lock()
	state, ok := r.running[runID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	state.bc.Subscribe(sub)
	return true
}

// RetryTaskAsync re-executes a single task whose current result is Failed or
// TimedOut, updating the result store and emitting fresh task events. It
// refuses while the task is still actively executing.
func (r *Runner) RetryTaskAsync(ctx context.Context, runID, taskID string) (*workflow.TaskResult, error) {
	r.mu.Lock()
	state, ok := r.running[runID]
	r.mu.Unlock()
	if !ok {
		return nil, ierrors.Wrapf(ierrors.New("run not found"), "run %s", runID)
	}

	state.mu.Lock()
	active := state.activeTasks[taskID]
	state.mu.Unlock()
	if active {
		return nil, fmt.Errorf("task %s is still executing", taskID)
	}

	prior, ok := state.wctx.Results.Get(taskID)
	if !ok {
		return nil, ierrors.Wrapf(ierrors.New("task has no prior result"), "task %s", taskID)
	}
	if prior.Status != workflow.StatusFailed && prior.Status != workflow.StatusTimedOut {
		return nil, fmt.Errorf("task %s is not retriable from status %s", taskID, prior.Status)
	}

	task := state.wctx.Workflow.TaskByID(taskID)
	if task == nil {
		return nil, ierrors.Wrapf(ierrors.New("task not found in workflow"), "task %s", taskID)
	}

	state.mu.Lock()
	state.activeTasks[taskID] = true
	state.mu.Unlock()
	defer func() {
		state.mu.Lock()
		delete(state.activeTasks, taskID)
		state.mu.Unlock()
	}()

	state.bc.Emit(Event{Kind: EventTaskStarted, Time: time.Now(), RunID: runID, TaskID: taskID})
	result := r.Executor.Run(state.wctx, task, taskSink{bc: state.bc, runID: runID, taskID: taskID})
	state.wctx.Results.Set(taskID, result)
	state.bc.Emit(Event{Kind: EventTaskCompleted, Time: time.Now(), RunID: runID, TaskID: taskID, Result: result})
	return result, nil
}
