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

package trigger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cryonayes/workflow-engine-sub000/internal/daemon/scheduler"
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow"
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow/runner"
)

// WorkflowLoader parses a workflow file from disk.
type WorkflowLoader func(path string) (*workflow.Workflow, error)

// Dispatcher loads the workflow a matched trigger rule points to, resolves
// its parameters against the match, and hands it to the runner.
type Dispatcher struct {
	runner *runner.Runner
	load   WorkflowLoader
	logger *slog.Logger
}

// NewDispatcher builds a Dispatcher that runs workflows via r. A nil loader
// defaults to the daemon's shared YAML workflow loader.
func NewDispatcher(r *runner.Runner, loader WorkflowLoader, logger *slog.Logger) *Dispatcher {
	if loader == nil {
		loader = scheduler.DefaultWorkflowLoader
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{runner: r, load: loader, logger: logger.With(slog.String("component", "trigger-dispatcher"))}
}

// DispatchAsync starts m's workflow in the background and returns its run id
// as soon as the run context is minted, without waiting for the workflow to
// finish executing. A load or plan-build failure is returned synchronously.
func (d *Dispatcher) DispatchAsync(ctx context.Context, m Match) (string, error) {
	wf, err := d.load(m.Rule.WorkflowPath)
	if err != nil {
		return "", fmt.Errorf("load workflow for trigger %q: %w", m.Rule.Name, err)
	}

	params := ResolveParameters(m.Rule.Parameters, m)
	idCh := make(chan string, 1)
	errCh := make(chan error, 1)

	go func() {
		_, runErr := d.runner.Run(ctx, wf, runner.RunOptions{
			Parameters: params,
			OnContextCreated: func(wctx *workflow.WorkflowContext) {
				idCh <- wctx.RunID
			},
		})
		if runErr != nil {
			d.logger.Error("triggered run failed to start", slog.String("trigger", m.Rule.Name), slog.Any("error", runErr))
			select {
			case errCh <- runErr:
			default:
			}
		}
	}()

	select {
	case runID := <-idCh:
		if m.Rule.ResponseTemplate != "" && m.Message.Respond != nil {
			text := ResolveResponseTemplate(m.Rule.ResponseTemplate, m, map[string]string{"runId": runID})
			if respErr := m.Message.Respond(ctx, text); respErr != nil {
				d.logger.Warn("failed to send trigger response", slog.String("trigger", m.Rule.Name), slog.Any("error", respErr))
			}
		}
		return runID, nil
	case runErr := <-errCh:
		return "", fmt.Errorf("start run for trigger %q: %w", m.Rule.Name, runErr)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
