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

package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow"
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow/expression"
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow/loader"
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow/runner"
)

// runOptions mirrors the top-level flag surface shared by the root command
// and `dispatch`.
type runOptions struct {
	Verbose      bool
	DryRun       bool
	Quiet        bool
	Timeout      time.Duration
	WorkingDir   string
	Env          map[string]string
	Step         bool
	NoCommands   bool
	Params       map[string]string
	Watch        bool
	Debounce     time.Duration
	WatchPath    string
}

func parseKV(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("invalid key=value pair %q", p)
		}
		out[k] = v
	}
	return out, nil
}

// runOnce loads, plans and runs path once, printing progress unless quiet,
// and returns the process exit code (0 success, 1 failure).
func runOnce(ctx context.Context, path string, opts runOptions) int {
	wf, err := loader.Load(path)
	if err != nil {
		fmt.Println(RenderError(fmt.Sprintf("load workflow: %v", err)))
		return 1
	}

	if opts.WorkingDir != "" {
		wf.WorkingDirectory = opts.WorkingDir
	}
	if opts.Timeout > 0 {
		wf.DefaultTimeoutMs = opts.Timeout.Milliseconds()
	}

	r := runner.New(expression.New(nil), nil)

	var stepCtl *runner.ChannelStepController
	if opts.Step {
		stepCtl = runner.NewChannelStepController()
	}

	runOpts := runner.RunOptions{
		DryRun:         opts.DryRun,
		AdditionalEnv:  opts.Env,
		Parameters:     opts.Params,
		ShowCommands:   !opts.NoCommands,
		StepMode:       opts.Step,
		StepController: stepCtl,
		OnContextCreated: func(wctx *workflow.WorkflowContext) {
			if !opts.Quiet {
				fmt.Println(RenderHeader(fmt.Sprintf("run %s: %s", wctx.RunID, wf.Name)))
			}
			r.Subscribe(wctx.RunID, func(ev runner.Event) {
				printEvent(ev, opts)
				if opts.Step && ev.Kind == runner.EventStepPaused {
					go awaitStep(stepCtl, ev)
				}
			})
		},
	}

	wctx, err := r.Run(ctx, wf, runOpts)
	if err != nil {
		fmt.Println(RenderError(fmt.Sprintf("run failed to start: %v", err)))
		return 1
	}

	if wctx.Status() != workflow.OverallSucceeded {
		return 1
	}
	return 0
}

// awaitStep prompts on stdin and releases ctl once the user presses enter.
// It runs in its own goroutine so the runner's blocking WaitAsync call can
// start receiving before anything is sent.
func awaitStep(ctl *runner.ChannelStepController, ev runner.Event) {
	if ev.IsWaitingToStart {
		fmt.Print("press enter to start... ")
	} else {
		fmt.Printf("press enter to continue after %s... ", ev.CompletedTaskID)
	}
	bufio.NewReader(os.Stdin).ReadString('\n')
	ctl.Continue <- struct{}{}
}

func printEvent(ev runner.Event, opts runOptions) {
	if opts.Quiet {
		return
	}
	switch ev.Kind {
	case runner.EventTaskStarted:
		fmt.Printf("  %s %s\n", RenderMuted("->"), ev.TaskID)
	case runner.EventTaskOutput:
		if opts.Verbose {
			fmt.Println("    " + ev.Line)
		}
	case runner.EventTaskCompleted:
		if ev.Result != nil && ev.Result.IsSuccess() {
			fmt.Printf("  %s\n", RenderOK(ev.TaskID))
		} else {
			fmt.Printf("  %s (%s)\n", RenderError(ev.TaskID), ev.Result.ErrorMessage)
		}
	case runner.EventTaskSkipped:
		fmt.Printf("  %s\n", RenderWarn(ev.TaskID+" skipped"))
	case runner.EventWorkflowDone:
		ok := ev.Status == workflow.OverallSucceeded
		fmt.Printf("%s %d succeeded, %d failed, %d skipped (%s)\n",
			RenderStatus(ok, strings.ToUpper(string(ev.Status))), ev.SuccessCount, ev.FailCount, ev.SkipCount, ev.Duration.Round(time.Millisecond))
	}
}
