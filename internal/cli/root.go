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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cryonayes/workflow-engine-sub000/internal/daemon/filewatcher"
)

// ExitError lets a subcommand propagate a precise process exit code through
// cobra's error return without relying on string-matching RunE's error.
type ExitError struct {
	Code  int
	Cause error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return fmt.Sprintf("exit %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Cause }

// HandleExitError prints err (if any) and exits with its carried code, or
// with 1 for any other non-nil error.
func HandleExitError(err error) {
	if err == nil {
		return
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Cause != nil {
			fmt.Fprintln(os.Stderr, "Error:", exitErr.Cause)
		}
		os.Exit(exitErr.Code)
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}

// NewRootCommand builds the full command tree: the bare `<workflow.yaml>`
// invocation plus the validate/graph/schedule/daemon/dispatch/trigger
// subcommands.
func NewRootCommand() *cobra.Command {
	var (
		verbose    bool
		dryRun     bool
		quiet      bool
		timeout    time.Duration
		workingDir string
		envPairs   []string
		step       bool
		noCommands bool
		paramPairs []string
		watch      bool
		debounce   time.Duration
		watchPath  string
	)

	root := &cobra.Command{
		Use:   "workflow-engine <workflow.yaml>",
		Short: "Run and manage shell-task workflows",
		Long: `workflow-engine executes a DAG of shell tasks described in a workflow
YAML file: it expands any matrix tasks, plans dependency-ordered waves, and
runs each wave with bounded parallelism, retrying and capturing output per
task configuration.`,
		Example: `  # Run a workflow
  workflow-engine deploy.yaml

  # Dry run, verbose output
  workflow-engine deploy.yaml --dry-run --verbose

  # Re-run on file changes
  workflow-engine deploy.yaml --watch --watch-path .`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := parseKV(envPairs)
			if err != nil {
				return err
			}
			params, err := parseKV(paramPairs)
			if err != nil {
				return err
			}
			opts := runOptions{
				Verbose: verbose, DryRun: dryRun, Quiet: quiet, Timeout: timeout,
				WorkingDir: workingDir, Env: env, Step: step, NoCommands: noCommands,
				Params: params, Watch: watch, Debounce: debounce, WatchPath: watchPath,
			}
			code := runWithWatch(cmd.Context(), args[0], opts)
			if code != 0 {
				return &ExitError{Code: code}
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.BoolVarP(&verbose, "verbose", "v", false, "stream task stdout/stderr")
	flags.BoolVarP(&dryRun, "dry-run", "n", false, "plan the run without executing tasks")
	flags.BoolVarP(&quiet, "quiet", "q", false, "suppress progress output")
	flags.DurationVarP(&timeout, "timeout", "t", 0, "override the workflow's default task timeout")
	flags.StringVarP(&workingDir, "working-dir", "C", "", "override the workflow's working directory")
	flags.StringArrayVarP(&envPairs, "env", "e", nil, "additional environment variable, KEY=VALUE (repeatable)")
	flags.BoolVarP(&step, "step", "s", false, "pause for confirmation between tasks")
	flags.BoolVar(&noCommands, "no-commands", false, "do not record resolved commands on WorkflowContext")
	flags.StringArrayVarP(&paramPairs, "param", "p", nil, "trigger/workflow parameter, key=value (repeatable)")
	flags.BoolVarP(&watch, "watch", "w", false, "re-run the workflow whenever a watched file changes")
	flags.DurationVar(&debounce, "debounce", 300*time.Millisecond, "file-change debounce window for --watch")
	flags.StringVar(&watchPath, "watch-path", ".", "root directory to watch with --watch")

	root.AddCommand(
		newValidateCommand(),
		newGraphCommand(),
		newScheduleCommand(),
		newDaemonCommand(),
		newDispatchCommand(),
		newTriggerCommand(),
	)
	return root
}

// runWithWatch runs path once, and if opts.Watch is set, keeps re-running it
// on every debounced filesystem change under opts.WatchPath until ctx is
// cancelled. The exit code reflects only the final run.
func runWithWatch(ctx context.Context, path string, opts runOptions) int {
	if !opts.Watch {
		return runOnce(ctx, path, opts)
	}

	code := runOnce(ctx, path, opts)

	matcher, err := filewatcher.NewPatternMatcher(nil, filewatcher.DefaultExcludePatterns())
	if err != nil {
		fmt.Println(RenderError(fmt.Sprintf("build watch matcher: %v", err)))
		return 1
	}

	changed := make(chan struct{}, 1)
	deb := filewatcher.NewDebouncer(opts.Debounce, func([]*filewatcher.Change) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})

	w, err := filewatcher.NewWatcher(opts.WatchPath, matcher, deb, slog.Default())
	if err != nil {
		fmt.Println(RenderError(fmt.Sprintf("start file watcher: %v", err)))
		return 1
	}
	defer w.Stop()
	w.Start(ctx)

	for {
		select {
		case <-ctx.Done():
			return code
		case <-changed:
			fmt.Println(RenderHeader("change detected, re-running"))
			code = runOnce(ctx, path, opts)
		}
	}
}
