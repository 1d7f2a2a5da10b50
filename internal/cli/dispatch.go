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
	"time"

	"github.com/spf13/cobra"
)

// newDispatchCommand is a thin alias over the root run path for scripted
// one-off invocations, e.g. from a CI step that wants a stable subcommand
// name rather than the bare positional form.
func newDispatchCommand() *cobra.Command {
	var (
		dryRun     bool
		quiet      bool
		timeout    time.Duration
		paramPairs []string
		envPairs   []string
	)

	cmd := &cobra.Command{
		Use:   "dispatch <workflow.yaml>",
		Short: "Run a workflow once and exit (non-interactive form of the root command)",
		Args:  cobra.ExactArgs(1),
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
				DryRun: dryRun, Quiet: quiet, Timeout: timeout,
				Env: env, Params: params, NoCommands: false,
			}
			if code := runOnce(cmd.Context(), args[0], opts); code != 0 {
				return &ExitError{Code: code}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "plan the run without executing tasks")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress output")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "override the workflow's default task timeout")
	cmd.Flags().StringArrayVarP(&paramPairs, "param", "p", nil, "workflow parameter, key=value (repeatable)")
	cmd.Flags().StringArrayVarP(&envPairs, "env", "e", nil, "additional environment variable, KEY=VALUE (repeatable)")
	return cmd
}
