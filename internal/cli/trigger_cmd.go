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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cryonayes/workflow-engine-sub000/internal/daemon/scheduler"
	"github.com/cryonayes/workflow-engine-sub000/internal/daemon/trigger"
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow"
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow/expression"
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow/loader"
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow/runner"
)

func newTriggerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Inspect and exercise trigger rule files",
	}
	cmd.AddCommand(
		newTriggerValidateCommand(),
		newTriggerListCommand(),
		newTriggerTestCommand(),
	)
	return cmd
}

func newTriggerValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <triggers.yaml>",
		Short: "Parse a trigger rules file without running anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := loader.LoadTriggers(args[0])
			if err != nil {
				fmt.Println(RenderError(err.Error()))
				return &ExitError{Code: 1}
			}
			if _, err := trigger.NewMatcher(rules); err != nil {
				fmt.Println(RenderError(err.Error()))
				return &ExitError{Code: 1}
			}
			fmt.Println(RenderOK(fmt.Sprintf("%d trigger rules valid", len(rules))))
			return nil
		},
	}
}

func newTriggerListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list <triggers.yaml>",
		Short: "List the rules in a trigger rules file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := loader.LoadTriggers(args[0])
			if err != nil {
				fmt.Println(RenderError(err.Error()))
				return &ExitError{Code: 1}
			}
			for _, rule := range rules {
				fmt.Printf("%-20s  %-10s  %s\n", rule.Name, rule.Type, rule.WorkflowPath)
			}
			return nil
		},
	}
}

// newTriggerTestCommand matches a single synthetic message against a trigger
// rules file and reports the matches. --dry-run defaults to true; only with
// --dry-run=false are the matched rules dispatched for real — useful for
// exercising a rules file before wiring a live listener.
func newTriggerTestCommand() *cobra.Command {
	var (
		source string
		text   string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "test <triggers.yaml>",
		Short: "Match (and optionally dispatch) a synthetic message against a trigger rules file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := loader.LoadTriggers(args[0])
			if err != nil {
				fmt.Println(RenderError(err.Error()))
				return &ExitError{Code: 1}
			}
			matcher, err := trigger.NewMatcher(rules)
			if err != nil {
				fmt.Println(RenderError(err.Error()))
				return &ExitError{Code: 1}
			}

			srcType, err := toSourceType(source)
			if err != nil {
				return err
			}
			msg := trigger.IncomingMessage{Source: srcType, Text: text}
			matches := matcher.Match(msg)
			if len(matches) == 0 {
				fmt.Println(RenderWarn("no rule matched"))
				return nil
			}
			for _, m := range matches {
				fmt.Println(RenderOK("matched rule " + m.Rule.Name))
			}

			if dryRun {
				return nil
			}

			cfg := loadConfig()
			logger := newLogger(cfg)
			r := runner.New(expression.New(logger), logger)
			dispatcher := trigger.NewDispatcher(r, scheduler.DefaultWorkflowLoader, logger)
			for _, m := range matches {
				runID, err := dispatcher.DispatchAsync(cmd.Context(), m)
				if err != nil {
					fmt.Println(RenderError(fmt.Sprintf("%s: %v", m.Rule.Name, err)))
					continue
				}
				fmt.Println(RenderOK(fmt.Sprintf("%s: started run %s", m.Rule.Name, runID)))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "http", "message source: telegram|discord|slack|http|filewatch")
	cmd.Flags().StringVar(&text, "text", "", "message text to match")
	cmd.Flags().BoolVar(&dryRun, "dry-run", true, "only report matches, don't dispatch")
	return cmd
}

func toSourceType(s string) (workflow.TriggerSourceType, error) {
	switch s {
	case "telegram":
		return workflow.SourceTelegram, nil
	case "discord":
		return workflow.SourceDiscord, nil
	case "slack":
		return workflow.SourceSlack, nil
	case "http":
		return workflow.SourceHTTP, nil
	case "filewatch":
		return workflow.SourceFileWatch, nil
	default:
		return "", fmt.Errorf("unknown --source %q", s)
	}
}
