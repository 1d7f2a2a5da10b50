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

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cryonayes/workflow-engine-sub000/internal/daemon/scheduler"
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow"
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow/expression"
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow/runner"
)

// openDaemon opens the configured schedule store and wraps it in a Daemon,
// without starting its tick loop. Callers that only read or mutate the
// schedule list (add/remove/list/enable/disable) don't need the loop
// running; only `daemon run` does.
func openDaemon() (*scheduler.Daemon, func(), error) {
	cfg := loadConfig()
	logger := newLogger(cfg)

	storage, closeStorage, err := openScheduleStorage(cfg)
	if err != nil {
		return nil, nil, err
	}

	r := runner.New(expression.New(logger), logger)
	d, err := scheduler.New(storage, r, logger)
	if err != nil {
		closeStorage()
		return nil, nil, err
	}
	return d, func() { closeStorage() }, nil
}

func newScheduleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage cron-triggered workflow schedules",
	}
	cmd.AddCommand(
		newScheduleAddCommand(),
		newScheduleRemoveCommand(),
		newScheduleListCommand(),
		newScheduleEnableCommand(),
		newScheduleDisableCommand(),
		newScheduleTriggerCommand(),
		newScheduleShowCommand(),
	)
	return cmd
}

func newScheduleAddCommand() *cobra.Command {
	var (
		name       string
		cron       string
		enabled    bool
		paramPairs []string
	)
	cmd := &cobra.Command{
		Use:   "add <workflow.yaml>",
		Short: "Register a new cron schedule for a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseKV(paramPairs)
			if err != nil {
				return err
			}
			d, closeFn, err := openDaemon()
			if err != nil {
				return err
			}
			defer closeFn()

			sch := &workflow.Schedule{
				Id:              uuid.NewString(),
				Name:            name,
				WorkflowPath:    args[0],
				CronExpression:  cron,
				Enabled:         enabled,
				InputParameters: params,
			}
			if err := d.AddSchedule(sch); err != nil {
				fmt.Println(RenderError(err.Error()))
				return &ExitError{Code: 1}
			}
			fmt.Println(RenderOK(fmt.Sprintf("schedule %s added (%s)", sch.Id, sch.CronExpression)))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name for the schedule")
	cmd.Flags().StringVar(&cron, "cron", "", "cron expression, e.g. \"*/5 * * * *\"")
	cmd.Flags().BoolVar(&enabled, "enabled", true, "whether the schedule starts enabled")
	cmd.Flags().StringArrayVarP(&paramPairs, "param", "p", nil, "workflow parameter, key=value (repeatable)")
	cmd.MarkFlagRequired("cron")
	return cmd
}

func newScheduleRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <schedule-id>",
		Short: "Remove a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, closeFn, err := openDaemon()
			if err != nil {
				return err
			}
			defer closeFn()
			if err := d.RemoveSchedule(args[0]); err != nil {
				fmt.Println(RenderError(err.Error()))
				return &ExitError{Code: 1}
			}
			fmt.Println(RenderOK("schedule removed"))
			return nil
		},
	}
}

func newScheduleListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, closeFn, err := openDaemon()
			if err != nil {
				return err
			}
			defer closeFn()
			for _, sch := range d.ListSchedules(nil) {
				status := "disabled"
				if sch.Enabled {
					status = "enabled"
				}
				fmt.Printf("%s  %-20s  %-20s  %s  [%s]\n", sch.Id, sch.Name, sch.CronExpression, sch.WorkflowPath, status)
			}
			return nil
		},
	}
}

func newScheduleShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <schedule-id>",
		Short: "Show details for one schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, closeFn, err := openDaemon()
			if err != nil {
				return err
			}
			defer closeFn()
			matches := d.ListSchedules(func(s *workflow.Schedule) bool { return s.Id == args[0] })
			if len(matches) == 0 {
				fmt.Println(RenderError("schedule not found: " + args[0]))
				return &ExitError{Code: 1}
			}
			sch := matches[0]
			fmt.Printf("id:       %s\n", sch.Id)
			fmt.Printf("name:     %s\n", sch.Name)
			fmt.Printf("cron:     %s\n", sch.CronExpression)
			fmt.Printf("workflow: %s\n", sch.WorkflowPath)
			fmt.Printf("enabled:  %v\n", sch.Enabled)
			if sch.LastRunAt != nil {
				fmt.Printf("last run: %s\n", sch.LastRunAt.Format("2006-01-02T15:04:05Z07:00"))
			}
			if sch.NextRunAt != nil {
				fmt.Printf("next run: %s\n", sch.NextRunAt.Format("2006-01-02T15:04:05Z07:00"))
			}
			return nil
		},
	}
}

func newScheduleEnableCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "enable <schedule-id>",
		Short: "Enable a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, closeFn, err := openDaemon()
			if err != nil {
				return err
			}
			defer closeFn()
			if err := d.EnableSchedule(args[0]); err != nil {
				fmt.Println(RenderError(err.Error()))
				return &ExitError{Code: 1}
			}
			fmt.Println(RenderOK("schedule enabled"))
			return nil
		},
	}
}

func newScheduleDisableCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <schedule-id>",
		Short: "Disable a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, closeFn, err := openDaemon()
			if err != nil {
				return err
			}
			defer closeFn()
			if err := d.DisableSchedule(args[0]); err != nil {
				fmt.Println(RenderError(err.Error()))
				return &ExitError{Code: 1}
			}
			fmt.Println(RenderOK("schedule disabled"))
			return nil
		},
	}
}

func newScheduleTriggerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "trigger <schedule-id>",
		Short: "Run a schedule immediately, outside its cron cadence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, closeFn, err := openDaemon()
			if err != nil {
				return err
			}
			defer closeFn()

			done := make(chan scheduler.RunCompletion, 1)
			d.OnCompletion(func(c scheduler.RunCompletion) { done <- c })

			runID, err := d.TriggerSchedule(cmd.Context(), args[0])
			if err != nil {
				fmt.Println(RenderError(err.Error()))
				return &ExitError{Code: 1}
			}

			for c := range done {
				if c.RunID != runID {
					continue
				}
				ok := c.Status == workflow.OverallSucceeded
				fmt.Println(RenderStatus(ok, fmt.Sprintf("run %s: %s", runID, c.Status)))
				if !ok {
					return &ExitError{Code: 1}
				}
				return nil
			}
			return nil
		},
	}
}
