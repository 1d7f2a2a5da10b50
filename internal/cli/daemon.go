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
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/cryonayes/workflow-engine-sub000/internal/daemon/scheduler"
	"github.com/cryonayes/workflow-engine-sub000/internal/daemon/trigger"
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow"
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow/expression"
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow/loader"
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow/runner"
)

func newDaemonCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the cron scheduler and trigger ingress as a long-lived process",
	}
	cmd.AddCommand(newDaemonRunCommand())
	return cmd
}

func newDaemonRunCommand() *cobra.Command {
	var (
		triggersPath string
		watchRoot    string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the scheduler daemon and trigger listeners and block until signaled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			logger := newLogger(cfg)
			ctx := cmd.Context()

			storage, closeStorage, err := openScheduleStorage(cfg)
			if err != nil {
				return err
			}
			defer closeStorage()

			r := runner.New(expression.New(logger), logger)

			d, err := scheduler.New(storage, r, logger)
			if err != nil {
				return fmt.Errorf("start scheduler daemon: %w", err)
			}
			d.OnCompletion(func(c scheduler.RunCompletion) {
				logger.Info("schedule run completed",
					slog.String("schedule_id", c.ScheduleID), slog.String("run_id", c.RunID),
					slog.String("status", string(c.Status)), slog.Duration("duration", c.Duration))
			})
			d.StartAsync(ctx)
			defer d.StopAsync(0)

			var rules []*workflow.TriggerRule
			if triggersPath != "" {
				rules, err = loader.LoadTriggers(triggersPath)
				if err != nil {
					return fmt.Errorf("load triggers: %w", err)
				}
			}
			matcher, err := trigger.NewMatcher(rules)
			if err != nil {
				return fmt.Errorf("build trigger matcher: %w", err)
			}

			dispatcher := trigger.NewDispatcher(r, scheduler.DefaultWorkflowLoader, logger)
			svc := trigger.NewService(matcher, dispatcher, logger)
			svc.Subscribe(func(ev trigger.Event) {
				logger.Info("trigger event", slog.String("kind", string(ev.Kind)), slog.String("rule", ev.RuleName))
			})

			if err := svc.AddListener(ctx, trigger.NewHTTPListener(cfg.ListenAddr, cfg.SlackSigningSecret, cfg.HTTPRatePerSecond, cfg.HTTPBurst, logger)); err != nil {
				return fmt.Errorf("start http listener: %w", err)
			}
			if cfg.TelegramBotToken != "" {
				if err := svc.AddListener(ctx, trigger.NewTelegramListener(cfg.TelegramBotToken, logger)); err != nil {
					return fmt.Errorf("start telegram listener: %w", err)
				}
			}
			if cfg.DiscordBotToken != "" {
				if err := svc.AddListener(ctx, trigger.NewDiscordListener(cfg.DiscordBotToken, logger)); err != nil {
					return fmt.Errorf("start discord listener: %w", err)
				}
			}
			if watchRoot != "" {
				fw, err := trigger.NewFileWatchListener(watchRoot, nil, nil, 300*time.Millisecond, logger)
				if err != nil {
					return fmt.Errorf("start file watch listener: %w", err)
				}
				if err := svc.AddListener(ctx, fw); err != nil {
					return fmt.Errorf("start file watch listener: %w", err)
				}
			}

			svc.Start(ctx)
			defer svc.Stop()

			metricsMux := http.NewServeMux()
			metricsMux.Handle("/metrics", promhttp.Handler())
			metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}
			go func() {
				if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("metrics server exited", slog.Any("error", err))
				}
			}()
			defer metricsServer.Close()

			fmt.Println(RenderOK(fmt.Sprintf("daemon running (webhooks on %s, metrics on %s), press ctrl-c to stop", cfg.ListenAddr, cfg.MetricsAddr)))
			<-ctx.Done()
			fmt.Println(RenderHeader("shutting down"))
			return &ExitError{Code: 130}
		},
	}
	cmd.Flags().StringVar(&triggersPath, "triggers", "", "path to a trigger rules YAML file")
	cmd.Flags().StringVar(&watchRoot, "watch-trigger-root", "", "root directory for filewatch-sourced trigger rules")
	return cmd
}
