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
	"os"

	"github.com/cryonayes/workflow-engine-sub000/internal/config"
	"github.com/cryonayes/workflow-engine-sub000/internal/daemon/scheduler"
	ilog "github.com/cryonayes/workflow-engine-sub000/internal/log"
)

// loadConfig layers environment overrides on top of the built-in defaults,
// the same precedence every subcommand that touches daemon state uses.
func loadConfig() *config.Config {
	return config.FromEnv()
}

// newLogger builds the process logger from cfg's level/format.
func newLogger(cfg *config.Config) *slog.Logger {
	return ilog.New(&ilog.Config{
		Level:  cfg.LogLevel,
		Format: ilog.Format(cfg.LogFormat),
		Output: os.Stderr,
	})
}

// openScheduleStorage opens the schedule store named by cfg, selecting the
// json or sqlite driver.
func openScheduleStorage(cfg *config.Config) (scheduler.Storage, func() error, error) {
	switch cfg.ScheduleStoreDriver {
	case "sqlite":
		s, err := scheduler.NewSqliteStorage(cfg.ScheduleStorePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite schedule store: %w", err)
		}
		return s, s.Close, nil
	case "json", "":
		return scheduler.NewJSONStorage(cfg.ScheduleStorePath), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown schedule store driver %q", cfg.ScheduleStoreDriver)
	}
}
