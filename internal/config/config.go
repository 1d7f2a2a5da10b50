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

// Package config carries the engine's process-wide settings, loaded from
// environment variables: schedule store, listener addresses and credentials,
// admission rate, logging, and default timeout and shell values.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds process-wide defaults sourced from environment variables
// (see FromEnv).
type Config struct {
	// DefaultTimeout is loaded from WORKFLOW_DEFAULT_TIMEOUT_MS. No other
	// package reads it; the executor's own fallback is exec.DefaultTaskTimeout.
	DefaultTimeout time.Duration

	// DefaultShell is loaded from WORKFLOW_DEFAULT_SHELL. No other package
	// reads it; the executor's own fallback shell is bash (cmd on Windows).
	DefaultShell string

	// ScheduleStorePath is the default JSON file backing the cron daemon's
	// durable schedule store.
	ScheduleStorePath string

	// ScheduleStoreDriver selects "json" (default) or "sqlite".
	ScheduleStoreDriver string

	// ListenAddr is the HTTP webhook listener's bind address.
	ListenAddr string

	// MetricsAddr is the Prometheus /metrics scrape endpoint's bind address,
	// kept separate from ListenAddr since the webhook listener owns its own
	// server and routes.
	MetricsAddr string

	// TelegramBotToken and DiscordBotToken authenticate the respective
	// trigger listeners; a listener is only started when its token is set.
	TelegramBotToken string
	DiscordBotToken  string

	// SlackSigningSecret verifies inbound Slack webhook requests routed
	// through the HTTP listener.
	SlackSigningSecret string

	// HTTPRatePerSecond and HTTPBurst bound the webhook listener's admission
	// rate.
	HTTPRatePerSecond float64
	HTTPBurst         int

	// LogLevel and LogFormat feed internal/log.Config.
	LogLevel  string
	LogFormat string
}

// Default returns the engine's built-in defaults.
func Default() *Config {
	return &Config{
		DefaultTimeout:      10 * time.Minute,
		DefaultShell:        "bash",
		ScheduleStorePath:   "schedules.json",
		ScheduleStoreDriver: "json",
		ListenAddr:          ":8089",
		MetricsAddr:         ":9090",
		HTTPRatePerSecond:   5,
		HTTPBurst:           10,
		LogLevel:            "info",
		LogFormat:           "json",
	}
}

// FromEnv overlays environment variables onto Default(), mirroring the
// teacher's FromEnv pattern for internal/log.Config.
func FromEnv() *Config {
	c := Default()
	if v := os.Getenv("WORKFLOW_DEFAULT_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.DefaultTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("WORKFLOW_DEFAULT_SHELL"); v != "" {
		c.DefaultShell = v
	}
	if v := os.Getenv("WORKFLOW_SCHEDULE_STORE"); v != "" {
		c.ScheduleStorePath = v
	}
	if v := os.Getenv("WORKFLOW_SCHEDULE_STORE_DRIVER"); v != "" {
		c.ScheduleStoreDriver = v
	}
	if v := os.Getenv("WORKFLOW_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("WORKFLOW_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv("WORKFLOW_TELEGRAM_BOT_TOKEN"); v != "" {
		c.TelegramBotToken = v
	}
	if v := os.Getenv("WORKFLOW_DISCORD_BOT_TOKEN"); v != "" {
		c.DiscordBotToken = v
	}
	if v := os.Getenv("WORKFLOW_SLACK_SIGNING_SECRET"); v != "" {
		c.SlackSigningSecret = v
	}
	if v := os.Getenv("WORKFLOW_HTTP_RATE_PER_SECOND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.HTTPRatePerSecond = f
		}
	}
	if v := os.Getenv("WORKFLOW_HTTP_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.HTTPBurst = n
		}
	}
	if v := os.Getenv("WORKFLOW_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("WORKFLOW_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	return c
}
