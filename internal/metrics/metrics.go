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

// Package metrics exposes the engine's process-wide Prometheus collectors:
// wave/task counters from the runner, schedule-run counters from the cron
// daemon, and trigger-dispatch counters from the trigger service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TasksRunning is the number of tasks currently executing across all runs.
	TasksRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "workflow_engine_tasks_running",
		Help: "Number of tasks currently executing.",
	})

	// TasksCompleted counts finished tasks by terminal status.
	TasksCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_engine_tasks_completed_total",
		Help: "Total tasks completed, labeled by terminal status.",
	}, []string{"status"})

	// WavesCompleted counts completed execution-plan waves.
	WavesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "workflow_engine_waves_completed_total",
		Help: "Total execution-plan waves completed.",
	})

	// WorkflowRuns counts finished runs by overall status.
	WorkflowRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_engine_workflow_runs_total",
		Help: "Total workflow runs completed, labeled by overall status.",
	}, []string{"status"})

	// ScheduleRuns counts cron-triggered and manual schedule dispatches.
	ScheduleRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_engine_schedule_runs_total",
		Help: "Total scheduled runs dispatched, labeled by trigger kind (cron, manual) and outcome.",
	}, []string{"kind", "outcome"})

	// ScheduleSkippedOverlap counts schedule ticks skipped because the
	// previous run for that schedule id was still in flight.
	ScheduleSkippedOverlap = promauto.NewCounter(prometheus.CounterOpts{
		Name: "workflow_engine_schedule_overlap_skips_total",
		Help: "Total schedule ticks skipped because the prior run was still active.",
	})

	// TriggerMessagesReceived counts inbound messages by source.
	TriggerMessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_engine_trigger_messages_received_total",
		Help: "Total inbound trigger messages received, labeled by source.",
	}, []string{"source"})

	// TriggerDispatches counts trigger-initiated workflow dispatches by outcome.
	TriggerDispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_engine_trigger_dispatches_total",
		Help: "Total trigger-initiated workflow dispatches, labeled by rule name and outcome.",
	}, []string{"rule", "outcome"})
)
