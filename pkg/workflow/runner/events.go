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

// Package runner drives a Workflow's ExecutionPlan wave by wave, emitting a
// broadcast event stream and supporting step-mode, per-task cancel, and
// after-the-fact retry.
package runner

import (
	"sync"
	"time"

	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow"
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow/exec"
)

// EventKind enumerates the runner's broadcast event types.
type EventKind string

const (
	EventWorkflowStarted EventKind = "workflow_started"
	EventWaveStarted     EventKind = "wave_started"
	EventTaskStarted     EventKind = "task_started"
	EventTaskOutput      EventKind = "task_output"
	EventTaskCompleted   EventKind = "task_completed"
	EventTaskSkipped     EventKind = "task_skipped"
	EventTaskCancelled   EventKind = "task_cancelled"
	EventStepPaused      EventKind = "step_paused"
	EventStepResumed     EventKind = "step_resumed"
	EventWaveCompleted   EventKind = "wave_completed"
	EventWorkflowDone    EventKind = "workflow_completed"
)

// Event is one entry of the runner's broadcast stream. Only the fields
// relevant to Kind are populated.
type Event struct {
	Kind EventKind
	Time time.Time

	RunID      string
	TotalTasks int
	Plan       *workflow.ExecutionPlan

	WaveIndex int

	TaskID string
	Result *workflow.TaskResult
	Line   string
	Stream exec.EventKind // stdout/stderr, for EventTaskOutput

	// Step-mode fields.
	CompletedTaskID string
	IsWaitingToStart bool

	// Workflow-completion fields.
	Status       workflow.OverallStatus
	Duration     time.Duration
	SuccessCount int
	FailCount    int
	SkipCount    int
}

// Subscriber receives runner events. Implementations must not block for
// long; panics are recovered so one bad subscriber never aborts a run.
type Subscriber func(Event)

// broadcaster is a mutex-guarded observer list, invoked synchronously on the
// emitter's goroutine.
type broadcaster struct {
	mu   sync.Mutex
	subs []Subscriber
}

func (b *broadcaster) Subscribe(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, s)
}

func (b *broadcaster) Emit(e Event) {
	b.mu.Lock()
	subs := append([]Subscriber(nil), b.subs...)
	b.mu.Unlock()
	for _, s := range subs {
		func() {
			defer func() { recover() }()
			s(e)
		}()
	}
}
