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

// Package workflow holds the immutable workflow data model: the value types
// parsed from a workflow file and consumed by the planner, executor and
// runner. Parsing and schema validation live outside this package.
package workflow

import "time"

// Workflow is an immutable description of a set of shell tasks and how they
// relate to one another. It never mutates once parsed.
type Workflow struct {
	Name              string
	Description       string
	Environment       map[string]string
	WorkingDirectory   string
	DefaultTimeoutMs   int64
	MaxParallelism     int // -1 means unlimited
	Shell              string
	Docker             *DockerConfig
	Ssh                *SshConfig
	Watch              *WatchConfig
	Tasks              []*WorkflowTask
}

// TaskByID returns the task with the given id, or nil if none matches.
func (w *Workflow) TaskByID(id string) *WorkflowTask {
	for _, t := range w.Tasks {
		if t.Id == id {
			return t
		}
	}
	return nil
}

// WorkflowTask is a single unit of work within a Workflow.
type WorkflowTask struct {
	Id               string
	Name             string // display-only; falls back to Id
	Run              string
	Shell            string
	WorkingDirectory string
	Environment      map[string]string
	If               string
	Input            TaskInput
	Output           TaskOutputConfig
	TimeoutMs        int64
	ContinueOnError  bool
	RetryCount       int
	RetryDelayMs     int64
	DependsOn        []string
	Matrix           *MatrixConfig
	Docker           *DockerConfig
	Ssh              *SshConfig

	// MatrixValues is populated only on matrix-expanded instances; it
	// records the dimension -> value combination that produced this task.
	MatrixValues map[string]string
}

// DisplayName returns Name, falling back to Id when Name is unset.
func (t *WorkflowTask) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Id
}

// TaskInputType enumerates the ways a task's stdin can be sourced.
type TaskInputType string

const (
	InputNone  TaskInputType = "none"
	InputText  TaskInputType = "text"
	InputBytes TaskInputType = "bytes"
	InputFile  TaskInputType = "file"
	InputPipe  TaskInputType = "pipe"
)

// TaskInput describes how a task's stdin payload is produced.
type TaskInput struct {
	Type TaskInputType

	// Value carries an expression string for Text/Pipe, and a base64 (or
	// literal, on decode failure) payload for Bytes.
	Value string

	// FilePath is used only when Type == InputFile.
	FilePath string
}

// OutputCaptureKind enumerates how a task's output is captured.
type OutputCaptureKind string

const (
	CaptureString OutputCaptureKind = "string"
	CaptureBytes  OutputCaptureKind = "bytes"
	CaptureFile   OutputCaptureKind = "file"
	CaptureStream OutputCaptureKind = "stream"
)

// DefaultMaxOutputBytes is the engine-wide output capture floor used when a
// task's TaskOutputConfig.MaxSizeBytes is left at zero.
const DefaultMaxOutputBytes = 10 * 1024 * 1024 // 10 MiB

// TaskOutputConfig controls how a task's stdout/stderr are captured.
type TaskOutputConfig struct {
	Type          OutputCaptureKind
	FilePath      string
	CaptureStderr bool // default true; zero value means "unset", see EffectiveCaptureStderr
	captureStderrSet bool
	MaxSizeBytes  int64
}

// SetCaptureStderr records an explicit value for CaptureStderr, distinguishing
// it from the unset zero value so EffectiveCaptureStderr can default to true.
func (o *TaskOutputConfig) SetCaptureStderr(v bool) {
	o.CaptureStderr = v
	o.captureStderrSet = true
}

// EffectiveCaptureStderr returns CaptureStderr, defaulting to true when unset.
func (o *TaskOutputConfig) EffectiveCaptureStderr() bool {
	if !o.captureStderrSet {
		return true
	}
	return o.CaptureStderr
}

// EffectiveMaxSizeBytes returns MaxSizeBytes, defaulting to DefaultMaxOutputBytes.
func (o *TaskOutputConfig) EffectiveMaxSizeBytes() int64 {
	if o.MaxSizeBytes <= 0 {
		return DefaultMaxOutputBytes
	}
	return o.MaxSizeBytes
}

// MatrixConfig describes a templated task's dimension cross-product.
type MatrixConfig struct {
	// DimensionOrder preserves declaration order; Dimensions maps name to
	// its ordered list of string values.
	DimensionOrder []string
	Dimensions     map[string][]string

	Include []map[string]string
	Exclude []map[string]string
}

// remoteConfig is the shared ambient-plus-override behavior for
// DockerConfig and SshConfig.
type remoteConfig interface {
	IsValid() bool
}

// DockerConfig configures execution inside a running container via `docker exec`.
type DockerConfig struct {
	Container   string
	User        string
	Privileged  bool
	Interactive *bool // nil = default true
	TTY         bool
	ExtraArgs   []string
	Disabled    bool
}

// MergeWith returns a DockerConfig where this (task-level) config's set
// fields win and unset fields fall back to base (workflow-level).
func (d *DockerConfig) MergeWith(base *DockerConfig) *DockerConfig {
	if d == nil {
		return base
	}
	if d.Disabled {
		return nil
	}
	if base == nil {
		return d
	}
	merged := *base
	if d.Container != "" {
		merged.Container = d.Container
	}
	if d.User != "" {
		merged.User = d.User
	}
	if d.Interactive != nil {
		merged.Interactive = d.Interactive
	}
	merged.Privileged = merged.Privileged || d.Privileged
	merged.TTY = merged.TTY || d.TTY
	if len(d.ExtraArgs) > 0 {
		merged.ExtraArgs = append(append([]string{}, merged.ExtraArgs...), d.ExtraArgs...)
	}
	return &merged
}

// IsValid reports whether this configuration is runnable with the Docker strategy.
func (d *DockerConfig) IsValid() bool {
	return d != nil && d.Container != ""
}

// EffectiveInteractive returns Interactive, defaulting to true when unset.
func (d *DockerConfig) EffectiveInteractive() bool {
	if d.Interactive == nil {
		return true
	}
	return *d.Interactive
}

// SshConfig configures execution over SSH on a remote host.
type SshConfig struct {
	Host                 string
	User                 string
	Port                 int
	IdentityFile         string
	ConnectTimeoutSec    int
	StrictHostKeyChecking *bool // nil = default true
	ExtraArgs            []string
	Disabled             bool
}

// MergeWith returns an SshConfig where this (task-level) config's set fields
// win and unset fields fall back to base (workflow-level).
func (s *SshConfig) MergeWith(base *SshConfig) *SshConfig {
	if s == nil {
		return base
	}
	if s.Disabled {
		return nil
	}
	if base == nil {
		return s
	}
	merged := *base
	if s.Host != "" {
		merged.Host = s.Host
	}
	if s.User != "" {
		merged.User = s.User
	}
	if s.Port != 0 {
		merged.Port = s.Port
	}
	if s.IdentityFile != "" {
		merged.IdentityFile = s.IdentityFile
	}
	if s.ConnectTimeoutSec != 0 {
		merged.ConnectTimeoutSec = s.ConnectTimeoutSec
	}
	if s.StrictHostKeyChecking != nil {
		merged.StrictHostKeyChecking = s.StrictHostKeyChecking
	}
	if len(s.ExtraArgs) > 0 {
		merged.ExtraArgs = append(append([]string{}, merged.ExtraArgs...), s.ExtraArgs...)
	}
	return &merged
}

// IsValid reports whether this configuration is runnable with the SSH strategy.
func (s *SshConfig) IsValid() bool {
	return s != nil && s.Host != "" && s.User != ""
}

// EffectiveStrictHostKeyChecking returns StrictHostKeyChecking, defaulting to true.
func (s *SshConfig) EffectiveStrictHostKeyChecking() bool {
	if s.StrictHostKeyChecking == nil {
		return true
	}
	return *s.StrictHostKeyChecking
}

// WatchConfig describes the default file-watch behavior for --watch.
type WatchConfig struct {
	Paths            []string
	Include          []string
	Exclude          []string
	DebounceMs       int64
}

// ExecutionPlan is the output of the DAG scheduler: a wave-ordered execution
// schedule plus the always-tasks that run as a terminal wave.
type ExecutionPlan struct {
	Waves       [][]*WorkflowTask
	AlwaysTasks []*WorkflowTask
}

// TaskStatus enumerates the lifecycle states of a TaskResult.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusSucceeded TaskStatus = "succeeded"
	StatusFailed    TaskStatus = "failed"
	StatusSkipped   TaskStatus = "skipped"
	StatusCancelled TaskStatus = "cancelled"
	StatusTimedOut  TaskStatus = "timedout"
)

// TaskOutput carries whatever of a task's stdout/stderr/bytes/file path was
// captured, according to its TaskOutputConfig.
type TaskOutput struct {
	StandardOutput string
	StandardError  string
	Bytes          []byte
	FilePath       string
	Truncated      bool
}

// TaskResult is the outcome of running one task once (retries update the
// same entry in place).
type TaskResult struct {
	TaskId       string
	Status       TaskStatus
	ExitCode     int // -1 when the process never ran
	Output       *TaskOutput
	ErrorMessage string
	StartTime    time.Time
	EndTime      time.Time
}

// Duration returns EndTime - StartTime.
func (r *TaskResult) Duration() time.Duration {
	if r.EndTime.IsZero() || r.StartTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// IsSuccess reports whether the task succeeded with exit code 0.
func (r *TaskResult) IsSuccess() bool {
	return r.Status == StatusSucceeded && r.ExitCode == 0
}

// IsFailed reports whether the task ended in a failure-like state.
func (r *TaskResult) IsFailed() bool {
	switch r.Status {
	case StatusFailed, StatusTimedOut, StatusCancelled:
		return true
	default:
		return false
	}
}

// WasSkipped reports whether the task was never run due to its condition.
func (r *TaskResult) WasSkipped() bool {
	return r.Status == StatusSkipped
}

// Schedule is a durable cron-to-workflow binding managed by the daemon.
type Schedule struct {
	Id              string
	Name            string
	WorkflowPath    string
	CronExpression  string
	Enabled         bool
	InputParameters map[string]string
	CreatedAt       time.Time
	LastRunAt       *time.Time
	NextRunAt       *time.Time
}

// TriggerSourceType enumerates the message transports a trigger rule can match on.
type TriggerSourceType string

const (
	SourceTelegram  TriggerSourceType = "telegram"
	SourceDiscord   TriggerSourceType = "discord"
	SourceSlack     TriggerSourceType = "slack"
	SourceHTTP      TriggerSourceType = "http"
	SourceFileWatch TriggerSourceType = "filewatch"
)

// TriggerRuleType enumerates the two matching strategies a rule can use.
type TriggerRuleType string

const (
	RuleKeyword TriggerRuleType = "keyword"
	RulePattern TriggerRuleType = "pattern"
)

// TriggerRule is an inbound-message routing rule.
type TriggerRule struct {
	Name             string
	Type             TriggerRuleType
	Sources          []TriggerSourceType
	Keywords         []string
	Pattern          string
	WorkflowPath     string
	Parameters       map[string]string
	ResponseTemplate string
	Enabled          bool
}

// HasSource reports whether the rule applies to the given source.
func (r *TriggerRule) HasSource(s TriggerSourceType) bool {
	for _, src := range r.Sources {
		if src == s {
			return true
		}
	}
	return false
}
