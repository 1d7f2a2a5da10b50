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

package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	ilog "github.com/cryonayes/workflow-engine-sub000/internal/log"
	"github.com/cryonayes/workflow-engine-sub000/internal/metrics"
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow"
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow/loader"
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow/runner"
)

// yamlWorkflowLoader parses a workflow file from disk into the in-memory
// model. Tests substitute a fake to avoid touching the filesystem.
type yamlWorkflowLoader func(path string) (*workflow.Workflow, error)

// DefaultWorkflowLoader reads path and parses it with the full workflow file
// format, including matrix, input/output, docker and ssh blocks.
func DefaultWorkflowLoader(path string) (*workflow.Workflow, error) {
	return loader.Load(path)
}

// RunCompletion is what the daemon records for one scheduled (or manual) run.
type RunCompletion struct {
	ScheduleID   string
	RunID        string
	IsManual     bool
	Status       workflow.OverallStatus
	Duration     time.Duration
	ErrorMessage string
}

// Daemon drives the tick loop: compute the next due schedule, sleep until
// then (or wake early on mutation/stop/manual trigger), and dispatch at-most-
// one-concurrent-run per schedule id.
type Daemon struct {
	storage Storage
	runner  *runner.Runner
	logger  *slog.Logger

	LoadWorkflow yamlWorkflowLoader

	mu        sync.RWMutex
	schedules map[string]*workflow.Schedule
	locks     map[string]*sync.Mutex

	wake chan struct{}
	stop chan struct{}
	done chan struct{}

	onCompletion []func(RunCompletion)
}

// New creates a Daemon backed by storage and dispatching via r.
func New(storage Storage, r *runner.Runner, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Daemon{
		storage:      storage,
		runner:       r,
		logger:       logger.With(slog.String("component", "scheduler")),
		LoadWorkflow: DefaultWorkflowLoader,
		schedules:    make(map[string]*workflow.Schedule),
		locks:        make(map[string]*sync.Mutex),
		wake:         make(chan struct{}, 1),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}

	loaded, err := storage.Load()
	if err != nil {
		return nil, err
	}
	for _, s := range loaded {
		d.schedules[s.Id] = s
		d.locks[s.Id] = &sync.Mutex{}
	}
	return d, nil
}

// OnCompletion registers a callback invoked after every scheduled or manual
// run finishes (analogous to a ScheduledRunCompletedEvent subscriber).
func (d *Daemon) OnCompletion(fn func(RunCompletion)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onCompletion = append(d.onCompletion, fn)
}

func (d *Daemon) notify(c RunCompletion) {
	d.mu.RLock()
	subs := append([]func(RunCompletion){}, d.onCompletion...)
	d.mu.RUnlock()
	for _, fn := range subs {
		fn(c)
	}
}

// AddSchedule validates cron, computes NextRunAt, persists, and wakes the loop.
func (d *Daemon) AddSchedule(sch *workflow.Schedule) error {
	if _, err := ParseCron(sch.CronExpression); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	if sch.Id == "" {
		sch.Id = uuid.NewString()[:8]
	}
	if sch.CreatedAt.IsZero() {
		sch.CreatedAt = time.Now()
	}
	next, _ := NextOccurrence(sch.CronExpression, time.Now())
	sch.NextRunAt = &next

	d.mu.Lock()
	d.schedules[sch.Id] = sch
	d.locks[sch.Id] = &sync.Mutex{}
	d.mu.Unlock()

	if err := d.persist(); err != nil {
		return err
	}
	d.wakeLoop()
	return nil
}

// RemoveSchedule deletes a schedule by id.
func (d *Daemon) RemoveSchedule(id string) error {
	d.mu.Lock()
	delete(d.schedules, id)
	delete(d.locks, id)
	d.mu.Unlock()
	if err := d.persist(); err != nil {
		return err
	}
	d.wakeLoop()
	return nil
}

// EnableSchedule/DisableSchedule flip a schedule's Enabled flag.
func (d *Daemon) EnableSchedule(id string) error  { return d.setEnabled(id, true) }
func (d *Daemon) DisableSchedule(id string) error { return d.setEnabled(id, false) }

func (d *Daemon) setEnabled(id string, enabled bool) error {
	d.mu.Lock()
	sch, ok := d.schedules[id]
	if ok {
		sch.Enabled = enabled
		if enabled {
			next, _ := NextOccurrence(sch.CronExpression, time.Now())
			sch.NextRunAt = &next
		}
	}
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("schedule not found: %s", id)
	}
	if err := d.persist(); err != nil {
		return err
	}
	d.wakeLoop()
	return nil
}

// ListSchedules returns a snapshot of every schedule matching filter (nil
// filter returns all).
func (d *Daemon) ListSchedules(filter func(*workflow.Schedule) bool) []*workflow.Schedule {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []*workflow.Schedule
	for _, s := range d.schedules {
		if filter == nil || filter(s) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out
}

// TriggerSchedule runs a schedule immediately, bypassing cron timing but
// still honouring the per-schedule exclusion mutex. Returns the new run's id.
func (d *Daemon) TriggerSchedule(ctx context.Context, id string) (string, error) {
	d.mu.RLock()
	sch, ok := d.schedules[id]
	lock := d.locks[id]
	d.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("schedule not found: %s", id)
	}
	if !lock.TryLock() {
		return "", fmt.Errorf("schedule %s already running", id)
	}
	runID := uuid.NewString()
	go func() {
		defer lock.Unlock()
		d.execute(ctx, sch, true, runID)
	}()
	d.wakeLoop()
	return runID, nil
}

// wakeLoop signals the tick loop to recompute its sleep without blocking if
// a wake is already pending.
func (d *Daemon) wakeLoop() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Daemon) persist() error {
	d.mu.RLock()
	all := make([]*workflow.Schedule, 0, len(d.schedules))
	for _, s := range d.schedules {
		all = append(all, s)
	}
	d.mu.RUnlock()
	return d.storage.Save(all)
}

// StartAsync launches the tick loop in the background.
func (d *Daemon) StartAsync(ctx context.Context) {
	go d.loop(ctx)
}

// StopAsync signals the tick loop to stop and waits up to grace for the loop
// to exit, then returns. Runs already dispatched are neither waited for nor
// cancelled.
func (d *Daemon) StopAsync(grace time.Duration) {
	close(d.stop)
	select {
	case <-d.done:
	case <-time.After(grace):
	}
}

func (d *Daemon) loop(ctx context.Context) {
	defer close(d.done)
	for {
		next := d.nextFire()
		var wait time.Duration
		if next.IsZero() {
			wait = time.Hour
		} else {
			wait = time.Until(next)
			if wait < 0 {
				wait = 0
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-d.stop:
			timer.Stop()
			return
		case <-d.wake:
			timer.Stop()
			continue
		case <-timer.C:
			d.tick(ctx)
		}
	}
}

// nextFire returns the earliest NextRunAt among enabled schedules.
func (d *Daemon) nextFire() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var best time.Time
	for _, s := range d.schedules {
		if !s.Enabled || s.NextRunAt == nil {
			continue
		}
		if best.IsZero() || s.NextRunAt.Before(best) {
			best = *s.NextRunAt
		}
	}
	return best
}

// tick dispatches every enabled schedule whose NextRunAt has arrived,
// respecting each schedule's per-id exclusion mutex.
func (d *Daemon) tick(ctx context.Context) {
	now := time.Now()
	d.mu.RLock()
	due := make([]*workflow.Schedule, 0)
	for _, s := range d.schedules {
		if s.Enabled && s.NextRunAt != nil && !s.NextRunAt.After(now) {
			due = append(due, s)
		}
	}
	d.mu.RUnlock()

	for _, sch := range due {
		d.mu.RLock()
		lock := d.locks[sch.Id]
		d.mu.RUnlock()

		if !lock.TryLock() {
			d.logger.Debug("skipping overlapping scheduled run", slog.String(ilog.ScheduleIDKey, sch.Id))
			metrics.ScheduleSkippedOverlap.Inc()
			d.advance(sch, now)
			continue
		}

		sch := sch
		go func() {
			defer lock.Unlock()
			d.execute(ctx, sch, false, uuid.NewString())
		}()
		d.advance(sch, now)
	}
}

// advance updates a schedule's NextRunAt/LastRunAt after dispatch and persists.
func (d *Daemon) advance(sch *workflow.Schedule, runStart time.Time) {
	d.mu.Lock()
	sch.LastRunAt = &runStart
	next, err := NextOccurrence(sch.CronExpression, runStart)
	if err == nil {
		sch.NextRunAt = &next
	}
	d.mu.Unlock()
	if err := d.persist(); err != nil {
		d.logger.Error("failed to persist schedule store", slog.Any("error", err))
	}
}

// execute parses the referenced workflow and runs it, recording a completion.
func (d *Daemon) execute(ctx context.Context, sch *workflow.Schedule, manual bool, runID string) {
	start := time.Now()
	schLogger := d.logger.With(slog.String(ilog.ScheduleIDKey, sch.Id), slog.String(ilog.RunIDKey, runID))
	schLogger.Info("triggering scheduled run", slog.Bool("manual", manual))

	kind := "cron"
	if manual {
		kind = "manual"
	}

	wf, err := d.LoadWorkflow(sch.WorkflowPath)
	if err != nil {
		schLogger.Error("failed to load workflow", slog.Any("error", err))
		metrics.ScheduleRuns.WithLabelValues(kind, "load_failed").Inc()
		d.notify(RunCompletion{ScheduleID: sch.Id, RunID: runID, IsManual: manual, Status: workflow.OverallFailed, Duration: time.Since(start), ErrorMessage: err.Error()})
		return
	}

	wctx, err := d.runner.Run(ctx, wf, runner.RunOptions{Parameters: sch.InputParameters})
	if err != nil {
		schLogger.Error("scheduled run failed to start", slog.Any("error", err))
		metrics.ScheduleRuns.WithLabelValues(kind, "start_failed").Inc()
		d.notify(RunCompletion{ScheduleID: sch.Id, RunID: runID, IsManual: manual, Status: workflow.OverallFailed, Duration: time.Since(start), ErrorMessage: err.Error()})
		return
	}

	metrics.ScheduleRuns.WithLabelValues(kind, string(wctx.Status())).Inc()
	d.notify(RunCompletion{ScheduleID: sch.Id, RunID: wctx.RunID, IsManual: manual, Status: wctx.Status(), Duration: time.Since(start)})
}
