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

package exec

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	osexec "os/exec"
	"sync"
	"time"

	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow"
)

// EventKind enumerates the process-event stream emitted during supervision.
type EventKind string

const (
	EventStarted EventKind = "started"
	EventStdOut  EventKind = "stdout"
	EventStdErr  EventKind = "stderr"
	EventExited  EventKind = "exited"
	EventRetry   EventKind = "retry"
)

// Event is one entry of a task's in-order process event stream.
type Event struct {
	Kind     EventKind
	Line     string
	ExitCode int
}

// ProgressSink receives a task's process events as they occur. Implementations
// must not block for long; forward to a buffered channel if needed.
type ProgressSink interface {
	OnEvent(Event)
}

// noopSink discards events.
type noopSink struct{}

func (noopSink) OnEvent(Event) {}

// truncatedSentinel is appended once an output buffer's cap is exceeded.
const truncatedSentinel = "\n[truncated]"

// capBuffer is a byte buffer hard-capped at max bytes; once full, further
// writes are discarded and Truncated is set.
type capBuffer struct {
	max       int64
	buf       bytes.Buffer
	truncated bool
}

func (c *capBuffer) WriteLine(line string) {
	if c.truncated {
		return
	}
	remaining := c.max - int64(c.buf.Len())
	if remaining <= 0 {
		c.truncated = true
		c.buf.WriteString(truncatedSentinel)
		return
	}
	data := []byte(line + "\n")
	if int64(len(data)) > remaining {
		c.buf.Write(data[:remaining])
		c.truncated = true
		c.buf.WriteString(truncatedSentinel)
		return
	}
	c.buf.Write(data)
}

// Run supervises one process end-to-end: starts it, streams Started/StdOut
// line/StdErr line/Exited events in order to sink, enforces ctx (the caller
// is responsible for composing timeout and cancellation into ctx), and maps
// the outcome to a TaskResult. It does not set TaskId; the caller fills it.
func Run(ctx context.Context, cfg *RunConfig, stdin []byte, output *workflow.TaskOutputConfig, sink ProgressSink) *workflow.TaskResult {
	if sink == nil {
		sink = noopSink{}
	}
	if output == nil {
		output = &workflow.TaskOutputConfig{}
	}

	cmd := osexec.CommandContext(ctx, cfg.Executable, cfg.Args...)
	cmd.Dir = cfg.Cwd
	cmd.Env = buildEnv(cfg)

	if len(stdin) > 0 {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return &workflow.TaskResult{Status: workflow.StatusFailed, ExitCode: -1, ErrorMessage: err.Error(), StartTime: time.Now(), EndTime: time.Now()}
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return &workflow.TaskResult{Status: workflow.StatusFailed, ExitCode: -1, ErrorMessage: err.Error(), StartTime: time.Now(), EndTime: time.Now()}
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return &workflow.TaskResult{Status: workflow.StatusFailed, ExitCode: -1, ErrorMessage: err.Error(), StartTime: start, EndTime: time.Now()}
	}
	sink.OnEvent(Event{Kind: EventStarted})

	stdoutBuf := &capBuffer{max: output.EffectiveMaxSizeBytes()}
	stderrBuf := &capBuffer{max: output.EffectiveMaxSizeBytes()}

	var wg sync.WaitGroup
	wg.Add(2)
	go streamLines(stdoutPipe, EventStdOut, stdoutBuf, sink, &wg, true)
	go streamLines(stderrPipe, EventStdErr, stderrBuf, sink, &wg, output.EffectiveCaptureStderr())
	wg.Wait()

	waitErr := cmd.Wait()
	end := time.Now()

	result := &workflow.TaskResult{
		StartTime: start,
		EndTime:   end,
		Output:    buildOutput(output, stdoutBuf, stderrBuf),
	}

	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			result.Status = workflow.StatusTimedOut
			result.ExitCode = -1
			result.ErrorMessage = "task exceeded its timeout"
		} else {
			result.Status = workflow.StatusCancelled
			result.ExitCode = -1
			result.ErrorMessage = "task cancelled"
		}
		sink.OnEvent(Event{Kind: EventExited, ExitCode: result.ExitCode})
		return result
	}

	if waitErr != nil {
		var exitErr *osexec.ExitError
		if errors.As(waitErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			result.Status = workflow.StatusFailed
			result.ErrorMessage = fmt.Sprintf("exit code %d", result.ExitCode)
		} else {
			result.ExitCode = -1
			result.Status = workflow.StatusFailed
			result.ErrorMessage = waitErr.Error()
		}
		sink.OnEvent(Event{Kind: EventExited, ExitCode: result.ExitCode})
		return result
	}

	result.ExitCode = 0
	result.Status = workflow.StatusSucceeded
	sink.OnEvent(Event{Kind: EventExited, ExitCode: 0})
	return result
}

func streamLines(r io.Reader, kind EventKind, buf *capBuffer, sink ProgressSink, wg *sync.WaitGroup, capture bool) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if capture {
			buf.WriteLine(line)
		}
		sink.OnEvent(Event{Kind: kind, Line: line})
	}
}

// buildOutput assembles the TaskOutput according to output.Type: String
// keeps the captured text in StandardOutput/StandardError (the default);
// Bytes additionally exposes the raw stdout bytes; File persists stdout to
// output.FilePath and records that path. Stream capture still buffers the
// text (callers consume the live events for streaming; the buffer remains
// as a post-hoc summary).
func buildOutput(output *workflow.TaskOutputConfig, stdoutBuf, stderrBuf *capBuffer) *workflow.TaskOutput {
	out := &workflow.TaskOutput{
		StandardOutput: stdoutBuf.buf.String(),
		StandardError:  stderrBuf.buf.String(),
		Truncated:      stdoutBuf.truncated || stderrBuf.truncated,
	}

	switch output.Type {
	case workflow.CaptureBytes:
		out.Bytes = []byte(out.StandardOutput)
	case workflow.CaptureFile:
		if output.FilePath != "" {
			if err := os.WriteFile(output.FilePath, []byte(out.StandardOutput), 0o644); err == nil {
				out.FilePath = output.FilePath
			}
		}
	}

	return out
}

func buildEnv(cfg *RunConfig) []string {
	var env []string
	if cfg.EnvAction == EnvInheritAndOverlay {
		env = append(env, os.Environ()...)
	}
	for k, v := range cfg.EnvOverlay {
		env = append(env, k+"="+v)
	}
	return env
}
