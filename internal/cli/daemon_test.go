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
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestDaemonRunStopsOnContextCancel starts the daemon on ephemeral ports,
// cancels its context shortly after, and checks it unwinds cleanly with the
// signal-cancellation exit code rather than hanging or erroring.
func TestDaemonRunStopsOnContextCancel(t *testing.T) {
	t.Setenv("WORKFLOW_LISTEN_ADDR", "127.0.0.1:0")
	t.Setenv("WORKFLOW_METRICS_ADDR", "127.0.0.1:0")
	withScheduleStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cmd := newDaemonCommand()
	cmd.SetArgs([]string{"run"})
	cmd.SetContext(ctx)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	done := make(chan error, 1)
	go func() { done <- cmd.Execute() }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		require.Equal(t, 130, exitErr.Code)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon run did not stop after context cancellation")
	}
}

func TestDaemonRunRejectsBadTriggersPath(t *testing.T) {
	t.Setenv("WORKFLOW_LISTEN_ADDR", "127.0.0.1:0")
	t.Setenv("WORKFLOW_METRICS_ADDR", "127.0.0.1:0")
	withScheduleStore(t)

	cmd := newDaemonCommand()
	cmd.SetArgs([]string{"run", "--triggers", "does-not-exist.yaml"})
	cmd.SetContext(context.Background())
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	err := cmd.Execute()
	require.Error(t, err)
	require.False(t, errors.Is(err, context.Canceled))
}
