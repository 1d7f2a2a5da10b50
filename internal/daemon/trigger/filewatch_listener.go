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

package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cryonayes/workflow-engine-sub000/internal/daemon/filewatcher"
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow"
)

// FileWatchListener adapts a filewatcher.Watcher into the Listener contract:
// every debounced batch of changes becomes one IncomingMessage per changed
// path, with the change's kind/name/dir available via Extras.
type FileWatchListener struct {
	root    string
	matcher *filewatcher.PatternMatcher
	debounce time.Duration

	watcher *filewatcher.Watcher
	deb     *filewatcher.Debouncer
	out     chan IncomingMessage
	cancel  context.CancelFunc
	logger  *slog.Logger
}

// NewFileWatchListener builds a listener watching root, filtered by include/
// exclude glob patterns and coalesced over debounce.
func NewFileWatchListener(root string, include, exclude []string, debounce time.Duration, logger *slog.Logger) (*FileWatchListener, error) {
	matcher, err := filewatcher.NewPatternMatcher(include, exclude)
	if err != nil {
		return nil, fmt.Errorf("build file watch matcher: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileWatchListener{
		root:     root,
		matcher:  matcher,
		debounce: debounce,
		out:      make(chan IncomingMessage, 64),
		logger:   logger.With(slog.String("component", "filewatch-listener")),
	}, nil
}

// Source reports SourceFileWatch.
func (f *FileWatchListener) Source() workflow.TriggerSourceType { return workflow.SourceFileWatch }

// Start begins the recursive watch and debounced forwarding.
func (f *FileWatchListener) Start(ctx context.Context) error {
	watchCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel

	f.deb = filewatcher.NewDebouncer(f.debounce, f.onFlush)

	w, err := filewatcher.NewWatcher(f.root, f.matcher, f.deb, f.logger)
	if err != nil {
		cancel()
		return fmt.Errorf("start file watch on %s: %w", f.root, err)
	}
	f.watcher = w
	w.Start(watchCtx)
	return nil
}

func (f *FileWatchListener) onFlush(changes []*filewatcher.Change) {
	for _, c := range changes {
		msg := IncomingMessage{
			Source: workflow.SourceFileWatch,
			Text:   c.Path,
			Extras: map[string]string{
				"path": c.Path,
				"name": c.Name,
				"dir":  c.Dir,
				"ext":  c.Ext,
				"kind": c.Kind,
			},
		}
		select {
		case f.out <- msg:
		default:
			f.logger.Warn("file watch listener queue full, dropping event", slog.String("path", c.Path))
		}
	}
}

// Stop tears down the watcher and debouncer and closes the output channel.
func (f *FileWatchListener) Stop() error {
	if f.cancel != nil {
		f.cancel()
	}
	var err error
	if f.watcher != nil {
		err = f.watcher.Stop()
	}
	if f.deb != nil {
		f.deb.Stop()
	}
	close(f.out)
	return err
}

// Receive returns the channel carrying one IncomingMessage per changed path.
func (f *FileWatchListener) Receive() <-chan IncomingMessage { return f.out }
