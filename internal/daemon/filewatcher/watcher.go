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

package filewatcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

var eventKinds = map[fsnotify.Op]string{
	fsnotify.Create: "created",
	fsnotify.Write:  "modified",
	fsnotify.Remove: "deleted",
	fsnotify.Rename: "renamed",
}

// Watcher recursively watches a root directory, filters events through a
// PatternMatcher, and feeds surviving changes into a Debouncer.
type Watcher struct {
	root    string
	matcher *PatternMatcher
	fsw     *fsnotify.Watcher
	deb     *Debouncer
	logger  *slog.Logger
	done    chan struct{}
}

// NewWatcher builds a recursive watcher rooted at path. Every subdirectory
// under path is registered with fsnotify up front; directories created later
// are registered as their creation events arrive.
func NewWatcher(path string, matcher *PatternMatcher, deb *Debouncer, logger *slog.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve watch root: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{
		root:    abs,
		matcher: matcher,
		fsw:     fsw,
		deb:     deb,
		logger:  logger.With(slog.String("component", "filewatcher"), slog.String("root", abs)),
		done:    make(chan struct{}),
	}
	if err := w.addRecursive(abs); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if addErr := w.fsw.Add(p); addErr != nil {
				return fmt.Errorf("watch %s: %w", p, addErr)
			}
		}
		return nil
	})
}

// Start launches the event loop in a goroutine; it stops when ctx is done.
func (w *Watcher) Start(ctx context.Context) {
	go w.loop(ctx)
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", slog.Any("error", err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	kind, ok := eventKinds[ev.Op]
	if !ok {
		return
	}
	if kind == "created" {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if addErr := w.fsw.Add(ev.Name); addErr != nil {
				w.logger.Debug("failed to watch new directory", slog.String("path", ev.Name), slog.Any("error", addErr))
			}
		}
	}
	if w.matcher != nil && !w.matcher.Match(ev.Name) {
		return
	}

	var size int64
	var isDir bool
	var mtime time.Time
	if kind != "deleted" {
		if info, err := os.Stat(ev.Name); err == nil {
			size = info.Size()
			isDir = info.IsDir()
			mtime = info.ModTime()
		}
	}

	w.deb.FileChanged(NewChange(ev.Name, kind, isDir, size, mtime))
}

// Stop closes the underlying fsnotify watcher and waits for the loop to exit.
func (w *Watcher) Stop() error {
	err := w.fsw.Close()
	<-w.done
	return err
}
