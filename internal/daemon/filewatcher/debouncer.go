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
	"sync"
	"time"
)

// Debouncer coalesces bursts of filesystem events into a single downstream
// callback per window. Unlike a per-file-timer design, this debouncer holds
// exactly one timer for the whole pending set: every FileChanged call resets
// the same timer, and when it fires the entire pending set (keyed by path,
// last write wins) flushes in one callback invocation. A burst touching many
// distinct files therefore still yields one flush, not one per file.
type Debouncer struct {
	mu      sync.Mutex
	window  time.Duration
	pending map[string]*Change
	timer   *time.Timer
	onFlush func([]*Change)
}

// NewDebouncer creates a debouncer that waits window after the last change
// before calling onFlush with every pending change collected so far.
func NewDebouncer(window time.Duration, onFlush func([]*Change)) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]*Change),
		onFlush: onFlush,
	}
}

// FileChanged upserts the entry for c.Path (last write wins) and resets the
// single shared timer to the full window.
func (d *Debouncer) FileChanged(c *Change) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending[c.Path] = c

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// flush collects and clears every pending entry and invokes onFlush exactly
// once with the resulting list.
func (d *Debouncer) flush() {
	d.mu.Lock()
	if len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	changes := make([]*Change, 0, len(d.pending))
	for _, c := range d.pending {
		changes = append(changes, c)
	}
	d.pending = make(map[string]*Change)
	d.mu.Unlock()

	if d.onFlush != nil {
		d.onFlush(changes)
	}
}

// Pending returns the number of distinct paths awaiting flush.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Stop cancels the timer and drops any pending entries without flushing.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = make(map[string]*Change)
}
