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
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherRecursiveWriteTriggersDebounce(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "nested")
	require.NoError(t, os.Mkdir(sub, 0o755))

	matcher, err := NewPatternMatcher([]string{"**/*.txt"}, nil)
	require.NoError(t, err)

	var mu sync.Mutex
	var flushes [][]*Change
	deb := NewDebouncer(50*time.Millisecond, func(c []*Change) {
		mu.Lock()
		defer mu.Unlock()
		flushes = append(flushes, c)
	})
	defer deb.Stop()

	w, err := NewWatcher(root, matcher, deb, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	target := filepath.Join(sub, "note.txt")
	require.NoError(t, os.WriteFile(target, []byte("hello"), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(flushes) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	var sawTarget bool
	for _, batch := range flushes {
		for _, c := range batch {
			if c.Path == target {
				sawTarget = true
			}
		}
	}
	assert.True(t, sawTarget, "watcher should have picked up the nested directory without explicit registration")
}

func TestWatcherIgnoresExcludedPaths(t *testing.T) {
	root := t.TempDir()
	matcher, err := NewPatternMatcher(nil, []string{"*.tmp"})
	require.NoError(t, err)

	var mu sync.Mutex
	var flushes [][]*Change
	deb := NewDebouncer(30*time.Millisecond, func(c []*Change) {
		mu.Lock()
		defer mu.Unlock()
		flushes = append(flushes, c)
	})
	defer deb.Stop()

	w, err := NewWatcher(root, matcher, deb, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(root, "scratch.tmp"), []byte("x"), 0o644))
	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, flushes)
}
