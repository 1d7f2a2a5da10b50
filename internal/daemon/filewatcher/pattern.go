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
	"fmt"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// PatternMatcher applies include-then-exclude glob filtering to watched
// paths, using doublestar for ** (any number of segments) support.
type PatternMatcher struct {
	include []string
	exclude []string
}

// NewPatternMatcher validates and builds a matcher. An empty include list
// means everything is included by default; exclude is applied afterward.
func NewPatternMatcher(include, exclude []string) (*PatternMatcher, error) {
	for _, p := range include {
		if _, err := doublestar.Match(p, "probe"); err != nil {
			return nil, fmt.Errorf("invalid include pattern %q: %w", p, err)
		}
	}
	for _, p := range exclude {
		if _, err := doublestar.Match(p, "probe"); err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}
	}
	return &PatternMatcher{include: include, exclude: exclude}, nil
}

// Match reports whether path survives the include set and is not caught by
// the exclude set. Matching is tried against both the full path and the base
// filename, so "*.go" matches regardless of directory depth.
func (pm *PatternMatcher) Match(path string) bool {
	included := len(pm.include) == 0
	for _, p := range pm.include {
		if !included && pm.matches(p, path) {
			included = true
		}
	}
	if !included {
		return false
	}
	for _, p := range pm.exclude {
		if pm.matches(p, path) {
			return false
		}
	}
	return true
}

func (pm *PatternMatcher) matches(pattern, path string) bool {
	if ok, _ := doublestar.PathMatch(pattern, path); ok {
		return true
	}
	if ok, _ := doublestar.Match(pattern, filepath.Base(path)); ok {
		return true
	}
	return false
}

// DefaultExcludePatterns covers the editor/system noise every watch should
// skip unless explicitly included.
func DefaultExcludePatterns() []string {
	return []string{
		"*.swp", "*.swo", "*.swn", ".*.sw?",
		"*~", "#*#", ".#*",
		".DS_Store", "Thumbs.db",
		"**/.git/**", "**/node_modules/**",
		"*.tmp", "*.temp",
	}
}
