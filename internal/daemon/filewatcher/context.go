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

// Package filewatcher implements the FileWatch trigger source: a recursive
// glob-filtered filesystem watch feeding a single-timer debouncer.
package filewatcher

import (
	"path/filepath"
	"time"
)

// Change describes one coalesced filesystem event, the shape fed to the
// trigger matcher once the debouncer fires.
type Change struct {
	Path  string `json:"path"`
	Name  string `json:"name"`
	Dir   string `json:"dir"`
	Ext   string `json:"ext"`
	Kind  string `json:"kind"` // created, modified, deleted, renamed
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size,omitempty"`
	MTime time.Time `json:"mtime,omitempty"`
	Time  time.Time `json:"time"`
}

// NewChange builds a Change from a raw path/kind pair, populating the
// derived path components.
func NewChange(path, kind string, isDir bool, size int64, mtime time.Time) *Change {
	return &Change{
		Path:  path,
		Name:  filepath.Base(path),
		Dir:   filepath.Dir(path),
		Ext:   filepath.Ext(path),
		Kind:  kind,
		IsDir: isDir,
		Size:  size,
		MTime: mtime,
		Time:  time.Now(),
	}
}
