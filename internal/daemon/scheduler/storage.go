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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow"
)

// Storage persists Schedule records across daemon restarts.
type Storage interface {
	Load() ([]*workflow.Schedule, error)
	Save(schedules []*workflow.Schedule) error
}

// JSONStorage is the default Storage: a single JSON file, atomically
// replaced on every mutation, single-writer.
type JSONStorage struct {
	mu   sync.Mutex
	path string
}

// NewJSONStorage creates a JSON-file-backed store at path.
func NewJSONStorage(path string) *JSONStorage {
	return &JSONStorage{path: path}
}

// Load reads the schedule set, returning an empty slice if the file does not
// yet exist.
func (s *JSONStorage) Load() ([]*workflow.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read schedule store: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var schedules []*workflow.Schedule
	if err := json.Unmarshal(data, &schedules); err != nil {
		return nil, fmt.Errorf("parse schedule store: %w", err)
	}
	return schedules, nil
}

// Save atomically replaces the store's contents: write to a temp file in the
// same directory, then rename over the target.
func (s *JSONStorage) Save(schedules []*workflow.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(schedules, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schedule store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create schedule store directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".schedules-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp schedule store: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp schedule store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp schedule store: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace schedule store: %w", err)
	}
	return nil
}
