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
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow"
)

// SqliteStorage is an opt-in durable Storage backed by
// modernc.org/sqlite (pure Go, no cgo), for installs that want transactional
// durability over the default JSON file.
type SqliteStorage struct {
	db *sql.DB
}

// NewSqliteStorage opens (creating if necessary) a sqlite-backed schedule store.
func NewSqliteStorage(path string) (*SqliteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite schedule store: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS schedules (
	id TEXT PRIMARY KEY,
	name TEXT,
	workflow_path TEXT NOT NULL,
	cron_expression TEXT NOT NULL,
	enabled INTEGER NOT NULL,
	input_parameters TEXT,
	created_at TEXT NOT NULL,
	last_run_at TEXT,
	next_run_at TEXT
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schedules table: %w", err)
	}
	return &SqliteStorage{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SqliteStorage) Close() error {
	return s.db.Close()
}

// Load returns every persisted schedule.
func (s *SqliteStorage) Load() ([]*workflow.Schedule, error) {
	rows, err := s.db.Query(`SELECT id, name, workflow_path, cron_expression, enabled,
		input_parameters, created_at, last_run_at, next_run_at FROM schedules`)
	if err != nil {
		return nil, fmt.Errorf("query schedules: %w", err)
	}
	defer rows.Close()

	var out []*workflow.Schedule
	for rows.Next() {
		var (
			sch                           workflow.Schedule
			params                        sql.NullString
			createdAt                     string
			lastRunAt, nextRunAt          sql.NullString
			enabled                       int
		)
		if err := rows.Scan(&sch.Id, &sch.Name, &sch.WorkflowPath, &sch.CronExpression,
			&enabled, &params, &createdAt, &lastRunAt, &nextRunAt); err != nil {
			return nil, fmt.Errorf("scan schedule row: %w", err)
		}
		sch.Enabled = enabled != 0
		if params.Valid && params.String != "" {
			_ = json.Unmarshal([]byte(params.String), &sch.InputParameters)
		}
		if createdAt != "" {
			sch.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		}
		if lastRunAt.Valid && lastRunAt.String != "" {
			t, _ := time.Parse(time.RFC3339Nano, lastRunAt.String)
			sch.LastRunAt = &t
		}
		if nextRunAt.Valid && nextRunAt.String != "" {
			t, _ := time.Parse(time.RFC3339Nano, nextRunAt.String)
			sch.NextRunAt = &t
		}
		out = append(out, &sch)
	}
	return out, rows.Err()
}

// Save replaces the entire schedule table contents transactionally.
func (s *SqliteStorage) Save(schedules []*workflow.Schedule) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin schedule save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM schedules`); err != nil {
		return fmt.Errorf("clear schedules: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO schedules
		(id, name, workflow_path, cron_expression, enabled, input_parameters, created_at, last_run_at, next_run_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare schedule insert: %w", err)
	}
	defer stmt.Close()

	for _, sch := range schedules {
		params, _ := json.Marshal(sch.InputParameters)
		var lastRunAt, nextRunAt sql.NullString
		if sch.LastRunAt != nil {
			lastRunAt = sql.NullString{String: sch.LastRunAt.Format(time.RFC3339Nano), Valid: true}
		}
		if sch.NextRunAt != nil {
			nextRunAt = sql.NullString{String: sch.NextRunAt.Format(time.RFC3339Nano), Valid: true}
		}
		enabled := 0
		if sch.Enabled {
			enabled = 1
		}
		if _, err := stmt.Exec(sch.Id, sch.Name, sch.WorkflowPath, sch.CronExpression,
			enabled, string(params), sch.CreatedAt.Format(time.RFC3339Nano), lastRunAt, nextRunAt); err != nil {
			return fmt.Errorf("insert schedule %s: %w", sch.Id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schedule save: %w", err)
	}
	return nil
}
