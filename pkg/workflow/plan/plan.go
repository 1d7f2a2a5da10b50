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

// Package plan implements the DAG scheduler: it turns a Workflow (with its
// matrix already expanded) into an ExecutionPlan of dependency-ordered waves
// plus a terminal always-tasks wave.
package plan

import (
	"regexp"
	"sort"

	workflowerrors "github.com/cryonayes/workflow-engine-sub000/pkg/errors"
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow"
)

// alwaysRe detects an If condition that invokes the always() status function,
// with or without surrounding whitespace inside the parens.
var alwaysRe = regexp.MustCompile(`always\s*\(\s*\)`)

// isAlwaysTask reports whether t's If condition mentions always().
func isAlwaysTask(t *workflow.WorkflowTask) bool {
	return alwaysRe.MatchString(t.If)
}

// Build computes an ExecutionPlan for wf, per §4.1: always-tasks are
// partitioned out and run as a terminal wave; the remaining regular tasks are
// wave-decomposed by iterated Kahn-style stripping, with dependencies on
// always-tasks ignored for placement purposes. Dangling DependsOn ids raise
// UnknownDependencyError; an irreducible remainder raises
// CircularDependencyError naming every task that could not be placed.
func Build(wf *workflow.Workflow) (*workflow.ExecutionPlan, error) {
	all := make(map[string]*workflow.WorkflowTask, len(wf.Tasks))
	for _, t := range wf.Tasks {
		all[t.Id] = t
	}

	var always, regular []*workflow.WorkflowTask
	isRegular := make(map[string]bool, len(wf.Tasks))
	for _, t := range wf.Tasks {
		if isAlwaysTask(t) {
			always = append(always, t)
		} else {
			regular = append(regular, t)
			isRegular[t.Id] = true
		}
	}

	// Validate every DependsOn edge resolves to a known task.
	for _, t := range wf.Tasks {
		for _, dep := range t.DependsOn {
			if _, ok := all[dep]; !ok {
				return nil, &workflowerrors.UnknownDependencyError{TaskID: t.Id, DependsOn: dep}
			}
		}
	}

	placed := make(map[string]bool, len(regular))
	remaining := append([]*workflow.WorkflowTask(nil), regular...)
	var waves [][]*workflow.WorkflowTask

	for len(remaining) > 0 {
		var wave []*workflow.WorkflowTask
		var next []*workflow.WorkflowTask

		for _, t := range remaining {
			if allRegularDepsPlaced(t, isRegular, placed) {
				wave = append(wave, t)
			} else {
				next = append(next, t)
			}
		}

		if len(wave) == 0 {
			return nil, &workflowerrors.CircularDependencyError{Cycle: taskIDs(remaining)}
		}

		for _, t := range wave {
			placed[t.Id] = true
		}
		waves = append(waves, wave)
		remaining = next
	}

	return &workflow.ExecutionPlan{Waves: waves, AlwaysTasks: always}, nil
}

// allRegularDepsPlaced reports whether every dependency of t that is itself a
// regular (non-always) task has already been placed in an earlier wave.
// Dependencies on always-tasks, and on tasks outside the regular set, are
// ignored for placement.
func allRegularDepsPlaced(t *workflow.WorkflowTask, isRegular map[string]bool, placed map[string]bool) bool {
	for _, dep := range t.DependsOn {
		if isRegular[dep] && !placed[dep] {
			return false
		}
	}
	return true
}

func taskIDs(tasks []*workflow.WorkflowTask) []string {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.Id
	}
	sort.Strings(ids)
	return ids
}
