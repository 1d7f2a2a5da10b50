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

// Package matrix expands matrix-templated tasks into concrete instances and
// rewrites dependency edges to point at the right instances, per §4.2.
package matrix

import (
	"sort"
	"strings"

	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow"
)

// Expand takes a task sequence (typically a Workflow's Tasks) and returns a
// new sequence with every matrix-templated task replaced by its concrete
// instances and every DependsOn edge rewritten to reference them.
func Expand(tasks []*workflow.WorkflowTask) []*workflow.WorkflowTask {
	expansionMap := make(map[string][]string)
	baseMatrix := make(map[string]*workflow.MatrixConfig)
	instancesByID := make(map[string]*workflow.WorkflowTask)

	var out []*workflow.WorkflowTask
	for _, t := range tasks {
		if t.Matrix == nil {
			out = append(out, t)
			instancesByID[t.Id] = t
			continue
		}

		baseMatrix[t.Id] = t.Matrix
		combos := combinations(t.Matrix)
		ids := make([]string, 0, len(combos))
		for _, combo := range combos {
			instance := materialize(t, combo)
			ids = append(ids, instance.Id)
			instancesByID[instance.Id] = instance
			out = append(out, instance)
		}
		expansionMap[t.Id] = ids
	}

	for _, t := range out {
		t.DependsOn = rewriteDeps(t, expansionMap, baseMatrix, instancesByID)
	}
	return out
}

// combinations produces the cartesian product of m.Dimensions (in
// m.DimensionOrder), appends every m.Include entry verbatim, then drops any
// combination superset-matched by an m.Exclude entry.
func combinations(m *workflow.MatrixConfig) []map[string]string {
	var combos []map[string]string
	combos = cartesian(m.DimensionOrder, m.Dimensions, map[string]string{}, combos)
	combos = append(combos, m.Include...)

	var filtered []map[string]string
	for _, c := range combos {
		if !excludedBy(c, m.Exclude) {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

func cartesian(dims []string, values map[string][]string, partial map[string]string, out []map[string]string) []map[string]string {
	if len(dims) == 0 {
		cp := make(map[string]string, len(partial))
		for k, v := range partial {
			cp[k] = v
		}
		return append(out, cp)
	}

	dim := dims[0]
	rest := dims[1:]
	for _, v := range values[dim] {
		partial[dim] = v
		out = cartesian(rest, values, partial, out)
	}
	delete(partial, dim)
	return out
}

// excludedBy reports whether combo is superset-matched by any exclude entry:
// the exclude entry's every key/value pair must appear, equal, in combo.
func excludedBy(combo map[string]string, excludes []map[string]string) bool {
	for _, ex := range excludes {
		if len(ex) == 0 {
			continue
		}
		match := true
		for k, v := range ex {
			if combo[k] != v {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// sanitize replaces every character outside [A-Za-z0-9_-] with '_'.
func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// orderedKeys returns combo's keys ordered per dimOrder first, then any
// remaining (Include-only) keys in sorted order.
func orderedKeys(combo map[string]string, dimOrder []string) []string {
	seen := make(map[string]bool, len(combo))
	keys := make([]string, 0, len(combo))
	for _, k := range dimOrder {
		if v, ok := combo[k]; ok {
			_ = v
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var extra []string
	for k := range combo {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(keys, extra...)
}

func materialize(base *workflow.WorkflowTask, combo map[string]string) *workflow.WorkflowTask {
	var idSuffix strings.Builder
	for _, k := range orderedKeys(combo, base.Matrix.DimensionOrder) {
		idSuffix.WriteByte('-')
		idSuffix.WriteString(sanitize(combo[k]))
	}

	instance := &workflow.WorkflowTask{
		Id:               base.Id + idSuffix.String(),
		Name:             interpolate(base.Name, combo),
		Run:              interpolate(base.Run, combo),
		Shell:            base.Shell,
		WorkingDirectory: base.WorkingDirectory,
		If:               interpolate(base.If, combo),
		Input:            base.Input,
		Output:           base.Output,
		TimeoutMs:        base.TimeoutMs,
		ContinueOnError:  base.ContinueOnError,
		RetryCount:       base.RetryCount,
		RetryDelayMs:     base.RetryDelayMs,
		DependsOn:        append([]string(nil), base.DependsOn...),
		Docker:           base.Docker,
		Ssh:              base.Ssh,
		MatrixValues:     combo,
	}

	instance.Input.Value = interpolate(base.Input.Value, combo)
	instance.Input.FilePath = interpolate(base.Input.FilePath, combo)

	if len(base.Environment) > 0 {
		instance.Environment = make(map[string]string, len(base.Environment))
		for k, v := range base.Environment {
			instance.Environment[k] = interpolate(v, combo)
		}
	}

	return instance
}

// interpolate performs literal substitution of ${{ matrix.<key> }} with
// combo's value for <key>; unknown keys are left untouched.
func interpolate(s string, combo map[string]string) string {
	if s == "" || !strings.Contains(s, "matrix.") {
		return s
	}
	for k, v := range combo {
		s = strings.ReplaceAll(s, "${{ matrix."+k+" }}", v)
		s = strings.ReplaceAll(s, "${{matrix."+k+"}}", v)
	}
	return s
}

// rewriteDeps rewrites t's DependsOn edges per §4.2 step 3: an edge to a
// base id that was expanded is replaced either by the single matching
// instance (when t itself was expanded and shares dimension keys with the
// base's matrix) or by edges to every expanded instance.
func rewriteDeps(t *workflow.WorkflowTask, expansionMap map[string][]string, baseMatrix map[string]*workflow.MatrixConfig, instancesByID map[string]*workflow.WorkflowTask) []string {
	var rewritten []string
	for _, dep := range t.DependsOn {
		instances, expanded := expansionMap[dep]
		if !expanded {
			rewritten = append(rewritten, dep)
			continue
		}

		if t.MatrixValues != nil {
			if shared, ok := sharedDimensionMatch(t, dep, instances, baseMatrix, instancesByID); ok {
				rewritten = append(rewritten, shared...)
				continue
			}
		}
		rewritten = append(rewritten, instances...)
	}
	return rewritten
}

// sharedDimensionMatch returns the subset of dep's expanded instance ids
// whose MatrixValues agree with t's MatrixValues on every dimension key they
// share. ok is false when t and dep's matrix share no dimension keys, in
// which case the caller falls back to depending on every instance.
func sharedDimensionMatch(t *workflow.WorkflowTask, depBaseID string, instanceIDs []string, baseMatrix map[string]*workflow.MatrixConfig, instancesByID map[string]*workflow.WorkflowTask) ([]string, bool) {
	depMatrix, ok := baseMatrix[depBaseID]
	if !ok {
		return nil, false
	}

	var sharedDims []string
	for _, dim := range depMatrix.DimensionOrder {
		if _, ok := t.MatrixValues[dim]; ok {
			sharedDims = append(sharedDims, dim)
		}
	}
	if len(sharedDims) == 0 {
		return nil, false
	}

	var matched []string
	for _, id := range instanceIDs {
		inst := instancesByID[id]
		if inst == nil {
			continue
		}
		agree := true
		for _, dim := range sharedDims {
			if inst.MatrixValues[dim] != t.MatrixValues[dim] {
				agree = false
				break
			}
		}
		if agree {
			matched = append(matched, id)
		}
	}
	return matched, true
}
