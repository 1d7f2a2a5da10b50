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

package expression

// TaskRef is the subset of a task's result visible to expressions.
type TaskRef struct {
	Output    string
	ExitCode  int
	IsSuccess bool
	IsFailed  bool
}

// WorkflowRef is the subset of workflow identity visible to expressions.
type WorkflowRef struct {
	Name  string
	ID    string
	RunID string
}

// Context is the evaluation environment for one expression evaluation.
type Context struct {
	Env       map[string]string
	Tasks     map[string]TaskRef
	Workflow  WorkflowRef
	Params    map[string]string
	Matrix    map[string]string
	Cancelled bool

	// Deps is the caller's own DependsOn list, used by success()/failure()
	// when they are invoked with no explicit argument list.
	Deps []string
}

// toEnv converts the Context into the flat map expr-lang evaluates leaves
// against, plus the function bindings available at every leaf.
func (c *Context) toEnv() map[string]interface{} {
	tasks := make(map[string]interface{}, len(c.Tasks))
	for id, t := range c.Tasks {
		tasks[id] = map[string]interface{}{
			"output":    t.Output,
			"exitcode":  t.ExitCode,
			"issuccess": t.IsSuccess,
			"isfailed":  t.IsFailed,
		}
	}

	env := make(map[string]interface{}, len(c.Env))
	for k, v := range c.Env {
		env[k] = v
	}

	params := make(map[string]interface{}, len(c.Params))
	for k, v := range c.Params {
		params[k] = v
	}

	matrix := make(map[string]interface{}, len(c.Matrix))
	for k, v := range c.Matrix {
		matrix[k] = v
	}

	return map[string]interface{}{
		"env": env,
		"tasks": tasks,
		"workflow": map[string]interface{}{
			"name":  c.Workflow.Name,
			"id":    c.Workflow.ID,
			"runid": c.Workflow.RunID,
		},
		"params": params,
		"matrix": matrix,

		"success":      c.successFunc,
		"failure":      c.failureFunc,
		"cancelled":    c.cancelledFunc,
		"always":       func() bool { return true },
		"contains":     stringContains,
		"startsWith":   stringStartsWith,
		"endsWith":     stringEndsWith,
		"equals":       stringEquals,
		"isEmpty":      isEmpty,
		"isNotEmpty":   isNotEmpty,
	}
}

func (c *Context) depResult(depsArg []interface{}) []string {
	if len(depsArg) == 0 {
		return c.Deps
	}
	deps := make([]string, 0, len(depsArg))
	for _, d := range depsArg {
		if s, ok := d.(string); ok {
			deps = append(deps, s)
		}
	}
	return deps
}

func (c *Context) successFunc(deps ...interface{}) bool {
	list := c.depResult(deps)
	if len(list) == 0 {
		return true
	}
	for _, id := range list {
		t, ok := c.Tasks[id]
		if !ok || !t.IsSuccess {
			return false
		}
	}
	return true
}

func (c *Context) failureFunc(deps ...interface{}) bool {
	list := c.depResult(deps)
	for _, id := range list {
		if t, ok := c.Tasks[id]; ok && t.IsFailed {
			return true
		}
	}
	return false
}

func (c *Context) cancelledFunc() bool {
	return c.Cancelled
}
