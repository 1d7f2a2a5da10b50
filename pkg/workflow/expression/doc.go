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

// Package expression implements GitHub-Actions-style `${{ expr }}`
// interpolation and condition evaluation for workflow tasks.
//
// Namespace available inside an expression:
//
//	env.NAME             environment variable lookup
//	tasks.<id>.output    stdout of a completed task
//	tasks.<id>.exitcode  exit code, as a decimal string
//	workflow.name        workflow name
//	workflow.id          workflow id
//	workflow.runid       run id
//	params.<key>         CLI parameter
//	matrix.<key>         only present during matrix expansion
//
// Status functions (success, failure, cancelled, always), string functions
// (contains, startsWith, endsWith, equals, isEmpty, isNotEmpty) and the JSON
// navigation function fromJson(expr).path are all available as leaves.
//
// Property-path leaves (env.X, tasks.a.output, ...) and function calls are
// resolved with github.com/expr-lang/expr against a small dynamic
// map[string]interface{} environment; the outer !, &&, || precedence and the
// numeric-first comparison operators are evaluated by a small hand-written
// splitter (recommended directly by this engine's design notes: the
// precedence is shallow enough that expr-lang's own AST isn't needed for it).
// Literal `${{` inside a user string is not supported.
package expression
