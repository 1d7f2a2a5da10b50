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

import (
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Evaluator evaluates `${{ }}` expressions: interpolation to string, and
// condition evaluation to bool. It caches compiled leaf programs to avoid
// recompiling the same expression on every task.
type Evaluator struct {
	mu      sync.RWMutex
	cache   map[string]*vm.Program
	logger  *slog.Logger
}

// New creates an expression evaluator.
func New(logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{cache: make(map[string]*vm.Program), logger: logger}
}

// resolveLeaf compiles (with caching) and runs a single property-path or
// function-call leaf against ctx via expr-lang.
func (e *Evaluator) resolveLeaf(leaf string, ctx *Context) (interface{}, error) {
	leaf = strings.TrimSpace(leaf)
	if leaf == "" {
		return "", nil
	}

	prog, err := e.compile(leaf)
	if err != nil {
		return nil, err
	}
	return expr.Run(prog, ctx.toEnv())
}

func (e *Evaluator) compile(leaf string) (*vm.Program, error) {
	e.mu.RLock()
	if prog, ok := e.cache[leaf]; ok {
		e.mu.RUnlock()
		return prog, nil
	}
	e.mu.RUnlock()

	prog, err := expr.Compile(leaf, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[leaf] = prog
	e.mu.Unlock()
	return prog, nil
}

// ClearCache drops all cached compiled programs. Mainly useful for tests.
func (e *Evaluator) ClearCache() {
	e.mu.Lock()
	e.cache = make(map[string]*vm.Program)
	e.mu.Unlock()
}

// --- interpolation -----------------------------------------------------

// templateRegexp matches ${{ <expr> }} occurrences.
var templateRegexp = mustCompileTemplateRegexp()

// Interpolate replaces every ${{ expr }} occurrence in s with the string
// value of its inner expression. Unresolved references resolve to the empty
// string; interpolation never returns an error.
func (e *Evaluator) Interpolate(s string, ctx *Context) string {
	if !strings.Contains(s, "${{") {
		return s
	}
	return templateRegexp.ReplaceAllStringFunc(s, func(match string) string {
		inner := strings.TrimSpace(match[3 : len(match)-2])
		val, err := e.evalLeafValue(inner, ctx)
		if err != nil {
			return ""
		}
		return stringify(val)
	})
}

// --- condition evaluation ------------------------------------------------

// EvaluateCondition evaluates expr (optionally wrapped in ${{ }}) to a bool,
// following the precedence !, &&, ||, with status/string functions and
// property paths as leaves; on any internal error it defaults to false and
// logs a warning.
func (e *Evaluator) EvaluateCondition(raw string, ctx *Context) bool {
	inner := strings.TrimSpace(raw)
	if strings.HasPrefix(inner, "${{") && strings.HasSuffix(inner, "}}") {
		inner = strings.TrimSpace(inner[3 : len(inner)-2])
	}
	if inner == "" {
		return true
	}

	result, err := e.evalOr(inner, ctx)
	if err != nil {
		e.logger.Warn("condition evaluation failed, defaulting to false", "expr", raw, "error", err)
		return false
	}
	return result
}

func (e *Evaluator) evalOr(s string, ctx *Context) (bool, error) {
	parts := splitTopLevel(s, "||")
	if len(parts) == 1 {
		return e.evalAnd(parts[0], ctx)
	}
	for _, p := range parts {
		v, err := e.evalAnd(p, ctx)
		if err != nil {
			return false, err
		}
		if v {
			return true, nil
		}
	}
	return false, nil
}

func (e *Evaluator) evalAnd(s string, ctx *Context) (bool, error) {
	parts := splitTopLevel(s, "&&")
	if len(parts) == 1 {
		return e.evalNot(parts[0], ctx)
	}
	for _, p := range parts {
		v, err := e.evalNot(p, ctx)
		if err != nil {
			return false, err
		}
		if !v {
			return false, nil
		}
	}
	return true, nil
}

func (e *Evaluator) evalNot(s string, ctx *Context) (bool, error) {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "!") && !strings.HasPrefix(trimmed, "!=") {
		v, err := e.evalNot(trimmed[1:], ctx)
		if err != nil {
			return false, err
		}
		return !v, nil
	}
	return e.evalComparison(trimmed, ctx)
}

var comparisonOps = []string{"==", "!=", ">=", "<=", ">", "<"}

func (e *Evaluator) evalComparison(s string, ctx *Context) (bool, error) {
	idx, opLen, op := findTopLevelOp(s, comparisonOps)
	if idx < 0 {
		return e.evalLeafBool(s, ctx)
	}

	left := s[:idx]
	right := s[idx+opLen:]

	leftVal, err := e.evalLeafValue(left, ctx)
	if err != nil {
		return false, err
	}
	rightVal, err := e.evalLeafValue(right, ctx)
	if err != nil {
		return false, err
	}

	return compareValues(stringify(leftVal), stringify(rightVal), op), nil
}

// evalLeafBool evaluates a leaf that is not part of a comparison: if it is a
// function call/expression that already yields bool, that value is used
// directly; otherwise the leaf is resolved to a string and tested for
// truthiness.
func (e *Evaluator) evalLeafBool(s string, ctx *Context) (bool, error) {
	val, err := e.evalLeafValue(s, ctx)
	if err != nil {
		return false, err
	}
	if b, ok := val.(bool); ok {
		return b, nil
	}
	return isTruthy(stringify(val)), nil
}

func (e *Evaluator) evalLeafValue(s string, ctx *Context) (interface{}, error) {
	trimmed := strings.TrimSpace(s)
	if isFullyParenthesized(trimmed) {
		stripped := trimmed[1 : len(trimmed)-1]
		b, err := e.evalOr(stripped, ctx)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	if inner, path, ok := splitFromJson(trimmed); ok {
		return e.evaluateFromJson(inner, path, ctx), nil
	}
	return e.resolveLeaf(trimmed, ctx)
}

// --- value helpers ---------------------------------------------------

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		if t == math.Trunc(t) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

// isTruthy implements the engine's truthiness rule: empty, whitespace-only,
// "0", and case-insensitive "false" are falsy; everything else is truthy.
func isTruthy(s string) bool {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || trimmed == "0" {
		return false
	}
	if strings.EqualFold(trimmed, "false") {
		return false
	}
	return true
}

const numericEpsilon = 1e-9

// compareValues implements §4.3's numeric-first, string-fallback comparison.
func compareValues(left, right, op string) bool {
	lf, lok := strconv.ParseFloat(left, 64)
	rf, rok := strconv.ParseFloat(right, 64)

	if lok && rok {
		switch op {
		case "==":
			return math.Abs(lf-rf) < numericEpsilon
		case "!=":
			return math.Abs(lf-rf) >= numericEpsilon
		case ">":
			return lf > rf
		case "<":
			return lf < rf
		case ">=":
			return lf >= rf
		case "<=":
			return lf <= rf
		}
	}

	switch op {
	case "==":
		return left == right
	case "!=":
		return left != right
	default:
		return false
	}
}

func isFullyParenthesized(s string) bool {
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return false
	}
	depth := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i != len(s)-1 {
				return false
			}
		}
	}
	return depth == 0
}

// splitTopLevel splits s on every top-level (paren-depth 0, not inside a
// quoted string) occurrence of op.
func splitTopLevel(s string, op string) []string {
	var parts []string
	depth := 0
	var quote byte
	last := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			depth--
		case depth == 0 && strings.HasPrefix(s[i:], op):
			parts = append(parts, s[last:i])
			i += len(op) - 1
			last = i + 1
		}
	}
	parts = append(parts, s[last:])
	return parts
}

// findTopLevelOp finds the leftmost top-level occurrence of any of ops,
// preferring longer operators at the same position (so "==" beats "=").
func findTopLevelOp(s string, ops []string) (idx int, opLen int, op string) {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
			continue
		case c == '\'' || c == '"':
			quote = c
			continue
		case c == '(':
			depth++
			continue
		case c == ')':
			depth--
			continue
		}
		if depth != 0 {
			continue
		}
		for _, candidate := range ops {
			if strings.HasPrefix(s[i:], candidate) {
				return i, len(candidate), candidate
			}
		}
	}
	return -1, 0, ""
}
