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
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/itchyny/gojq"
)

// fromJsonPrefix is the lower-cased opening of a fromJson(<inner>)<path>
// leaf, which splitFromJson matches case-insensitively;
// <inner> is balanced parens and <path> is a dot/bracket navigation chain
// that follows the call directly in the source text (e.g.
// fromJson(tasks.a.output).data.items[0].name).
var fromJsonPrefix = "fromjson("

// splitFromJson detects a fromJson(...)path leaf. It returns ok=false if the
// leaf does not start with fromJson(.
func splitFromJson(leaf string) (inner string, path string, ok bool) {
	trimmed := strings.TrimSpace(leaf)
	lower := strings.ToLower(trimmed)
	if !strings.HasPrefix(lower, fromJsonPrefix) {
		return "", "", false
	}

	depth := 0
	start := len(fromJsonPrefix) - 1 // index of the opening '('
	for i := start; i < len(trimmed); i++ {
		switch trimmed[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				inner = trimmed[start+1 : i]
				path = trimmed[i+1:]
				return inner, path, true
			}
		}
	}
	return "", "", false
}

// jsonQueryCache caches compiled gojq queries keyed by the literal path
// suffix (".data.items[0].name"), mirroring the expr program cache.
type jsonQueryCache struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

var jqCache = &jsonQueryCache{cache: make(map[string]*gojq.Code)}

func (c *jsonQueryCache) compile(path string) (*gojq.Code, error) {
	c.mu.RLock()
	if code, ok := c.cache[path]; ok {
		c.mu.RUnlock()
		return code, nil
	}
	c.mu.RUnlock()

	query, err := normalizeJQPath(path)
	if err != nil {
		return nil, err
	}
	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, err
	}
	code, err := gojq.Compile(parsed)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[path] = code
	c.mu.Unlock()
	return code, nil
}

// normalizeJQPath turns a fromJson().path suffix ("", ".a.b[0]", "[0].a",
// "a.b") into a valid jq filter string.
func normalizeJQPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return ".", nil
	}
	if path[0] != '.' && path[0] != '[' {
		path = "." + path
	}
	// quick sanity check: only dots, brackets, digits, identifier chars
	for _, r := range path {
		switch {
		case r == '.' || r == '[' || r == ']' || r == '_':
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z':
		default:
			return "", fmt.Errorf("invalid path character %q", r)
		}
	}
	return path, nil
}

// evaluateFromJson evaluates inner (an expression producing a JSON string)
// and resolves path against the parsed JSON. On any failure it returns an
// empty string, per the engine's "resolution never throws" contract.
func (e *Evaluator) evaluateFromJson(inner, path string, ctx *Context) string {
	jsonVal, err := e.resolveLeaf(inner, ctx)
	if err != nil {
		return ""
	}
	jsonText := stringify(jsonVal)

	var doc interface{}
	if err := json.Unmarshal([]byte(jsonText), &doc); err != nil {
		return ""
	}

	code, err := jqCache.compile(path)
	if err != nil {
		return ""
	}

	iter := code.Run(doc)
	v, ok := iter.Next()
	if !ok {
		return ""
	}
	if err, isErr := v.(error); isErr {
		_ = err
		return ""
	}

	return jqResultToString(v)
}

func jqResultToString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}
