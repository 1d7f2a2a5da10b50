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

package trigger

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow"
)

// Match is a TriggerRule that matched an IncomingMessage, carrying whatever
// named regex captures the pattern produced (empty for keyword rules).
type Match struct {
	Rule     *workflow.TriggerRule
	Message  IncomingMessage
	Captures map[string]string
}

// Matcher evaluates incoming messages against a set of TriggerRules. Pattern
// rules are compiled once and cached; keyword rules do a case-insensitive
// substring scan.
type Matcher struct {
	mu    sync.RWMutex
	rules []*workflow.TriggerRule
	cache map[string]*regexp.Regexp
}

// NewMatcher builds a Matcher over rules. Invalid pattern rules are rejected
// up front so a bad trigger file fails fast instead of silently matching
// nothing at runtime. Patterns are compiled case-insensitive (IgnoreCase |
// Compiled, per the matcher contract), matching the keyword path's
// case-insensitive substring scan.
func NewMatcher(rules []*workflow.TriggerRule) (*Matcher, error) {
	m := &Matcher{rules: rules, cache: make(map[string]*regexp.Regexp)}
	for _, r := range rules {
		if r.Type == workflow.RulePattern {
			re, err := regexp.Compile("(?i)" + r.Pattern)
			if err != nil {
				return nil, fmt.Errorf("trigger %q: invalid pattern: %w", r.Name, err)
			}
			m.cache[r.Name] = re
		}
	}
	return m, nil
}

// Match returns the first enabled rule (declaration order) that matches msg
// for msg.Source, or nil if none do. At most one rule fires per message.
func (m *Matcher) Match(msg IncomingMessage) []Match {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.rules {
		if !r.Enabled || !r.HasSource(msg.Source) {
			continue
		}
		switch r.Type {
		case workflow.RuleKeyword:
			if matchesKeyword(r.Keywords, msg.Text) {
				return []Match{{Rule: r, Message: msg}}
			}
		case workflow.RulePattern:
			re := m.cache[r.Name]
			if re == nil {
				continue
			}
			if captures, ok := matchPattern(re, msg.Text); ok {
				return []Match{{Rule: r, Message: msg, Captures: captures}}
			}
		}
	}
	return nil
}

func matchesKeyword(keywords []string, text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func matchPattern(re *regexp.Regexp, text string) (map[string]string, bool) {
	groups := re.FindStringSubmatch(text)
	if groups == nil {
		return nil, false
	}
	captures := make(map[string]string)
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		captures[name] = groups[i]
	}
	return captures, true
}
