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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow"
)

func TestMatcherKeywordMatch(t *testing.T) {
	rules := []*workflow.TriggerRule{
		{
			Name:     "deploy",
			Type:     workflow.RuleKeyword,
			Sources:  []workflow.TriggerSourceType{workflow.SourceSlack},
			Keywords: []string{"deploy", "ship it"},
			Enabled:  true,
		},
	}
	m, err := NewMatcher(rules)
	require.NoError(t, err)

	matches := m.Match(IncomingMessage{Source: workflow.SourceSlack, Text: "please Deploy the app"})
	require.Len(t, matches, 1)
	assert.Equal(t, "deploy", matches[0].Rule.Name)
}

func TestMatcherIgnoresWrongSource(t *testing.T) {
	rules := []*workflow.TriggerRule{
		{Name: "deploy", Type: workflow.RuleKeyword, Sources: []workflow.TriggerSourceType{workflow.SourceSlack}, Keywords: []string{"deploy"}, Enabled: true},
	}
	m, err := NewMatcher(rules)
	require.NoError(t, err)

	matches := m.Match(IncomingMessage{Source: workflow.SourceTelegram, Text: "deploy now"})
	assert.Empty(t, matches)
}

func TestMatcherDisabledRuleNeverMatches(t *testing.T) {
	rules := []*workflow.TriggerRule{
		{Name: "deploy", Type: workflow.RuleKeyword, Sources: []workflow.TriggerSourceType{workflow.SourceSlack}, Keywords: []string{"deploy"}, Enabled: false},
	}
	m, err := NewMatcher(rules)
	require.NoError(t, err)

	matches := m.Match(IncomingMessage{Source: workflow.SourceSlack, Text: "deploy now"})
	assert.Empty(t, matches)
}

func TestMatcherPatternCapturesNamedGroups(t *testing.T) {
	rules := []*workflow.TriggerRule{
		{
			Name:    "restart-service",
			Type:    workflow.RulePattern,
			Sources: []workflow.TriggerSourceType{workflow.SourceHTTP},
			Pattern: `^restart (?P<service>\w+)$`,
			Enabled: true,
		},
	}
	m, err := NewMatcher(rules)
	require.NoError(t, err)

	matches := m.Match(IncomingMessage{Source: workflow.SourceHTTP, Text: "restart billing"})
	require.Len(t, matches, 1)
	assert.Equal(t, "billing", matches[0].Captures["service"])
}

func TestMatcherRejectsInvalidPatternAtConstruction(t *testing.T) {
	rules := []*workflow.TriggerRule{
		{Name: "bad", Type: workflow.RulePattern, Pattern: "(unterminated", Enabled: true},
	}
	_, err := NewMatcher(rules)
	assert.Error(t, err)
}

func TestResolveParametersUsesCapturesThenExtras(t *testing.T) {
	match := Match{
		Rule: &workflow.TriggerRule{
			Name: "restart-service",
			Parameters: map[string]string{
				"service": "{{service}}",
				"channel": "{{channel}}",
				"region":  "{{region}}",
			},
		},
		Message: IncomingMessage{
			Channel: "ops",
			Extras:  map[string]string{"region": "us-east-1"},
		},
		Captures: map[string]string{"service": "billing"},
	}

	resolved := ResolveParameters(match.Rule.Parameters, match)
	assert.Equal(t, "billing", resolved["service"])
	assert.Equal(t, "ops", resolved["channel"])
	assert.Equal(t, "us-east-1", resolved["region"])
}

func TestResolveParametersUnknownPlaceholderIsEmpty(t *testing.T) {
	match := Match{Message: IncomingMessage{}}
	resolved := ResolveParameters(map[string]string{"x": "{{nope}}"}, match)
	assert.Equal(t, "", resolved["x"])
}
