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
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow"
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow/expression"
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow/runner"
)

// TestDispatchAsyncResolvesResponseTemplateWithRunID reproduces a pattern
// rule matching "deploy staging", dispatching the triggered workflow, and
// sending back a response with both the named capture and the run id that
// only exists after dispatch substituted in.
func TestDispatchAsyncResolvesResponseTemplateWithRunID(t *testing.T) {
	rule := &workflow.TriggerRule{
		Name:             "deploy",
		Type:             workflow.RulePattern,
		Pattern:          `deploy (?P<env>\w+)`,
		Sources:          []workflow.TriggerSourceType{workflow.SourceTelegram},
		WorkflowPath:     "deploy.yaml",
		ResponseTemplate: "dispatched to {{env}} as {{runId}}",
		Enabled:          true,
	}
	matcher, err := NewMatcher([]*workflow.TriggerRule{rule})
	require.NoError(t, err)

	var mu sync.Mutex
	var sent string
	respond := func(ctx context.Context, text string) error {
		mu.Lock()
		defer mu.Unlock()
		sent = text
		return nil
	}

	msg := IncomingMessage{
		Source:  workflow.SourceTelegram,
		Text:    "deploy staging",
		Respond: respond,
	}

	matches := matcher.Match(msg)
	require.Len(t, matches, 1)
	assert.Equal(t, map[string]string{"env": "staging"}, matches[0].Captures)

	r := runner.New(expression.New(nil), nil)
	dispatcher := NewDispatcher(r, func(path string) (*workflow.Workflow, error) {
		return &workflow.Workflow{Name: "triggered", Tasks: []*workflow.WorkflowTask{
			{Id: "only", Run: "true", Shell: "bash"},
		}}, nil
	}, nil)

	runID, err := dispatcher.DispatchAsync(context.Background(), matches[0])
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return sent != ""
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "dispatched to staging as "+runID, sent)
}

// TestDispatchAsyncNoResponseTemplateSkipsRespond confirms a rule with no
// ResponseTemplate never invokes Respond, even when one is set.
func TestDispatchAsyncNoResponseTemplateSkipsRespond(t *testing.T) {
	rule := &workflow.TriggerRule{
		Name:         "silent",
		Type:         workflow.RuleKeyword,
		Keywords:     []string{"ping"},
		Sources:      []workflow.TriggerSourceType{workflow.SourceSlack},
		WorkflowPath: "ping.yaml",
		Enabled:      true,
	}
	matcher, err := NewMatcher([]*workflow.TriggerRule{rule})
	require.NoError(t, err)

	called := false
	msg := IncomingMessage{
		Source: workflow.SourceSlack,
		Text:   "ping",
		Respond: func(ctx context.Context, text string) error {
			called = true
			return nil
		},
	}

	matches := matcher.Match(msg)
	require.Len(t, matches, 1)

	r := runner.New(expression.New(nil), nil)
	dispatcher := NewDispatcher(r, func(path string) (*workflow.Workflow, error) {
		return &workflow.Workflow{Name: "triggered", Tasks: []*workflow.WorkflowTask{
			{Id: "only", Run: "true", Shell: "bash"},
		}}, nil
	}, nil)

	runID, err := dispatcher.DispatchAsync(context.Background(), matches[0])
	require.NoError(t, err)
	require.NotEmpty(t, runID)
	assert.False(t, called)
}
