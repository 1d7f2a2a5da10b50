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

// fakeListener lets tests push messages directly without a real transport.
type fakeListener struct {
	source workflow.TriggerSourceType
	out    chan IncomingMessage
}

func newFakeListener(source workflow.TriggerSourceType) *fakeListener {
	return &fakeListener{source: source, out: make(chan IncomingMessage, 16)}
}

func (f *fakeListener) Source() workflow.TriggerSourceType       { return f.source }
func (f *fakeListener) Start(ctx context.Context) error         { return nil }
func (f *fakeListener) Stop() error                             { close(f.out); return nil }
func (f *fakeListener) Receive() <-chan IncomingMessage          { return f.out }
func (f *fakeListener) push(msg IncomingMessage)                { f.out <- msg }

func newTestService(t *testing.T, rules []*workflow.TriggerRule) (*Service, *fakeListener) {
	t.Helper()
	matcher, err := NewMatcher(rules)
	require.NoError(t, err)

	r := runner.New(expression.New(nil), nil)
	dispatcher := NewDispatcher(r, func(path string) (*workflow.Workflow, error) {
		return &workflow.Workflow{Name: "triggered", Tasks: []*workflow.WorkflowTask{
			{Id: "only", Run: "true", Shell: "bash"},
		}}, nil
	}, nil)

	svc := NewService(matcher, dispatcher, nil)
	l := newFakeListener(workflow.SourceSlack)
	ctx := context.Background()
	require.NoError(t, svc.AddListener(ctx, l))
	svc.Start(ctx)
	return svc, l
}

func TestServiceDispatchesOnMatch(t *testing.T) {
	rules := []*workflow.TriggerRule{
		{Name: "deploy", Type: workflow.RuleKeyword, Sources: []workflow.TriggerSourceType{workflow.SourceSlack}, Keywords: []string{"deploy"}, WorkflowPath: "deploy.yaml", Enabled: true},
	}
	svc, l := newTestService(t, rules)
	defer svc.Stop()

	var mu sync.Mutex
	var events []Event
	svc.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	})

	l.push(IncomingMessage{Source: workflow.SourceSlack, Text: "deploy please"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			if e.Kind == EventTriggerDispatched {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServiceNoMatchEmitsOnlyReceived(t *testing.T) {
	rules := []*workflow.TriggerRule{
		{Name: "deploy", Type: workflow.RuleKeyword, Sources: []workflow.TriggerSourceType{workflow.SourceSlack}, Keywords: []string{"deploy"}, WorkflowPath: "deploy.yaml", Enabled: true},
	}
	svc, l := newTestService(t, rules)
	defer svc.Stop()

	var mu sync.Mutex
	var events []Event
	svc.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	})

	l.push(IncomingMessage{Source: workflow.SourceSlack, Text: "good morning"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) >= 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, e := range events {
		assert.NotEqual(t, EventTriggerDispatched, e.Kind)
	}
}
