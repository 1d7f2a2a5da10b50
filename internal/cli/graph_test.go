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

package cli

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow/loader"
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow/plan"
)

func TestRenderAsciiListsWavesInOrder(t *testing.T) {
	wf, err := loader.Parse([]byte(validWorkflowYAML))
	require.NoError(t, err)
	p, err := plan.Build(wf)
	require.NoError(t, err)

	out := renderAscii(wf, p)
	require.Contains(t, out, "wave 0:")
	require.Contains(t, out, "build")
	require.Contains(t, out, "test (needs build)")
}

func TestRenderDotProducesValidDigraph(t *testing.T) {
	wf, err := loader.Parse([]byte(validWorkflowYAML))
	require.NoError(t, err)
	p, err := plan.Build(wf)
	require.NoError(t, err)

	out := renderDot(wf, p)
	require.Contains(t, out, `digraph "deploy"`)
	require.Contains(t, out, `"build" -> "test"`)
}
