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
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

const echoWorkflowYAML = `
name: greet
tasks:
  - id: hello
    run: echo hello
  - id: world
    run: echo world
    dependsOn: [hello]
`

func TestDispatchCommandRunsWorkflowOnce(t *testing.T) {
	path := writeTempWorkflow(t, echoWorkflowYAML)
	cmd := newDispatchCommand()
	cmd.SetArgs([]string{path, "--quiet"})
	cmd.SetContext(context.Background())
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	require.NoError(t, cmd.Execute())
}

func TestDispatchCommandDryRunSkipsExecution(t *testing.T) {
	path := writeTempWorkflow(t, validWorkflowYAML)
	cmd := newDispatchCommand()
	cmd.SetArgs([]string{path, "--dry-run", "--quiet"})
	cmd.SetContext(context.Background())
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	require.NoError(t, cmd.Execute())
}
