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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow"
)

const validTriggersYAML = `
triggers:
  - name: deploy-on-keyword
    type: keyword
    sources: [http]
    keywords: ["deploy"]
    workflowPath: deploy.yaml
    enabled: true
`

func writeTempTriggers(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "triggers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func runTriggerCmd(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newTriggerCommand()
	cmd.SetArgs(args)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	return cmd.Execute()
}

func TestTriggerValidateAcceptsWellFormedFile(t *testing.T) {
	path := writeTempTriggers(t, validTriggersYAML)
	require.NoError(t, runTriggerCmd(t, "validate", path))
}

func TestTriggerValidateRejectsMissingWorkflowPath(t *testing.T) {
	path := writeTempTriggers(t, `
triggers:
  - name: broken
    type: keyword
    keywords: ["go"]
`)
	err := runTriggerCmd(t, "validate", path)
	require.Error(t, err)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.Code)
}

func TestTriggerListPrintsRuleNames(t *testing.T) {
	path := writeTempTriggers(t, validTriggersYAML)
	require.NoError(t, runTriggerCmd(t, "list", path))
}

func TestTriggerTestMatchesKeyword(t *testing.T) {
	path := writeTempTriggers(t, validTriggersYAML)
	require.NoError(t, runTriggerCmd(t, "test", path, "--source", "http", "--text", "please deploy now", "--dry-run"))
}

func TestToSourceType(t *testing.T) {
	src, err := toSourceType("slack")
	require.NoError(t, err)
	assert.Equal(t, workflow.SourceSlack, src)

	_, err = toSourceType("carrier-pigeon")
	assert.Error(t, err)
}
