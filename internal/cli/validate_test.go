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
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validWorkflowYAML = `
name: deploy
tasks:
  - id: build
    run: make build
  - id: test
    run: make test
    dependsOn: [build]
`

const cyclicWorkflowYAML = `
name: broken
tasks:
  - id: a
    run: echo a
    dependsOn: [b]
  - id: b
    run: echo b
    dependsOn: [a]
`

func writeTempWorkflow(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestValidateCommandAcceptsValidWorkflow(t *testing.T) {
	path := writeTempWorkflow(t, validWorkflowYAML)
	cmd := newValidateCommand()
	cmd.SetArgs([]string{path})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	assert.NoError(t, cmd.Execute())
}

func TestValidateCommandRejectsCyclicWorkflow(t *testing.T) {
	path := writeTempWorkflow(t, cyclicWorkflowYAML)
	cmd := newValidateCommand()
	cmd.SetArgs([]string{path})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	err := cmd.Execute()
	require.Error(t, err)
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 1, exitErr.Code)
}

func TestValidateCommandRejectsMissingFile(t *testing.T) {
	cmd := newValidateCommand()
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "missing.yaml")})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	err := cmd.Execute()
	require.Error(t, err)
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 1, exitErr.Code)
}
