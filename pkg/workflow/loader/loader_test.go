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

package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	workflowerrors "github.com/cryonayes/workflow-engine-sub000/pkg/errors"
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow"
)

func TestParseValidWorkflow(t *testing.T) {
	yaml := `
name: deploy
description: deploys the service
environment:
  STAGE: prod
defaultTimeoutMs: 30000
shell: bash
tasks:
  - id: build
    run: make build
  - id: test
    run: make test
    dependsOn: [build]
  - id: deploy
    name: Deploy
    run: make deploy
    dependsOn: [test]
    retryCount: 2
    retryDelayMs: 1000
    matrix:
      dimensions:
        region: [us, eu]
`
	wf, err := Parse([]byte(yaml))
	require.NoError(t, err)
	assert.Equal(t, "deploy", wf.Name)
	assert.Equal(t, -1, wf.MaxParallelism)
	require.Len(t, wf.Tasks, 3)
	assert.Equal(t, "Deploy", wf.Tasks[2].DisplayName())
	assert.Equal(t, []string{"test"}, wf.Tasks[2].DependsOn)
	require.NotNil(t, wf.Tasks[2].Matrix)
	assert.Equal(t, []string{"us", "eu"}, wf.Tasks[2].Matrix.Dimensions["region"])
}

func TestParseMatrixPreservesDimensionDeclarationOrder(t *testing.T) {
	yaml := `
name: deploy
tasks:
  - id: deploy
    run: make deploy
    matrix:
      dimensions:
        zone: [a, b]
        os: [linux, darwin]
        region: [us, eu]
`
	wf, err := Parse([]byte(yaml))
	require.NoError(t, err)
	require.NotNil(t, wf.Tasks[0].Matrix)
	assert.Equal(t, []string{"zone", "os", "region"}, wf.Tasks[0].Matrix.DimensionOrder)
}

func TestParseMissingName(t *testing.T) {
	_, err := Parse([]byte(`tasks: [{id: a, run: echo hi}]`))
	require.Error(t, err)
	var verr *workflowerrors.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestParseNoTasks(t *testing.T) {
	_, err := Parse([]byte(`name: empty`))
	assert.Error(t, err)
}

func TestParseDuplicateTaskID(t *testing.T) {
	yaml := `
name: dup
tasks:
  - id: a
    run: echo 1
  - id: a
    run: echo 2
`
	_, err := Parse([]byte(yaml))
	assert.Error(t, err)
}

func TestParseUnknownDependency(t *testing.T) {
	yaml := `
name: broken
tasks:
  - id: a
    run: echo 1
    dependsOn: [ghost]
`
	_, err := Parse([]byte(yaml))
	require.Error(t, err)
	var uerr *workflowerrors.UnknownDependencyError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "ghost", uerr.DependsOn)
}

func TestParseTaskInputAndOutput(t *testing.T) {
	yaml := `
name: io
tasks:
  - id: a
    run: cat
    input:
      type: text
      value: "hello"
    output:
      type: file
      filePath: /tmp/out.txt
      captureStderr: false
      maxSizeBytes: 4096
`
	wf, err := Parse([]byte(yaml))
	require.NoError(t, err)
	task := wf.Tasks[0]
	assert.Equal(t, workflow.InputText, task.Input.Type)
	assert.Equal(t, "hello", task.Input.Value)
	assert.Equal(t, workflow.CaptureFile, task.Output.Type)
	assert.False(t, task.Output.EffectiveCaptureStderr())
	assert.Equal(t, int64(4096), task.Output.EffectiveMaxSizeBytes())
}

func TestParseDockerAndSsh(t *testing.T) {
	yaml := `
name: remote
docker:
  container: builder
ssh:
  host: example.com
  user: deploy
tasks:
  - id: a
    run: echo hi
    docker:
      container: override
`
	wf, err := Parse([]byte(yaml))
	require.NoError(t, err)
	require.NotNil(t, wf.Docker)
	assert.Equal(t, "builder", wf.Docker.Container)
	require.NotNil(t, wf.Ssh)
	assert.Equal(t, "example.com", wf.Ssh.Host)
	require.NotNil(t, wf.Tasks[0].Docker)
	assert.Equal(t, "override", wf.Tasks[0].Docker.Container)
}

func TestParseTriggersValid(t *testing.T) {
	yaml := `
triggers:
  - name: deploy-on-keyword
    type: keyword
    sources: [slack, http]
    keywords: [deploy]
    workflowPath: deploy.yaml
    parameters:
      env: "{{channel}}"
    enabled: true
  - name: restart-on-pattern
    type: pattern
    sources: [http]
    pattern: "^restart (?P<service>\\w+)$"
    workflowPath: restart.yaml
    enabled: false
`
	rules, err := ParseTriggers([]byte(yaml))
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, workflow.RuleKeyword, rules[0].Type)
	assert.Equal(t, []workflow.TriggerSourceType{workflow.SourceSlack, workflow.SourceHTTP}, rules[0].Sources)
	assert.Equal(t, workflow.RulePattern, rules[1].Type)
	assert.False(t, rules[1].Enabled)
}

func TestParseTriggersMissingWorkflowPath(t *testing.T) {
	yaml := `
triggers:
  - name: broken
    type: keyword
    keywords: [go]
`
	_, err := ParseTriggers([]byte(yaml))
	assert.Error(t, err)
}

func TestParseTriggersUnknownSource(t *testing.T) {
	yaml := `
triggers:
  - name: broken
    type: keyword
    keywords: [go]
    workflowPath: x.yaml
    sources: [carrier-pigeon]
`
	_, err := ParseTriggers([]byte(yaml))
	assert.Error(t, err)
}

func TestParseTriggersKeywordRequiresKeywords(t *testing.T) {
	yaml := `
triggers:
  - name: broken
    type: keyword
    workflowPath: x.yaml
`
	_, err := ParseTriggers([]byte(yaml))
	assert.Error(t, err)
}
