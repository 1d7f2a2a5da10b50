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

package matrix

import (
	"testing"

	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(tasks []*workflow.WorkflowTask) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Id
	}
	return out
}

func TestExpandCartesianProduct(t *testing.T) {
	base := &workflow.WorkflowTask{
		Id:  "test",
		Run: "run ${{ matrix.os }} ${{ matrix.version }}",
		Matrix: &workflow.MatrixConfig{
			DimensionOrder: []string{"os", "version"},
			Dimensions: map[string][]string{
				"os":      {"linux", "windows"},
				"version": {"1.20", "1.21"},
			},
		},
	}

	out := Expand([]*workflow.WorkflowTask{base})
	require.Len(t, out, 4)
	assert.ElementsMatch(t, []string{
		"test-linux-1_20", "test-linux-1_21", "test-windows-1_20", "test-windows-1_21",
	}, ids(out))

	for _, instance := range out {
		assert.Nil(t, instance.Matrix)
		assert.NotEmpty(t, instance.MatrixValues)
		assert.Contains(t, instance.Run, instance.MatrixValues["os"])
	}
}

func TestExpandExcludeSupersetMatch(t *testing.T) {
	base := &workflow.WorkflowTask{
		Id: "test",
		Matrix: &workflow.MatrixConfig{
			DimensionOrder: []string{"os", "version"},
			Dimensions: map[string][]string{
				"os":      {"linux", "windows"},
				"version": {"1.20", "1.21"},
			},
			Exclude: []map[string]string{{"os": "windows", "version": "1.20"}},
		},
	}

	out := Expand([]*workflow.WorkflowTask{base})
	require.Len(t, out, 3)
	assert.NotContains(t, ids(out), "test-windows-1_20")
}

func TestExpandIncludeAppended(t *testing.T) {
	base := &workflow.WorkflowTask{
		Id: "test",
		Matrix: &workflow.MatrixConfig{
			DimensionOrder: []string{"os"},
			Dimensions:     map[string][]string{"os": {"linux"}},
			Include:        []map[string]string{{"os": "macos", "arch": "arm64"}},
		},
	}

	out := Expand([]*workflow.WorkflowTask{base})
	require.Len(t, out, 2)
	assert.Contains(t, ids(out), "test-macos-arm64")
}

func TestExpandDependencyRewriteSharedDimension(t *testing.T) {
	build := &workflow.WorkflowTask{
		Id: "build",
		Matrix: &workflow.MatrixConfig{
			DimensionOrder: []string{"os"},
			Dimensions:     map[string][]string{"os": {"linux", "windows"}},
		},
	}
	test := &workflow.WorkflowTask{
		Id:        "test",
		DependsOn: []string{"build"},
		Matrix: &workflow.MatrixConfig{
			DimensionOrder: []string{"os"},
			Dimensions:     map[string][]string{"os": {"linux", "windows"}},
		},
	}

	out := Expand([]*workflow.WorkflowTask{build, test})
	byID := make(map[string]*workflow.WorkflowTask, len(out))
	for _, o := range out {
		byID[o.Id] = o
	}

	linuxTest := byID["test-linux"]
	require.NotNil(t, linuxTest)
	assert.Equal(t, []string{"build-linux"}, linuxTest.DependsOn)
}

func TestExpandDependencyRewriteNoSharedDimension(t *testing.T) {
	build := &workflow.WorkflowTask{
		Id: "build",
		Matrix: &workflow.MatrixConfig{
			DimensionOrder: []string{"os"},
			Dimensions:     map[string][]string{"os": {"linux", "windows"}},
		},
	}
	deploy := &workflow.WorkflowTask{Id: "deploy", DependsOn: []string{"build"}}

	out := Expand([]*workflow.WorkflowTask{build, deploy})
	byID := make(map[string]*workflow.WorkflowTask, len(out))
	for _, o := range out {
		byID[o.Id] = o
	}

	d := byID["deploy"]
	require.NotNil(t, d)
	assert.ElementsMatch(t, []string{"build-linux", "build-windows"}, d.DependsOn)
}

func TestSanitizeReplacesInvalidCharacters(t *testing.T) {
	assert.Equal(t, "1_20", sanitize("1.20"))
	assert.Equal(t, "a_b_c", sanitize("a b/c"))
}
