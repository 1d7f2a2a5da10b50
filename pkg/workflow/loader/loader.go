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

// Package loader parses the workflow and trigger YAML file formats (§1 of
// the engine's file format reference) into the in-memory workflow model.
package loader

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	workflowerrors "github.com/cryonayes/workflow-engine-sub000/pkg/errors"
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow"
)

type yamlDocker struct {
	Container   string   `yaml:"container"`
	User        string   `yaml:"user"`
	Privileged  bool     `yaml:"privileged"`
	Interactive *bool    `yaml:"interactive"`
	TTY         bool     `yaml:"tty"`
	ExtraArgs   []string `yaml:"extraArgs"`
	Disabled    bool     `yaml:"disabled"`
}

func (d *yamlDocker) toConfig() *workflow.DockerConfig {
	if d == nil {
		return nil
	}
	return &workflow.DockerConfig{
		Container:   d.Container,
		User:        d.User,
		Privileged:  d.Privileged,
		Interactive: d.Interactive,
		TTY:         d.TTY,
		ExtraArgs:   d.ExtraArgs,
		Disabled:    d.Disabled,
	}
}

type yamlSsh struct {
	Host                  string   `yaml:"host"`
	User                  string   `yaml:"user"`
	Port                  int      `yaml:"port"`
	IdentityFile          string   `yaml:"identityFile"`
	ConnectTimeoutSec     int      `yaml:"connectTimeoutSec"`
	StrictHostKeyChecking *bool    `yaml:"strictHostKeyChecking"`
	ExtraArgs             []string `yaml:"extraArgs"`
	Disabled              bool     `yaml:"disabled"`
}

func (s *yamlSsh) toConfig() *workflow.SshConfig {
	if s == nil {
		return nil
	}
	return &workflow.SshConfig{
		Host:                  s.Host,
		User:                  s.User,
		Port:                  s.Port,
		IdentityFile:          s.IdentityFile,
		ConnectTimeoutSec:     s.ConnectTimeoutSec,
		StrictHostKeyChecking: s.StrictHostKeyChecking,
		ExtraArgs:             s.ExtraArgs,
		Disabled:              s.Disabled,
	}
}

type yamlWatch struct {
	Paths    []string `yaml:"paths"`
	Include  []string `yaml:"include"`
	Exclude  []string `yaml:"exclude"`
	Debounce int64    `yaml:"debounceMs"`
}

func (w *yamlWatch) toConfig() *workflow.WatchConfig {
	if w == nil {
		return nil
	}
	return &workflow.WatchConfig{
		Paths:      w.Paths,
		Include:    w.Include,
		Exclude:    w.Exclude,
		DebounceMs: w.Debounce,
	}
}

type yamlInput struct {
	Type     string `yaml:"type"`
	Value    string `yaml:"value"`
	FilePath string `yaml:"filePath"`
}

func (i yamlInput) toConfig() workflow.TaskInput {
	typ := workflow.InputNone
	switch i.Type {
	case "text":
		typ = workflow.InputText
	case "bytes":
		typ = workflow.InputBytes
	case "file":
		typ = workflow.InputFile
	case "pipe":
		typ = workflow.InputPipe
	}
	return workflow.TaskInput{Type: typ, Value: i.Value, FilePath: i.FilePath}
}

type yamlOutput struct {
	Type          string `yaml:"type"`
	FilePath      string `yaml:"filePath"`
	CaptureStderr *bool  `yaml:"captureStderr"`
	MaxSizeBytes  int64  `yaml:"maxSizeBytes"`
}

func (o yamlOutput) toConfig() workflow.TaskOutputConfig {
	typ := workflow.CaptureString
	switch o.Type {
	case "bytes":
		typ = workflow.CaptureBytes
	case "file":
		typ = workflow.CaptureFile
	case "stream":
		typ = workflow.CaptureStream
	}
	cfg := workflow.TaskOutputConfig{Type: typ, FilePath: o.FilePath, MaxSizeBytes: o.MaxSizeBytes}
	if o.CaptureStderr != nil {
		cfg.SetCaptureStderr(*o.CaptureStderr)
	}
	return cfg
}

type yamlMatrix struct {
	DimensionsNode yaml.Node           `yaml:"dimensions"`
	Include        []map[string]string `yaml:"include"`
	Exclude        []map[string]string `yaml:"exclude"`
}

// dimensions decodes the dimensions mapping and its declaration order from
// the raw node, since decoding straight into a Go map would discard order.
// A mapping node's Content alternates key, value, key, value in document
// order.
func (m *yamlMatrix) dimensions() (map[string][]string, []string, error) {
	if m.DimensionsNode.Kind == 0 {
		return nil, nil, nil
	}
	var dims map[string][]string
	if err := m.DimensionsNode.Decode(&dims); err != nil {
		return nil, nil, fmt.Errorf("decode matrix dimensions: %w", err)
	}
	order := make([]string, 0, len(m.DimensionsNode.Content)/2)
	for i := 0; i+1 < len(m.DimensionsNode.Content); i += 2 {
		order = append(order, m.DimensionsNode.Content[i].Value)
	}
	return dims, order, nil
}

func (m *yamlMatrix) toConfig() (*workflow.MatrixConfig, error) {
	if m == nil {
		return nil, nil
	}
	dims, order, err := m.dimensions()
	if err != nil {
		return nil, err
	}
	return &workflow.MatrixConfig{
		DimensionOrder: order,
		Dimensions:     dims,
		Include:        m.Include,
		Exclude:        m.Exclude,
	}, nil
}

type yamlTask struct {
	Id               string            `yaml:"id"`
	Name             string            `yaml:"name"`
	Run              string            `yaml:"run"`
	Shell            string            `yaml:"shell"`
	WorkingDirectory string            `yaml:"workingDirectory"`
	Environment      map[string]string `yaml:"environment"`
	DependsOn        []string          `yaml:"dependsOn"`
	If               string            `yaml:"if"`
	Input            *yamlInput        `yaml:"input"`
	Output           *yamlOutput       `yaml:"output"`
	TimeoutMs        int64             `yaml:"timeoutMs"`
	RetryCount       int               `yaml:"retryCount"`
	RetryDelayMs     int64             `yaml:"retryDelayMs"`
	ContinueOnError  bool              `yaml:"continueOnError"`
	Matrix           *yamlMatrix       `yaml:"matrix"`
	Docker           *yamlDocker       `yaml:"docker"`
	Ssh              *yamlSsh          `yaml:"ssh"`
}

type yamlWorkflow struct {
	Name             string            `yaml:"name"`
	Description      string            `yaml:"description"`
	Environment      map[string]string `yaml:"environment"`
	WorkingDirectory string            `yaml:"workingDirectory"`
	DefaultTimeoutMs int64             `yaml:"defaultTimeoutMs"`
	MaxParallelism   int               `yaml:"maxParallelism"`
	Shell            string            `yaml:"shell"`
	Docker           *yamlDocker       `yaml:"docker"`
	Ssh              *yamlSsh          `yaml:"ssh"`
	Watch            *yamlWatch        `yaml:"watch"`
	Tasks            []yamlTask        `yaml:"tasks"`
}

// Parse decodes workflow YAML bytes into the in-memory model, defaulting
// MaxParallelism to -1 (unlimited) when unset and validating required
// fields (name, every task's id and run, and that dependsOn/matrix
// references are well-formed strings).
func Parse(data []byte) (*workflow.Workflow, error) {
	var doc yamlWorkflow
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse workflow yaml: %w", err)
	}

	if doc.Name == "" {
		return nil, &workflowerrors.ValidationError{Field: "name", Message: "workflow name is required"}
	}
	if len(doc.Tasks) == 0 {
		return nil, &workflowerrors.ValidationError{Field: "tasks", Message: "workflow must declare at least one task"}
	}

	wf := &workflow.Workflow{
		Name:             doc.Name,
		Description:      doc.Description,
		Environment:      doc.Environment,
		WorkingDirectory: doc.WorkingDirectory,
		DefaultTimeoutMs: doc.DefaultTimeoutMs,
		MaxParallelism:   doc.MaxParallelism,
		Shell:            doc.Shell,
		Docker:           doc.Docker.toConfig(),
		Ssh:              doc.Ssh.toConfig(),
		Watch:            doc.Watch.toConfig(),
	}
	if wf.MaxParallelism == 0 {
		wf.MaxParallelism = -1
	}

	seen := make(map[string]bool, len(doc.Tasks))
	for _, t := range doc.Tasks {
		if t.Id == "" {
			return nil, &workflowerrors.ValidationError{Field: "tasks[].id", Message: "every task requires an id"}
		}
		if seen[t.Id] {
			return nil, &workflowerrors.ValidationError{Field: "tasks[].id", Message: fmt.Sprintf("duplicate task id %q", t.Id)}
		}
		seen[t.Id] = true
		if t.Run == "" {
			return nil, &workflowerrors.ValidationError{Field: "tasks[].run", Message: fmt.Sprintf("task %q requires a run command", t.Id)}
		}

		task := &workflow.WorkflowTask{
			Id:               t.Id,
			Name:             t.Name,
			Run:              t.Run,
			Shell:            t.Shell,
			WorkingDirectory: t.WorkingDirectory,
			Environment:      t.Environment,
			If:               t.If,
			TimeoutMs:        t.TimeoutMs,
			RetryCount:       t.RetryCount,
			RetryDelayMs:     t.RetryDelayMs,
			ContinueOnError:  t.ContinueOnError,
			DependsOn:        t.DependsOn,
			Docker:           t.Docker.toConfig(),
			Ssh:              t.Ssh.toConfig(),
		}
		if t.Input != nil {
			task.Input = t.Input.toConfig()
		}
		if t.Output != nil {
			task.Output = t.Output.toConfig()
		}
		if t.Matrix != nil {
			matrixCfg, err := t.Matrix.toConfig()
			if err != nil {
				return nil, fmt.Errorf("task %q: %w", t.Id, err)
			}
			task.Matrix = matrixCfg
		}
		wf.Tasks = append(wf.Tasks, task)
	}

	for _, t := range wf.Tasks {
		for _, dep := range t.DependsOn {
			if !seen[dep] {
				return nil, &workflowerrors.UnknownDependencyError{TaskID: t.Id, DependsOn: dep}
			}
		}
	}

	return wf, nil
}

// Load reads and parses the workflow file at path.
func Load(path string) (*workflow.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow file %s: %w", path, err)
	}
	return Parse(data)
}
