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
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	workflowerrors "github.com/cryonayes/workflow-engine-sub000/pkg/errors"
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow"
)

type yamlTriggerRule struct {
	Name             string            `yaml:"name"`
	Type             string            `yaml:"type"`
	Sources          []string          `yaml:"sources"`
	Keywords         []string          `yaml:"keywords"`
	Pattern          string            `yaml:"pattern"`
	WorkflowPath     string            `yaml:"workflowPath"`
	Parameters       map[string]string `yaml:"parameters"`
	ResponseTemplate string            `yaml:"responseTemplate"`
	Enabled          bool              `yaml:"enabled"`
}

type yamlTriggerFile struct {
	Triggers []yamlTriggerRule `yaml:"triggers"`
}

func toTriggerSource(s string) (workflow.TriggerSourceType, error) {
	switch s {
	case string(workflow.SourceTelegram), string(workflow.SourceDiscord), string(workflow.SourceSlack),
		string(workflow.SourceHTTP), string(workflow.SourceFileWatch):
		return workflow.TriggerSourceType(s), nil
	default:
		return "", fmt.Errorf("unknown trigger source %q", s)
	}
}

// ParseTriggers decodes trigger-file YAML bytes into a list of TriggerRule,
// validating each rule's type, source list and workflow path.
func ParseTriggers(data []byte) ([]*workflow.TriggerRule, error) {
	var doc yamlTriggerFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse trigger yaml: %w", err)
	}

	rules := make([]*workflow.TriggerRule, 0, len(doc.Triggers))
	for _, t := range doc.Triggers {
		if t.Name == "" {
			return nil, &workflowerrors.ValidationError{Field: "triggers[].name", Message: "every trigger requires a name"}
		}
		if t.WorkflowPath == "" {
			return nil, &workflowerrors.ValidationError{Field: "triggers[].workflowPath", Message: fmt.Sprintf("trigger %q requires a workflowPath", t.Name)}
		}

		var ruleType workflow.TriggerRuleType
		switch t.Type {
		case string(workflow.RuleKeyword):
			ruleType = workflow.RuleKeyword
			if len(t.Keywords) == 0 {
				return nil, &workflowerrors.ValidationError{Field: "triggers[].keywords", Message: fmt.Sprintf("keyword trigger %q requires at least one keyword", t.Name)}
			}
		case string(workflow.RulePattern):
			ruleType = workflow.RulePattern
			if t.Pattern == "" {
				return nil, &workflowerrors.ValidationError{Field: "triggers[].pattern", Message: fmt.Sprintf("pattern trigger %q requires a pattern", t.Name)}
			}
		default:
			return nil, &workflowerrors.ValidationError{Field: "triggers[].type", Message: fmt.Sprintf("trigger %q has unknown type %q", t.Name, t.Type)}
		}

		sources := make([]workflow.TriggerSourceType, 0, len(t.Sources))
		for _, s := range t.Sources {
			src, err := toTriggerSource(s)
			if err != nil {
				return nil, &workflowerrors.ValidationError{Field: "triggers[].sources", Message: fmt.Sprintf("trigger %q: %s", t.Name, err)}
			}
			sources = append(sources, src)
		}

		rules = append(rules, &workflow.TriggerRule{
			Name:             t.Name,
			Type:             ruleType,
			Sources:          sources,
			Keywords:         t.Keywords,
			Pattern:          t.Pattern,
			WorkflowPath:     t.WorkflowPath,
			Parameters:       t.Parameters,
			ResponseTemplate: t.ResponseTemplate,
			Enabled:          t.Enabled,
		})
	}
	return rules, nil
}

// LoadTriggers reads and parses the trigger file at path.
func LoadTriggers(path string) ([]*workflow.TriggerRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trigger file %s: %w", path, err)
	}
	return ParseTriggers(data)
}
