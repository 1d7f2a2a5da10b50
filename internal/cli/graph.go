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
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow"
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow/loader"
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow/plan"
)

func newGraphCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "graph <workflow.yaml>",
		Short: "Render a workflow's dependency graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := loader.Load(args[0])
			if err != nil {
				fmt.Println(RenderError(err.Error()))
				return &ExitError{Code: 1}
			}
			p, err := plan.Build(wf)
			if err != nil {
				fmt.Println(RenderError(err.Error()))
				return &ExitError{Code: 1}
			}

			switch format {
			case "dot":
				fmt.Println(renderDot(wf, p))
			case "ascii", "":
				fmt.Println(renderAscii(wf, p))
			default:
				return fmt.Errorf("unknown --format %q, want ascii or dot", format)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "ascii", "output format: ascii or dot")
	return cmd
}

func renderAscii(wf *workflow.Workflow, p *workflow.ExecutionPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", wf.Name)
	for i, wave := range p.Waves {
		fmt.Fprintf(&b, "wave %d:\n", i)
		for _, t := range wave {
			fmt.Fprintf(&b, "  %s", t.Id)
			if len(t.DependsOn) > 0 {
				fmt.Fprintf(&b, " (needs %s)", strings.Join(t.DependsOn, ", "))
			}
			b.WriteString("\n")
		}
	}
	if len(p.AlwaysTasks) > 0 {
		b.WriteString("always:\n")
		for _, t := range p.AlwaysTasks {
			fmt.Fprintf(&b, "  %s\n", t.Id)
		}
	}
	return b.String()
}

func renderDot(wf *workflow.Workflow, p *workflow.ExecutionPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "digraph %q {\n", wf.Name)
	for _, t := range wf.Tasks {
		for _, dep := range t.DependsOn {
			fmt.Fprintf(&b, "  %q -> %q;\n", dep, t.Id)
		}
		if len(t.DependsOn) == 0 {
			fmt.Fprintf(&b, "  %q;\n", t.Id)
		}
	}
	for _, t := range p.AlwaysTasks {
		fmt.Fprintf(&b, "  %q [style=dashed];\n", t.Id)
	}
	b.WriteString("}\n")
	return b.String()
}
