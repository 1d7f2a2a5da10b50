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

	"github.com/spf13/cobra"

	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow/loader"
	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow/plan"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <workflow.yaml>",
		Short: "Parse and plan a workflow file without running it",
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

			fmt.Println(RenderOK(fmt.Sprintf("%s: %d tasks, %d waves, %d always-tasks",
				wf.Name, len(wf.Tasks), len(p.Waves), len(p.AlwaysTasks))))
			return nil
		},
	}
	return cmd
}
