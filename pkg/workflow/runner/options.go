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

package runner

import (
	"context"

	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow"
)

// StepController gates step-mode execution: the runner calls WaitAsync after
// every task completion (and once before wave 0) and blocks until the
// controller signals continue or ctx is cancelled.
type StepController interface {
	WaitAsync(ctx context.Context) error
}

// autoStepController never pauses; used when StepMode is false.
type autoStepController struct{}

func (autoStepController) WaitAsync(ctx context.Context) error { return nil }

// ChannelStepController is a StepController driven by an external Continue
// channel, e.g. from a UI "step" button.
type ChannelStepController struct {
	Continue chan struct{}
}

// NewChannelStepController creates a controller whose WaitAsync blocks until
// a value is sent on Continue.
func NewChannelStepController() *ChannelStepController {
	return &ChannelStepController{Continue: make(chan struct{})}
}

func (c *ChannelStepController) WaitAsync(ctx context.Context) error {
	select {
	case <-c.Continue:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOptions configures one Run call.
type RunOptions struct {
	DryRun          bool
	MaxParallelism  int // 0 = use workflow default
	AdditionalEnv   map[string]string
	StepMode        bool
	StepController  StepController
	OnContextCreated func(*workflow.WorkflowContext)
	ShowCommands    bool
	Parameters      map[string]string
}
