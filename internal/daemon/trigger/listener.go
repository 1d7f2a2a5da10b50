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

// Package trigger implements inbound message ingress: listeners, the
// keyword/pattern matcher, the {{name}} template resolver, and the
// dispatcher that hands matched triggers to the workflow runner.
package trigger

import (
	"context"

	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow"
)

// IncomingMessage is one inbound message normalized across transports.
type IncomingMessage struct {
	Source    workflow.TriggerSourceType
	Text      string
	MessageID string
	Channel   string
	Username  string
	UserID    string

	// Extras carries transport-specific fields (e.g. HTTP request headers and
	// query parameters, file-watch path parts) available to the template
	// resolver as {{key}}.
	Extras map[string]string

	// Respond, if non-nil, sends text back to the originating conversation.
	// FileWatch and most webhook sources leave this nil.
	Respond func(ctx context.Context, text string) error
}

// Listener is a message source a trigger rule can match against. A listener
// owns its own connection lifecycle; Receive delivers messages until Stop is
// called or ctx is cancelled.
type Listener interface {
	// Source identifies which TriggerSourceType this listener feeds.
	Source() workflow.TriggerSourceType

	// Start begins receiving messages; it must not block.
	Start(ctx context.Context) error

	// Stop releases the listener's resources. It is safe to call Stop
	// without a prior Start.
	Stop() error

	// Receive returns the channel messages arrive on. The channel is closed
	// once the listener stops.
	Receive() <-chan IncomingMessage
}
