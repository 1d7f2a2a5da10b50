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

package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow"
)

// discordMessage mirrors the MESSAGE_CREATE gateway dispatch payload's fields
// this listener actually reads. A production binding would decode the full
// opcode-0/1/9/10/11 handshake over a websocket; this stub only sketches
// the dispatch surface at contract level, per the FileWatch/Telegram/Discord
// scoping: concrete protocol bindings are out of scope, the shape isn't.
type discordMessage struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
	Author    struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Bot      bool   `json:"bot"`
	} `json:"author"`
}

// DiscordListener is a gateway-shaped contract-level binding: Dispatch feeds
// it MESSAGE_CREATE-equivalent events (from whatever transport owns the
// actual websocket connection) and it normalizes them into IncomingMessage,
// and it can reply over the REST API. It does not open a websocket itself.
type DiscordListener struct {
	botToken string
	client   *http.Client
	out      chan IncomingMessage
	logger   *slog.Logger
}

// NewDiscordListener builds a listener authenticated with a bot token.
func NewDiscordListener(botToken string, logger *slog.Logger) *DiscordListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &DiscordListener{
		botToken: botToken,
		client:   &http.Client{Timeout: 10 * time.Second},
		out:      make(chan IncomingMessage, 64),
		logger:   logger.With(slog.String("component", "discord-listener")),
	}
}

// Source reports SourceDiscord.
func (d *DiscordListener) Source() workflow.TriggerSourceType { return workflow.SourceDiscord }

// Start is a no-op: the websocket gateway connection is owned by whatever
// process calls Dispatch. This keeps the listener usable both standalone
// (wired to a real gateway client) and in tests (fed synthetically).
func (d *DiscordListener) Start(ctx context.Context) error { return nil }

// Stop closes the output channel.
func (d *DiscordListener) Stop() error {
	close(d.out)
	return nil
}

// Receive returns the channel carrying normalized Discord messages.
func (d *DiscordListener) Receive() <-chan IncomingMessage { return d.out }

// Dispatch feeds one raw MESSAGE_CREATE-shaped payload into the listener, as
// a real gateway client's dispatch loop would.
func (d *DiscordListener) Dispatch(raw []byte) error {
	var m discordMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("decode discord dispatch payload: %w", err)
	}
	if m.Author.Bot {
		return nil
	}
	msg := IncomingMessage{
		Source:    workflow.SourceDiscord,
		Text:      m.Content,
		MessageID: m.ID,
		Channel:   m.ChannelID,
		Username:  m.Author.Username,
		UserID:    m.Author.ID,
		Respond:   d.respondTo(m.ChannelID),
	}
	select {
	case d.out <- msg:
	default:
		d.logger.Warn("discord listener queue full, dropping message")
	}
	return nil
}

func (d *DiscordListener) respondTo(channelID string) func(ctx context.Context, text string) error {
	return func(ctx context.Context, text string) error {
		payload, _ := json.Marshal(map[string]string{"content": text})
		url := fmt.Sprintf("https://discord.com/api/v10/channels/%s/messages", channelID)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bot "+d.botToken)
		resp, err := d.client.Do(req)
		if err != nil {
			return err
		}
		return resp.Body.Close()
	}
}
