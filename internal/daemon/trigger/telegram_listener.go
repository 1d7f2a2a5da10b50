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
	"strconv"
	"time"

	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow"
)

// telegramPollTimeout is the long-poll wait Telegram holds the connection
// open for when no update is immediately available.
const telegramPollTimeout = 30 * time.Second

// TelegramListener long-polls the Bot API's getUpdates endpoint. This is a
// contract-level binding: it speaks just enough of the API to turn incoming
// text messages into IncomingMessage values and reconnects with backoff on
// transport errors; it does not cover every Bot API update type.
type TelegramListener struct {
	token  string
	client *http.Client
	out    chan IncomingMessage
	cancel context.CancelFunc
	logger *slog.Logger

	offset int64
}

// NewTelegramListener builds a listener authenticated with a bot token.
func NewTelegramListener(token string, logger *slog.Logger) *TelegramListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &TelegramListener{
		token:  token,
		client: &http.Client{Timeout: telegramPollTimeout + 10*time.Second},
		out:    make(chan IncomingMessage, 64),
		logger: logger.With(slog.String("component", "telegram-listener")),
	}
}

// Source reports SourceTelegram.
func (t *TelegramListener) Source() workflow.TriggerSourceType { return workflow.SourceTelegram }

// Start launches the long-poll loop in the background.
func (t *TelegramListener) Start(ctx context.Context) error {
	pollCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	go t.pollLoop(pollCtx)
	return nil
}

type telegramUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		From struct {
			ID       int64  `json:"id"`
			Username string `json:"username"`
		} `json:"from"`
	} `json:"message"`
}

type telegramUpdatesResponse struct {
	OK     bool             `json:"ok"`
	Result []telegramUpdate `json:"result"`
}

func (t *TelegramListener) pollLoop(ctx context.Context) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		updates, err := t.getUpdates(ctx)
		if err != nil {
			t.logger.Warn("telegram poll failed, backing off", slog.Any("error", err), slog.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = minDuration(backoff*2, maxBackoff)
			continue
		}
		backoff = time.Second

		for _, u := range updates {
			t.offset = u.UpdateID + 1
			if u.Message.Text == "" {
				continue
			}
			msg := IncomingMessage{
				Source:    workflow.SourceTelegram,
				Text:      u.Message.Text,
				MessageID: strconv.FormatInt(u.UpdateID, 10),
				Channel:   strconv.FormatInt(u.Message.Chat.ID, 10),
				Username:  u.Message.From.Username,
				UserID:    strconv.FormatInt(u.Message.From.ID, 10),
				Respond:   t.respondTo(u.Message.Chat.ID),
			}
			select {
			case t.out <- msg:
			default:
				t.logger.Warn("telegram listener queue full, dropping message")
			}
		}
	}
}

func (t *TelegramListener) getUpdates(ctx context.Context) ([]telegramUpdate, error) {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/getUpdates?offset=%d&timeout=%d",
		t.token, t.offset, int(telegramPollTimeout.Seconds()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body telegramUpdatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode getUpdates response: %w", err)
	}
	if !body.OK {
		return nil, fmt.Errorf("telegram getUpdates returned not-ok")
	}
	return body.Result, nil
}

func (t *TelegramListener) respondTo(chatID int64) func(ctx context.Context, text string) error {
	return func(ctx context.Context, text string) error {
		payload, _ := json.Marshal(map[string]any{"chat_id": chatID, "text": text})
		url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.token)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := t.client.Do(req)
		if err != nil {
			return err
		}
		return resp.Body.Close()
	}
}

// Stop cancels the poll loop and closes the output channel.
func (t *TelegramListener) Stop() error {
	if t.cancel != nil {
		t.cancel()
	}
	close(t.out)
	return nil
}

// Receive returns the channel carrying normalized Telegram messages.
func (t *TelegramListener) Receive() <-chan IncomingMessage { return t.out }

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
