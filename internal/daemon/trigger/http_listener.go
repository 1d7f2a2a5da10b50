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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow"
)

// HTTPListener runs a single HTTP server that serves the generic webhook
// routes (/webhook, /trigger), the Slack events route and a /health probe,
// since the message surfaces are otherwise identical: verify, parse,
// normalize, forward.
type HTTPListener struct {
	addr       string
	slackToken string // Slack signing secret; empty disables verification

	limiter *rate.Limiter
	server  *http.Server
	out     chan IncomingMessage
	logger  *slog.Logger
}

// NewHTTPListener builds a listener bound to addr. ratePerSecond/burst feed
// an admission-control token bucket shared across the /webhook, /trigger and
// /slack/events routes; requests
// exceeding it are rejected with 429 before any body is read.
func NewHTTPListener(addr, slackSigningSecret string, ratePerSecond float64, burst int, logger *slog.Logger) *HTTPListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPListener{
		addr:       addr,
		slackToken: slackSigningSecret,
		limiter:    rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		out:        make(chan IncomingMessage, 64),
		logger:     logger.With(slog.String("component", "http-listener")),
	}
}

// Source identifies this listener as the generic HTTP source. Slack
// messages received on /slack/events are still tagged SourceSlack
// individually in their IncomingMessage.
func (h *HTTPListener) Source() workflow.TriggerSourceType { return workflow.SourceHTTP }

// Start binds the HTTP server and begins serving in the background.
func (h *HTTPListener) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", h.withRateLimit(h.handleGeneric))
	mux.HandleFunc("/trigger", h.withRateLimit(h.handleGeneric))
	mux.HandleFunc("/slack/events", h.withRateLimit(h.handleSlack))
	mux.HandleFunc("/health", h.handleHealth)

	h.server = &http.Server{Addr: h.addr, Handler: mux}
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("bind http listener: %w", err)
	}
	go func() {
		if err := h.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			h.logger.Error("http listener exited", slog.Any("error", err))
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server and closes the message channel.
func (h *HTTPListener) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var err error
	if h.server != nil {
		err = h.server.Shutdown(ctx)
	}
	close(h.out)
	return err
}

// Receive returns the channel carrying normalized inbound messages.
func (h *HTTPListener) Receive() <-chan IncomingMessage { return h.out }

func (h *HTTPListener) withRateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.limiter.Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// handleHealth reports liveness for callers probing before registering a
// webhook; it never touches the message queue.
func (h *HTTPListener) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *HTTPListener) handleGeneric(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	var payload map[string]any
	text := string(body)
	if json.Valid(body) {
		_ = json.Unmarshal(body, &payload)
		for _, field := range []string{"text", "message", "body"} {
			if t, ok := payload[field].(string); ok {
				text = t
				break
			}
		}
	}

	extras := map[string]string{"path": r.URL.Path}
	for name, values := range r.Header {
		if len(values) == 0 || strings.HasPrefix(name, "Content-") {
			continue
		}
		extras["header:"+name] = values[0]
	}
	for name, values := range r.URL.Query() {
		if len(values) == 0 {
			continue
		}
		extras["query:"+name] = values[0]
	}

	h.deliver(IncomingMessage{Source: workflow.SourceHTTP, Text: text, Extras: extras})
	w.WriteHeader(http.StatusAccepted)
}

func (h *HTTPListener) handleSlack(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if h.slackToken != "" {
		if err := verifySlackSignature(r, body, h.slackToken); err != nil {
			h.logger.Warn("slack signature verification failed", slog.Any("error", err))
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	var event struct {
		Type      string `json:"type"`
		Challenge string `json:"challenge"`
		Event     struct {
			Type    string `json:"type"`
			Text    string `json:"text"`
			User    string `json:"user"`
			Channel string `json:"channel"`
		} `json:"event"`
	}

	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(body, &event); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
	}

	if event.Type == "url_verification" {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"challenge": event.Challenge})
		return
	}

	h.deliver(IncomingMessage{
		Source:  workflow.SourceSlack,
		Text:    event.Event.Text,
		Channel: event.Event.Channel,
		// Slack's Events API reports only the member id on event.user; a
		// display name requires a separate users.info call this contract-level
		// binding doesn't make.
		UserID: event.Event.User,
	})
	w.WriteHeader(http.StatusOK)
}

func (h *HTTPListener) deliver(msg IncomingMessage) {
	select {
	case h.out <- msg:
	default:
		h.logger.Warn("http listener queue full, dropping message", slog.String("source", string(msg.Source)))
	}
}
