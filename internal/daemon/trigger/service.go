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
	"log/slog"
	"sync"
	"time"

	"github.com/cryonayes/workflow-engine-sub000/internal/metrics"
)

// EventKind enumerates the lifecycle events the Service emits as it
// processes inbound messages.
type EventKind string

const (
	EventMessageReceived   EventKind = "message_received"
	EventTriggerMatched    EventKind = "trigger_matched"
	EventTriggerDispatched EventKind = "trigger_dispatched"
	EventDispatchFailed    EventKind = "trigger_dispatch_failed"
	EventTriggerError      EventKind = "trigger_error"
)

// Event is one Service lifecycle notification.
type Event struct {
	Kind      EventKind
	Time      time.Time
	Message   IncomingMessage
	RuleName  string
	RunID     string
	Err       error
}

// defaultQueueSize bounds the inbound message queue; once full, the oldest
// queued message is dropped to make room for the newest (DropOldest), since
// a live trigger is more useful than a stale one.
const defaultQueueSize = 256

// Service serialises trigger message processing: every listener feeds into
// one bounded channel, drained by a single consumer goroutine, so rule
// matching and dispatch happen in strict receipt order.
type Service struct {
	matcher    *Matcher
	dispatcher *Dispatcher
	logger     *slog.Logger

	mu        sync.Mutex
	listeners []Listener
	queue     chan IncomingMessage

	subsMu sync.Mutex
	subs   []func(Event)

	stop chan struct{}
	done chan struct{}
}

// NewService builds a Service over the given matcher/dispatcher pair.
func NewService(matcher *Matcher, dispatcher *Dispatcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		matcher:    matcher,
		dispatcher: dispatcher,
		logger:     logger.With(slog.String("component", "trigger-service")),
		queue:      make(chan IncomingMessage, defaultQueueSize),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Subscribe registers fn to receive every Event the Service emits.
func (s *Service) Subscribe(fn func(Event)) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *Service) emit(e Event) {
	e.Time = time.Now()
	s.subsMu.Lock()
	subs := append([]func(Event){}, s.subs...)
	s.subsMu.Unlock()
	for _, fn := range subs {
		fn(e)
	}
}

// AddListener starts l and begins forwarding its messages into the queue.
func (s *Service) AddListener(ctx context.Context, l Listener) error {
	if err := l.Start(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()

	go s.pump(ctx, l)
	return nil
}

// pump forwards one listener's messages into the shared queue, dropping the
// oldest queued message on overflow.
func (s *Service) pump(ctx context.Context, l Listener) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case msg, ok := <-l.Receive():
			if !ok {
				return
			}
			select {
			case s.queue <- msg:
			default:
				select {
				case <-s.queue:
				default:
				}
				select {
				case s.queue <- msg:
				default:
				}
			}
		}
	}
}

// Start launches the single consumer goroutine.
func (s *Service) Start(ctx context.Context) {
	go s.consume(ctx)
}

func (s *Service) consume(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case msg := <-s.queue:
			s.process(ctx, msg)
		}
	}
}

func (s *Service) process(ctx context.Context, msg IncomingMessage) {
	metrics.TriggerMessagesReceived.WithLabelValues(string(msg.Source)).Inc()
	s.emit(Event{Kind: EventMessageReceived, Message: msg})

	matches := s.matcher.Match(msg)
	if len(matches) == 0 {
		return
	}
	m := matches[0]
	s.emit(Event{Kind: EventTriggerMatched, Message: msg, RuleName: m.Rule.Name})

	runID, err := s.dispatcher.DispatchAsync(ctx, m)
	if err != nil {
		s.logger.Error("trigger dispatch failed", slog.String("rule", m.Rule.Name), slog.Any("error", err))
		metrics.TriggerDispatches.WithLabelValues(m.Rule.Name, "failed").Inc()
		s.emit(Event{Kind: EventDispatchFailed, Message: msg, RuleName: m.Rule.Name, Err: err})
		return
	}
	metrics.TriggerDispatches.WithLabelValues(m.Rule.Name, "dispatched").Inc()
	s.emit(Event{Kind: EventTriggerDispatched, Message: msg, RuleName: m.Rule.Name, RunID: runID})
}

// Stop signals the consumer and every listener to shut down, and waits for
// the consumer goroutine to exit.
func (s *Service) Stop() {
	close(s.stop)
	s.mu.Lock()
	listeners := append([]Listener{}, s.listeners...)
	s.mu.Unlock()
	for _, l := range listeners {
		if err := l.Stop(); err != nil {
			s.logger.Warn("listener stop failed", slog.Any("error", err))
		}
	}
	<-s.done
}
