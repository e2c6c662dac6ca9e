package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Event types emitted by the gatekeeper. Login events cover the outcome of
// the external identity exchange; the remaining types record lifecycle and
// abuse decisions.
const (
	TypeLoginSuccess       = "login_success"
	TypeLoginFailure       = "login_failure"
	TypeSessionTerminated  = "session_terminated"
	TypeRateLimitViolation = "rate_limit_violation"
	TypeClientBlocked      = "client_blocked"
	TypeClientUnblocked    = "client_unblocked"
)

// Event is the canonical audit record. CorrelationID is always non-empty by
// the time an event reaches a sink; Subject is empty for unauthenticated
// failures. Events are immutable once created.
type Event struct {
	Timestamp     time.Time         `json:"timestamp"`
	EventType     string            `json:"event_type"`
	CorrelationID string            `json:"correlation_id"`
	Subject       string            `json:"subject,omitempty"`
	ClientIP      string            `json:"client_ip,omitempty"`
	UserAgent     string            `json:"user_agent,omitempty"`
	Detail        map[string]string `json:"detail,omitempty"`
}

// Sink receives emitted audit events. Implementations must not panic; any
// downstream failure is theirs to absorb.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel. Intended for
// tests and in-process consumers.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
