package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Event types emitted by the client.
const (
	EventConversion = "identity_conversion"
	EventLogin      = "login"
	EventLogout     = "logout_session"
	EventLogoutAll  = "logout_all"
)

// Event is one audit record. Provider and UserID are empty when a conversion
// failed before either was known.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	Provider  string            `json:"provider,omitempty"`
	UserID    string            `json:"user_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Routine reports whether e is a successful conversion. Those arrive once per
// request and are the first to go when the dispatcher runs short of room;
// failures and session lifecycle events are never routine.
func (e Event) Routine() bool {
	return e.EventType == EventConversion && e.Success
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

// Emit implements Sink.
func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink hands events to a consumer reading Events.
type ChannelSink struct {
	events chan Event
}

// NewChannelSink returns a ChannelSink holding up to buffer unread events.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{events: make(chan Event, max(buffer, 1))}
}

// Emit implements Sink. It blocks while the channel is full unless ctx ends.
func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events returns the receive side of the sink.
func (s *ChannelSink) Events() <-chan Event { return s.events }

// JSONWriterSink writes one JSON object per line. Encoding failures are
// ignored; an audit record must never fail the operation it describes.
type JSONWriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONWriterSink returns a sink writing to w. A nil w yields a sink that
// discards everything.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	if w == nil {
		return &JSONWriterSink{}
	}
	return &JSONWriterSink{enc: json.NewEncoder(w)}
}

// Emit implements Sink.
func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.enc == nil {
		return
	}
	s.mu.Lock()
	_ = s.enc.Encode(event)
	s.mu.Unlock()
}
