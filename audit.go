package goSSO

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/goSSO/internal/audit"
)

// AuditEvent is one record emitted for a conversion or session operation.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the client's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer], one per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

const (
	auditEventConversion = internalaudit.EventConversion
	auditEventLogin      = internalaudit.EventLogin
	auditEventLogout     = internalaudit.EventLogout
	auditEventLogoutAll  = internalaudit.EventLogoutAll
)

const (
	auditErrUnknownProvider  = "unknown_provider"
	auditErrStoreUnavailable = "store_unavailable"
)

func (c *Client) emitAudit(ctx context.Context, event AuditEvent) {
	if c == nil || c.audit == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	event.Timestamp = time.Now().UTC()
	c.audit.Emit(ctx, event)
}
