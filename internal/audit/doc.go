// Package audit implements async event dispatching for identity conversions
// and session lifecycle operations.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, no-op).
//   - [Dispatcher]: buffered async relay. It either blocks when full or drops,
//     shedding routine events (successful conversions) before anything else.
//   - [Event]: structured audit record with timestamp, type, provider, user and metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which
// events to emit; the client does.
//
// # What this package must NOT do
//
//   - Filter events while the buffer has room.
//   - Import goSSO or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
