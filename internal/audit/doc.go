// Package audit forwards security events to an external sink without blocking the
// authentication path.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, zap logger, fan-out, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event]: the append-only security event record.
//
// # Architecture boundaries
//
// This package owns buffering and delivery. It does NOT decide which events to emit,
// and it does not persist them; the engine appends events to its event store before
// handing them to the dispatcher.
package audit
