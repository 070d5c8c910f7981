// Package transport defines the abstract message-channel contract shared by
// the user-facing and upstream sides of a session. Concrete adapters (a
// browser WebSocket, an upstream LLM realtime socket, an in-memory pipe for
// tests) implement Port; the broker core never depends on a specific wire
// library.
package transport

import (
	"context"
	"errors"
)

// ErrClosedOK signals a graceful close observed on Receive. Pumps treat it
// as end-of-stream rather than a transport failure.
var ErrClosedOK = errors.New("transport: closed gracefully")

// Port is the bidirectional message-channel contract a Session bridges
// between the user and the upstream LLM realtime endpoint. All four
// operations may suspend the calling goroutine and must honor ctx
// cancellation.
//
// Implementations must:
//   - serialize outgoing messages on the wire and deserialize incoming ones
//     (typically JSON), falling back to the raw payload when it does not
//     parse as JSON;
//   - treat Accept as idempotent;
//   - translate a graceful peer close observed in Receive into ErrClosedOK.
type Port interface {
	// Accept completes the server-side handshake for this port (e.g. the
	// HTTP→WebSocket upgrade). It is a no-op for ports that are already
	// connected when constructed (e.g. an outbound dial). Idempotent.
	Accept(ctx context.Context) error

	// Send writes msg to the peer. msg is an arbitrary structured value
	// (map, slice, string, or []byte).
	Send(ctx context.Context, msg any) error

	// Receive blocks until the next message arrives, the context is
	// cancelled, or the peer closes. A graceful close is reported as
	// ErrClosedOK, never as msg.
	Receive(ctx context.Context) (any, error)

	// Close releases the underlying connection. Idempotent.
	Close(ctx context.Context) error
}
