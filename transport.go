// SPDX-License-Identifier: MIT

package cma

// Connection is the bidirectional, in-order, message-oriented transport a
// Channel is built on. It is assumed already established by the caller;
// this package only ever uses it to exchange Packet-encoded Notifications
// and to learn about transport-level failures. Framing (how one message's
// bytes are distinguished from the next on the wire) is the Connection
// implementation's job.
//
// Read delivers exactly one message per call and is not re-armed
// automatically; the caller must call Read again to receive the next
// message. Write and Read callbacks may be invoked from any goroutine.
type Connection interface {
	// Read asks for the next incoming message. cb is invoked exactly once,
	// with either the message bytes and a nil error, or a nil slice and a
	// non-nil error.
	Read(cb func(p []byte, err error))
	// Write sends p. cb is invoked exactly once with the outcome.
	Write(p []byte, cb func(err error))
	// Close tears down the connection. Idempotent.
	Close() error
}

// Endpoint says whether a Channel was created on the listening or
// connecting side of the underlying transport. CMA's protocol is
// symmetric and ignores it; it exists so ChannelContext.CreateChannel has
// the same signature as context implementations for channel variants that
// do care (e.g. GPU channels, out of scope here).
type Endpoint int

const (
	EndpointListener Endpoint = iota
	EndpointConnector
)
