// SPDX-License-Identifier: MIT

// Package transport provides an in-memory duplex connection that satisfies
// the channel library's Connection interface, for use in tests and in
// single-process examples. It plays the same role as the paxos example's
// mock network (connect/test/network.go) — buffered channels standing in
// for a real wire — scaled down to one point-to-point pipe, since this
// library has no routing/listener concept of its own.
package transport

import (
	"io"
	"sync"
)

// Pipe is one end of an in-memory, goroutine-safe, duplex, message-
// oriented connection. It satisfies the channel library's Connection
// interface structurally; Connection is a three-method interface, so no
// import of the library is needed here.
type Pipe struct {
	peer *Pipe

	in chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

// NewPipe returns two connected ends of a duplex pipe. Messages written on
// one end are delivered, in order, to reads on the other.
func NewPipe() (a, b *Pipe) {
	a = &Pipe{in: make(chan []byte, 64), closed: make(chan struct{})}
	b = &Pipe{in: make(chan []byte, 64), closed: make(chan struct{})}
	a.peer = b
	b.peer = a
	return a, b
}

// Read delivers the next message written by the peer, or an error if
// this end has been closed first. Closing the peer does not fail a Read
// on this end. It never blocks the caller: the wait happens on a
// background goroutine.
func (p *Pipe) Read(cb func(msg []byte, err error)) {
	go func() {
		select {
		case msg := <-p.in:
			cb(msg, nil)
		case <-p.closed:
			cb(nil, io.ErrClosedPipe)
		}
	}()
}

// Write delivers msg to the peer's next Read. It never blocks the caller.
func (p *Pipe) Write(msg []byte, cb func(err error)) {
	buf := append([]byte(nil), msg...)

	go func() {
		select {
		case p.peer.in <- buf:
			cb(nil)
		case <-p.peer.closed:
			cb(io.ErrClosedPipe)
		case <-p.closed:
			cb(io.ErrClosedPipe)
		}
	}()
}

// Close marks this end closed. Idempotent. It does not close the peer: a
// real duplex connection's two ends are torn down together by whatever
// owns the underlying socket, which a Pipe has none of.
func (p *Pipe) Close() error {
	p.closeOnce.Do(func() {
		close(p.closed)
	})
	return nil
}
