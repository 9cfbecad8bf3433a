// SPDX-License-Identifier: MIT

package cma

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// channelContext is the slice of ChannelContext a Channel actually needs.
// Keeping it as an interface (rather than a concrete *ChannelContext field)
// lets tests substitute a fake copy engine and closing emitter without
// spinning up a real worker goroutine, the same role tensorpipe's
// PrivateIface plays for its C++ Channel::Impl.
type channelContext interface {
	closingEmitter() *closingEmitter
	requestCopy(req *CopyRequest)
}

// SendOperation records one outstanding send: its id (for matching the
// peer's Notification) and the callback to invoke on completion or error.
// The Channel's in-flight list exclusively owns it until it is removed,
// at which point its callback runs and it is dropped.
type SendOperation struct {
	ID       uint64
	Callback func(error)
}

// Channel is bound to one transport Connection. All of its work — Send,
// Recv, Close, and every transport/copy-engine completion — runs on its
// cooperative loop, so channel state never needs its own lock.
type Channel struct {
	loop loop

	ctx  channelContext
	conn Connection

	nextID  uint64
	sendOps []*SendOperation
	err     error
}

func newChannel(ctx channelContext, conn Connection) *Channel {
	c := &Channel{ctx: ctx, conn: conn}
	c.loop.Defer(c.initFromLoop)
	return c
}

func (c *Channel) initFromLoop() {
	c.ctx.closingEmitter().AddListener(c.Close)
	c.armRead()
}

// Send transmits length bytes starting at ptr to the peer. descriptorCb is
// invoked synchronously, from within the loop task that handles this call,
// with the serialized Descriptor the caller must transmit to the peer
// out-of-band. sendCb is invoked later, once the peer's Notification for
// this operation arrives (or the channel closes/errors first).
func (c *Channel) Send(ptr uintptr, length uintptr, descriptorCb func(err error, descriptor []byte), sendCb func(err error)) {
	c.loop.Defer(func() {
		c.sendFromLoop(ptr, length, descriptorCb, sendCb)
	})
}

func (c *Channel) sendFromLoop(ptr uintptr, _ uintptr, descriptorCb func(err error, descriptor []byte), sendCb func(err error)) {
	if c.err != nil {
		descriptorCb(c.err, nil)
		sendCb(c.err)
		return
	}

	id := c.nextID
	c.nextID++

	desc := Descriptor{
		OperationID: id,
		PID:         uint64(unix.Getpid()),
		Ptr:         uint64(ptr),
	}

	c.sendOps = append(c.sendOps, &SendOperation{ID: id, Callback: sendCb})

	descriptorCb(nil, EncodeDescriptor(desc))
}

// Recv reads the region described by descriptor into length bytes starting
// at ptr. recvCb is invoked once the copy (and, on success, the best-effort
// notification write) has been attempted.
func (c *Channel) Recv(descriptor []byte, ptr uintptr, length uintptr, recvCb func(err error)) {
	c.loop.Defer(func() {
		c.recvFromLoop(descriptor, ptr, length, recvCb)
	})
}

func (c *Channel) recvFromLoop(descriptorBytes []byte, ptr uintptr, length uintptr, recvCb func(err error)) {
	if c.err != nil {
		recvCb(c.err)
		return
	}

	desc, err := DecodeDescriptor(descriptorBytes)
	if err != nil {
		recvCb(err)
		return
	}

	operationID := desc.OperationID

	c.ctx.requestCopy(&CopyRequest{
		RemotePID: int(desc.PID),
		RemotePtr: uintptr(desc.Ptr),
		LocalPtr:  ptr,
		Length:    length,
		Callback: func(copyErr error) {
			c.loop.Defer(func() {
				c.onCopyComplete(operationID, copyErr, recvCb)
			})
		},
	})
}

// onCopyComplete runs on the loop once the CopyEngine has attempted the
// copy requested by recvFromLoop. A per-copy failure only fails this Recv;
// it never poisons the channel (transient errors, like the peer having
// exited mid-copy, shouldn't strand every other in-flight operation).
func (c *Channel) onCopyComplete(operationID uint64, copyErr error, recvCb func(err error)) {
	if copyErr != nil {
		recvCb(copyErr)
		return
	}

	packet := EncodePacket(Notification{OperationID: operationID})
	c.conn.Write(packet, c.wrapWrite(nil))

	// The notification write is best-effort from the recv side: if it
	// fails, the channel's general error handling (via wrapWrite) will
	// observe that and fail outstanding sends, but this Recv already
	// succeeded.
	recvCb(nil)
}

// Close fails every outstanding Send with a ChannelClosedError and closes
// the underlying transport. Idempotent: closing an already-failed channel
// is a no-op.
func (c *Channel) Close() {
	c.loop.Defer(c.closeFromLoop)
}

func (c *Channel) closeFromLoop() {
	c.failFromLoop(&ChannelClosedError{})
}

// armRead keeps exactly one outstanding transport read for the next
// Packet outstanding at all times, from construction until the channel
// errors.
func (c *Channel) armRead() {
	c.conn.Read(c.wrapRead(c.onPacket))
}

func (c *Channel) onPacket(p []byte) {
	notification, err := DecodePacket(p)
	if err != nil {
		c.failFromLoop(err)
		return
	}

	c.onNotification(notification)
	c.armRead()
}

func (c *Channel) onNotification(n Notification) {
	idx := -1
	for i, op := range c.sendOps {
		if op.ID == n.OperationID {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.failFromLoop(&ProtocolError{Msg: fmt.Sprintf("no outstanding send operation with id %d", n.OperationID)})
		return
	}

	op := c.sendOps[idx]
	c.sendOps = append(c.sendOps[:idx], c.sendOps[idx+1:]...)
	op.Callback(nil)
}

// failFromLoop sets c.err, if it isn't already set, and runs handleError.
// It is the single entry point every error path (Close, a protocol
// violation, a transport failure) funnels through, which is what makes
// "every callback fires exactly once" hold: the guard at the top ensures
// the failure handling that follows only ever runs once per channel.
func (c *Channel) failFromLoop(err error) {
	if c.err != nil {
		return
	}
	c.err = err

	ops := c.sendOps
	c.sendOps = nil
	for _, op := range ops {
		op.Callback(c.err)
	}

	_ = c.conn.Close()
}

// wrapRead adapts a Connection.Read completion into a loop task: on a
// transport error it poisons the channel directly, without ever calling
// fn; on success it calls fn with the message bytes.
func (c *Channel) wrapRead(fn func(p []byte)) func(p []byte, err error) {
	return func(p []byte, err error) {
		c.loop.Defer(func() {
			if err != nil {
				c.failFromLoop(&TransportError{Err: err})
				return
			}
			fn(p)
		})
	}
}

// wrapWrite adapts a Connection.Write completion into a loop task: on a
// transport error it poisons the channel; on success it calls fn, if any.
func (c *Channel) wrapWrite(fn func()) func(err error) {
	return func(err error) {
		c.loop.Defer(func() {
			if err != nil {
				c.failFromLoop(&TransportError{Err: err})
				return
			}
			if fn != nil {
				fn()
			}
		})
	}
}
