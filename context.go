// SPDX-License-Identifier: MIT

package cma

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// ChannelContext is the process-wide owner of the resources every Channel
// built from it shares: one CopyEngine worker goroutine, and one closing
// broadcaster used to fail every child Channel when the context itself is
// closed. There is normally exactly one ChannelContext per process per
// transport.
type ChannelContext struct {
	descriptor string
	engine     *CopyEngine
	emitter    closingEmitter

	closed atomic.Bool
	joined atomic.Bool
	joinMu sync.Mutex
}

// NewChannelContext constructs a ChannelContext, starting its CopyEngine
// worker and computing the domain descriptor. Failing to read the boot id
// the descriptor is built from is treated as fatal, per spec: it returns
// an error rather than a context with an empty/bogus descriptor.
func NewChannelContext() (*ChannelContext, error) {
	descriptor, err := currentDomainDescriptor()
	if err != nil {
		return nil, err
	}

	return &ChannelContext{
		descriptor: descriptor,
		engine:     NewCopyEngine(),
	}, nil
}

// DomainDescriptor returns the string two endpoints compare to decide
// whether they may use a CMA channel between them.
func (ctx *ChannelContext) DomainDescriptor() string {
	return ctx.descriptor
}

// CreateChannel builds a Channel bound to conn. endpoint is accepted for
// interface symmetry with other channel variants and is unused here: the
// CMA protocol is symmetric between listener and connector.
func (ctx *ChannelContext) CreateChannel(conn Connection, _ Endpoint) (*Channel, error) {
	if ctx.joined.Load() {
		return nil, fmt.Errorf("cma: cannot create a channel on a joined context")
	}

	return newChannel(ctx, conn), nil
}

// closingEmitter implements channelContext.
func (ctx *ChannelContext) closingEmitter() *closingEmitter {
	return &ctx.emitter
}

// requestCopy implements channelContext; it is a thin forward to the
// CopyEngine.
func (ctx *ChannelContext) requestCopy(req *CopyRequest) {
	ctx.engine.Submit(req)
}

// RequestCopy is the public form of requestCopy, for callers that want to
// drive the CopyEngine directly without going through a Channel.
func (ctx *ChannelContext) RequestCopy(remotePID int, remotePtr, localPtr, length uintptr, cb func(error)) {
	ctx.requestCopy(&CopyRequest{
		RemotePID: remotePID,
		RemotePtr: remotePtr,
		LocalPtr:  localPtr,
		Length:    length,
		Callback:  cb,
	})
}

// Close signals every Channel created from this context to close, and
// tells the CopyEngine to shut down once it has drained requests already
// submitted. Idempotent. Deliberately does not take joinMu: Close can run
// from inside a CopyEngine callback (itself running on the worker
// goroutine), and if it blocked on the same lock a concurrent Join takes
// around engine.Join, the two would deadlock.
func (ctx *ChannelContext) Close() {
	if ctx.closed.CompareAndSwap(false, true) {
		ctx.emitter.Fire()
		ctx.engine.Shutdown()
	}
}

// Join calls Close, then waits for the CopyEngine's worker goroutine to
// exit. Idempotent; safe to call from multiple goroutines concurrently.
func (ctx *ChannelContext) Join() {
	ctx.Close()

	ctx.joinMu.Lock()
	defer ctx.joinMu.Unlock()

	if ctx.joined.CompareAndSwap(false, true) {
		ctx.engine.Join()
	}
}
