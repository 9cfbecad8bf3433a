// SPDX-License-Identifier: MIT

package cma

// CopyRequest describes one cross-process memory copy: read Length bytes
// from RemotePtr in RemotePID's address space into LocalPtr in this
// process. Callback is invoked exactly once, from the CopyEngine's worker
// goroutine, with nil on success or a typed error.
type CopyRequest struct {
	RemotePID int
	RemotePtr uintptr
	LocalPtr  uintptr
	Length    uintptr
	Callback  func(error)
}

// requestsCapacity bounds the CopyEngine's queue. It is large enough that
// submitters never meaningfully block on it in practice; it exists only to
// cap memory if a worker is wedged, not to provide flow control.
const requestsCapacity = 1 << 16

// CopyEngine runs one dedicated worker goroutine that drains a bounded
// queue of CopyRequests in FIFO order, one at a time, performing each copy
// via the OS's cross-process-memory-read primitive. It is shared by every
// Channel created from the same ChannelContext.
type CopyEngine struct {
	requests chan *CopyRequest
	done     chan struct{}
}

// NewCopyEngine starts the worker goroutine and returns the engine.
func NewCopyEngine() *CopyEngine {
	e := &CopyEngine{
		requests: make(chan *CopyRequest, requestsCapacity),
		done:     make(chan struct{}),
	}
	go e.run()
	return e
}

// Submit enqueues a copy request. It does not block on the copy itself —
// req.Callback fires later, from the worker goroutine.
func (e *CopyEngine) Submit(req *CopyRequest) {
	e.requests <- req
}

// Shutdown enqueues the shutdown sentinel (a nil request). Idempotent:
// the worker exits on the first sentinel it sees, so any extra sentinels
// are left unconsumed, and once the worker has exited Shutdown returns
// without enqueuing anything.
func (e *CopyEngine) Shutdown() {
	select {
	case e.requests <- nil:
	case <-e.done:
	}
}

// Join waits for the worker goroutine to exit. Must be preceded by
// Shutdown; Join on its own does not request shutdown.
func (e *CopyEngine) Join() {
	<-e.done
}

func (e *CopyEngine) run() {
	defer close(e.done)

	for req := range e.requests {
		if req == nil {
			return
		}

		n, err := processVMReadv(req.RemotePID, req.LocalPtr, req.RemotePtr, req.Length)
		switch {
		case err != nil:
			req.Callback(&SystemError{Errno: err})
		case uintptr(n) != req.Length:
			req.Callback(&ShortReadError{Expected: int(req.Length), Got: n})
		default:
			req.Callback(nil)
		}
	}
}
