// SPDX-License-Identifier: MIT

package cma

import "sync"

// loop is a single-consumer, run-to-completion task queue with no
// dedicated goroutine of its own. Whichever goroutine calls Defer while
// the loop is idle becomes its runner until the queue drains, giving every
// task a single-threaded view of whatever state it closes over. A loop
// never blocks a task on I/O: tasks that need to wait on the transport or
// the CopyEngine register a callback and return, and that callback itself
// calls Defer to resume work.
type loop struct {
	mu        sync.Mutex
	tasks     []func()
	hasRunner bool
}

// Defer appends fn to the queue. If no goroutine is currently draining the
// queue, the caller becomes the runner and drains it in FIFO order until
// empty before returning; otherwise Defer just enqueues fn and returns
// immediately, trusting the current runner to get to it.
func (l *loop) Defer(fn func()) {
	l.mu.Lock()
	l.tasks = append(l.tasks, fn)
	if l.hasRunner {
		l.mu.Unlock()
		return
	}
	l.hasRunner = true
	l.mu.Unlock()

	for {
		l.mu.Lock()
		if len(l.tasks) == 0 {
			l.hasRunner = false
			l.mu.Unlock()
			return
		}
		task := l.tasks[0]
		l.tasks = l.tasks[1:]
		l.mu.Unlock()

		task()
	}
}
