// SPDX-License-Identifier: MIT

// Command cma-bench measures round-trip throughput of many concurrent
// Send/Recv pairs against an in-memory transport.Pipe, the same way the
// library's own test suite exercises the channel, just at volume and with
// a progress bar.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/cheggaaa/pb/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/dpeckett/cma"
	"github.com/dpeckett/cma/transport"
)

func main() {
	totalOps := flag.Int("ops", 200000, "total number of send/recv round trips to perform")
	payloadSize := flag.Int("size", 4096, "payload size, in bytes, for each round trip")
	maxOutstanding := flag.Int("outstanding", 256, "maximum number of in-flight round trips")
	flag.Parse()

	if err := run(*totalOps, *payloadSize, *maxOutstanding); err != nil {
		log.Fatal(err)
	}
}

func run(totalOps, payloadSize, maxOutstanding int) error {
	ctx, err := cma.NewChannelContext()
	if err != nil {
		return fmt.Errorf("creating channel context: %w", err)
	}
	defer ctx.Join()

	a, b := transport.NewPipe()

	sender, err := ctx.CreateChannel(a, cma.EndpointConnector)
	if err != nil {
		return fmt.Errorf("creating sender channel: %w", err)
	}
	defer sender.Close()

	receiver, err := ctx.CreateChannel(b, cma.EndpointListener)
	if err != nil {
		return fmt.Errorf("creating receiver channel: %w", err)
	}
	defer receiver.Close()

	sem := semaphore.NewWeighted(int64(maxOutstanding))
	bar := pb.StartNew(totalOps)
	defer bar.Finish()

	var bytesTransferred int64

	var group errgroup.Group
	background := context.Background()

	start := time.Now()

	for i := 0; i < totalOps; i++ {
		if err := sem.Acquire(background, 1); err != nil {
			return fmt.Errorf("acquiring semaphore: %w", err)
		}

		src := make([]byte, payloadSize)
		dst := make([]byte, payloadSize)

		group.Go(func() error {
			defer sem.Release(1)
			defer bar.Increment()

			descriptors := make(chan []byte, 1)
			sendErrs := make(chan error, 1)
			recvErrs := make(chan error, 1)

			sender.Send(ptrOf(src), uintptr(len(src)), func(err error, descriptor []byte) {
				if err != nil {
					descriptors <- nil
					sendErrs <- err
					return
				}
				descriptors <- descriptor
			}, func(err error) {
				sendErrs <- err
			})

			descriptor := <-descriptors
			if descriptor == nil {
				return <-sendErrs
			}

			receiver.Recv(descriptor, ptrOf(dst), uintptr(len(dst)), func(err error) {
				recvErrs <- err
			})

			if err := <-recvErrs; err != nil {
				return fmt.Errorf("recv: %w", err)
			}
			if err := <-sendErrs; err != nil {
				return fmt.Errorf("send: %w", err)
			}

			atomic.AddInt64(&bytesTransferred, int64(len(src)))

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return fmt.Errorf("round trip failed: %w", err)
	}

	elapsed := time.Since(start)
	gbPerSec := float64(bytesTransferred) / elapsed.Seconds() / (1 << 30)

	log.Printf("transferred %d bytes in %s (%.3f GiB/s) using %d CPUs",
		bytesTransferred, elapsed, gbPerSec, runtime.GOMAXPROCS(0))

	return nil
}

func ptrOf(b []byte) uintptr {
	if len(b) == 0 {
		var zero byte
		return uintptr(unsafe.Pointer(&zero))
	}
	return uintptr(unsafe.Pointer(&b[0]))
}
