// SPDX-License-Identifier: MIT

//go:build linux

package cma

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dpeckett/cma/transport"
)

// TestRealChannelContextSelfPIDRoundTrip wires a real ChannelContext (real
// CopyEngine, real process_vm_readv) end to end over a transport.Pipe,
// copying from this process to itself. It is the one test in the suite
// that exercises the actual Linux primitive through the full Channel
// protocol rather than through fakeContext.
func TestRealChannelContextSelfPIDRoundTrip(t *testing.T) {
	ctx, err := NewChannelContext()
	require.NoError(t, err)
	defer ctx.Join()

	a, b := transport.NewPipe()

	sender, err := ctx.CreateChannel(a, EndpointConnector)
	require.NoError(t, err)
	receiver, err := ctx.CreateChannel(b, EndpointListener)
	require.NoError(t, err)

	src := []byte("hello from the same process")
	dst := make([]byte, len(src))

	descriptors := make(chan []byte, 1)
	sendErrs := make(chan error, 1)
	recvErrs := make(chan error, 1)

	sender.Send(ptrOf(src), uintptr(len(src)), func(err error, d []byte) {
		require.NoError(t, err)
		descriptors <- append([]byte(nil), d...)
	}, func(err error) {
		sendErrs <- err
	})

	receiver.Recv(waitFor(t, descriptors), ptrOf(dst), uintptr(len(dst)), func(err error) {
		recvErrs <- err
	})

	recvErr := waitFor(t, recvErrs)
	var sysErr *SystemError
	if errors.As(recvErr, &sysErr) {
		skipIfUnsupported(t, sysErr.Errno)
	}
	require.NoError(t, recvErr)
	require.NoError(t, waitFor(t, sendErrs))
	require.Equal(t, src, dst)
}
