// SPDX-License-Identifier: MIT

package cma_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	cma "github.com/dpeckett/cma"
)

func TestDescriptorRoundTrip(t *testing.T) {
	d := cma.Descriptor{OperationID: 42, PID: 1234, Ptr: 0xdeadbeef}

	got, err := cma.DecodeDescriptor(cma.EncodeDescriptor(d))
	require.NoError(t, err)
	require.Equal(t, d, got)
}

func TestDecodeDescriptorTooShort(t *testing.T) {
	_, err := cma.DecodeDescriptor([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestPacketRoundTrip(t *testing.T) {
	n := cma.Notification{OperationID: 7}

	got, err := cma.DecodePacket(cma.EncodePacket(n))
	require.NoError(t, err)
	require.Equal(t, n, got)
}

func TestDecodePacketUnknownKind(t *testing.T) {
	buf := cma.EncodePacket(cma.Notification{OperationID: 1})
	buf[0] = 0xff

	_, err := cma.DecodePacket(buf)
	require.Error(t, err)

	var protoErr *cma.ProtocolError
	require.True(t, errors.As(err, &protoErr))
}

func TestDecodePacketEmpty(t *testing.T) {
	_, err := cma.DecodePacket(nil)
	require.Error(t, err)
}

func TestDecodePacketTruncatedNotification(t *testing.T) {
	buf := cma.EncodePacket(cma.Notification{OperationID: 1})

	_, err := cma.DecodePacket(buf[:3])
	require.Error(t, err)
}
