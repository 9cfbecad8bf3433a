// SPDX-License-Identifier: MIT

package cma

import (
	"encoding/binary"
	"fmt"
)

// Descriptor identifies a sender's memory region so the peer can read from
// it. It carries no length: the receiver already knows the length it asked
// for from its own Recv call. It travels to the peer through the library's
// descriptor envelope (see Channel.Send), not over the channel's own
// transport connection.
type Descriptor struct {
	OperationID uint64
	PID         uint64
	Ptr         uint64
}

const descriptorWireSize = 8 + 8 + 8

// EncodeDescriptor serializes d into a fixed-width little-endian byte
// slice. Hand-rolled rather than run through encoding/gob or reflection-
// based binary.Write, matching this codebase's preference for explicit,
// allocation-light wire encoding over general-purpose marshaling.
func EncodeDescriptor(d Descriptor) []byte {
	buf := make([]byte, descriptorWireSize)
	binary.LittleEndian.PutUint64(buf[0:8], d.OperationID)
	binary.LittleEndian.PutUint64(buf[8:16], d.PID)
	binary.LittleEndian.PutUint64(buf[16:24], d.Ptr)
	return buf
}

// DecodeDescriptor deserializes a Descriptor previously produced by
// EncodeDescriptor.
func DecodeDescriptor(buf []byte) (Descriptor, error) {
	if len(buf) < descriptorWireSize {
		return Descriptor{}, fmt.Errorf("cma: descriptor too short: got %d bytes, want %d", len(buf), descriptorWireSize)
	}

	return Descriptor{
		OperationID: binary.LittleEndian.Uint64(buf[0:8]),
		PID:         binary.LittleEndian.Uint64(buf[8:16]),
		Ptr:         binary.LittleEndian.Uint64(buf[16:24]),
	}, nil
}

// Notification is sent receiver->sender over the channel's transport
// connection when a copy completes successfully.
type Notification struct {
	OperationID uint64
}

// packetKind discriminates the Packet union on the wire. CMA only ever
// produces and expects packetKindNotification; any other tag observed on
// the wire is a protocol violation.
type packetKind byte

const (
	packetKindNotification packetKind = 1
)

const notificationWireSize = 1 + 8

// EncodePacket wraps a Notification in the Packet envelope and serializes
// it to bytes suitable for Connection.Write.
func EncodePacket(n Notification) []byte {
	buf := make([]byte, notificationWireSize)
	buf[0] = byte(packetKindNotification)
	binary.LittleEndian.PutUint64(buf[1:9], n.OperationID)
	return buf
}

// DecodePacket deserializes a Packet previously produced by EncodePacket
// and returns the Notification it carries. It returns a *ProtocolError if
// the tag is anything other than packetKindNotification, or if the buffer
// is too short to hold a complete message.
func DecodePacket(buf []byte) (Notification, error) {
	if len(buf) < 1 {
		return Notification{}, &ProtocolError{Msg: "empty packet"}
	}

	switch packetKind(buf[0]) {
	case packetKindNotification:
		if len(buf) < notificationWireSize {
			return Notification{}, &ProtocolError{Msg: fmt.Sprintf("truncated notification: got %d bytes, want %d", len(buf), notificationWireSize)}
		}
		return Notification{OperationID: binary.LittleEndian.Uint64(buf[1:9])}, nil
	default:
		return Notification{}, &ProtocolError{Msg: fmt.Sprintf("unexpected packet kind %d", buf[0])}
	}
}
