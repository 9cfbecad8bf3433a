// SPDX-License-Identifier: MIT

package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
)

// framedConn adapts a net.Conn into the cma.Connection interface by
// length-prefixing each message with a 4-byte big-endian size, and
// serializing writes behind a mutex since net.Conn itself makes no
// concurrent-write guarantee.
type framedConn struct {
	conn net.Conn

	writeMu sync.Mutex
}

func newFramedConn(conn net.Conn) *framedConn {
	return &framedConn{conn: conn}
}

func (f *framedConn) Read(cb func(p []byte, err error)) {
	go func() {
		header := make([]byte, 4)
		if _, err := io.ReadFull(f.conn, header); err != nil {
			cb(nil, err)
			return
		}

		size := binary.BigEndian.Uint32(header)
		buf := make([]byte, size)
		if _, err := io.ReadFull(f.conn, buf); err != nil {
			cb(nil, err)
			return
		}

		cb(buf, nil)
	}()
}

func (f *framedConn) Write(p []byte, cb func(err error)) {
	go func() {
		f.writeMu.Lock()
		defer f.writeMu.Unlock()

		header := make([]byte, 4)
		binary.BigEndian.PutUint32(header, uint32(len(p)))

		if _, err := f.conn.Write(header); err != nil {
			cb(fmt.Errorf("writing frame header: %w", err))
			return
		}
		if _, err := f.conn.Write(p); err != nil {
			cb(fmt.Errorf("writing frame body: %w", err))
			return
		}

		cb(nil)
	}()
}

func (f *framedConn) Close() error {
	return f.conn.Close()
}
