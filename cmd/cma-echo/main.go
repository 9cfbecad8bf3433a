// SPDX-License-Identifier: MIT

// Command cma-echo is a minimal two-process demonstration of the cma
// channel: the parent process forks a copy of itself connected by two
// socketpairs, sends a buffer across using Channel.Send, and the child
// receives it with Channel.Recv and prints what it read. Unlike the
// in-memory transport.Pipe used by the test suite, this exercises a real
// process_vm_readv across an actual process boundary.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/exec"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/dpeckett/cma"
)

const childEnvVar = "CMA_ECHO_CHILD"

func main() {
	message := flag.String("message", "hello over cma", "message for the parent to send to the child")
	flag.Parse()

	if os.Getenv(childEnvVar) == "1" {
		if err := runChild(); err != nil {
			log.Fatalf("child: %v", err)
		}
		return
	}

	if err := runParent(*message); err != nil {
		log.Fatalf("parent: %v", err)
	}
}

// socketpairConn creates a connected pair of AF_UNIX stream sockets and
// returns them as the two ends of a net.Conn, ready to be handed to the
// parent and to a child process respectively.
func socketpairConn(name string) (parentConn net.Conn, childFile *os.File, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("socketpair: %w", err)
	}

	parentFile := os.NewFile(uintptr(fds[0]), name+"-parent")
	childFile = os.NewFile(uintptr(fds[1]), name+"-child")

	parentConn, err = net.FileConn(parentFile)
	if err != nil {
		return nil, nil, fmt.Errorf("wrapping socket: %w", err)
	}
	parentFile.Close()

	return parentConn, childFile, nil
}

func runParent(message string) error {
	// The channel's own connection carries only Packet-encoded
	// Notifications; the control connection carries the out-of-band
	// Descriptor exchange. Keeping them on separate sockets avoids
	// mixing the two wire formats on one stream.
	chanConn, chanChildFile, err := socketpairConn("cma-echo-chan")
	if err != nil {
		return err
	}
	defer chanConn.Close()

	ctrlConn, ctrlChildFile, err := socketpairConn("cma-echo-ctrl")
	if err != nil {
		return err
	}
	defer ctrlConn.Close()

	cmd := exec.Command(os.Args[0])
	cmd.Env = append(os.Environ(), childEnvVar+"=1")
	cmd.ExtraFiles = []*os.File{chanChildFile, ctrlChildFile}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting child: %w", err)
	}
	chanChildFile.Close()
	ctrlChildFile.Close()

	ctx, err := cma.NewChannelContext()
	if err != nil {
		return fmt.Errorf("creating channel context: %w", err)
	}
	defer ctx.Join()

	ch, err := ctx.CreateChannel(newFramedConn(chanConn), cma.EndpointConnector)
	if err != nil {
		return fmt.Errorf("creating channel: %w", err)
	}
	defer ch.Close()

	payload := []byte(message)

	done := make(chan error, 1)
	ch.Send(ptrOf(payload), uintptr(len(payload)), func(err error, descriptor []byte) {
		if err != nil {
			done <- fmt.Errorf("send descriptor: %w", err)
			return
		}
		if err := writeOutOfBandDescriptor(ctrlConn, len(payload), descriptor); err != nil {
			done <- fmt.Errorf("writing descriptor out of band: %w", err)
		}
	}, func(err error) {
		done <- err
	})

	if err := <-done; err != nil {
		return fmt.Errorf("send: %w", err)
	}

	log.Printf("parent: child acknowledged receipt of %q", message)

	return cmd.Wait()
}

func runChild() error {
	chanConn, err := net.FileConn(os.NewFile(3, "cma-echo-chan-fd"))
	if err != nil {
		return fmt.Errorf("wrapping inherited channel socket: %w", err)
	}
	defer chanConn.Close()

	ctrlConn, err := net.FileConn(os.NewFile(4, "cma-echo-ctrl-fd"))
	if err != nil {
		return fmt.Errorf("wrapping inherited control socket: %w", err)
	}
	defer ctrlConn.Close()

	ctx, err := cma.NewChannelContext()
	if err != nil {
		return fmt.Errorf("creating channel context: %w", err)
	}
	defer ctx.Join()

	ch, err := ctx.CreateChannel(newFramedConn(chanConn), cma.EndpointListener)
	if err != nil {
		return fmt.Errorf("creating channel: %w", err)
	}
	defer ch.Close()

	length, descriptor, err := readOutOfBandDescriptor(ctrlConn)
	if err != nil {
		return fmt.Errorf("reading descriptor out of band: %w", err)
	}

	dst := make([]byte, length)

	recvDone := make(chan error, 1)
	ch.Recv(descriptor, ptrOf(dst), uintptr(len(dst)), func(err error) {
		recvDone <- err
	})

	if err := <-recvDone; err != nil {
		return fmt.Errorf("recv: %w", err)
	}

	log.Printf("child: received %q", string(dst))

	return nil
}

// writeOutOfBandDescriptor and readOutOfBandDescriptor exchange the
// sender's Descriptor, and the length the receiver should read, over the
// control socket. The descriptor never passes through Channel.Send/Recv
// itself — the application is always responsible for getting it to the
// peer by whatever side channel it already has, which here is a second,
// dedicated socketpair.
func writeOutOfBandDescriptor(conn net.Conn, length int, descriptor []byte) error {
	header := make([]byte, 8)
	binary.BigEndian.PutUint32(header[0:4], uint32(length))
	binary.BigEndian.PutUint32(header[4:8], uint32(len(descriptor)))

	if _, err := conn.Write(header); err != nil {
		return err
	}
	_, err := conn.Write(descriptor)
	return err
}

func readOutOfBandDescriptor(conn net.Conn) (length int, descriptor []byte, err error) {
	header := make([]byte, 8)
	if _, err := fullRead(conn, header); err != nil {
		return 0, nil, err
	}

	length = int(binary.BigEndian.Uint32(header[0:4]))
	descLen := int(binary.BigEndian.Uint32(header[4:8]))

	descriptor = make([]byte, descLen)
	if _, err := fullRead(conn, descriptor); err != nil {
		return 0, nil, err
	}

	return length, descriptor, nil
}

func fullRead(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func ptrOf(b []byte) uintptr {
	if len(b) == 0 {
		var zero byte
		return uintptr(unsafe.Pointer(&zero))
	}
	return uintptr(unsafe.Pointer(&b[0]))
}
