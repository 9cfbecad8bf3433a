// SPDX-License-Identifier: MIT

//go:build linux

package cma

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"
)

// processVMReadv is a wrapper around the process_vm_readv system call,
// which golang.org/x/sys/unix does not expose directly. It reads length
// bytes from remotePtr in remotePID's address space into localPtr in this
// process, returning the number of bytes transferred or an error.
func processVMReadv(remotePID int, localPtr, remotePtr, length uintptr) (n int, err error) {
	local := unix.Iovec{Base: (*byte)(unsafe.Pointer(localPtr))}
	local.SetLen(int(length))

	remote := unix.Iovec{Base: (*byte)(unsafe.Pointer(remotePtr))}
	remote.SetLen(int(length))

	err = unix.EINTR
	for errors.Is(err, unix.EINTR) {
		r0, _, e1 := unix.Syscall6(
			unix.SYS_PROCESS_VM_READV,
			uintptr(remotePID),
			uintptr(unsafe.Pointer(&local)),
			1,
			uintptr(unsafe.Pointer(&remote)),
			1,
			0,
		)
		n = int(r0)
		if e1 != 0 {
			err = unix.Errno(e1)
		} else {
			err = nil
		}
	}

	if err != nil {
		return -1, err
	}

	return n, nil
}
