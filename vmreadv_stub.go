// SPDX-License-Identifier: MIT

//go:build !linux

package cma

import "golang.org/x/sys/unix"

// processVMReadv is unavailable outside Linux; the CMA channel is a
// Linux-specific mechanism (process_vm_readv has no equivalent on other
// platforms this module targets), so every call fails the same way a
// genuinely unsupported primitive would on Linux itself.
func processVMReadv(remotePID int, localPtr, remotePtr, length uintptr) (int, error) {
	return -1, unix.ENOSYS
}
