// SPDX-License-Identifier: MIT

//go:build !linux

package cma

import "fmt"

// currentDomainDescriptor has no implementation outside Linux: the boot id
// source (/proc/sys/kernel/random/boot_id) is Linux-specific, and a CMA
// channel is meaningless without it.
func currentDomainDescriptor() (string, error) {
	return "", fmt.Errorf("cma: domain descriptor is only available on linux")
}
