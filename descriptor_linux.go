// SPDX-License-Identifier: MIT

//go:build linux

package cma

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

const bootIDPath = "/proc/sys/kernel/random/boot_id"

// currentDomainDescriptor reads the host's boot id and this process's
// effective user/group ids and combines them into the CMA domain
// descriptor string. Failing to read the boot id is fatal, per spec: two
// processes with no way to agree on a boot id can never safely compare
// descriptors for equality.
func currentDomainDescriptor() (string, error) {
	raw, err := os.ReadFile(bootIDPath)
	if err != nil {
		return "", fmt.Errorf("cma: could not read boot id: %w", err)
	}

	bootID := strings.TrimSpace(string(raw))
	if bootID == "" {
		return "", fmt.Errorf("cma: boot id at %s was empty", bootIDPath)
	}

	return buildDomainDescriptor(bootID, unix.Geteuid(), unix.Getegid()), nil
}
