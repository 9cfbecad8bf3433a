// SPDX-License-Identifier: MIT

package cma

import "fmt"

// buildDomainDescriptor combines a boot id with the process's effective
// user and group ids into the string two peers compare to decide whether
// they may use a CMA channel. Only effective ids are used, mirroring the
// source this channel is modeled on; process_vm_readv actually checks
// real/effective/saved ids on both ends (see DESIGN.md, Open Question:
// domain descriptor under-approximation).
func buildDomainDescriptor(bootID string, euid, egid int) string {
	return fmt.Sprintf("cma:%s/%d/%d", bootID, euid, egid)
}
