// SPDX-License-Identifier: MIT

package cma

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildDomainDescriptorFormat(t *testing.T) {
	got := buildDomainDescriptor("abc-123", 1000, 1000)
	require.Equal(t, "cma:abc-123/1000/1000", got)
}

func TestBuildDomainDescriptorDiffersOnAnyComponent(t *testing.T) {
	base := buildDomainDescriptor("abc-123", 1000, 1000)

	require.NotEqual(t, base, buildDomainDescriptor("xyz-999", 1000, 1000))
	require.NotEqual(t, base, buildDomainDescriptor("abc-123", 1001, 1000))
	require.NotEqual(t, base, buildDomainDescriptor("abc-123", 1000, 1001))
}
