// SPDX-License-Identifier: MIT

package cma

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClosingEmitterFiresRegisteredListeners(t *testing.T) {
	var e closingEmitter

	var fired int
	e.AddListener(func() { fired++ })
	e.AddListener(func() { fired++ })

	require.Equal(t, 0, fired)

	e.Fire()

	require.Equal(t, 2, fired)
}

func TestClosingEmitterFireIsIdempotent(t *testing.T) {
	var e closingEmitter

	var fired int
	e.AddListener(func() { fired++ })

	e.Fire()
	e.Fire()
	e.Fire()

	require.Equal(t, 1, fired)
}

func TestClosingEmitterLateRegistrationFiresImmediately(t *testing.T) {
	var e closingEmitter
	e.Fire()

	var fired int
	e.AddListener(func() { fired++ })

	require.Equal(t, 1, fired)
}
