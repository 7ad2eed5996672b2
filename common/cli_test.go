// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type codedError int

func (e codedError) Error() string { return fmt.Sprintf("code %d", int(e)) }
func (e codedError) ExitCode() int { return int(e) }

func TestExitCode(t *testing.T) {
	t.Parallel()
	require.Equal(t, 1, ExitCode(errors.New("plain")))
	require.Equal(t, 4, ExitCode(codedError(4)))
	require.Equal(t, 5, ExitCode(fmt.Errorf("wrapped: %w", codedError(5))))
}

func TestIsUsageError(t *testing.T) {
	t.Parallel()
	require.True(t, isUsageError(errors.New(`required flag(s) "account" not set`)))
	require.True(t, isUsageError(errors.New("failed to load config file: open x: no such file")))
	require.False(t, isUsageError(errors.New("client: request expired")))
}
