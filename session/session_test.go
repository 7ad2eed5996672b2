// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package session

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/katzenpost/sigrelay/envelope"
)

func TestKeyEncoding(t *testing.T) {
	t.Parallel()
	k, err := NewKey()
	require.NoError(t, err)

	k2, err := ParseKey(k.String())
	require.NoError(t, err)
	require.True(t, k.Equal(k2))

	_, err = ParseKey("zz")
	require.Error(t, err)
	_, err = ParseKey("abcd")
	require.Error(t, err)

	k3, err := NewKey()
	require.NoError(t, err)
	require.False(t, k.Equal(k3))
}

func TestDeriveKey(t *testing.T) {
	t.Parallel()
	var m KeyManager

	_, err := m.DeriveKey(&Credential{})
	require.ErrorIs(t, err, ErrNoIdentity)

	fresh, err := m.DeriveKey(&Credential{Identity: "alice"})
	require.NoError(t, err)
	other, err := m.DeriveKey(&Credential{Identity: "alice"})
	require.NoError(t, err)
	require.False(t, fresh.Equal(other))

	cred := &Credential{Identity: "alice", Key: fresh}
	reused, err := m.DeriveKey(cred)
	require.NoError(t, err)
	require.Same(t, fresh, reused)
}

func TestCredentialExpiry(t *testing.T) {
	t.Parallel()
	now := time.Now()
	c := &Credential{Identity: "bob"}
	require.False(t, c.Expired(now))
	require.False(t, c.Authenticated(now))

	k, err := NewKey()
	require.NoError(t, err)
	c.AccessToken = "T1"
	c.Key = k
	c.ExpiresAt = now.Add(time.Minute)
	require.True(t, c.Authenticated(now))
	require.True(t, c.Expired(now.Add(time.Minute)))
}

func TestServiceMode(t *testing.T) {
	t.Parallel()
	_, err := NewServiceMode([]byte("short"))
	require.Error(t, err)

	secret := bytes.Repeat([]byte{7}, ServiceSecretSize)
	sm, err := NewServiceMode(secret)
	require.NoError(t, err)

	k, err := NewKey()
	require.NoError(t, err)
	wrapped, err := sm.Wrap(k)
	require.NoError(t, err)

	peer, err := NewServiceMode(secret)
	require.NoError(t, err)
	got, err := peer.Unwrap(wrapped)
	require.NoError(t, err)
	require.True(t, k.Equal(got))

	stranger, err := NewServiceMode(bytes.Repeat([]byte{8}, ServiceSecretSize))
	require.NoError(t, err)
	_, err = stranger.Unwrap(wrapped)
	require.ErrorIs(t, err, envelope.ErrWrongKey)
}
