// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/katzenpost/sigrelay/protocol"
)

func msg(kind protocol.Kind, id, data string) *protocol.Message {
	return &protocol.Message{Cmd: kind, UUID: id, Data: data}
}

func TestStoreCoalescesDuplicates(t *testing.T) {
	t.Parallel()
	s := newPendingStore()
	now := time.Now()
	later := now.Add(time.Minute)

	s.push(msg(protocol.SignAck, "abc", "first"), later)
	s.push(msg(protocol.SignAck, "abc", "second"), later)
	s.push(msg(protocol.SignAck, "xyz", "other"), later)
	require.Equal(t, 3, s.len())

	m := s.query(protocol.SignAck, "abc", now)
	require.NotNil(t, m)
	require.Equal(t, "first", m.Data)
	require.Equal(t, 1, s.len())

	require.Nil(t, s.query(protocol.SignAck, "abc", now))
	require.NotNil(t, s.query(protocol.SignAck, "xyz", now))
	require.Zero(t, s.len())
}

func TestStoreNeverReturnsExpired(t *testing.T) {
	t.Parallel()
	s := newPendingStore()
	now := time.Now()

	s.push(msg(protocol.AuthWait, "old", ""), now.Add(-time.Second))
	s.push(msg(protocol.AuthWait, "edge", ""), now)
	s.push(msg(protocol.AuthWait, "new", ""), now.Add(time.Second))

	m := s.query(protocol.AuthWait, "", now)
	require.NotNil(t, m)
	require.Equal(t, "new", m.UUID)
	require.Zero(t, s.len())

	s.push(msg(protocol.AuthAck, "abc", ""), now.Add(time.Second))
	require.Nil(t, s.query(protocol.AuthAck, "abc", now.Add(2*time.Second)))
	require.Zero(t, s.len())
}

func TestStoreKindOnlyMatchesEarliest(t *testing.T) {
	t.Parallel()
	s := newPendingStore()
	now := time.Now()

	s.push(msg(protocol.ChallengeWait, "one", ""), now.Add(2*time.Minute))
	s.push(msg(protocol.SignWait, "x", ""), now.Add(time.Minute))
	s.push(msg(protocol.ChallengeWait, "two", ""), now.Add(time.Minute))
	s.push(msg(protocol.ChallengeWait, "one", ""), now.Add(time.Minute))

	m := s.query(protocol.ChallengeWait, "", now)
	require.Equal(t, "one", m.UUID)
	m = s.query(protocol.ChallengeWait, "", now)
	require.Equal(t, "two", m.UUID)
	require.Nil(t, s.query(protocol.ChallengeWait, "", now))
	require.Equal(t, 1, s.len())
}

func TestStoreIgnoresOtherKinds(t *testing.T) {
	t.Parallel()
	s := newPendingStore()
	now := time.Now()

	s.push(msg(protocol.AuthNack, "abc", ""), now.Add(time.Minute))
	require.Nil(t, s.query(protocol.AuthAck, "abc", now))
	require.Nil(t, s.query(protocol.SignNack, "abc", now))
	require.Nil(t, s.query(protocol.AuthNack, "abd", now))
	require.NotNil(t, s.query(protocol.AuthNack, "abc", now))
}

func TestStoreReturnsCopies(t *testing.T) {
	t.Parallel()
	s := newPendingStore()
	now := time.Now()
	orig := msg(protocol.SignAck, "abc", "data")
	s.push(orig, now.Add(time.Minute))

	m := s.query(protocol.SignAck, "abc", now)
	m.Data = "changed"
	require.Equal(t, "data", orig.Data)
}

func TestStoreChangedSignalsPush(t *testing.T) {
	t.Parallel()
	s := newPendingStore()
	ch := s.changed()
	select {
	case <-ch:
		t.Fatal("changed before any push")
	default:
	}

	s.push(msg(protocol.AuthWait, "abc", ""), time.Now().Add(time.Minute))
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("push did not signal")
	}
	require.NotEqual(t, ch, s.changed())
}
