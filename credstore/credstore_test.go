// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package credstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/katzenpost/sigrelay/core/log"
	"github.com/katzenpost/sigrelay/session"
)

func openTestStore(t *testing.T, f string) *Store {
	backend, err := log.New("", "DEBUG", true)
	require.NoError(t, err)
	s, err := Open(f, backend.GetLogger("credstore"))
	require.NoError(t, err)
	return s
}

func TestStorePersists(t *testing.T) {
	t.Parallel()
	f := filepath.Join(t.TempDir(), "creds.db")
	s := openTestStore(t, f)

	k, err := session.NewKey()
	require.NoError(t, err)
	expires := time.UnixMilli(time.Now().Add(time.Hour).UnixMilli())
	require.NoError(t, s.Put(&session.Credential{Identity: "bob", AccessToken: "T1", ExpiresAt: expires, Key: k}))
	require.NoError(t, s.Put(&session.Credential{Identity: "alice"}))
	require.Error(t, s.Put(&session.Credential{}))
	require.NoError(t, s.Close())

	s = openTestStore(t, f)
	defer s.Close()

	c, err := s.Get("bob")
	require.NoError(t, err)
	require.Equal(t, "T1", c.AccessToken)
	require.True(t, expires.Equal(c.ExpiresAt))
	require.True(t, k.Equal(c.Key))

	c, err = s.Get("alice")
	require.NoError(t, err)
	require.Nil(t, c.Key)
	require.True(t, c.ExpiresAt.IsZero())

	_, err = s.Get("carol")
	require.ErrorIs(t, err, ErrNotFound)

	all, err := s.List()
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "alice", all[0].Identity)

	require.NoError(t, s.Delete("alice"))
	require.ErrorIs(t, s.Delete("alice"), ErrNotFound)
	all, err = s.List()
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestStoreRejectsUnknownVersion(t *testing.T) {
	t.Parallel()
	f := filepath.Join(t.TempDir(), "creds.db")
	db, err := bolt.Open(f, 0600, nil)
	require.NoError(t, err)
	require.NoError(t, db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return err
		}
		return bkt.Put([]byte(versionKey), []byte{7})
	}))
	require.NoError(t, db.Close())

	backend, err := log.New("", "DEBUG", true)
	require.NoError(t, err)
	_, err = Open(f, backend.GetLogger("credstore"))
	require.Error(t, err)
}
