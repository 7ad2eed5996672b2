// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package credstore keeps session credentials between runs of the
// command line client in a bbolt database.
package credstore

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"
	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/sigrelay/session"
)

const (
	metadataBucket    = "metadata"
	credentialsBucket = "credentials"
	versionKey        = "version"

	storeVersion = 0
)

// ErrNotFound is returned when no credential is stored for an identity.
var ErrNotFound = errors.New("credstore: credential not found")

type record struct {
	Identity    string
	AccessToken string `cbor:",omitempty"`
	ExpiresAt   int64  `cbor:",omitempty"`
	Key         []byte `cbor:",omitempty"`
}

func toRecord(c *session.Credential) *record {
	r := &record{
		Identity:    c.Identity,
		AccessToken: c.AccessToken,
	}
	if !c.ExpiresAt.IsZero() {
		r.ExpiresAt = c.ExpiresAt.UnixMilli()
	}
	if c.Key != nil {
		r.Key = append([]byte{}, c.Key.Bytes()...)
	}
	return r
}

func (r *record) credential() (*session.Credential, error) {
	c := &session.Credential{
		Identity:    r.Identity,
		AccessToken: r.AccessToken,
	}
	if r.ExpiresAt != 0 {
		c.ExpiresAt = time.UnixMilli(r.ExpiresAt)
	}
	if len(r.Key) > 0 {
		if len(r.Key) != session.KeySize {
			return nil, fmt.Errorf("credstore: stored key for %q is %d bytes", r.Identity, len(r.Key))
		}
		c.Key = new(session.Key)
		copy(c.Key[:], r.Key)
	}
	return c, nil
}

// Store is a credential database.
type Store struct {
	db  *bolt.DB
	log *logging.Logger
}

// Open opens or creates the database at f.
func Open(f string, log *logging.Logger) (*Store, error) {
	db, err := bolt.Open(f, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	if err = db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return err
		}
		if _, err = tx.CreateBucketIfNotExists([]byte(credentialsBucket)); err != nil {
			return err
		}
		if b := bkt.Get([]byte(versionKey)); b != nil {
			if len(b) != 1 || b[0] != storeVersion {
				return fmt.Errorf("credstore: incompatible version: %d", uint(b[0]))
			}
			return nil
		}
		return bkt.Put([]byte(versionKey), []byte{storeVersion})
	}); err != nil {
		db.Close()
		return nil, err
	}
	log.Debugf("Opened credential store %s", f)
	return &Store{db: db, log: log}, nil
}

// Put stores c, replacing any credential of the same identity.
func (s *Store) Put(c *session.Credential) error {
	if err := c.Validate(); err != nil {
		return err
	}
	b, err := cbor.Marshal(toRecord(c))
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(credentialsBucket)).Put([]byte(c.Identity), b)
	})
}

// Get returns the credential of identity.
func (s *Store) Get(identity string) (*session.Credential, error) {
	var r *record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(credentialsBucket)).Get([]byte(identity))
		if b == nil {
			return ErrNotFound
		}
		r = new(record)
		return cbor.Unmarshal(b, r)
	})
	if err != nil {
		return nil, err
	}
	return r.credential()
}

// Delete removes the credential of identity.
func (s *Store) Delete(identity string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(credentialsBucket))
		if bkt.Get([]byte(identity)) == nil {
			return ErrNotFound
		}
		return bkt.Delete([]byte(identity))
	})
}

// List returns every stored credential sorted by identity.
func (s *Store) List() ([]*session.Credential, error) {
	var out []*session.Credential
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(credentialsBucket)).ForEach(func(k, v []byte) error {
			r := new(record)
			if err := cbor.Unmarshal(v, r); err != nil {
				s.log.Warningf("Skipping corrupt credential %q: %v", k, err)
				return nil
			}
			c, err := r.credential()
			if err != nil {
				s.log.Warningf("Skipping credential: %v", err)
				return nil
			}
			out = append(out, c)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Identity < out[j].Identity
	})
	return out, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
