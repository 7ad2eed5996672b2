// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package session

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/katzenpost/hpqc/rand"

	"github.com/katzenpost/sigrelay/envelope"
)

// KeySize is the size of a session key in bytes.
const KeySize = envelope.KeySize

// Key is a symmetric session key shared between the client and the signer.
type Key [KeySize]byte

// NewKey returns a fresh random Key.
func NewKey() (*Key, error) {
	k := new(Key)
	if _, err := io.ReadFull(rand.Reader, k[:]); err != nil {
		return nil, err
	}
	return k, nil
}

// ParseKey decodes a hex encoded Key.
func ParseKey(s string) (*Key, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("session: invalid key encoding: %w", err)
	}
	if len(raw) != KeySize {
		return nil, fmt.Errorf("session: invalid key length %d", len(raw))
	}
	k := new(Key)
	copy(k[:], raw)
	return k, nil
}

// Bytes returns the key material as a slice.
func (k *Key) Bytes() []byte {
	return k[:]
}

// String returns the hex encoding of the key.
func (k *Key) String() string {
	return hex.EncodeToString(k[:])
}

// Equal returns true if both keys hold the same material.
func (k *Key) Equal(other *Key) bool {
	if k == nil || other == nil {
		return k == other
	}
	return *k == *other
}
