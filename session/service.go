// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package session

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/katzenpost/sigrelay/envelope"
)

// ServiceSecretSize is the required size of a service mode secret.
const ServiceSecretSize = 32

const serviceKeyWrapInfo = "sigrelay service key wrap v1"

// ServiceMode wraps session keys under a secret shared with a cooperating
// signer, which lets that signer learn the session key from the request
// itself rather than from a pairing step. Anyone holding the secret can
// read every payload, so only construct one when the signer is trusted
// with that.
type ServiceMode struct {
	kek   [envelope.KeySize]byte
	codec envelope.Codec
}

// NewServiceMode derives the key wrapping key from secret.
func NewServiceMode(secret []byte) (*ServiceMode, error) {
	if len(secret) != ServiceSecretSize {
		return nil, fmt.Errorf("session: service secret is %d bytes, want %d", len(secret), ServiceSecretSize)
	}
	s := &ServiceMode{codec: envelope.New()}
	r := hkdf.New(sha256.New, secret, nil, []byte(serviceKeyWrapInfo))
	if _, err := io.ReadFull(r, s.kek[:]); err != nil {
		return nil, err
	}
	return s, nil
}

// Wrap seals key for transmission alongside a request.
func (s *ServiceMode) Wrap(key *Key) (string, error) {
	return s.codec.Seal(s.kek[:], key.Bytes())
}

// Unwrap recovers a key sealed by Wrap.
func (s *ServiceMode) Unwrap(wrapped string) (*Key, error) {
	raw, err := s.codec.Open(s.kek[:], wrapped)
	if err != nil {
		return nil, err
	}
	if len(raw) != KeySize {
		return nil, fmt.Errorf("%w: wrapped key is %d bytes", envelope.ErrMalformed, len(raw))
	}
	k := new(Key)
	copy(k[:], raw)
	return k, nil
}
