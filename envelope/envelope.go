// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package envelope implements the end to end payload encryption used
// between the client and the signer. Envelopes are opaque strings to the
// relay which carries them.
//
// An envelope is the standard base64 encoding of
//
//	version (1 byte) || nonce (24 bytes) || XChaCha20-Poly1305 ciphertext
//
// sealed under a 32 byte symmetric key.
package envelope

import (
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/katzenpost/hpqc/rand"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// KeySize is the size of an envelope key in bytes.
	KeySize = chacha20poly1305.KeySize

	// Version is the envelope format version produced by Seal.
	Version byte = 1

	headerSize = 1 + chacha20poly1305.NonceSizeX
)

var (
	// ErrMalformed is returned when an envelope cannot possibly be opened:
	// bad encoding, truncated, unknown version or a bad key length.
	ErrMalformed = errors.New("envelope: malformed")

	// ErrWrongKey is returned when an envelope fails authentication,
	// either because it was sealed under another key or was altered.
	ErrWrongKey = errors.New("envelope: wrong key or corrupted ciphertext")
)

// Codec seals and opens envelopes.
type Codec interface {
	// Seal encrypts plaintext under key.
	Seal(key []byte, plaintext []byte) (string, error)

	// Open decrypts an envelope under key. It fails with an error
	// matching ErrMalformed or ErrWrongKey.
	Open(key []byte, envelope string) ([]byte, error)
}

type xchacha struct{}

// New returns the default Codec.
func New() Codec {
	return xchacha{}
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key is %d bytes, want %d", ErrMalformed, len(key), KeySize)
	}
	return chacha20poly1305.NewX(key)
}

func (xchacha) Seal(key []byte, plaintext []byte) (string, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return "", err
	}
	out := make([]byte, headerSize, headerSize+len(plaintext)+aead.Overhead())
	out[0] = Version
	if _, err := io.ReadFull(rand.Reader, out[1:headerSize]); err != nil {
		return "", err
	}
	out = aead.Seal(out, out[1:headerSize], plaintext, out[:1])
	return base64.StdEncoding.EncodeToString(out), nil
}

func (xchacha) Open(key []byte, envelope string) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) < headerSize+aead.Overhead() {
		return nil, fmt.Errorf("%w: truncated", ErrMalformed)
	}
	if raw[0] != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformed, raw[0])
	}
	plaintext, err := aead.Open(nil, raw[1:headerSize], raw[headerSize:], raw[:1])
	if err != nil {
		return nil, ErrWrongKey
	}
	return plaintext, nil
}

// SealString is a convenience wrapper sealing a string payload.
func SealString(c Codec, key []byte, s string) (string, error) {
	return c.Seal(key, []byte(s))
}

// OpenString is a convenience wrapper opening a string payload.
func OpenString(c Codec, key []byte, envelope string) (string, error) {
	b, err := c.Open(key, envelope)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
