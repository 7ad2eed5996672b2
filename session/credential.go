// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package session

import (
	"errors"
	"time"
)

// ErrNoIdentity is returned when a Credential lacks an identity.
var ErrNoIdentity = errors.New("session: credential has no identity")

// Credential is the session state of one identity. It is created by the
// caller with only an Identity, or returned populated by a completed
// authenticate request. The client never persists it.
type Credential struct {
	// Identity is the account name at the signer.
	Identity string

	// AccessToken is the token issued by the signer on authentication.
	AccessToken string

	// ExpiresAt is when AccessToken stops being valid.
	ExpiresAt time.Time

	// Key is the session key used for payload envelopes.
	Key *Key
}

// Validate returns an error if the Credential cannot be used for a request.
func (c *Credential) Validate() error {
	if c == nil || c.Identity == "" {
		return ErrNoIdentity
	}
	return nil
}

// Expired returns true if the access token has a known expiry at or
// before now. A credential without an expiry never expires.
func (c *Credential) Expired(now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(c.ExpiresAt)
}

// Authenticated returns true if the Credential holds a usable token and key.
func (c *Credential) Authenticated(now time.Time) bool {
	return c.AccessToken != "" && c.Key != nil && !c.Expired(now)
}
