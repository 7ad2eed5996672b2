// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package session

// KeyManager hands out the session key for a request.
type KeyManager struct{}

// DeriveKey returns the key carried by cred unchanged, so requests made
// after authentication keep using the established channel, or a fresh
// random key when cred has none.
func (KeyManager) DeriveKey(cred *Credential) (*Key, error) {
	if err := cred.Validate(); err != nil {
		return nil, err
	}
	if cred.Key != nil {
		return cred.Key, nil
	}
	return NewKey()
}
