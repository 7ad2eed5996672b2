// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package protocol

import (
	"encoding/base64"
	"encoding/json"
)

// App describes the application asking for authentication.
type App struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
}

// KeyType names one of the signer's account keys.
type KeyType string

const (
	KeyPosting KeyType = "posting"
	KeyActive  KeyType = "active"
	KeyMemo    KeyType = "memo"
)

// Valid returns true for the key types a signer understands.
func (k KeyType) Valid() bool {
	switch k {
	case KeyPosting, KeyActive, KeyMemo:
		return true
	}
	return false
}

// Challenge asks the signer to sign an arbitrary string with a key.
type Challenge struct {
	KeyType   KeyType `json:"key_type"`
	Challenge string  `json:"challenge"`
}

// AuthRequestPayload is the plaintext of an auth_req envelope.
type AuthRequestPayload struct {
	App       App        `json:"app"`
	Challenge *Challenge `json:"challenge,omitempty"`
	Token     string     `json:"token,omitempty"`
}

// SignRequestPayload is the plaintext of a sign_req envelope.
type SignRequestPayload struct {
	KeyType   KeyType           `json:"key_type"`
	Ops       []json.RawMessage `json:"ops"`
	Broadcast bool              `json:"broadcast"`
}

// ChallengeRequestPayload is the plaintext of a challenge_req envelope.
type ChallengeRequestPayload struct {
	KeyType   KeyType `json:"key_type"`
	Challenge string  `json:"challenge"`
}

// AuthAckPayload is the plaintext of an auth_ack envelope.
type AuthAckPayload struct {
	Token     string            `json:"token"`
	Expire    int64             `json:"expire"`
	Challenge *ChallengeAckData `json:"challenge,omitempty"`
}

// ChallengeAckData is a signed challenge.
type ChallengeAckData struct {
	Challenge string `json:"challenge"`
	PublicKey string `json:"pubkey,omitempty"`
}

// AuthLinkScheme prefixes encoded auth links.
const AuthLinkScheme = "has://auth_req/"

// AuthLink is what a signer app scans to learn the session key of a
// pending authentication.
type AuthLink struct {
	Account string `json:"account"`
	UUID    string `json:"uuid"`
	Key     string `json:"key"`
	Host    string `json:"host,omitempty"`
}

// URI encodes the link.
func (l *AuthLink) URI() string {
	b, err := json.Marshal(l)
	if err != nil {
		panic(err)
	}
	return AuthLinkScheme + base64.StdEncoding.EncodeToString(b)
}

// ParseAuthLink decodes a link produced by URI.
func ParseAuthLink(uri string) (*AuthLink, error) {
	if len(uri) < len(AuthLinkScheme) || uri[:len(AuthLinkScheme)] != AuthLinkScheme {
		return nil, errNotAuthLink
	}
	raw, err := base64.StdEncoding.DecodeString(uri[len(AuthLinkScheme):])
	if err != nil {
		return nil, err
	}
	l := new(AuthLink)
	if err := json.Unmarshal(raw, l); err != nil {
		return nil, err
	}
	return l, nil
}
