// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SupportedVersion is the highest protocol version this client speaks.
const SupportedVersion = 1.0

var (
	errNoCmd       = errors.New("protocol: message has no cmd")
	errNotAuthLink = errors.New("protocol: not an auth link")
)

// Request is an outbound request. Data is an encrypted envelope and
// AuthKey, present only in service mode, is the wrapped session key.
type Request struct {
	Cmd     Kind   `json:"cmd"`
	Account string `json:"account"`
	Token   string `json:"token,omitempty"`
	Data    string `json:"data"`
	AuthKey string `json:"auth_key,omitempty"`
}

// Message is an inbound message pushed by the relay.
type Message struct {
	Cmd     Kind   `json:"cmd"`
	UUID    string `json:"uuid,omitempty"`
	Expire  int64  `json:"expire,omitempty"`
	Account string `json:"account,omitempty"`
	Data    string `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`

	// Handshake fields.
	Timeout  int     `json:"timeout,omitempty"`
	Protocol float64 `json:"protocol,omitempty"`
	Server   string  `json:"server,omitempty"`
}

// Decode parses one inbound message.
func Decode(raw []byte) (*Message, error) {
	m := new(Message)
	if err := json.Unmarshal(raw, m); err != nil {
		return nil, fmt.Errorf("protocol: %w", err)
	}
	if m.Cmd == "" {
		return nil, errNoCmd
	}
	return m, nil
}

// ExpireTime returns Expire as a time, or the zero time if unset.
func (m *Message) ExpireTime() time.Time {
	if m.Expire == 0 {
		return time.Time{}
	}
	return time.UnixMilli(m.Expire)
}

// TimeoutDuration returns the handshake timeout, or zero if unset.
func (m *Message) TimeoutDuration() time.Duration {
	return time.Duration(m.Timeout) * time.Second
}

func (m *Message) String() string {
	if m.UUID == "" {
		return string(m.Cmd)
	}
	return fmt.Sprintf("%s(%s)", m.Cmd, m.UUID)
}
