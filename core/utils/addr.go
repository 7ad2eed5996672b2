// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package utils

import (
	"fmt"
	"net"
	"net/url"
)

// EnsureAddrIPPort returns nil iff the address is a raw IP + Port combination.
func EnsureAddrIPPort(a string) error {
	host, _, err := net.SplitHostPort(a)
	if err != nil {
		return err
	}
	if net.ParseIP(host) == nil {
		return fmt.Errorf("address '%v' is not an IP", host)
	}
	return nil
}

// ParseWebsocketURL parses a ws:// or wss:// URL with a host.
func ParseWebsocketURL(s string) (*url.URL, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("url '%v' has scheme '%v', want ws or wss", s, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("url '%v' has no host", s)
	}
	return u, nil
}
