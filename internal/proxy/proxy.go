// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package proxy implements the support for an upstream (outgoing) proxy
// used to reach the relay.
package proxy

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"strings"

	"golang.org/x/net/proxy"

	"github.com/katzenpost/sigrelay/core/utils"
)

const (
	typeNone      = "none"
	typeTorSocks5 = "tor+socks5"
	typeSocks5    = "socks5"

	netUnix = "unix"
	netTCP  = "tcp"

	maxSocks5AuthLen = 255
)

// Config is the proxy configuration.
type Config struct {
	// Type is the proxy type (Eg: "none"," socks5", "tor+socks5").
	Type string

	// Network is the proxy address' network (`unix`, `tcp`).
	Network string

	// Address is the proxy's address.
	Address string

	// User is the optional proxy username.
	User string

	// Password is the optional proxy password.
	Password string

	auth *proxy.Auth
}

// DialContextFn is a function that matches the Dialer.DialContext prototype.
type DialContextFn func(context.Context, string, string) (net.Conn, error)

// FixupAndValidate applies defaults to config entries and validates the
// supplied configuration.
func (cfg *Config) FixupAndValidate() error {
	cfg.Type = strings.ToLower(cfg.Type)
	switch cfg.Type {
	case "":
		cfg.Type = typeNone
	case typeNone:
	case typeSocks5, typeTorSocks5:
		if err := cfg.validateAuth(); err != nil {
			return err
		}
		return cfg.validateAddress()
	default:
		return fmt.Errorf("proxy/config: Type '%v' is invalid", cfg.Type)
	}
	return nil
}

func (cfg *Config) validateAuth() error {
	uLen, pLen := len(cfg.User), len(cfg.Password)
	switch {
	case uLen > maxSocks5AuthLen:
		return fmt.Errorf("proxy/config: User too long")
	case pLen > maxSocks5AuthLen:
		return fmt.Errorf("proxy/config: Password too long")
	case (uLen == 0) != (pLen == 0):
		return fmt.Errorf("proxy/config: Both User and Password must be specified")
	case uLen == 0:
		return nil
	case cfg.Type == typeTorSocks5:
		return fmt.Errorf("proxy/config: Tor SOCKS5 conflicts with setting User/Password")
	}
	cfg.auth = &proxy.Auth{User: cfg.User, Password: cfg.Password}
	return nil
}

func (cfg *Config) validateAddress() error {
	cfg.Network = strings.ToLower(cfg.Network)
	switch cfg.Network {
	case netTCP:
		if err := utils.EnsureAddrIPPort(cfg.Address); err != nil {
			return fmt.Errorf("proxy/config: Address '%v' is invalid: %v", cfg.Address, err)
		}
	case netUnix:
		fi, err := os.Lstat(cfg.Address)
		if err != nil {
			return fmt.Errorf("proxy/config: Address '%v' failed to stat(): %v", cfg.Address, err)
		}
		if fi.Mode()&os.ModeSocket == 0 {
			return fmt.Errorf("proxy/config: Address '%v' does not appear to be a socket", cfg.Address)
		}
	default:
		return fmt.Errorf("proxy/config: Network '%v' is invalid", cfg.Network)
	}
	return nil
}

// ToDialContext returns a function matching Dialer.DialContext() that will
// utilize the configured proxy or nil iff no proxy is configured. With
// tor+socks5, tag selects a Tor circuit so that distinct tags never share one.
func (cfg *Config) ToDialContext(tag string) DialContextFn {
	switch cfg.Type {
	case typeNone, "":
		return nil
	case typeSocks5, typeTorSocks5:
		return cfg.newContextSOCKS5(tag)
	default:
		panic("proxy: ToDialContext(): invalid type: " + cfg.Type)
	}
}

func (cfg *Config) newContextSOCKS5(tag string) DialContextFn {
	auth := cfg.auth
	if cfg.Type == typeTorSocks5 {
		sum := sha512.Sum512_256([]byte(tag))
		auth = &proxy.Auth{
			User:     "sigrelay:" + hex.EncodeToString(sum[:16]),
			Password: string([]byte{0x00}),
		}
	}
	proxyNet, proxyAddr := cfg.Network, cfg.Address
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		d, err := proxy.SOCKS5(proxyNet, proxyAddr, auth, proxy.Direct)
		if err != nil {
			return nil, err
		}
		cd, ok := d.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("proxy: SOCKS5 dialer does not support contexts")
		}
		return cd.DialContext(ctx, network, address)
	}
}
