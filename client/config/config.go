// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package config implements the configuration for the sigrelay client.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/katzenpost/sigrelay/core/utils"
	"github.com/katzenpost/sigrelay/internal/proxy"
	"github.com/katzenpost/sigrelay/protocol"
	"github.com/katzenpost/sigrelay/session"
)

const (
	defaultLogLevel          = "NOTICE"
	defaultHandshakeTimeout  = 10
	defaultKeepAliveInterval = 30
	defaultConnectAttempts   = 5
	defaultDefaultTimeout    = 60
	defaultConnectTimeout    = 15
	defaultCredentialsPath   = "sigrelay.db"
)

var defaultLogging = Logging{
	Disable: false,
	File:    "",
	Level:   defaultLogLevel,
}

// Relay is the relay connection configuration.
type Relay struct {
	// URL is the ws:// or wss:// address of the relay.
	URL string

	// HandshakeTimeout is the number of seconds the websocket opening
	// handshake may take.
	HandshakeTimeout int

	// KeepAliveInterval is the number of seconds between pings.
	KeepAliveInterval int

	// ConnectAttempts is the number of dials made by one connect.
	ConnectAttempts int
}

func (r *Relay) validate() error {
	if r.URL == "" {
		return errors.New("config: Relay: URL is not set")
	}
	if _, err := utils.ParseWebsocketURL(r.URL); err != nil {
		return fmt.Errorf("config: Relay: %v", err)
	}
	if r.HandshakeTimeout == 0 {
		r.HandshakeTimeout = defaultHandshakeTimeout
	}
	if r.KeepAliveInterval == 0 {
		r.KeepAliveInterval = defaultKeepAliveInterval
	}
	if r.ConnectAttempts == 0 {
		r.ConnectAttempts = defaultConnectAttempts
	}
	if r.HandshakeTimeout < 0 || r.KeepAliveInterval < 0 || r.ConnectAttempts < 0 {
		return errors.New("config: Relay: negative values are invalid")
	}
	return nil
}

// Logging is the logging configuration.
type Logging struct {
	// Disable disables logging entirely.
	Disable bool

	// File specifies the log file, if omitted stdout will be used.
	File string

	// Level specifies the log level.
	Level string
}

func (lCfg *Logging) validate() error {
	lvl := strings.ToUpper(lCfg.Level)
	switch lvl {
	case "ERROR", "WARNING", "NOTICE", "INFO", "DEBUG":
	case "":
		lvl = defaultLogLevel
	default:
		return fmt.Errorf("config: Logging: Level '%v' is invalid", lCfg.Level)
	}
	lCfg.Level = lvl
	return nil
}

// Debug is the debug configuration.
type Debug struct {
	// DefaultTimeout is the number of seconds a request may stay
	// unconfirmed when the relay has not announced its own timeout. It is
	// also the lifetime of inbound messages that carry no expiry.
	DefaultTimeout int

	// ConnectTimeout is the number of seconds a request waits for the
	// relay connection to come up before failing.
	ConnectTimeout int
}

func (d *Debug) fixup() {
	if d.DefaultTimeout <= 0 {
		d.DefaultTimeout = defaultDefaultTimeout
	}
	if d.ConnectTimeout <= 0 {
		d.ConnectTimeout = defaultConnectTimeout
	}
}

// UpstreamProxy is the outgoing connection proxy configuration.
type UpstreamProxy struct {
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
}

func (uCfg *UpstreamProxy) toProxyConfig() (*proxy.Config, error) {
	cfg := &proxy.Config{
		Type:     uCfg.Type,
		Network:  uCfg.Network,
		Address:  uCfg.Address,
		User:     uCfg.User,
		Password: uCfg.Password,
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ServiceMode enables sending the session key to the signer wrapped
// under a shared secret. It only has an effect for clients created with
// client.NewServiceClient.
type ServiceMode struct {
	// Enable must be set for the section to be honoured.
	Enable bool

	// Secret is the hex encoded 32 byte secret shared with the signer.
	Secret string

	secret []byte
}

func (s *ServiceMode) validate() error {
	if !s.Enable {
		if s.Secret != "" {
			return errors.New("config: ServiceMode: Secret is set but Enable is not")
		}
		return nil
	}
	raw, err := hex.DecodeString(s.Secret)
	if err != nil {
		return fmt.Errorf("config: ServiceMode: Secret is invalid: %v", err)
	}
	if len(raw) != session.ServiceSecretSize {
		return fmt.Errorf("config: ServiceMode: Secret must be %d bytes", session.ServiceSecretSize)
	}
	s.secret = raw
	return nil
}

// App describes this application to the signer when authenticating.
type App struct {
	Name        string
	Description string
	Icon        string
}

// Metrics is the Prometheus endpoint configuration.
type Metrics struct {
	// Address is the listen address of /metrics, empty disables it.
	Address string
}

// Credentials is the credential store configuration.
type Credentials struct {
	// Path is the bbolt database holding stored credentials.
	Path string
}

// Config is the top level sigrelay configuration.
type Config struct {
	Relay         *Relay
	Logging       *Logging
	Debug         *Debug
	UpstreamProxy *UpstreamProxy
	ServiceMode   *ServiceMode
	App           *App
	Metrics       *Metrics
	Credentials   *Credentials

	upstreamProxy *proxy.Config
}

// UpstreamProxyConfig returns the configured upstream proxy, suitable for
// internal use.
func (c *Config) UpstreamProxyConfig() *proxy.Config {
	return c.upstreamProxy
}

// ServiceSecret returns the decoded service mode secret, or nil when
// service mode is not enabled.
func (c *Config) ServiceSecret() []byte {
	if c.ServiceMode == nil || !c.ServiceMode.Enable {
		return nil
	}
	return c.ServiceMode.secret
}

// DefaultTimeout returns Debug.DefaultTimeout as a duration.
func (c *Config) DefaultTimeout() time.Duration {
	return time.Duration(c.Debug.DefaultTimeout) * time.Second
}

// ConnectTimeout returns Debug.ConnectTimeout as a duration.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Debug.ConnectTimeout) * time.Second
}

// AppDescriptor returns the App section as a wire payload.
func (c *Config) AppDescriptor() protocol.App {
	return protocol.App{
		Name:        c.App.Name,
		Description: c.App.Description,
		Icon:        c.App.Icon,
	}
}

// FixupAndValidate applies defaults to config entries and validates the
// configuration sections.
func (c *Config) FixupAndValidate() error {
	if c.Relay == nil {
		return errors.New("config: No Relay block was present")
	}
	if err := c.Relay.validate(); err != nil {
		return err
	}

	// Handle missing sections if possible.
	if c.Logging == nil {
		l := defaultLogging
		c.Logging = &l
	}
	if c.Debug == nil {
		c.Debug = &Debug{}
	}
	c.Debug.fixup()
	if c.UpstreamProxy == nil {
		c.UpstreamProxy = &UpstreamProxy{}
	}
	if c.ServiceMode == nil {
		c.ServiceMode = &ServiceMode{}
	}
	if c.App == nil {
		c.App = &App{}
	}
	if c.App.Name == "" {
		c.App.Name = "sigrelay"
	}
	if c.Metrics == nil {
		c.Metrics = &Metrics{}
	}
	if c.Credentials == nil {
		c.Credentials = &Credentials{}
	}
	if c.Credentials.Path == "" {
		c.Credentials.Path = defaultCredentialsPath
	}

	// Validate/fixup the various sections.
	if err := c.Logging.validate(); err != nil {
		return err
	}
	if err := c.ServiceMode.validate(); err != nil {
		return err
	}
	uCfg, err := c.UpstreamProxy.toProxyConfig()
	if err != nil {
		return err
	}
	c.upstreamProxy = uCfg
	return nil
}

// Load parses and validates the provided buffer b as a config file body and
// returns the Config.
func Load(b []byte) (*Config, error) {
	cfg := new(Config)
	if err := toml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads, parses, and validates the provided file and returns the
// Config.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}
