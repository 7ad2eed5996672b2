// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package client talks to a remote signer through a relay. It matches
// the messages the relay pushes back to the requests they answer and
// keeps the session keys that encrypt payloads end to end.
package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/sigrelay/client/config"
	"github.com/katzenpost/sigrelay/core/log"
	"github.com/katzenpost/sigrelay/core/worker"
	"github.com/katzenpost/sigrelay/envelope"
	"github.com/katzenpost/sigrelay/internal/instrument"
	"github.com/katzenpost/sigrelay/protocol"
	"github.com/katzenpost/sigrelay/session"
	"github.com/katzenpost/sigrelay/transport"
)

// Client is a session with the relay. Any number of requests may be
// outstanding at once.
type Client struct {
	worker.Worker

	cfg        *config.Config
	logBackend *log.Backend
	log        *logging.Logger

	gw      transport.Gateway
	store   *pendingStore
	keys    session.KeyManager
	codec   envelope.Codec
	service *session.ServiceMode

	stateLock       sync.RWMutex
	connected       bool
	serverTimeout   time.Duration
	protocolVersion float64

	now func() time.Time
}

// New creates a Client. If gw is nil a websocket gateway to the
// configured relay is created. The connection is made by the first
// request. cfg is validated and has its defaults applied.
func New(cfg *config.Config, gw transport.Gateway) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("client: no configuration")
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	logBackend, err := log.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable)
	if err != nil {
		return nil, err
	}
	c := &Client{
		cfg:        cfg,
		logBackend: logBackend,
		log:        logBackend.GetLogger("client"),
		gw:         gw,
		store:      newPendingStore(),
		codec:      envelope.New(),
		now:        time.Now,
	}
	if c.gw == nil {
		c.gw = transport.NewWebsocket(&transport.WebsocketConfig{
			URL:               cfg.Relay.URL,
			HandshakeTimeout:  time.Duration(cfg.Relay.HandshakeTimeout) * time.Second,
			KeepAliveInterval: time.Duration(cfg.Relay.KeepAliveInterval) * time.Second,
			ConnectAttempts:   cfg.Relay.ConnectAttempts,
			DialContext:       cfg.UpstreamProxyConfig().ToDialContext("sigrelay"),
		}, logBackend.GetLogger("transport"))
	}
	c.gw.SetHandler(c)
	return c, nil
}

// NewServiceClient creates a Client that attaches every session key,
// wrapped by sm, to its requests. A signer holding the service secret
// can then decrypt all traffic of this client without pairing.
func NewServiceClient(cfg *config.Config, gw transport.Gateway, sm *session.ServiceMode) (*Client, error) {
	c, err := New(cfg, gw)
	if err != nil {
		return nil, err
	}
	c.service = sm
	c.log.Warning("Service mode enabled: session keys are sent to the signer wrapped under the service secret")
	return c, nil
}

// LogBackend returns the logging backend of the Client.
func (c *Client) LogBackend() *log.Backend {
	return c.logBackend
}

// Connected returns true while the relay connection is up.
func (c *Client) Connected() bool {
	c.stateLock.RLock()
	defer c.stateLock.RUnlock()
	return c.connected
}

// ServerTimeout returns the request timeout announced by the relay, or
// zero if none was announced yet.
func (c *Client) ServerTimeout() time.Duration {
	c.stateLock.RLock()
	defer c.stateLock.RUnlock()
	return c.serverTimeout
}

// ProtocolVersion returns the protocol version announced by the relay.
func (c *Client) ProtocolVersion() float64 {
	c.stateLock.RLock()
	defer c.stateLock.RUnlock()
	return c.protocolVersion
}

// requestTimeout is how long a request waits for its confirmation.
func (c *Client) requestTimeout() time.Duration {
	if t := c.ServerTimeout(); t > 0 {
		return t
	}
	return c.cfg.DefaultTimeout()
}

// HandleConnectionStatus is called by the gateway.
func (c *Client) HandleConnectionStatus(connected bool, err error) {
	c.stateLock.Lock()
	c.connected = connected
	c.stateLock.Unlock()
	instrument.Connected(connected)

	if connected {
		c.log.Info("Relay connection established")
		return
	}
	if err != nil {
		c.log.Noticef("Relay connection lost: %v", err)
		return
	}
	c.log.Info("Relay connection closed")
}

// HandleMessage is called by the gateway with every inbound message.
// The handshake updates the connection state, messages meant for
// requests are stored for them and everything else is dropped.
func (c *Client) HandleMessage(raw []byte) {
	m, err := protocol.Decode(raw)
	if err != nil {
		c.log.Debugf("Dropping undecodable message: %v", err)
		instrument.Discarded("invalid")
		return
	}
	kind := string(m.Cmd)
	if !m.Cmd.Known() {
		kind = "unknown"
	}
	instrument.Inbound(kind)

	switch {
	case m.Cmd == protocol.Connected:
		c.handleHandshake(m)
	case m.Cmd.Correlatable():
		expire := m.ExpireTime()
		if expire.IsZero() {
			expire = c.now().Add(c.requestTimeout())
		}
		c.store.push(m, expire)
		instrument.PendingMessages(c.store.len())
		c.log.Debugf("Stored %v", m)
	default:
		c.log.Debugf("Dropping message of unknown kind %q", m.Cmd)
		instrument.Discarded(kind)
	}
}

func (c *Client) handleHandshake(m *protocol.Message) {
	c.stateLock.Lock()
	if t := m.TimeoutDuration(); t > 0 {
		c.serverTimeout = t
	}
	c.protocolVersion = m.Protocol
	c.stateLock.Unlock()

	if m.Protocol > protocol.SupportedVersion {
		c.log.Warningf("Relay speaks protocol %v, newer than supported %v", m.Protocol, protocol.SupportedVersion)
	}
	c.log.Infof("Relay %s: timeout %v, protocol %v", m.Server, m.TimeoutDuration(), m.Protocol)
}

// ensureConnected makes sure the gateway is up, connecting if needed.
func (c *Client) ensureConnected(ctx context.Context) error {
	if c.gw.IsConnected() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout())
	defer cancel()
	if err := c.gw.Connect(ctx); err != nil {
		return &ConnectivityError{Err: err}
	}
	if !c.gw.IsConnected() {
		return &ConnectivityError{Err: transport.ErrNotConnected}
	}
	return nil
}

// Shutdown ends every outstanding request with ErrShutdown and closes
// the gateway.
func (c *Client) Shutdown() {
	c.log.Info("Shutting down")
	c.Halt()
	if err := c.gw.Close(); err != nil {
		c.log.Debugf("Gateway close: %v", err)
	}
}
