// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package transport

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/sigrelay/core/retry"
	"github.com/katzenpost/sigrelay/core/worker"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultConnectAttempts  = 5
)

// WebsocketConfig configures a Websocket gateway.
type WebsocketConfig struct {
	// URL is the ws:// or wss:// address of the relay.
	URL string

	// Header is sent with the opening handshake.
	Header http.Header

	// HandshakeTimeout bounds the opening handshake of each attempt.
	HandshakeTimeout time.Duration

	// KeepAliveInterval is the ping period. Zero disables pings.
	KeepAliveInterval time.Duration

	// ConnectAttempts is how many times Connect dials before giving up.
	ConnectAttempts int

	// DialContext, if set, is used to open the underlying connection,
	// eg: through an upstream proxy.
	DialContext func(ctx context.Context, network, addr string) (net.Conn, error)
}

type connectAttempt struct {
	done chan struct{}
	err  error
}

// Websocket is a Gateway speaking text frames over a websocket.
type Websocket struct {
	sync.Mutex
	worker.Worker

	log    *logging.Logger
	cfg    WebsocketConfig
	dialer *websocket.Dialer

	handler Handler
	conn    *websocket.Conn
	attempt *connectAttempt
	closed  bool

	writeLock sync.Mutex
}

// NewWebsocket creates a Websocket gateway. Nothing is dialed until Connect.
func NewWebsocket(cfg *WebsocketConfig, log *logging.Logger) *Websocket {
	w := &Websocket{
		log:     log,
		cfg:     *cfg,
		handler: nopHandler{},
	}
	if w.cfg.HandshakeTimeout <= 0 {
		w.cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if w.cfg.ConnectAttempts <= 0 {
		w.cfg.ConnectAttempts = defaultConnectAttempts
	}
	w.dialer = &websocket.Dialer{
		NetDialContext:   w.cfg.DialContext,
		HandshakeTimeout: w.cfg.HandshakeTimeout,
	}
	return w
}

// SetHandler installs h as the receiver of inbound events.
func (w *Websocket) SetHandler(h Handler) {
	w.Lock()
	defer w.Unlock()
	if h == nil {
		h = nopHandler{}
	}
	w.handler = h
}

func (w *Websocket) getHandler() Handler {
	w.Lock()
	defer w.Unlock()
	return w.handler
}

// IsConnected returns true while the websocket is open.
func (w *Websocket) IsConnected() bool {
	w.Lock()
	defer w.Unlock()
	return w.conn != nil
}

func (w *Websocket) current() *websocket.Conn {
	w.Lock()
	defer w.Unlock()
	return w.conn
}

// Connect dials the relay, retrying transient failures with backoff.
func (w *Websocket) Connect(ctx context.Context) error {
	w.Lock()
	switch {
	case w.closed:
		w.Unlock()
		return ErrClosed
	case w.conn != nil:
		w.Unlock()
		return nil
	case w.attempt != nil:
		a := w.attempt
		w.Unlock()
		select {
		case <-a.done:
			return a.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	a := &connectAttempt{done: make(chan struct{})}
	w.attempt = a
	w.Unlock()

	conn, err := w.dial(ctx)

	w.Lock()
	w.attempt = nil
	if err == nil && w.closed {
		conn.Close()
		err = ErrClosed
	}
	if err == nil {
		w.conn = conn
	}
	handler := w.handler
	w.Unlock()

	a.err = err
	close(a.done)
	if err != nil {
		w.log.Errorf("Failed to connect to %s: %v", w.cfg.URL, err)
		return err
	}

	w.log.Noticef("Connected to %s", w.cfg.URL)
	handler.HandleConnectionStatus(true, nil)
	w.Go(func() {
		w.readLoop(conn)
	})
	if w.cfg.KeepAliveInterval > 0 {
		w.Go(func() {
			w.pingLoop(conn)
		})
	}
	return nil
}

func (w *Websocket) dial(ctx context.Context) (*websocket.Conn, error) {
	for attempt := 0; ; attempt++ {
		conn, _, err := w.dialer.DialContext(ctx, w.cfg.URL, w.cfg.Header)
		if err == nil {
			return conn, nil
		}
		if attempt+1 >= w.cfg.ConnectAttempts || !retry.IsTransientError(err) {
			return nil, err
		}
		delay := retry.Delay(retry.DefaultBaseDelay, retry.DefaultMaxDelay, retry.DefaultJitter, attempt)
		w.log.Debugf("Connect attempt %d failed: %v, retrying in %v", attempt+1, err, delay)
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-w.HaltCh():
			t.Stop()
			return nil, ErrClosed
		}
	}
}

func (w *Websocket) readLoop(conn *websocket.Conn) {
	if w.cfg.KeepAliveInterval > 0 {
		readTimeout := 2 * w.cfg.KeepAliveInterval
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(readTimeout))
		})
	}
	for {
		mt, raw, err := conn.ReadMessage()
		if err != nil {
			w.dropConn(conn, err)
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		if w.cfg.KeepAliveInterval > 0 {
			conn.SetReadDeadline(time.Now().Add(2 * w.cfg.KeepAliveInterval))
		}
		w.getHandler().HandleMessage(raw)
	}
}

func (w *Websocket) pingLoop(conn *websocket.Conn) {
	t := time.NewTicker(w.cfg.KeepAliveInterval)
	defer t.Stop()
	for {
		select {
		case <-w.HaltCh():
			return
		case <-t.C:
		}
		if w.current() != conn {
			return
		}
		if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(defaultWriteTimeout)); err != nil {
			w.dropConn(conn, err)
			return
		}
	}
}

// dropConn forgets conn if it is still the active connection and
// reports the disconnection.
func (w *Websocket) dropConn(conn *websocket.Conn, err error) {
	w.Lock()
	if w.conn != conn {
		w.Unlock()
		return
	}
	w.conn = nil
	handler := w.handler
	w.Unlock()

	conn.Close()
	w.log.Noticef("Disconnected from %s: %v", w.cfg.URL, err)
	handler.HandleConnectionStatus(false, err)
}

// Send writes raw as a single text frame.
func (w *Websocket) Send(ctx context.Context, raw []byte) error {
	conn := w.current()
	if conn == nil {
		if w.IsHalted() {
			return ErrClosed
		}
		return ErrNotConnected
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultWriteTimeout)
	}

	w.writeLock.Lock()
	conn.SetWriteDeadline(deadline)
	err := conn.WriteMessage(websocket.TextMessage, raw)
	w.writeLock.Unlock()

	if err != nil {
		w.dropConn(conn, err)
		return err
	}
	return nil
}

// Close closes the connection and stops all background work.
func (w *Websocket) Close() error {
	w.Lock()
	if w.closed {
		w.Unlock()
		return nil
	}
	w.closed = true
	conn := w.conn
	w.conn = nil
	handler := w.handler
	w.Unlock()

	var err error
	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = conn.Close()
		handler.HandleConnectionStatus(false, ErrClosed)
	}
	w.Halt()
	return err
}
