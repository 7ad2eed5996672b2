// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package transport provides the connection to the relay.
package transport

import (
	"context"
	"errors"
)

var (
	// ErrNotConnected is returned by Send when there is no connection.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrClosed is returned once the Gateway has been closed.
	ErrClosed = errors.New("transport: closed")
)

// Handler receives everything the relay pushes. Calls are made from the
// gateway's read loop and must not block for long.
type Handler interface {
	// HandleMessage is called with each inbound message.
	HandleMessage(raw []byte)

	// HandleConnectionStatus is called when the connection goes up or
	// down. err is the cause of a disconnection, if known.
	HandleConnectionStatus(connected bool, err error)
}

// Gateway is a long lived message connection to the relay.
type Gateway interface {
	// SetHandler installs the receiver of inbound events. It must be
	// called before Connect.
	SetHandler(Handler)

	// Connect establishes the connection if it is not already up.
	// Concurrent calls share a single attempt.
	Connect(ctx context.Context) error

	// IsConnected returns true while the connection is up.
	IsConnected() bool

	// Send writes one message.
	Send(ctx context.Context, raw []byte) error

	// Close tears down the connection. The Gateway can not be reused.
	Close() error
}

type nopHandler struct{}

func (nopHandler) HandleMessage([]byte)             {}
func (nopHandler) HandleConnectionStatus(bool, error) {}
