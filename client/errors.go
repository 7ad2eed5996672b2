// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/katzenpost/sigrelay/protocol"
)

var (
	// ErrValidation matches every ValidationError.
	ErrValidation = errors.New("client: invalid request")

	// ErrConnectivity matches every ConnectivityError.
	ErrConnectivity = errors.New("client: relay unreachable")

	// ErrRejected matches every RejectionError.
	ErrRejected = errors.New("client: request rejected")

	// ErrProtocol matches every ProtocolError.
	ErrProtocol = errors.New("client: request failed")

	// ErrExpired matches every ExpirationError.
	ErrExpired = errors.New("client: request expired")

	// ErrShutdown is the outcome of requests still pending at Shutdown.
	ErrShutdown = errors.New("client: shutting down")

	// ErrPending is returned by Request.Result before the request completes.
	ErrPending = errors.New("client: request still pending")
)

// ValidationError reports a request that was refused before anything
// was sent.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("client: invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ConnectivityError reports that the relay connection could not be made
// ready, or the request could not be written to it.
type ConnectivityError struct {
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("client: relay unreachable: %v", e.Err)
}

func (e *ConnectivityError) Is(target error) bool {
	return target == ErrConnectivity
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// RejectionError reports an authenticated refusal by the signer.
// Message is the decrypted rejection, which proves the refusal by
// naming the correlation id.
type RejectionError struct {
	Family  protocol.Family
	UUID    string
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("client: %s request %s rejected", e.Family, e.UUID)
}

func (e *RejectionError) Is(target error) bool {
	return target == ErrRejected
}

// ProtocolError reports an error returned for a request. Message is the
// decrypted error text from the signer, or the plain text of a generic
// relay error when Relay is set.
type ProtocolError struct {
	Family  protocol.Family
	UUID    string
	Message string
	Relay   bool
}

func (e *ProtocolError) Error() string {
	src := "signer"
	if e.Relay {
		src = "relay"
	}
	return fmt.Sprintf("client: %s request %s failed at %s: %s", e.Family, e.UUID, src, e.Message)
}

func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}

// ExpirationError reports a request whose deadline passed without a
// terminal outcome. UUID is empty if the request was never confirmed.
type ExpirationError struct {
	Family   protocol.Family
	UUID     string
	Deadline time.Time
}

func (e *ExpirationError) Error() string {
	if e.UUID == "" {
		return fmt.Sprintf("client: %s request expired unconfirmed at %v", e.Family, e.Deadline.Format(time.RFC3339))
	}
	return fmt.Sprintf("client: %s request %s expired at %v", e.Family, e.UUID, e.Deadline.Format(time.RFC3339))
}

func (e *ExpirationError) Is(target error) bool {
	return target == ErrExpired
}

// Confirmed returns true if the signer acknowledged the request before
// it expired.
func (e *ExpirationError) Confirmed() bool {
	return e.UUID != ""
}
