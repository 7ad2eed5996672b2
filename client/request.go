// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/katzenpost/sigrelay/protocol"
	"github.com/katzenpost/sigrelay/session"
)

// Confirmation is delivered once the relay has handed a request to the
// signer and issued its correlation id.
type Confirmation struct {
	Family  protocol.Family
	UUID    string
	Account string

	// Expire is the deadline announced by the signer.
	Expire time.Time

	// Link is set for authentication requests. It must reach the signer
	// app (usually as a QR code) for it to learn the session key.
	Link *protocol.AuthLink
}

// Ack is the result of an approved request.
type Ack struct {
	Family protocol.Family
	UUID   string

	// Data is the decrypted payload of the ack as JSON.
	Data json.RawMessage

	// Auth is set for authentication requests.
	Auth *AuthResult

	// Challenge is set for challenge requests, and for authentication
	// requests that carried a challenge.
	Challenge *protocol.ChallengeAckData
}

// AuthResult is the session established by an authentication request.
type AuthResult struct {
	Token string

	// Expire is the token expiry in milliseconds since the epoch.
	Expire int64

	// Key is the session key the request was made with.
	Key *session.Key
}

// Credential returns the session credential for identity.
func (a *AuthResult) Credential(identity string) *session.Credential {
	c := &session.Credential{
		Identity:    identity,
		AccessToken: a.Token,
		Key:         a.Key,
	}
	if a.Expire != 0 {
		c.ExpiresAt = time.UnixMilli(a.Expire)
	}
	return c
}

// Request is an outstanding request. Confirmed yields the Confirmation
// when the signer accepts the request, then the request completes with
// an Ack or an error.
type Request struct {
	Family protocol.Family

	confirmedCh chan *Confirmation
	doneCh      chan struct{}
	once        sync.Once

	ack *Ack
	err error
}

func newRequest(family protocol.Family) *Request {
	return &Request{
		Family:      family,
		confirmedCh: make(chan *Confirmation, 1),
		doneCh:      make(chan struct{}),
	}
}

// Confirmed returns a channel receiving at most one Confirmation. It is
// closed when the request completes.
func (r *Request) Confirmed() <-chan *Confirmation {
	return r.confirmedCh
}

// Done returns a channel that is closed when the request completes.
func (r *Request) Done() <-chan struct{} {
	return r.doneCh
}

// Result returns the outcome of a completed request, or ErrPending.
func (r *Request) Result() (*Ack, error) {
	select {
	case <-r.doneCh:
		return r.ack, r.err
	default:
		return nil, ErrPending
	}
}

// Wait blocks until the request completes or ctx is done. Giving up on
// a request does not cancel it at the signer.
func (r *Request) Wait(ctx context.Context) (*Ack, error) {
	select {
	case <-r.doneCh:
		return r.ack, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Request) confirm(c *Confirmation) {
	r.confirmedCh <- c
}

func (r *Request) complete(ack *Ack, err error) {
	r.once.Do(func() {
		r.ack, r.err = ack, err
		close(r.confirmedCh)
		close(r.doneCh)
	})
}
