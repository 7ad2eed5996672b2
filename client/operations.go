// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/katzenpost/sigrelay/internal/instrument"
	"github.com/katzenpost/sigrelay/protocol"
	"github.com/katzenpost/sigrelay/session"
)

// Authenticate asks the signer for an access token for cred.Identity.
// A fresh session key is made unless cred already carries one. If
// challenge is not nil the signer also signs it. The signer app learns
// the session key from the Link of the Confirmation, or from the request
// itself for a service client.
//
// Validation and connection failures are returned directly. Every other
// outcome is delivered through the Request.
func (c *Client) Authenticate(ctx context.Context, cred *session.Credential, app protocol.App, challenge *protocol.Challenge) (*Request, error) {
	if err := validateCredential(cred, false); err != nil {
		return nil, err
	}
	if app.Name == "" {
		return nil, &ValidationError{Field: "app", Reason: "name is required"}
	}
	if challenge != nil {
		if err := validateChallenge(challenge.KeyType, challenge.Challenge); err != nil {
			return nil, err
		}
	}
	key, err := c.keys.DeriveKey(cred)
	if err != nil {
		return nil, err
	}
	token := ""
	if !cred.Expired(c.now()) {
		token = cred.AccessToken
	}
	payload := &protocol.AuthRequestPayload{
		App:       app,
		Challenge: challenge,
		Token:     token,
	}
	return c.start(ctx, protocol.FamilyAuth, cred.Identity, token, key, payload)
}

// Broadcast asks the signer to sign the operations ops with the keyType
// key of an authenticated cred and broadcast the resulting transaction.
func (c *Client) Broadcast(ctx context.Context, cred *session.Credential, keyType protocol.KeyType, ops []json.RawMessage) (*Request, error) {
	if err := validateCredential(cred, true); err != nil {
		return nil, err
	}
	if !keyType.Valid() {
		return nil, &ValidationError{Field: "key type", Reason: fmt.Sprintf("%q is not a key type", keyType)}
	}
	if len(ops) == 0 {
		return nil, &ValidationError{Field: "operations", Reason: "at least one operation is required"}
	}
	for i, op := range ops {
		if len(op) == 0 || !json.Valid(op) {
			return nil, &ValidationError{Field: "operations", Reason: fmt.Sprintf("operation %d is not valid JSON", i)}
		}
	}
	payload := &protocol.SignRequestPayload{
		KeyType:   keyType,
		Ops:       ops,
		Broadcast: true,
	}
	return c.start(ctx, protocol.FamilySign, cred.Identity, cred.AccessToken, cred.Key, payload)
}

// Challenge asks the signer to sign challenge with a key of an
// authenticated cred.
func (c *Client) Challenge(ctx context.Context, cred *session.Credential, challenge *protocol.Challenge) (*Request, error) {
	if err := validateCredential(cred, true); err != nil {
		return nil, err
	}
	if challenge == nil {
		return nil, &ValidationError{Field: "challenge", Reason: "is required"}
	}
	if err := validateChallenge(challenge.KeyType, challenge.Challenge); err != nil {
		return nil, err
	}
	payload := &protocol.ChallengeRequestPayload{
		KeyType:   challenge.KeyType,
		Challenge: challenge.Challenge,
	}
	return c.start(ctx, protocol.FamilyChallenge, cred.Identity, cred.AccessToken, cred.Key, payload)
}

// BlockingAuthenticate is Authenticate followed by Request.Wait.
func (c *Client) BlockingAuthenticate(ctx context.Context, cred *session.Credential, app protocol.App, challenge *protocol.Challenge) (*Ack, error) {
	req, err := c.Authenticate(ctx, cred, app, challenge)
	if err != nil {
		return nil, err
	}
	return req.Wait(ctx)
}

// BlockingBroadcast is Broadcast followed by Request.Wait.
func (c *Client) BlockingBroadcast(ctx context.Context, cred *session.Credential, keyType protocol.KeyType, ops []json.RawMessage) (*Ack, error) {
	req, err := c.Broadcast(ctx, cred, keyType, ops)
	if err != nil {
		return nil, err
	}
	return req.Wait(ctx)
}

// BlockingChallenge is Challenge followed by Request.Wait.
func (c *Client) BlockingChallenge(ctx context.Context, cred *session.Credential, challenge *protocol.Challenge) (*Ack, error) {
	req, err := c.Challenge(ctx, cred, challenge)
	if err != nil {
		return nil, err
	}
	return req.Wait(ctx)
}

func validateCredential(cred *session.Credential, authenticated bool) error {
	if err := cred.Validate(); err != nil {
		return &ValidationError{Field: "credential", Reason: "identity is required"}
	}
	if !authenticated {
		return nil
	}
	if cred.AccessToken == "" {
		return &ValidationError{Field: "credential", Reason: "access token is required"}
	}
	if cred.Key == nil {
		return &ValidationError{Field: "credential", Reason: "session key is required"}
	}
	return nil
}

func validateChallenge(keyType protocol.KeyType, challenge string) error {
	if !keyType.Valid() {
		return &ValidationError{Field: "challenge", Reason: fmt.Sprintf("%q is not a key type", keyType)}
	}
	if challenge == "" {
		return &ValidationError{Field: "challenge", Reason: "challenge text is required"}
	}
	return nil
}

// start sends a request and hands it to a new flow.
func (c *Client) start(ctx context.Context, family protocol.Family, account, token string, key *session.Key, payload interface{}) (*Request, error) {
	if c.IsHalted() {
		return nil, ErrShutdown
	}
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, &ValidationError{Field: "payload", Reason: err.Error()}
	}
	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}

	data, err := c.codec.Seal(key.Bytes(), plaintext)
	if err != nil {
		return nil, err
	}
	wire := &protocol.Request{
		Cmd:     family.RequestKind(),
		Account: account,
		Token:   token,
		Data:    data,
	}
	if c.service != nil {
		if wire.AuthKey, err = c.service.Wrap(key); err != nil {
			return nil, err
		}
	}
	raw, err := json.Marshal(wire)
	if err != nil {
		return nil, err
	}

	f := &flow{
		c:        c,
		req:      newRequest(family),
		family:   family,
		account:  account,
		key:      key,
		deadline: c.now().Add(c.requestTimeout()),
	}
	if err := c.gw.Send(ctx, raw); err != nil {
		return nil, &ConnectivityError{Err: err}
	}
	instrument.Request(family.String())
	c.log.Debugf("Sent %s request for %s", family, account)

	if !c.Go(f.run) {
		return nil, ErrShutdown
	}
	return f.req, nil
}
