// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package client_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/katzenpost/sigrelay/client"
	"github.com/katzenpost/sigrelay/client/config"
	"github.com/katzenpost/sigrelay/core/log"
	"github.com/katzenpost/sigrelay/internal/testsigner"
	"github.com/katzenpost/sigrelay/protocol"
	"github.com/katzenpost/sigrelay/session"
)

func startRelay(t *testing.T, opts ...testsigner.Option) (*testsigner.Signer, *config.Config) {
	backend, err := log.New("", "DEBUG", true)
	require.NoError(t, err)
	signer := testsigner.New(backend.GetLogger("testsigner"), opts...)
	srv := httptest.NewServer(signer)
	t.Cleanup(srv.Close)

	cfg, err := config.Load([]byte(fmt.Sprintf(`
[Relay]
  URL = "ws%s"
  KeepAliveInterval = 1
  ConnectAttempts = 1
[Logging]
  Disable = true
[App]
  Name = "e2e"
`, strings.TrimPrefix(srv.URL, "http"))))
	require.NoError(t, err)
	return signer, cfg
}

func TestEndToEndPairing(t *testing.T) {
	t.Parallel()
	signer, cfg := startRelay(t, testsigner.WithTimeout(5))
	c, err := client.New(cfg, nil)
	require.NoError(t, err)
	defer c.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	challenge := &protocol.Challenge{KeyType: protocol.KeyPosting, Challenge: "login"}
	req, err := c.Authenticate(ctx, &session.Credential{Identity: "alice"}, cfg.AppDescriptor(), challenge)
	require.NoError(t, err)
	require.True(t, c.Connected())

	var conf *client.Confirmation
	select {
	case conf = <-req.Confirmed():
	case <-ctx.Done():
		t.Fatal("no confirmation")
	}
	// The handshake precedes the confirmation on the connection.
	require.Equal(t, 5*time.Second, c.ServerTimeout())
	link, err := protocol.ParseAuthLink(conf.Link.URI())
	require.NoError(t, err)
	key, err := session.ParseKey(link.Key)
	require.NoError(t, err)
	require.NoError(t, signer.Pair(link.UUID, key))

	ack, err := req.Wait(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, ack.Auth.Token)
	require.Equal(t, testsigner.ChallengeSignature("alice", protocol.KeyPosting, "login"), ack.Challenge.Challenge)
	cred := ack.Auth.Credential("alice")
	require.True(t, cred.Authenticated(time.Now()))

	ack, err = c.BlockingChallenge(ctx, cred, &protocol.Challenge{KeyType: protocol.KeyActive, Challenge: "again"})
	require.NoError(t, err)
	require.Equal(t, testsigner.ChallengeSignature("alice", protocol.KeyActive, "again"), ack.Challenge.Challenge)

	ops := []json.RawMessage{json.RawMessage(`["vote",{"voter":"alice","permlink":"x","weight":10000}]`)}
	ack, err = c.BlockingBroadcast(ctx, cred, protocol.KeyPosting, ops)
	require.NoError(t, err)
	var tx struct {
		ID        string `json:"id"`
		Broadcast bool   `json:"broadcast"`
	}
	require.NoError(t, json.Unmarshal(ack.Data, &tx))
	require.Len(t, tx.ID, 40)
	require.True(t, tx.Broadcast)

	signer.SetPolicy(testsigner.Reject)
	_, err = c.BlockingBroadcast(ctx, cred, protocol.KeyPosting, ops)
	require.ErrorIs(t, err, client.ErrRejected)

	signer.SetPolicy(testsigner.Fail)
	_, err = c.BlockingChallenge(ctx, cred, &protocol.Challenge{KeyType: protocol.KeyActive, Challenge: "x"})
	var perr *client.ProtocolError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "request failed", perr.Message)

	stale := *cred
	stale.AccessToken = "bogus"
	signer.SetPolicy(testsigner.Approve)
	_, err = c.BlockingChallenge(ctx, &stale, &protocol.Challenge{KeyType: protocol.KeyActive, Challenge: "x"})
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "invalid token", perr.Message)
}

func TestEndToEndServiceMode(t *testing.T) {
	t.Parallel()
	secret := bytes.Repeat([]byte{9}, session.ServiceSecretSize)
	relaySide, err := session.NewServiceMode(secret)
	require.NoError(t, err)
	signer, cfg := startRelay(t, testsigner.WithServiceMode(relaySide))

	sm, err := session.NewServiceMode(secret)
	require.NoError(t, err)
	c, err := client.NewServiceClient(cfg, nil, sm)
	require.NoError(t, err)
	defer c.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ack, err := c.BlockingAuthenticate(ctx, &session.Credential{Identity: "bob"}, cfg.AppDescriptor(), nil)
	require.NoError(t, err)
	require.NotEmpty(t, ack.Auth.Token)

	reqs := signer.Requests()
	require.Len(t, reqs, 1)
	require.NotEmpty(t, reqs[0].AuthKey)
}

func TestEndToEndExpiry(t *testing.T) {
	t.Parallel()
	signer, cfg := startRelay(t, testsigner.WithPolicy(testsigner.Ignore), testsigner.WithExpire(200*time.Millisecond))
	c, err := client.New(cfg, nil)
	require.NoError(t, err)
	defer c.Shutdown()

	k, err := session.NewKey()
	require.NoError(t, err)
	signer.RegisterKey("carol", k)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = c.BlockingAuthenticate(ctx, &session.Credential{Identity: "carol", Key: k}, cfg.AppDescriptor(), nil)
	var eerr *client.ExpirationError
	require.ErrorAs(t, err, &eerr)
	require.True(t, eerr.Confirmed())
}

func TestEndToEndUnreachable(t *testing.T) {
	t.Parallel()
	cfg, err := config.Load([]byte(`
[Relay]
  URL = "ws://127.0.0.1:1/"
  ConnectAttempts = 1
[Logging]
  Disable = true
[Debug]
  ConnectTimeout = 2
`))
	require.NoError(t, err)
	c, err := client.New(cfg, nil)
	require.NoError(t, err)
	defer c.Shutdown()

	_, err = c.Authenticate(context.Background(), &session.Credential{Identity: "dan"}, cfg.AppDescriptor(), nil)
	require.ErrorIs(t, err, client.ErrConnectivity)
}
