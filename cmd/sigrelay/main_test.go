// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/katzenpost/sigrelay/client"
	"github.com/katzenpost/sigrelay/common"
	"github.com/katzenpost/sigrelay/core/log"
	"github.com/katzenpost/sigrelay/internal/testsigner"
	"github.com/katzenpost/sigrelay/protocol"
	"github.com/katzenpost/sigrelay/session"
)

const serviceSecret = "0707070707070707070707070707070707070707070707070707070707070707"

func writeConfig(t *testing.T, relayURL string) string {
	dir := t.TempDir()
	f := filepath.Join(dir, "sigrelay.toml")
	cfg := fmt.Sprintf(`
[Relay]
  URL = %q
  ConnectAttempts = 1
[Logging]
  Disable = true
[ServiceMode]
  Enable = true
  Secret = %q
[App]
  Name = "cli-test"
[Credentials]
  Path = %q
`, relayURL, serviceSecret, filepath.Join(dir, "creds", "sigrelay.db"))
	require.NoError(t, os.WriteFile(f, []byte(cfg), 0600))
	return f
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out, errOut bytes.Buffer
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestCommands(t *testing.T) {
	backend, err := log.New("", "DEBUG", true)
	require.NoError(t, err)
	sm, err := session.NewServiceMode(bytes.Repeat([]byte{7}, session.ServiceSecretSize))
	require.NoError(t, err)
	signer := testsigner.New(backend.GetLogger("testsigner"), testsigner.WithServiceMode(sm))
	srv := httptest.NewServer(signer)
	defer srv.Close()
	cfgFile := writeConfig(t, "ws"+strings.TrimPrefix(srv.URL, "http"))

	// Signing needs an authenticated account.
	_, err = run(t, "", "-c", cfgFile, "challenge", "-a", "alice", "-m", "hello")
	require.ErrorIs(t, err, client.ErrValidation)
	require.Equal(t, 2, common.ExitCode(err))

	out, err := run(t, "", "-c", cfgFile, "auth", "-a", "alice", "--no-qr")
	require.NoError(t, err)
	var auth ackOutput
	require.NoError(t, json.Unmarshal([]byte(out), &auth))
	require.Equal(t, "authenticate", auth.Family)
	require.NotEmpty(t, auth.Token)

	out, err = run(t, "", "-c", cfgFile, "accounts")
	require.NoError(t, err)
	require.Contains(t, out, "alice")
	require.Contains(t, out, "authenticated")

	out, err = run(t, "", "-c", cfgFile, "challenge", "-a", "alice", "-k", "active", "-m", "hello")
	require.NoError(t, err)
	var chal ackOutput
	require.NoError(t, json.Unmarshal([]byte(out), &chal))
	require.Equal(t, testsigner.ChallengeSignature("alice", protocol.KeyActive, "hello"), chal.Challenge.Challenge)

	out, err = run(t, `[["vote",{"voter":"alice"}]]`, "-c", cfgFile, "sign", "-a", "alice", "--ops", "-")
	require.NoError(t, err)
	require.Contains(t, out, `"broadcast": true`)

	_, err = run(t, "", "-c", cfgFile, "forget", "-a", "alice")
	require.NoError(t, err)
	out, err = run(t, "", "-c", cfgFile, "accounts")
	require.NoError(t, err)
	require.NotContains(t, out, "alice")
}

func TestAppClosesLog(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "sigrelay.toml")
	require.NoError(t, os.WriteFile(f, []byte(fmt.Sprintf(`
[Relay]
  URL = "ws://127.0.0.1:1/"
[Logging]
  File = %q
[Credentials]
  Path = %q
`, filepath.Join(dir, "sigrelay.log"), filepath.Join(dir, "sigrelay.db"))), 0600))

	a, err := newApp(&globalFlags{ConfigFile: f}, false)
	require.NoError(t, err)
	a.Close()
	require.ErrorIs(t, a.backend.Close(), os.ErrClosed)
}

func TestReadOps(t *testing.T) {
	t.Parallel()
	ops, err := readOps(strings.NewReader(`[["transfer",{}],["vote",{}]]`), "-")
	require.NoError(t, err)
	require.Len(t, ops, 2)

	_, err = readOps(strings.NewReader(`{"not":"an array"}`), "-")
	require.Error(t, err)

	_, err = readOps(nil, filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestExitError(t *testing.T) {
	t.Parallel()
	require.Equal(t, 2, common.ExitCode(exitError(&client.ValidationError{Field: "account", Reason: "empty"})))
	require.Equal(t, 3, common.ExitCode(exitError(&client.ConnectivityError{Err: context.DeadlineExceeded})))
	require.Equal(t, 4, common.ExitCode(exitError(&client.RejectionError{Family: protocol.FamilySign, UUID: "u"})))
	require.Equal(t, 5, common.ExitCode(exitError(&client.ProtocolError{Family: protocol.FamilySign, UUID: "u"})))
	require.Equal(t, 6, common.ExitCode(exitError(&client.ExpirationError{Family: protocol.FamilySign, UUID: "u"})))
	require.Equal(t, 1, common.ExitCode(exitError(context.Canceled)))
}
