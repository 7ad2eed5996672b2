// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// sigrelay asks a remote signer, through a relay, to authenticate an
// account and to sign operations and challenges with its keys.
package main

import (
	"github.com/spf13/cobra"

	"github.com/katzenpost/sigrelay/common"
)

type globalFlags struct {
	ConfigFile string
	LogLevel   string
	Profile    bool
}

func newRootCommand() *cobra.Command {
	var gf globalFlags

	cmd := &cobra.Command{
		Use:   "sigrelay",
		Short: "Remote signer client",
		Long: `sigrelay talks to a remote signer through a relay. The signer holds the
account keys and approves each request; the relay only forwards messages
it can not read. Payloads are encrypted end to end under a session key that
the signer app learns by scanning the link shown during authentication.

Credentials obtained with "auth" are kept in a local database and used by
"sign" and "challenge".`,
		Example: `
  # Authenticate an account, scanning the QR code with the signer app
  sigrelay -c sigrelay.toml auth -a alice

  # Sign and broadcast operations read from a file
  sigrelay -c sigrelay.toml sign -a alice -k posting --ops ops.json

  # Sign a challenge with the active key
  sigrelay -c sigrelay.toml challenge -a alice -k active -m "login 1234"`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&gf.ConfigFile, "config", "c", "",
		"path to the client configuration file (TOML format)")
	cmd.PersistentFlags().StringVar(&gf.LogLevel, "log-level", "",
		"override the configured log level (ERROR, WARNING, NOTICE, INFO, DEBUG)")
	cmd.PersistentFlags().BoolVar(&gf.Profile, "profile", false,
		"enable continuous profiling (requires a pyroscope build)")
	cmd.MarkPersistentFlagRequired("config")

	cmd.AddCommand(
		newAuthCommand(&gf),
		newSignCommand(&gf),
		newChallengeCommand(&gf),
		newAccountsCommand(&gf),
		newForgetCommand(&gf),
	)
	return cmd
}

func main() {
	common.ExecuteWithFang(newRootCommand())
}
