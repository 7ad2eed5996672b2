// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/katzenpost/sigrelay/client"
	"github.com/katzenpost/sigrelay/protocol"
)

func newAuthCommand(gf *globalFlags) *cobra.Command {
	var (
		account   string
		challenge string
		keyType   string
		noQR      bool
	)
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authenticate an account with the signer",
		Long: `Authenticate asks the signer for an access token. Unless the account already
has a session key, a new one is made and shown as an auth link and QR code
that must be scanned with the signer app. The resulting credential is stored.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(gf, true)
			if err != nil {
				return err
			}
			defer a.Close()

			cred, err := a.credential(account)
			if err != nil {
				return err
			}
			var chal *protocol.Challenge
			if challenge != "" {
				chal = &protocol.Challenge{KeyType: protocol.KeyType(keyType), Challenge: challenge}
			}
			req, err := a.client.Authenticate(cmd.Context(), cred, a.cfg.AppDescriptor(), chal)
			if err != nil {
				return exitError(err)
			}
			ack, err := await(cmd, req, func(w io.Writer, conf *client.Confirmation) {
				showAuthLink(w, conf.Link, !noQR)
			})
			if err != nil {
				return exitError(err)
			}
			if err := a.store.Put(ack.Auth.Credential(account)); err != nil {
				return err
			}
			return printAck(cmd.OutOrStdout(), ack)
		},
	}
	cmd.Flags().StringVarP(&account, "account", "a", "", "account to authenticate")
	cmd.Flags().StringVarP(&challenge, "challenge", "m", "", "optional challenge to sign while authenticating")
	cmd.Flags().StringVarP(&keyType, "key-type", "k", string(protocol.KeyPosting), "key signing the challenge")
	cmd.Flags().BoolVar(&noQR, "no-qr", false, "print the auth link without a QR code")
	cmd.MarkFlagRequired("account")
	return cmd
}

func newSignCommand(gf *globalFlags) *cobra.Command {
	var (
		account string
		keyType string
		opsFile string
	)
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign and broadcast operations",
		Long: `Sign sends a JSON array of operations to the signer, which signs them with
the chosen key and broadcasts the transaction. Use "-" to read the
operations from standard input.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, err := readOps(cmd.InOrStdin(), opsFile)
			if err != nil {
				return err
			}
			a, err := newApp(gf, true)
			if err != nil {
				return err
			}
			defer a.Close()

			cred, err := a.credential(account)
			if err != nil {
				return err
			}
			req, err := a.client.Broadcast(cmd.Context(), cred, protocol.KeyType(keyType), ops)
			if err != nil {
				return exitError(err)
			}
			ack, err := await(cmd, req, showPending)
			if err != nil {
				return exitError(err)
			}
			return printAck(cmd.OutOrStdout(), ack)
		},
	}
	cmd.Flags().StringVarP(&account, "account", "a", "", "authenticated account")
	cmd.Flags().StringVarP(&keyType, "key-type", "k", string(protocol.KeyPosting), "key to sign with (posting, active, memo)")
	cmd.Flags().StringVar(&opsFile, "ops", "", "file holding a JSON array of operations, or - for stdin")
	cmd.MarkFlagRequired("account")
	cmd.MarkFlagRequired("ops")
	return cmd
}

func newChallengeCommand(gf *globalFlags) *cobra.Command {
	var (
		account string
		keyType string
		message string
	)
	cmd := &cobra.Command{
		Use:   "challenge",
		Short: "Sign a challenge",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(gf, true)
			if err != nil {
				return err
			}
			defer a.Close()

			cred, err := a.credential(account)
			if err != nil {
				return err
			}
			req, err := a.client.Challenge(cmd.Context(), cred, &protocol.Challenge{
				KeyType:   protocol.KeyType(keyType),
				Challenge: message,
			})
			if err != nil {
				return exitError(err)
			}
			ack, err := await(cmd, req, showPending)
			if err != nil {
				return exitError(err)
			}
			return printAck(cmd.OutOrStdout(), ack)
		},
	}
	cmd.Flags().StringVarP(&account, "account", "a", "", "authenticated account")
	cmd.Flags().StringVarP(&keyType, "key-type", "k", string(protocol.KeyPosting), "key to sign with (posting, active, memo)")
	cmd.Flags().StringVarP(&message, "message", "m", "", "challenge to sign")
	cmd.MarkFlagRequired("account")
	cmd.MarkFlagRequired("message")
	return cmd
}

func newAccountsCommand(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(gf, false)
			if err != nil {
				return err
			}
			defer a.Close()

			creds, err := a.store.List()
			if err != nil {
				return err
			}
			now := time.Now()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ACCOUNT\tEXPIRES\tSTATUS")
			for _, c := range creds {
				expires, status := "-", "unauthenticated"
				if !c.ExpiresAt.IsZero() {
					expires = c.ExpiresAt.Format(time.RFC3339)
				}
				switch {
				case c.Authenticated(now):
					status = "authenticated"
				case c.AccessToken != "" && c.Expired(now):
					status = "expired"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", c.Identity, expires, status)
			}
			return w.Flush()
		},
	}
}

func newForgetCommand(gf *globalFlags) *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "forget",
		Short: "Delete a stored credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(gf, false)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.store.Delete(account)
		},
	}
	cmd.Flags().StringVarP(&account, "account", "a", "", "account to forget")
	cmd.MarkFlagRequired("account")
	return cmd
}

func readOps(stdin io.Reader, f string) ([]json.RawMessage, error) {
	var (
		b   []byte
		err error
	)
	if f == "-" {
		b, err = io.ReadAll(stdin)
	} else {
		b, err = os.ReadFile(f)
	}
	if err != nil {
		return nil, err
	}
	var ops []json.RawMessage
	if err := json.Unmarshal(b, &ops); err != nil {
		return nil, fmt.Errorf("operations must be a JSON array: %v", err)
	}
	return ops, nil
}

// await reports the confirmation of req with onConfirm, then waits for
// its outcome.
func await(cmd *cobra.Command, req *client.Request, onConfirm func(io.Writer, *client.Confirmation)) (*client.Ack, error) {
	ctx := cmd.Context()
	select {
	case conf, ok := <-req.Confirmed():
		if ok {
			onConfirm(cmd.ErrOrStderr(), conf)
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return req.Wait(ctx)
}

// statusError carries the exit status of a failed request.
type statusError struct {
	err  error
	code int
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }
func (e *statusError) ExitCode() int { return e.code }

func exitError(err error) error {
	for code, target := range []error{
		client.ErrValidation,
		client.ErrConnectivity,
		client.ErrRejected,
		client.ErrProtocol,
		client.ErrExpired,
	} {
		if errors.Is(err, target) {
			return &statusError{err: err, code: code + 2}
		}
	}
	return err
}
