// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"charm.land/lipgloss/v2"
	"github.com/katzenpost/qrterminal"

	"github.com/katzenpost/sigrelay/client"
	"github.com/katzenpost/sigrelay/protocol"
)

var (
	infoStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
	linkStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

func showPending(w io.Writer, conf *client.Confirmation) {
	fmt.Fprintln(w, infoStyle.Render(fmt.Sprintf("Waiting for approval of %s request %s until %s",
		conf.Family, conf.UUID, conf.Expire.Format(time.Kitchen))))
}

func showAuthLink(w io.Writer, link *protocol.AuthLink, qr bool) {
	uri := link.URI()
	fmt.Fprintln(w, infoStyle.Render("Scan with the signer app to approve:"))
	if qr {
		qrterminal.GenerateWithConfig(uri, qrterminal.Config{
			Level:      qrterminal.L,
			Writer:     w,
			HalfBlocks: true,
			QuietZone:  1,
		})
	}
	fmt.Fprintln(w, linkStyle.Render(uri))
}

type ackOutput struct {
	Family    string                     `json:"family"`
	UUID      string                     `json:"uuid"`
	Data      json.RawMessage            `json:"data,omitempty"`
	Token     string                     `json:"token,omitempty"`
	Expire    int64                      `json:"expire,omitempty"`
	Challenge *protocol.ChallengeAckData `json:"challenge,omitempty"`
}

func printAck(w io.Writer, ack *client.Ack) error {
	out := &ackOutput{
		Family:    ack.Family.String(),
		UUID:      ack.UUID,
		Data:      ack.Data,
		Challenge: ack.Challenge,
	}
	if ack.Auth != nil {
		out.Data = nil
		out.Token = ack.Auth.Token
		out.Expire = ack.Auth.Expire
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
