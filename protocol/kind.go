// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package protocol defines the JSON messages exchanged with the relay and
// the payloads carried inside encrypted envelopes.
package protocol

// Kind is the value of the cmd field of a wire message.
type Kind string

// Outbound request kinds.
const (
	AuthRequest      Kind = "auth_req"
	SignRequest      Kind = "sign_req"
	ChallengeRequest Kind = "challenge_req"
)

// Inbound message kinds.
const (
	Connected Kind = "connected"

	AuthWait Kind = "auth_wait"
	AuthAck  Kind = "auth_ack"
	AuthNack Kind = "auth_nack"
	AuthErr  Kind = "auth_err"

	SignWait Kind = "sign_wait"
	SignAck  Kind = "sign_ack"
	SignNack Kind = "sign_nack"
	SignErr  Kind = "sign_err"

	ChallengeWait Kind = "challenge_wait"
	ChallengeAck  Kind = "challenge_ack"
	ChallengeNack Kind = "challenge_nack"
	ChallengeErr  Kind = "challenge_err"

	Error Kind = "error"
)

var correlatable = map[Kind]bool{
	AuthWait: true, AuthAck: true, AuthNack: true, AuthErr: true,
	SignWait: true, SignAck: true, SignNack: true, SignErr: true,
	ChallengeWait: true, ChallengeAck: true, ChallengeNack: true, ChallengeErr: true,
	Error: true,
}

// Known returns true for every inbound kind the client understands.
func (k Kind) Known() bool {
	return k == Connected || correlatable[k]
}

// Correlatable returns true for the kinds routed to pending requests.
func (k Kind) Correlatable() bool {
	return correlatable[k]
}

// Family is one of the request/response exchanges.
type Family int

const (
	FamilyAuth Family = iota
	FamilySign
	FamilyChallenge
)

var familyKinds = [...]struct {
	name                    string
	req, wait, ack, nack, e Kind
}{
	FamilyAuth:      {"authenticate", AuthRequest, AuthWait, AuthAck, AuthNack, AuthErr},
	FamilySign:      {"sign", SignRequest, SignWait, SignAck, SignNack, SignErr},
	FamilyChallenge: {"challenge", ChallengeRequest, ChallengeWait, ChallengeAck, ChallengeNack, ChallengeErr},
}

func (f Family) String() string {
	if int(f) < 0 || int(f) >= len(familyKinds) {
		return "unknown"
	}
	return familyKinds[f].name
}

func (f Family) RequestKind() Kind { return familyKinds[f].req }
func (f Family) WaitKind() Kind    { return familyKinds[f].wait }
func (f Family) AckKind() Kind     { return familyKinds[f].ack }
func (f Family) NackKind() Kind    { return familyKinds[f].nack }
func (f Family) ErrKind() Kind     { return familyKinds[f].e }
