// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package client

import (
	"encoding/json"
	"time"

	"github.com/katzenpost/sigrelay/envelope"
	"github.com/katzenpost/sigrelay/internal/instrument"
	"github.com/katzenpost/sigrelay/protocol"
	"github.com/katzenpost/sigrelay/session"
)

type phase int

const (
	phaseSent phase = iota
	phaseConfirmed
	phaseTerminal
)

// flow drives one request from send to its terminal outcome. It is woken
// by every message stored and by its deadline, and re-evaluates the
// pending store each time.
type flow struct {
	c       *Client
	req     *Request
	family  protocol.Family
	account string
	key     *session.Key

	phase    phase
	uuid     string
	deadline time.Time
}

func (f *flow) run() {
	timer := time.NewTimer(time.Until(f.deadline))
	defer timer.Stop()

	for f.phase != phaseTerminal {
		// Taken before looking at the store so that a push racing with
		// this pass still wakes the next one.
		changed := f.c.store.changed()

		now := f.c.now()
		if !now.Before(f.deadline) {
			f.finish(nil, &ExpirationError{Family: f.family, UUID: f.uuid, Deadline: f.deadline})
			return
		}

		var progress bool
		switch f.phase {
		case phaseSent:
			progress = f.stepSent(now)
		case phaseConfirmed:
			progress = f.stepConfirmed(now)
		}
		if progress {
			continue
		}

		timer.Reset(time.Until(f.deadline))
		select {
		case <-changed:
		case <-timer.C:
		case <-f.c.HaltCh():
			f.finish(nil, ErrShutdown)
			return
		}
	}
}

func (f *flow) stepSent(now time.Time) bool {
	m := f.c.store.query(f.family.WaitKind(), "", now)
	if m == nil {
		return false
	}
	if m.UUID == "" {
		f.anomaly(m, "confirmation without correlation id")
		return true
	}

	f.uuid = m.UUID
	if expire := m.ExpireTime(); !expire.IsZero() {
		f.deadline = expire
	}
	f.phase = phaseConfirmed

	conf := &Confirmation{
		Family:  f.family,
		UUID:    f.uuid,
		Account: f.account,
		Expire:  f.deadline,
	}
	if f.family == protocol.FamilyAuth {
		conf.Link = &protocol.AuthLink{
			Account: f.account,
			UUID:    f.uuid,
			Key:     f.key.String(),
			Host:    f.c.cfg.Relay.URL,
		}
	}
	f.c.log.Debugf("%s request %s confirmed, expires %v", f.family, f.uuid, f.deadline.Format(time.RFC3339))
	f.req.confirm(conf)
	return true
}

func (f *flow) stepConfirmed(now time.Time) bool {
	store := f.c.store

	if m := store.query(f.family.AckKind(), f.uuid, now); m != nil {
		ack, err := f.decodeAck(m)
		if err != nil {
			f.anomaly(m, err.Error())
			return true
		}
		f.finish(ack, nil)
		return true
	}

	if m := store.query(f.family.NackKind(), f.uuid, now); m != nil {
		id, err := f.open(m.Data)
		if err != nil || id != f.uuid {
			f.anomaly(m, "unauthenticated rejection")
			return true
		}
		f.finish(nil, &RejectionError{Family: f.family, UUID: f.uuid, Message: id})
		return true
	}

	if m := store.query(f.family.ErrKind(), f.uuid, now); m != nil {
		text, err := f.open(m.Error)
		if err != nil {
			f.anomaly(m, err.Error())
			return true
		}
		f.finish(nil, &ProtocolError{Family: f.family, UUID: f.uuid, Message: text})
		return true
	}

	if m := store.query(protocol.Error, f.uuid, now); m != nil {
		f.finish(nil, &ProtocolError{Family: f.family, UUID: f.uuid, Message: m.Error, Relay: true})
		return true
	}
	return false
}

func (f *flow) open(env string) (string, error) {
	return envelope.OpenString(f.c.codec, f.key.Bytes(), env)
}

func (f *flow) decodeAck(m *protocol.Message) (*Ack, error) {
	plaintext, err := f.c.codec.Open(f.key.Bytes(), m.Data)
	if err != nil {
		return nil, err
	}
	ack := &Ack{
		Family: f.family,
		UUID:   f.uuid,
	}

	switch f.family {
	case protocol.FamilyAuth:
		var p protocol.AuthAckPayload
		if err := json.Unmarshal(plaintext, &p); err != nil {
			return nil, err
		}
		ack.Auth = &AuthResult{
			Token:  p.Token,
			Expire: p.Expire,
			Key:    f.key,
		}
		ack.Challenge = p.Challenge
	case protocol.FamilyChallenge:
		p := new(protocol.ChallengeAckData)
		if err := json.Unmarshal(plaintext, p); err != nil {
			return nil, err
		}
		ack.Challenge = p
	case protocol.FamilySign:
		// A bare transaction id is returned as a JSON string.
		if !json.Valid(plaintext) {
			plaintext, err = json.Marshal(string(plaintext))
			if err != nil {
				return nil, err
			}
		}
	}
	ack.Data = json.RawMessage(plaintext)
	return ack, nil
}

// anomaly discards a message that matched but could not be used, most
// likely a stale push or one meant for another session key.
func (f *flow) anomaly(m *protocol.Message, reason string) {
	f.c.log.Debugf("%s request %s: discarding %v: %s", f.family, f.uuid, m, reason)
	instrument.DecodeAnomaly(string(m.Cmd))
}

func (f *flow) finish(ack *Ack, err error) {
	f.phase = phaseTerminal
	outcome := "ack"
	switch e := err.(type) {
	case nil:
		f.c.log.Infof("%s request %s approved", f.family, f.uuid)
	case *RejectionError:
		outcome = "nack"
		f.c.log.Infof("%s request %s rejected", f.family, f.uuid)
	case *ProtocolError:
		outcome = "err"
		f.c.log.Noticef("%s request %s failed: %s", f.family, f.uuid, e.Message)
	case *ExpirationError:
		outcome = "expired"
		f.c.log.Noticef("%v", e)
	default:
		outcome = "abandoned"
	}
	instrument.Outcome(f.family.String(), outcome)
	instrument.PendingMessages(f.c.store.len())
	f.req.complete(ack, err)
}
