// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package testsigner is an in process relay with a signer attached to
// it, speaking the relay protocol over websockets. It exists for tests.
package testsigner

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/sigrelay/envelope"
	"github.com/katzenpost/sigrelay/protocol"
	"github.com/katzenpost/sigrelay/session"
)

// Policy decides how the signer answers requests.
type Policy int

const (
	// Approve answers with an ack.
	Approve Policy = iota
	// Reject answers with a nack.
	Reject
	// Fail answers with an err.
	Fail
	// Ignore confirms requests and never answers them.
	Ignore
)

// ErrUnknownRequest is returned by Pair for an id with no pending request.
var ErrUnknownRequest = errors.New("testsigner: no pending authentication")

type peer struct {
	sync.Mutex
	conn *websocket.Conn
}

func (p *peer) send(m *protocol.Message) error {
	p.Lock()
	defer p.Unlock()
	return p.conn.WriteJSON(m)
}

type pendingAuth struct {
	peer *peer
	req  *protocol.Request
}

// Signer is an http.Handler accepting relay connections.
type Signer struct {
	sync.Mutex

	log      *logging.Logger
	upgrader websocket.Upgrader
	codec    envelope.Codec

	timeout  int
	protocol float64
	expire   time.Duration
	service  *session.ServiceMode
	policy   Policy

	keys    map[string]*session.Key
	tokens  map[string]string
	pending map[string]*pendingAuth
	seen    []*protocol.Request
}

// Option configures a Signer.
type Option func(*Signer)

// WithTimeout sets the timeout announced in the handshake, in seconds.
func WithTimeout(seconds int) Option {
	return func(s *Signer) { s.timeout = seconds }
}

// WithProtocol sets the protocol version announced in the handshake.
func WithProtocol(v float64) Option {
	return func(s *Signer) { s.protocol = v }
}

// WithExpire sets how long confirmed requests stay valid.
func WithExpire(d time.Duration) Option {
	return func(s *Signer) { s.expire = d }
}

// WithServiceMode lets the signer unwrap session keys sent by service clients.
func WithServiceMode(sm *session.ServiceMode) Option {
	return func(s *Signer) { s.service = sm }
}

// WithPolicy sets the initial Policy.
func WithPolicy(p Policy) Option {
	return func(s *Signer) { s.policy = p }
}

// New creates a Signer.
func New(log *logging.Logger, opts ...Option) *Signer {
	s := &Signer{
		log:      log,
		codec:    envelope.New(),
		timeout:  60,
		protocol: protocol.SupportedVersion,
		expire:   30 * time.Second,
		keys:     make(map[string]*session.Key),
		tokens:   make(map[string]string),
		pending:  make(map[string]*pendingAuth),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetPolicy changes how subsequent requests are answered.
func (s *Signer) SetPolicy(p Policy) {
	s.Lock()
	defer s.Unlock()
	s.policy = p
}

// RegisterKey tells the signer the session key of account, as if it had
// been paired before.
func (s *Signer) RegisterKey(account string, key *session.Key) {
	s.Lock()
	defer s.Unlock()
	s.keys[account] = key
}

// Requests returns every request received so far.
func (s *Signer) Requests() []*protocol.Request {
	s.Lock()
	defer s.Unlock()
	return append([]*protocol.Request{}, s.seen...)
}

// Pair completes an authentication waiting for its session key, the way
// a signer app does after scanning the auth link.
func (s *Signer) Pair(id string, key *session.Key) error {
	s.Lock()
	p, ok := s.pending[id]
	delete(s.pending, id)
	s.Unlock()
	if !ok {
		return ErrUnknownRequest
	}
	return s.resolve(p.peer, protocol.FamilyAuth, id, key, p.req)
}

// ServeHTTP upgrades the connection and serves it until it closes.
func (s *Signer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("Upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	p := &peer{conn: conn}

	s.Lock()
	hello := &protocol.Message{Cmd: protocol.Connected, Timeout: s.timeout, Protocol: s.protocol, Server: "testsigner"}
	s.Unlock()
	if err := p.send(hello); err != nil {
		return
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.log.Debugf("Connection closed: %v", err)
			return
		}
		req := new(protocol.Request)
		if err := json.Unmarshal(raw, req); err != nil {
			p.send(&protocol.Message{Cmd: protocol.Error, Error: "invalid request"})
			continue
		}
		if err := s.handle(p, req); err != nil {
			s.log.Debugf("Request failed: %v", err)
		}
	}
}

func familyOf(k protocol.Kind) (protocol.Family, bool) {
	for _, f := range []protocol.Family{protocol.FamilyAuth, protocol.FamilySign, protocol.FamilyChallenge} {
		if f.RequestKind() == k {
			return f, true
		}
	}
	return 0, false
}

func (s *Signer) handle(p *peer, req *protocol.Request) error {
	family, ok := familyOf(req.Cmd)
	if !ok {
		return p.send(&protocol.Message{Cmd: protocol.Error, Error: "unsupported command " + string(req.Cmd)})
	}

	id := uuid.NewString()
	s.Lock()
	s.seen = append(s.seen, req)
	expire := time.Now().Add(s.expire).UnixMilli()
	key := s.keys[req.Account]
	service := s.service
	s.Unlock()

	if err := p.send(&protocol.Message{Cmd: family.WaitKind(), UUID: id, Expire: expire, Account: req.Account}); err != nil {
		return err
	}

	if req.AuthKey != "" && service != nil {
		k, err := service.Unwrap(req.AuthKey)
		if err != nil {
			return p.send(&protocol.Message{Cmd: protocol.Error, UUID: id, Error: "invalid auth_key"})
		}
		key = k
	}

	switch {
	case family == protocol.FamilyAuth && key == nil:
		s.Lock()
		s.pending[id] = &pendingAuth{peer: p, req: req}
		s.Unlock()
		return nil
	case key == nil:
		return p.send(&protocol.Message{Cmd: protocol.Error, UUID: id, Error: "unknown session"})
	}
	return s.resolve(p, family, id, key, req)
}

func (s *Signer) resolve(p *peer, family protocol.Family, id string, key *session.Key, req *protocol.Request) error {
	s.Lock()
	policy := s.policy
	token := s.tokens[req.Account]
	s.Unlock()

	plaintext, err := s.codec.Open(key.Bytes(), req.Data)
	if err != nil {
		return s.fail(p, family, id, key, "undecryptable request")
	}
	if family != protocol.FamilyAuth && (token == "" || req.Token != token) {
		return s.fail(p, family, id, key, "invalid token")
	}

	switch policy {
	case Ignore:
		return nil
	case Reject:
		data, err := envelope.SealString(s.codec, key.Bytes(), id)
		if err != nil {
			return err
		}
		return p.send(&protocol.Message{Cmd: family.NackKind(), UUID: id, Data: data})
	case Fail:
		return s.fail(p, family, id, key, "request failed")
	}

	result, err := s.approve(family, req.Account, key, plaintext)
	if err != nil {
		return s.fail(p, family, id, key, err.Error())
	}
	data, err := s.codec.Seal(key.Bytes(), result)
	if err != nil {
		return err
	}
	return p.send(&protocol.Message{Cmd: family.AckKind(), UUID: id, Data: data})
}

func (s *Signer) fail(p *peer, family protocol.Family, id string, key *session.Key, reason string) error {
	e, err := envelope.SealString(s.codec, key.Bytes(), reason)
	if err != nil {
		return err
	}
	return p.send(&protocol.Message{Cmd: family.ErrKind(), UUID: id, Error: e})
}

func (s *Signer) approve(family protocol.Family, account string, key *session.Key, plaintext []byte) ([]byte, error) {
	switch family {
	case protocol.FamilyAuth:
		var r protocol.AuthRequestPayload
		if err := json.Unmarshal(plaintext, &r); err != nil {
			return nil, err
		}
		ack := &protocol.AuthAckPayload{
			Token:  uuid.NewString(),
			Expire: time.Now().Add(24 * time.Hour).UnixMilli(),
		}
		if r.Challenge != nil {
			ack.Challenge = signChallenge(account, r.Challenge.KeyType, r.Challenge.Challenge)
		}
		s.Lock()
		s.keys[account] = key
		s.tokens[account] = ack.Token
		s.Unlock()
		return json.Marshal(ack)
	case protocol.FamilySign:
		var r protocol.SignRequestPayload
		if err := json.Unmarshal(plaintext, &r); err != nil {
			return nil, err
		}
		if len(r.Ops) == 0 {
			return nil, errors.New("no operations")
		}
		h := sha256.New()
		for _, op := range r.Ops {
			h.Write(op)
		}
		return json.Marshal(map[string]interface{}{
			"id":        hex.EncodeToString(h.Sum(nil)[:20]),
			"broadcast": r.Broadcast,
		})
	default:
		var r protocol.ChallengeRequestPayload
		if err := json.Unmarshal(plaintext, &r); err != nil {
			return nil, err
		}
		return json.Marshal(signChallenge(account, r.KeyType, r.Challenge))
	}
}

// signChallenge stands in for a real signature.
func signChallenge(account string, keyType protocol.KeyType, challenge string) *protocol.ChallengeAckData {
	pub := sha256.Sum256([]byte(account + "/" + string(keyType)))
	sig := sha256.Sum256(append(pub[:], challenge...))
	return &protocol.ChallengeAckData{
		Challenge: hex.EncodeToString(sig[:]),
		PublicKey: hex.EncodeToString(pub[:]),
	}
}

// ChallengeSignature returns what the signer answers to a challenge.
func ChallengeSignature(account string, keyType protocol.KeyType, challenge string) string {
	return signChallenge(account, keyType, challenge).Challenge
}
