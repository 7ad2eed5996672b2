// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package client

import (
	"sync"
	"time"

	"github.com/katzenpost/sigrelay/core/queue"
	"github.com/katzenpost/sigrelay/protocol"
)

type storeKey struct {
	kind protocol.Kind
	id   string
}

type storedMessage struct {
	msg     *protocol.Message
	expire  time.Time
	removed bool
}

func (e *storedMessage) key() storeKey {
	return storeKey{kind: e.msg.Cmd, id: e.msg.UUID}
}

// pendingStore holds inbound messages until a request consumes them or
// they expire. Expired entries are evicted lazily on each query.
type pendingStore struct {
	sync.Mutex

	byKey  map[storeKey][]*storedMessage
	byKind map[protocol.Kind][]*storedMessage
	expiry *queue.PriorityQueue
	size   int

	changedCh chan struct{}
}

func newPendingStore() *pendingStore {
	return &pendingStore{
		byKey:     make(map[storeKey][]*storedMessage),
		byKind:    make(map[protocol.Kind][]*storedMessage),
		expiry:    queue.New(),
		changedCh: make(chan struct{}),
	}
}

func expiryPriority(t time.Time) uint64 {
	n := t.UnixNano()
	if n < 0 {
		return 0
	}
	return uint64(n)
}

// push stores msg until expire and wakes everything waiting on changed.
func (s *pendingStore) push(msg *protocol.Message, expire time.Time) {
	s.Lock()
	defer s.Unlock()

	e := &storedMessage{
		msg:    msg,
		expire: expire,
	}
	k := e.key()
	s.byKey[k] = append(s.byKey[k], e)
	s.byKind[k.kind] = append(s.byKind[k.kind], e)
	s.expiry.Enqueue(expiryPriority(expire), e)
	s.size++

	close(s.changedCh)
	s.changedCh = make(chan struct{})
}

// changed returns a channel that is closed by the next push.
func (s *pendingStore) changed() <-chan struct{} {
	s.Lock()
	defer s.Unlock()
	return s.changedCh
}

// query returns the earliest stored message of kind, restricted to the
// correlation id when id is not empty, and removes every stored message
// sharing the match's kind and correlation id. Messages expiring at or
// before now are evicted first and never returned.
func (s *pendingStore) query(kind protocol.Kind, id string, now time.Time) *protocol.Message {
	s.Lock()
	defer s.Unlock()

	s.evict(now)

	var hit *storedMessage
	if id != "" {
		if l := s.byKey[storeKey{kind: kind, id: id}]; len(l) > 0 {
			hit = l[0]
		}
	} else if l := s.byKind[kind]; len(l) > 0 {
		hit = l[0]
	}
	if hit == nil {
		return nil
	}

	k := hit.key()
	for _, e := range s.byKey[k] {
		e.removed = true
		s.size--
	}
	delete(s.byKey, k)
	s.byKind[kind] = compact(s.byKind[kind])
	if len(s.byKind[kind]) == 0 {
		delete(s.byKind, kind)
	}

	m := *hit.msg
	return &m
}

func (s *pendingStore) evict(now time.Time) {
	touched := make(map[storeKey]struct{})
	for _, ent := range s.expiry.PopUntil(expiryPriority(now)) {
		e := ent.Value.(*storedMessage)
		if e.removed {
			continue
		}
		e.removed = true
		s.size--
		touched[e.key()] = struct{}{}
	}
	for k := range touched {
		if l := compact(s.byKey[k]); len(l) > 0 {
			s.byKey[k] = l
		} else {
			delete(s.byKey, k)
		}
		if l := compact(s.byKind[k.kind]); len(l) > 0 {
			s.byKind[k.kind] = l
		} else {
			delete(s.byKind, k.kind)
		}
	}
}

// len returns the number of messages still held, expired or not.
func (s *pendingStore) len() int {
	s.Lock()
	defer s.Unlock()
	return s.size
}

func compact(l []*storedMessage) []*storedMessage {
	out := l[:0]
	for _, e := range l {
		if !e.removed {
			out = append(out, e)
		}
	}
	for i := len(out); i < len(l); i++ {
		l[i] = nil
	}
	return out
}
