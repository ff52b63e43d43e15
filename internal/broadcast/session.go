// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

package broadcast

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrSessionClosed is returned by send on an already-closed session.
var ErrSessionClosed = errors.New("broadcast: session closed")

// Session wraps one websocket connection with its topic-subscription set
// and liveness bookkeeping. Generalizes the donor hub's flat client struct
// with the topic membership map and last-activity timestamp the sweep
// needs. Delivery is decoupled from the hub's run loop via a buffered
// outbound channel drained by WritePump, so a slow or fake connection in
// tests never blocks Hub.deliver.
type Session struct {
	id       string
	Identity string // e.g. "client:42", used by Authorizer.CanSubscribe

	conn *websocket.Conn
	out  chan []byte

	subscriptions map[string]bool

	mu       sync.Mutex
	closed   bool
	lastSeen time.Time
}

const outboundBuffer = 256

// NewSession wraps conn for id/identity. identity is the authenticated
// principal (role:id), already resolved by the HTTP upgrade handler. conn
// may be nil in tests that only exercise hub routing logic.
func NewSession(id, identity string, conn *websocket.Conn) *Session {
	return &Session{
		id:            id,
		Identity:      identity,
		conn:          conn,
		out:           make(chan []byte, outboundBuffer),
		subscriptions: make(map[string]bool),
		lastSeen:      time.Now(),
	}
}

// ID returns the session's registry key.
func (s *Session) ID() string { return s.id }

// Outbound exposes the session's outbound channel for tests that want to
// assert on delivered payloads without a real websocket connection.
func (s *Session) Outbound() <-chan []byte { return s.out }

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Session) lastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// send enqueues payload without blocking; a session whose outbound buffer
// is full is considered unresponsive and its send fails, which the hub
// counts as a broadcast error without affecting other recipients.
func (s *Session) send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.lastSeen = time.Now()
	select {
	case s.out <- payload:
		return nil
	default:
		return errors.New("broadcast: session outbound buffer full")
	}
}

// WritePump drains the outbound channel into the underlying websocket
// connection until the session closes. Run as its own goroutine per
// connected session, in the style of the donor hub's per-client writer.
func (s *Session) WritePump() {
	for payload := range s.out {
		if s.conn == nil {
			continue
		}
		if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			s.Close()
			return
		}
	}
}

// Close closes the underlying connection and outbound channel, idempotently.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.out)
	if s.conn != nil {
		_ = s.conn.Close()
	}
}
