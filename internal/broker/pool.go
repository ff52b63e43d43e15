// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

// Package broker implements the broker connection pool (C3): a dynamic
// set of long-lived JetStream subscriber sessions, auto-scaled to expected
// device count, reconnecting with exponential backoff on loss.
package broker

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/rs/zerolog"

	"github.com/jothiesh/gpstracker/internal/logging"
	"github.com/jothiesh/gpstracker/internal/models"
)

const devicesPerSession = 15

// Kind enumerates BrokerError kinds (spec §7).
type Kind string

const (
	ConnectionLost   Kind = "ConnectionLost"
	BrokerUnavailable Kind = "BrokerUnavailable"
	AuthFailed       Kind = "AuthFailed"
	SubscribeFailed  Kind = "SubscribeFailed"
	PublishFailed    Kind = "PublishFailed"
	PoolExhausted    Kind = "PoolExhausted"
)

// Recoverable reports whether a BrokerError kind is locally recoverable
// without surfacing to the caller (spec §7).
func (k Kind) Recoverable() bool {
	switch k {
	case ConnectionLost, BrokerUnavailable, PublishFailed:
		return true
	default:
		return false
	}
}

// Error is the typed BrokerError.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("broker: %s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Config configures the pool.
type Config struct {
	URL               string
	DevicePublishTopic string // wildcard subject, e.g. "devices.>"
	StreamName        string // stream names cannot contain wildcards; bind by name
	QueueGroup        string
	DurableName       string
	Initial           int
	Max               int
	ScaleThresholdPct float64

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	JitterPct      float64
}

// DefaultConfig returns the spec's defaults (§4.3).
func DefaultConfig() Config {
	return Config{
		Initial:           2,
		Max:               64,
		ScaleThresholdPct: 0.8,
		InitialBackoff:    time.Second,
		MaxBackoff:        60 * time.Second,
		BackoffFactor:     2,
		JitterPct:         0.2,
	}
}

// ExpectedSessions applies the capacity formula in spec §4.3:
// ceil(expected_devices / 15) + 2.
func ExpectedSessions(expectedDevices int) int {
	return int(math.Ceil(float64(expectedDevices)/devicesPerSession)) + 2
}

// session is one pooled subscriber.
type session struct {
	mu      sync.Mutex
	id      string
	state   models.BrokerSessionState
	count   int64
	attempt int
	busy    bool // true while the handler is processing a delivered message
}

// Pool holds the dynamic set of broker sessions.
type Pool struct {
	cfg  Config
	log  zerolog.Logger
	subConstructor func(ctx context.Context) (message.Subscriber, error)

	mu       sync.RWMutex
	sessions map[string]*session
	handler  func(ctx context.Context, msg *message.Message) error
}

// New constructs a Pool. subConstructor builds a fresh watermill-nats
// JetStream subscriber bound to cfg.StreamName — used once per session and
// again on every reconnect.
func New(cfg Config, log zerolog.Logger, subConstructor func(ctx context.Context) (message.Subscriber, error)) *Pool {
	return &Pool{
		cfg:            cfg,
		log:            log,
		subConstructor: subConstructor,
		sessions:       make(map[string]*session),
	}
}

// NewNATSSubscriberConstructor builds the subConstructor argument for New
// from a NATS URL, wiring a durable JetStream pull consumer in a queue
// group so pooled sessions load-balance message delivery.
func NewNATSSubscriberConstructor(cfg Config, log zerolog.Logger) func(ctx context.Context) (message.Subscriber, error) {
	return func(ctx context.Context) (message.Subscriber, error) {
		subCfg := wmnats.SubscriberConfig{
			URL:         cfg.URL,
			QueueGroupPrefix: cfg.QueueGroup,
			SubjectCalculator: wmnats.DefaultSubjectCalculator,
			JetStream: wmnats.JetStreamConfig{
				Disabled:      false,
				AutoProvision: false,
				DurablePrefix: cfg.DurableName,
				SubscribeOptions: nil,
			},
			Unmarshaler: &wmnats.NATSMarshaler{},
		}
		return wmnats.NewSubscriber(subCfg, watermillLogAdapter{log})
	}
}

// SetHandler sets the callback invoked with each delivered message; must be
// set before Start.
func (p *Pool) SetHandler(h func(ctx context.Context, msg *message.Message) error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = h
}

// Start brings the pool up to cfg.Initial sessions.
func (p *Pool) Start(ctx context.Context) error {
	p.log.Info().
		Str("broker_url", logging.SanitizeURL(p.cfg.URL)).
		Int("initial_sessions", p.cfg.Initial).
		Str("stream", p.cfg.StreamName).
		Msg("starting broker pool")

	for i := 0; i < p.cfg.Initial; i++ {
		if err := p.addSession(ctx); err != nil {
			return err
		}
	}
	return p.monitor(ctx)
}

// scaleCheckInterval is how often the pool re-evaluates utilization for
// auto-scale and exhaustion (spec §4.3).
const scaleCheckInterval = 5 * time.Second

// monitor runs until ctx is canceled, auto-scaling the pool up when
// utilization crosses cfg.ScaleThresholdPct and returning a PoolExhausted
// BrokerError if the pool becomes unable to serve (spec §4.3, §7).
func (p *Pool) monitor(ctx context.Context) error {
	ticker := time.NewTicker(scaleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.checkScale(ctx); err != nil {
				return err
			}
		}
	}
}

// checkScale inspects session states, scaling the pool up when
// active/total exceeds cfg.ScaleThresholdPct, and reports PoolExhausted
// when every session is Lost or every Active session is currently at its
// max in-flight (one message at a time per session).
func (p *Pool) checkScale(ctx context.Context) error {
	p.mu.RLock()
	total := len(p.sessions)
	var active, lost, busyActive int
	for _, s := range p.sessions {
		s.mu.Lock()
		switch s.state {
		case models.BrokerActive:
			active++
			if s.busy {
				busyActive++
			}
		case models.BrokerLost:
			lost++
		}
		s.mu.Unlock()
	}
	p.mu.RUnlock()

	if total == 0 || lost == total || (active > 0 && busyActive == active) {
		return &Error{
			Kind: PoolExhausted,
			Err:  fmt.Errorf("pool exhausted: %d/%d sessions active (%d busy), %d lost", active, total, busyActive, lost),
		}
	}

	if total < p.cfg.Max && float64(active)/float64(total) > p.cfg.ScaleThresholdPct {
		p.log.Info().
			Int("active", active).
			Int("total", total).
			Float64("threshold_pct", p.cfg.ScaleThresholdPct).
			Msg("broker pool utilization above threshold, scaling up")
		if err := p.addSession(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ForceScale grows the pool to n sessions immediately (spec §4.3's
// forceScale(n)).
func (p *Pool) ForceScale(ctx context.Context, n int) error {
	p.mu.RLock()
	current := len(p.sessions)
	p.mu.RUnlock()

	for i := current; i < n && i < p.cfg.Max; i++ {
		if err := p.addSession(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pool) addSession(ctx context.Context) error {
	id := fmt.Sprintf("session-%d", time.Now().UnixNano())
	sess := &session{id: id, state: models.BrokerConnecting}

	p.mu.Lock()
	p.sessions[id] = sess
	p.mu.Unlock()

	go p.runSession(ctx, sess)
	return nil
}

// runSession drives one session's Connecting -> Active -> {Lost, Draining}
// state machine, reconnecting with exponential backoff on loss (spec
// §4.3).
func (p *Pool) runSession(ctx context.Context, sess *session) {
	for {
		select {
		case <-ctx.Done():
			p.transition(sess, models.BrokerDraining)
			return
		default:
		}

		sub, err := p.subConstructor(ctx)
		if err != nil {
			p.transition(sess, models.BrokerLost)
			if !p.backoffWait(ctx, sess) {
				return
			}
			continue
		}

		messages, err := sub.Subscribe(ctx, p.cfg.DevicePublishTopic)
		if err != nil {
			sub.Close()
			p.transition(sess, models.BrokerLost)
			if !p.backoffWait(ctx, sess) {
				return
			}
			continue
		}

		p.transition(sess, models.BrokerActive)
		sess.attempt = 0

		for msg := range messages {
			p.mu.RLock()
			handler := p.handler
			p.mu.RUnlock()

			sess.mu.Lock()
			sess.busy = true
			sess.mu.Unlock()

			if handler != nil {
				if err := handler(ctx, msg); err != nil {
					msg.Nack()
					sess.mu.Lock()
					sess.busy = false
					sess.mu.Unlock()
					continue
				}
			}
			msg.Ack()
			sess.mu.Lock()
			sess.count++
			sess.busy = false
			sess.mu.Unlock()
		}

		sub.Close()
		select {
		case <-ctx.Done():
			p.transition(sess, models.BrokerDraining)
			return
		default:
		}
		p.transition(sess, models.BrokerLost)
		if !p.backoffWait(ctx, sess) {
			return
		}
	}
}

func (p *Pool) transition(sess *session, state models.BrokerSessionState) {
	sess.mu.Lock()
	sess.state = state
	sess.mu.Unlock()
}

// backoffWait sleeps the exponential-backoff-with-jitter interval for
// sess's current reconnect attempt, returning false if ctx was canceled
// first.
func (p *Pool) backoffWait(ctx context.Context, sess *session) bool {
	sess.mu.Lock()
	attempt := sess.attempt
	sess.attempt++
	sess.mu.Unlock()

	backoff := float64(p.cfg.InitialBackoff) * math.Pow(p.cfg.BackoffFactor, float64(attempt))
	if backoff > float64(p.cfg.MaxBackoff) {
		backoff = float64(p.cfg.MaxBackoff)
	}
	jitter := backoff * p.cfg.JitterPct * (rand.Float64()*2 - 1)
	wait := time.Duration(backoff + jitter)
	if wait < 0 {
		wait = 0
	}

	select {
	case <-ctx.Done():
		return false
	case <-time.After(wait):
		return true
	}
}

// CanServe reports whether the pool can serve n devices, per spec §4.3:
// connected-sessions * 15 >= n AND connected-sessions >= ceil(total * 0.9).
func (p *Pool) CanServe(n int) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	total := len(p.sessions)
	connected := 0
	for _, s := range p.sessions {
		s.mu.Lock()
		if s.state == models.BrokerActive {
			connected++
		}
		s.mu.Unlock()
	}

	if connected*devicesPerSession < n {
		return false
	}
	return connected >= int(math.Ceil(float64(total)*0.9))
}

// Snapshot returns the current BrokerSession state for every pooled
// session, used by the health probe and admin surface.
func (p *Pool) Snapshot() []models.BrokerSession {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]models.BrokerSession, 0, len(p.sessions))
	for _, s := range p.sessions {
		s.mu.Lock()
		out = append(out, models.BrokerSession{
			ConnectionID: s.id,
			BrokerURI:    p.cfg.URL,
			Topics:       []string{p.cfg.DevicePublishTopic},
			MessageCount: s.count,
			State:        s.state,
		})
		s.mu.Unlock()
	}
	return out
}

// Connected returns the count of sessions currently Active.
func (p *Pool) Connected() int {
	snap := p.Snapshot()
	n := 0
	for _, s := range snap {
		if s.State == models.BrokerActive {
			n++
		}
	}
	return n
}

// Expected returns the pool's target session count for its last-known scale
// (ExpectedSessions of the last ForceScale/Start call).
func (p *Pool) Expected() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions)
}

// ConnectedSummary implements health.BrokerPoolStats.
func (p *Pool) ConnectedSummary() (active int, expected int) {
	return p.Connected(), p.Expected()
}
