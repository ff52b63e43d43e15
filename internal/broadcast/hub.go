// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

// Package broadcast implements the broadcast fabric (C7): a websocket
// session registry with role-scoped topic routing, per-device rate
// limiting, alert generation/throttling, and a 5-minute inactive-session
// sweep. Generalizes the donor's flat single-channel hub into per-topic
// subscriber sets.
package broadcast

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jothiesh/gpstracker/internal/alerts"
	"github.com/jothiesh/gpstracker/internal/models"
)

// Authorizer gates topic subscription by role (C7 delegates to
// internal/authz's casbin enforcer).
type Authorizer interface {
	CanSubscribe(identity, topic string) bool
}

// Config configures C7's rate limiting and alert thresholds.
type Config struct {
	RateLimit      time.Duration // minimum per-device broadcast interval, default 100ms
	AlertsPerHour  int
	SessionTimeout time.Duration // inactive-session sweep threshold, default 1h
	SweepInterval  time.Duration // default 5min
}

// DefaultConfig returns the spec's defaults (§4.7).
func DefaultConfig() Config {
	return Config{
		RateLimit:      100 * time.Millisecond,
		AlertsPerHour:  10,
		SessionTimeout: time.Hour,
		SweepInterval:  5 * time.Minute,
	}
}

// publishRequest is an internal broadcast-channel message: deliver payload
// to every subscriber of topic.
type publishRequest struct {
	topic   string
	payload []byte
}

// Hub is the C7 broadcast fabric.
type Hub struct {
	cfg Config
	log zerolog.Logger

	register   chan *Session
	unregister chan *Session
	publish    chan publishRequest

	mu       sync.RWMutex
	sessions map[*Session]bool
	topics   map[string]map[*Session]bool

	deviceLimiters map[string]*rate.Limiter
	limitersMu     sync.Mutex

	alertRules    []alerts.Rule
	alertThrottle *alerts.Throttle

	authz Authorizer

	broadcastsTotal      int64
	broadcastsRoleScoped int64
	broadcastsAlert      int64
	broadcastErrors      int64
	statsMu              sync.Mutex
}

// NewHub constructs a Hub. authz may be nil to allow all subscriptions
// (used in tests); production wiring always supplies the casbin-backed
// enforcer.
func NewHub(cfg Config, authz Authorizer, log zerolog.Logger) *Hub {
	return &Hub{
		cfg:            cfg,
		log:            log,
		register:       make(chan *Session, 64),
		unregister:     make(chan *Session, 64),
		publish:        make(chan publishRequest, 1024),
		sessions:       make(map[*Session]bool),
		topics:         make(map[string]map[*Session]bool),
		deviceLimiters: make(map[string]*rate.Limiter),
		alertRules:     alerts.DefaultRules(alerts.DefaultConfig()),
		alertThrottle:  alerts.NewThrottle(cfg.AlertsPerHour),
		authz:          authz,
	}
}

// Register enqueues a new session for the run loop to admit.
func (h *Hub) Register(s *Session) { h.register <- s }

// Unregister enqueues a session for removal.
func (h *Hub) Unregister(s *Session) { h.unregister <- s }

// Run drives the hub's priority-ordered event loop: registrations/
// unregistrations before publishes, so membership changes are never starved
// by a busy broadcast stream. Also drives the periodic inactive-session
// sweep.
func (h *Hub) Run(ctx context.Context) error {
	sweep := time.NewTicker(h.cfg.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case s := <-h.register:
			h.admit(s)
		case s := <-h.unregister:
			h.remove(s)
		case <-sweep.C:
			h.sweepInactive()
		default:
			select {
			case <-ctx.Done():
				h.closeAll()
				return ctx.Err()
			case s := <-h.register:
				h.admit(s)
			case s := <-h.unregister:
				h.remove(s)
			case <-sweep.C:
				h.sweepInactive()
			case req := <-h.publish:
				h.deliver(req)
			}
		}
	}
}

func (h *Hub) admit(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s] = true
}

func (h *Hub) remove(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.sessions, s)
	for topic := range s.subscriptions {
		if subs, ok := h.topics[topic]; ok {
			delete(subs, s)
			if len(subs) == 0 {
				delete(h.topics, topic)
			}
		}
	}
	s.Close()
}

// Subscribe adds session s to topic, after an authorization check (spec
// §4.7 topic shapes; role-scoped topics are gated by internal/authz).
func (h *Hub) Subscribe(s *Session, topic string) error {
	if h.authz != nil && !h.authz.CanSubscribe(s.Identity, topic) {
		return fmt.Errorf("broadcast: %s is not authorized to subscribe to %s", s.Identity, topic)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*Session]bool)
	}
	h.topics[topic][s] = true
	s.subscriptions[topic] = true
	s.touch()
	return nil
}

// Unsubscribe removes session s from topic, lazily removing the topic if
// its subscriber set becomes empty (spec §4.7).
func (h *Hub) Unsubscribe(s *Session, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(s.subscriptions, topic)
	if subs, ok := h.topics[topic]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
}

// PublishToTopic enqueues payload for delivery to topic's current
// subscribers. Publishing is skipped for a topic with zero subscribers
// (spec §4.7).
func (h *Hub) PublishToTopic(topic string, payload []byte) {
	h.mu.RLock()
	_, has := h.topics[topic]
	h.mu.RUnlock()
	if !has {
		return
	}
	select {
	case h.publish <- publishRequest{topic: topic, payload: payload}:
	default:
		h.log.Warn().Str("topic", topic).Msg("broadcast queue full, dropping publish")
	}
}

// deliver is try-and-continue: a send failure on one session never blocks
// delivery to the others, and is surfaced only via the broadcast-error
// counter (spec §4.7 failure model).
func (h *Hub) deliver(req publishRequest) {
	h.mu.RLock()
	subs := h.topics[req.topic]
	recipients := make([]*Session, 0, len(subs))
	for s := range subs {
		recipients = append(recipients, s)
	}
	h.mu.RUnlock()

	// Sorted for deterministic delivery order, carried over from the
	// donor hub's broadcastToClients.
	sort.Slice(recipients, func(i, j int) bool { return recipients[i].id < recipients[j].id })

	for _, s := range recipients {
		if err := s.send(req.payload); err != nil {
			h.statsMu.Lock()
			h.broadcastErrors++
			h.statsMu.Unlock()
			continue
		}
	}

	h.statsMu.Lock()
	h.broadcastsTotal++
	h.statsMu.Unlock()
}

// RouteSample implements ingest.Sink and the §4.7 routing rule: publish to
// the generic topic, the per-device topic, and every owner's role-scoped
// topic, subject to the per-device rate limit.
func (h *Hub) RouteSample(ctx context.Context, sample models.LocationSample) {
	if !h.allowDevice(sample.DeviceID) {
		return // rate-limited; the sample still persisted via the separate C5 submission
	}

	payload, err := json.Marshal(sample)
	if err != nil {
		return
	}

	h.PublishToTopic("/topic/location-updates", payload)
	h.PublishToTopic("/topic/device/"+sample.DeviceID, payload)

	sample.Owners.Each(func(role string, id int64) {
		h.PublishToTopic(fmt.Sprintf("/topic/location-updates/%s/%d", role, id), payload)
		h.statsMu.Lock()
		h.broadcastsRoleScoped++
		h.statsMu.Unlock()
	})

	h.evaluateAlerts(sample)
}

// Submit implements ingest.Sink.
func (h *Hub) Submit(ctx context.Context, sample models.LocationSample) {
	h.RouteSample(ctx, sample)
}

// Raise implements persistence.AlertSink: it publishes an externally
// generated alert (e.g. the C5 batch-failed alert) onto /topic/alerts the
// same way an internally evaluated one is, subject to the same throttle.
func (h *Hub) Raise(alert models.Alert) {
	if !h.alertThrottle.Allow(alert) {
		return
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		return
	}
	h.PublishToTopic("/topic/alerts", payload)
	h.statsMu.Lock()
	h.broadcastsAlert++
	h.statsMu.Unlock()
}

func (h *Hub) allowDevice(deviceID string) bool {
	h.limitersMu.Lock()
	limiter, ok := h.deviceLimiters[deviceID]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(h.cfg.RateLimit), 1)
		h.deviceLimiters[deviceID] = limiter
	}
	h.limitersMu.Unlock()
	return limiter.Allow()
}

func (h *Hub) evaluateAlerts(sample models.LocationSample) {
	for _, a := range alerts.Evaluate(h.alertRules, sample) {
		if !h.alertThrottle.Allow(a) {
			continue
		}
		payload, err := json.Marshal(a)
		if err != nil {
			continue
		}
		h.PublishToTopic("/topic/alerts", payload)
		h.statsMu.Lock()
		h.broadcastsAlert++
		h.statsMu.Unlock()
	}
}

// PublishStats marshals a metrics snapshot to /topic/stats, the 30s
// cadence publish in spec §4.7/§4.8.
func (h *Hub) PublishStats(snapshot interface{}) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	h.PublishToTopic("/topic/stats", payload)
}

// sweepInactive closes sessions inactive for longer than cfg.SessionTimeout
// (spec §4.7).
func (h *Hub) sweepInactive() {
	cutoff := time.Now().Add(-h.cfg.SessionTimeout)

	h.mu.RLock()
	var stale []*Session
	for s := range h.sessions {
		if s.lastActivity().Before(cutoff) {
			stale = append(stale, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range stale {
		h.remove(s)
	}

	// Eagerly drop topics left with no subscribers.
	h.mu.Lock()
	for topic, subs := range h.topics {
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.sessions {
		s.Close()
	}
	h.sessions = make(map[*Session]bool)
	h.topics = make(map[string]map[*Session]bool)
}

// Counters exposes the broadcast counters named in spec §4.8.
type Counters struct {
	BroadcastsTotal      int64
	BroadcastsRoleScoped int64
	BroadcastsAlert      int64
	BroadcastErrors      int64
	SessionCount         int
}

// Snapshot returns the current counters.
func (h *Hub) Snapshot() Counters {
	h.statsMu.Lock()
	defer h.statsMu.Unlock()

	h.mu.RLock()
	sessions := len(h.sessions)
	h.mu.RUnlock()

	return Counters{
		BroadcastsTotal:      h.broadcastsTotal,
		BroadcastsRoleScoped: h.broadcastsRoleScoped,
		BroadcastsAlert:      h.broadcastsAlert,
		BroadcastErrors:      h.broadcastErrors,
		SessionCount:         sessions,
	}
}
