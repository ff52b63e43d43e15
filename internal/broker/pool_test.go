// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/jothiesh/gpstracker/internal/models"
)

func TestExpectedSessions(t *testing.T) {
	cases := []struct {
		devices int
		want    int
	}{
		{0, 2},
		{1, 3},
		{15, 3},
		{16, 4},
		{5000, 336},
	}
	for _, c := range cases {
		if got := ExpectedSessions(c.devices); got != c.want {
			t.Errorf("ExpectedSessions(%d) = %d, want %d", c.devices, got, c.want)
		}
	}
}

func TestKind_Recoverable(t *testing.T) {
	recoverable := []Kind{ConnectionLost, BrokerUnavailable, PublishFailed}
	for _, k := range recoverable {
		if !k.Recoverable() {
			t.Errorf("expected %s to be recoverable", k)
		}
	}
	unrecoverable := []Kind{AuthFailed, SubscribeFailed, PoolExhausted}
	for _, k := range unrecoverable {
		if k.Recoverable() {
			t.Errorf("expected %s to be unrecoverable", k)
		}
	}
}

func TestPool_CanServe_EmptyPoolCannotServeAnyDevices(t *testing.T) {
	p := New(DefaultConfig(), noopLogger(), nil)
	if p.CanServe(1) {
		t.Fatal("expected an empty pool to be unable to serve any device")
	}
}

func TestPool_BackoffWaitRespectsCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialBackoff = 10 * time.Millisecond
	cfg.MaxBackoff = 20 * time.Millisecond
	cfg.BackoffFactor = 2
	cfg.JitterPct = 0

	p := New(cfg, noopLogger(), nil)
	sess := &session{id: "s1"}

	start := time.Now()
	// A high attempt count should still be clamped to MaxBackoff.
	sess.attempt = 10
	ctx := testContext()
	ok := p.backoffWait(ctx, sess)
	elapsed := time.Since(start)

	if !ok {
		t.Fatal("expected backoffWait to complete, not be canceled")
	}
	if elapsed > 100*time.Millisecond {
		t.Fatalf("expected backoff to be capped near MaxBackoff, took %v", elapsed)
	}
}

func TestPool_CheckScale_EmptyPoolIsExhausted(t *testing.T) {
	p := New(DefaultConfig(), noopLogger(), nil)

	err := p.checkScale(testContext())
	var brokerErr *Error
	if !errors.As(err, &brokerErr) || brokerErr.Kind != PoolExhausted {
		t.Fatalf("expected PoolExhausted, got %v", err)
	}
}

func TestPool_CheckScale_AllLostIsExhausted(t *testing.T) {
	p := New(DefaultConfig(), noopLogger(), nil)
	p.sessions["s1"] = &session{id: "s1", state: models.BrokerLost}
	p.sessions["s2"] = &session{id: "s2", state: models.BrokerLost}

	err := p.checkScale(testContext())
	var brokerErr *Error
	if !errors.As(err, &brokerErr) || brokerErr.Kind != PoolExhausted {
		t.Fatalf("expected PoolExhausted, got %v", err)
	}
}

func TestPool_CheckScale_AllActiveBusyIsExhausted(t *testing.T) {
	p := New(DefaultConfig(), noopLogger(), nil)
	p.sessions["s1"] = &session{id: "s1", state: models.BrokerActive, busy: true}
	p.sessions["s2"] = &session{id: "s2", state: models.BrokerActive, busy: true}

	err := p.checkScale(testContext())
	var brokerErr *Error
	if !errors.As(err, &brokerErr) || brokerErr.Kind != PoolExhausted {
		t.Fatalf("expected PoolExhausted, got %v", err)
	}
}

func TestPool_CheckScale_IdleCapacityIsNotExhausted(t *testing.T) {
	p := New(DefaultConfig(), noopLogger(), nil)
	p.sessions["s1"] = &session{id: "s1", state: models.BrokerActive, busy: true}
	p.sessions["s2"] = &session{id: "s2", state: models.BrokerActive, busy: false}

	if err := p.checkScale(testContext()); err != nil {
		t.Fatalf("expected no error with idle capacity remaining, got %v", err)
	}
}

func TestPool_CheckScale_ScalesUpAboveThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Max = 5
	cfg.ScaleThresholdPct = 0.5

	constructed := 0
	p := New(cfg, noopLogger(), func(ctx context.Context) (message.Subscriber, error) {
		constructed++
		return nil, errors.New("no broker in test")
	})
	p.sessions["s1"] = &session{id: "s1", state: models.BrokerActive}
	p.sessions["s2"] = &session{id: "s2", state: models.BrokerActive, busy: true}

	if err := p.checkScale(testContext()); err != nil {
		t.Fatalf("expected scale-up, not an error, got %v", err)
	}
	if len(p.sessions) != 3 {
		t.Fatalf("expected pool to grow to 3 sessions, got %d", len(p.sessions))
	}
}

func TestPool_CheckScale_DoesNotScalePastMax(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Max = 2
	cfg.ScaleThresholdPct = 0.5

	p := New(cfg, noopLogger(), nil)
	p.sessions["s1"] = &session{id: "s1", state: models.BrokerActive}
	p.sessions["s2"] = &session{id: "s2", state: models.BrokerActive}

	if err := p.checkScale(testContext()); err != nil {
		t.Fatalf("expected no error at Max, got %v", err)
	}
	if len(p.sessions) != 2 {
		t.Fatalf("expected pool to stay at Max (2 sessions), got %d", len(p.sessions))
	}
}
