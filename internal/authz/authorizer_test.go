// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

package authz

import (
	"context"
	"testing"
)

func newTestAuthorizer(t *testing.T) *CasbinAuthorizer {
	t.Helper()
	enforcer, err := NewEnforcer(context.Background(), nil)
	if err != nil {
		t.Fatalf("NewEnforcer() error = %v", err)
	}
	t.Cleanup(enforcer.Close)
	return NewCasbinAuthorizer(enforcer, nil)
}

func TestCasbinAuthorizer_RoleScopedTopics(t *testing.T) {
	az := newTestAuthorizer(t)

	tests := []struct {
		name     string
		identity string
		topic    string
		want     bool
	}{
		{"superadmin sees everything", "superadmin:1", "/topic/location-updates/client/9", true},
		{"dealer sees own scope", "dealer:42", "/topic/location-updates/dealer/42", true},
		{"dealer denied admin scope", "dealer:42", "/topic/location-updates/admin/7", false},
		{"client sees own scope", "client:9", "/topic/location-updates/client/9", true},
		{"client denied unscoped fleet feed", "client:9", "/topic/location-updates", false},
		{"user sees device topic", "user:5", "/topic/device/abc-123", true},
		{"unknown role denied", "bogus:1", "/topic/alerts", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := az.CanSubscribe(tt.identity, tt.topic); got != tt.want {
				t.Errorf("CanSubscribe(%q, %q) = %v, want %v", tt.identity, tt.topic, got, tt.want)
			}
		})
	}
}

func TestRoleFromIdentity(t *testing.T) {
	if got := roleFromIdentity("dealer:42"); got != "dealer" {
		t.Errorf("roleFromIdentity() = %q, want %q", got, "dealer")
	}
	if got := roleFromIdentity("superadmin"); got != "superadmin" {
		t.Errorf("roleFromIdentity() = %q, want %q", got, "superadmin")
	}
}
