// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

package authz

import (
	"strings"

	"github.com/jothiesh/gpstracker/internal/logging"
)

// CasbinAuthorizer adapts an Enforcer to broadcast.Authorizer, deciding
// whether a session's identity may subscribe to a broadcast topic.
//
// Session identities carry the owner-hierarchy role as their first segment,
// "<role>:<id>" (e.g. "dealer:42", set at websocket handshake from the JWT
// claims), so the role is available without a grouping-policy lookup for the
// common case. Identities without a role prefix fall back to whatever roles
// a prior AddRoleForUser/AddGroupingPolicy call assigned them.
type CasbinAuthorizer struct {
	enforcer *Enforcer
	audit    *AuditLogger
}

// NewCasbinAuthorizer builds a CasbinAuthorizer. audit may be nil to disable
// decision logging.
func NewCasbinAuthorizer(enforcer *Enforcer, audit *AuditLogger) *CasbinAuthorizer {
	return &CasbinAuthorizer{enforcer: enforcer, audit: audit}
}

// CanSubscribe implements broadcast.Authorizer.
func (a *CasbinAuthorizer) CanSubscribe(identity, topic string) bool {
	role := roleFromIdentity(identity)

	allowed, err := a.enforcer.Enforce(role, topic, "subscribe")
	if err != nil {
		logging.Error().Err(err).Str("identity", identity).Str("topic", topic).Msg("topic subscription enforcement failed")
		allowed = false
	}

	if a.audit != nil {
		a.audit.LogDecision(&AuditEvent{
			ActorID:   identity,
			ActorRole: role,
			Resource:  topic,
			Action:    "subscribe",
			Decision:  allowed,
		})
	}

	return allowed
}

// roleFromIdentity extracts the owner-hierarchy role from a "<role>:<id>"
// session identity, falling back to the identity itself for bare role tokens
// used in tests and administrative contexts.
func roleFromIdentity(identity string) string {
	if role, _, found := strings.Cut(identity, ":"); found {
		return role
	}
	return identity
}
