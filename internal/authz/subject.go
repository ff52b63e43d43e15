// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

package authz

import "context"

// Subject identifies the authenticated caller an authorization decision is
// made for. It is populated by whatever authenticates the request (JWT
// middleware on the admin HTTP surface, the websocket handshake on the
// broadcast fabric) and carried on the request context.
type Subject struct {
	// ID is the stable identifier for the caller, typically "<role>:<id>"
	// for owner-scoped callers (e.g. "dealer:42") matching models.OwnerRefs.
	ID string

	// Username is a display name for audit logging.
	Username string

	// Roles are the owner-hierarchy roles the caller carries: some subset
	// of dealer, admin, client, user, superadmin.
	Roles []string

	// Groups are additional casbin grouping-policy memberships beyond Roles.
	Groups []string
}

// HasRole reports whether the subject carries the given role.
func (s *Subject) HasRole(role string) bool {
	if s == nil {
		return false
	}
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type subjectContextKey struct{}

// WithSubject attaches a Subject to the context.
func WithSubject(ctx context.Context, subject *Subject) context.Context {
	return context.WithValue(ctx, subjectContextKey{}, subject)
}

// GetSubject retrieves the Subject attached to the context, or nil.
func GetSubject(ctx context.Context) *Subject {
	subject, _ := ctx.Value(subjectContextKey{}).(*Subject)
	return subject
}
