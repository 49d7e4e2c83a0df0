// Package permission decides whether a session's granted permission set
// covers what a tool manifest declares. Deny always wins over grant, the
// same precedence idiom as the session-scoped allow/deny resolution this
// package replaces.
package permission

import "github.com/ariarun/aria/pkg/types"

// Grant is the set of permissions a session has been configured with, plus
// an optional explicit denylist that overrides any grant.
type Grant struct {
	Granted map[types.Permission]bool
	Denied  map[types.Permission]bool
}

// NewGrant builds a Grant from a slice of granted permissions.
func NewGrant(granted []types.Permission, denied []types.Permission) Grant {
	g := Grant{Granted: make(map[types.Permission]bool), Denied: make(map[types.Permission]bool)}
	for _, p := range granted {
		g.Granted[p] = true
	}
	for _, p := range denied {
		g.Denied[p] = true
	}
	return g
}

// Decision explains why a manifest was authorized or rejected.
type Decision struct {
	Allowed bool
	Reason  string
}

// Check reports whether every permission m declares is present in the
// grant and none is explicitly denied. PermissionNone is always satisfied.
func Check(grant Grant, m *types.Manifest) Decision {
	for _, p := range m.Permissions {
		if p == types.PermissionNone {
			continue
		}
		if grant.Denied[p] {
			return Decision{Allowed: false, Reason: "permission " + string(p) + " is explicitly denied"}
		}
		if !grant.Granted[p] {
			return Decision{Allowed: false, Reason: "permission " + string(p) + " was not granted to this session"}
		}
	}
	return Decision{Allowed: true, Reason: "all declared permissions granted"}
}
