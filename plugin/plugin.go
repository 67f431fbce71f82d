// Package plugin defines the plugin system for Custos.
// Plugins are notified of lifecycle events (grant assigned, grant
// removed, anonymous user created, etc.) and can react with audit
// trails, cache invalidation, metrics, and so on.
//
// Each lifecycle hook is a separate interface so plugins opt in only
// to the events they care about. Bulk assign and remove paths do not
// emit per-grant events; hosts that need every row notified use the
// engine's notifying variants instead.
package plugin

import (
	"context"

	"github.com/xraph/custos/grant"
	"github.com/xraph/custos/principal"
)

// Plugin is the base interface all plugins must implement.
type Plugin interface {
	// Name returns a unique human-readable name for the plugin.
	Name() string
}

// ──────────────────────────────────────────────────
// Grant lifecycle hooks
// ──────────────────────────────────────────────────

// UserGrantAssigned is called after a permission is assigned to a user
// on an object.
type UserGrantAssigned interface {
	OnUserGrantAssigned(ctx context.Context, g *grant.UserGrant) error
}

// GroupGrantAssigned is called after a permission is assigned to a
// group on an object.
type GroupGrantAssigned interface {
	OnGroupGrantAssigned(ctx context.Context, g *grant.GroupGrant) error
}

// UserGrantRemoved is called after a permission is removed from a user
// on an object. The grant carries the removed triplet; its ID is zero
// because removal is a filtered delete.
type UserGrantRemoved interface {
	OnUserGrantRemoved(ctx context.Context, g *grant.UserGrant) error
}

// GroupGrantRemoved is called after a permission is removed from a
// group on an object. The grant carries the removed triplet; its ID is
// zero because removal is a filtered delete.
type GroupGrantRemoved interface {
	OnGroupGrantRemoved(ctx context.Context, g *grant.GroupGrant) error
}

// ──────────────────────────────────────────────────
// Principal lifecycle hooks
// ──────────────────────────────────────────────────

// AnonymousCreated is called after the anonymous user row is lazily
// created on first resolution.
type AnonymousCreated interface {
	OnAnonymousCreated(ctx context.Context, u *principal.User) error
}

// ──────────────────────────────────────────────────
// Shutdown hook
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
