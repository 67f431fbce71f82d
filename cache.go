package custos

import (
	"context"
	"time"

	"github.com/xraph/custos/cache"
	"github.com/xraph/custos/principal"
)

// PrincipalCache caches principal lookups, currently only the anonymous
// user row. Implementations must be safe for concurrent use.
type PrincipalCache interface {
	// GetUser returns a cached user, if present and not expired.
	GetUser(ctx context.Context, key string) (*principal.User, bool)

	// SetUser stores a user under key. A positive ttl expires the entry, a
	// negative ttl keeps it until invalidated, zero stores nothing.
	SetUser(ctx context.Context, key string, u *principal.User, ttl time.Duration)

	// Invalidate drops the entry for key.
	Invalidate(ctx context.Context, key string)
}

var _ PrincipalCache = (*cache.Memory)(nil)
