package custos

import (
	"context"
	"errors"

	"github.com/xraph/custos/id"
	"github.com/xraph/custos/principal"
)

// anonymousCacheKey is the PrincipalCache key for the anonymous row.
const anonymousCacheKey = "anonymous"

// AnonymousUser returns the reserved anonymous user, creating its row on
// first use. Lookups follow Config.AnonymousCacheTTL: zero queries the
// store every call, positive caches the row for that duration, negative
// caches it until invalidated.
func (e *Engine) AnonymousUser(ctx context.Context) (*principal.User, error) {
	if !e.config.anonymousEnabled() {
		return nil, ErrAnonymousDisabled
	}
	if e.cache != nil && e.config.AnonymousCacheTTL != 0 {
		if u, ok := e.cache.GetUser(ctx, anonymousCacheKey); ok {
			return u, nil
		}
	}

	e.anonMu.Lock()
	defer e.anonMu.Unlock()
	// A concurrent caller may have filled the cache while we waited.
	if e.cache != nil && e.config.AnonymousCacheTTL != 0 {
		if u, ok := e.cache.GetUser(ctx, anonymousCacheKey); ok {
			return u, nil
		}
	}

	name := e.config.AnonymousUserName
	u, err := e.store.GetUserByUsername(ctx, name)
	switch {
	case err == nil:
	case errors.Is(err, principal.ErrNotFound):
		u, err = e.createAnonymous(ctx, name)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	if e.cache != nil {
		e.cache.SetUser(ctx, anonymousCacheKey, u, e.config.AnonymousCacheTTL)
	}
	return u, nil
}

// createAnonymous inserts the anonymous row, falling back to a re-read
// when another process won the insert race.
func (e *Engine) createAnonymous(ctx context.Context, name string) (*principal.User, error) {
	u := &principal.User{ID: id.NewUserID(), Username: name, IsActive: true}
	if err := e.store.CreateUser(ctx, u); err != nil {
		if existing, lerr := e.store.GetUserByUsername(ctx, name); lerr == nil {
			return existing, nil
		}
		return nil, err
	}
	e.logger.Info("anonymous user created", "username", name, "user_id", u.ID)
	if e.plugins != nil {
		e.plugins.EmitAnonymousCreated(ctx, u)
	}
	return u, nil
}

// IsAnonymous reports whether u is the configured anonymous principal.
// Always false when anonymous support is disabled.
func (e *Engine) IsAnonymous(u *principal.User) bool {
	if u == nil || !e.config.anonymousEnabled() {
		return false
	}
	return u.Username == e.config.AnonymousUserName
}
