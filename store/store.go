// Package store defines the aggregate persistence interface. Each
// subsystem (principal, permission, grant) defines its own store
// interface; the composite Store composes them all.
// Backends: Postgres, SQLite, Mongo, and Memory.
package store

import (
	"context"

	"github.com/xraph/custos/grant"
	"github.com/xraph/custos/permission"
	"github.com/xraph/custos/principal"
)

// Store is the aggregate persistence interface.
// Each subsystem store is a composable interface; a single backend
// (postgres, sqlite, mongo, memory) implements all of them.
type Store interface {
	principal.Store
	permission.Store
	grant.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
