package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Custos store (SQLite).
var Migrations = migrate.NewGroup("custos")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_users",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS custos_users (
    id              TEXT PRIMARY KEY,
    username        TEXT NOT NULL,
    is_active       INTEGER NOT NULL DEFAULT 1,
    is_superuser    INTEGER NOT NULL DEFAULT 0,
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now')),

    UNIQUE(username)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS custos_users`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_groups",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS custos_groups (
    id              TEXT PRIMARY KEY,
    name            TEXT NOT NULL,
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now')),

    UNIQUE(name)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS custos_groups`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_group_members",
			Version: "20250101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS custos_group_members (
    group_id        TEXT NOT NULL REFERENCES custos_groups(id) ON DELETE CASCADE,
    user_id         TEXT NOT NULL REFERENCES custos_users(id) ON DELETE CASCADE,

    PRIMARY KEY (group_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_custos_members_user ON custos_group_members (user_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS custos_group_members`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_permissions",
			Version: "20250101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS custos_permissions (
    id              TEXT PRIMARY KEY,
    kind            TEXT NOT NULL,
    codename        TEXT NOT NULL,
    label           TEXT NOT NULL DEFAULT '',
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now')),

    UNIQUE(kind, codename)
);

CREATE INDEX IF NOT EXISTS idx_custos_permissions_kind ON custos_permissions (kind);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS custos_permissions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_user_global_perms",
			Version: "20250101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS custos_user_global_perms (
    user_id         TEXT NOT NULL REFERENCES custos_users(id) ON DELETE CASCADE,
    permission_id   TEXT NOT NULL REFERENCES custos_permissions(id) ON DELETE CASCADE,

    PRIMARY KEY (user_id, permission_id)
);

CREATE INDEX IF NOT EXISTS idx_custos_user_globals_perm ON custos_user_global_perms (permission_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS custos_user_global_perms`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_group_global_perms",
			Version: "20250101000006",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS custos_group_global_perms (
    group_id        TEXT NOT NULL REFERENCES custos_groups(id) ON DELETE CASCADE,
    permission_id   TEXT NOT NULL REFERENCES custos_permissions(id) ON DELETE CASCADE,

    PRIMARY KEY (group_id, permission_id)
);

CREATE INDEX IF NOT EXISTS idx_custos_group_globals_perm ON custos_group_global_perms (permission_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS custos_group_global_perms`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_user_grants",
			Version: "20250101000007",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS custos_user_grants (
    id              TEXT PRIMARY KEY,
    user_id         TEXT NOT NULL REFERENCES custos_users(id) ON DELETE CASCADE,
    permission_id   TEXT NOT NULL REFERENCES custos_permissions(id) ON DELETE CASCADE,
    target_kind     TEXT NOT NULL,
    target_key      TEXT NOT NULL,
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),

    UNIQUE(user_id, permission_id, target_key)
);

CREATE INDEX IF NOT EXISTS idx_custos_user_grants_target ON custos_user_grants (target_kind, target_key);
CREATE INDEX IF NOT EXISTS idx_custos_user_grants_user ON custos_user_grants (user_id);
CREATE INDEX IF NOT EXISTS idx_custos_user_grants_perm ON custos_user_grants (permission_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS custos_user_grants`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_group_grants",
			Version: "20250101000008",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS custos_group_grants (
    id              TEXT PRIMARY KEY,
    group_id        TEXT NOT NULL REFERENCES custos_groups(id) ON DELETE CASCADE,
    permission_id   TEXT NOT NULL REFERENCES custos_permissions(id) ON DELETE CASCADE,
    target_kind     TEXT NOT NULL,
    target_key      TEXT NOT NULL,
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),

    UNIQUE(group_id, permission_id, target_key)
);

CREATE INDEX IF NOT EXISTS idx_custos_group_grants_target ON custos_group_grants (target_kind, target_key);
CREATE INDEX IF NOT EXISTS idx_custos_group_grants_group ON custos_group_grants (group_id);
CREATE INDEX IF NOT EXISTS idx_custos_group_grants_perm ON custos_group_grants (permission_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS custos_group_grants`)
				return err
			},
		},
	)
}
