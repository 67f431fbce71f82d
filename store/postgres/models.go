package postgres

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/custos/grant"
	"github.com/xraph/custos/id"
	"github.com/xraph/custos/permission"
	"github.com/xraph/custos/principal"
)

// ──────────────────────────────────────────────────
// User model
// ──────────────────────────────────────────────────

type userModel struct {
	grove.BaseModel `grove:"table:custos_users"`
	ID              string    `grove:"id,pk"`
	Username        string    `grove:"username,notnull"`
	IsActive        bool      `grove:"is_active,notnull"`
	IsSuperuser     bool      `grove:"is_superuser,notnull"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
	UpdatedAt       time.Time `grove:"updated_at,notnull"`
}

func userToModel(u *principal.User) *userModel {
	return &userModel{
		ID:          u.ID.String(),
		Username:    u.Username,
		IsActive:    u.IsActive,
		IsSuperuser: u.IsSuperuser,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func userFromModel(m *userModel) *principal.User {
	uid, _ := id.ParseUserID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &principal.User{
		ID:          uid,
		Username:    m.Username,
		IsActive:    m.IsActive,
		IsSuperuser: m.IsSuperuser,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Group model
// ──────────────────────────────────────────────────

type groupModel struct {
	grove.BaseModel `grove:"table:custos_groups"`
	ID              string    `grove:"id,pk"`
	Name            string    `grove:"name,notnull"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
	UpdatedAt       time.Time `grove:"updated_at,notnull"`
}

func groupToModel(g *principal.Group) *groupModel {
	return &groupModel{
		ID:        g.ID.String(),
		Name:      g.Name,
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
}

func groupFromModel(m *groupModel) *principal.Group {
	gid, _ := id.ParseGroupID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &principal.Group{
		ID:        gid,
		Name:      m.Name,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Group membership junction model
// ──────────────────────────────────────────────────

type groupMemberModel struct {
	grove.BaseModel `grove:"table:custos_group_members"`
	GroupID         string `grove:"group_id,pk"`
	UserID          string `grove:"user_id,pk"`
}

// ──────────────────────────────────────────────────
// Permission model
// ──────────────────────────────────────────────────

type permissionModel struct {
	grove.BaseModel `grove:"table:custos_permissions"`
	ID              string    `grove:"id,pk"`
	Kind            string    `grove:"kind,notnull"`
	Codename        string    `grove:"codename,notnull"`
	Label           string    `grove:"label"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
	UpdatedAt       time.Time `grove:"updated_at,notnull"`
}

func permissionToModel(p *permission.Permission) *permissionModel {
	return &permissionModel{
		ID:        p.ID.String(),
		Kind:      p.Kind,
		Codename:  p.Codename,
		Label:     p.Label,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func permissionFromModel(m *permissionModel) *permission.Permission {
	pid, _ := id.ParsePermissionID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &permission.Permission{
		ID:        pid,
		Kind:      m.Kind,
		Codename:  m.Codename,
		Label:     m.Label,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Global permission junction models
// ──────────────────────────────────────────────────

type userGlobalPermModel struct {
	grove.BaseModel `grove:"table:custos_user_global_perms"`
	UserID          string `grove:"user_id,pk"`
	PermissionID    string `grove:"permission_id,pk"`
}

type groupGlobalPermModel struct {
	grove.BaseModel `grove:"table:custos_group_global_perms"`
	GroupID         string `grove:"group_id,pk"`
	PermissionID    string `grove:"permission_id,pk"`
}

// ──────────────────────────────────────────────────
// User grant model
// ──────────────────────────────────────────────────

type userGrantModel struct {
	grove.BaseModel `grove:"table:custos_user_grants"`
	ID              string    `grove:"id,pk"`
	UserID          string    `grove:"user_id,notnull"`
	PermissionID    string    `grove:"permission_id,notnull"`
	TargetKind      string    `grove:"target_kind,notnull"`
	TargetKey       string    `grove:"target_key,notnull"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
}

func userGrantToModel(g *grant.UserGrant) *userGrantModel {
	return &userGrantModel{
		ID:           g.ID.String(),
		UserID:       g.UserID.String(),
		PermissionID: g.PermissionID.String(),
		TargetKind:   g.TargetKind,
		TargetKey:    g.TargetKey,
		CreatedAt:    g.CreatedAt,
	}
}

func userGrantFromModel(m *userGrantModel) *grant.UserGrant {
	gid, _ := id.ParseUserGrantID(m.ID)            //nolint:errcheck // stored IDs are always valid
	uid, _ := id.ParseUserID(m.UserID)             //nolint:errcheck // stored IDs are always valid
	pid, _ := id.ParsePermissionID(m.PermissionID) //nolint:errcheck // stored IDs are always valid
	return &grant.UserGrant{
		ID:           gid,
		UserID:       uid,
		PermissionID: pid,
		TargetKind:   m.TargetKind,
		TargetKey:    m.TargetKey,
		CreatedAt:    m.CreatedAt,
	}
}

// ──────────────────────────────────────────────────
// Group grant model
// ──────────────────────────────────────────────────

type groupGrantModel struct {
	grove.BaseModel `grove:"table:custos_group_grants"`
	ID              string    `grove:"id,pk"`
	GroupID         string    `grove:"group_id,notnull"`
	PermissionID    string    `grove:"permission_id,notnull"`
	TargetKind      string    `grove:"target_kind,notnull"`
	TargetKey       string    `grove:"target_key,notnull"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
}

func groupGrantToModel(g *grant.GroupGrant) *groupGrantModel {
	return &groupGrantModel{
		ID:           g.ID.String(),
		GroupID:      g.GroupID.String(),
		PermissionID: g.PermissionID.String(),
		TargetKind:   g.TargetKind,
		TargetKey:    g.TargetKey,
		CreatedAt:    g.CreatedAt,
	}
}

func groupGrantFromModel(m *groupGrantModel) *grant.GroupGrant {
	gid, _ := id.ParseGroupGrantID(m.ID)           //nolint:errcheck // stored IDs are always valid
	grp, _ := id.ParseGroupID(m.GroupID)           //nolint:errcheck // stored IDs are always valid
	pid, _ := id.ParsePermissionID(m.PermissionID) //nolint:errcheck // stored IDs are always valid
	return &grant.GroupGrant{
		ID:           gid,
		GroupID:      grp,
		PermissionID: pid,
		TargetKind:   m.TargetKind,
		TargetKey:    m.TargetKey,
		CreatedAt:    m.CreatedAt,
	}
}
