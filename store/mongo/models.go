package mongo

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
	ID              string    `grove:"id,pk"        bson:"_id"`
	Username        string    `grove:"username"     bson:"username"`
	IsActive        bool      `grove:"is_active"    bson:"is_active"`
	IsSuperuser     bool      `grove:"is_superuser" bson:"is_superuser"`
	CreatedAt       time.Time `grove:"created_at"   bson:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at"   bson:"updated_at"`
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
	ID              string    `grove:"id,pk"      bson:"_id"`
	Name            string    `grove:"name"       bson:"name"`
	CreatedAt       time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at" bson:"updated_at"`
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
	GroupID         string `grove:"group_id,pk" bson:"group_id"`
	UserID          string `grove:"user_id,pk"  bson:"user_id"`
}

// ──────────────────────────────────────────────────
// Permission model
// ──────────────────────────────────────────────────

type permissionModel struct {
	grove.BaseModel `grove:"table:custos_permissions"`
	ID              string    `grove:"id,pk"      bson:"_id"`
	Kind            string    `grove:"kind"       bson:"kind"`
	Codename        string    `grove:"codename"   bson:"codename"`
	Label           string    `grove:"label"      bson:"label"`
	CreatedAt       time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at" bson:"updated_at"`
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
	UserID          string `grove:"user_id,pk"       bson:"user_id"`
	PermissionID    string `grove:"permission_id,pk" bson:"permission_id"`
}

type groupGlobalPermModel struct {
	grove.BaseModel `grove:"table:custos_group_global_perms"`
	GroupID         string `grove:"group_id,pk"      bson:"group_id"`
	PermissionID    string `grove:"permission_id,pk" bson:"permission_id"`
}

// ──────────────────────────────────────────────────
// User grant model
// ──────────────────────────────────────────────────

type userGrantModel struct {
	grove.BaseModel `grove:"table:custos_user_grants"`
	ID              string    `grove:"id,pk"         bson:"_id"`
	UserID          string    `grove:"user_id"       bson:"user_id"`
	PermissionID    string    `grove:"permission_id" bson:"permission_id"`
	TargetKind      string    `grove:"target_kind"   bson:"target_kind"`
	TargetKey       string    `grove:"target_key"    bson:"target_key"`
	CreatedAt       time.Time `grove:"created_at"    bson:"created_at"`
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
	ID              string    `grove:"id,pk"         bson:"_id"`
	GroupID         string    `grove:"group_id"      bson:"group_id"`
	PermissionID    string    `grove:"permission_id" bson:"permission_id"`
	TargetKind      string    `grove:"target_kind"   bson:"target_kind"`
	TargetKey       string    `grove:"target_key"    bson:"target_key"`
	CreatedAt       time.Time `grove:"created_at"    bson:"created_at"`
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
