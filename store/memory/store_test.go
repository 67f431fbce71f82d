package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/custos/grant"
	"github.com/xraph/custos/id"
	"github.com/xraph/custos/permission"
	"github.com/xraph/custos/principal"
	"github.com/xraph/custos/store"
)

// Compile-time check that *Store implements store.Store.
var _ store.Store = (*Store)(nil)

func TestUserCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()

	u := &principal.User{
		ID:       id.NewUserID(),
		Username: "joe",
		IsActive: true,
	}

	// Create
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatal(err)
	}

	// Duplicate username rejected.
	if err := s.CreateUser(ctx, &principal.User{ID: id.NewUserID(), Username: "joe"}); err == nil {
		t.Fatal("expected duplicate username error")
	}

	// Get
	got, err := s.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Username != "joe" {
		t.Fatalf("expected joe, got %s", got.Username)
	}

	// GetByUsername
	got, err = s.GetUserByUsername(ctx, "joe")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != u.ID {
		t.Fatal("username lookup mismatch")
	}

	// Update
	u.IsSuperuser = true
	if err := s.UpdateUser(ctx, u); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetUser(ctx, u.ID)
	if !got.IsSuperuser {
		t.Fatal("update failed")
	}

	// List / Count
	active := true
	list, _ := s.ListUsers(ctx, &principal.UserListFilter{IsActive: &active})
	if len(list) != 1 {
		t.Fatalf("expected 1 user, got %d", len(list))
	}
	count, _ := s.CountUsers(ctx, nil)
	if count != 1 {
		t.Fatalf("expected count 1, got %d", count)
	}

	// Delete
	if err := s.DeleteUser(ctx, u.ID); err != nil {
		t.Fatal(err)
	}
	_, err = s.GetUser(ctx, u.ID)
	if !errors.Is(err, principal.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGroupCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()

	g := &principal.Group{
		ID:   id.NewGroupID(),
		Name: "employees",
	}

	if err := s.CreateGroup(ctx, g); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateGroup(ctx, &principal.Group{ID: id.NewGroupID(), Name: "employees"}); err == nil {
		t.Fatal("expected duplicate name error")
	}

	got, err := s.GetGroupByName(ctx, "employees")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != g.ID {
		t.Fatal("name lookup mismatch")
	}

	g.Name = "staff"
	if err := s.UpdateGroup(ctx, g); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetGroup(ctx, g.ID)
	if got.Name != "staff" {
		t.Fatal("update failed")
	}

	if err := s.DeleteGroup(ctx, g.ID); err != nil {
		t.Fatal(err)
	}
	_, err = s.GetGroup(ctx, g.ID)
	if !errors.Is(err, principal.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMembership(t *testing.T) {
	ctx := context.Background()
	s := New()

	userID := id.NewUserID()
	groupID := id.NewGroupID()
	_ = s.CreateUser(ctx, &principal.User{ID: userID, Username: "joe", IsActive: true})
	_ = s.CreateGroup(ctx, &principal.Group{ID: groupID, Name: "employees"})

	// Adding twice keeps one membership.
	_ = s.AddMember(ctx, groupID, userID)
	_ = s.AddMember(ctx, groupID, userID)

	groups, _ := s.ListGroupsForUser(ctx, userID)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	members, _ := s.ListGroupMembers(ctx, groupID)
	if len(members) != 1 {
		t.Fatalf("expected 1 member, got %d", len(members))
	}
	ok, _ := s.IsMember(ctx, groupID, userID)
	if !ok {
		t.Fatal("expected membership")
	}

	_ = s.RemoveMember(ctx, groupID, userID)
	ok, _ = s.IsMember(ctx, groupID, userID)
	if ok {
		t.Fatal("expected membership removed")
	}

	// Removing again is a no-op.
	if err := s.RemoveMember(ctx, groupID, userID); err != nil {
		t.Fatal(err)
	}
}

func TestGlobalRelations(t *testing.T) {
	ctx := context.Background()
	s := New()

	userID := id.NewUserID()
	groupID := id.NewGroupID()
	permID := id.NewPermissionID()

	// Granting twice keeps one relation.
	_ = s.GrantGlobalToUser(ctx, userID, permID)
	_ = s.GrantGlobalToUser(ctx, userID, permID)
	perms, _ := s.ListGlobalForUser(ctx, userID)
	if len(perms) != 1 {
		t.Fatalf("expected 1 global perm, got %d", len(perms))
	}

	removed, err := s.RevokeGlobalFromUser(ctx, userID, permID)
	if err != nil {
		t.Fatal(err)
	}
	if !removed {
		t.Fatal("expected revoke to report removal")
	}
	// Revoking again reports nothing removed.
	removed, _ = s.RevokeGlobalFromUser(ctx, userID, permID)
	if removed {
		t.Fatal("expected second revoke to be a no-op")
	}
	perms, _ = s.ListGlobalForUser(ctx, userID)
	if len(perms) != 0 {
		t.Fatalf("expected 0 global perms, got %d", len(perms))
	}

	// Group side.
	_ = s.GrantGlobalToGroup(ctx, groupID, permID)
	_ = s.GrantGlobalToGroup(ctx, groupID, permID)
	perms, _ = s.ListGlobalForGroup(ctx, groupID)
	if len(perms) != 1 {
		t.Fatalf("expected 1 group global perm, got %d", len(perms))
	}
	removed, _ = s.RevokeGlobalFromGroup(ctx, groupID, permID)
	if !removed {
		t.Fatal("expected group revoke to report removal")
	}
	perms, _ = s.ListGlobalForGroup(ctx, groupID)
	if len(perms) != 0 {
		t.Fatalf("expected 0 group global perms, got %d", len(perms))
	}
}

func TestPermissionCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()

	p := &permission.Permission{
		ID:       id.NewPermissionID(),
		Kind:     "document",
		Codename: "view_document",
		Label:    "Can view document",
	}

	if err := s.CreatePermission(ctx, p); err != nil {
		t.Fatal(err)
	}
	if err := s.CreatePermission(ctx, &permission.Permission{ID: id.NewPermissionID(), Kind: "document", Codename: "view_document"}); err == nil {
		t.Fatal("expected duplicate code error")
	}

	got, err := s.GetPermissionByCode(ctx, "document", "view_document")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != p.ID {
		t.Fatal("code lookup mismatch")
	}

	// GetByIDs skips missing IDs.
	batch, _ := s.GetPermissionsByIDs(ctx, []id.PermissionID{p.ID, id.NewPermissionID()})
	if len(batch) != 1 {
		t.Fatalf("expected 1 permission, got %d", len(batch))
	}

	list, _ := s.ListPermissions(ctx, &permission.ListFilter{Kind: "document"})
	if len(list) != 1 {
		t.Fatalf("expected 1 permission, got %d", len(list))
	}

	_, err = s.GetPermissionByCode(ctx, "document", "delete_document")
	if !errors.Is(err, permission.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEnsurePermission(t *testing.T) {
	ctx := context.Background()
	s := New()

	first, err := s.EnsurePermission(ctx, &permission.Permission{
		ID:       id.NewPermissionID(),
		Kind:     "document",
		Codename: "view_document",
	})
	if err != nil {
		t.Fatal(err)
	}

	// Ensuring again returns the stored row, not a second one.
	second, err := s.EnsurePermission(ctx, &permission.Permission{
		ID:       id.NewPermissionID(),
		Kind:     "document",
		Codename: "view_document",
	})
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Fatal("ensure created a duplicate")
	}
	count, _ := s.CountPermissions(ctx, nil)
	if count != 1 {
		t.Fatalf("expected 1 permission, got %d", count)
	}
}

func TestUserGrantUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()

	userID := id.NewUserID()
	permID := id.NewPermissionID()

	g1 := &grant.UserGrant{
		ID:           id.NewUserGrantID(),
		UserID:       userID,
		PermissionID: permID,
		TargetKind:   "document",
		TargetKey:    "doc1",
	}
	g2 := &grant.UserGrant{
		ID:           id.NewUserGrantID(),
		UserID:       userID,
		PermissionID: permID,
		TargetKind:   "document",
		TargetKey:    "doc1",
	}

	if err := s.CreateUserGrant(ctx, g1); err != nil {
		t.Fatal(err)
	}
	// Same (user, permission, key) triplet: silently ignored.
	if err := s.CreateUserGrant(ctx, g2); err != nil {
		t.Fatal(err)
	}

	count, _ := s.CountUserGrants(ctx, &grant.ListFilter{UserID: userID})
	if count != 1 {
		t.Fatalf("expected 1 grant, got %d", count)
	}
}

func TestBulkCreateSkipsExisting(t *testing.T) {
	ctx := context.Background()
	s := New()

	userID := id.NewUserID()
	permID := id.NewPermissionID()

	_ = s.CreateUserGrant(ctx, &grant.UserGrant{
		ID: id.NewUserGrantID(), UserID: userID, PermissionID: permID,
		TargetKind: "document", TargetKey: "doc1",
	})

	err := s.CreateUserGrants(ctx, []*grant.UserGrant{
		{ID: id.NewUserGrantID(), UserID: userID, PermissionID: permID, TargetKind: "document", TargetKey: "doc1"},
		{ID: id.NewUserGrantID(), UserID: userID, PermissionID: permID, TargetKind: "document", TargetKey: "doc2"},
	})
	if err != nil {
		t.Fatal(err)
	}

	count, _ := s.CountUserGrants(ctx, &grant.ListFilter{UserID: userID})
	if count != 2 {
		t.Fatalf("expected 2 grants, got %d", count)
	}
}

func TestGrantFilters(t *testing.T) {
	ctx := context.Background()
	s := New()

	groupA := id.NewGroupID()
	groupB := id.NewGroupID()
	permView := id.NewPermissionID()
	permEdit := id.NewPermissionID()

	_ = s.CreateGroupGrant(ctx, &grant.GroupGrant{
		ID: id.NewGroupGrantID(), GroupID: groupA, PermissionID: permView,
		TargetKind: "document", TargetKey: "doc1",
	})
	_ = s.CreateGroupGrant(ctx, &grant.GroupGrant{
		ID: id.NewGroupGrantID(), GroupID: groupB, PermissionID: permEdit,
		TargetKind: "document", TargetKey: "doc2",
	})
	_ = s.CreateGroupGrant(ctx, &grant.GroupGrant{
		ID: id.NewGroupGrantID(), GroupID: groupA, PermissionID: permEdit,
		TargetKind: "invoice", TargetKey: "inv1",
	})

	list, _ := s.ListGroupGrants(ctx, &grant.ListFilter{GroupIDs: []id.GroupID{groupA, groupB}, TargetKind: "document"})
	if len(list) != 2 {
		t.Fatalf("expected 2 grants, got %d", len(list))
	}

	list, _ = s.ListGroupGrants(ctx, &grant.ListFilter{PermissionIDs: []id.PermissionID{permEdit}})
	if len(list) != 2 {
		t.Fatalf("expected 2 edit grants, got %d", len(list))
	}

	list, _ = s.ListGroupGrants(ctx, &grant.ListFilter{TargetKeys: []string{"doc1", "inv1"}})
	if len(list) != 2 {
		t.Fatalf("expected 2 keyed grants, got %d", len(list))
	}

	count, _ := s.CountGroupGrants(ctx, &grant.ListFilter{GroupID: groupA})
	if count != 2 {
		t.Fatalf("expected 2 grants for groupA, got %d", count)
	}
}

func TestDeleteGrantsRefusesEmptyFilter(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, err := s.DeleteUserGrants(ctx, &grant.ListFilter{}); !errors.Is(err, grant.ErrEmptyFilter) {
		t.Fatalf("expected ErrEmptyFilter, got %v", err)
	}
	if _, err := s.DeleteGroupGrants(ctx, nil); !errors.Is(err, grant.ErrEmptyFilter) {
		t.Fatalf("expected ErrEmptyFilter, got %v", err)
	}
}

func TestDeleteGrantsByFilter(t *testing.T) {
	ctx := context.Background()
	s := New()

	userID := id.NewUserID()
	permID := id.NewPermissionID()
	for _, key := range []string{"doc1", "doc2", "doc3"} {
		_ = s.CreateUserGrant(ctx, &grant.UserGrant{
			ID: id.NewUserGrantID(), UserID: userID, PermissionID: permID,
			TargetKind: "document", TargetKey: key,
		})
	}

	deleted, err := s.DeleteUserGrants(ctx, &grant.ListFilter{UserID: userID, TargetKeys: []string{"doc1", "doc3"}})
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted, got %d", deleted)
	}
	count, _ := s.CountUserGrants(ctx, &grant.ListFilter{UserID: userID})
	if count != 1 {
		t.Fatalf("expected 1 remaining, got %d", count)
	}

	// Deleting rows that are already gone reports zero.
	deleted, _ = s.DeleteUserGrants(ctx, &grant.ListFilter{UserID: userID, TargetKey: "doc1"})
	if deleted != 0 {
		t.Fatalf("expected 0 deleted, got %d", deleted)
	}
}

func TestDistinctKeys(t *testing.T) {
	ctx := context.Background()
	s := New()

	permID := id.NewPermissionID()
	rows := []struct {
		user string
		key  string
	}{
		{"u1", "doc3"},
		{"u1", "doc1"},
		{"u2", "doc1"}, // duplicate key across users
		{"u2", "doc2"},
	}
	users := map[string]id.UserID{}
	for _, r := range rows {
		uid, ok := users[r.user]
		if !ok {
			uid = id.NewUserID()
			users[r.user] = uid
		}
		_ = s.CreateUserGrant(ctx, &grant.UserGrant{
			ID: id.NewUserGrantID(), UserID: uid, PermissionID: permID,
			TargetKind: "document", TargetKey: r.key,
		})
	}

	keys, err := s.DistinctUserGrantKeys(ctx, &grant.ListFilter{TargetKind: "document"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"doc1", "doc2", "doc3"}
	if len(keys) != len(want) {
		t.Fatalf("expected %v, got %v", want, keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, keys)
		}
	}

	// Keyset floor + limit page the scan.
	keys, _ = s.DistinctUserGrantKeys(ctx, &grant.ListFilter{TargetKind: "document", AfterKey: "doc1", Limit: 1})
	if len(keys) != 1 || keys[0] != "doc2" {
		t.Fatalf("expected [doc2], got %v", keys)
	}
}

func TestDeleteUserCascades(t *testing.T) {
	ctx := context.Background()
	s := New()

	userID := id.NewUserID()
	groupID := id.NewGroupID()
	permID := id.NewPermissionID()

	_ = s.CreateUser(ctx, &principal.User{ID: userID, Username: "joe", IsActive: true})
	_ = s.CreateGroup(ctx, &principal.Group{ID: groupID, Name: "employees"})
	_ = s.AddMember(ctx, groupID, userID)
	_ = s.GrantGlobalToUser(ctx, userID, permID)
	_ = s.CreateUserGrant(ctx, &grant.UserGrant{
		ID: id.NewUserGrantID(), UserID: userID, PermissionID: permID,
		TargetKind: "document", TargetKey: "doc1",
	})

	if err := s.DeleteUser(ctx, userID); err != nil {
		t.Fatal(err)
	}

	ok, _ := s.IsMember(ctx, groupID, userID)
	if ok {
		t.Fatal("membership should be gone")
	}
	perms, _ := s.ListGlobalForUser(ctx, userID)
	if len(perms) != 0 {
		t.Fatal("global relations should be gone")
	}
	count, _ := s.CountUserGrants(ctx, &grant.ListFilter{UserID: userID})
	if count != 0 {
		t.Fatal("grants should be gone")
	}
}

func TestDeletePermissionCascades(t *testing.T) {
	ctx := context.Background()
	s := New()

	userID := id.NewUserID()
	groupID := id.NewGroupID()
	p := &permission.Permission{ID: id.NewPermissionID(), Kind: "document", Codename: "view_document"}
	_ = s.CreatePermission(ctx, p)
	_ = s.CreateUserGrant(ctx, &grant.UserGrant{
		ID: id.NewUserGrantID(), UserID: userID, PermissionID: p.ID,
		TargetKind: "document", TargetKey: "doc1",
	})
	_ = s.CreateGroupGrant(ctx, &grant.GroupGrant{
		ID: id.NewGroupGrantID(), GroupID: groupID, PermissionID: p.ID,
		TargetKind: "document", TargetKey: "doc1",
	})
	_ = s.GrantGlobalToUser(ctx, userID, p.ID)

	if err := s.DeletePermission(ctx, p.ID); err != nil {
		t.Fatal(err)
	}

	uc, _ := s.CountUserGrants(ctx, &grant.ListFilter{PermissionID: p.ID})
	gc, _ := s.CountGroupGrants(ctx, &grant.ListFilter{PermissionID: p.ID})
	if uc != 0 || gc != 0 {
		t.Fatal("grants should cascade with the permission")
	}
	perms, _ := s.ListGlobalForUser(ctx, userID)
	if len(perms) != 0 {
		t.Fatal("global relations should cascade with the permission")
	}
}

func TestMigratePingClose(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
}
