package custos

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/xraph/custos/id"
	"github.com/xraph/custos/principal"
)

func TestObjectsForUserCover(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	registerDocuments(t, eng, nil)

	joe := createUser(t, s, "joe")
	staff := createGroup(t, s, "staff")
	_ = s.AddMember(ctx, staff.ID, joe.ID)

	doc1 := document{key: "doc1"} // view + change, own rows
	doc2 := document{key: "doc2"} // view only
	doc3 := document{key: "doc3"} // change via group
	_ = eng.Assign(ctx, "view_document", UserSubject(joe), doc1)
	_ = eng.Assign(ctx, "change_document", UserSubject(joe), doc1)
	_ = eng.Assign(ctx, "view_document", UserSubject(joe), doc2)
	_ = eng.Assign(ctx, "change_document", GroupSubject(staff), doc3)

	both := []string{"view_document", "change_document"}
	keys, err := eng.ObjectsForUser(ctx, joe, both, "document")
	if err != nil {
		t.Fatal(err)
	}
	if !equalStrings(keys, []string{"doc1"}) {
		t.Fatalf("all-codes cover should yield [doc1], got %v", keys)
	}

	keys, err = eng.ObjectsForUser(ctx, joe, both, "document", WithAnyPerm())
	if err != nil {
		t.Fatal(err)
	}
	if !equalStrings(keys, []string{"doc1", "doc2", "doc3"}) {
		t.Fatalf("any-code cover should yield all three, got %v", keys)
	}

	keys, err = eng.ObjectsForUser(ctx, joe, []string{"view_document"}, "document")
	if err != nil {
		t.Fatal(err)
	}
	if !equalStrings(keys, []string{"doc1", "doc2"}) {
		t.Fatalf("expected [doc1 doc2], got %v", keys)
	}
}

func TestObjectsForUserCoverSpansGroups(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	registerDocuments(t, eng, nil)

	joe := createUser(t, s, "joe")
	staff := createGroup(t, s, "staff")
	_ = s.AddMember(ctx, staff.ID, joe.ID)

	// One codename from an own row, the other inherited.
	doc := document{key: "doc1"}
	_ = eng.Assign(ctx, "view_document", UserSubject(joe), doc)
	_ = eng.Assign(ctx, "change_document", GroupSubject(staff), doc)

	both := []string{"view_document", "change_document"}
	keys, err := eng.ObjectsForUser(ctx, joe, both, "document")
	if err != nil {
		t.Fatal(err)
	}
	if !equalStrings(keys, []string{"doc1"}) {
		t.Fatalf("cover may span own and group rows, got %v", keys)
	}

	keys, err = eng.ObjectsForUser(ctx, joe, both, "document", WithoutGroups())
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 0 {
		t.Fatalf("own rows alone hold only view, got %v", keys)
	}
	keys, _ = eng.ObjectsForUser(ctx, joe, []string{"view_document"}, "document", WithoutGroups())
	if !equalStrings(keys, []string{"doc1"}) {
		t.Fatalf("expected [doc1], got %v", keys)
	}
}

func TestObjectsForUserInactive(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	registerDocuments(t, eng, nil)

	joe := createUser(t, s, "joe")
	_ = eng.Assign(ctx, "view_document", UserSubject(joe), document{key: "doc1"})
	joe.IsActive = false

	keys, err := eng.ObjectsForUser(ctx, joe, []string{"view_document"}, "document")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 0 {
		t.Fatalf("inactive users see nothing, got %v", keys)
	}
}

func TestObjectsForUserSuperuser(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	registerDocuments(t, eng, newMemSource("doc1", "doc2", "doc3"))

	root := &principal.User{ID: id.NewUserID(), Username: "root", IsActive: true, IsSuperuser: true}
	if err := s.CreateUser(ctx, root); err != nil {
		t.Fatal(err)
	}

	keys, err := eng.ObjectsForUser(ctx, root, []string{"view_document"}, "document")
	if err != nil {
		t.Fatal(err)
	}
	if !equalStrings(keys, []string{"doc1", "doc2", "doc3"}) {
		t.Fatalf("superuser sees the full key set, got %v", keys)
	}

	// Even with no codes at all.
	keys, err = eng.ObjectsForUser(ctx, root, nil, "document")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 3 {
		t.Fatalf("expected full key set, got %v", keys)
	}

	// Enumeration needs a source.
	_, err = eng.ObjectsForUser(ctx, root, []string{"view_task"}, "task")
	if !errors.Is(err, ErrKindNotRegistered) {
		t.Fatalf("expected ErrKindNotRegistered, got %v", err)
	}
}

func TestObjectsForUserValidation(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	registerDocuments(t, eng, nil)
	joe := createUser(t, s, "joe")

	_, err := eng.ObjectsForUser(ctx, joe, []string{"document.view_document", "task.change_task"}, "document")
	if !errors.Is(err, ErrMixedKinds) {
		t.Fatalf("expected ErrMixedKinds, got %v", err)
	}
	_, err = eng.ObjectsForUser(ctx, joe, []string{"task.view_task"}, "document")
	if !errors.Is(err, ErrWrongKind) {
		t.Fatalf("expected ErrWrongKind, got %v", err)
	}
	_, err = eng.ObjectsForUser(ctx, nil, []string{"view_document"}, "document")
	if !errors.Is(err, ErrNotUserNorGroup) {
		t.Fatalf("expected ErrNotUserNorGroup, got %v", err)
	}
}

func TestObjectsForUserUnknownCodename(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	registerDocuments(t, eng, nil)

	joe := createUser(t, s, "joe")
	_ = eng.Assign(ctx, "view_document", UserSubject(joe), document{key: "doc1"})

	// An undefined codename can never be covered, so the all-codes form
	// yields nothing; the any-code form still matches the defined one.
	codes := []string{"view_document", "annotate_document"}
	keys, err := eng.ObjectsForUser(ctx, joe, codes, "document")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 0 {
		t.Fatalf("undefined codename makes all-cover unsatisfiable, got %v", keys)
	}
	keys, err = eng.ObjectsForUser(ctx, joe, codes, "document", WithAnyPerm())
	if err != nil {
		t.Fatal(err)
	}
	if !equalStrings(keys, []string{"doc1"}) {
		t.Fatalf("expected [doc1], got %v", keys)
	}
}

func TestObjectsForGroup(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	registerDocuments(t, eng, nil)

	joe := createUser(t, s, "joe")
	staff := createGroup(t, s, "staff")
	doc1 := document{key: "doc1"}
	doc2 := document{key: "doc2"}
	_ = eng.Assign(ctx, "view_document", GroupSubject(staff), doc1)
	_ = eng.Assign(ctx, "change_document", GroupSubject(staff), doc1)
	_ = eng.Assign(ctx, "view_document", GroupSubject(staff), doc2)
	_ = eng.Assign(ctx, "delete_document", UserSubject(joe), doc2)

	keys, err := eng.ObjectsForGroup(ctx, staff, []string{"view_document", "change_document"}, "document")
	if err != nil {
		t.Fatal(err)
	}
	if !equalStrings(keys, []string{"doc1"}) {
		t.Fatalf("expected [doc1], got %v", keys)
	}
	keys, err = eng.ObjectsForGroup(ctx, staff, []string{"view_document", "change_document"}, "document", WithAnyPerm())
	if err != nil {
		t.Fatal(err)
	}
	if !equalStrings(keys, []string{"doc1", "doc2"}) {
		t.Fatalf("expected [doc1 doc2], got %v", keys)
	}

	// User rows never leak into group queries.
	keys, err = eng.ObjectsForGroup(ctx, staff, []string{"delete_document"}, "document")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 0 {
		t.Fatalf("expected no keys, got %v", keys)
	}

	if _, err := eng.ObjectsForGroup(ctx, nil, []string{"view_document"}, "document"); !errors.Is(err, ErrNotUserNorGroup) {
		t.Fatalf("expected ErrNotUserNorGroup, got %v", err)
	}
}

func usernames(users []*principal.User) []string {
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Username)
	}
	sort.Strings(names)
	return names
}

func TestUsersWithPerms(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	registerDocuments(t, eng, nil)

	joe := createUser(t, s, "joe")
	amy := createUser(t, s, "amy")
	bob := createUser(t, s, "bob") // no grants at all
	root := &principal.User{ID: id.NewUserID(), Username: "root", IsActive: true, IsSuperuser: true}
	_ = s.CreateUser(ctx, root)

	staff := createGroup(t, s, "staff")
	_ = s.AddMember(ctx, staff.ID, amy.ID)
	_ = s.AddMember(ctx, staff.ID, joe.ID) // joe holds both forms

	doc := document{key: "doc1"}
	_ = eng.Assign(ctx, "view_document", UserSubject(joe), doc)
	_ = eng.Assign(ctx, "change_document", GroupSubject(staff), doc)
	_ = eng.Assign(ctx, "view_document", UserSubject(bob), document{key: "doc2"})

	users, err := eng.UsersWithPerms(ctx, doc)
	if err != nil {
		t.Fatal(err)
	}
	if got := usernames(users); !equalStrings(got, []string{"amy", "joe"}) {
		t.Fatalf("expected [amy joe], got %v", got)
	}

	users, err = eng.UsersWithPerms(ctx, doc, WithoutGroupUsers())
	if err != nil {
		t.Fatal(err)
	}
	if got := usernames(users); !equalStrings(got, []string{"joe"}) {
		t.Fatalf("expected [joe], got %v", got)
	}

	users, err = eng.UsersWithPerms(ctx, doc, WithSuperusers())
	if err != nil {
		t.Fatal(err)
	}
	if got := usernames(users); !equalStrings(got, []string{"amy", "joe", "root"}) {
		t.Fatalf("expected [amy joe root], got %v", got)
	}

	users, err = eng.UsersWithPerms(ctx, document{})
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 0 {
		t.Fatalf("unsaved object has no holders, got %v", usernames(users))
	}
}

func TestUserPermsOn(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	registerDocuments(t, eng, nil)

	joe := createUser(t, s, "joe")
	amy := createUser(t, s, "amy")
	staff := createGroup(t, s, "staff")
	_ = s.AddMember(ctx, staff.ID, joe.ID)
	_ = s.AddMember(ctx, staff.ID, amy.ID)

	doc := document{key: "doc1"}
	_ = eng.Assign(ctx, "view_document", UserSubject(joe), doc)
	_ = eng.Assign(ctx, "change_document", GroupSubject(staff), doc)

	got, err := eng.UserPermsOn(ctx, doc)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected two holders, got %d", len(got))
	}
	// Effective sets, inheritance included.
	if !equalStrings(got[joe.ID], []string{"change_document", "view_document"}) {
		t.Fatalf("joe: got %v", got[joe.ID])
	}
	if !equalStrings(got[amy.ID], []string{"change_document"}) {
		t.Fatalf("amy: got %v", got[amy.ID])
	}
}

func TestGroupsWithPerms(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	registerDocuments(t, eng, nil)

	staff := createGroup(t, s, "staff")
	admins := createGroup(t, s, "admins")
	_ = createGroup(t, s, "idle")

	doc := document{key: "doc1"}
	_ = eng.Assign(ctx, "view_document", GroupSubject(staff), doc)
	_ = eng.Assign(ctx, "change_document", GroupSubject(staff), doc)
	_ = eng.Assign(ctx, "view_document", GroupSubject(admins), doc)

	groups, err := eng.GroupsWithPerms(ctx, doc)
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		names = append(names, g.Name)
	}
	sort.Strings(names)
	if !equalStrings(names, []string{"admins", "staff"}) {
		t.Fatalf("expected [admins staff], got %v", names)
	}

	perms, err := eng.GroupPermsOn(ctx, doc)
	if err != nil {
		t.Fatal(err)
	}
	if !equalStrings(perms[staff.ID], []string{"change_document", "view_document"}) {
		t.Fatalf("staff: got %v", perms[staff.ID])
	}
	if !equalStrings(perms[admins.ID], []string{"view_document"}) {
		t.Fatalf("admins: got %v", perms[admins.ID])
	}
}
