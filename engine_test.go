package custos

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/custos/grant"
	"github.com/xraph/custos/id"
	"github.com/xraph/custos/principal"
	"github.com/xraph/custos/store"
	"github.com/xraph/custos/store/memory"
	"github.com/xraph/custos/target"
)

// document is a host object belonging to the "document" kind.
type document struct{ key string }

func (d document) ObjectKind() string { return "document" }
func (d document) ObjectKey() string  { return d.key }

// memSource backs a kind registration with a fixed key set.
type memSource struct{ keys map[string]bool }

func newMemSource(keys ...string) *memSource {
	m := &memSource{keys: make(map[string]bool, len(keys))}
	for _, k := range keys {
		m.keys[k] = true
	}
	return m
}

func (m *memSource) Exists(_ context.Context, key string) (bool, error) {
	return m.keys[key], nil
}

func (m *memSource) Keys(_ context.Context) ([]string, error) {
	out := make([]string, 0, len(m.keys))
	for k, alive := range m.keys {
		if alive {
			out = append(out, k)
		}
	}
	return out, nil
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *memory.Store) {
	t.Helper()
	s := memory.New()
	eng, err := NewEngine(append([]Option{WithStore(s)}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return eng, s
}

func registerDocuments(t *testing.T, eng *Engine, src target.Source) {
	t.Helper()
	err := eng.RegisterKind(context.Background(), KindSpec{
		Kind:      "document",
		Source:    src,
		Codenames: []string{"view_document", "change_document", "delete_document"},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func createUser(t *testing.T, s store.Store, username string) *principal.User {
	t.Helper()
	u := &principal.User{ID: id.NewUserID(), Username: username, IsActive: true}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	return u
}

func createGroup(t *testing.T, s store.Store, name string) *principal.Group {
	t.Helper()
	g := &principal.Group{ID: id.NewGroupID(), Name: name}
	if err := s.CreateGroup(context.Background(), g); err != nil {
		t.Fatal(err)
	}
	return g
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewEngine_RequiresStore(t *testing.T) {
	_, err := NewEngine()
	if err == nil {
		t.Fatal("expected error when store is nil")
	}
}

func TestNewEngine_RejectsContradictoryConfig(t *testing.T) {
	s := memory.New()
	_, err := NewEngine(WithStore(s), WithConfig(Config{AnonymousCacheTTL: -1}))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestRegisterKind_EnsuresPermissions(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	registerDocuments(t, eng, nil)

	p, err := s.GetPermissionByCode(ctx, "document", "view_document")
	if err != nil {
		t.Fatal(err)
	}
	if p.Label != "Can view document" {
		t.Fatalf("expected derived label, got %q", p.Label)
	}

	// Re-registering the kind is an error.
	if err := eng.RegisterKind(ctx, KindSpec{Kind: "document"}); err == nil {
		t.Fatal("expected duplicate kind error")
	}
}

func TestGroupInheritance(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	registerDocuments(t, eng, nil)

	joe := createUser(t, s, "joe")
	employees := createGroup(t, s, "employees")
	_ = s.AddMember(ctx, employees.ID, joe.ID)
	doc1 := document{key: "doc1"}

	if err := eng.Assign(ctx, "change_document", GroupSubject(employees), doc1); err != nil {
		t.Fatal(err)
	}

	perms, err := eng.Perms(ctx, joe, doc1)
	if err != nil {
		t.Fatal(err)
	}
	if !equalStrings(perms, []string{"change_document"}) {
		t.Fatalf("expected [change_document], got %v", perms)
	}

	userPerms, err := eng.UserPerms(ctx, joe, doc1)
	if err != nil {
		t.Fatal(err)
	}
	if len(userPerms) != 0 {
		t.Fatalf("expected no direct perms, got %v", userPerms)
	}

	groupPerms, err := eng.GroupPermsForUser(ctx, joe, doc1)
	if err != nil {
		t.Fatal(err)
	}
	if !equalStrings(groupPerms, []string{"change_document"}) {
		t.Fatalf("expected inherited [change_document], got %v", groupPerms)
	}

	ok, err := eng.HasPerm(ctx, joe, "change_document", doc1)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected change_document through group")
	}
	ok, err = eng.HasPerm(ctx, joe, "delete_document", doc1)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("delete_document was never granted")
	}
}

func TestPermsUnion(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	registerDocuments(t, eng, nil)

	joe := createUser(t, s, "joe")
	staff := createGroup(t, s, "staff")
	_ = s.AddMember(ctx, staff.ID, joe.ID)
	doc := document{key: "doc1"}

	_ = eng.Assign(ctx, "view_document", UserSubject(joe), doc)
	_ = eng.Assign(ctx, "change_document", GroupSubject(staff), doc)

	perms, err := eng.Perms(ctx, joe, doc)
	if err != nil {
		t.Fatal(err)
	}
	if !equalStrings(perms, []string{"change_document", "view_document"}) {
		t.Fatalf("expected sorted union, got %v", perms)
	}
}

func TestAssignIdempotent(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	registerDocuments(t, eng, nil)

	joe := createUser(t, s, "joe")
	doc := document{key: "doc1"}

	if err := eng.Assign(ctx, "view_document", UserSubject(joe), doc); err != nil {
		t.Fatal(err)
	}
	if err := eng.Assign(ctx, "view_document", UserSubject(joe), doc); err != nil {
		t.Fatal(err)
	}
	n, err := s.CountUserGrants(ctx, &grant.ListFilter{UserID: joe.ID})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 grant row after re-assign, got %d", n)
	}
}

func TestRemoveIdempotent(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	registerDocuments(t, eng, nil)

	joe := createUser(t, s, "joe")
	doc := document{key: "doc1"}
	_ = eng.Assign(ctx, "view_document", UserSubject(joe), doc)

	n, err := eng.Remove(ctx, "view_document", UserSubject(joe), doc)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row removed, got %d", n)
	}
	n, err = eng.Remove(ctx, "view_document", UserSubject(joe), doc)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expected removing absent grant to be a no-op, got %d", n)
	}
}

func TestAssignRequiresPersistedObject(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	registerDocuments(t, eng, nil)
	joe := createUser(t, s, "joe")

	err := eng.Assign(ctx, "view_document", UserSubject(joe), document{})
	if !errors.Is(err, ErrObjectNotPersisted) {
		t.Fatalf("expected ErrObjectNotPersisted, got %v", err)
	}
}

func TestAssignSubjectRequired(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	registerDocuments(t, eng, nil)

	err := eng.Assign(ctx, "view_document", Subject{}, document{key: "doc1"})
	if !errors.Is(err, ErrNotUserNorGroup) {
		t.Fatalf("expected ErrNotUserNorGroup, got %v", err)
	}
	err = eng.Assign(ctx, "view_document", UserSubject(nil), document{key: "doc1"})
	if !errors.Is(err, ErrNotUserNorGroup) {
		t.Fatalf("expected ErrNotUserNorGroup for nil user, got %v", err)
	}
}

func TestQualifiedCodes(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	registerDocuments(t, eng, nil)
	joe := createUser(t, s, "joe")
	doc := document{key: "doc1"}

	if err := eng.Assign(ctx, "document.view_document", UserSubject(joe), doc); err != nil {
		t.Fatal(err)
	}
	ok, err := eng.HasPerm(ctx, joe, "document.view_document", doc)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("qualified code should match")
	}

	_, err = eng.HasPerm(ctx, joe, "task.view_document", doc)
	if !errors.Is(err, ErrWrongKind) {
		t.Fatalf("expected ErrWrongKind, got %v", err)
	}
	err = eng.Assign(ctx, "task.view_document", UserSubject(joe), doc)
	if !errors.Is(err, ErrWrongKind) {
		t.Fatalf("expected ErrWrongKind on assign, got %v", err)
	}
}

func TestBulkAssignObjects(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	registerDocuments(t, eng, nil)

	joe := createUser(t, s, "joe")
	doc1 := document{key: "doc1"}
	doc2 := document{key: "doc2"}

	if err := eng.Assign(ctx, "view_document", UserSubject(joe), doc1, doc2); err != nil {
		t.Fatal(err)
	}
	n, err := s.CountUserGrants(ctx, &grant.ListFilter{UserID: joe.ID})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows from bulk assign, got %d", n)
	}

	keys, err := eng.ObjectsForUser(ctx, joe, []string{"view_document"}, "document")
	if err != nil {
		t.Fatal(err)
	}
	if !equalStrings(keys, []string{"doc1", "doc2"}) {
		t.Fatalf("expected [doc1 doc2], got %v", keys)
	}
}

func TestBulkAssignUsers(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	registerDocuments(t, eng, nil)

	joe := createUser(t, s, "joe")
	jane := createUser(t, s, "jane")
	doc := document{key: "doc1"}

	err := eng.Assign(ctx, "view_document", UsersSubject([]*principal.User{joe, jane}), doc)
	if err != nil {
		t.Fatal(err)
	}
	n, err := s.CountUserGrants(ctx, &grant.ListFilter{TargetKind: "document", TargetKey: "doc1"})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows, got %d", n)
	}
}

func TestBulkAssignSkipsExisting(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	registerDocuments(t, eng, nil)

	joe := createUser(t, s, "joe")
	doc1 := document{key: "doc1"}
	doc2 := document{key: "doc2"}

	_ = eng.Assign(ctx, "view_document", UserSubject(joe), doc1)
	if err := eng.Assign(ctx, "view_document", UserSubject(joe), doc1, doc2); err != nil {
		t.Fatal(err)
	}
	n, err := s.CountUserGrants(ctx, &grant.ListFilter{UserID: joe.ID})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected existing row to be skipped, got %d rows", n)
	}
}

func TestAmbiguousBulkRejected(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	registerDocuments(t, eng, nil)

	joe := createUser(t, s, "joe")
	jane := createUser(t, s, "jane")
	subject := UsersSubject([]*principal.User{joe, jane})

	err := eng.Assign(ctx, "view_document", subject, document{key: "doc1"}, document{key: "doc2"})
	if !errors.Is(err, ErrAmbiguousBulk) {
		t.Fatalf("expected ErrAmbiguousBulk, got %v", err)
	}
	n, _ := s.CountUserGrants(ctx, nil)
	if n != 0 {
		t.Fatalf("ambiguous bulk must have zero effect, found %d rows", n)
	}

	_, err = eng.Remove(ctx, "view_document", subject, document{key: "doc1"}, document{key: "doc2"})
	if !errors.Is(err, ErrAmbiguousBulk) {
		t.Fatalf("expected ErrAmbiguousBulk on remove, got %v", err)
	}
}

func TestMixedKindsRejected(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	registerDocuments(t, eng, nil)
	joe := createUser(t, s, "joe")

	err := eng.Assign(ctx, "view_document", UserSubject(joe),
		document{key: "doc1"}, Ref("task", "t1"))
	if !errors.Is(err, ErrMixedKinds) {
		t.Fatalf("expected ErrMixedKinds, got %v", err)
	}
}

func TestBulkRemove(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	registerDocuments(t, eng, nil)

	joe := createUser(t, s, "joe")
	jane := createUser(t, s, "jane")
	doc := document{key: "doc1"}
	docs := []Object{document{key: "doc1"}, document{key: "doc2"}}

	_ = eng.Assign(ctx, "view_document", UserSubject(joe), docs...)
	n, err := eng.Remove(ctx, "view_document", UserSubject(joe), docs...)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows removed, got %d", n)
	}

	_ = eng.Assign(ctx, "view_document", UsersSubject([]*principal.User{joe, jane}), doc)
	n, err = eng.Remove(ctx, "view_document", UsersSubject([]*principal.User{joe, jane}), doc)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows removed across users, got %d", n)
	}
	left, _ := s.CountUserGrants(ctx, nil)
	if left != 0 {
		t.Fatalf("expected empty table, got %d rows", left)
	}
}

func TestBulkMatchesSingularLoop(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	registerDocuments(t, eng, nil)
	joe := createUser(t, s, "joe")
	docs := []Object{document{key: "doc1"}, document{key: "doc2"}, document{key: "doc3"}}

	if err := eng.Assign(ctx, "view_document", UserSubject(joe), docs...); err != nil {
		t.Fatal(err)
	}
	bulkKeys, err := eng.ObjectsForUser(ctx, joe, []string{"view_document"}, "document")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := eng.Remove(ctx, "view_document", UserSubject(joe), docs...); err != nil {
		t.Fatal(err)
	}
	for _, obj := range docs {
		if err := eng.Assign(ctx, "view_document", UserSubject(joe), obj); err != nil {
			t.Fatal(err)
		}
	}
	loopKeys, err := eng.ObjectsForUser(ctx, joe, []string{"view_document"}, "document")
	if err != nil {
		t.Fatal(err)
	}
	if !equalStrings(bulkKeys, loopKeys) {
		t.Fatalf("bulk %v and singular loop %v disagree", bulkKeys, loopKeys)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Global permissions
// ─────────────────────────────────────────────────────────────────────────────

func TestGlobalAssign(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	registerDocuments(t, eng, nil)
	joe := createUser(t, s, "joe")

	if err := eng.Assign(ctx, "document.view_document", UserSubject(joe)); err != nil {
		t.Fatal(err)
	}
	codes, err := eng.GlobalPerms(ctx, joe)
	if err != nil {
		t.Fatal(err)
	}
	if !equalStrings(codes, []string{"document.view_document"}) {
		t.Fatalf("expected [document.view_document], got %v", codes)
	}

	// Re-grant is a no-op.
	if err := eng.Assign(ctx, "document.view_document", UserSubject(joe)); err != nil {
		t.Fatal(err)
	}
	codes, _ = eng.GlobalPerms(ctx, joe)
	if len(codes) != 1 {
		t.Fatalf("expected re-grant to be a no-op, got %v", codes)
	}

	n, err := eng.Remove(ctx, "document.view_document", UserSubject(joe))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 relation removed, got %d", n)
	}
	n, _ = eng.Remove(ctx, "document.view_document", UserSubject(joe))
	if n != 0 {
		t.Fatalf("expected revoking absent relation to report 0, got %d", n)
	}
}

func TestGlobalRequiresQualifiedCode(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	registerDocuments(t, eng, nil)
	joe := createUser(t, s, "joe")

	err := eng.Assign(ctx, "view_document", UserSubject(joe))
	if !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode for bare global code, got %v", err)
	}
}

func TestGlobalRejectsBulkSubjects(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	registerDocuments(t, eng, nil)
	joe := createUser(t, s, "joe")

	err := eng.Assign(ctx, "document.view_document", UsersSubject([]*principal.User{joe}))
	if !errors.Is(err, ErrBulkGlobalUnsupported) {
		t.Fatalf("expected ErrBulkGlobalUnsupported, got %v", err)
	}
}

func TestGlobalGroupInheritance(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	registerDocuments(t, eng, nil)

	joe := createUser(t, s, "joe")
	staff := createGroup(t, s, "staff")
	_ = s.AddMember(ctx, staff.ID, joe.ID)

	if err := eng.Assign(ctx, "document.change_document", GroupSubject(staff)); err != nil {
		t.Fatal(err)
	}
	codes, err := eng.GlobalPerms(ctx, joe)
	if err != nil {
		t.Fatal(err)
	}
	if !equalStrings(codes, []string{"document.change_document"}) {
		t.Fatalf("expected inherited global perm, got %v", codes)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Direct-form routing
// ─────────────────────────────────────────────────────────────────────────────

func TestDirectFormRouting(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	registerDocuments(t, eng, nil)

	direct := memory.New()
	err := eng.RegisterKind(ctx, KindSpec{
		Kind:      "task",
		Form:      target.FormDirect,
		Grants:    direct,
		Codenames: []string{"view_task"},
	})
	if err != nil {
		t.Fatal(err)
	}

	joe := createUser(t, s, "joe")
	task := Ref("task", "t1")
	if err := eng.Assign(ctx, "view_task", UserSubject(joe), task); err != nil {
		t.Fatal(err)
	}

	n, _ := s.CountUserGrants(ctx, &grant.ListFilter{TargetKind: "task"})
	if n != 0 {
		t.Fatalf("generic tables must stay empty for direct kinds, found %d rows", n)
	}
	n, _ = direct.CountUserGrants(ctx, &grant.ListFilter{TargetKind: "task"})
	if n != 1 {
		t.Fatalf("expected 1 row in the direct binding, got %d", n)
	}

	ok, err := eng.HasPerm(ctx, joe, "view_task", task)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("check should route to the direct binding")
	}
	keys, err := eng.ObjectsForUser(ctx, joe, []string{"view_task"}, "task")
	if err != nil {
		t.Fatal(err)
	}
	if !equalStrings(keys, []string{"t1"}) {
		t.Fatalf("expected [t1], got %v", keys)
	}

	// Cleanup on the binding leaves the generic tables alone.
	doc := document{key: "doc1"}
	_ = eng.Assign(ctx, "view_document", UserSubject(joe), doc)
	if _, err := direct.DeleteUserGrants(ctx, &grant.ListFilter{TargetKind: "task"}); err != nil {
		t.Fatal(err)
	}
	n, _ = s.CountUserGrants(ctx, &grant.ListFilter{TargetKind: "document"})
	if n != 1 {
		t.Fatalf("generic rows should survive direct cleanup, got %d", n)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Plugin hooks
// ─────────────────────────────────────────────────────────────────────────────

type capturePlugin struct {
	assignedUsers  int
	assignedGroups int
	removedUsers   int
	removedGroups  int
	anonCreated    int
	lastRemoved    *grant.UserGrant
}

func (p *capturePlugin) Name() string { return "capture" }

func (p *capturePlugin) OnUserGrantAssigned(_ context.Context, _ *grant.UserGrant) error {
	p.assignedUsers++
	return nil
}

func (p *capturePlugin) OnGroupGrantAssigned(_ context.Context, _ *grant.GroupGrant) error {
	p.assignedGroups++
	return nil
}

func (p *capturePlugin) OnUserGrantRemoved(_ context.Context, g *grant.UserGrant) error {
	p.removedUsers++
	p.lastRemoved = g
	return nil
}

func (p *capturePlugin) OnGroupGrantRemoved(_ context.Context, _ *grant.GroupGrant) error {
	p.removedGroups++
	return nil
}

func (p *capturePlugin) OnAnonymousCreated(_ context.Context, _ *principal.User) error {
	p.anonCreated++
	return nil
}

func TestHooksFireOnSingularPaths(t *testing.T) {
	ctx := context.Background()
	rec := &capturePlugin{}
	eng, s := newTestEngine(t, WithPlugin(rec))
	registerDocuments(t, eng, nil)

	joe := createUser(t, s, "joe")
	staff := createGroup(t, s, "staff")
	doc := document{key: "doc1"}

	_ = eng.Assign(ctx, "view_document", UserSubject(joe), doc)
	_ = eng.Assign(ctx, "view_document", GroupSubject(staff), doc)
	if rec.assignedUsers != 1 || rec.assignedGroups != 1 {
		t.Fatalf("expected one hook per singular assign, got %d/%d", rec.assignedUsers, rec.assignedGroups)
	}

	_, _ = eng.Remove(ctx, "view_document", UserSubject(joe), doc)
	if rec.removedUsers != 1 {
		t.Fatalf("expected removed hook, got %d", rec.removedUsers)
	}
	if rec.lastRemoved == nil || rec.lastRemoved.TargetKey != "doc1" {
		t.Fatalf("removed hook should carry the triplet, got %+v", rec.lastRemoved)
	}

	// Removing an absent grant fires nothing.
	_, _ = eng.Remove(ctx, "view_document", UserSubject(joe), doc)
	if rec.removedUsers != 1 {
		t.Fatalf("no-op remove must not hook, got %d", rec.removedUsers)
	}
}

func TestHooksSuppressedOnBulk(t *testing.T) {
	ctx := context.Background()
	rec := &capturePlugin{}
	eng, s := newTestEngine(t, WithPlugin(rec))
	registerDocuments(t, eng, nil)

	joe := createUser(t, s, "joe")
	docs := []Object{document{key: "doc1"}, document{key: "doc2"}}

	_ = eng.Assign(ctx, "view_document", UserSubject(joe), docs...)
	if rec.assignedUsers != 0 {
		t.Fatalf("bulk assign must not hook, got %d", rec.assignedUsers)
	}
	_, _ = eng.Remove(ctx, "view_document", UserSubject(joe), docs...)
	if rec.removedUsers != 0 {
		t.Fatalf("bulk remove must not hook, got %d", rec.removedUsers)
	}
}

func TestAssignNotifyHooksEveryGrant(t *testing.T) {
	ctx := context.Background()
	rec := &capturePlugin{}
	eng, s := newTestEngine(t, WithPlugin(rec))
	registerDocuments(t, eng, nil)

	joe := createUser(t, s, "joe")
	docs := []Object{document{key: "doc1"}, document{key: "doc2"}}

	if err := eng.AssignNotify(ctx, "view_document", UserSubject(joe), docs...); err != nil {
		t.Fatal(err)
	}
	if rec.assignedUsers != 2 {
		t.Fatalf("expected 2 hooks from AssignNotify, got %d", rec.assignedUsers)
	}
	n, _ := s.CountUserGrants(ctx, &grant.ListFilter{UserID: joe.ID})
	if n != 2 {
		t.Fatalf("expected 2 rows, got %d", n)
	}
}
