package custos

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/custos/grant"
	"github.com/xraph/custos/store/memory"
	"github.com/xraph/custos/target"
)

// countingSource counts existence probes on its way through.
type countingSource struct {
	src    *memSource
	probes int
}

func (c *countingSource) Exists(ctx context.Context, key string) (bool, error) {
	c.probes++
	return c.src.Exists(ctx, key)
}

func (c *countingSource) Keys(ctx context.Context) ([]string, error) {
	return c.src.Keys(ctx)
}

func TestOrphanSweepDeletesDeadRows(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	registerDocuments(t, eng, newMemSource("doc1", "doc2"))

	joe := createUser(t, s, "joe")
	staff := createGroup(t, s, "staff")
	doc1 := document{key: "doc1"}
	doc3 := document{key: "doc3"} // never existed as far as the source knows
	_ = eng.Assign(ctx, "view_document", UserSubject(joe), doc1)
	_ = eng.Assign(ctx, "view_document", UserSubject(joe), document{key: "doc2"})
	_ = eng.Assign(ctx, "view_document", UserSubject(joe), doc3)
	_ = eng.Assign(ctx, "change_document", GroupSubject(staff), doc1)
	_ = eng.Assign(ctx, "change_document", GroupSubject(staff), doc3)

	stats, err := eng.CleanOrphanGrants(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Scanned != 5 || stats.Deleted != 2 || stats.Batches != 2 {
		t.Fatalf("expected scanned=5 deleted=2 batches=2, got %+v", stats)
	}

	urows, _ := s.ListUserGrants(ctx, &grant.ListFilter{TargetKind: "document"})
	grows, _ := s.ListGroupGrants(ctx, &grant.ListFilter{TargetKind: "document"})
	if len(urows) != 2 || len(grows) != 1 {
		t.Fatalf("expected 2 user and 1 group row left, got %d and %d", len(urows), len(grows))
	}
	if ok, _ := eng.HasPerm(ctx, joe, "view_document", doc1); !ok {
		t.Fatal("live grants must survive the sweep")
	}
}

func TestOrphanSweepScope(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	registerDocuments(t, eng, newMemSource("doc1"))

	direct := memory.New()
	err := eng.RegisterKind(ctx, KindSpec{
		Kind:      "task",
		Form:      target.FormDirect,
		Source:    newMemSource("t1"),
		Grants:    direct,
		Codenames: []string{"view_task"},
	})
	if err != nil {
		t.Fatal(err)
	}
	// Generic kind with no source: unsweepable, skipped by default.
	err = eng.RegisterKind(ctx, KindSpec{Kind: "note", Codenames: []string{"view_note"}})
	if err != nil {
		t.Fatal(err)
	}

	joe := createUser(t, s, "joe")
	_ = eng.Assign(ctx, "view_document", UserSubject(joe), document{key: "gone"})
	_ = eng.Assign(ctx, "view_task", UserSubject(joe), Ref("task", "t9"))
	_ = eng.Assign(ctx, "view_note", UserSubject(joe), Ref("note", "n9"))

	stats, err := eng.CleanOrphanGrants(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Deleted != 1 {
		t.Fatalf("only the document orphan is sweepable, got %+v", stats)
	}
	trows, _ := direct.ListUserGrants(ctx, &grant.ListFilter{TargetKind: "task"})
	if len(trows) != 1 {
		t.Fatal("direct-form rows are cleaned by their foreign keys, not the sweep")
	}
	nrows, _ := s.ListUserGrants(ctx, &grant.ListFilter{TargetKind: "note"})
	if len(nrows) != 1 {
		t.Fatal("kinds without a source must be left alone")
	}

	// Asking for a direct-form kind by name skips it without error.
	stats, err = eng.CleanOrphanGrants(ctx, WithSweepKinds("task"))
	if err != nil {
		t.Fatal(err)
	}
	if stats.Scanned != 0 {
		t.Fatalf("expected nothing scanned, got %+v", stats)
	}

	// Asking for an unprobeable kind by name is an error.
	if _, err := eng.CleanOrphanGrants(ctx, WithSweepKinds("ghost")); !errors.Is(err, ErrKindNotRegistered) {
		t.Fatalf("expected ErrKindNotRegistered, got %v", err)
	}
	if _, err := eng.CleanOrphanGrants(ctx, WithSweepKinds("note")); !errors.Is(err, ErrKindNotRegistered) {
		t.Fatalf("expected ErrKindNotRegistered for sourceless kind, got %v", err)
	}
}

func TestOrphanSweepProbesOncePerKey(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	cs := &countingSource{src: newMemSource("k2")}
	registerDocuments(t, eng, cs)

	joe := createUser(t, s, "joe")
	amy := createUser(t, s, "amy")
	staff := createGroup(t, s, "staff")

	k1 := document{key: "k1"} // dead
	k2 := document{key: "k2"} // alive
	_ = eng.Assign(ctx, "view_document", UserSubject(joe), k1)
	_ = eng.Assign(ctx, "change_document", UserSubject(joe), k1)
	_ = eng.Assign(ctx, "view_document", UserSubject(amy), k1)
	_ = eng.Assign(ctx, "view_document", UserSubject(joe), k2)
	_ = eng.Assign(ctx, "change_document", GroupSubject(staff), k1)
	_ = eng.Assign(ctx, "view_document", GroupSubject(staff), k2)

	stats, err := eng.CleanOrphanGrants(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Scanned != 6 || stats.Deleted != 4 {
		t.Fatalf("expected scanned=6 deleted=4, got %+v", stats)
	}
	if cs.probes != 2 {
		t.Fatalf("two distinct keys want two probes, got %d", cs.probes)
	}
}

func TestOrphanSweepBatchBudget(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	registerDocuments(t, eng, newMemSource()) // every key is dead

	joe := createUser(t, s, "joe")
	_ = eng.Assign(ctx, "view_document", UserSubject(joe),
		document{key: "d1"}, document{key: "d2"}, document{key: "d3"},
		document{key: "d4"}, document{key: "d5"})

	stats, err := eng.CleanOrphanGrants(ctx, WithBatchSize(2), WithMaxBatches(1))
	if err != nil {
		t.Fatal(err)
	}
	if stats.Scanned != 2 || stats.Deleted != 2 || stats.Batches != 1 {
		t.Fatalf("expected scanned=2 deleted=2 batches=1, got %+v", stats)
	}

	// A follow-up sweep with no budget finishes the job.
	stats, err = eng.CleanOrphanGrants(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Deleted != 3 {
		t.Fatalf("expected the remaining 3 deleted, got %+v", stats)
	}
	rows, _ := s.ListUserGrants(ctx, &grant.ListFilter{TargetKind: "document"})
	if len(rows) != 0 {
		t.Fatalf("expected an empty table, got %d rows", len(rows))
	}
}

func TestOrphanSweepOffsetAfterDeletes(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	registerDocuments(t, eng, newMemSource())

	joe := createUser(t, s, "joe")
	_ = eng.Assign(ctx, "view_document", UserSubject(joe),
		document{key: "d1"}, document{key: "d2"}, document{key: "d3"},
		document{key: "d4"}, document{key: "d5"})

	// Every row dies, so each page after a full deletion must re-read
	// from the same offset or rows would be skipped.
	stats, err := eng.CleanOrphanGrants(ctx, WithBatchSize(2))
	if err != nil {
		t.Fatal(err)
	}
	if stats.Scanned != 5 || stats.Deleted != 5 || stats.Batches != 3 {
		t.Fatalf("expected scanned=5 deleted=5 batches=3, got %+v", stats)
	}
	rows, _ := s.ListUserGrants(ctx, &grant.ListFilter{TargetKind: "document"})
	if len(rows) != 0 {
		t.Fatalf("expected an empty table, got %d rows", len(rows))
	}
}

func TestOrphanSweepResume(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	registerDocuments(t, eng, newMemSource())

	joe := createUser(t, s, "joe")
	_ = eng.Assign(ctx, "view_document", UserSubject(joe),
		document{key: "d1"}, document{key: "d2"}, document{key: "d3"},
		document{key: "d4"}, document{key: "d5"})

	// Skip the first page; the two rows there survive this round.
	stats, err := eng.CleanOrphanGrants(ctx, WithBatchSize(2), WithSkipBatches(1))
	if err != nil {
		t.Fatal(err)
	}
	if stats.Scanned != 3 || stats.Deleted != 3 || stats.Batches != 2 {
		t.Fatalf("expected scanned=3 deleted=3 batches=2, got %+v", stats)
	}
	rows, _ := s.ListUserGrants(ctx, &grant.ListFilter{TargetKind: "document"})
	if len(rows) != 2 {
		t.Fatalf("expected the skipped page to survive, got %d rows", len(rows))
	}
}

func TestOrphanSweepDurationBudget(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	registerDocuments(t, eng, newMemSource())

	joe := createUser(t, s, "joe")
	_ = eng.Assign(ctx, "view_document", UserSubject(joe), document{key: "d1"})

	stats, err := eng.CleanOrphanGrants(ctx, WithMaxDuration(time.Nanosecond))
	if err != nil {
		t.Fatal(err)
	}
	if stats.Scanned != 0 {
		t.Fatalf("expected the budget to stop the sweep up front, got %+v", stats)
	}
}

func TestOrphanSweepCancelled(t *testing.T) {
	eng, s := newTestEngine(t)
	registerDocuments(t, eng, newMemSource())
	joe := createUser(t, s, "joe")
	_ = eng.Assign(context.Background(), "view_document", UserSubject(joe), document{key: "d1"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := eng.CleanOrphanGrants(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
