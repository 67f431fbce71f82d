package custos

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAnonymousUserLazyCreate(t *testing.T) {
	ctx := context.Background()
	rec := &capturePlugin{}
	eng, cs := newCountingEngine(t, WithPlugin(rec))

	u, err := eng.AnonymousUser(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if u.Username != "AnonymousUser" || !u.IsActive {
		t.Fatalf("unexpected anonymous row: %+v", u)
	}
	if rec.anonCreated != 1 {
		t.Fatalf("expected one creation hook, got %d", rec.anonCreated)
	}

	again, err := eng.AnonymousUser(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != u.ID {
		t.Fatal("expected the same row back")
	}
	if rec.anonCreated != 1 {
		t.Fatalf("the row must be created once, got %d hooks", rec.anonCreated)
	}
	// No cache TTL configured, so each call resolves by username.
	if cs.usernameLookups != 2 {
		t.Fatalf("expected 2 username lookups, got %d", cs.usernameLookups)
	}
}

func TestAnonymousUserCached(t *testing.T) {
	ctx := context.Background()
	eng, cs := newCountingEngine(t, WithConfig(Config{
		AnonymousUserName: "AnonymousUser",
		AnonymousCacheTTL: -1, // until invalidated
	}))

	u, err := eng.AnonymousUser(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := eng.AnonymousUser(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if again.ID != u.ID {
			t.Fatal("expected the cached row back")
		}
	}
	if cs.usernameLookups != 1 {
		t.Fatalf("expected one lookup before the cache takes over, got %d", cs.usernameLookups)
	}
}

func TestAnonymousUserCacheExpiry(t *testing.T) {
	ctx := context.Background()
	eng, cs := newCountingEngine(t, WithConfig(Config{
		AnonymousUserName: "AnonymousUser",
		AnonymousCacheTTL: time.Millisecond,
	}))

	if _, err := eng.AnonymousUser(ctx); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := eng.AnonymousUser(ctx); err != nil {
		t.Fatal(err)
	}
	if cs.usernameLookups != 2 {
		t.Fatalf("expected a fresh lookup after expiry, got %d", cs.usernameLookups)
	}
}

func TestAnonymousUserDisabled(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t, WithConfig(Config{}))

	if _, err := eng.AnonymousUser(ctx); !errors.Is(err, ErrAnonymousDisabled) {
		t.Fatalf("expected ErrAnonymousDisabled, got %v", err)
	}
}

func TestIsAnonymous(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)

	anon, err := eng.AnonymousUser(ctx)
	if err != nil {
		t.Fatal(err)
	}
	joe := createUser(t, s, "joe")

	if !eng.IsAnonymous(anon) {
		t.Fatal("expected true for the anonymous row")
	}
	if eng.IsAnonymous(joe) || eng.IsAnonymous(nil) {
		t.Fatal("expected false for other principals")
	}

	disabled, _ := newTestEngine(t, WithConfig(Config{}))
	if disabled.IsAnonymous(anon) {
		t.Fatal("expected false when anonymous support is off")
	}
}
