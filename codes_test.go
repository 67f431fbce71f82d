package custos

import (
	"errors"
	"testing"
)

func TestSplitCode(t *testing.T) {
	tests := []struct {
		code     string
		kind     string
		codename string
	}{
		{"view_document", "", "view_document"},
		{"document.view_document", "document", "view_document"},
		{".view_document", "", "view_document"},
		{"document.", "document", ""},
		{"a.b.c", "a", "b.c"},
		{"", "", ""},
	}
	for _, tt := range tests {
		kind, codename := splitCode(tt.code)
		if kind != tt.kind || codename != tt.codename {
			t.Errorf("splitCode(%q) = (%q, %q), want (%q, %q)",
				tt.code, kind, codename, tt.kind, tt.codename)
		}
	}
}

func TestCodenameFor(t *testing.T) {
	tests := []struct {
		name string
		code string
		kind string
		want string
		err  error
	}{
		{"bare", "view_document", "document", "view_document", nil},
		{"qualified", "document.view_document", "document", "view_document", nil},
		{"wrong qualifier", "task.view_document", "document", "", ErrWrongKind},
		{"empty", "", "document", "", ErrInvalidCode},
		{"trailing dot", "document.", "document", "", ErrInvalidCode},
		{"dotted codename", "document.view.all", "document", "", ErrInvalidCode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := codenameFor(tt.code, tt.kind)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("expected %v, got %v", tt.err, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestCodenamesFor(t *testing.T) {
	got, err := codenamesFor([]string{"view_document", "document.change_document"}, "document")
	if err != nil {
		t.Fatal(err)
	}
	if !equalStrings(got, []string{"view_document", "change_document"}) {
		t.Fatalf("expected bare codenames in order, got %v", got)
	}

	// Disagreeing qualifiers win over a kind mismatch.
	_, err = codenamesFor([]string{"document.view_document", "task.change_task"}, "note")
	if !errors.Is(err, ErrMixedKinds) {
		t.Fatalf("expected ErrMixedKinds, got %v", err)
	}

	_, err = codenamesFor([]string{"task.view_task", "task.change_task"}, "document")
	if !errors.Is(err, ErrWrongKind) {
		t.Fatalf("expected ErrWrongKind, got %v", err)
	}

	_, err = codenamesFor([]string{"view_document", ""}, "document")
	if !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}

	got, err = codenamesFor(nil, "document")
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty result, got %v, %v", got, err)
	}
}

func TestGlobalCode(t *testing.T) {
	kind, codename, err := globalCode("document.view_document")
	if err != nil {
		t.Fatal(err)
	}
	if kind != "document" || codename != "view_document" {
		t.Fatalf("got (%q, %q)", kind, codename)
	}

	for _, code := range []string{"view_document", "document.", ".view_document", "a.b.c", ""} {
		if _, _, err := globalCode(code); !errors.Is(err, ErrInvalidCode) {
			t.Errorf("globalCode(%q): expected ErrInvalidCode, got %v", code, err)
		}
	}
}

func TestCodenameLabel(t *testing.T) {
	if got := codenameLabel("view_document"); got != "Can view document" {
		t.Fatalf("got %q", got)
	}
	if got := codenameLabel("publish"); got != "Can publish" {
		t.Fatalf("got %q", got)
	}
}

func TestDistinctCount(t *testing.T) {
	if n := distinctCount([]string{"a", "b", "a", "c", "b"}); n != 3 {
		t.Fatalf("expected 3, got %d", n)
	}
	if n := distinctCount(nil); n != 0 {
		t.Fatalf("expected 0, got %d", n)
	}
}
