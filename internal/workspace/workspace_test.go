package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m
}

func TestSanitizeTaskID(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"task-123", "task-123"},
		{"Task_1.bak", "Task_1.bak"},
		{"a/b\\c", "a_b_c"},
		{"../../etc", ".._.._etc"},
		{"héllo wörld", "h_llo_w_rld"},
	}
	for _, tc := range cases {
		if got := SanitizeTaskID(tc.in); got != tc.want {
			t.Errorf("SanitizeTaskID(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestResolveRejectsUnsafeIDs(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	for _, id := range []string{"", "..", ".", "///", "…"} {
		if _, err := m.Resolve(id, false); !errors.Is(err, ErrUnsafePath) {
			t.Errorf("Resolve(%q) error = %v, want ErrUnsafePath", id, err)
		}
	}
}

func TestResolveCreateIsIdempotent(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	first, err := m.Resolve("t1", true)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	second, err := m.Resolve("t1", true)
	if err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}
	if first != second {
		t.Fatalf("Resolve not stable: %q vs %q", first, second)
	}
	if !m.UnderRoot(first) {
		t.Fatalf("resolved dir %q not under root %q", first, m.Root())
	}
}

func TestUnderRoot(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	if m.UnderRoot(m.Root()) {
		t.Fatal("root itself is not a strict descendant")
	}
	if m.UnderRoot(filepath.Join(m.Root(), "..")) {
		t.Fatal("parent must not pass the membership check")
	}
	if !m.UnderRoot(filepath.Join(m.Root(), "t1", "notes.txt")) {
		t.Fatal("child path should pass the membership check")
	}
}

func TestRemoveMissingDirIsNoop(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	if err := m.Remove("never-created"); err != nil {
		t.Fatalf("Remove() of missing dir error = %v", err)
	}
}

func TestArtifactsClassifyAndSort(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	dir, err := m.Resolve("t1", true)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	write := func(name string, age time.Duration) {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		mtime := time.Now().Add(-age)
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatalf("chtimes %s: %v", name, err)
		}
	}

	write("old.txt", 2*time.Hour)
	write("new.png", time.Minute)
	write("report.pdf", time.Hour)
	write("ignore.bin", 0)

	artifacts, err := m.Artifacts("t1")
	if err != nil {
		t.Fatalf("Artifacts() error = %v", err)
	}

	if len(artifacts) != 3 {
		t.Fatalf("expected 3 artifacts (unknown ignored), got %d", len(artifacts))
	}
	if artifacts[0].Filename != "new.png" || artifacts[0].Type != ArtifactImage {
		t.Fatalf("expected newest first, got %+v", artifacts[0])
	}
	if artifacts[2].Filename != "old.txt" || artifacts[2].Type != ArtifactText {
		t.Fatalf("expected oldest last, got %+v", artifacts[2])
	}
}

func TestArtifactsForMissingWorkspace(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	artifacts, err := m.Artifacts("ghost")
	if err != nil {
		t.Fatalf("Artifacts() error = %v", err)
	}
	if len(artifacts) != 0 {
		t.Fatalf("expected empty listing, got %d", len(artifacts))
	}
}
