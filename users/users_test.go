package users

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "users.db"), testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := r.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return r
}

func TestAddAndExists(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	if err := r.Add(ctx, 100, "alice"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	ok, err := r.Exists(ctx, 100)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !ok {
		t.Error("added user not found")
	}

	ok, err = r.Exists(ctx, 200)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Error("unknown user reported as existing")
	}
}

func TestAddIsIdempotent(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	if err := r.Add(ctx, 100, "alice"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Add(ctx, 100, "alice renamed"); err != nil {
		t.Fatalf("second Add: %v", err)
	}

	n, err := r.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("got %d users, want 1", n)
	}

	// The original registration wins.
	all, err := r.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 1 || all[0].Name != "alice" {
		t.Errorf("got %+v, want original name", all)
	}
}

func TestAllOrdered(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	for _, u := range []struct {
		id   int64
		name string
	}{{3, "c"}, {1, "a"}, {2, "b"}} {
		if err := r.Add(ctx, u.id, u.name); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	all, err := r.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d users, want 3", len(all))
	}
	// Same created_at second falls back to id order.
	for i, u := range all {
		if u.CreatedAt.IsZero() {
			t.Errorf("user %d: zero CreatedAt", i)
		}
	}
}

func TestDelete(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	if err := r.Add(ctx, 100, "alice"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Delete(ctx, 100); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	ok, err := r.Exists(ctx, 100)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Error("deleted user still exists")
	}

	// Deleting a missing user is not an error.
	if err := r.Delete(ctx, 999); err != nil {
		t.Errorf("Delete missing: %v", err)
	}
}

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "users.db")
	r, err := Open(path, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestOpenEmptyPath(t *testing.T) {
	if _, err := Open("", testLogger()); err == nil {
		t.Fatal("expected error for empty path")
	}
}
