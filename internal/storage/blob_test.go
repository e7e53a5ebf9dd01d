package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T, quota int64) BlobStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "blobs.db")
	store, err := NewBlobStore(dbPath, quota)
	if err != nil {
		t.Fatalf("Failed to create blob store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBlobStore(t *testing.T) {
	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		store := newTestStore(t, 1024)

		if err := store.Set(ctx, "sessions", `[{"id":"a"}]`); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		value, err := store.Get(ctx, "sessions")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if value != `[{"id":"a"}]` {
			t.Errorf("Unexpected value: %s", value)
		}
	})

	t.Run("missing key", func(t *testing.T) {
		store := newTestStore(t, 1024)

		_, err := store.Get(ctx, "nope")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("overwrite replaces value", func(t *testing.T) {
		store := newTestStore(t, 1024)

		if err := store.Set(ctx, "model", "gemini-2.5-flash"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if err := store.Set(ctx, "model", "gemini-2.5-flash-lite"); err != nil {
			t.Fatalf("Overwrite failed: %v", err)
		}

		value, err := store.Get(ctx, "model")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if value != "gemini-2.5-flash-lite" {
			t.Errorf("Unexpected value: %s", value)
		}
	})

	t.Run("delete", func(t *testing.T) {
		store := newTestStore(t, 1024)

		if err := store.Set(ctx, "model", "gemini-2.5-flash"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if err := store.Delete(ctx, "model"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := store.Get(ctx, "model"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound after delete, got %v", err)
		}

		// Deleting a missing key is not an error
		if err := store.Delete(ctx, "model"); err != nil {
			t.Errorf("Delete of missing key failed: %v", err)
		}
	})
}

func TestBlobStoreQuota(t *testing.T) {
	ctx := context.Background()

	t.Run("oversized write rejected", func(t *testing.T) {
		store := newTestStore(t, 64)

		err := store.Set(ctx, "sessions", strings.Repeat("x", 65))
		if !errors.Is(err, ErrQuotaExceeded) {
			t.Errorf("Expected ErrQuotaExceeded, got %v", err)
		}
	})

	t.Run("existing data survives rejected write", func(t *testing.T) {
		store := newTestStore(t, 64)

		if err := store.Set(ctx, "sessions", "small"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		err := store.Set(ctx, "sessions", strings.Repeat("x", 100))
		if !errors.Is(err, ErrQuotaExceeded) {
			t.Fatalf("Expected ErrQuotaExceeded, got %v", err)
		}

		value, err := store.Get(ctx, "sessions")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if value != "small" {
			t.Errorf("Previous value corrupted by rejected write: %s", value)
		}
	})

	t.Run("replacement does not double count the old value", func(t *testing.T) {
		store := newTestStore(t, 64)

		if err := store.Set(ctx, "sessions", strings.Repeat("a", 60)); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		// 60 in place + 60 replacement fits because the old value is freed.
		if err := store.Set(ctx, "sessions", strings.Repeat("b", 60)); err != nil {
			t.Errorf("Replacement within quota failed: %v", err)
		}
	})

	t.Run("stored multibyte text counted in bytes", func(t *testing.T) {
		store := newTestStore(t, 40)

		// 15 Cyrillic runes are 30 bytes; a character-based count would
		// see 15 and let the next write through.
		if err := store.Set(ctx, "a", strings.Repeat("д", 15)); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		err := store.Set(ctx, "b", strings.Repeat("x", 11))
		if !errors.Is(err, ErrQuotaExceeded) {
			t.Errorf("Expected ErrQuotaExceeded with 30 bytes used, got %v", err)
		}
	})

	t.Run("quota spans all keys", func(t *testing.T) {
		store := newTestStore(t, 64)

		if err := store.Set(ctx, "a", strings.Repeat("a", 40)); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		err := store.Set(ctx, "b", strings.Repeat("b", 40))
		if !errors.Is(err, ErrQuotaExceeded) {
			t.Errorf("Expected ErrQuotaExceeded across keys, got %v", err)
		}
	})
}
