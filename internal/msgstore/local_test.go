package msgstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func TestLocalFileStore_PutGetDelete(t *testing.T) {
	store, err := NewLocalFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalFileStore() error = %v", err)
	}
	ctx := context.Background()

	if err := store.Put(ctx, "m-1", []byte("hello")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	data, err := store.Get(ctx, "m-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("Get() = %q, want hello", data)
	}

	if err := store.Delete(ctx, "m-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, "m-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "m-1"); err != nil {
		t.Errorf("second Delete() error = %v, want nil", err)
	}
}

func TestLocalFileStore_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "bodies")
	if _, err := NewLocalFileStore(dir); err != nil {
		t.Fatalf("NewLocalFileStore() error = %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("expected directory %s to exist", dir)
	}
}

func TestLocalFileStore_RejectsInvalidRef(t *testing.T) {
	store, _ := NewLocalFileStore(t.TempDir())
	for _, ref := range []string{"", "../x", "a/b", `a\b`} {
		if err := store.Put(context.Background(), ref, []byte("x")); err == nil {
			t.Errorf("Put(%q) expected error", ref)
		}
	}
}

func TestLocalFileStore_ConcurrentPut(t *testing.T) {
	store, _ := NewLocalFileStore(t.TempDir())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ref := fmt.Sprintf("m-%d", i)
			if err := store.Put(ctx, ref, []byte(ref)); err != nil {
				t.Errorf("Put(%s) error = %v", ref, err)
			}
		}(i)
	}
	wg.Wait()

	for i := range 20 {
		ref := fmt.Sprintf("m-%d", i)
		data, err := store.Get(ctx, ref)
		if err != nil || string(data) != ref {
			t.Errorf("Get(%s) = %q, %v", ref, data, err)
		}
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, Config{Path: t.TempDir()}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New(empty type) error = %v", err)
	}
	if _, ok := s.(*LocalFileStore); !ok {
		t.Errorf("New(empty type) = %T, want *LocalFileStore", s)
	}

	if _, err := New(ctx, Config{Type: "gcs"}, zerolog.Nop()); err == nil {
		t.Error("New(gcs) expected error")
	}
	if _, err := New(ctx, Config{Type: "s3"}, zerolog.Nop()); err == nil {
		t.Error("New(s3) without bucket expected error")
	}
}
