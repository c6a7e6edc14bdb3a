package localfs

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"credanchor/internal/domain"
	"credanchor/internal/infra/vault"
)

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	sealer, err := vault.NewSealer(bytes.Repeat([]byte{1}, 32))
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}
	root := t.TempDir()
	s, err := New(root, sealer)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s, root
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, root := newStore(t)

	handle, err := s.Store(ctx, []byte(`{"age":30,"name":"Alice"}`), domain.VaultMetadata{})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if !strings.HasPrefix(handle, Scheme+":") {
		t.Fatalf("unexpected handle %q", handle)
	}

	got, err := s.Retrieve(ctx, handle)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if string(got) != `{"age":30,"name":"Alice"}` {
		t.Fatalf("unexpected payload %q", got)
	}

	var files []string
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			files = append(files, path)
		}
		return err
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %v", files)
	}
	onDisk, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if bytes.Contains(onDisk, []byte("Alice")) {
		t.Fatal("payload stored in the clear")
	}
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	handle, err := s.Store(ctx, []byte("blob"), domain.VaultMetadata{})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := s.Delete(ctx, handle); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Retrieve(ctx, handle); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.Delete(ctx, handle); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestStore_DetectsCorruption(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	handle, err := s.Store(ctx, []byte("blob"), domain.VaultMetadata{})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	id, err := parseHandle(handle)
	if err != nil {
		t.Fatalf("parse handle: %v", err)
	}

	path := s.pathFor(id)
	if err := os.Chmod(path, 0o600); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	if err := os.WriteFile(path, []byte("tampered"), 0o600); err != nil {
		t.Fatalf("tamper: %v", err)
	}

	if _, err := s.Retrieve(ctx, handle); !errors.Is(err, domain.ErrVaultRead) {
		t.Fatalf("expected vault read error, got %v", err)
	}
}

func TestStore_RejectsForeignHandle(t *testing.T) {
	s, _ := newStore(t)
	if _, err := s.Retrieve(context.Background(), "mem:1234"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNew_RequiresSealer(t *testing.T) {
	if _, err := New(t.TempDir(), nil); err == nil {
		t.Fatal("expected error without sealer")
	}
}
