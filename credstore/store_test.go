package credstore

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pithecene-io/playdl/types"
)

func TestFileStore_ReadMissingIsAbsent(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	cred, err := s.Read(t.Context())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if cred != nil {
		t.Fatalf("Read = %+v, want nil", cred)
	}
	if filepath.Base(s.Path()) != "credentials.yaml" {
		t.Errorf("Path = %s, want credentials.yaml", s.Path())
	}
}

func TestFileStore_WriteReadOverwrite(t *testing.T) {
	s, _ := NewFileStore(t.TempDir(), "")
	ctx := t.Context()

	first := types.Credential{Email: "a@example.com", Token: "tok-a"}
	if err := s.Write(ctx, first); err != nil {
		t.Fatalf("Write: %v", err)
	}
	second := types.Credential{Email: "b@example.com", Token: "tok-b"}
	if err := s.Write(ctx, second); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := s.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got == nil || *got != second {
		t.Fatalf("Read = %+v, want %+v", got, second)
	}

	info, err := os.Stat(s.Path())
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("mode = %o, want 600", perm)
	}
}

func TestFileStore_MissingKeyIsAbsent(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewFileStore(dir, "creds")
	if err := os.WriteFile(filepath.Join(dir, "creds.yaml"), []byte("email: a@example.com\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := s.Read(t.Context())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != nil {
		t.Errorf("Read = %+v, want nil when token entry is missing", got)
	}
}

func TestFileStore_RejectsInvalidCredential(t *testing.T) {
	s, _ := NewFileStore(t.TempDir(), "")
	if err := s.Write(t.Context(), types.Credential{Email: "a@example.com"}); err == nil {
		t.Fatal("expected error writing credential without token")
	}
	if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
		t.Errorf("no file must be written for a rejected credential")
	}
}

func TestFileStore_Clear(t *testing.T) {
	s, _ := NewFileStore(t.TempDir(), "")
	ctx := t.Context()
	_ = s.Write(ctx, types.Credential{Email: "a@example.com", Token: "tok"})

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
	if got, _ := s.Read(ctx); got != nil {
		t.Errorf("Read after Clear = %+v", got)
	}
}

func TestFileStore_NoTornReads(t *testing.T) {
	s, _ := NewFileStore(t.TempDir(), "")
	ctx := t.Context()
	pairs := []types.Credential{
		{Email: "a@example.com", Token: "tok-a"},
		{Email: "b@example.com", Token: "tok-b"},
	}
	_ = s.Write(ctx, pairs[0])

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range 50 {
			_ = s.Write(ctx, pairs[i%2])
		}
	}()
	go func() {
		defer wg.Done()
		for range 50 {
			got, err := s.Read(ctx)
			if err != nil {
				t.Errorf("Read: %v", err)
				return
			}
			if got == nil {
				continue
			}
			if *got != pairs[0] && *got != pairs[1] {
				t.Errorf("torn read: %+v", got)
				return
			}
		}
	}()
	wg.Wait()
}

func TestNewFileStore_Validation(t *testing.T) {
	if _, err := NewFileStore("", ""); err == nil {
		t.Error("expected error for empty directory")
	}
	if _, err := NewFileStore(t.TempDir(), "../escape"); err == nil {
		t.Error("expected error for namespace with separators")
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := t.Context()
	s := NewMemoryStore(nil)
	if got, _ := s.Read(ctx); got != nil {
		t.Fatalf("empty store Read = %+v", got)
	}

	cred := types.Credential{Email: "a@example.com", Token: "tok"}
	if err := s.Write(ctx, cred); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read(ctx)
	if got == nil || *got != cred {
		t.Fatalf("Read = %+v", got)
	}

	// Mutating the returned value must not leak into the store.
	got.Token = "changed"
	again, _ := s.Read(ctx)
	if again.Token != "tok" {
		t.Errorf("store mutated through returned pointer")
	}
	if s.Writes() != 1 {
		t.Errorf("Writes = %d, want 1", s.Writes())
	}

	_ = s.Clear(ctx)
	if got, _ := s.Read(ctx); got != nil {
		t.Errorf("Read after Clear = %+v", got)
	}
}
