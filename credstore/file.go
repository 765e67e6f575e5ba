package credstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/playdl/types"
)

// FileStore keeps the credential in <dir>/<namespace>.yaml.
// Writes go to a temporary file in the same directory which is then renamed
// over the target, so readers only see complete documents.
type FileStore struct {
	path string
	mu   sync.Mutex
}

type fileDocument struct {
	Email string `yaml:"email,omitempty"`
	Token string `yaml:"aas_token,omitempty"`
}

// NewFileStore creates a file-backed store. An empty namespace uses
// DefaultNamespace.
func NewFileStore(dir, namespace string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("credstore: directory is required")
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if filepath.Base(namespace) != namespace {
		return nil, fmt.Errorf("credstore: invalid namespace %q", namespace)
	}
	return &FileStore{path: filepath.Join(dir, namespace+".yaml")}, nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Read implements Store.
func (s *FileStore) Read(_ context.Context) (*types.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credstore: read %s: %w", s.path, err)
	}

	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("credstore: parse %s: %w", s.path, err)
	}
	return fromEntries(doc.Email, doc.Token), nil
}

// Write implements Store.
func (s *FileStore) Write(_ context.Context, cred types.Credential) error {
	if err := cred.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(fileDocument{Email: cred.Email, Token: cred.Token})
	if err != nil {
		return fmt.Errorf("credstore: encode: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return writeAtomic(s.path, data)
}

// Clear implements Store.
func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("credstore: clear %s: %w", s.path, err)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("credstore: create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("credstore: temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("credstore: chmod: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("credstore: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("credstore: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("credstore: close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("credstore: commit: %w", err)
	}
	committed = true
	return nil
}

var _ Store = (*FileStore)(nil)
