package assemble

import (
	"errors"
	"fmt"

	"github.com/pithecene-io/playdl/types"
)

var (
	// ErrNoFragments is returned for an empty fragment list.
	ErrNoFragments = errors.New("assemble: no fragments")
	// ErrUnsupportedType is returned for fragments other than BASE or SPLIT.
	ErrUnsupportedType = errors.New("assemble: unsupported fragment type")
	// ErrInvalidFragment is returned for fragments that cannot be written.
	ErrInvalidFragment = errors.New("assemble: invalid fragment")
)

// FragmentError identifies the fragment that failed validation.
type FragmentError struct {
	Name string
	Type types.FragmentType
	Err  error
}

func (e *FragmentError) Error() string {
	if errors.Is(e.Err, ErrUnsupportedType) {
		return fmt.Sprintf("%v: %s (%s)", ErrUnsupportedType, e.Type, e.Name)
	}
	return fmt.Sprintf("%v: %s: %v", ErrInvalidFragment, e.Name, e.Err)
}

func (e *FragmentError) Unwrap() error {
	if errors.Is(e.Err, ErrUnsupportedType) {
		return e.Err
	}
	return errors.Join(ErrInvalidFragment, e.Err)
}

// DownloadError wraps a failed fragment transfer.
type DownloadError struct {
	Name string
	Err  error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("assemble: download %s: %v", e.Name, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// Validate checks a fragment list before any transfer: it must be
// non-empty, contain only BASE and SPLIT fragments and use distinct plain
// file names.
func Validate(fragments []types.Fragment) error {
	if len(fragments) == 0 {
		return ErrNoFragments
	}
	seen := make(map[string]bool, len(fragments))
	for _, f := range fragments {
		if !f.Type.IsAssemblable() {
			return &FragmentError{Name: f.Name, Type: f.Type, Err: ErrUnsupportedType}
		}
		if err := f.Validate(); err != nil {
			return &FragmentError{Name: f.Name, Type: f.Type, Err: err}
		}
		name := fileName(f)
		if seen[name] {
			return &FragmentError{Name: f.Name, Type: f.Type, Err: errors.New("duplicate fragment name")}
		}
		seen[name] = true
	}
	return nil
}
