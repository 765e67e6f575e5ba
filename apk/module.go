// Package apk loads split package bundles, merges them into a single
// package and patches the merged manifest.
package apk

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pithecene-io/playdl/apk/axml"
	"github.com/pithecene-io/playdl/iox"
)

// Entry names with special handling.
const (
	ManifestEntry  = "AndroidManifest.xml"
	ResourcesEntry = "resources.arsc"
)

// ErrNoBaseModule is returned when a bundle has no module without a split name.
var ErrNoBaseModule = errors.New("apk: bundle has no base module")

// Module is one opened package file.
type Module struct {
	Path string
	// Split is the split name from the manifest, "" for the base.
	Split    string
	Manifest *axml.Document

	zip *zip.ReadCloser
}

// OpenModule opens the package at path and decodes its manifest.
func OpenModule(path string) (*Module, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("apk: open %s: %w", filepath.Base(path), err)
	}
	m := &Module{Path: path, zip: zr}

	raw, err := m.ReadEntry(ManifestEntry)
	if err != nil {
		_ = zr.Close()
		return nil, err
	}
	doc, err := axml.Decode(raw)
	if err != nil {
		_ = zr.Close()
		return nil, fmt.Errorf("apk: %s: %w", filepath.Base(path), err)
	}
	m.Manifest = doc

	if root := doc.Root(); root != nil {
		if a, ok := root.Attr(func(a axml.Attribute) bool {
			return doc.AttrName(a) == "split" && doc.ResourceID(a) == 0
		}); ok {
			m.Split = doc.StringValue(a)
		}
	}
	return m, nil
}

// Name returns the split name, or "base".
func (m *Module) Name() string {
	if m.Split == "" {
		return "base"
	}
	return m.Split
}

// Files returns the module's zip entries.
func (m *Module) Files() []*zip.File { return m.zip.File }

// File returns the entry named name, or nil.
func (m *Module) File(name string) *zip.File {
	for _, f := range m.zip.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// ReadEntry returns the uncompressed content of entry name.
func (m *Module) ReadEntry(name string) ([]byte, error) {
	f := m.File(name)
	if f == nil {
		return nil, fmt.Errorf("apk: %s: missing %s", filepath.Base(m.Path), name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("apk: %s: open %s: %w", filepath.Base(m.Path), name, err)
	}
	defer iox.DiscardClose(rc)
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("apk: %s: read %s: %w", filepath.Base(m.Path), name, err)
	}
	return data, nil
}

// Close releases the underlying file.
func (m *Module) Close() error {
	return m.zip.Close()
}

// Bundle is a base module plus its splits.
type Bundle struct {
	Base   *Module
	Splits []*Module
}

// Modules returns base followed by the splits.
func (b *Bundle) Modules() []*Module {
	return append([]*Module{b.Base}, b.Splits...)
}

// LoadBundle opens every .apk file in dir. Each opened module is registered
// with closers before anything else can fail, so the caller releases them
// on every path.
func LoadBundle(dir string, closers *iox.Closers) (*Bundle, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("apk: read bundle dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ".apk") {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(paths)

	b := &Bundle{}
	for _, p := range paths {
		m, err := OpenModule(p)
		if err != nil {
			return nil, err
		}
		closers.Add(m)

		if m.Split != "" {
			b.Splits = append(b.Splits, m)
			continue
		}
		if b.Base != nil {
			return nil, fmt.Errorf("apk: two base modules: %s and %s", filepath.Base(b.Base.Path), filepath.Base(p))
		}
		b.Base = m
	}
	if b.Base == nil {
		return nil, ErrNoBaseModule
	}
	return b, nil
}
