package apk

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/pithecene-io/playdl/apk/arsc"
	"github.com/pithecene-io/playdl/apk/axml"
)

// Alignment of stored entry data, and of stored native libraries.
const (
	DefaultAlignment = 4
	LibraryAlignment = 4096
)

// localHeaderLen is the fixed part of a zip local file header.
const localHeaderLen = 30

// ErrMergedClosed is returned by Merged.WriteTo after Close.
var ErrMergedClosed = errors.New("apk: merged package closed")

// Merged is a merged package ready to be written. It reads entries lazily
// from the bundle's modules, which must stay open until WriteTo returns.
type Merged struct {
	// Manifest is the base manifest, patched in place by PatchManifest.
	Manifest *axml.Document

	resources []byte
	files     []*zip.File

	mu     sync.Mutex
	closed bool
}

// Merge combines the bundle into one package. Base entries win over split
// entries of the same name; signature files are dropped since the merged
// package is unsigned.
func Merge(b *Bundle) (*Merged, error) {
	if b == nil || b.Base == nil {
		return nil, ErrNoBaseModule
	}

	m := &Merged{Manifest: b.Base.Manifest}
	seen := map[string]bool{ManifestEntry: true, ResourcesEntry: true}
	for _, mod := range b.Modules() {
		for _, f := range mod.Files() {
			if seen[f.Name] || isSignatureFile(f.Name) || strings.HasSuffix(f.Name, "/") {
				continue
			}
			seen[f.Name] = true
			m.files = append(m.files, f)
		}
	}

	res, err := mergeResources(b)
	if err != nil {
		return nil, err
	}
	m.resources = res
	return m, nil
}

func mergeResources(b *Bundle) ([]byte, error) {
	if b.Base.File(ResourcesEntry) == nil {
		return nil, nil
	}
	raw, err := b.Base.ReadEntry(ResourcesEntry)
	if err != nil {
		return nil, err
	}
	base, err := arsc.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("apk: base %s: %w", ResourcesEntry, err)
	}

	var splits []*arsc.Table
	for _, s := range b.Splits {
		if s.File(ResourcesEntry) == nil {
			continue
		}
		raw, err := s.ReadEntry(ResourcesEntry)
		if err != nil {
			return nil, err
		}
		t, err := arsc.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("apk: split %s %s: %w", s.Name(), ResourcesEntry, err)
		}
		splits = append(splits, t)
	}
	return arsc.Merge(base, splits...).Encode(), nil
}

func isSignatureFile(name string) bool {
	dir, file := path.Split(name)
	if dir != "META-INF/" {
		return false
	}
	upper := strings.ToUpper(file)
	switch {
	case upper == "MANIFEST.MF":
		return true
	case strings.HasSuffix(upper, ".SF"), strings.HasSuffix(upper, ".RSA"),
		strings.HasSuffix(upper, ".DSA"), strings.HasSuffix(upper, ".EC"):
		return true
	}
	return false
}

// Entries returns the names of the entries WriteTo will emit, in order.
func (m *Merged) Entries() []string {
	names := []string{ManifestEntry}
	if m.resources != nil {
		names = append(names, ResourcesEntry)
	}
	for _, f := range m.files {
		names = append(names, f.Name)
	}
	return names
}

// WriteTo writes the merged package to w. The manifest is written
// compressed, resources.arsc stored and aligned, and all other entries are
// copied without recompression.
func (m *Merged) WriteTo(w io.Writer) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrMergedClosed
	}

	cw := &countingWriter{w: w}
	zw := zip.NewWriter(cw)
	aw := &alignedWriter{zw: zw, cw: cw}

	if err := aw.deflate(ManifestEntry, m.Manifest.Encode()); err != nil {
		return cw.n, err
	}

	if m.resources != nil {
		if err := aw.store(ResourcesEntry, m.resources, DefaultAlignment); err != nil {
			return cw.n, err
		}
	}

	for _, f := range m.files {
		if err := aw.copyRaw(f); err != nil {
			return cw.n, err
		}
	}

	if err := zw.Close(); err != nil {
		return cw.n, fmt.Errorf("apk: finish package: %w", err)
	}
	return cw.n, nil
}

// Close drops references to the bundle. The bundle's modules are owned by
// whoever loaded them.
func (m *Merged) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.files = nil
	m.resources = nil
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// alignedWriter pads the extra field of stored entries so their data
// starts on an aligned offset. Every entry goes through CreateRaw so nothing
// is left buffered in a compressor when the next offset is computed.
type alignedWriter struct {
	zw *zip.Writer
	cw *countingWriter
}

func (a *alignedWriter) padding(name string, align int64) ([]byte, error) {
	if err := a.zw.Flush(); err != nil {
		return nil, err
	}
	dataStart := a.cw.n + localHeaderLen + int64(len(name))
	pad := (align - dataStart%align) % align
	return make([]byte, pad), nil
}

func (a *alignedWriter) deflate(name string, data []byte) error {
	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return fmt.Errorf("apk: write %s: %w", name, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("apk: write %s: %w", name, err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("apk: write %s: %w", name, err)
	}
	w, err := a.zw.CreateRaw(&zip.FileHeader{
		Name:               name,
		Method:             zip.Deflate,
		CRC32:              crc32.ChecksumIEEE(data),
		CompressedSize64:   uint64(buf.Len()),
		UncompressedSize64: uint64(len(data)),
	})
	if err != nil {
		return fmt.Errorf("apk: write %s: %w", name, err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("apk: write %s: %w", name, err)
	}
	return nil
}

func (a *alignedWriter) store(name string, data []byte, align int64) error {
	extra, err := a.padding(name, align)
	if err != nil {
		return fmt.Errorf("apk: write %s: %w", name, err)
	}
	fh := &zip.FileHeader{
		Name:               name,
		Method:             zip.Store,
		CRC32:              crc32.ChecksumIEEE(data),
		CompressedSize64:   uint64(len(data)),
		UncompressedSize64: uint64(len(data)),
		Extra:              extra,
	}
	w, err := a.zw.CreateRaw(fh)
	if err != nil {
		return fmt.Errorf("apk: write %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("apk: write %s: %w", name, err)
	}
	return nil
}

func (a *alignedWriter) copyRaw(f *zip.File) error {
	fh := f.FileHeader
	fh.Flags &^= 0x8
	fh.Extra = nil
	if fh.Method == zip.Store {
		align := int64(DefaultAlignment)
		if strings.HasSuffix(fh.Name, ".so") {
			align = LibraryAlignment
		}
		extra, err := a.padding(fh.Name, align)
		if err != nil {
			return fmt.Errorf("apk: copy %s: %w", fh.Name, err)
		}
		fh.Extra = extra
	}

	r, err := f.OpenRaw()
	if err != nil {
		return fmt.Errorf("apk: copy %s: %w", fh.Name, err)
	}
	w, err := a.zw.CreateRaw(&fh)
	if err != nil {
		return fmt.Errorf("apk: copy %s: %w", fh.Name, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("apk: copy %s: %w", fh.Name, err)
	}
	return nil
}
