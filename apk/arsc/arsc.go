// Package arsc decodes, merges and encodes compiled resource tables
// (resources.arsc).
//
// Only what merging split tables into a base table needs is modeled: the
// global string pool, packages with their type and key pools, type specs
// and typed entry tables. Other package chunks are carried verbatim.
package arsc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf16"

	"github.com/pithecene-io/playdl/apk/axml"
)

// ErrMalformed is returned for tables that cannot be decoded.
var ErrMalformed = errors.New("arsc: malformed table")

// Chunk types.
const (
	chunkTable    = axml.ChunkTable
	chunkPool     = axml.ChunkStringPool
	chunkPackage  = 0x0200
	chunkType     = 0x0201
	chunkTypeSpec = 0x0202

	tableHeaderSize   = 12
	packageHeaderSize = 288
	typeHeaderBase    = 20
	typeSpecHeader    = 16
)

// Entry flags.
const (
	flagComplex  = 0x0001
	flagCompact  = 0x0008
	typeSparse   = 0x01
	typeOffset16 = 0x02

	noEntry   = 0xFFFFFFFF
	noEntry16 = 0xFFFF
)

// TypeString is the value type of global string pool references.
const TypeString = axml.TypeString

// Value is a typed value.
type Value struct {
	Type uint8
	Data uint32
}

// MapItem is one bag item of a complex entry.
type MapItem struct {
	Name  uint32
	Value Value
}

// Entry is one resource value for a configuration.
type Entry struct {
	Flags uint16
	// Key indexes the package key pool.
	Key uint32
	// Value is set for simple entries.
	Value Value
	// Parent and Items are set for complex entries.
	Parent uint32
	Items  []MapItem
}

// Complex reports whether the entry is a bag.
func (e *Entry) Complex() bool { return e.Flags&flagComplex != 0 }

// TypeSpec holds the configuration change flags for one type.
type TypeSpec struct {
	ID         uint8
	TypesCount uint16
	Flags      []uint32
}

// Type holds the entries of one type for one configuration. Entries are
// indexed by entry id; nil marks absence.
type Type struct {
	ID      uint8
	Config  []byte
	Entries []*Entry
}

// Package is one resource package.
type Package struct {
	ID           uint32
	Name         string
	TypeIDOffset uint32
	TypeNames    []string
	Keys         []string
	Specs        []*TypeSpec
	Types        []*Type
	// Extra holds unmodeled chunks (library, overlayable) verbatim.
	Extra [][]byte

	typesUTF8, keysUTF8 bool
	lastPublicType      uint32
	lastPublicKey       uint32
}

// Spec returns the spec for type id, or nil.
func (p *Package) Spec(id uint8) *TypeSpec {
	for _, s := range p.Specs {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// Table is a decoded resource table.
type Table struct {
	// Strings is the global value pool; the first len(Styles) are styled.
	Strings  []string
	Styles   [][]byte
	UTF8     bool
	Packages []*Package
}

// Package returns the package with id, or nil.
func (t *Table) Package(id uint32) *Package {
	for _, p := range t.Packages {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// Decode parses a resource table.
func Decode(b []byte) (*Table, error) {
	le := binary.LittleEndian
	if len(b) < tableHeaderSize || le.Uint16(b) != chunkTable {
		return nil, fmt.Errorf("%w: missing table header", ErrMalformed)
	}
	hsz := int(le.Uint16(b[2:]))
	size := int(le.Uint32(b[4:]))
	if size > len(b) || hsz < tableHeaderSize || hsz > size {
		return nil, fmt.Errorf("%w: table size %d", ErrMalformed, size)
	}

	t := &Table{}
	err := walkChunks(b[hsz:size], func(typ uint16, chunk []byte) error {
		switch typ {
		case chunkPool:
			pool, err := axml.DecodeStringPool(chunk)
			if err != nil {
				return err
			}
			t.Strings, t.Styles, t.UTF8 = pool.Strings, pool.Styles, pool.UTF8
		case chunkPackage:
			p, err := decodePackage(chunk)
			if err != nil {
				return err
			}
			t.Packages = append(t.Packages, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func walkChunks(b []byte, fn func(typ uint16, chunk []byte) error) error {
	le := binary.LittleEndian
	for off := 0; off < len(b); {
		if off+8 > len(b) {
			return fmt.Errorf("%w: truncated chunk at %d", ErrMalformed, off)
		}
		typ := le.Uint16(b[off:])
		csz := int(le.Uint32(b[off+4:]))
		if csz < 8 || off+csz > len(b) {
			return fmt.Errorf("%w: chunk 0x%04x size %d at %d", ErrMalformed, typ, csz, off)
		}
		if err := fn(typ, b[off:off+csz]); err != nil {
			return err
		}
		off += csz
	}
	return nil
}

func decodePackage(b []byte) (*Package, error) {
	le := binary.LittleEndian
	hsz := int(le.Uint16(b[2:]))
	if hsz < 284 || hsz > len(b) {
		return nil, fmt.Errorf("%w: package header size %d", ErrMalformed, hsz)
	}
	p := &Package{
		ID:             le.Uint32(b[8:]),
		Name:           decodeName(b[12:268]),
		lastPublicType: le.Uint32(b[272:]),
		lastPublicKey:  le.Uint32(b[280:]),
	}
	if hsz >= packageHeaderSize {
		p.TypeIDOffset = le.Uint32(b[284:])
	}
	typeStrings := int(le.Uint32(b[268:]))
	keyStrings := int(le.Uint32(b[276:]))

	err := walkChunks(b[hsz:], func(typ uint16, chunk []byte) error {
		off := hsz + offsetOf(b[hsz:], chunk)
		switch typ {
		case chunkPool:
			pool, err := axml.DecodeStringPool(chunk)
			if err != nil {
				return err
			}
			switch off {
			case typeStrings:
				p.TypeNames, p.typesUTF8 = pool.Strings, pool.UTF8
			case keyStrings:
				p.Keys, p.keysUTF8 = pool.Strings, pool.UTF8
			default:
				p.Extra = append(p.Extra, chunk)
			}
		case chunkTypeSpec:
			spec, err := decodeTypeSpec(chunk)
			if err != nil {
				return err
			}
			p.Specs = append(p.Specs, spec)
		case chunkType:
			ty, err := decodeType(chunk)
			if err != nil {
				return err
			}
			p.Types = append(p.Types, ty)
		default:
			p.Extra = append(p.Extra, chunk)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// offsetOf returns the offset of sub within parent. sub must alias parent.
func offsetOf(parent, sub []byte) int {
	return cap(parent) - cap(sub)
}

func decodeName(b []byte) string {
	units := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		u := binary.LittleEndian.Uint16(b[i:])
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units))
}

func decodeTypeSpec(b []byte) (*TypeSpec, error) {
	le := binary.LittleEndian
	hsz := int(le.Uint16(b[2:]))
	if hsz < typeSpecHeader || len(b) < hsz {
		return nil, fmt.Errorf("%w: short type spec", ErrMalformed)
	}
	count := int(le.Uint32(b[12:]))
	if hsz+4*count > len(b) {
		return nil, fmt.Errorf("%w: type spec flags overflow", ErrMalformed)
	}
	s := &TypeSpec{ID: b[8], TypesCount: le.Uint16(b[10:]), Flags: make([]uint32, count)}
	for i := range s.Flags {
		s.Flags[i] = le.Uint32(b[hsz+4*i:])
	}
	return s, nil
}

func decodeType(b []byte) (*Type, error) {
	le := binary.LittleEndian
	hsz := int(le.Uint16(b[2:]))
	if hsz < typeHeaderBase+4 || len(b) < hsz {
		return nil, fmt.Errorf("%w: short type", ErrMalformed)
	}
	flags := b[9]
	count := int(le.Uint32(b[12:]))
	entriesStart := int(le.Uint32(b[16:]))
	cfgSize := int(le.Uint32(b[typeHeaderBase:]))
	if cfgSize < 4 || typeHeaderBase+cfgSize > hsz {
		cfgSize = hsz - typeHeaderBase
	}
	t := &Type{
		ID:      b[8],
		Config:  append([]byte(nil), b[typeHeaderBase:typeHeaderBase+cfgSize]...),
		Entries: make([]*Entry, count),
	}
	if entriesStart > len(b) {
		return nil, fmt.Errorf("%w: entries start out of range", ErrMalformed)
	}

	type slot struct{ idx, off int }
	var slots []slot
	switch {
	case flags&typeSparse != 0:
		// count is the number of present entries; ids are explicit.
		t.Entries = nil
		maxIdx := -1
		for i := range count {
			o := hsz + 4*i
			if o+4 > len(b) {
				return nil, fmt.Errorf("%w: sparse index overflow", ErrMalformed)
			}
			idx := int(le.Uint16(b[o:]))
			slots = append(slots, slot{idx, int(le.Uint16(b[o+2:])) * 4})
			maxIdx = max(maxIdx, idx)
		}
		t.Entries = make([]*Entry, maxIdx+1)
	case flags&typeOffset16 != 0:
		for i := range count {
			o := hsz + 2*i
			if o+2 > len(b) {
				return nil, fmt.Errorf("%w: offset overflow", ErrMalformed)
			}
			if v := le.Uint16(b[o:]); v != noEntry16 {
				slots = append(slots, slot{i, int(v) * 4})
			}
		}
	default:
		for i := range count {
			o := hsz + 4*i
			if o+4 > len(b) {
				return nil, fmt.Errorf("%w: offset overflow", ErrMalformed)
			}
			if v := le.Uint32(b[o:]); v != noEntry {
				slots = append(slots, slot{i, int(v)})
			}
		}
	}

	for _, s := range slots {
		e, err := decodeEntry(b, entriesStart+s.off)
		if err != nil {
			return nil, err
		}
		t.Entries[s.idx] = e
	}
	return t, nil
}

func decodeEntry(b []byte, off int) (*Entry, error) {
	le := binary.LittleEndian
	if off+8 > len(b) {
		return nil, fmt.Errorf("%w: entry out of range", ErrMalformed)
	}
	size := le.Uint16(b[off:])
	flags := le.Uint16(b[off+2:])

	if flags&flagCompact != 0 {
		return &Entry{
			Flags: flags &^ (flagCompact | 0xFF00),
			Key:   uint32(size),
			Value: Value{Type: uint8(flags >> 8), Data: le.Uint32(b[off+4:])},
		}, nil
	}

	e := &Entry{Flags: flags, Key: le.Uint32(b[off+4:])}
	if flags&flagComplex == 0 {
		v := off + int(size)
		if v+8 > len(b) {
			return nil, fmt.Errorf("%w: value out of range", ErrMalformed)
		}
		e.Value = Value{Type: b[v+3], Data: le.Uint32(b[v+4:])}
		return e, nil
	}

	if off+16 > len(b) {
		return nil, fmt.Errorf("%w: map entry out of range", ErrMalformed)
	}
	e.Parent = le.Uint32(b[off+8:])
	count := int(le.Uint32(b[off+12:]))
	items := off + int(size)
	if items+12*count > len(b) {
		return nil, fmt.Errorf("%w: map items out of range", ErrMalformed)
	}
	e.Items = make([]MapItem, count)
	for i := range e.Items {
		m := b[items+12*i:]
		e.Items[i] = MapItem{Name: le.Uint32(m), Value: Value{Type: m[7], Data: le.Uint32(m[8:])}}
	}
	return e, nil
}
