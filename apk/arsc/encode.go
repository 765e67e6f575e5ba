package arsc

import (
	"cmp"
	"encoding/binary"
	"slices"
	"unicode/utf16"

	"github.com/pithecene-io/playdl/apk/axml"
)

// Encode serializes the table. Types are written with dense 32-bit entry
// offsets and no compact entries.
func (t *Table) Encode() []byte {
	le := binary.LittleEndian
	out := make([]byte, 0, 1<<16)
	out = le.AppendUint16(out, chunkTable)
	out = le.AppendUint16(out, tableHeaderSize)
	out = le.AppendUint32(out, 0)
	out = le.AppendUint32(out, uint32(len(t.Packages)))

	out = append(out, axml.EncodeStringPool(t.Strings, t.Styles, t.UTF8)...)
	for _, p := range t.Packages {
		out = p.encode(out)
	}
	le.PutUint32(out[4:], uint32(len(out)))
	return out
}

func (p *Package) encode(out []byte) []byte {
	le := binary.LittleEndian
	start := len(out)

	out = le.AppendUint16(out, chunkPackage)
	out = le.AppendUint16(out, packageHeaderSize)
	out = le.AppendUint32(out, 0)
	out = le.AppendUint32(out, p.ID)
	name := make([]byte, 256)
	for i, u := range utf16.Encode([]rune(p.Name)) {
		if 2*i+2 > len(name)-2 {
			break
		}
		le.PutUint16(name[2*i:], u)
	}
	out = append(out, name...)
	typeStringsAt := len(out)
	out = le.AppendUint32(out, 0)
	out = le.AppendUint32(out, p.lastPublicType)
	keyStringsAt := len(out)
	out = le.AppendUint32(out, 0)
	out = le.AppendUint32(out, p.lastPublicKey)
	out = le.AppendUint32(out, p.TypeIDOffset)

	le.PutUint32(out[typeStringsAt:], uint32(len(out)-start))
	out = append(out, axml.EncodeStringPool(p.TypeNames, nil, p.typesUTF8)...)
	le.PutUint32(out[keyStringsAt:], uint32(len(out)-start))
	out = append(out, axml.EncodeStringPool(p.Keys, nil, p.keysUTF8)...)

	for _, c := range p.Extra {
		out = append(out, c...)
	}

	for _, spec := range p.sortedSpecs() {
		out = spec.encode(out)
		for _, ty := range p.Types {
			if ty.ID == spec.ID {
				out = ty.encode(out)
			}
		}
	}
	// Types without a spec are still emitted so nothing is lost.
	for _, ty := range p.Types {
		if p.Spec(ty.ID) == nil {
			out = ty.encode(out)
		}
	}

	le.PutUint32(out[start+4:], uint32(len(out)-start))
	return out
}

func (p *Package) sortedSpecs() []*TypeSpec {
	specs := slices.Clone(p.Specs)
	slices.SortStableFunc(specs, func(a, b *TypeSpec) int { return cmp.Compare(a.ID, b.ID) })
	return specs
}

func (s *TypeSpec) encode(out []byte) []byte {
	le := binary.LittleEndian
	out = le.AppendUint16(out, chunkTypeSpec)
	out = le.AppendUint16(out, typeSpecHeader)
	out = le.AppendUint32(out, uint32(typeSpecHeader+4*len(s.Flags)))
	out = append(out, s.ID, 0)
	out = le.AppendUint16(out, s.TypesCount)
	out = le.AppendUint32(out, uint32(len(s.Flags)))
	for _, f := range s.Flags {
		out = le.AppendUint32(out, f)
	}
	return out
}

func (t *Type) encode(out []byte) []byte {
	le := binary.LittleEndian
	start := len(out)
	hsz := typeHeaderBase + len(t.Config)
	entriesStart := hsz + 4*len(t.Entries)

	out = le.AppendUint16(out, chunkType)
	out = le.AppendUint16(out, uint16(hsz))
	out = le.AppendUint32(out, 0)
	out = append(out, t.ID, 0, 0, 0)
	out = le.AppendUint32(out, uint32(len(t.Entries)))
	out = le.AppendUint32(out, uint32(entriesStart))
	out = append(out, t.Config...)

	offsetsAt := len(out)
	out = append(out, make([]byte, 4*len(t.Entries))...)

	var body []byte
	for i, e := range t.Entries {
		if e == nil {
			le.PutUint32(out[offsetsAt+4*i:], noEntry)
			continue
		}
		le.PutUint32(out[offsetsAt+4*i:], uint32(len(body)))
		body = e.encode(body)
	}
	out = append(out, body...)
	le.PutUint32(out[start+4:], uint32(len(out)-start))
	return out
}

func (e *Entry) encode(out []byte) []byte {
	le := binary.LittleEndian
	if !e.Complex() {
		out = le.AppendUint16(out, 8)
		out = le.AppendUint16(out, e.Flags)
		out = le.AppendUint32(out, e.Key)
		return appendValue(out, e.Value)
	}
	out = le.AppendUint16(out, 16)
	out = le.AppendUint16(out, e.Flags)
	out = le.AppendUint32(out, e.Key)
	out = le.AppendUint32(out, e.Parent)
	out = le.AppendUint32(out, uint32(len(e.Items)))
	for _, m := range e.Items {
		out = le.AppendUint32(out, m.Name)
		out = appendValue(out, m.Value)
	}
	return out
}

func appendValue(out []byte, v Value) []byte {
	out = binary.LittleEndian.AppendUint16(out, 8)
	out = append(out, 0, v.Type)
	return binary.LittleEndian.AppendUint32(out, v.Data)
}
