package arsc

import (
	"bytes"
	"encoding/binary"
)

// Merge folds the split tables into base and returns base.
//
// Entries are matched by package id, type id and configuration. An entry a
// split provides for a configuration base already has is used only when
// base lacks that entry; configurations base lacks are added whole. Key
// names are remapped into base's key pool and global string references are
// rebuilt into a single pool with styled strings first.
func Merge(base *Table, splits ...*Table) *Table {
	tables := append([]*Table{base}, splits...)
	remaps := rebuildGlobalPool(base, tables)

	for i, split := range splits {
		remap := remaps[i+1]
		for _, sp := range split.Packages {
			remapStrings(sp, remap)
			bp := base.Package(sp.ID)
			if bp == nil {
				base.Packages = append(base.Packages, sp)
				continue
			}
			mergePackage(bp, sp)
		}
	}
	return base
}

// rebuildGlobalPool replaces base's global pool with the union of all
// tables' pools and returns, per table, old index to new index. Base must be
// tables[0]; its values are remapped in place.
func rebuildGlobalPool(base *Table, tables []*Table) [][]uint32 {
	remaps := make([][]uint32, len(tables))
	for i, t := range tables {
		remaps[i] = make([]uint32, len(t.Strings))
	}

	var (
		strs   []string
		styles [][]byte
		owners []int
	)
	// Styled strings are never deduplicated.
	for i, t := range tables {
		for j := range min(len(t.Styles), len(t.Strings)) {
			remaps[i][j] = uint32(len(strs))
			strs = append(strs, t.Strings[j])
			styles = append(styles, t.Styles[j])
			owners = append(owners, i)
		}
	}
	index := make(map[string]uint32)
	for i, t := range tables {
		for j := min(len(t.Styles), len(t.Strings)); j < len(t.Strings); j++ {
			s := t.Strings[j]
			idx, ok := index[s]
			if !ok {
				idx = uint32(len(strs))
				strs = append(strs, s)
				index[s] = idx
			}
			remaps[i][j] = idx
		}
	}

	// Span tags reference the same pool.
	for k := range styles {
		styles[k] = remapSpans(styles[k], remaps[owners[k]])
	}

	for _, p := range base.Packages {
		remapStrings(p, remaps[0])
	}
	base.Strings, base.Styles = strs, styles
	return remaps
}

func remapSpans(spans []byte, remap []uint32) []byte {
	out := bytes.Clone(spans)
	for off := 0; off+12 <= len(out); off += 12 {
		name := binary.LittleEndian.Uint32(out[off:])
		if int(name) < len(remap) {
			binary.LittleEndian.PutUint32(out[off:], remap[name])
		}
	}
	return out
}

// remapStrings rewrites global string references in p's values.
func remapStrings(p *Package, remap []uint32) {
	fix := func(v *Value) {
		if v.Type == TypeString && int(v.Data) < len(remap) {
			v.Data = remap[v.Data]
		}
	}
	for _, ty := range p.Types {
		for _, e := range ty.Entries {
			if e == nil {
				continue
			}
			if e.Complex() {
				for i := range e.Items {
					fix(&e.Items[i].Value)
				}
			} else {
				fix(&e.Value)
			}
		}
	}
}

func mergePackage(base, split *Package) {
	keyIndex := make(map[string]uint32, len(base.Keys))
	for i, k := range base.Keys {
		if _, ok := keyIndex[k]; !ok {
			keyIndex[k] = uint32(i)
		}
	}
	keyRemap := make([]uint32, len(split.Keys))
	for i, k := range split.Keys {
		idx, ok := keyIndex[k]
		if !ok {
			idx = uint32(len(base.Keys))
			base.Keys = append(base.Keys, k)
			keyIndex[k] = idx
		}
		keyRemap[i] = idx
	}

	for i := len(base.TypeNames); i < len(split.TypeNames); i++ {
		base.TypeNames = append(base.TypeNames, split.TypeNames[i])
	}

	for _, ss := range split.Specs {
		bs := base.Spec(ss.ID)
		if bs == nil {
			base.Specs = append(base.Specs, &TypeSpec{ID: ss.ID, TypesCount: ss.TypesCount, Flags: append([]uint32(nil), ss.Flags...)})
			continue
		}
		for len(bs.Flags) < len(ss.Flags) {
			bs.Flags = append(bs.Flags, 0)
		}
		for j, f := range ss.Flags {
			bs.Flags[j] |= f
		}
	}

	for _, st := range split.Types {
		for _, e := range st.Entries {
			if e != nil && int(e.Key) < len(keyRemap) {
				e.Key = keyRemap[e.Key]
			}
		}

		bt := base.findType(st.ID, st.Config)
		if bt == nil {
			base.Types = append(base.Types, st)
			if spec := base.Spec(st.ID); spec != nil {
				spec.TypesCount++
			}
			continue
		}
		for len(bt.Entries) < len(st.Entries) {
			bt.Entries = append(bt.Entries, nil)
		}
		for j, e := range st.Entries {
			if e != nil && bt.Entries[j] == nil {
				bt.Entries[j] = e
			}
		}
	}
}

func (p *Package) findType(id uint8, config []byte) *Type {
	for _, t := range p.Types {
		if t.ID == id && bytes.Equal(t.Config, config) {
			return t
		}
	}
	return nil
}
