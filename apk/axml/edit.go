package axml

// Well-known framework attribute resource ids.
const (
	AttrIDName              = 0x01010003
	AttrIDExtractNativeLibs = 0x010104ea
	AttrIDIsSplitRequired   = 0x01010591
)

// Well-known names.
const (
	AndroidNamespace   = "http://schemas.android.com/apk/res/android"
	ElementManifest    = "manifest"
	ElementApplication = "application"
	ElementMetaData    = "meta-data"
)

// String returns pool string idx.
func (d *Document) String(idx uint32) string { return d.Pool.Get(idx) }

// NameOf returns the element's tag name.
func (d *Document) NameOf(e *Element) string { return d.String(e.Name) }

// ResourceID returns the framework resource id bound to an attribute name,
// or 0 when the name has none.
func (d *Document) ResourceID(a Attribute) uint32 {
	if int(a.Name) < len(d.ResourceMap) {
		return d.ResourceMap[a.Name]
	}
	return 0
}

// AttrName returns the attribute's local name.
func (d *Document) AttrName(a Attribute) string { return d.String(a.Name) }

// StringValue returns the attribute's string value: the raw string when
// present, else the typed string value, else "".
func (d *Document) StringValue(a Attribute) string {
	if a.Raw != NoIndex {
		return d.String(a.Raw)
	}
	if a.Value.Type == TypeString {
		return d.String(a.Value.Data)
	}
	return ""
}

// Root returns the first top-level element.
func (d *Document) Root() *Element {
	for _, n := range d.Nodes {
		if e, ok := n.(*Element); ok {
			return e
		}
	}
	return nil
}

// Child returns the first direct child element named name.
func (d *Document) Child(e *Element, name string) *Element {
	for _, n := range e.Children {
		if c, ok := n.(*Element); ok && d.NameOf(c) == name {
			return c
		}
	}
	return nil
}

// Attr returns the first attribute matching pred.
func (e *Element) Attr(pred func(Attribute) bool) (Attribute, bool) {
	for _, a := range e.Attrs {
		if pred(a) {
			return a, true
		}
	}
	return Attribute{}, false
}

// RemoveAttrs deletes attributes matching pred and returns how many were
// removed. Special attribute positions are kept consistent.
func (e *Element) RemoveAttrs(pred func(Attribute) bool) int {
	remap := make([]int, len(e.Attrs)+1)
	kept := e.Attrs[:0]
	for i, a := range e.Attrs {
		if pred(a) {
			continue
		}
		kept = append(kept, a)
		remap[i+1] = len(kept)
	}
	removed := len(e.Attrs) - len(kept)
	if removed == 0 {
		return 0
	}
	for i := len(kept); i < len(e.Attrs); i++ {
		e.Attrs[i] = Attribute{}
	}
	e.Attrs = kept
	for i, idx := range e.special {
		e.special[i] = remap[idx]
	}
	return removed
}

// RemoveChildren deletes direct child elements matching pred and returns
// how many were removed.
func (e *Element) RemoveChildren(pred func(*Element) bool) int {
	kept := make([]Node, 0, len(e.Children))
	for _, n := range e.Children {
		if c, ok := n.(*Element); ok && pred(c) {
			continue
		}
		kept = append(kept, n)
	}
	removed := len(e.Children) - len(kept)
	e.Children = kept
	return removed
}

// AddAttr appends an attribute.
func (e *Element) AddAttr(a Attribute) {
	e.Attrs = append(e.Attrs, a)
}
