package axml

// pending marks builder string references not yet assigned a pool index.
const pending = 0x40000000

// Builder assembles a Document from scratch. Attribute names carrying a
// resource id are placed first in the pool so the resource map lines up.
type Builder struct {
	idNames []string
	ids     []uint32
	idIndex map[string]uint32
	plain   []string
	index   map[string]uint32
	nsURI   uint32
	nsPfx   uint32
}

// NewBuilder creates a builder with the android namespace declared.
func NewBuilder() *Builder {
	b := &Builder{idIndex: map[string]uint32{}, index: map[string]uint32{}}
	b.nsPfx = b.ref("android")
	b.nsURI = b.ref(AndroidNamespace)
	return b
}

func (b *Builder) ref(s string) uint32 {
	if i, ok := b.index[s]; ok {
		return i
	}
	i := pending + uint32(len(b.plain))
	b.plain = append(b.plain, s)
	b.index[s] = i
	return i
}

func (b *Builder) idRef(name string, id uint32) uint32 {
	if i, ok := b.idIndex[name]; ok {
		return i
	}
	i := uint32(len(b.idNames))
	b.idNames = append(b.idNames, name)
	b.ids = append(b.ids, id)
	b.idIndex[name] = i
	return i
}

func (b *Builder) name(name string, id uint32) (ns, n uint32) {
	if id != 0 {
		return b.nsURI, b.idRef(name, id)
	}
	return NoIndex, b.ref(name)
}

// String returns a string-valued attribute. A non-zero id places it in the
// android namespace.
func (b *Builder) String(name string, id uint32, value string) Attribute {
	ns, n := b.name(name, id)
	v := b.ref(value)
	return Attribute{NS: ns, Name: n, Raw: v, Value: Value{Type: TypeString, Data: v}}
}

// Bool returns a boolean attribute.
func (b *Builder) Bool(name string, id uint32, value bool) Attribute {
	ns, n := b.name(name, id)
	var data uint32
	if value {
		data = 0xFFFFFFFF
	}
	return Attribute{NS: ns, Name: n, Raw: NoIndex, Value: Value{Type: TypeBoolean, Data: data}}
}

// Int returns a decimal integer attribute.
func (b *Builder) Int(name string, id uint32, value uint32) Attribute {
	ns, n := b.name(name, id)
	return Attribute{NS: ns, Name: n, Raw: NoIndex, Value: Value{Type: TypeIntDec, Data: value}}
}

// Element returns an element with the given attributes and children.
func (b *Builder) Element(name string, attrs []Attribute, children ...*Element) *Element {
	e := &Element{NS: NoIndex, Name: b.ref(name), Comment: NoIndex, EndComment: NoIndex, Attrs: attrs}
	for _, c := range children {
		e.Children = append(e.Children, c)
	}
	return e
}

// Document finalizes string indices and returns the document rooted at root.
// The builder must not be reused.
func (b *Builder) Document(root *Element) *Document {
	k := uint32(len(b.idNames))
	fix := func(v *uint32) {
		if *v != NoIndex && *v >= pending {
			*v = k + (*v - pending)
		}
	}
	var walk func(e *Element)
	walk = func(e *Element) {
		fix(&e.NS)
		fix(&e.Name)
		for i := range e.Attrs {
			a := &e.Attrs[i]
			fix(&a.NS)
			fix(&a.Name)
			fix(&a.Raw)
			if a.Value.Type == TypeString {
				fix(&a.Value.Data)
			}
		}
		for _, c := range e.Children {
			if ce, ok := c.(*Element); ok {
				walk(ce)
			}
		}
	}
	walk(root)
	pfx, uri := b.nsPfx, b.nsURI
	fix(&pfx)
	fix(&uri)

	strs := append(append([]string{}, b.idNames...), b.plain...)
	return &Document{
		Pool:        NewStringPool(strs, nil, false),
		ResourceMap: append([]uint32{}, b.ids...),
		Nodes: []Node{
			&Namespace{Comment: NoIndex, Prefix: pfx, URI: uri},
			root,
			&Namespace{End: true, Comment: NoIndex, Prefix: pfx, URI: uri},
		},
	}
}
