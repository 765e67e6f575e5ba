// Package axml reads and writes Android binary XML documents, the compiled
// form of AndroidManifest.xml.
//
// Decoding keeps the string pool and resource map intact, so edits that only
// remove attributes or elements re-encode deterministically: encoding a
// decoded, unmodified document twice yields identical bytes.
package axml

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformed is returned for documents that cannot be decoded.
var ErrMalformed = errors.New("axml: malformed document")

// XML node chunk types.
const (
	ChunkStartNamespace = 0x0100
	ChunkEndNamespace   = 0x0101
	ChunkStartElement   = 0x0102
	ChunkEndElement     = 0x0103
	ChunkCData          = 0x0104

	nodeHeaderSize = 16
	attrSize       = 20
	attrExtSize    = 20
)

// Value types.
const (
	TypeNull      = 0x00
	TypeReference = 0x01
	TypeString    = 0x03
	TypeIntDec    = 0x10
	TypeIntHex    = 0x11
	TypeBoolean   = 0x12
)

// Value is a typed resource value.
type Value struct {
	Type uint8
	Data uint32
}

// Attribute is one element attribute. NS, Name and Raw are string pool
// indices; NS and Raw may be NoIndex.
type Attribute struct {
	NS    uint32
	Name  uint32
	Raw   uint32
	Value Value
}

// Node is an entry in an element's content: *Element, *Namespace or *CData.
type Node interface {
	encode(out []byte) []byte
}

// Element is a start/end element pair and its content.
type Element struct {
	Line, Comment       uint32
	EndLine, EndComment uint32
	NS, Name            uint32
	Attrs               []Attribute
	Children            []Node

	// special holds the 1-based positions of the id, class and style
	// attributes, 0 when absent.
	special [3]int
}

// Namespace is a start or end namespace node.
type Namespace struct {
	End           bool
	Line, Comment uint32
	Prefix, URI   uint32
}

// CData is character data.
type CData struct {
	Line, Comment uint32
	Data          uint32
	Value         Value
}

// Document is a decoded binary XML file.
type Document struct {
	Pool        *StringPool
	ResourceMap []uint32
	// Nodes is the top-level content, normally a namespace start, the root
	// element and a namespace end.
	Nodes []Node

	// extra holds chunks between the header and the first node that are
	// neither the pool nor the resource map, kept verbatim.
	extra [][]byte
}

// Decode parses a binary XML document.
func Decode(b []byte) (*Document, error) {
	le := binary.LittleEndian
	if len(b) < chunkHeaderSize || le.Uint16(b) != ChunkXML {
		return nil, fmt.Errorf("%w: missing XML header", ErrMalformed)
	}
	headerSize := int(le.Uint16(b[2:]))
	size := int(le.Uint32(b[4:]))
	if size > len(b) || headerSize < chunkHeaderSize || headerSize > size {
		return nil, fmt.Errorf("%w: XML size %d", ErrMalformed, size)
	}

	doc := &Document{}
	var stack []*Element
	appendNode := func(n Node) {
		if len(stack) == 0 {
			doc.Nodes = append(doc.Nodes, n)
			return
		}
		top := stack[len(stack)-1]
		top.Children = append(top.Children, n)
	}

	for off := headerSize; off < size; {
		if off+chunkHeaderSize > size {
			return nil, fmt.Errorf("%w: truncated chunk at %d", ErrMalformed, off)
		}
		typ := le.Uint16(b[off:])
		hsz := int(le.Uint16(b[off+2:]))
		csz := int(le.Uint32(b[off+4:]))
		if csz < chunkHeaderSize || off+csz > size || hsz > csz {
			return nil, fmt.Errorf("%w: chunk 0x%04x size %d at %d", ErrMalformed, typ, csz, off)
		}
		chunk := b[off : off+csz]

		switch typ {
		case ChunkStringPool:
			pool, err := DecodeStringPool(chunk)
			if err != nil {
				return nil, err
			}
			doc.Pool = pool
		case ChunkResourceMap:
			ids := make([]uint32, (csz-hsz)/4)
			for i := range ids {
				ids[i] = le.Uint32(chunk[hsz+4*i:])
			}
			doc.ResourceMap = ids
		case ChunkStartNamespace, ChunkEndNamespace:
			if hsz < nodeHeaderSize || csz < hsz+8 {
				return nil, fmt.Errorf("%w: namespace node at %d", ErrMalformed, off)
			}
			appendNode(&Namespace{
				End:     typ == ChunkEndNamespace,
				Line:    le.Uint32(chunk[8:]),
				Comment: le.Uint32(chunk[12:]),
				Prefix:  le.Uint32(chunk[hsz:]),
				URI:     le.Uint32(chunk[hsz+4:]),
			})
		case ChunkStartElement:
			el, err := decodeStartElement(chunk, hsz)
			if err != nil {
				return nil, fmt.Errorf("%w: element at %d: %v", ErrMalformed, off, err)
			}
			appendNode(el)
			stack = append(stack, el)
		case ChunkEndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("%w: unbalanced end element at %d", ErrMalformed, off)
			}
			if hsz < nodeHeaderSize || csz < hsz+8 {
				return nil, fmt.Errorf("%w: end element at %d", ErrMalformed, off)
			}
			top := stack[len(stack)-1]
			if le.Uint32(chunk[hsz+4:]) != top.Name {
				return nil, fmt.Errorf("%w: end element does not match start at %d", ErrMalformed, off)
			}
			top.EndLine = le.Uint32(chunk[8:])
			top.EndComment = le.Uint32(chunk[12:])
			stack = stack[:len(stack)-1]
		case ChunkCData:
			if hsz < nodeHeaderSize || csz < hsz+12 {
				return nil, fmt.Errorf("%w: cdata at %d", ErrMalformed, off)
			}
			appendNode(&CData{
				Line:    le.Uint32(chunk[8:]),
				Comment: le.Uint32(chunk[12:]),
				Data:    le.Uint32(chunk[hsz:]),
				Value:   decodeValue(chunk[hsz+4:]),
			})
		default:
			if len(doc.Nodes) > 0 {
				return nil, fmt.Errorf("%w: unexpected chunk 0x%04x at %d", ErrMalformed, typ, off)
			}
			doc.extra = append(doc.extra, chunk)
		}
		off += csz
	}

	if len(stack) != 0 {
		return nil, fmt.Errorf("%w: %d unclosed elements", ErrMalformed, len(stack))
	}
	if doc.Pool == nil {
		return nil, fmt.Errorf("%w: missing string pool", ErrMalformed)
	}
	return doc, nil
}

func decodeStartElement(chunk []byte, hsz int) (*Element, error) {
	le := binary.LittleEndian
	if hsz < nodeHeaderSize || len(chunk) < hsz+attrExtSize {
		return nil, errors.New("short element")
	}
	ext := chunk[hsz:]
	el := &Element{
		Line:    le.Uint32(chunk[8:]),
		Comment: le.Uint32(chunk[12:]),
		NS:      le.Uint32(ext),
		Name:    le.Uint32(ext[4:]),
	}
	start := int(le.Uint16(ext[8:]))
	stride := int(le.Uint16(ext[10:]))
	count := int(le.Uint16(ext[12:]))
	if stride < attrSize {
		return nil, fmt.Errorf("attribute size %d", stride)
	}
	if hsz+start+stride*count > len(chunk) {
		return nil, errors.New("attributes overflow chunk")
	}

	el.Attrs = make([]Attribute, count)
	for i := range count {
		a := chunk[hsz+start+stride*i:]
		el.Attrs[i] = Attribute{
			NS:    le.Uint32(a),
			Name:  le.Uint32(a[4:]),
			Raw:   le.Uint32(a[8:]),
			Value: decodeValue(a[12:]),
		}
	}
	for i := range el.special {
		if idx := int(le.Uint16(ext[14+2*i:])); idx <= count {
			el.special[i] = idx
		}
	}
	return el, nil
}

func decodeValue(b []byte) Value {
	return Value{Type: b[3], Data: binary.LittleEndian.Uint32(b[4:])}
}

func appendValue(out []byte, v Value) []byte {
	le := binary.LittleEndian
	out = le.AppendUint16(out, 8)
	out = append(out, 0, v.Type)
	return le.AppendUint32(out, v.Data)
}

// Encode serializes the document.
func (d *Document) Encode() []byte {
	le := binary.LittleEndian
	out := make([]byte, chunkHeaderSize, 4096)
	le.PutUint16(out, ChunkXML)
	le.PutUint16(out[2:], chunkHeaderSize)

	out = append(out, d.Pool.Raw()...)
	if len(d.ResourceMap) > 0 {
		out = le.AppendUint16(out, ChunkResourceMap)
		out = le.AppendUint16(out, chunkHeaderSize)
		out = le.AppendUint32(out, uint32(chunkHeaderSize+4*len(d.ResourceMap)))
		for _, id := range d.ResourceMap {
			out = le.AppendUint32(out, id)
		}
	}
	for _, c := range d.extra {
		out = append(out, c...)
	}
	for _, n := range d.Nodes {
		out = n.encode(out)
	}
	le.PutUint32(out[4:], uint32(len(out)))
	return out
}

func nodeHeader(out []byte, typ uint16, size int, line, comment uint32) []byte {
	le := binary.LittleEndian
	out = le.AppendUint16(out, typ)
	out = le.AppendUint16(out, nodeHeaderSize)
	out = le.AppendUint32(out, uint32(size))
	out = le.AppendUint32(out, line)
	return le.AppendUint32(out, comment)
}

func (n *Namespace) encode(out []byte) []byte {
	typ := uint16(ChunkStartNamespace)
	if n.End {
		typ = ChunkEndNamespace
	}
	out = nodeHeader(out, typ, nodeHeaderSize+8, n.Line, n.Comment)
	out = binary.LittleEndian.AppendUint32(out, n.Prefix)
	return binary.LittleEndian.AppendUint32(out, n.URI)
}

func (c *CData) encode(out []byte) []byte {
	out = nodeHeader(out, ChunkCData, nodeHeaderSize+12, c.Line, c.Comment)
	out = binary.LittleEndian.AppendUint32(out, c.Data)
	return appendValue(out, c.Value)
}

func (e *Element) encode(out []byte) []byte {
	le := binary.LittleEndian
	size := nodeHeaderSize + attrExtSize + attrSize*len(e.Attrs)
	out = nodeHeader(out, ChunkStartElement, size, e.Line, e.Comment)
	out = le.AppendUint32(out, e.NS)
	out = le.AppendUint32(out, e.Name)
	out = le.AppendUint16(out, attrExtSize)
	out = le.AppendUint16(out, attrSize)
	out = le.AppendUint16(out, uint16(len(e.Attrs)))
	for _, idx := range e.special {
		out = le.AppendUint16(out, uint16(idx))
	}
	for _, a := range e.Attrs {
		out = le.AppendUint32(out, a.NS)
		out = le.AppendUint32(out, a.Name)
		out = le.AppendUint32(out, a.Raw)
		out = appendValue(out, a.Value)
	}

	for _, c := range e.Children {
		out = c.encode(out)
	}

	out = nodeHeader(out, ChunkEndElement, nodeHeaderSize+8, e.EndLine, e.EndComment)
	out = le.AppendUint32(out, e.NS)
	return le.AppendUint32(out, e.Name)
}
