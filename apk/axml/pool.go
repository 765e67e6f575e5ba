package axml

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"
)

// Chunk types shared by binary XML and resource tables.
const (
	ChunkStringPool  = 0x0001
	ChunkTable       = 0x0002
	ChunkXML         = 0x0003
	ChunkResourceMap = 0x0180

	chunkHeaderSize = 8
	poolHeaderSize  = 28

	poolFlagUTF8 = 0x100
)

// NoIndex marks an absent string reference.
const NoIndex = 0xFFFFFFFF

// StringPool is a decoded string pool chunk. The raw chunk bytes are kept
// so an unmodified pool re-encodes byte for byte.
type StringPool struct {
	Strings []string
	// Styles holds the raw span data per styled string, indexed like Strings.
	Styles [][]byte
	UTF8   bool
	Sorted bool

	raw []byte
}

// Raw returns the encoded chunk.
func (p *StringPool) Raw() []byte { return p.raw }

// Get returns string idx, or "" when idx is out of range.
func (p *StringPool) Get(idx uint32) string {
	if p == nil || idx == NoIndex || int(idx) >= len(p.Strings) {
		return ""
	}
	return p.Strings[idx]
}

// Index returns the first index of s, or -1.
func (p *StringPool) Index(s string) int {
	for i, v := range p.Strings {
		if v == s {
			return i
		}
	}
	return -1
}

// DecodeStringPool decodes the chunk at the start of b.
func DecodeStringPool(b []byte) (*StringPool, error) {
	if len(b) < poolHeaderSize {
		return nil, fmt.Errorf("%w: short string pool", ErrMalformed)
	}
	le := binary.LittleEndian
	if le.Uint16(b) != ChunkStringPool {
		return nil, fmt.Errorf("%w: chunk 0x%04x is not a string pool", ErrMalformed, le.Uint16(b))
	}
	headerSize := int(le.Uint16(b[2:]))
	size := int(le.Uint32(b[4:]))
	if size > len(b) || size < headerSize || headerSize < poolHeaderSize {
		return nil, fmt.Errorf("%w: string pool size %d", ErrMalformed, size)
	}
	b = b[:size]

	count := int(le.Uint32(b[8:]))
	styleCount := int(le.Uint32(b[12:]))
	flags := le.Uint32(b[16:])
	stringsStart := int(le.Uint32(b[20:]))
	stylesStart := int(le.Uint32(b[24:]))

	if headerSize+4*(count+styleCount) > size {
		return nil, fmt.Errorf("%w: string pool offsets overflow", ErrMalformed)
	}

	p := &StringPool{
		Strings: make([]string, count),
		UTF8:    flags&poolFlagUTF8 != 0,
		Sorted:  flags&1 != 0,
		raw:     b,
	}
	for i := range count {
		off := stringsStart + int(le.Uint32(b[headerSize+4*i:]))
		if off >= size {
			return nil, fmt.Errorf("%w: string %d offset out of range", ErrMalformed, i)
		}
		var (
			s   string
			err error
		)
		if p.UTF8 {
			s, err = decodeUTF8(b[off:])
		} else {
			s, err = decodeUTF16(b[off:])
		}
		if err != nil {
			return nil, fmt.Errorf("%w: string %d: %v", ErrMalformed, i, err)
		}
		p.Strings[i] = s
	}

	if styleCount > 0 {
		p.Styles = make([][]byte, styleCount)
		base := headerSize + 4*count
		for i := range styleCount {
			off := stylesStart + int(le.Uint32(b[base+4*i:]))
			if off > size {
				return nil, fmt.Errorf("%w: style %d offset out of range", ErrMalformed, i)
			}
			end := off
			for end+4 <= size && le.Uint32(b[end:]) != NoIndex {
				end += 12
			}
			if end+4 > size {
				return nil, fmt.Errorf("%w: style %d unterminated", ErrMalformed, i)
			}
			p.Styles[i] = b[off:end]
		}
	}
	return p, nil
}

func decodeUTF8(b []byte) (string, error) {
	_, n := utf8Len(b)
	if n == 0 {
		return "", fmt.Errorf("truncated length")
	}
	b = b[n:]
	size, m := utf8Len(b)
	if m == 0 || m+size > len(b) {
		return "", fmt.Errorf("truncated data")
	}
	return string(b[m : m+size]), nil
}

func utf8Len(b []byte) (int, int) {
	if len(b) < 1 {
		return 0, 0
	}
	if b[0]&0x80 == 0 {
		return int(b[0]), 1
	}
	if len(b) < 2 {
		return 0, 0
	}
	return int(b[0]&0x7f)<<8 | int(b[1]), 2
}

func decodeUTF16(b []byte) (string, error) {
	if len(b) < 2 {
		return "", fmt.Errorf("truncated length")
	}
	le := binary.LittleEndian
	n := int(le.Uint16(b))
	b = b[2:]
	if n&0x8000 != 0 {
		if len(b) < 2 {
			return "", fmt.Errorf("truncated length")
		}
		n = (n&0x7fff)<<16 | int(le.Uint16(b))
		b = b[2:]
	}
	if 2*n > len(b) {
		return "", fmt.Errorf("truncated data")
	}
	units := make([]uint16, n)
	for i := range units {
		units[i] = le.Uint16(b[2*i:])
	}
	return string(utf16.Decode(units)), nil
}

// EncodeStringPool builds a pool chunk. Styles, when present, must be
// indexed like strs and hold raw span entries (12 bytes each, unterminated).
func EncodeStringPool(strs []string, styles [][]byte, useUTF8 bool) []byte {
	le := binary.LittleEndian

	var data []byte
	offsets := make([]uint32, len(strs))
	for i, s := range strs {
		offsets[i] = uint32(len(data))
		if useUTF8 {
			data = appendUTF8(data, s)
		} else {
			data = appendUTF16(data, s)
		}
	}
	for len(data)%4 != 0 {
		data = append(data, 0)
	}

	var styleData []byte
	styleOffsets := make([]uint32, len(styles))
	for i, st := range styles {
		styleOffsets[i] = uint32(len(styleData))
		styleData = append(styleData, st...)
		styleData = le.AppendUint32(styleData, NoIndex)
	}
	if len(styles) > 0 {
		styleData = le.AppendUint32(styleData, NoIndex)
		styleData = le.AppendUint32(styleData, NoIndex)
	}

	stringsStart := poolHeaderSize + 4*(len(strs)+len(styles))
	stylesStart := 0
	if len(styles) > 0 {
		stylesStart = stringsStart + len(data)
	}
	size := stringsStart + len(data) + len(styleData)

	var flags uint32
	if useUTF8 {
		flags |= poolFlagUTF8
	}

	out := make([]byte, 0, size)
	out = le.AppendUint16(out, ChunkStringPool)
	out = le.AppendUint16(out, poolHeaderSize)
	out = le.AppendUint32(out, uint32(size))
	out = le.AppendUint32(out, uint32(len(strs)))
	out = le.AppendUint32(out, uint32(len(styles)))
	out = le.AppendUint32(out, flags)
	out = le.AppendUint32(out, uint32(stringsStart))
	out = le.AppendUint32(out, uint32(stylesStart))
	for _, o := range offsets {
		out = le.AppendUint32(out, o)
	}
	for _, o := range styleOffsets {
		out = le.AppendUint32(out, o)
	}
	out = append(out, data...)
	out = append(out, styleData...)
	return out
}

// NewStringPool encodes strs and returns the decoded pool.
func NewStringPool(strs []string, styles [][]byte, useUTF8 bool) *StringPool {
	cp := make([]string, len(strs))
	copy(cp, strs)
	return &StringPool{
		Strings: cp,
		Styles:  styles,
		UTF8:    useUTF8,
		raw:     EncodeStringPool(strs, styles, useUTF8),
	}
}

func appendUTF8(b []byte, s string) []byte {
	b = appendLen8(b, len(utf16.Encode([]rune(s))))
	b = appendLen8(b, len(s))
	b = append(b, s...)
	return append(b, 0)
}

func appendLen8(b []byte, n int) []byte {
	if n > 0x7f {
		return append(b, byte(n>>8)|0x80, byte(n))
	}
	return append(b, byte(n))
}

func appendUTF16(b []byte, s string) []byte {
	le := binary.LittleEndian
	units := utf16.Encode([]rune(s))
	n := len(units)
	if n > 0x7fff {
		b = le.AppendUint16(b, uint16(n>>16)|0x8000)
	}
	b = le.AppendUint16(b, uint16(n))
	for _, u := range units {
		b = le.AppendUint16(b, u)
	}
	return le.AppendUint16(b, 0)
}
