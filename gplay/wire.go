package gplay

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// errMalformed is returned for undecodable protobuf payloads.
var errMalformed = errors.New("gplay: malformed protobuf payload")

// message builds a protobuf message field by field.
type message []byte

func (m message) str(num protowire.Number, v string) message {
	if v == "" {
		return m
	}
	m = protowire.AppendTag(m, num, protowire.BytesType)
	return protowire.AppendString(m, v)
}

func (m message) strs(num protowire.Number, vs []string) message {
	for _, v := range vs {
		m = protowire.AppendTag(m, num, protowire.BytesType)
		m = protowire.AppendString(m, v)
	}
	return m
}

func (m message) varint(num protowire.Number, v uint64) message {
	m = protowire.AppendTag(m, num, protowire.VarintType)
	return protowire.AppendVarint(m, v)
}

func (m message) boolean(num protowire.Number, v bool) message {
	return m.varint(num, protowire.EncodeBool(v))
}

func (m message) fixed64(num protowire.Number, v uint64) message {
	m = protowire.AppendTag(m, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(m, v)
}

func (m message) embed(num protowire.Number, sub message) message {
	m = protowire.AppendTag(m, num, protowire.BytesType)
	return protowire.AppendBytes(m, sub)
}

// field is one decoded protobuf field.
type field struct {
	num   protowire.Number
	typ   protowire.Type
	bytes []byte
	value uint64
}

// fields decodes the top level fields of b in wire order.
func fields(b []byte) ([]field, error) {
	var out []field
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", errMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.value, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			f.value, n = protowire.ConsumeFixed64(b)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(b)
			f.value = uint64(v)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", errMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		out = append(out, f)
	}
	return out, nil
}

// decoded indexes fields by number for lookups.
type decoded map[protowire.Number][]field

func decode(b []byte) (decoded, error) {
	fs, err := fields(b)
	if err != nil {
		return nil, err
	}
	d := make(decoded, len(fs))
	for _, f := range fs {
		d[f.num] = append(d[f.num], f)
	}
	return d, nil
}

func (d decoded) has(num protowire.Number) bool { return len(d[num]) > 0 }

func (d decoded) str(num protowire.Number) string {
	fs := d[num]
	if len(fs) == 0 {
		return ""
	}
	return string(fs[len(fs)-1].bytes)
}

func (d decoded) uint(num protowire.Number) uint64 {
	fs := d[num]
	if len(fs) == 0 {
		return 0
	}
	return fs[len(fs)-1].value
}

func (d decoded) sub(num protowire.Number) (decoded, error) {
	fs := d[num]
	if len(fs) == 0 {
		return decoded{}, nil
	}
	return decode(fs[len(fs)-1].bytes)
}

func (d decoded) subs(num protowire.Number) ([]decoded, error) {
	fs := d[num]
	out := make([]decoded, 0, len(fs))
	for _, f := range fs {
		m, err := decode(f.bytes)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// path walks nested single messages.
func (d decoded) path(nums ...protowire.Number) (decoded, error) {
	cur := d
	for _, num := range nums {
		next, err := cur.sub(num)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}
