package gplay

import (
	"fmt"
	"strings"
)

// Pair is one form field. Order is preserved on the wire.
type Pair struct {
	Key   string
	Value string
}

// JoinForm joins pairs as key=value separated by '&'.
//
// Values are sent verbatim: the auth endpoint expects the raw cookie and
// email values, not percent-encoded ones.
func JoinForm(pairs []Pair) string {
	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(p.Value)
	}
	return b.String()
}

// ParseKV parses a newline delimited key=value body. CR and LF both delimit
// lines, blank lines are skipped, values may contain '='. A line without '='
// makes the whole body malformed.
func ParseKV(body string) (map[string]string, error) {
	out := make(map[string]string)
	lines := strings.FieldsFunc(body, func(r rune) bool { return r == '\n' || r == '\r' })
	for i, line := range lines {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("gplay: malformed response line %d: no '='", i+1)
		}
		if key == "" {
			continue
		}
		out[key] = value
	}
	return out, nil
}
