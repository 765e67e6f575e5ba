// Package render provides output rendering for the playdl CLI.
//
// Format selection:
//   - If stdout is a terminal, default to table
//   - Otherwise default to json
//   - --format always overrides the default
//   - Invalid formats are errors
//
// Table cells honour a `render` struct tag: "bytes" prints a byte count with
// binary units, "ms" prints milliseconds as a duration, "-" hides the column.
// json and yaml output is never affected by the tag.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/playdl/cli/tui"
)

// Format represents an output format.
type Format string

// Supported formats.
const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format string. Empty leaves the choice to the caller.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatTable, FormatYAML, "":
		return f, nil
	default:
		return "", fmt.Errorf("invalid format: %q (must be json, table, or yaml)", s)
	}
}

// Renderer handles output formatting.
type Renderer struct {
	format Format
	out    io.Writer
}

// NewRenderer creates a stdout renderer from the --format flag.
func NewRenderer(c *cli.Context) (*Renderer, error) {
	format, err := ParseFormat(c.String("format"))
	if err != nil {
		return nil, err
	}
	if format == "" {
		format = FormatJSON
		if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
			format = FormatTable
		}
	}
	return &Renderer{format: format, out: os.Stdout}, nil
}

// NewRendererWithWriter creates a renderer writing to out.
func NewRendererWithWriter(format Format, out io.Writer) *Renderer {
	return &Renderer{format: format, out: out}
}

// Format returns the selected output format.
func (r *Renderer) Format() Format {
	return r.format
}

// Render outputs data in the configured format.
func (r *Renderer) Render(data any) error {
	switch r.format {
	case FormatJSON:
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(r.out)
		enc.SetIndent(2)
		return enc.Encode(data)
	case FormatTable:
		return r.renderTable(data)
	default:
		return fmt.Errorf("unknown format: %s", r.format)
	}
}

// RenderTUI shows a slice of rows in the read-only table TUI, with the
// same headers and cells as table output.
func (r *Renderer) RenderTUI(viewType, title string, data any) error {
	if !tui.IsTUISupported(viewType) {
		return fmt.Errorf("--tui is not supported for %s", viewType)
	}
	return tui.Run(viewType, r.Table(title, data))
}

// Table converts a slice of structs into header and row cells.
func (r *Renderer) Table(title string, data any) tui.Table {
	t := tui.Table{Title: title}
	v := indirect(reflect.ValueOf(data))
	if v.Kind() != reflect.Slice || v.Len() == 0 {
		return t
	}
	cols := columnsOf(indirect(v.Index(0)).Type())
	for _, c := range cols {
		t.Headers = append(t.Headers, c.name)
	}
	for i := range v.Len() {
		t.Rows = append(t.Rows, rowOf(indirect(v.Index(i)), cols))
	}
	return t
}

func (r *Renderer) renderTable(data any) error {
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	v := indirect(reflect.ValueOf(data))
	switch v.Kind() {
	case reflect.Slice:
		if v.Len() == 0 {
			_, err := fmt.Fprintln(w, "(no results)")
			return err
		}
		t := r.Table("", data)
		if len(t.Headers) == 0 {
			for i := range v.Len() {
				_, _ = fmt.Fprintln(w, cell(v.Index(i), ""))
			}
			return nil
		}
		_, _ = fmt.Fprintln(w, strings.Join(t.Headers, "\t"))
		for _, row := range t.Rows {
			_, _ = fmt.Fprintln(w, strings.Join(row, "\t"))
		}
	case reflect.Struct:
		for _, c := range columnsOf(v.Type()) {
			_, _ = fmt.Fprintf(w, "%s:\t%s\n", c.name, cell(v.Field(c.index), c.format))
		}
	case reflect.Map:
		keys := make([]string, 0, v.Len())
		byKey := make(map[string]reflect.Value, v.Len())
		for it := v.MapRange(); it.Next(); {
			k := fmt.Sprint(it.Key().Interface())
			keys = append(keys, k)
			byKey[k] = it.Value()
		}
		sort.Strings(keys)
		for _, k := range keys {
			_, _ = fmt.Fprintf(w, "%s:\t%s\n", k, cell(byKey[k], ""))
		}
	default:
		_, _ = fmt.Fprintf(w, "%v\n", data)
	}
	return nil
}

type column struct {
	index  int
	name   string
	format string
}

// columnsOf lists the exported, visible fields of a struct type.
func columnsOf(t reflect.Type) []column {
	if t.Kind() != reflect.Struct {
		return nil
	}
	var cols []column
	for i := range t.NumField() {
		f := t.Field(i)
		format := f.Tag.Get("render")
		if !f.IsExported() || format == "-" {
			continue
		}
		cols = append(cols, column{index: i, name: fieldName(f), format: format})
	}
	return cols
}

func rowOf(v reflect.Value, cols []column) []string {
	row := make([]string, len(cols))
	for i, c := range cols {
		row[i] = cell(v.Field(c.index), c.format)
	}
	return row
}

func fieldName(f reflect.StructField) string {
	if name, _, _ := strings.Cut(f.Tag.Get("json"), ","); name != "" && name != "-" {
		return name
	}
	return strings.ToLower(f.Name)
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func cell(v reflect.Value, format string) string {
	v = indirect(v)
	if !v.IsValid() {
		return ""
	}
	switch format {
	case "bytes":
		if v.CanInt() {
			return tui.HumanBytes(v.Int())
		}
	case "ms":
		if v.CanInt() {
			return (time.Duration(v.Int()) * time.Millisecond).String()
		}
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return "[]"
		}
		if v.Type().Elem().Kind() == reflect.String {
			parts := make([]string, v.Len())
			for i := range v.Len() {
				parts[i] = v.Index(i).String()
			}
			return strings.Join(parts, ",")
		}
		return fmt.Sprintf("[%d items]", v.Len())
	case reflect.Map:
		if v.Len() == 0 {
			return "{}"
		}
		return fmt.Sprintf("{%d keys}", v.Len())
	case reflect.Struct:
		if t, ok := v.Interface().(time.Time); ok {
			if t.IsZero() {
				return ""
			}
			return t.Format(time.RFC3339)
		}
		return "{...}"
	default:
		return fmt.Sprint(v.Interface())
	}
}
