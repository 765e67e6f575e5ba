package render

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

type historyRow struct {
	Ts         time.Time `json:"ts"`
	Package    string    `json:"package"`
	Size       int64     `json:"size" render:"bytes"`
	DurationMS int64     `json:"duration_ms" render:"ms"`
	SHA256     string    `json:"sha256" render:"-"`
	note       string
}

type property struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{"table", FormatTable, false},
		{"yaml", FormatYAML, false},
		{"", "", false},
		{"xml", "", true},
		{"csv", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if err != nil && !strings.Contains(err.Error(), "json, table, or yaml") {
			t.Errorf("error should list valid formats: %v", err)
		}
	}
}

func render(t *testing.T, f Format, data any) string {
	t.Helper()
	var buf bytes.Buffer
	if err := NewRendererWithWriter(f, &buf).Render(data); err != nil {
		t.Fatalf("Render: %v", err)
	}
	return buf.String()
}

func TestRender_JSONAndYAMLIgnoreRenderTag(t *testing.T) {
	rows := []historyRow{{Package: "com.example.app", Size: 1_500_000, DurationMS: 1500, SHA256: "abc"}}

	js := render(t, FormatJSON, rows)
	for _, want := range []string{`"size": 1500000`, `"duration_ms": 1500`, `"sha256": "abc"`} {
		if !strings.Contains(js, want) {
			t.Errorf("json missing %s:\n%s", want, js)
		}
	}
	y := render(t, FormatYAML, property{Key: "Build.MODEL", Value: "Pixel 3a"})
	if !strings.Contains(y, "key: Build.MODEL") || !strings.Contains(y, "value: Pixel 3a") {
		t.Errorf("yaml = %s", y)
	}
}

func TestRender_TableHistory(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	got := render(t, FormatTable, []historyRow{
		{Ts: ts, Package: "com.example.app", Size: 1_500_000, DurationMS: 1500, SHA256: "deadbeef", note: "x"},
		{Package: "com.example.other", Size: 12},
	})

	lines := strings.Split(strings.TrimSpace(got), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), got)
	}
	if fields := strings.Fields(lines[0]); strings.Join(fields, " ") != "ts package size duration_ms" {
		t.Errorf("header = %q", lines[0])
	}
	for _, want := range []string{"2026-03-01T12:00:00Z", "1.4 MiB", "1.5s"} {
		if !strings.Contains(lines[1], want) {
			t.Errorf("row %q missing %q", lines[1], want)
		}
	}
	if !strings.Contains(lines[2], "12 B") || strings.Contains(lines[2], "0001-01-01") {
		t.Errorf("row = %q", lines[2])
	}
	if strings.Contains(got, "deadbeef") || strings.Contains(got, "note") {
		t.Errorf("hidden column rendered:\n%s", got)
	}
}

func TestRender_TableSingleStructWithNilPointer(t *testing.T) {
	type credential struct {
		Email string `json:"email"`
	}
	type response struct {
		Status     string      `json:"status"`
		Credential *credential `json:"credential"`
		Locales    []string    `json:"locales"`
	}
	got := render(t, FormatTable, &response{Status: "absent", Locales: []string{"en-US", "de-AT"}})
	if !strings.Contains(got, "status:") || !strings.Contains(got, "absent") {
		t.Errorf("missing status:\n%s", got)
	}
	if !strings.Contains(got, "credential:") {
		t.Errorf("nil pointer field dropped:\n%s", got)
	}
	if !strings.Contains(got, "en-US,de-AT") {
		t.Errorf("string list not joined:\n%s", got)
	}
}

func TestRender_TableMapSorted(t *testing.T) {
	got := render(t, FormatTable, map[string]string{"b": "2", "a": "1"})
	if strings.Index(got, "a:") > strings.Index(got, "b:") {
		t.Errorf("map keys not sorted:\n%s", got)
	}
}

func TestRender_TableEmptyAndScalarSlices(t *testing.T) {
	if got := render(t, FormatTable, []property{}); !strings.Contains(got, "(no results)") {
		t.Errorf("empty = %q", got)
	}
	got := render(t, FormatTable, []string{"armeabi-v7a", "arm64-v8a"})
	if !strings.Contains(got, "armeabi-v7a\n") || !strings.Contains(got, "arm64-v8a\n") {
		t.Errorf("scalar slice = %q", got)
	}
}

func TestTable_ForTUI(t *testing.T) {
	r := NewRendererWithWriter(FormatTable, &bytes.Buffer{})
	tbl := r.Table("device", []*property{{Key: "Build.MODEL", Value: "Pixel 3a"}})
	if tbl.Title != "device" || len(tbl.Headers) != 2 || tbl.Headers[0] != "key" {
		t.Errorf("table = %+v", tbl)
	}
	if len(tbl.Rows) != 1 || tbl.Rows[0][1] != "Pixel 3a" {
		t.Errorf("rows = %v", tbl.Rows)
	}
	if empty := r.Table("device", nil); len(empty.Headers) != 0 || len(empty.Rows) != 0 {
		t.Errorf("empty table = %+v", empty)
	}
}

func TestRenderTUI_Unsupported(t *testing.T) {
	r := NewRendererWithWriter(FormatTable, &bytes.Buffer{})
	if err := r.RenderTUI("device", "device", nil); err == nil {
		t.Error("expected error for unsupported view")
	}
}
