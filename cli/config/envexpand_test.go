package config

import (
	"strings"
	"testing"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("PLAYDL_T_SET", "hello")
	t.Setenv("PLAYDL_T_EMPTY", "")
	t.Setenv("PLAYDL_T_A", "alice")
	t.Setenv("PLAYDL_T_B", "bob")

	tests := []struct {
		name, in, want string
	}{
		{"set var", "value: ${PLAYDL_T_SET}", "value: hello"},
		{"unset var", "value: ${PLAYDL_T_UNSET}", "value: "},
		{"default when unset", "value: ${PLAYDL_T_UNSET:-fallback}", "value: fallback"},
		{"default ignored when set", "value: ${PLAYDL_T_SET:-fallback}", "value: hello"},
		{"default when empty", "value: ${PLAYDL_T_EMPTY:-fallback}", "value: fallback"},
		{"required present", "token: ${PLAYDL_T_SET:?token missing}", "token: hello"},
		{"multiple", "${PLAYDL_T_A}:${PLAYDL_T_B}", "alice:bob"},
		{"default with colon", "url: ${PLAYDL_T_UNSET:-redis://localhost:6379}", "url: redis://localhost:6379"},
		{"bare dollar untouched", "cost: $5 and $HOME", "cost: $5 and $HOME"},
		{"invalid name untouched", "${1BAD}", "${1BAD}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandEnv(tt.in)
			if err != nil {
				t.Fatalf("ExpandEnv(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ExpandEnv(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExpandEnv_RequiredMissing(t *testing.T) {
	t.Setenv("PLAYDL_T_EMPTY", "")

	_, err := ExpandEnv("a: ${PLAYDL_T_UNSET:?set the hook secret}\nb: ${PLAYDL_T_EMPTY:?}\n")
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"PLAYDL_T_UNSET", "set the hook secret", "PLAYDL_T_EMPTY", "required"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}
