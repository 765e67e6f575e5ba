package types //nolint:revive // types is a valid package name

import (
	"regexp"
	"testing"
)

func TestVersion_Format(t *testing.T) {
	semver := regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.]+)?$`)
	if !semver.MatchString(Version) {
		t.Errorf("Version %q is not a valid semver", Version)
	}
	if ContractVersion != Version {
		t.Errorf("ContractVersion %q != Version %q", ContractVersion, Version)
	}
}

func TestContractCompatible(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"0.4.0", "0.4.0", true},
		{"0.4.0", "0.9.1", true},
		{"v1.2.0", "1.0.0", true},
		{"1.0.0", "0.4.0", false},
		{"", "0.4.0", false},
		{"", "", false},
	}
	for _, tt := range tests {
		if got := ContractCompatible(tt.a, tt.b); got != tt.want {
			t.Errorf("ContractCompatible(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
