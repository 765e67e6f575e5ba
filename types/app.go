package types

import (
	"fmt"
	"strings"
)

// FragmentType tags a package fragment.
type FragmentType string

// Fragment type constants. Only BASE and SPLIT can be assembled.
const (
	FragmentBase  FragmentType = "BASE"
	FragmentSplit FragmentType = "SPLIT"
	FragmentOBB   FragmentType = "OBB"
	FragmentPatch FragmentType = "PATCH"
)

// IsAssemblable reports whether the pipeline accepts this type.
func (t FragmentType) IsAssemblable() bool {
	return t == FragmentBase || t == FragmentSplit
}

// Fragment is one physically separate file of an installable package.
type Fragment struct {
	// Name is the file name used inside the working area.
	Name string `msgpack:"name" json:"name" yaml:"name"`
	// URL is the remote download location.
	URL string `msgpack:"url" json:"url" yaml:"url"`
	// Size is the declared size in bytes.
	Size int64 `msgpack:"size" json:"size" yaml:"size"`
	// Type is the fragment type tag.
	Type FragmentType `msgpack:"type" json:"type" yaml:"type"`
}

// Validate checks the fragment can be written into a working directory.
func (f Fragment) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("fragment name is required")
	}
	if f.Name == "." || f.Name == ".." || strings.ContainsAny(f.Name, `/\`) {
		return fmt.Errorf("fragment name %q must be a plain file name", f.Name)
	}
	if f.Size < 0 {
		return fmt.Errorf("fragment %s: negative size %d", f.Name, f.Size)
	}
	return nil
}

// PackageMetadata describes one catalog entry at its current version.
type PackageMetadata struct {
	PackageName string     `json:"package_name"`
	VersionName string     `json:"version_name"`
	VersionCode int64      `json:"version_code"`
	Free        bool       `json:"free"`
	OfferType   int32      `json:"offer_type"`
	Fragments   []Fragment `json:"fragments"`
}

// App is a resolved package ready for download.
type App struct {
	PackageName string     `json:"package_name"`
	Version     string     `json:"version"`
	VersionCode int64      `json:"version_code,omitempty"`
	Fragments   []Fragment `json:"fragments"`
}

// TotalSize returns the sum of declared fragment sizes.
func (a *App) TotalSize() int64 {
	var total int64
	for _, f := range a.Fragments {
		total += f.Size
	}
	return total
}
