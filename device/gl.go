package device

import (
	"slices"
	"strings"
)

// ESVersion selects the GL ES context client version.
type ESVersion int

// Supported context versions.
const (
	ES1 ESVersion = 1
	ES2 ESVersion = 2
)

// GLConfig summarizes one frame buffer configuration.
type GLConfig struct {
	ID int `yaml:"id"`
	// SlowCaveat marks configs the driver flags as slow.
	SlowCaveat bool `yaml:"slow"`
	// Pbuffer reports pixel-buffer surface support.
	Pbuffer bool `yaml:"pbuffer"`
	// ES1 and ES2 report renderable client versions.
	ES1 bool `yaml:"es1"`
	ES2 bool `yaml:"es2"`
}

// GL is the subset of an EGL implementation needed to enumerate extensions.
type GL interface {
	// Initialize opens the default display.
	Initialize() error
	// Configs lists the display's frame buffer configurations.
	Configs() ([]GLConfig, error)
	// CreateContext creates a context plus a pixel-buffer surface for cfg and
	// makes them current.
	CreateContext(cfg GLConfig, version ESVersion) (GLContext, error)
	// Terminate closes the display.
	Terminate() error
}

// GLContext is a current rendering context.
type GLContext interface {
	// Extensions returns the space separated GL_EXTENSIONS string.
	Extensions() string
	// Release unbinds and destroys the surface and context.
	Release()
}

// ProbeExtensions creates a throwaway context for every pbuffer capable,
// non-slow config and collects the extension strings reported for each ES
// version it can render. The display is always terminated.
//
// Never fails: a nil GL, an initialization error or a panicking driver
// yields whatever was collected so far, possibly nothing. The result is
// sorted and deduplicated.
func ProbeExtensions(gl GL) (exts []string) {
	if gl == nil {
		return []string{}
	}
	set := make(map[string]struct{})
	defer func() {
		if recover() != nil {
			exts = sortedKeys(set)
		}
	}()

	if err := gl.Initialize(); err != nil {
		return []string{}
	}
	defer func() { _ = gl.Terminate() }()

	configs, err := gl.Configs()
	if err != nil {
		return []string{}
	}
	for _, cfg := range configs {
		if cfg.SlowCaveat || !cfg.Pbuffer {
			continue
		}
		if cfg.ES1 {
			collect(gl, cfg, ES1, set)
		}
		if cfg.ES2 {
			collect(gl, cfg, ES2, set)
		}
	}
	return sortedKeys(set)
}

func collect(gl GL, cfg GLConfig, version ESVersion, set map[string]struct{}) {
	ctx, err := gl.CreateContext(cfg, version)
	if err != nil || ctx == nil {
		return
	}
	defer ctx.Release()
	for _, ext := range strings.Fields(ctx.Extensions()) {
		set[ext] = struct{}{}
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// StaticGL replays a recorded set of configs and per-version extension
// strings. Used by file-backed device descriptions.
type StaticGL struct {
	ConfigList []GLConfig           `yaml:"configs"`
	ByVersion  map[ESVersion]string `yaml:"extensions"`
}

// Initialize implements GL.
func (s *StaticGL) Initialize() error { return nil }

// Configs implements GL.
func (s *StaticGL) Configs() ([]GLConfig, error) { return s.ConfigList, nil }

// CreateContext implements GL.
func (s *StaticGL) CreateContext(_ GLConfig, version ESVersion) (GLContext, error) {
	return staticContext(s.ByVersion[version]), nil
}

// Terminate implements GL.
func (s *StaticGL) Terminate() error { return nil }

type staticContext string

func (c staticContext) Extensions() string { return string(c) }
func (c staticContext) Release()           {}
