package device

import (
	"errors"
	"slices"
	"testing"
)

type fakeGL struct {
	initErr    error
	configs    []GLConfig
	exts       map[ESVersion]string
	panicOn    ESVersion
	created    []int
	released   int
	terminated bool
}

func (f *fakeGL) Initialize() error            { return f.initErr }
func (f *fakeGL) Configs() ([]GLConfig, error) { return f.configs, nil }
func (f *fakeGL) Terminate() error             { f.terminated = true; return nil }

func (f *fakeGL) CreateContext(cfg GLConfig, v ESVersion) (GLContext, error) {
	if v == f.panicOn {
		panic("driver crash")
	}
	f.created = append(f.created, cfg.ID)
	return &fakeContext{gl: f, exts: f.exts[v]}, nil
}

type fakeContext struct {
	gl   *fakeGL
	exts string
}

func (c *fakeContext) Extensions() string { return c.exts }
func (c *fakeContext) Release()           { c.gl.released++ }

func TestProbeExtensions_FiltersConfigs(t *testing.T) {
	gl := &fakeGL{
		configs: []GLConfig{
			{ID: 1, Pbuffer: true, ES1: true},
			{ID: 2, Pbuffer: true, SlowCaveat: true, ES2: true},
			{ID: 3, Pbuffer: false, ES2: true},
			{ID: 4, Pbuffer: true, ES1: true, ES2: true},
		},
		exts: map[ESVersion]string{
			ES1: "GL_B GL_A",
			ES2: "GL_C  GL_A",
		},
	}

	got := ProbeExtensions(gl)
	if want := []string{"GL_A", "GL_B", "GL_C"}; !slices.Equal(got, want) {
		t.Errorf("extensions = %v, want %v", got, want)
	}
	if want := []int{1, 4, 4}; !slices.Equal(gl.created, want) {
		t.Errorf("contexts created for %v, want %v", gl.created, want)
	}
	if gl.released != len(gl.created) {
		t.Errorf("released %d of %d contexts", gl.released, len(gl.created))
	}
	if !gl.terminated {
		t.Error("display not terminated")
	}
}

func TestProbeExtensions_Degrades(t *testing.T) {
	if got := ProbeExtensions(nil); got == nil || len(got) != 0 {
		t.Errorf("nil GL = %v, want empty non-nil", got)
	}

	gl := &fakeGL{initErr: errors.New("no display")}
	if got := ProbeExtensions(gl); len(got) != 0 {
		t.Errorf("init failure = %v, want empty", got)
	}
}

func TestProbeExtensions_RecoversFromDriverPanic(t *testing.T) {
	gl := &fakeGL{
		configs: []GLConfig{
			{ID: 1, Pbuffer: true, ES1: true, ES2: true},
		},
		exts:    map[ESVersion]string{ES1: "GL_A"},
		panicOn: ES2,
	}

	got := ProbeExtensions(gl)
	if !slices.Equal(got, []string{"GL_A"}) {
		t.Errorf("extensions = %v, want [GL_A]", got)
	}
	if !gl.terminated {
		t.Error("display must be terminated even when the driver panics")
	}
}
