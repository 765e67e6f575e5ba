// Package device builds the DeviceProfile the remote service uses to
// authorize requests.
//
// Building is deterministic for identical device state: the profile is
// derived from a Source describing the host device plus a fixed set of
// client and version constants that are always present.
package device

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pithecene-io/playdl/types"
)

// Service compatibility constants.
const (
	Client               = "android-google"
	GSFVersion           = "203615037"
	VendingVersion       = "82201710"
	VendingVersionString = "22.0.17-21 [0] [PR] 332555730"
	Roaming              = "mobile-notroaming"
	TimeZone             = "UTC-10"
	CellOperator         = "310"
	SimOperator          = "38"
)

// Android configuration values compared when deriving boolean keys.
const (
	KeyboardQwerty       = 2
	NavigationDpad       = 2
	screenLayoutSizeMask = 0x0f
)

// BuildInfo describes the host firmware.
type BuildInfo struct {
	Device       string `yaml:"device"`
	Hardware     string `yaml:"hardware"`
	Radio        string `yaml:"radio"`
	Fingerprint  string `yaml:"fingerprint"`
	Brand        string `yaml:"brand"`
	SDK          int    `yaml:"sdk"`
	Release      string `yaml:"release"`
	Model        string `yaml:"model"`
	Manufacturer string `yaml:"manufacturer"`
	Product      string `yaml:"product"`
	ID           string `yaml:"id"`
	Bootloader   string `yaml:"bootloader"`
}

// Configuration is the input configuration of the device.
type Configuration struct {
	TouchScreen  int `yaml:"touchscreen"`
	Keyboard     int `yaml:"keyboard"`
	Navigation   int `yaml:"navigation"`
	ScreenLayout int `yaml:"screen_layout"`
}

// Display holds display metrics.
type Display struct {
	DensityDPI int `yaml:"density_dpi"`
	Width      int `yaml:"width"`
	Height     int `yaml:"height"`
}

// Info is everything a Source reports about the host device.
type Info struct {
	Build           BuildInfo     `yaml:"build"`
	Configuration   Configuration `yaml:"configuration"`
	Display         Display       `yaml:"display"`
	ABIs            []string      `yaml:"abis"`
	Features        []string      `yaml:"features"`
	Locales         []string      `yaml:"locales"`
	SharedLibraries []string      `yaml:"shared_libraries"`
	// GLESVersion is the packed required GL ES version (major<<16 | minor).
	GLESVersion int `yaml:"gl_es_version"`
}

// Source provides host device information.
type Source interface {
	// Info returns the device description.
	Info(ctx context.Context) (*Info, error)
	// GL returns the graphics prober, or nil when the host has no GL.
	GL() GL
}

// Build derives a DeviceProfile from src.
//
// Errors only when src cannot describe the device. A missing or failing GL
// implementation yields an empty extension list.
func Build(ctx context.Context, src Source) (*types.DeviceProfile, error) {
	if src == nil {
		return nil, errors.New("device: nil source")
	}
	info, err := src.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("device: query info: %w", err)
	}
	if info == nil {
		return nil, errors.New("device: source returned no info")
	}
	return FromInfo(info, ProbeExtensions(src.GL())), nil
}

// FromInfo assembles the profile for info with the given GL extensions.
func FromInfo(info *Info, glExtensions []string) *types.DeviceProfile {
	b := info.Build
	cfg := info.Configuration
	radio := b.Radio
	if radio == "" {
		radio = "unknown"
	}

	pb := types.NewProfileBuilder().
		Set("UserReadableName", b.Device+"-default").
		Set("Build.HARDWARE", b.Hardware).
		Set("Build.RADIO", radio).
		Set("Build.FINGERPRINT", b.Fingerprint).
		Set("Build.BRAND", b.Brand).
		Set("Build.DEVICE", b.Device).
		Set("Build.VERSION.SDK_INT", strconv.Itoa(b.SDK)).
		Set("Build.VERSION.RELEASE", b.Release).
		Set("Build.MODEL", b.Model).
		Set("Build.MANUFACTURER", b.Manufacturer).
		Set("Build.PRODUCT", b.Product).
		Set("Build.ID", b.ID).
		Set("Build.BOOTLOADER", b.Bootloader).
		Set("TouchScreen", strconv.Itoa(cfg.TouchScreen)).
		Set("Keyboard", strconv.Itoa(cfg.Keyboard)).
		Set("Navigation", strconv.Itoa(cfg.Navigation)).
		Set("ScreenLayout", strconv.Itoa(cfg.ScreenLayout&screenLayoutSizeMask)).
		Set("HasHardKeyboard", strconv.FormatBool(cfg.Keyboard == KeyboardQwerty)).
		Set("HasFiveWayNavigation", strconv.FormatBool(cfg.Navigation == NavigationDpad)).
		Set("Screen.Density", strconv.Itoa(info.Display.DensityDPI)).
		Set("Screen.Width", strconv.Itoa(info.Display.Width)).
		Set("Screen.Height", strconv.Itoa(info.Display.Height)).
		SetList("Platforms", info.ABIs).
		SetList("Features", nonEmpty(info.Features)).
		SetList("Locales", locales(info.Locales)).
		SetList("SharedLibraries", nonEmpty(info.SharedLibraries)).
		Set("GL.Version", strconv.Itoa(info.GLESVersion)).
		SetList("GL.Extensions", glExtensions)

	pb.Set("Client", Client).
		Set("GSF.version", GSFVersion).
		Set("Vending.version", VendingVersion).
		Set("Vending.versionString", VendingVersionString).
		Set("Roaming", Roaming).
		Set("TimeZone", TimeZone).
		Set("CellOperator", CellOperator).
		Set("SimOperator", SimOperator)

	return pb.Build()
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// locales drops empty entries and converts BCP 47 separators to underscores.
func locales(in []string) []string {
	out := nonEmpty(in)
	for i, l := range out {
		out[i] = strings.ReplaceAll(l, "-", "_")
	}
	return out
}
