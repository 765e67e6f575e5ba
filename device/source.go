package device

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileDocument is the on-disk device description.
type fileDocument struct {
	Info `yaml:",inline"`
	GL   *StaticGL `yaml:"gl"`
}

// FileSource reads a device description from a YAML file on every call,
// so edits are picked up by a long-running broker.
type FileSource struct {
	path string
}

// NewFileSource creates a source for the YAML file at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Info implements Source.
func (s *FileSource) Info(_ context.Context) (*Info, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return &doc.Info, nil
}

// GL implements Source. Returns nil when the file declares no GL section
// or cannot be read.
func (s *FileSource) GL() GL {
	doc, err := s.load()
	if err != nil || doc.GL == nil {
		return nil
	}
	return doc.GL
}

func (s *FileSource) load() (*fileDocument, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read device file: %w", err)
	}
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse device file: %w", err)
	}
	return &doc, nil
}

// StaticSource serves a fixed description.
type StaticSource struct {
	Device Info
	Probe  GL
}

// Info implements Source.
func (s *StaticSource) Info(_ context.Context) (*Info, error) {
	info := s.Device
	return &info, nil
}

// GL implements Source.
func (s *StaticSource) GL() GL {
	if s.Probe == nil {
		return nil
	}
	return s.Probe
}

// Reference returns the built-in device used when no description is
// configured: a Pixel 3 on Android 9.
func Reference() *StaticSource {
	return &StaticSource{
		Device: Info{
			Build: BuildInfo{
				Device:       "blueline",
				Hardware:     "blueline",
				Radio:        "g845-00023-190318-B-5457439",
				Fingerprint:  "google/blueline/blueline:9/PQ3A.190801.002/5670241:user/release-keys",
				Brand:        "google",
				SDK:          28,
				Release:      "9",
				Model:        "Pixel 3",
				Manufacturer: "Google",
				Product:      "blueline",
				ID:           "PQ3A.190801.002",
				Bootloader:   "b1c1-0.1-5578427",
			},
			Configuration: Configuration{
				TouchScreen:  3,
				Keyboard:     1,
				Navigation:   1,
				ScreenLayout: 0x122,
			},
			Display: Display{DensityDPI: 440, Width: 1080, Height: 2028},
			ABIs:    []string{"arm64-v8a", "armeabi-v7a", "armeabi"},
			Features: []string{
				"android.hardware.audio.output",
				"android.hardware.bluetooth",
				"android.hardware.bluetooth_le",
				"android.hardware.camera",
				"android.hardware.camera.any",
				"android.hardware.camera.autofocus",
				"android.hardware.camera.flash",
				"android.hardware.camera.front",
				"android.hardware.faketouch",
				"android.hardware.fingerprint",
				"android.hardware.location",
				"android.hardware.location.gps",
				"android.hardware.location.network",
				"android.hardware.microphone",
				"android.hardware.nfc",
				"android.hardware.opengles.aep",
				"android.hardware.ram.normal",
				"android.hardware.screen.landscape",
				"android.hardware.screen.portrait",
				"android.hardware.sensor.accelerometer",
				"android.hardware.sensor.compass",
				"android.hardware.sensor.gyroscope",
				"android.hardware.sensor.light",
				"android.hardware.sensor.proximity",
				"android.hardware.telephony",
				"android.hardware.telephony.gsm",
				"android.hardware.touchscreen",
				"android.hardware.touchscreen.multitouch",
				"android.hardware.touchscreen.multitouch.distinct",
				"android.hardware.touchscreen.multitouch.jazzhand",
				"android.hardware.usb.accessory",
				"android.hardware.usb.host",
				"android.hardware.vulkan.level",
				"android.hardware.vulkan.version",
				"android.hardware.wifi",
				"android.hardware.wifi.direct",
				"android.software.app_widgets",
				"android.software.backup",
				"android.software.device_admin",
				"android.software.home_screen",
				"android.software.input_methods",
				"android.software.live_wallpaper",
				"android.software.managed_users",
				"android.software.midi",
				"android.software.print",
				"android.software.verified_boot",
				"android.software.voice_recognizers",
				"android.software.webview",
			},
			Locales: []string{
				"", "en-US", "en-GB", "de-DE", "es-ES", "fr-FR", "it-IT",
				"ja-JP", "ko-KR", "nl-NL", "pl-PL", "pt-BR", "ru-RU", "zh-CN", "zh-TW",
			},
			SharedLibraries: []string{
				"android.test.base",
				"android.test.mock",
				"android.test.runner",
				"com.android.future.usb.accessory",
				"com.android.location.provider",
				"com.android.media.remotedisplay",
				"com.android.mediadrm.signer",
				"com.google.android.gms",
				"com.google.android.maps",
				"javax.obex",
				"org.apache.http.legacy",
			},
			GLESVersion: 0x30002,
		},
		Probe: &StaticGL{
			ConfigList: []GLConfig{
				{ID: 1, Pbuffer: true, ES1: true, ES2: true},
				{ID: 2, Pbuffer: false, ES2: true},
			},
			ByVersion: map[ESVersion]string{
				ES1: "GL_OES_EGL_image GL_OES_EGL_sync GL_OES_compressed_ETC1_RGB8_texture " +
					"GL_OES_depth24 GL_OES_rgb8_rgba8 GL_OES_vertex_array_object",
				ES2: "GL_EXT_color_buffer_float GL_EXT_debug_marker GL_EXT_texture_format_BGRA8888 " +
					"GL_KHR_texture_compression_astc_ldr GL_OES_EGL_image GL_OES_EGL_image_external " +
					"GL_OES_compressed_ETC1_RGB8_texture GL_OES_depth24 GL_OES_texture_npot",
			},
		},
	}
}

var (
	_ Source = (*FileSource)(nil)
	_ Source = (*StaticSource)(nil)
)
