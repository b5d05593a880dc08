package engine

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/anima-core/engine/renderer"
	"github.com/spaghettifunk/anima-core/engine/renderer/driver"
	"github.com/spaghettifunk/anima-core/engine/renderer/frame"
	"github.com/spaghettifunk/anima-core/engine/renderer/vulkan"
)

type ApplicationConfig struct {
	// The application name used in windowing, if applicable.
	Name string `toml:"name"`
	// Window starting position x axis, if applicable.
	StartPosX uint32 `toml:"start_x"`
	// Window starting position y axis, if applicable.
	StartPosY uint32 `toml:"start_y"`
	// Window starting width, if applicable.
	StartWidth uint32 `toml:"width"`
	// Window starting height, if applicable.
	StartHeight uint32 `toml:"height"`
	// One of debug, info, warn, error.
	LogLevel string `toml:"log_level"`
	// Root of the shader, image and scene files.
	AssetsDir string `toml:"assets_dir"`
	// Reload shaders and fire asset events when files change on disk.
	WatchAssets bool `toml:"watch_assets"`

	Renderer RendererConfig `toml:"renderer"`
}

type RendererConfig struct {
	FramesInFlight   int        `toml:"frames_in_flight"`
	FenceTimeout     Duration   `toml:"fence_timeout"`
	InitialSets      uint32     `toml:"initial_sets"`
	RenderScale      float32    `toml:"render_scale"`
	MeshVertex       string     `toml:"mesh_vertex"`
	MeshFragment     string     `toml:"mesh_fragment"`
	BackgroundShader string     `toml:"background"`
	SkyShader        string     `toml:"sky"`
	ClearColor       [4]float32 `toml:"clear_color"`
	Validation       bool       `toml:"validation"`
	VSync            bool       `toml:"vsync"`
}

// Duration decodes TOML strings such as "1s" or "250ms".
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func DefaultConfig() ApplicationConfig {
	fc := frame.DefaultConfig()
	return ApplicationConfig{
		Name:        "anima",
		StartPosX:   100,
		StartPosY:   100,
		StartWidth:  1280,
		StartHeight: 720,
		LogLevel:    "info",
		AssetsDir:   "assets",
		WatchAssets: true,
		Renderer: RendererConfig{
			FramesInFlight:   fc.FramesInFlight,
			FenceTimeout:     Duration(fc.FenceTimeout),
			InitialSets:      fc.InitialSets,
			RenderScale:      fc.RenderScale,
			MeshVertex:       "shaders/mesh.vert.spv",
			MeshFragment:     "shaders/mesh.frag.spv",
			BackgroundShader: "shaders/gradient.comp.spv",
			SkyShader:        "shaders/sky.comp.spv",
			ClearColor:       [4]float32{0, 0, 0, 1},
		},
	}
}

// LoadConfig reads path on top of DefaultConfig. A missing file yields the
// defaults.
func LoadConfig(path string) (ApplicationConfig, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return cfg, fmt.Errorf("%s:%d:%d: %w", path, row, col, err)
		}
		var serr *toml.StrictMissingError
		if errors.As(err, &serr) {
			return cfg, fmt.Errorf("%s: unknown keys:\n%s", path, serr.String())
		}
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c ApplicationConfig) validate() error {
	if c.StartWidth == 0 || c.StartHeight == 0 {
		return fmt.Errorf("window size must be non-zero, got %dx%d", c.StartWidth, c.StartHeight)
	}
	if c.Renderer.FramesInFlight < 1 {
		return fmt.Errorf("frames_in_flight must be at least 1, got %d", c.Renderer.FramesInFlight)
	}
	if c.Renderer.RenderScale <= 0 || c.Renderer.RenderScale > 1 {
		return fmt.Errorf("render_scale must be in (0, 1], got %g", c.Renderer.RenderScale)
	}
	return nil
}

func (c ApplicationConfig) frameConfig() frame.Config {
	fc := frame.DefaultConfig()
	fc.FramesInFlight = c.Renderer.FramesInFlight
	if c.Renderer.FenceTimeout > 0 {
		fc.FenceTimeout = time.Duration(c.Renderer.FenceTimeout)
	}
	if c.Renderer.InitialSets > 0 {
		fc.InitialSets = c.Renderer.InitialSets
	}
	fc.RenderScale = c.Renderer.RenderScale
	return fc
}

func (c ApplicationConfig) rendererConfig() renderer.Config {
	return renderer.Config{
		Frame:              c.frameConfig(),
		MeshVertexShader:   c.Renderer.MeshVertex,
		MeshFragmentShader: c.Renderer.MeshFragment,
		BackgroundShader:   c.Renderer.BackgroundShader,
		SkyShader:          c.Renderer.SkyShader,
		ClearColor:         driver.ClearColor(c.Renderer.ClearColor),
	}
}

func (c ApplicationConfig) deviceConfig() vulkan.Config {
	return vulkan.Config{
		ApplicationName: c.Name,
		Width:           c.StartWidth,
		Height:          c.StartHeight,
		Validation:      c.Renderer.Validation,
		VSync:           c.Renderer.VSync,
	}
}
