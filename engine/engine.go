package engine

import (
	"fmt"
	"path/filepath"

	"github.com/spaghettifunk/anima-core/engine/assets"
	"github.com/spaghettifunk/anima-core/engine/core"
	"github.com/spaghettifunk/anima-core/engine/platform"
	"github.com/spaghettifunk/anima-core/engine/renderer"
	"github.com/spaghettifunk/anima-core/engine/renderer/vulkan"
)

var (
	_ assets.SceneUploader = (*renderer.Renderer)(nil)
	_ assets.SceneReleaser = (*renderer.Renderer)(nil)
	_ assets.EventPoster   = (*core.EventBus)(nil)
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       ApplicationConfig
	isRunning    bool
	isSuspended  bool

	events       *core.EventBus
	platform     *platform.Platform
	assetManager *assets.AssetManager
	device       *vulkan.Device
	renderer     *renderer.Renderer

	width    uint32
	height   uint32
	clock    *core.Clock
	metrics  *core.Metrics
	lastTime float64
}

func New(g *Game) (*Engine, error) {
	cfg := DefaultConfig()
	if g.ApplicationConfig != nil {
		cfg = *g.ApplicationConfig
	}
	core.SetLogLevel(core.ParseLogLevel(cfg.LogLevel))

	events := core.NewEventBus()
	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       cfg,
		events:       events,
		platform:     platform.New(events),
		assetManager: assets.NewAssetManager(cfg.AssetsDir),
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
		isRunning:    true,
		width:        cfg.StartWidth,
		height:       cfg.StartHeight,
	}, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing

	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e.onEvent)
	e.events.Register(core.EVENT_CODE_KEY_PRESSED, e.onKey)
	e.events.Register(core.EVENT_CODE_KEY_RELEASED, e.onKey)
	e.events.Register(core.EVENT_CODE_RESIZED, e.onResized)
	e.events.Register(core.EVENT_CODE_ASSET_CHANGED, e.onAssetChanged)

	if err := e.platform.Startup(platform.WindowConfig{
		Title:  e.config.Name,
		X:      e.config.StartPosX,
		Y:      e.config.StartPosY,
		Width:  e.config.StartWidth,
		Height: e.config.StartHeight,
	}); err != nil {
		return err
	}

	if err := e.assetManager.Initialize(); err != nil {
		return err
	}
	if e.config.WatchAssets {
		if err := e.assetManager.Watch(e.events); err != nil {
			core.LogWarn("asset watching disabled: %s", err)
		}
	}

	dev, err := vulkan.New(e.platform.Window, e.config.deviceConfig())
	if err != nil {
		return fmt.Errorf("failed to create the Vulkan device: %w", err)
	}
	e.device = dev

	r, err := renderer.New(dev, e.assetManager.Shaders, e.platform, e.config.rendererConfig())
	if err != nil {
		return err
	}
	e.renderer = r

	if e.gameInstance.FnInitialize != nil {
		ctx := &Context{Renderer: r, Assets: e.assetManager, Events: e.events}
		if err := e.gameInstance.FnInitialize(ctx); err != nil {
			return err
		}
	}
	if e.gameInstance.FnOnResize != nil {
		e.width, e.height = e.platform.FramebufferSize()
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	var reportTimer float64

	for e.isRunning {
		if !e.platform.PumpMessages() {
			e.isRunning = false
		}
		e.events.Dispatch()

		if e.isSuspended {
			e.platform.WaitEvents()
			continue
		}
		if !e.isRunning {
			break
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStartTime := platform.GetAbsoluteTime()

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				core.LogError("Game update failed, shutting down: %s", err)
				return err
			}
		}

		if err := e.drawFrame(delta); err != nil {
			if core.IsFatal(err) {
				core.LogError("Rendering failed, shutting down: %s", err)
				return err
			}
			core.LogWarn("frame failed: %s", err)
		}

		frameElapsedTime := platform.GetAbsoluteTime() - frameStartTime
		e.metrics.Update(frameElapsedTime)

		reportTimer += delta
		if reportTimer >= 5 {
			stats := e.renderer.Stats()
			core.LogDebug("fps %.1f, frame %.2fms, %d draws, %d triangles",
				e.metrics.FPS(), e.metrics.FrameTime(), stats.DrawCalls, stats.Triangles)
			reportTimer = 0
		}
		e.lastTime = currentTime
	}
	return nil
}

func (e *Engine) drawFrame(delta float64) error {
	if err := e.renderer.BeginFrame(); err != nil {
		return err
	}
	if e.gameInstance.FnRender != nil {
		if err := e.gameInstance.FnRender(e.renderer, delta); err != nil {
			// The frame has begun and must still be submitted.
			core.LogError("Game render failed: %s", err)
		}
	}
	return e.renderer.EndFrame()
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	e.assetManager.Close()

	var err error
	if e.renderer != nil {
		if e.gameInstance.FnShutdown != nil {
			if gerr := e.gameInstance.FnShutdown(); gerr != nil {
				core.LogError("game shutdown: %s", gerr)
			}
		}
		err = e.renderer.Shutdown()
	}
	if e.device != nil {
		e.device.Destroy()
	}
	e.platform.Shutdown()
	return err
}

// Quit asks the main loop to stop after the current frame. Safe to call
// from any goroutine.
func (e *Engine) Quit() {
	e.events.Post(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
}

func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onEvent(context core.EventContext) bool {
	if context.Type == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning = false
		return true
	}
	return false
}

func (e *Engine) onKey(context core.EventContext) bool {
	ke, ok := context.Data.(core.KeyEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return false
	}
	if context.Type != core.EVENT_CODE_KEY_PRESSED {
		return false
	}

	switch ke.KeyCode {
	case core.KEY_ESCAPE:
		e.events.Fire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
		return true
	case core.KEY_R:
		core.LogInfo("Rebuilding pipelines...")
		if err := e.renderer.BuildPipelines(); err != nil {
			core.LogError("pipeline rebuild failed: %s", err)
		}
	}
	return false
}

func (e *Engine) onResized(context core.EventContext) bool {
	se, ok := context.Data.(core.ResizeEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return false
	}
	if se.Width == e.width && se.Height == e.height {
		return false
	}
	e.width, e.height = se.Width, se.Height
	core.LogDebug("Window resize: %d, %d", se.Width, se.Height)

	if se.Width == 0 || se.Height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return false
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	e.renderer.RequestResize()
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(se.Width, se.Height); err != nil {
			core.LogError("%s", err)
		}
	}
	// Let the game listen too.
	return false
}

// onAssetChanged rebuilds the material pipelines when one of their shaders
// changes. The background effect is only built at startup.
func (e *Engine) onAssetChanged(context core.EventContext) bool {
	ae, ok := context.Data.(core.AssetEvent)
	if !ok {
		return false
	}
	if !e.usesShader(ae.Path) {
		return false
	}
	core.LogInfo("shader %s changed, rebuilding pipelines", ae.Path)
	if err := e.renderer.BuildPipelines(); err != nil {
		core.LogError("pipeline rebuild failed: %s", err)
	}
	return false
}

func (e *Engine) usesShader(path string) bool {
	path = filepath.ToSlash(filepath.Clean(path))
	for _, s := range []string{e.config.Renderer.MeshVertex, e.config.Renderer.MeshFragment} {
		if filepath.ToSlash(filepath.Clean(s)) == path {
			return true
		}
	}
	return false
}
