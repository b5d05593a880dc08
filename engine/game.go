package engine

import (
	"github.com/spaghettifunk/anima-core/engine/assets"
	"github.com/spaghettifunk/anima-core/engine/core"
	"github.com/spaghettifunk/anima-core/engine/renderer"
)

// Context is what the engine hands to the game callbacks.
type Context struct {
	Renderer *renderer.Renderer
	Assets   *assets.AssetManager
	Events   *core.EventBus
}

type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnRender          Render
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

type Initialize func(ctx *Context) error
type Update func(deltaTime float64) error

// Render submits the drawables of the current frame to r.
type Render func(r *renderer.Renderer, deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
