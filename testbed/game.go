package testbed

import (
	"path/filepath"

	"github.com/spaghettifunk/anima-core/engine"
	"github.com/spaghettifunk/anima-core/engine/assets"
	"github.com/spaghettifunk/anima-core/engine/core"
	"github.com/spaghettifunk/anima-core/engine/math"
	"github.com/spaghettifunk/anima-core/engine/renderer"
	"github.com/spaghettifunk/anima-core/engine/renderer/components"
	"github.com/spaghettifunk/anima-core/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-core/engine/scene"
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	WorldCamera *components.Camera
	scenePath   string

	ctx    *engine.Context
	loaded *assets.LoadedScene
	// spinning is rotated around Y every frame, NoNode when the scene has
	// no node named "spin".
	spinning scene.NodeID
	angle    float32

	lights metadata.SceneData
	width  uint32
	height uint32

	reload bool
	// effect is the selected background effect, nextEffect asks Render to
	// advance it.
	effect     int
	nextEffect bool
}

var rotationSpeed float32 = 0.5

func NewTestGame(cfg engine.ApplicationConfig, scenePath string) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: &cfg,
			State: &gameState{
				scenePath: scenePath,
				spinning:  scene.NoNode,
				lights: metadata.SceneData{
					AmbientColor:      math.NewVec4(0.1, 0.1, 0.1, 1),
					SunlightDirection: math.NewVec4(0, 1, 0.5, 1),
					SunlightColor:     math.NewVec4(1, 1, 1, 1),
				},
			},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize(ctx *engine.Context) error {
	core.LogDebug("TestGame Initialize fn....")
	state := g.state()
	state.ctx = ctx

	state.WorldCamera = components.NewCamera()
	state.WorldCamera.SetPosition(math.NewVec3(0, 3, 10))
	state.WorldCamera.LookAt(math.NewVec3Zero())

	ctx.Events.Register(core.EVENT_CODE_ASSET_CHANGED, g.onAssetChanged)
	ctx.Events.Register(core.EVENT_CODE_KEY_PRESSED, g.onKey)

	g.loadScene()
	return nil
}

// loadScene replaces the current scene. A scene that fails to load leaves
// an empty graph so the frame still renders the background.
func (g *TestGame) loadScene() {
	state := g.state()
	if state.loaded != nil {
		state.loaded.Release(state.ctx.Renderer)
	}

	loaded, err := state.ctx.Assets.Scenes.LoadFile(state.scenePath, state.ctx.Renderer)
	if err != nil {
		core.LogError("failed to load scene %s: %s", state.scenePath, err)
	}
	state.loaded = loaded
	state.spinning = scene.NoNode
	if id, ok := loaded.Graph.FindByName("spin"); ok {
		state.spinning = id
	}
	core.LogInfo("scene %q loaded with %d nodes", loaded.Name, loaded.Graph.Len())
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.state()
	if state.reload {
		state.reload = false
		g.loadScene()
	}

	if state.spinning != scene.NoNode {
		state.angle += rotationSpeed * float32(deltaTime)
		node := state.loaded.Graph.Node(state.spinning)
		rotation := math.NewQuatFromAxisAngle(math.NewVec3(0, 1, 0), state.angle, false).ToMat4()
		local := rotation.Then(math.NewMat4Translation(node.Local.Translation()))
		state.loaded.Graph.SetLocal(state.spinning, local)
	}
	state.loaded.Graph.RefreshTransforms(math.NewMat4Identity())
	return nil
}

func (g *TestGame) Render(r *renderer.Renderer, deltaTime float64) error {
	state := g.state()
	if state.nextEffect {
		state.nextEffect = false
		state.effect = (state.effect + 1) % len(r.BackgroundEffects())
		if err := r.SetBackgroundEffect(state.effect); err != nil {
			return err
		}
		core.LogInfo("background effect %s", r.BackgroundEffect().Name)
	}
	r.SetSceneData(state.WorldCamera.SceneData(state.lights, state.width, state.height))
	for _, root := range state.loaded.Graph.Roots() {
		r.SubmitDrawable(state.loaded.Graph, root)
	}
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.state()
	state.width = width
	state.height = height
	return nil
}

func (g *TestGame) Shutdown() error {
	state := g.state()
	if state.loaded != nil {
		state.loaded.Release(state.ctx.Renderer)
		state.loaded = nil
	}
	return nil
}

func (g *TestGame) onAssetChanged(context core.EventContext) bool {
	ae, ok := context.Data.(core.AssetEvent)
	if !ok {
		return false
	}
	state := g.state()
	if filepath.ToSlash(filepath.Clean(ae.Path)) == filepath.ToSlash(filepath.Clean(state.scenePath)) {
		core.LogInfo("scene %s changed, reloading", ae.Path)
		state.reload = true
		return true
	}
	return false
}

func (g *TestGame) onKey(context core.EventContext) bool {
	ke, ok := context.Data.(core.KeyEvent)
	if !ok {
		return false
	}
	switch ke.KeyCode {
	case core.KEY_R:
		// the engine rebuilds the pipelines on R, the scene follows
		g.state().reload = true
	case core.KEY_B:
		g.state().nextEffect = true
		return true
	}
	return false
}
