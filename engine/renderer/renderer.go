package renderer

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/anima-core/engine/core"
	"github.com/spaghettifunk/anima-core/engine/math"
	"github.com/spaghettifunk/anima-core/engine/renderer/deletion"
	"github.com/spaghettifunk/anima-core/engine/renderer/descriptors"
	"github.com/spaghettifunk/anima-core/engine/renderer/driver"
	"github.com/spaghettifunk/anima-core/engine/renderer/frame"
	"github.com/spaghettifunk/anima-core/engine/renderer/materials"
	"github.com/spaghettifunk/anima-core/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-core/engine/scene"
)

type Config struct {
	Frame              frame.Config
	MeshVertexShader   string
	MeshFragmentShader string
	BackgroundShader   string
	SkyShader          string
	ClearColor         driver.ClearColor
}

// Stats describes the last recorded frame.
type Stats struct {
	Frame     uint64
	DrawCalls int
	Triangles int
	Skipped   int
}

type drawable struct {
	graph *scene.Graph
	node  scene.NodeID
}

// Renderer owns the frame scheduler, the material pipelines and the
// resources shared by every frame.
type Renderer struct {
	dev     driver.Device
	cfg     Config
	shaders materials.ShaderSource

	frames   *frame.Scheduler
	targets  *frame.RenderTargets
	binder   *materials.Binder
	releaser deletion.Releaser
	// deletion holds resources that live as long as the renderer.
	deletion deletion.Queue

	globalAllocator *descriptors.GrowableAllocator
	sceneLayout     driver.DescriptorSetLayout
	drawImageLayout driver.DescriptorSetLayout
	background      background

	defaults  defaults
	sceneData metadata.SceneData

	fc        *frame.FrameContext
	drawables []drawable
	drawCtx   scene.DrawContext
	writer    descriptors.Writer
	overlay   frame.Pass
	stats     Stats
}

// New builds the renderer on dev. Shader failures leave the affected
// pipelines unusable but do not fail initialization.
func New(dev driver.Device, shaders materials.ShaderSource, surface frame.SurfaceSizer, cfg Config) (*Renderer, error) {
	r := &Renderer{
		dev:      dev,
		cfg:      cfg,
		shaders:  shaders,
		releaser: deletion.NewDeviceReleaser(dev),
		binder:   materials.NewBinder(dev),
	}

	extent := dev.SwapchainExtent()
	var err error
	if r.targets, err = frame.NewRenderTargets(dev, dev.DrawFormat(), dev.DepthFormat(), extent); err != nil {
		return nil, err
	}
	if r.frames, err = frame.New(dev, cfg.Frame, r.targets, surface); err != nil {
		return nil, err
	}

	if err := r.initDescriptors(); err != nil {
		return nil, err
	}
	r.initBackground()
	if err := r.BuildPipelines(); err != nil {
		core.LogError("mesh pipelines unavailable: %s", err)
	}
	if err := r.initDefaultData(); err != nil {
		return nil, err
	}

	r.sceneData = metadata.SceneData{
		View:              math.NewMat4Identity(),
		Proj:              math.NewMat4Identity(),
		ViewProj:          math.NewMat4Identity(),
		AmbientColor:      math.NewVec4(0.1, 0.1, 0.1, 1),
		SunlightDirection: math.NewVec4(0, 1, 0.5, 1),
		SunlightColor:     math.NewVec4(1, 1, 1, 1),
	}
	core.LogInfo("renderer initialized at %dx%d", extent.Width, extent.Height)
	return r, nil
}

func (r *Renderer) initDescriptors() error {
	r.globalAllocator = descriptors.NewGrowableAllocator(r.dev)
	err := r.globalAllocator.InitPool(10, []driver.PoolSizeRatio{
		{Type: driver.DescriptorTypeStorageImage, Ratio: 1},
		{Type: driver.DescriptorTypeUniformBuffer, Ratio: 1},
		{Type: driver.DescriptorTypeCombinedImageSampler, Ratio: 2},
	})
	if err != nil {
		return err
	}
	r.deletion.Push(deletion.DescriptorAllocator(r.globalAllocator))

	drawCfg := descriptors.LayoutConfig{Stages: driver.StageCompute}
	drawCfg.AddBinding(0, driver.DescriptorTypeStorageImage)
	if r.drawImageLayout, err = descriptors.NewLayout(r.dev, drawCfg); err != nil {
		return err
	}
	r.deletion.Push(deletion.DescriptorSetLayout(r.drawImageLayout))

	sceneCfg := descriptors.LayoutConfig{Stages: driver.StageAllGraphics}
	sceneCfg.AddBinding(0, driver.DescriptorTypeUniformBuffer)
	if r.sceneLayout, err = descriptors.NewLayout(r.dev, sceneCfg); err != nil {
		return err
	}
	r.deletion.Push(deletion.DescriptorSetLayout(r.sceneLayout))
	return nil
}

// BuildPipelines (re)creates the material pipelines from the configured
// shaders. The device is drained first so pipelines in use are not
// destroyed.
func (r *Renderer) BuildPipelines() error {
	if r.frames.Recording() {
		return frame.ErrRecordingInProgress
	}
	if err := r.dev.WaitIdle(); err != nil {
		return core.Fatal(err)
	}
	return r.binder.BuildPipelines(r.shaders, materials.PipelineConfig{
		VertexShader:     r.cfg.MeshVertexShader,
		FragmentShader:   r.cfg.MeshFragmentShader,
		SceneLayout:      r.sceneLayout,
		ColorFormat:      r.dev.DrawFormat(),
		DepthFormat:      r.dev.DepthFormat(),
		VertexStride:     metadata.VertexSize,
		VertexAttributes: metadata.VertexAttributes,
	})
}

// SetSceneData replaces the global shader data used from the next frame on.
func (r *Renderer) SetSceneData(data metadata.SceneData) {
	r.sceneData = data
}

// SetOverlay installs a pass drawn on top of the swapchain image.
func (r *Renderer) SetOverlay(pass frame.Pass) {
	r.overlay = pass
}

func (r *Renderer) RequestResize() {
	r.frames.RequestResize()
}

// SetRenderScale sets the fraction of the draw image rendered each frame.
func (r *Renderer) SetRenderScale(scale float32) {
	r.frames.SetRenderScale(scale)
}

func (r *Renderer) Stats() Stats {
	return r.stats
}

// Scheduler exposes the frame scheduler for tools and tests.
func (r *Renderer) Scheduler() *frame.Scheduler {
	return r.frames
}

// WriteMaterial builds a material instance from the global descriptor pool.
func (r *Renderer) WriteMaterial(pass materials.PassType, res materials.Resources) (*materials.Instance, error) {
	return r.binder.WriteMaterial(pass, res, r.globalAllocator)
}

// Release queues resources for destruction once the frames that may use
// them have retired.
func (r *Renderer) Release(recs ...deletion.Record) {
	slot := r.frames.ReleaseSlot()
	for _, rec := range recs {
		slot.Deletion.Push(rec)
	}
}

// ReleaseMesh queues the buffers of mesh for destruction.
func (r *Renderer) ReleaseMesh(mesh *metadata.GPUMeshBuffers) {
	if mesh == nil {
		return
	}
	r.Release(deletion.Buffer(mesh.VertexBuffer.Handle), deletion.Buffer(mesh.IndexBuffer.Handle))
}

// ReleaseImage queues img and its view for destruction.
func (r *Renderer) ReleaseImage(img *metadata.AllocatedImage) {
	if img == nil {
		return
	}
	r.Release(deletion.Image(img.Image), deletion.ImageView(img.View))
}

// ReleaseBuffer queues buf for destruction.
func (r *Renderer) ReleaseBuffer(buf *metadata.AllocatedBuffer) {
	if buf == nil {
		return
	}
	r.Release(deletion.Buffer(buf.Handle))
}

// Shutdown drains the device and releases everything the renderer created.
func (r *Renderer) Shutdown() error {
	var errs []error
	if err := r.frames.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	r.binder.ClearResources()
	if err := r.deletion.Flush(r.releaser); err != nil {
		errs = append(errs, err)
	}
	r.targets.Destroy()
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("renderer shutdown: %w", err)
	}
	core.LogInfo("renderer shut down")
	return nil
}
