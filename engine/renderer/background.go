package renderer

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/anima-core/engine/core"
	"github.com/spaghettifunk/anima-core/engine/math"
	"github.com/spaghettifunk/anima-core/engine/renderer/deletion"
	"github.com/spaghettifunk/anima-core/engine/renderer/driver"
	"github.com/spaghettifunk/anima-core/engine/renderer/frame"
	"github.com/spaghettifunk/anima-core/engine/renderer/metadata"
)

var ErrUnknownEffect = errors.New("unknown background effect")

// ComputeEffect is a compute shader filling the draw image before geometry.
// Data is pushed every frame and may be edited between frames.
type ComputeEffect struct {
	Name string
	Data metadata.ComputePushConstants

	pipeline driver.Pipeline
}

// Usable reports whether the effect's pipeline was built.
func (e *ComputeEffect) Usable() bool {
	return e.pipeline != 0
}

// background holds the selectable effects. They share one pipeline layout.
type background struct {
	layout  driver.PipelineLayout
	effects []*ComputeEffect
	current int
}

func (r *Renderer) initBackground() {
	r.background.effects = []*ComputeEffect{
		{Name: "gradient", Data: metadata.ComputePushConstants{
			Data1: math.NewVec4(1, 0, 0, 1),
			Data2: math.NewVec4(0, 0, 1, 1),
		}},
		{Name: "sky", Data: metadata.ComputePushConstants{
			Data1: math.NewVec4(0.1, 0.2, 0.4, 0.97),
		}},
	}
	shaders := []string{r.cfg.BackgroundShader, r.cfg.SkyShader}
	if r.cfg.BackgroundShader == "" && r.cfg.SkyShader == "" {
		return
	}

	layout, err := r.dev.CreatePipelineLayout(driver.PipelineLayoutInfo{
		SetLayouts: []driver.DescriptorSetLayout{r.drawImageLayout},
		PushConstants: []driver.PushConstantRange{{
			Stages: driver.StageCompute,
			Size:   64,
		}},
	})
	if err != nil {
		core.LogWarn("background pipeline layout: %s, clearing instead", err)
		return
	}
	r.background.layout = layout
	r.deletion.Push(deletion.PipelineLayout(layout))

	for i, effect := range r.background.effects {
		if shaders[i] == "" {
			continue
		}
		pipeline, err := r.computePipeline(shaders[i])
		if err != nil {
			core.LogWarn("background effect %s: %s", effect.Name, err)
			continue
		}
		effect.pipeline = pipeline
		r.deletion.Push(deletion.Pipeline(pipeline))
	}
}

func (r *Renderer) computePipeline(path string) (driver.Pipeline, error) {
	code, err := r.shaders.Load(path)
	if err != nil {
		return 0, fmt.Errorf("loading %s: %w", path, err)
	}
	module, err := r.dev.CreateShaderModule(code)
	if err != nil {
		return 0, fmt.Errorf("shader module %s: %w", path, err)
	}
	defer r.dev.DestroyShaderModule(module)
	return r.dev.CreateComputePipeline(r.background.layout, module)
}

// BackgroundEffects lists the selectable effects in index order.
func (r *Renderer) BackgroundEffects() []*ComputeEffect {
	return r.background.effects
}

// BackgroundEffect returns the selected effect.
func (r *Renderer) BackgroundEffect() *ComputeEffect {
	return r.background.effects[r.background.current]
}

// SetBackgroundEffect selects the effect drawn from the next frame on.
func (r *Renderer) SetBackgroundEffect(index int) error {
	if index < 0 || index >= len(r.background.effects) {
		return fmt.Errorf("%w: %d", ErrUnknownEffect, index)
	}
	r.background.current = index
	return nil
}

// SetBackground changes the two colors of the gradient effect.
func (r *Renderer) SetBackground(top, bottom math.Vec4) {
	gradient := r.background.effects[0]
	gradient.Data.Data1 = top
	gradient.Data.Data2 = bottom
}

func (r *Renderer) drawBackground(fc *frame.FrameContext) error {
	effect := r.BackgroundEffect()
	if !effect.Usable() {
		r.dev.ClearColorImage(fc.Cmd, fc.Draw.Image, r.cfg.ClearColor)
		return nil
	}

	set, err := fc.Allocator.Allocate(r.drawImageLayout)
	if err != nil {
		return err
	}
	r.writer.Clear()
	r.writer.WriteImage(0, fc.Draw.View, 0, driver.LayoutGeneral, driver.DescriptorTypeStorageImage)
	r.writer.UpdateSet(r.dev, set)

	r.dev.BindPipeline(fc.Cmd, driver.BindCompute, effect.pipeline)
	r.dev.BindDescriptorSets(fc.Cmd, driver.BindCompute, r.background.layout, 0, []driver.DescriptorSet{set})
	r.dev.PushConstants(fc.Cmd, r.background.layout, driver.StageCompute, 0, effect.Data.Bytes())
	r.dev.Dispatch(fc.Cmd, (fc.DrawExtent.Width+15)/16, (fc.DrawExtent.Height+15)/16, 1)
	return nil
}
