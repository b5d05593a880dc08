package renderer

import (
	"cmp"
	"errors"

	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/anima-core/engine/core"
	"github.com/spaghettifunk/anima-core/engine/math"
	"github.com/spaghettifunk/anima-core/engine/renderer/deletion"
	"github.com/spaghettifunk/anima-core/engine/renderer/driver"
	"github.com/spaghettifunk/anima-core/engine/renderer/frame"
	"github.com/spaghettifunk/anima-core/engine/renderer/materials"
	"github.com/spaghettifunk/anima-core/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-core/engine/scene"
)

// BeginFrame starts a frame. A frame skipped because the swapchain went out
// of date is not an error; the following EndFrame does nothing.
func (r *Renderer) BeginFrame() error {
	fc, err := r.frames.BeginFrame()
	if errors.Is(err, frame.ErrFrameSkipped) {
		core.LogDebug("frame %d skipped", r.frames.FrameNumber())
		r.fc = nil
		return nil
	}
	if err != nil {
		return err
	}
	r.fc = fc
	return nil
}

// SubmitDrawable adds node and its subtree to the current frame. World
// transforms of graph must be up to date.
func (r *Renderer) SubmitDrawable(graph *scene.Graph, node scene.NodeID) {
	r.drawables = append(r.drawables, drawable{graph: graph, node: node})
}

// EndFrame flattens the submitted nodes into draw commands, records the
// frame and presents it.
func (r *Renderer) EndFrame() error {
	defer func() {
		r.drawables = r.drawables[:0]
	}()
	if r.fc == nil {
		return nil
	}
	fc := r.fc
	r.fc = nil

	r.drawCtx.Reset()
	for _, d := range r.drawables {
		d.graph.TraverseNode(d.node, math.NewMat4Identity(), &r.drawCtx)
	}
	r.stats = Stats{Frame: fc.Number}

	return r.frames.EndFrame(fc, frame.Passes{
		Background: r.drawBackground,
		Geometry:   r.drawGeometry,
		Overlay:    r.overlay,
	})
}

func (r *Renderer) writeSceneData(fc *frame.FrameContext) (driver.DescriptorSet, error) {
	buf, err := r.dev.CreateBuffer(metadata.SceneDataSize, driver.BufferUsageUniform, driver.MemoryCPUToGPU)
	if err != nil {
		return 0, core.Fatal(err)
	}
	fc.Deletion.Push(deletion.Buffer(buf))
	if err := r.dev.WriteBuffer(buf, 0, r.sceneData.Bytes()); err != nil {
		return 0, err
	}

	set, err := fc.Allocator.Allocate(r.sceneLayout)
	if err != nil {
		return 0, err
	}
	r.writer.Clear()
	r.writer.WriteBuffer(0, buf, metadata.SceneDataSize, 0, driver.DescriptorTypeUniformBuffer)
	r.writer.UpdateSet(r.dev, set)
	return set, nil
}

func sortDraws(cmds []metadata.DrawCommand) {
	slices.SortFunc(cmds, func(a, b metadata.DrawCommand) int {
		if c := cmp.Compare(a.Material.Set, b.Material.Set); c != 0 {
			return c
		}
		return cmp.Compare(a.IndexBuffer, b.IndexBuffer)
	})
}

func (r *Renderer) drawGeometry(fc *frame.FrameContext) error {
	sceneSet, err := r.writeSceneData(fc)
	if err != nil {
		return err
	}

	clearDepth := float32(1)
	r.dev.BeginRendering(fc.Cmd, driver.RenderingInfo{
		ColorImage:  fc.Draw.Image,
		ColorView:   fc.Draw.View,
		ColorFormat: fc.Draw.Format,
		DepthView:   fc.Depth.View,
		DepthFormat: fc.Depth.Format,
		Extent:      fc.DrawExtent,
		ClearDepth:  &clearDepth,
	})
	r.dev.SetViewport(fc.Cmd, driver.Viewport{
		Width:    float32(fc.DrawExtent.Width),
		Height:   float32(fc.DrawExtent.Height),
		MaxDepth: 1,
	})
	r.dev.SetScissor(fc.Cmd, driver.Rect2D{Width: fc.DrawExtent.Width, Height: fc.DrawExtent.Height})

	sortDraws(r.drawCtx.Opaque)

	var (
		lastPipeline *materials.Pipeline
		lastMaterial *materials.Instance
		lastIndex    driver.Buffer
	)
	draw := func(cmd metadata.DrawCommand) {
		p := cmd.Material.Pipeline
		if !p.Usable() || cmd.IndexBuffer == 0 {
			r.stats.Skipped++
			return
		}
		if cmd.Material != lastMaterial {
			lastMaterial = cmd.Material
			if p != lastPipeline {
				lastPipeline = p
				r.dev.BindPipeline(fc.Cmd, driver.BindGraphics, p.Handle)
				r.dev.BindDescriptorSets(fc.Cmd, driver.BindGraphics, p.Layout, 0, []driver.DescriptorSet{sceneSet})
			}
			r.dev.BindDescriptorSets(fc.Cmd, driver.BindGraphics, p.Layout, 1, []driver.DescriptorSet{cmd.Material.Set})
		}
		if cmd.IndexBuffer != lastIndex {
			lastIndex = cmd.IndexBuffer
			r.dev.BindIndexBuffer(fc.Cmd, cmd.IndexBuffer, 0)
			r.dev.BindVertexBuffer(fc.Cmd, cmd.VertexBuffer, 0)
		}

		push := metadata.GPUDrawPushConstants{
			WorldMatrix:  cmd.Transform,
			VertexBuffer: cmd.VertexBufferAddress,
		}
		r.dev.PushConstants(fc.Cmd, p.Layout, driver.StageVertex, 0, push.Bytes())
		r.dev.DrawIndexed(fc.Cmd, cmd.IndexCount, 1, cmd.FirstIndex, 0, 0)
		r.stats.DrawCalls++
		r.stats.Triangles += int(cmd.IndexCount / 3)
	}

	for _, cmd := range r.drawCtx.Opaque {
		draw(cmd)
	}
	for _, cmd := range r.drawCtx.Transparent {
		draw(cmd)
	}

	r.dev.EndRendering(fc.Cmd)
	return nil
}
