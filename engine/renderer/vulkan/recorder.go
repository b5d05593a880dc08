package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-core/engine/core"
	"github.com/spaghettifunk/anima-core/engine/renderer/driver"
)

// Recording with an unknown handle is a programming error on the caller's
// side; the command is dropped and logged.
func (d *Device) recording(h driver.CommandBuffer) (vk.CommandBuffer, bool) {
	cb, ok := d.commandBuffers.get(uint64(h))
	if !ok {
		core.LogError("recording into unknown command buffer %d", h)
	}
	return cb, ok
}

func subresourceLayers(f driver.Format) vk.ImageSubresourceLayers {
	return vk.ImageSubresourceLayers{
		AspectMask: aspectFor(f),
		LayerCount: 1,
	}
}

// TransitionImage records a full barrier moving image between layouts.
func (d *Device) TransitionImage(h driver.CommandBuffer, img driver.Image, from, to driver.ImageLayout) {
	cb, ok := d.recording(h)
	if !ok {
		return
	}
	im, ok := d.images.get(uint64(img))
	if !ok {
		core.LogError("transition of unknown image %d", img)
		return
	}
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(vk.AccessMemoryWriteBit),
		DstAccessMask:       vk.AccessFlags(vk.AccessMemoryWriteBit | vk.AccessMemoryReadBit),
		OldLayout:           vkLayout(from),
		NewLayout:           vkLayout(to),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               im.handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspectFor(im.format),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	stages := vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)
	vk.CmdPipelineBarrier(cb, stages, stages, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

// CopyImage blits src, in TransferSrc layout, into dst, in TransferDst
// layout, scaling with a linear filter.
func (d *Device) CopyImage(h driver.CommandBuffer, src, dst driver.Image, srcSize, dstSize driver.Extent2D) {
	cb, ok := d.recording(h)
	if !ok {
		return
	}
	s, ok1 := d.images.get(uint64(src))
	t, ok2 := d.images.get(uint64(dst))
	if !ok1 || !ok2 {
		core.LogError("blit between unknown images %d -> %d", src, dst)
		return
	}
	region := vk.ImageBlit{
		SrcSubresource: subresourceLayers(s.format),
		SrcOffsets: [2]vk.Offset3D{
			{},
			{X: int32(srcSize.Width), Y: int32(srcSize.Height), Z: 1},
		},
		DstSubresource: subresourceLayers(t.format),
		DstOffsets: [2]vk.Offset3D{
			{},
			{X: int32(dstSize.Width), Y: int32(dstSize.Height), Z: 1},
		},
	}
	vk.CmdBlitImage(cb, s.handle, vk.ImageLayoutTransferSrcOptimal, t.handle, vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageBlit{region}, vk.FilterLinear)
}

// ClearColorImage clears an image in the General layout.
func (d *Device) ClearColorImage(h driver.CommandBuffer, img driver.Image, color driver.ClearColor) {
	cb, ok := d.recording(h)
	if !ok {
		return
	}
	im, ok := d.images.get(uint64(img))
	if !ok {
		core.LogError("clear of unknown image %d", img)
		return
	}
	var value vk.ClearColorValue
	*(*[4]float32)(unsafe.Pointer(&value)) = color
	vk.CmdClearColorImage(cb, im.handle, vk.ImageLayoutGeneral, &value, 1, []vk.ImageSubresourceRange{{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		LevelCount: 1,
		LayerCount: 1,
	}})
}

func (d *Device) CopyBuffer(h driver.CommandBuffer, src, dst driver.Buffer, regions []driver.BufferCopy) {
	cb, ok := d.recording(h)
	if !ok || len(regions) == 0 {
		return
	}
	s, ok1 := d.buffers.get(uint64(src))
	t, ok2 := d.buffers.get(uint64(dst))
	if !ok1 || !ok2 {
		core.LogError("copy between unknown buffers %d -> %d", src, dst)
		return
	}
	copies := make([]vk.BufferCopy, 0, len(regions))
	for _, r := range regions {
		copies = append(copies, vk.BufferCopy{
			SrcOffset: vk.DeviceSize(r.SrcOffset),
			DstOffset: vk.DeviceSize(r.DstOffset),
			Size:      vk.DeviceSize(r.Size),
		})
	}
	vk.CmdCopyBuffer(cb, s.handle, t.handle, uint32(len(copies)), copies)
}

// CopyBufferToImage copies tightly packed texels into dst, which must be
// in the TransferDst layout.
func (d *Device) CopyBufferToImage(h driver.CommandBuffer, src driver.Buffer, dst driver.Image, extent driver.Extent3D) {
	cb, ok := d.recording(h)
	if !ok {
		return
	}
	b, ok1 := d.buffers.get(uint64(src))
	im, ok2 := d.images.get(uint64(dst))
	if !ok1 || !ok2 {
		core.LogError("copy from buffer %d into unknown image %d", src, dst)
		return
	}
	region := vk.BufferImageCopy{
		ImageSubresource: subresourceLayers(im.format),
		ImageExtent: vk.Extent3D{
			Width:  extent.Width,
			Height: extent.Height,
			Depth:  max(extent.Depth, 1),
		},
	}
	vk.CmdCopyBufferToImage(cb, b.handle, im.handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
}

// BeginRendering starts a render pass over the attachments, which must
// already be in their attachment layouts.
func (d *Device) BeginRendering(h driver.CommandBuffer, info driver.RenderingInfo) {
	cb, ok := d.recording(h)
	if !ok {
		return
	}
	if err := d.passes.begin(cb, info); err != nil {
		core.LogError("failed to begin rendering: %s", err)
	}
}

func (d *Device) EndRendering(h driver.CommandBuffer) {
	if cb, ok := d.recording(h); ok {
		vk.CmdEndRenderPass(cb)
	}
}

func (d *Device) SetViewport(h driver.CommandBuffer, vp driver.Viewport) {
	if cb, ok := d.recording(h); ok {
		vk.CmdSetViewport(cb, 0, 1, []vk.Viewport{{
			X:        vp.X,
			Y:        vp.Y,
			Width:    vp.Width,
			Height:   vp.Height,
			MinDepth: vp.MinDepth,
			MaxDepth: vp.MaxDepth,
		}})
	}
}

func (d *Device) SetScissor(h driver.CommandBuffer, r driver.Rect2D) {
	if cb, ok := d.recording(h); ok {
		vk.CmdSetScissor(cb, 0, 1, []vk.Rect2D{{
			Offset: vk.Offset2D{X: r.X, Y: r.Y},
			Extent: vk.Extent2D{Width: r.Width, Height: r.Height},
		}})
	}
}

func (d *Device) BindPipeline(h driver.CommandBuffer, point driver.BindPoint, p driver.Pipeline) {
	cb, ok := d.recording(h)
	if !ok {
		return
	}
	if pipeline, ok := d.pipelines.get(uint64(p)); ok {
		vk.CmdBindPipeline(cb, vkBindPoint(point), pipeline)
	}
}

func (d *Device) BindDescriptorSets(h driver.CommandBuffer, point driver.BindPoint, l driver.PipelineLayout, first uint32, sets []driver.DescriptorSet) {
	cb, ok := d.recording(h)
	if !ok {
		return
	}
	layout, ok := d.layouts.get(uint64(l))
	if !ok {
		return
	}
	handles := make([]vk.DescriptorSet, 0, len(sets))
	for _, s := range sets {
		set, ok := d.sets.get(uint64(s))
		if !ok {
			core.LogError("binding unknown descriptor set %d", s)
			return
		}
		handles = append(handles, set.handle)
	}
	vk.CmdBindDescriptorSets(cb, vkBindPoint(point), layout, first, uint32(len(handles)), handles, 0, nil)
}

func (d *Device) PushConstants(h driver.CommandBuffer, l driver.PipelineLayout, stages driver.ShaderStage, offset uint32, data []byte) {
	cb, ok := d.recording(h)
	if !ok || len(data) == 0 {
		return
	}
	if layout, ok := d.layouts.get(uint64(l)); ok {
		vk.CmdPushConstants(cb, layout, vkStages(stages), offset, uint32(len(data)), unsafe.Pointer(&data[0]))
	}
}

func (d *Device) BindVertexBuffer(h driver.CommandBuffer, buf driver.Buffer, offset uint64) {
	cb, ok := d.recording(h)
	if !ok {
		return
	}
	if b, ok := d.buffers.get(uint64(buf)); ok {
		vk.CmdBindVertexBuffers(cb, 0, 1, []vk.Buffer{b.handle}, []vk.DeviceSize{vk.DeviceSize(offset)})
	}
}

func (d *Device) BindIndexBuffer(h driver.CommandBuffer, buf driver.Buffer, offset uint64) {
	cb, ok := d.recording(h)
	if !ok {
		return
	}
	if b, ok := d.buffers.get(uint64(buf)); ok {
		vk.CmdBindIndexBuffer(cb, b.handle, vk.DeviceSize(offset), vk.IndexTypeUint32)
	}
}

func (d *Device) DrawIndexed(h driver.CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	if cb, ok := d.recording(h); ok {
		vk.CmdDrawIndexed(cb, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
	}
}

func (d *Device) Dispatch(h driver.CommandBuffer, x, y, z uint32) {
	if cb, ok := d.recording(h); ok {
		vk.CmdDispatch(cb, x, y, z)
	}
}

var _ driver.Device = (*Device)(nil)
