package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-core/engine/core"
	"github.com/spaghettifunk/anima-core/engine/renderer/driver"
)

// passKey identifies a single-subpass render pass. Attachments stay in
// their attachment layouts across the pass; the recorder transitions
// them explicitly before and after.
type passKey struct {
	color, depth           driver.Format
	clearColor, clearDepth bool
}

type renderPassCache struct {
	d            *Device
	passes       map[passKey]vk.RenderPass
	framebuffers map[framebufferKey]vk.Framebuffer
}

func newRenderPassCache(d *Device) *renderPassCache {
	return &renderPassCache{
		d:            d,
		passes:       make(map[passKey]vk.RenderPass),
		framebuffers: make(map[framebufferKey]vk.Framebuffer),
	}
}

func loadOp(clear bool) vk.AttachmentLoadOp {
	if clear {
		return vk.AttachmentLoadOpClear
	}
	return vk.AttachmentLoadOpLoad
}

// pass returns the render pass for key, creating it on first use.
func (c *renderPassCache) pass(key passKey) (vk.RenderPass, error) {
	if rp, ok := c.passes[key]; ok {
		return rp, nil
	}

	attachments := []vk.AttachmentDescription{{
		Format:         vkFormat(key.color),
		Samples:        vk.SampleCount1Bit,
		LoadOp:         loadOp(key.clearColor),
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutColorAttachmentOptimal,
		FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
	}}
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments: []vk.AttachmentReference{{
			Attachment: 0,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}},
	}
	if key.depth != driver.FormatUndefined {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         vkFormat(key.depth),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         loadOp(key.clearDepth),
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutDepthStencilAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: 1,
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit | vk.AccessDepthStencilAttachmentWriteBit),
	}

	info := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	var rp vk.RenderPass
	if res := vk.CreateRenderPass(c.d.LogicalDevice, &info, nil, &rp); res != vk.Success {
		return nil, resultError("vkCreateRenderPass", res)
	}
	core.LogDebug("Created render pass for formats %d/%d (clear color %v, clear depth %v)", key.color, key.depth, key.clearColor, key.clearDepth)
	c.passes[key] = rp
	return rp, nil
}

func (c *renderPassCache) destroy() {
	for k, fb := range c.framebuffers {
		vk.DestroyFramebuffer(c.d.LogicalDevice, fb, nil)
		delete(c.framebuffers, k)
	}
	for k, rp := range c.passes {
		vk.DestroyRenderPass(c.d.LogicalDevice, rp, nil)
		delete(c.passes, k)
	}
}

func (c *renderPassCache) begin(cmd vk.CommandBuffer, info driver.RenderingInfo) error {
	key := passKey{
		color:      info.ColorFormat,
		clearColor: info.Clear != nil,
		clearDepth: info.ClearDepth != nil,
	}
	if info.DepthView != 0 {
		key.depth = info.DepthFormat
	}
	rp, err := c.pass(key)
	if err != nil {
		return err
	}
	fb, err := c.framebuffer(rp, info.ColorView, info.DepthView, info.Extent)
	if err != nil {
		return err
	}

	clearValues := make([]vk.ClearValue, 1, 2)
	if info.Clear != nil {
		clearValues[0].SetColor(info.Clear[:])
	}
	if key.depth != driver.FormatUndefined {
		clearValues = append(clearValues, vk.ClearValue{})
		if info.ClearDepth != nil {
			clearValues[1].SetDepthStencil(*info.ClearDepth, 0)
		}
	}

	begin := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp,
		Framebuffer: fb,
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{Width: info.Extent.Width, Height: info.Extent.Height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(cmd, &begin, vk.SubpassContentsInline)
	return nil
}

// compatible returns a pass usable to build pipelines for the formats.
// Load operations do not affect render pass compatibility.
func (c *renderPassCache) compatible(color, depth driver.Format) (vk.RenderPass, error) {
	if color == driver.FormatUndefined {
		return nil, fmt.Errorf("graphics pipeline needs a color format")
	}
	return c.pass(passKey{color: color, depth: depth})
}
