package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-core/engine/renderer/driver"
)

type framebufferKey struct {
	pass          vk.RenderPass
	color, depth  uint64
	width, height uint32
}

// framebuffer returns the framebuffer binding the views to rp, creating it
// on first use. Entries live until one of their views is destroyed.
func (c *renderPassCache) framebuffer(rp vk.RenderPass, color, depth driver.ImageView, extent driver.Extent2D) (vk.Framebuffer, error) {
	key := framebufferKey{pass: rp, color: uint64(color), depth: uint64(depth), width: extent.Width, height: extent.Height}
	if fb, ok := c.framebuffers[key]; ok {
		return fb, nil
	}

	var attachments []vk.ImageView
	for _, h := range []uint64{key.color, key.depth} {
		if h == 0 {
			continue
		}
		v, ok := c.d.views.get(h)
		if !ok {
			return nil, errUnknown("image view", h)
		}
		attachments = append(attachments, v.handle)
	}

	info := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           extent.Width,
		Height:          extent.Height,
		Layers:          1,
	}
	var fb vk.Framebuffer
	if res := vk.CreateFramebuffer(c.d.LogicalDevice, &info, nil, &fb); res != vk.Success {
		return nil, resultError("vkCreateFramebuffer", res)
	}
	c.framebuffers[key] = fb
	return fb, nil
}

// forgetView destroys every framebuffer that references view.
func (c *renderPassCache) forgetView(view uint64) {
	if c == nil {
		return
	}
	for k, fb := range c.framebuffers {
		if k.color == view || k.depth == view {
			vk.DestroyFramebuffer(c.d.LogicalDevice, fb, nil)
			delete(c.framebuffers, k)
		}
	}
}
