package vulkan

import (
	"fmt"
	"math"
	"time"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-core/engine/core"
	"github.com/spaghettifunk/anima-core/engine/renderer/driver"
)

type swapchain struct {
	handle vk.Swapchain
	format vk.SurfaceFormat
	extent driver.Extent2D
	// images and views are driver handles registered in the device tables.
	// The images belong to the swapchain and are never destroyed directly.
	images []uint64
	views  []uint64
}

func (d *Device) createSwapchain(width, height uint32) error {
	support, err := d.querySwapchainSupport(d.PhysicalDevice)
	if err != nil {
		return err
	}
	caps := support.Capabilities
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	sc := &swapchain{format: support.Formats[0]}
	for _, f := range support.Formats {
		f.Deref()
		if f.Format == vk.FormatB8g8r8a8Unorm && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			sc.format = f
			break
		}
	}
	sc.format.Deref()

	presentMode := vk.PresentModeFifo
	if !d.cfg.VSync {
		for _, mode := range support.PresentModes {
			if mode == vk.PresentModeMailbox {
				presentMode = mode
				break
			}
		}
	}

	extent := vk.Extent2D{Width: width, Height: height}
	if caps.CurrentExtent.Width != math.MaxUint32 {
		extent = caps.CurrentExtent
	}
	// Clamp to the value allowed by the GPU.
	extent.Width = min(max(extent.Width, caps.MinImageExtent.Width), caps.MaxImageExtent.Width)
	extent.Height = min(max(extent.Height, caps.MinImageExtent.Height), caps.MaxImageExtent.Height)

	imageCount := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	info := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      sc.format.Format,
		ImageColorSpace:  sc.format.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
	}
	if d.GraphicsQueueIndex != d.PresentQueueIndex {
		info.ImageSharingMode = vk.SharingModeConcurrent
		info.QueueFamilyIndexCount = 2
		info.PQueueFamilyIndices = []uint32{d.GraphicsQueueIndex, d.PresentQueueIndex}
	}

	var handle vk.Swapchain
	if res := vk.CreateSwapchain(d.LogicalDevice, &info, nil, &handle); res != vk.Success {
		return resultError("vkCreateSwapchain", res)
	}
	sc.handle = handle
	sc.extent = driver.Extent2D{Width: extent.Width, Height: extent.Height}

	var count uint32
	if res := vk.GetSwapchainImages(d.LogicalDevice, handle, &count, nil); res != vk.Success {
		vk.DestroySwapchain(d.LogicalDevice, handle, nil)
		return resultError("vkGetSwapchainImages", res)
	}
	images := make([]vk.Image, count)
	if res := vk.GetSwapchainImages(d.LogicalDevice, handle, &count, images); res != vk.Success {
		vk.DestroySwapchain(d.LogicalDevice, handle, nil)
		return resultError("vkGetSwapchainImages", res)
	}

	format := fromVkFormat(sc.format.Format)
	for _, img := range images {
		h := put(d, d.images, image{handle: img, format: format, extent: sc.extent.To3D()})
		sc.images = append(sc.images, h)

		view, err := d.createView(img, format)
		if err != nil {
			d.destroySwapchain(sc)
			return err
		}
		sc.views = append(sc.views, put(d, d.views, imageView{handle: view, image: h}))
	}

	d.swapchain = sc
	core.LogInfo("Swapchain created: %dx%d, %d images.", extent.Width, extent.Height, count)
	return nil
}

// destroySwapchain releases the views and unregisters the images; the
// images themselves go away with the swapchain handle.
func (d *Device) destroySwapchain(sc *swapchain) {
	for _, v := range sc.views {
		if view, ok := d.views.take(v); ok {
			d.passes.forgetView(v)
			vk.DestroyImageView(d.LogicalDevice, view.handle, nil)
		}
	}
	for _, img := range sc.images {
		delete(d.images, img)
	}
	if sc.handle != vk.NullSwapchain {
		vk.DestroySwapchain(d.LogicalDevice, sc.handle, nil)
	}
}

func (d *Device) AcquireNextImage(signal driver.Semaphore, timeout time.Duration) (uint32, driver.Status, error) {
	sem, _ := d.semaphores.get(uint64(signal))
	var index uint32
	res := vk.AcquireNextImage(d.LogicalDevice, d.swapchain.handle, uint64(timeout.Nanoseconds()), sem, vk.NullFence, &index)
	switch res {
	case vk.Success:
		return index, driver.StatusOptimal, nil
	case vk.Suboptimal:
		return index, driver.StatusSuboptimal, nil
	}
	return 0, driver.StatusOptimal, resultError("vkAcquireNextImage", res)
}

func (d *Device) Present(imageIndex uint32, wait driver.Semaphore) (driver.Status, error) {
	info := vk.PresentInfo{
		SType:          vk.StructureTypePresentInfo,
		SwapchainCount: 1,
		PSwapchains:    []vk.Swapchain{d.swapchain.handle},
		PImageIndices:  []uint32{imageIndex},
	}
	if sem, ok := d.semaphores.get(uint64(wait)); ok {
		info.WaitSemaphoreCount = 1
		info.PWaitSemaphores = []vk.Semaphore{sem}
	}

	var res vk.Result
	d.locks.SafeCall(QueueManagement, func() error {
		res = vk.QueuePresent(d.PresentQueue, &info)
		return nil
	})
	if res == vk.Suboptimal {
		return driver.StatusSuboptimal, nil
	}
	return driver.StatusOptimal, resultError("vkQueuePresent", res)
}

func (d *Device) SwapchainImage(index uint32) driver.Image {
	if d.swapchain == nil || int(index) >= len(d.swapchain.images) {
		return 0
	}
	return driver.Image(d.swapchain.images[index])
}

func (d *Device) SwapchainView(index uint32) driver.ImageView {
	if d.swapchain == nil || int(index) >= len(d.swapchain.views) {
		return 0
	}
	return driver.ImageView(d.swapchain.views[index])
}

func (d *Device) SwapchainExtent() driver.Extent2D {
	if d.swapchain == nil {
		return driver.Extent2D{}
	}
	return d.swapchain.extent
}

func (d *Device) SwapchainFormat() driver.Format {
	if d.swapchain == nil {
		return driver.FormatUndefined
	}
	return fromVkFormat(d.swapchain.format.Format)
}

// RecreateSwapchain waits for the device to go idle and rebuilds the
// swapchain at the given size.
func (d *Device) RecreateSwapchain(width, height uint32) error {
	if width == 0 || height == 0 {
		return fmt.Errorf("cannot recreate swapchain with zero extent %dx%d", width, height)
	}
	if err := d.WaitIdle(); err != nil {
		return err
	}
	if d.swapchain != nil {
		d.destroySwapchain(d.swapchain)
		d.swapchain = nil
	}
	return d.createSwapchain(width, height)
}
