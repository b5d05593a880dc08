package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-core/engine/renderer/driver"
)

func (d *Device) allocate(reqs vk.MemoryRequirements, flags vk.MemoryPropertyFlags) (vk.DeviceMemory, error) {
	reqs.Deref()
	index, err := d.FindMemoryIndex(reqs.MemoryTypeBits, flags)
	if err != nil {
		return nil, err
	}
	info := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: index,
	}
	var mem vk.DeviceMemory
	if res := vk.AllocateMemory(d.LogicalDevice, &info, nil, &mem); res != vk.Success {
		return nil, resultError("vkAllocateMemory", res)
	}
	return mem, nil
}

func (d *Device) CreateBuffer(size uint64, usage driver.BufferUsage, mem driver.MemoryUsage) (driver.Buffer, error) {
	info := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vkBufferUsage(usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var handle vk.Buffer
	if res := vk.CreateBuffer(d.LogicalDevice, &info, nil, &handle); res != vk.Success {
		return 0, resultError("vkCreateBuffer", res)
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.LogicalDevice, handle, &reqs)
	memory, err := d.allocate(reqs, vkMemoryFlags(mem))
	if err != nil {
		vk.DestroyBuffer(d.LogicalDevice, handle, nil)
		return 0, err
	}
	if res := vk.BindBufferMemory(d.LogicalDevice, handle, memory, 0); res != vk.Success {
		vk.FreeMemory(d.LogicalDevice, memory, nil)
		vk.DestroyBuffer(d.LogicalDevice, handle, nil)
		return 0, resultError("vkBindBufferMemory", res)
	}

	b := buffer{handle: handle, memory: memory, size: size, host: mem != driver.MemoryGPUOnly}
	return driver.Buffer(put(d, d.buffers, b)), nil
}

func (d *Device) DestroyBuffer(h driver.Buffer) {
	if b, ok := d.buffers.take(uint64(h)); ok {
		vk.DestroyBuffer(d.LogicalDevice, b.handle, nil)
		vk.FreeMemory(d.LogicalDevice, b.memory, nil)
	}
}

// WriteBuffer copies data into a host visible buffer at offset.
func (d *Device) WriteBuffer(h driver.Buffer, offset uint64, data []byte) error {
	b, ok := d.buffers.get(uint64(h))
	if !ok {
		return errUnknown("buffer", uint64(h))
	}
	if !b.host {
		return fmt.Errorf("buffer %d is not host visible", h)
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("write of %d bytes at %d overflows buffer of %d", len(data), offset, b.size)
	}
	if len(data) == 0 {
		return nil
	}

	var ptr unsafe.Pointer
	if res := vk.MapMemory(d.LogicalDevice, b.memory, vk.DeviceSize(offset), vk.DeviceSize(len(data)), 0, &ptr); res != vk.Success {
		return resultError("vkMapMemory", res)
	}
	vk.Memcopy(ptr, data)
	vk.UnmapMemory(d.LogicalDevice, b.memory)
	return nil
}

// BufferAddress returns zero: vertices reach the shaders through vertex
// input bindings, so device addresses are never enabled.
func (d *Device) BufferAddress(h driver.Buffer) uint64 {
	return 0
}

func (d *Device) CreateImage(info driver.ImageCreateInfo) (driver.Image, error) {
	create := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    vkFormat(info.Format),
		Extent: vk.Extent3D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
			Depth:  info.Extent.Depth,
		},
		// Mipmapped images get a single level until mip generation exists.
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vkImageUsage(info.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var handle vk.Image
	if res := vk.CreateImage(d.LogicalDevice, &create, nil, &handle); res != vk.Success {
		return 0, resultError("vkCreateImage", res)
	}

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.LogicalDevice, handle, &reqs)
	memory, err := d.allocate(reqs, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		vk.DestroyImage(d.LogicalDevice, handle, nil)
		return 0, err
	}
	if res := vk.BindImageMemory(d.LogicalDevice, handle, memory, 0); res != vk.Success {
		vk.FreeMemory(d.LogicalDevice, memory, nil)
		vk.DestroyImage(d.LogicalDevice, handle, nil)
		return 0, resultError("vkBindImageMemory", res)
	}

	img := image{handle: handle, memory: memory, format: info.Format, extent: info.Extent, owned: true}
	return driver.Image(put(d, d.images, img)), nil
}

func (d *Device) CreateImageView(h driver.Image) (driver.ImageView, error) {
	img, ok := d.images.get(uint64(h))
	if !ok {
		return 0, errUnknown("image", uint64(h))
	}
	view, err := d.createView(img.handle, img.format)
	if err != nil {
		return 0, err
	}
	return driver.ImageView(put(d, d.views, imageView{handle: view, image: uint64(h)})), nil
}

func (d *Device) createView(img vk.Image, format driver.Format) (vk.ImageView, error) {
	info := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img,
		ViewType: vk.ImageViewType2d,
		Format:   vkFormat(format),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspectFor(format),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(d.LogicalDevice, &info, nil, &view); res != vk.Success {
		return nil, resultError("vkCreateImageView", res)
	}
	return view, nil
}

func (d *Device) DestroyImage(h driver.Image) {
	img, ok := d.images.get(uint64(h))
	if !ok || !img.owned {
		return
	}
	delete(d.images, uint64(h))
	vk.DestroyImage(d.LogicalDevice, img.handle, nil)
	vk.FreeMemory(d.LogicalDevice, img.memory, nil)
}

func (d *Device) DestroyImageView(h driver.ImageView) {
	if v, ok := d.views.take(uint64(h)); ok {
		d.passes.forgetView(uint64(h))
		vk.DestroyImageView(d.LogicalDevice, v.handle, nil)
	}
}

func (d *Device) CreateSampler(filter driver.Filter) (driver.Sampler, error) {
	f := vk.FilterLinear
	mip := vk.SamplerMipmapModeLinear
	if filter == driver.FilterNearest {
		f = vk.FilterNearest
		mip = vk.SamplerMipmapModeNearest
	}
	info := vk.SamplerCreateInfo{
		SType:        vk.StructureTypeSamplerCreateInfo,
		MagFilter:    f,
		MinFilter:    f,
		MipmapMode:   mip,
		AddressModeU: vk.SamplerAddressModeRepeat,
		AddressModeV: vk.SamplerAddressModeRepeat,
		AddressModeW: vk.SamplerAddressModeRepeat,
		CompareOp:    vk.CompareOpAlways,
		MaxLod:       vk.LodClampNone,
		BorderColor:  vk.BorderColorIntOpaqueBlack,
	}
	var sampler vk.Sampler
	if res := vk.CreateSampler(d.LogicalDevice, &info, nil, &sampler); res != vk.Success {
		return 0, resultError("vkCreateSampler", res)
	}
	return driver.Sampler(put(d, d.samplers, sampler)), nil
}

func (d *Device) DestroySampler(h driver.Sampler) {
	if s, ok := d.samplers.take(uint64(h)); ok {
		vk.DestroySampler(d.LogicalDevice, s, nil)
	}
}
