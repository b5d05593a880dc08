package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-core/engine/renderer/driver"
)

func vkFormat(f driver.Format) vk.Format {
	switch f {
	case driver.FormatR8G8B8A8Unorm:
		return vk.FormatR8g8b8a8Unorm
	case driver.FormatB8G8R8A8Unorm:
		return vk.FormatB8g8r8a8Unorm
	case driver.FormatB8G8R8A8Srgb:
		return vk.FormatB8g8r8a8Srgb
	case driver.FormatR16G16B16A16Sfloat:
		return vk.FormatR16g16b16a16Sfloat
	case driver.FormatD32Sfloat:
		return vk.FormatD32Sfloat
	case driver.FormatD24UnormS8Uint:
		return vk.FormatD24UnormS8Uint
	}
	return vk.FormatUndefined
}

func fromVkFormat(f vk.Format) driver.Format {
	switch f {
	case vk.FormatR8g8b8a8Unorm:
		return driver.FormatR8G8B8A8Unorm
	case vk.FormatB8g8r8a8Unorm:
		return driver.FormatB8G8R8A8Unorm
	case vk.FormatB8g8r8a8Srgb:
		return driver.FormatB8G8R8A8Srgb
	}
	return driver.FormatUndefined
}

func vkLayout(l driver.ImageLayout) vk.ImageLayout {
	switch l {
	case driver.LayoutGeneral:
		return vk.ImageLayoutGeneral
	case driver.LayoutColorAttachment:
		return vk.ImageLayoutColorAttachmentOptimal
	case driver.LayoutDepthAttachment:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case driver.LayoutTransferSrc:
		return vk.ImageLayoutTransferSrcOptimal
	case driver.LayoutTransferDst:
		return vk.ImageLayoutTransferDstOptimal
	case driver.LayoutShaderReadOnly:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case driver.LayoutPresentSrc:
		return vk.ImageLayoutPresentSrc
	}
	return vk.ImageLayoutUndefined
}

func vkDescriptorType(t driver.DescriptorType) vk.DescriptorType {
	switch t {
	case driver.DescriptorTypeSampler:
		return vk.DescriptorTypeSampler
	case driver.DescriptorTypeCombinedImageSampler:
		return vk.DescriptorTypeCombinedImageSampler
	case driver.DescriptorTypeSampledImage:
		return vk.DescriptorTypeSampledImage
	case driver.DescriptorTypeStorageImage:
		return vk.DescriptorTypeStorageImage
	case driver.DescriptorTypeStorageBuffer:
		return vk.DescriptorTypeStorageBuffer
	}
	return vk.DescriptorTypeUniformBuffer
}

func vkStages(s driver.ShaderStage) vk.ShaderStageFlags {
	var out vk.ShaderStageFlagBits
	if s&driver.StageVertex != 0 {
		out |= vk.ShaderStageVertexBit
	}
	if s&driver.StageFragment != 0 {
		out |= vk.ShaderStageFragmentBit
	}
	if s&driver.StageCompute != 0 {
		out |= vk.ShaderStageComputeBit
	}
	return vk.ShaderStageFlags(out)
}

func vkBufferUsage(u driver.BufferUsage) vk.BufferUsageFlags {
	var out vk.BufferUsageFlagBits
	if u&driver.BufferUsageTransferSrc != 0 {
		out |= vk.BufferUsageTransferSrcBit
	}
	if u&driver.BufferUsageTransferDst != 0 {
		out |= vk.BufferUsageTransferDstBit
	}
	if u&driver.BufferUsageUniform != 0 {
		out |= vk.BufferUsageUniformBufferBit
	}
	if u&driver.BufferUsageStorage != 0 {
		out |= vk.BufferUsageStorageBufferBit
	}
	if u&driver.BufferUsageIndex != 0 {
		out |= vk.BufferUsageIndexBufferBit
	}
	if u&driver.BufferUsageVertex != 0 {
		out |= vk.BufferUsageVertexBufferBit
	}
	return vk.BufferUsageFlags(out)
}

func vkImageUsage(u driver.ImageUsage) vk.ImageUsageFlags {
	var out vk.ImageUsageFlagBits
	if u&driver.ImageUsageTransferSrc != 0 {
		out |= vk.ImageUsageTransferSrcBit
	}
	if u&driver.ImageUsageTransferDst != 0 {
		out |= vk.ImageUsageTransferDstBit
	}
	if u&driver.ImageUsageSampled != 0 {
		out |= vk.ImageUsageSampledBit
	}
	if u&driver.ImageUsageStorage != 0 {
		out |= vk.ImageUsageStorageBit
	}
	if u&driver.ImageUsageColorAttachment != 0 {
		out |= vk.ImageUsageColorAttachmentBit
	}
	if u&driver.ImageUsageDepthAttachment != 0 {
		out |= vk.ImageUsageDepthStencilAttachmentBit
	}
	return vk.ImageUsageFlags(out)
}

func vkMemoryFlags(m driver.MemoryUsage) vk.MemoryPropertyFlags {
	switch m {
	case driver.MemoryCPUToGPU, driver.MemoryGPUToCPU:
		return vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	}
	return vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
}

func vkBindPoint(p driver.BindPoint) vk.PipelineBindPoint {
	if p == driver.BindCompute {
		return vk.PipelineBindPointCompute
	}
	return vk.PipelineBindPointGraphics
}

func vkPipelineStage(s driver.PipelineStage) vk.PipelineStageFlags {
	if s&driver.PipelineStageColorAttachmentOutput != 0 {
		return vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	}
	return vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)
}

func vkVertexFormat(f driver.VertexFormat) vk.Format {
	switch f {
	case driver.VertexFloat2:
		return vk.FormatR32g32Sfloat
	case driver.VertexFloat3:
		return vk.FormatR32g32b32Sfloat
	}
	return vk.FormatR32g32b32a32Sfloat
}

func aspectFor(f driver.Format) vk.ImageAspectFlags {
	if f.IsDepth() {
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}
