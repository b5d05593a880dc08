package vulkan

import (
	"errors"
	"testing"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-core/engine/renderer/driver"
)

func TestFormatRoundTrip(t *testing.T) {
	for _, f := range []driver.Format{
		driver.FormatR8G8B8A8Unorm,
		driver.FormatB8G8R8A8Unorm,
		driver.FormatB8G8R8A8Srgb,
	} {
		if got := fromVkFormat(vkFormat(f)); got != f {
			t.Errorf("format %d came back as %d", f, got)
		}
	}
	if vkFormat(driver.FormatUndefined) != vk.FormatUndefined {
		t.Error("undefined format should map to VK_FORMAT_UNDEFINED")
	}
}

func TestAspectFollowsFormat(t *testing.T) {
	if aspectFor(driver.FormatD32Sfloat) != vk.ImageAspectFlags(vk.ImageAspectDepthBit) {
		t.Error("depth format should use the depth aspect")
	}
	if aspectFor(driver.FormatR16G16B16A16Sfloat) != vk.ImageAspectFlags(vk.ImageAspectColorBit) {
		t.Error("color format should use the color aspect")
	}
}

func TestStageAndUsageBits(t *testing.T) {
	stages := vkStages(driver.StageAllGraphics)
	want := vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit)
	if stages != want {
		t.Errorf("stages = %#x, want %#x", stages, want)
	}

	usage := vkBufferUsage(driver.BufferUsageIndex | driver.BufferUsageTransferDst | driver.BufferUsageDeviceAddress)
	if usage != vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit|vk.BufferUsageTransferDstBit) {
		t.Errorf("unexpected buffer usage %#x", usage)
	}
}

func TestResultErrorMapsDriverErrors(t *testing.T) {
	cases := map[vk.Result]error{
		vk.Timeout:              driver.ErrTimeout,
		vk.ErrorOutOfPoolMemory: driver.ErrOutOfPoolMemory,
		vk.ErrorFragmentedPool:  driver.ErrFragmentedPool,
		vk.ErrorOutOfDate:       driver.ErrOutOfDate,
	}
	for res, want := range cases {
		if err := resultError("op", res); !errors.Is(err, want) {
			t.Errorf("%s: got %v, want %v", VulkanResultString(res), err, want)
		}
	}
	if err := resultError("op", vk.Success); err != nil {
		t.Errorf("success should not be an error, got %v", err)
	}
	if err := resultError("op", vk.Suboptimal); err != nil {
		t.Errorf("suboptimal should not be an error, got %v", err)
	}
}
