package vulkan

import (
	"time"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-core/engine/core"
	"github.com/spaghettifunk/anima-core/engine/renderer/driver"
)

func (d *Device) CreateFence(signaled bool) (driver.Fence, error) {
	info := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if res := vk.CreateFence(d.LogicalDevice, &info, nil, &fence); res != vk.Success {
		return 0, resultError("vkCreateFence", res)
	}
	return driver.Fence(put(d, d.fences, fence)), nil
}

func (d *Device) WaitForFence(f driver.Fence, timeout time.Duration) error {
	fence, ok := d.fences.get(uint64(f))
	if !ok {
		return errUnknown("fence", uint64(f))
	}
	res := vk.WaitForFences(d.LogicalDevice, 1, []vk.Fence{fence}, vk.True, uint64(timeout.Nanoseconds()))
	switch res {
	case vk.Success:
		return nil
	case vk.Timeout:
		core.LogWarn("vkWaitForFences timed out after %s", timeout)
	case vk.ErrorDeviceLost:
		core.LogError("vkWaitForFences - VK_ERROR_DEVICE_LOST.")
	}
	return resultError("vkWaitForFences", res)
}

func (d *Device) ResetFence(f driver.Fence) error {
	fence, ok := d.fences.get(uint64(f))
	if !ok {
		return errUnknown("fence", uint64(f))
	}
	return resultError("vkResetFences", vk.ResetFences(d.LogicalDevice, 1, []vk.Fence{fence}))
}

func (d *Device) DestroyFence(f driver.Fence) {
	if fence, ok := d.fences.take(uint64(f)); ok {
		vk.DestroyFence(d.LogicalDevice, fence, nil)
	}
}

func (d *Device) CreateSemaphore() (driver.Semaphore, error) {
	info := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var sem vk.Semaphore
	if res := vk.CreateSemaphore(d.LogicalDevice, &info, nil, &sem); res != vk.Success {
		return 0, resultError("vkCreateSemaphore", res)
	}
	return driver.Semaphore(put(d, d.semaphores, sem)), nil
}

func (d *Device) DestroySemaphore(s driver.Semaphore) {
	if sem, ok := d.semaphores.take(uint64(s)); ok {
		vk.DestroySemaphore(d.LogicalDevice, sem, nil)
	}
}
