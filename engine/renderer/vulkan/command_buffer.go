package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-core/engine/renderer/driver"
)

// CreateCommandPool creates a pool on the graphics family whose buffers can
// be reset one by one.
func (d *Device) CreateCommandPool() (driver.CommandPool, error) {
	info := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: d.GraphicsQueueIndex,
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(d.LogicalDevice, &info, nil, &pool); res != vk.Success {
		return 0, resultError("vkCreateCommandPool", res)
	}
	return driver.CommandPool(put(d, d.commandPools, pool)), nil
}

// DestroyCommandPool frees the pool together with every buffer allocated
// from it.
func (d *Device) DestroyCommandPool(p driver.CommandPool) {
	pool, ok := d.commandPools.take(uint64(p))
	if !ok {
		return
	}
	for cb, owner := range d.cmdPool {
		if owner == uint64(p) {
			delete(d.cmdPool, cb)
			delete(d.commandBuffers, cb)
		}
	}
	vk.DestroyCommandPool(d.LogicalDevice, pool, nil)
}

func (d *Device) AllocateCommandBuffer(p driver.CommandPool) (driver.CommandBuffer, error) {
	pool, ok := d.commandPools.get(uint64(p))
	if !ok {
		return 0, errUnknown("command pool", uint64(p))
	}
	info := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	buffers := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(d.LogicalDevice, &info, buffers); res != vk.Success {
		return 0, resultError("vkAllocateCommandBuffers", res)
	}
	h := put(d, d.commandBuffers, buffers[0])
	d.cmdPool[h] = uint64(p)
	return driver.CommandBuffer(h), nil
}

func (d *Device) ResetCommandBuffer(cmd driver.CommandBuffer) error {
	cb, ok := d.commandBuffers.get(uint64(cmd))
	if !ok {
		return errUnknown("command buffer", uint64(cmd))
	}
	return resultError("vkResetCommandBuffer", vk.ResetCommandBuffer(cb, 0))
}

func (d *Device) BeginCommandBuffer(cmd driver.CommandBuffer, oneTime bool) error {
	cb, ok := d.commandBuffers.get(uint64(cmd))
	if !ok {
		return errUnknown("command buffer", uint64(cmd))
	}
	info := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if oneTime {
		info.Flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	return resultError("vkBeginCommandBuffer", vk.BeginCommandBuffer(cb, &info))
}

func (d *Device) EndCommandBuffer(cmd driver.CommandBuffer) error {
	cb, ok := d.commandBuffers.get(uint64(cmd))
	if !ok {
		return errUnknown("command buffer", uint64(cmd))
	}
	return resultError("vkEndCommandBuffer", vk.EndCommandBuffer(cb))
}

// Submit hands one command buffer to the graphics queue. Zero semaphores
// and fences are left out.
func (d *Device) Submit(info driver.SubmitInfo) error {
	cb, ok := d.commandBuffers.get(uint64(info.CommandBuffer))
	if !ok {
		return errUnknown("command buffer", uint64(info.CommandBuffer))
	}
	submit := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cb},
	}
	if sem, ok := d.semaphores.get(uint64(info.Wait)); ok {
		submit.WaitSemaphoreCount = 1
		submit.PWaitSemaphores = []vk.Semaphore{sem}
		submit.PWaitDstStageMask = []vk.PipelineStageFlags{vkPipelineStage(info.WaitStage)}
	}
	if sem, ok := d.semaphores.get(uint64(info.Signal)); ok {
		submit.SignalSemaphoreCount = 1
		submit.PSignalSemaphores = []vk.Semaphore{sem}
	}
	fence := vk.NullFence
	if f, ok := d.fences.get(uint64(info.Fence)); ok {
		fence = f
	}

	return d.locks.SafeCall(QueueManagement, func() error {
		return resultError("vkQueueSubmit", vk.QueueSubmit(d.GraphicsQueue, 1, []vk.SubmitInfo{submit}, fence))
	})
}
