// Package driver defines the narrow graphics-API contract the renderer
// core is written against. Native objects are exposed as opaque integer
// handles; the backend owns the mapping from handle to native object.
package driver

import (
	"errors"
	"time"
)

var (
	// ErrOutOfPoolMemory means a descriptor pool has no room left for
	// another set of the requested layout.
	ErrOutOfPoolMemory = errors.New("driver: out of descriptor pool memory")
	// ErrFragmentedPool means a descriptor pool has room in total but
	// not in one contiguous block.
	ErrFragmentedPool = errors.New("driver: descriptor pool fragmented")
	// ErrOutOfDate means the presentation surface changed and the
	// swapchain can no longer be used.
	ErrOutOfDate = errors.New("driver: swapchain out of date")
	// ErrTimeout means a bounded wait expired.
	ErrTimeout = errors.New("driver: wait timed out")

	ErrOutOfDeviceMemory = errors.New("driver: out of device memory")
	ErrOutOfHostMemory   = errors.New("driver: out of host memory")
	ErrDeviceLost        = errors.New("driver: device lost")
)

// IsOutOfMemory reports whether err is a host or device memory exhaustion.
func IsOutOfMemory(err error) bool {
	return errors.Is(err, ErrOutOfDeviceMemory) || errors.Is(err, ErrOutOfHostMemory)
}

// DescriptorDevice creates descriptor pools, layouts and sets.
type DescriptorDevice interface {
	CreateDescriptorPool(maxSets uint32, sizes []PoolSize) (DescriptorPool, error)
	// ResetDescriptorPool returns every set allocated from pool back to it.
	ResetDescriptorPool(pool DescriptorPool) error
	DestroyDescriptorPool(pool DescriptorPool)
	// AllocateDescriptorSet fails with ErrOutOfPoolMemory or
	// ErrFragmentedPool when pool cannot serve layout.
	AllocateDescriptorSet(pool DescriptorPool, layout DescriptorSetLayout) (DescriptorSet, error)
	UpdateDescriptorSet(set DescriptorSet, writes []DescriptorWrite)
	CreateDescriptorSetLayout(bindings []LayoutBinding, stages ShaderStage) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(layout DescriptorSetLayout)
}

// SyncDevice creates and waits on synchronization primitives.
type SyncDevice interface {
	CreateFence(signaled bool) (Fence, error)
	// WaitForFence blocks until f is signaled or timeout expires, in which
	// case it returns ErrTimeout.
	WaitForFence(f Fence, timeout time.Duration) error
	ResetFence(f Fence) error
	DestroyFence(f Fence)
	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(s Semaphore)
	// WaitIdle blocks until the device has finished all submitted work.
	WaitIdle() error
}

// CommandDevice manages command buffers and queue submission.
type CommandDevice interface {
	CreateCommandPool() (CommandPool, error)
	DestroyCommandPool(pool CommandPool)
	AllocateCommandBuffer(pool CommandPool) (CommandBuffer, error)
	ResetCommandBuffer(cmd CommandBuffer) error
	BeginCommandBuffer(cmd CommandBuffer, oneTime bool) error
	EndCommandBuffer(cmd CommandBuffer) error
	Submit(info SubmitInfo) error
}

// Recorder records commands into a command buffer that is in the
// recording state.
type Recorder interface {
	TransitionImage(cmd CommandBuffer, image Image, from, to ImageLayout)
	// CopyImage blits src into dst, scaling between the two extents.
	CopyImage(cmd CommandBuffer, src, dst Image, srcSize, dstSize Extent2D)
	ClearColorImage(cmd CommandBuffer, image Image, color ClearColor)
	CopyBuffer(cmd CommandBuffer, src, dst Buffer, regions []BufferCopy)
	CopyBufferToImage(cmd CommandBuffer, src Buffer, dst Image, extent Extent3D)

	BeginRendering(cmd CommandBuffer, info RenderingInfo)
	EndRendering(cmd CommandBuffer)
	SetViewport(cmd CommandBuffer, vp Viewport)
	SetScissor(cmd CommandBuffer, r Rect2D)

	BindPipeline(cmd CommandBuffer, point BindPoint, p Pipeline)
	BindDescriptorSets(cmd CommandBuffer, point BindPoint, layout PipelineLayout, first uint32, sets []DescriptorSet)
	PushConstants(cmd CommandBuffer, layout PipelineLayout, stages ShaderStage, offset uint32, data []byte)
	BindVertexBuffer(cmd CommandBuffer, buf Buffer, offset uint64)
	BindIndexBuffer(cmd CommandBuffer, buf Buffer, offset uint64)
	DrawIndexed(cmd CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	Dispatch(cmd CommandBuffer, x, y, z uint32)
}

// Presenter owns the swapchain.
type Presenter interface {
	// AcquireNextImage signals signal once the returned image is ready.
	// A stale swapchain is reported either as StatusSuboptimal with a
	// usable image or as ErrOutOfDate with none.
	AcquireNextImage(signal Semaphore, timeout time.Duration) (uint32, Status, error)
	Present(imageIndex uint32, wait Semaphore) (Status, error)
	SwapchainImage(index uint32) Image
	SwapchainView(index uint32) ImageView
	SwapchainExtent() Extent2D
	SwapchainFormat() Format
	RecreateSwapchain(width, height uint32) error
}

// Memory allocates buffers, images and samplers.
type Memory interface {
	CreateBuffer(size uint64, usage BufferUsage, mem MemoryUsage) (Buffer, error)
	DestroyBuffer(buf Buffer)
	// WriteBuffer copies data into a host visible buffer.
	WriteBuffer(buf Buffer, offset uint64, data []byte) error
	// BufferAddress returns the device address of a buffer created with
	// BufferUsageDeviceAddress, or zero when unsupported.
	BufferAddress(buf Buffer) uint64

	CreateImage(info ImageCreateInfo) (Image, error)
	CreateImageView(image Image) (ImageView, error)
	DestroyImage(image Image)
	DestroyImageView(view ImageView)

	CreateSampler(filter Filter) (Sampler, error)
	DestroySampler(s Sampler)
}

// Pipelines creates shader modules and pipeline objects.
type Pipelines interface {
	CreateShaderModule(code []uint32) (ShaderModule, error)
	DestroyShaderModule(m ShaderModule)
	CreatePipelineLayout(info PipelineLayoutInfo) (PipelineLayout, error)
	DestroyPipelineLayout(layout PipelineLayout)
	CreateGraphicsPipeline(cfg GraphicsPipelineConfig) (Pipeline, error)
	CreateComputePipeline(layout PipelineLayout, module ShaderModule) (Pipeline, error)
	DestroyPipeline(p Pipeline)
}

// Device is the full contract a backend implements.
type Device interface {
	DescriptorDevice
	SyncDevice
	CommandDevice
	Recorder
	Presenter
	Memory
	Pipelines

	// DrawFormat and DepthFormat are the formats of the offscreen targets.
	DrawFormat() Format
	DepthFormat() Format
	Destroy()
}
