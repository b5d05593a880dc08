package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-core/engine/renderer/driver"
)

// Window is the part of a GLFW window the backend needs.
type Window interface {
	GetRequiredInstanceExtensions() []string
	CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (uintptr, error)
}

type Config struct {
	ApplicationName string
	Width, Height   uint32
	// Validation enables the Khronos validation layer and routes its
	// reports to the engine log.
	Validation bool
	// VSync forces FIFO presentation.
	VSync bool
}

type buffer struct {
	handle vk.Buffer
	memory vk.DeviceMemory
	size   uint64
	host   bool
}

type image struct {
	handle vk.Image
	memory vk.DeviceMemory
	format driver.Format
	extent driver.Extent3D
	owned  bool
}

type imageView struct {
	handle vk.ImageView
	image  uint64
}

type descriptorSet struct {
	handle vk.DescriptorSet
	pool   uint64
}

// Device implements driver.Device on top of goki/vulkan.
type Device struct {
	cfg Config

	Instance       vk.Instance
	Surface        vk.Surface
	PhysicalDevice vk.PhysicalDevice
	LogicalDevice  vk.Device

	GraphicsQueueIndex uint32
	PresentQueueIndex  uint32
	GraphicsQueue      vk.Queue
	PresentQueue       vk.Queue

	Properties vk.PhysicalDeviceProperties
	Memory     vk.PhysicalDeviceMemoryProperties

	debugCallback vk.DebugReportCallback
	locks         *VulkanLockPool

	depthFormat driver.Format
	swapchain   *swapchain
	passes      *renderPassCache

	nextHandle     uint64
	buffers        table[buffer]
	images         table[image]
	views          table[imageView]
	samplers       table[vk.Sampler]
	pools          table[vk.DescriptorPool]
	sets           table[descriptorSet]
	setLayouts     table[vk.DescriptorSetLayout]
	shaderModules  table[vk.ShaderModule]
	pipelines      table[vk.Pipeline]
	layouts        table[vk.PipelineLayout]
	commandPools   table[vk.CommandPool]
	commandBuffers table[vk.CommandBuffer]
	cmdPool        map[uint64]uint64
	fences         table[vk.Fence]
	semaphores     table[vk.Semaphore]
}

func newDevice(cfg Config) *Device {
	return &Device{
		cfg:            cfg,
		locks:          NewVulkanLockPool(),
		buffers:        make(table[buffer]),
		images:         make(table[image]),
		views:          make(table[imageView]),
		samplers:       make(table[vk.Sampler]),
		pools:          make(table[vk.DescriptorPool]),
		sets:           make(table[descriptorSet]),
		setLayouts:     make(table[vk.DescriptorSetLayout]),
		shaderModules:  make(table[vk.ShaderModule]),
		pipelines:      make(table[vk.Pipeline]),
		layouts:        make(table[vk.PipelineLayout]),
		commandPools:   make(table[vk.CommandPool]),
		commandBuffers: make(table[vk.CommandBuffer]),
		cmdPool:        make(map[uint64]uint64),
		fences:         make(table[vk.Fence]),
		semaphores:     make(table[vk.Semaphore]),
	}
}

// FindMemoryIndex returns the first memory type allowed by typeFilter that
// has every property flag requested.
func (d *Device) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) (uint32, error) {
	for i := uint32(0); i < d.Memory.MemoryTypeCount; i++ {
		d.Memory.MemoryTypes[i].Deref()
		if typeFilter&(1<<i) != 0 && d.Memory.MemoryTypes[i].PropertyFlags&propertyFlags == propertyFlags {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no memory type for filter %#x with flags %#x: %w", typeFilter, uint32(propertyFlags), driver.ErrOutOfDeviceMemory)
}

func (d *Device) DrawFormat() driver.Format {
	return driver.FormatR16G16B16A16Sfloat
}

func (d *Device) DepthFormat() driver.Format {
	return d.depthFormat
}

func (d *Device) WaitIdle() error {
	return d.locks.SafeCall(QueueManagement, func() error {
		return resultError("vkDeviceWaitIdle", vk.DeviceWaitIdle(d.LogicalDevice))
	})
}
