package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-core/engine/core"
	"github.com/spaghettifunk/anima-core/engine/renderer/driver"
)

type swapchainSupport struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

type queueFamilies struct {
	graphics, present int32
}

func (q queueFamilies) complete() bool {
	return q.graphics >= 0 && q.present >= 0
}

func (d *Device) selectPhysicalDevice() error {
	var count uint32
	if res := vk.EnumeratePhysicalDevices(d.Instance, &count, nil); res != vk.Success {
		return resultError("vkEnumeratePhysicalDevices", res)
	}
	if count == 0 {
		return fmt.Errorf("no devices which support Vulkan were found")
	}
	devices := make([]vk.PhysicalDevice, count)
	if res := vk.EnumeratePhysicalDevices(d.Instance, &count, devices); res != vk.Success {
		return resultError("vkEnumeratePhysicalDevices", res)
	}

	// Discrete GPUs win over anything else that meets the requirements.
	var (
		best      vk.PhysicalDevice
		bestQueue queueFamilies
		bestScore = -1
	)
	for _, pd := range devices {
		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(pd, &props)
		props.Deref()

		queues, ok := d.meetsRequirements(pd)
		if !ok {
			core.LogInfo("Device '%s' does not meet the requirements, skipping.", cString(props.DeviceName[:]))
			continue
		}
		score := 0
		if props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
			score = 2
		} else if props.DeviceType == vk.PhysicalDeviceTypeIntegratedGpu {
			score = 1
		}
		if score > bestScore {
			best, bestQueue, bestScore = pd, queues, score
		}
	}
	if best == nil {
		return fmt.Errorf("no physical devices were found which meet the requirements")
	}

	d.PhysicalDevice = best
	d.GraphicsQueueIndex = uint32(bestQueue.graphics)
	d.PresentQueueIndex = uint32(bestQueue.present)
	vk.GetPhysicalDeviceProperties(best, &d.Properties)
	d.Properties.Deref()
	vk.GetPhysicalDeviceMemoryProperties(best, &d.Memory)
	d.Memory.Deref()

	core.LogInfo("Selected device: '%s'.", cString(d.Properties.DeviceName[:]))
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		vk.Version(d.Properties.ApiVersion).Major(),
		vk.Version(d.Properties.ApiVersion).Minor(),
		vk.Version(d.Properties.ApiVersion).Patch(),
	)
	for j := uint32(0); j < d.Memory.MemoryHeapCount; j++ {
		d.Memory.MemoryHeaps[j].Deref()
		gib := float64(d.Memory.MemoryHeaps[j].Size) / 1024 / 1024 / 1024
		if vk.MemoryHeapFlagBits(d.Memory.MemoryHeaps[j].Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", gib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", gib)
		}
	}
	return nil
}

func (d *Device) meetsRequirements(pd vk.PhysicalDevice) (queueFamilies, bool) {
	queues := queueFamilies{graphics: -1, present: -1}

	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, nil)
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, families)

	for i := range families {
		families[i].Deref()
		flags := vk.QueueFlagBits(families[i].QueueFlags)
		// The background pass dispatches compute on the graphics queue.
		if queues.graphics < 0 && flags&vk.QueueGraphicsBit != 0 && flags&vk.QueueComputeBit != 0 {
			queues.graphics = int32(i)
		}
		var supported vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(pd, uint32(i), d.Surface, &supported)
		if supported == vk.True && (queues.present < 0 || queues.graphics == int32(i)) {
			queues.present = int32(i)
		}
	}
	if !queues.complete() {
		return queues, false
	}

	if !hasDeviceExtension(pd, vk.KhrSwapchainExtensionName) {
		return queues, false
	}
	support, err := d.querySwapchainSupport(pd)
	if err != nil || len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		return queues, false
	}
	return queues, true
}

func hasDeviceExtension(pd vk.PhysicalDevice, name string) bool {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(pd, "", &count, nil); res != vk.Success {
		return false
	}
	available := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(pd, "", &count, available); res != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		if cString(available[i].ExtensionName[:]) == name {
			return true
		}
	}
	return false
}

func (d *Device) querySwapchainSupport(pd vk.PhysicalDevice) (swapchainSupport, error) {
	var support swapchainSupport
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(pd, d.Surface, &support.Capabilities); res != vk.Success {
		return support, resultError("vkGetPhysicalDeviceSurfaceCapabilities", res)
	}
	support.Capabilities.Deref()
	support.Capabilities.CurrentExtent.Deref()
	support.Capabilities.MinImageExtent.Deref()
	support.Capabilities.MaxImageExtent.Deref()

	var formatCount uint32
	if res := vk.GetPhysicalDeviceSurfaceFormats(pd, d.Surface, &formatCount, nil); res != vk.Success {
		return support, resultError("vkGetPhysicalDeviceSurfaceFormats", res)
	}
	if formatCount > 0 {
		support.Formats = make([]vk.SurfaceFormat, formatCount)
		if res := vk.GetPhysicalDeviceSurfaceFormats(pd, d.Surface, &formatCount, support.Formats); res != vk.Success {
			return support, resultError("vkGetPhysicalDeviceSurfaceFormats", res)
		}
		for i := range support.Formats {
			support.Formats[i].Deref()
		}
	}

	var modeCount uint32
	if res := vk.GetPhysicalDeviceSurfacePresentModes(pd, d.Surface, &modeCount, nil); res != vk.Success {
		return support, resultError("vkGetPhysicalDeviceSurfacePresentModes", res)
	}
	if modeCount > 0 {
		support.PresentModes = make([]vk.PresentMode, modeCount)
		if res := vk.GetPhysicalDeviceSurfacePresentModes(pd, d.Surface, &modeCount, support.PresentModes); res != vk.Success {
			return support, resultError("vkGetPhysicalDeviceSurfacePresentModes", res)
		}
	}
	return support, nil
}

func (d *Device) createLogicalDevice() error {
	core.LogInfo("Creating logical device...")

	indices := []uint32{d.GraphicsQueueIndex}
	if d.PresentQueueIndex != d.GraphicsQueueIndex {
		indices = append(indices, d.PresentQueueIndex)
	}
	queueInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i, idx := range indices {
		queueInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: idx,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	extensions := []string{vk.KhrSwapchainExtensionName}
	if hasDeviceExtension(d.PhysicalDevice, "VK_KHR_portability_subset") {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensions = append(extensions, "VK_KHR_portability_subset")
	}

	features := vk.PhysicalDeviceFeatures{}
	createInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{features},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensions),
	}

	var device vk.Device
	if res := vk.CreateDevice(d.PhysicalDevice, &createInfo, nil, &device); res != vk.Success {
		return resultError("vkCreateDevice", res)
	}
	d.LogicalDevice = device
	core.LogInfo("Logical device created.")

	var graphics, present vk.Queue
	vk.GetDeviceQueue(d.LogicalDevice, d.GraphicsQueueIndex, 0, &graphics)
	vk.GetDeviceQueue(d.LogicalDevice, d.PresentQueueIndex, 0, &present)
	d.GraphicsQueue = graphics
	d.PresentQueue = present
	core.LogInfo("Queues obtained.")
	return nil
}

func (d *Device) detectDepthFormat() error {
	candidates := []driver.Format{driver.FormatD32Sfloat, driver.FormatD24UnormS8Uint}
	flags := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	for _, f := range candidates {
		var props vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(d.PhysicalDevice, vkFormat(f), &props)
		props.Deref()
		if props.OptimalTilingFeatures&flags == flags {
			d.depthFormat = f
			return nil
		}
	}
	return fmt.Errorf("failed to find a supported depth format")
}
