package platform

import "errors"

var ErrVulkanUnsupported = errors.New("platform: Vulkan is not supported by the window system")
