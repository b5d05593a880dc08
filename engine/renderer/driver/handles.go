package driver

// Opaque handles. The zero value of each is the null handle.
type (
	DescriptorPool      uint64
	DescriptorSet       uint64
	DescriptorSetLayout uint64
	Buffer              uint64
	Image               uint64
	ImageView           uint64
	Sampler             uint64
	ShaderModule        uint64
	Pipeline            uint64
	PipelineLayout      uint64
	CommandPool         uint64
	CommandBuffer       uint64
	Fence               uint64
	Semaphore           uint64
)
