package driver

import "fmt"

type DescriptorType int

const (
	DescriptorTypeSampler DescriptorType = iota
	DescriptorTypeCombinedImageSampler
	DescriptorTypeSampledImage
	DescriptorTypeStorageImage
	DescriptorTypeUniformBuffer
	DescriptorTypeStorageBuffer
)

func (t DescriptorType) String() string {
	switch t {
	case DescriptorTypeSampler:
		return "Sampler"
	case DescriptorTypeCombinedImageSampler:
		return "CombinedImageSampler"
	case DescriptorTypeSampledImage:
		return "SampledImage"
	case DescriptorTypeStorageImage:
		return "StorageImage"
	case DescriptorTypeUniformBuffer:
		return "UniformBuffer"
	case DescriptorTypeStorageBuffer:
		return "StorageBuffer"
	}
	return fmt.Sprintf("DescriptorType(%d)", int(t))
}

// PoolSizeRatio is the number of descriptors of Type reserved per set
// in a pool.
type PoolSizeRatio struct {
	Type  DescriptorType
	Ratio float32
}

type PoolSize struct {
	Type  DescriptorType
	Count uint32
}

// PoolSizes scales ratios by the number of sets a pool serves.
func PoolSizes(maxSets uint32, ratios []PoolSizeRatio) []PoolSize {
	sizes := make([]PoolSize, 0, len(ratios))
	for _, r := range ratios {
		sizes = append(sizes, PoolSize{
			Type:  r.Type,
			Count: uint32(r.Ratio * float32(maxSets)),
		})
	}
	return sizes
}

type LayoutBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
}

type DescriptorBufferInfo struct {
	Buffer Buffer
	Offset uint64
	Range  uint64
}

type DescriptorImageInfo struct {
	View    ImageView
	Sampler Sampler
	Layout  ImageLayout
}

// DescriptorWrite carries exactly one of Buffer or Image.
type DescriptorWrite struct {
	Binding uint32
	Type    DescriptorType
	Buffer  *DescriptorBufferInfo
	Image   *DescriptorImageInfo
}

type ShaderStage uint32

const (
	StageVertex ShaderStage = 1 << iota
	StageFragment
	StageCompute

	StageAllGraphics = StageVertex | StageFragment
)

type ImageLayout int

const (
	LayoutUndefined ImageLayout = iota
	LayoutGeneral
	LayoutColorAttachment
	LayoutDepthAttachment
	LayoutTransferSrc
	LayoutTransferDst
	LayoutShaderReadOnly
	LayoutPresentSrc
)

func (l ImageLayout) String() string {
	switch l {
	case LayoutUndefined:
		return "Undefined"
	case LayoutGeneral:
		return "General"
	case LayoutColorAttachment:
		return "ColorAttachment"
	case LayoutDepthAttachment:
		return "DepthAttachment"
	case LayoutTransferSrc:
		return "TransferSrc"
	case LayoutTransferDst:
		return "TransferDst"
	case LayoutShaderReadOnly:
		return "ShaderReadOnly"
	case LayoutPresentSrc:
		return "PresentSrc"
	}
	return fmt.Sprintf("ImageLayout(%d)", int(l))
}

type Format int

const (
	FormatUndefined Format = iota
	FormatR8G8B8A8Unorm
	FormatB8G8R8A8Unorm
	FormatB8G8R8A8Srgb
	FormatR16G16B16A16Sfloat
	FormatD32Sfloat
	FormatD24UnormS8Uint
)

// IsDepth reports whether f is a depth format.
func (f Format) IsDepth() bool {
	return f == FormatD32Sfloat || f == FormatD24UnormS8Uint
}

// BytesPerPixel returns the texel size of color formats.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatR16G16B16A16Sfloat:
		return 8
	case FormatUndefined:
		return 0
	}
	return 4
}

type Extent2D struct {
	Width, Height uint32
}

type Extent3D struct {
	Width, Height, Depth uint32
}

func (e Extent2D) To3D() Extent3D {
	return Extent3D{Width: e.Width, Height: e.Height, Depth: 1}
}

type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 1 << iota
	BufferUsageTransferDst
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageIndex
	BufferUsageVertex
	BufferUsageDeviceAddress
)

type ImageUsage uint32

const (
	ImageUsageTransferSrc ImageUsage = 1 << iota
	ImageUsageTransferDst
	ImageUsageSampled
	ImageUsageStorage
	ImageUsageColorAttachment
	ImageUsageDepthAttachment
)

// MemoryUsage selects where an allocation lives.
type MemoryUsage int

const (
	MemoryGPUOnly MemoryUsage = iota
	MemoryCPUToGPU
	MemoryGPUToCPU
)

type ImageCreateInfo struct {
	Format    Format
	Extent    Extent3D
	Usage     ImageUsage
	Mipmapped bool
}

type Filter int

const (
	FilterNearest Filter = iota
	FilterLinear
)

type BindPoint int

const (
	BindGraphics BindPoint = iota
	BindCompute
)

// PipelineStage is the stage a submission waits at.
type PipelineStage uint32

const (
	PipelineStageColorAttachmentOutput PipelineStage = 1 << iota
	PipelineStageAllCommands
)

// Status is a non-error result of acquire and present.
type Status int

const (
	StatusOptimal Status = iota
	StatusSuboptimal
)

type ClearColor [4]float32

type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

type Rect2D struct {
	X, Y          int32
	Width, Height uint32
}

type BufferCopy struct {
	SrcOffset, DstOffset, Size uint64
}

// SubmitInfo describes one command buffer submission. Zero handles are
// left out of the submission.
type SubmitInfo struct {
	CommandBuffer CommandBuffer
	Wait          Semaphore
	WaitStage     PipelineStage
	Signal        Semaphore
	Fence         Fence
}

// RenderingInfo begins a rendering scope over a color and an optional
// depth attachment. A nil Clear loads the existing contents.
type RenderingInfo struct {
	ColorImage  Image
	ColorView   ImageView
	ColorFormat Format
	DepthView   ImageView
	DepthFormat Format
	Extent      Extent2D
	Clear       *ClearColor
	ClearDepth  *float32
}

type PushConstantRange struct {
	Stages ShaderStage
	Offset uint32
	Size   uint32
}

type PipelineLayoutInfo struct {
	SetLayouts    []DescriptorSetLayout
	PushConstants []PushConstantRange
}

type BlendMode int

const (
	BlendNone BlendMode = iota
	BlendAdditive
	BlendAlpha
)

type CullMode int

const (
	CullNone CullMode = iota
	CullBack
	CullFront
)

// GraphicsPipelineConfig replaces a pipeline builder: fill the fields
// and hand it to CreateGraphicsPipeline.
type GraphicsPipelineConfig struct {
	Layout         PipelineLayout
	VertexShader   ShaderModule
	FragmentShader ShaderModule
	ColorFormat    Format
	DepthFormat    Format
	Cull           CullMode
	Blend          BlendMode
	DepthTest      bool
	DepthWrite     bool
	// VertexStride is the size of one vertex when vertices are bound as a
	// vertex buffer. Zero disables vertex input.
	VertexStride     uint32
	VertexAttributes []VertexAttribute
}

type VertexFormat int

const (
	VertexFloat2 VertexFormat = iota
	VertexFloat3
	VertexFloat4
)

type VertexAttribute struct {
	Location uint32
	Format   VertexFormat
	Offset   uint32
}
