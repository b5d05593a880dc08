package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-core/engine/core"
	"github.com/spaghettifunk/anima-core/engine/renderer/driver"
)

func (d *Device) CreateShaderModule(code []uint32) (driver.ShaderModule, error) {
	if len(code) == 0 {
		return 0, fmt.Errorf("shader module needs bytecode")
	}
	info := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code) * 4),
		PCode:    code,
	}
	var module vk.ShaderModule
	if res := vk.CreateShaderModule(d.LogicalDevice, &info, nil, &module); res != vk.Success {
		return 0, resultError("vkCreateShaderModule", res)
	}
	return driver.ShaderModule(put(d, d.shaderModules, module)), nil
}

func (d *Device) DestroyShaderModule(m driver.ShaderModule) {
	if module, ok := d.shaderModules.take(uint64(m)); ok {
		vk.DestroyShaderModule(d.LogicalDevice, module, nil)
	}
}

func (d *Device) CreatePipelineLayout(info driver.PipelineLayoutInfo) (driver.PipelineLayout, error) {
	setLayouts := make([]vk.DescriptorSetLayout, 0, len(info.SetLayouts))
	for _, h := range info.SetLayouts {
		l, ok := d.setLayouts.get(uint64(h))
		if !ok {
			return 0, errUnknown("descriptor set layout", uint64(h))
		}
		setLayouts = append(setLayouts, l)
	}
	// Only 128 bytes of push constants are guaranteed, in 4 byte steps.
	if len(info.PushConstants) > 32 {
		return 0, fmt.Errorf("cannot have more than 32 push constant ranges, got %d", len(info.PushConstants))
	}
	ranges := make([]vk.PushConstantRange, 0, len(info.PushConstants))
	for _, r := range info.PushConstants {
		ranges = append(ranges, vk.PushConstantRange{
			StageFlags: vkStages(r.Stages),
			Offset:     r.Offset,
			Size:       r.Size,
		})
	}

	create := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(setLayouts)),
		PSetLayouts:            setLayouts,
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}
	var layout vk.PipelineLayout
	if err := d.locks.SafeCall(ResourceManagement, func() error {
		return resultError("vkCreatePipelineLayout", vk.CreatePipelineLayout(d.LogicalDevice, &create, nil, &layout))
	}); err != nil {
		return 0, err
	}
	return driver.PipelineLayout(put(d, d.layouts, layout)), nil
}

func (d *Device) DestroyPipelineLayout(h driver.PipelineLayout) {
	if layout, ok := d.layouts.take(uint64(h)); ok {
		vk.DestroyPipelineLayout(d.LogicalDevice, layout, nil)
	}
}

func shaderStage(module vk.ShaderModule, stage vk.ShaderStageFlagBits) vk.PipelineShaderStageCreateInfo {
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  stage,
		Module: module,
		PName:  VulkanSafeString("main"),
	}
}

func blendAttachment(mode driver.BlendMode) vk.PipelineColorBlendAttachmentState {
	state := vk.PipelineColorBlendAttachmentState{
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit |
			vk.ColorComponentBBit | vk.ColorComponentABit),
	}
	switch mode {
	case driver.BlendAdditive:
		state.BlendEnable = vk.True
		state.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		state.DstColorBlendFactor = vk.BlendFactorOne
		state.ColorBlendOp = vk.BlendOpAdd
		state.SrcAlphaBlendFactor = vk.BlendFactorOne
		state.DstAlphaBlendFactor = vk.BlendFactorZero
		state.AlphaBlendOp = vk.BlendOpAdd
	case driver.BlendAlpha:
		state.BlendEnable = vk.True
		state.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		state.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		state.ColorBlendOp = vk.BlendOpAdd
		state.SrcAlphaBlendFactor = vk.BlendFactorOne
		state.DstAlphaBlendFactor = vk.BlendFactorZero
		state.AlphaBlendOp = vk.BlendOpAdd
	}
	return state
}

// CreateGraphicsPipeline builds a triangle-list pipeline with dynamic
// viewport and scissor.
func (d *Device) CreateGraphicsPipeline(cfg driver.GraphicsPipelineConfig) (driver.Pipeline, error) {
	layout, ok := d.layouts.get(uint64(cfg.Layout))
	if !ok {
		return 0, errUnknown("pipeline layout", uint64(cfg.Layout))
	}
	vert, ok := d.shaderModules.get(uint64(cfg.VertexShader))
	if !ok {
		return 0, errUnknown("vertex shader", uint64(cfg.VertexShader))
	}
	frag, ok := d.shaderModules.get(uint64(cfg.FragmentShader))
	if !ok {
		return 0, errUnknown("fragment shader", uint64(cfg.FragmentShader))
	}
	rp, err := d.passes.compatible(cfg.ColorFormat, cfg.DepthFormat)
	if err != nil {
		return 0, err
	}

	stages := []vk.PipelineShaderStageCreateInfo{
		shaderStage(vert, vk.ShaderStageVertexBit),
		shaderStage(frag, vk.ShaderStageFragmentBit),
	}

	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	if cfg.VertexStride > 0 {
		attributes := make([]vk.VertexInputAttributeDescription, 0, len(cfg.VertexAttributes))
		for _, a := range cfg.VertexAttributes {
			attributes = append(attributes, vk.VertexInputAttributeDescription{
				Location: a.Location,
				Binding:  0,
				Format:   vkVertexFormat(a.Format),
				Offset:   a.Offset,
			})
		}
		vertexInput.VertexBindingDescriptionCount = 1
		vertexInput.PVertexBindingDescriptions = []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    cfg.VertexStride,
			InputRate: vk.VertexInputRateVertex,
		}}
		vertexInput.VertexAttributeDescriptionCount = uint32(len(attributes))
		vertexInput.PVertexAttributeDescriptions = attributes
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: vk.PrimitiveTopologyTriangleList,
	}
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill,
		LineWidth:   1.0,
		FrontFace:   vk.FrontFaceCounterClockwise,
	}
	switch cfg.Cull {
	case driver.CullBack:
		rasterizer.CullMode = vk.CullModeFlags(vk.CullModeBackBit)
	case driver.CullFront:
		rasterizer.CullMode = vk.CullModeFlags(vk.CullModeFrontBit)
	default:
		rasterizer.CullMode = vk.CullModeFlags(vk.CullModeNone)
	}

	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:          vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthCompareOp: vk.CompareOpNever,
		MaxDepthBounds: 1.0,
	}
	if cfg.DepthTest {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthCompareOp = vk.CompareOpLessOrEqual
	}
	if cfg.DepthWrite {
		depthStencil.DepthWriteEnable = vk.True
	}

	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{blendAttachment(cfg.Blend)},
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	info := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamicState,
		Layout:              layout,
		RenderPass:          rp,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	if err := d.locks.SafeCall(ResourceManagement, func() error {
		res := vk.CreateGraphicsPipelines(d.LogicalDevice, vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{info}, nil, pipelines)
		return resultError("vkCreateGraphicsPipelines", res)
	}); err != nil {
		return 0, err
	}

	core.LogDebug("Graphics pipeline created!")
	return driver.Pipeline(put(d, d.pipelines, pipelines[0])), nil
}

func (d *Device) CreateComputePipeline(l driver.PipelineLayout, m driver.ShaderModule) (driver.Pipeline, error) {
	layout, ok := d.layouts.get(uint64(l))
	if !ok {
		return 0, errUnknown("pipeline layout", uint64(l))
	}
	module, ok := d.shaderModules.get(uint64(m))
	if !ok {
		return 0, errUnknown("compute shader", uint64(m))
	}

	info := vk.ComputePipelineCreateInfo{
		SType:              vk.StructureTypeComputePipelineCreateInfo,
		Stage:              shaderStage(module, vk.ShaderStageComputeBit),
		Layout:             layout,
		BasePipelineHandle: vk.NullPipeline,
		BasePipelineIndex:  -1,
	}
	pipelines := make([]vk.Pipeline, 1)
	if err := d.locks.SafeCall(ResourceManagement, func() error {
		res := vk.CreateComputePipelines(d.LogicalDevice, vk.NullPipelineCache, 1, []vk.ComputePipelineCreateInfo{info}, nil, pipelines)
		return resultError("vkCreateComputePipelines", res)
	}); err != nil {
		return 0, err
	}

	core.LogDebug("Compute pipeline created!")
	return driver.Pipeline(put(d, d.pipelines, pipelines[0])), nil
}

func (d *Device) DestroyPipeline(p driver.Pipeline) {
	if pipeline, ok := d.pipelines.take(uint64(p)); ok {
		d.locks.SafeCall(ResourceManagement, func() error {
			vk.DestroyPipeline(d.LogicalDevice, pipeline, nil)
			return nil
		})
	}
}
