// Package materials builds the metallic-roughness pipelines and writes the
// descriptor set of each material instance.
package materials

import (
	"encoding/binary"
	"errors"
	"fmt"
	m "math"

	"github.com/spaghettifunk/anima-core/engine/core"
	"github.com/spaghettifunk/anima-core/engine/math"
	"github.com/spaghettifunk/anima-core/engine/renderer/descriptors"
	"github.com/spaghettifunk/anima-core/engine/renderer/driver"
)

var (
	ErrInvalidMaterialPass = errors.New("invalid material pass")
	ErrShaderLoad          = errors.New("shader load failed")
)

type PassType int

const (
	PassOpaque PassType = iota
	PassTransparent
	PassOther
)

func (p PassType) String() string {
	switch p {
	case PassOpaque:
		return "opaque"
	case PassTransparent:
		return "transparent"
	}
	return "other"
}

// ParsePass maps a scene file pass name to a PassType. Unknown names map to
// PassOther.
func ParsePass(s string) PassType {
	switch s {
	case "", "opaque", "main", "MainColor":
		return PassOpaque
	case "transparent", "Transparent":
		return PassTransparent
	}
	return PassOther
}

type Pipeline struct {
	Handle driver.Pipeline
	Layout driver.PipelineLayout
}

// Usable reports whether the pipeline was built.
func (p *Pipeline) Usable() bool {
	return p != nil && p.Handle != 0
}

// Instance is a material ready to draw with: a pipeline variant plus the
// descriptor set holding its resources.
type Instance struct {
	ID       core.Identifier
	Name     string
	Pipeline *Pipeline
	Set      driver.DescriptorSet
	Pass     PassType
}

// Resources are the GPU objects a material instance binds.
type Resources struct {
	ColorImage        driver.ImageView
	ColorSampler      driver.Sampler
	MetalRoughImage   driver.ImageView
	MetalRoughSampler driver.Sampler
	DataBuffer        driver.Buffer
	DataBufferOffset  uint64
}

// ConstantsSize is the size of Constants in bytes, padded for uniform
// buffer offset alignment.
const ConstantsSize = 256

// Constants is the uniform block at binding 0.
type Constants struct {
	ColorFactors      math.Vec4
	MetalRoughFactors math.Vec4
	// padding to ConstantsSize
	Extra [14]math.Vec4
}

func putVec4(b []byte, v math.Vec4) {
	binary.LittleEndian.PutUint32(b[0:], m.Float32bits(v.X))
	binary.LittleEndian.PutUint32(b[4:], m.Float32bits(v.Y))
	binary.LittleEndian.PutUint32(b[8:], m.Float32bits(v.Z))
	binary.LittleEndian.PutUint32(b[12:], m.Float32bits(v.W))
}

// Bytes encodes c in std140 layout.
func (c Constants) Bytes() []byte {
	out := make([]byte, ConstantsSize)
	putVec4(out[0:], c.ColorFactors)
	putVec4(out[16:], c.MetalRoughFactors)
	for i, v := range c.Extra {
		putVec4(out[32+16*i:], v)
	}
	return out
}

// PushConstantsSize is a world matrix followed by a vertex buffer address.
const PushConstantsSize = 64 + 8

// ShaderSource loads SPIR-V words by path.
type ShaderSource interface {
	Load(path string) ([]uint32, error)
}

// SetAllocator hands out descriptor sets.
type SetAllocator interface {
	Allocate(layout driver.DescriptorSetLayout) (driver.DescriptorSet, error)
}

type Device interface {
	driver.DescriptorDevice
	driver.Pipelines
}

type PipelineConfig struct {
	VertexShader     string
	FragmentShader   string
	SceneLayout      driver.DescriptorSetLayout
	ColorFormat      driver.Format
	DepthFormat      driver.Format
	VertexStride     uint32
	VertexAttributes []driver.VertexAttribute
}

// Binder owns the material layout and the two pipeline variants.
type Binder struct {
	Opaque      Pipeline
	Transparent Pipeline
	Layout      driver.DescriptorSetLayout

	dev    Device
	writer descriptors.Writer
}

func NewBinder(dev Device) *Binder {
	return &Binder{dev: dev}
}

func (b *Binder) loadModule(shaders ShaderSource, path string) (driver.ShaderModule, error) {
	code, err := shaders.Load(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrShaderLoad, path, err)
	}
	module, err := b.dev.CreateShaderModule(code)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrShaderLoad, path, err)
	}
	return module, nil
}

// BuildPipelines creates the material layout on first use, a shared
// pipeline layout and the opaque and transparent pipelines. When pipelines
// already exist they are replaced only after the new ones were built, so a
// failed rebuild keeps the previous ones; the device must be idle. On
// ErrShaderLoad during the first build the binder has no usable pipelines.
func (b *Binder) BuildPipelines(shaders ShaderSource, cfg PipelineConfig) error {
	// The material layout outlives pipeline rebuilds so sets written while
	// shaders were broken stay valid.
	if b.Layout == 0 {
		layoutCfg := descriptors.LayoutConfig{Stages: driver.StageAllGraphics}
		layoutCfg.AddBinding(0, driver.DescriptorTypeUniformBuffer)
		layoutCfg.AddBinding(1, driver.DescriptorTypeCombinedImageSampler)
		layoutCfg.AddBinding(2, driver.DescriptorTypeCombinedImageSampler)
		layout, err := descriptors.NewLayout(b.dev, layoutCfg)
		if err != nil {
			return err
		}
		b.Layout = layout
	}

	vert, err := b.loadModule(shaders, cfg.VertexShader)
	if err != nil {
		core.LogError("material vertex shader: %s", err)
		return err
	}
	defer b.dev.DestroyShaderModule(vert)

	frag, err := b.loadModule(shaders, cfg.FragmentShader)
	if err != nil {
		core.LogError("material fragment shader: %s", err)
		return err
	}
	defer b.dev.DestroyShaderModule(frag)

	pipelineLayout, err := b.dev.CreatePipelineLayout(driver.PipelineLayoutInfo{
		SetLayouts: []driver.DescriptorSetLayout{cfg.SceneLayout, b.Layout},
		PushConstants: []driver.PushConstantRange{{
			Stages: driver.StageVertex,
			Size:   PushConstantsSize,
		}},
	})
	if err != nil {
		return fmt.Errorf("creating material pipeline layout: %w", err)
	}

	opaque := driver.GraphicsPipelineConfig{
		Layout:           pipelineLayout,
		VertexShader:     vert,
		FragmentShader:   frag,
		ColorFormat:      cfg.ColorFormat,
		DepthFormat:      cfg.DepthFormat,
		Cull:             driver.CullNone,
		Blend:            driver.BlendNone,
		DepthTest:        true,
		DepthWrite:       true,
		VertexStride:     cfg.VertexStride,
		VertexAttributes: cfg.VertexAttributes,
	}
	opaqueHandle, err := b.dev.CreateGraphicsPipeline(opaque)
	if err != nil {
		b.dev.DestroyPipelineLayout(pipelineLayout)
		return fmt.Errorf("creating opaque pipeline: %w", err)
	}

	transparent := opaque
	transparent.Blend = driver.BlendAdditive
	transparent.DepthWrite = false
	transparentHandle, err := b.dev.CreateGraphicsPipeline(transparent)
	if err != nil {
		b.dev.DestroyPipeline(opaqueHandle)
		b.dev.DestroyPipelineLayout(pipelineLayout)
		return fmt.Errorf("creating transparent pipeline: %w", err)
	}

	b.releasePipelines()
	b.Opaque = Pipeline{Handle: opaqueHandle, Layout: pipelineLayout}
	b.Transparent = Pipeline{Handle: transparentHandle, Layout: pipelineLayout}
	return nil
}

func (b *Binder) releasePipelines() {
	if b.Opaque.Handle != 0 {
		b.dev.DestroyPipeline(b.Opaque.Handle)
	}
	if b.Transparent.Handle != 0 {
		b.dev.DestroyPipeline(b.Transparent.Handle)
	}
	if b.Opaque.Layout != 0 {
		b.dev.DestroyPipelineLayout(b.Opaque.Layout)
	}
	b.Opaque = Pipeline{}
	b.Transparent = Pipeline{}
}

// WriteMaterial allocates and fills the descriptor set of one material. An
// invalid pass is reported and nothing is allocated; the caller skips the
// object.
func (b *Binder) WriteMaterial(pass PassType, res Resources, alloc SetAllocator) (*Instance, error) {
	inst := &Instance{ID: core.NewIdentifier(), Pass: pass}
	switch pass {
	case PassOpaque:
		inst.Pipeline = &b.Opaque
	case PassTransparent:
		inst.Pipeline = &b.Transparent
	default:
		core.LogError("material %s: %s", core.ShortID(inst.ID), ErrInvalidMaterialPass)
		return nil, fmt.Errorf("%w: %s", ErrInvalidMaterialPass, pass)
	}

	set, err := alloc.Allocate(b.Layout)
	if err != nil {
		return nil, err
	}
	inst.Set = set

	b.writer.Clear()
	b.writer.WriteBuffer(0, res.DataBuffer, ConstantsSize, res.DataBufferOffset, driver.DescriptorTypeUniformBuffer)
	b.writer.WriteImage(1, res.ColorImage, res.ColorSampler, driver.LayoutShaderReadOnly, driver.DescriptorTypeCombinedImageSampler)
	b.writer.WriteImage(2, res.MetalRoughImage, res.MetalRoughSampler, driver.LayoutShaderReadOnly, driver.DescriptorTypeCombinedImageSampler)
	b.writer.UpdateSet(b.dev, set)

	return inst, nil
}

// ClearResources destroys the pipelines and the material layout. The two
// variants share one pipeline layout.
func (b *Binder) ClearResources() {
	b.releasePipelines()
	if b.Layout != 0 {
		b.dev.DestroyDescriptorSetLayout(b.Layout)
	}
	b.Layout = 0
}
