package materials

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/anima-core/engine/math"
	"github.com/spaghettifunk/anima-core/engine/renderer/descriptors"
	"github.com/spaghettifunk/anima-core/engine/renderer/driver"
	"github.com/spaghettifunk/anima-core/engine/renderer/driver/drivertest"
)

type shaderMap map[string][]uint32

func (s shaderMap) Load(path string) ([]uint32, error) {
	code, ok := s[path]
	if !ok {
		return nil, errors.New("no such file")
	}
	return code, nil
}

var testShaders = shaderMap{
	"mesh.vert.spv": {0x07230203, 1},
	"mesh.frag.spv": {0x07230203, 2},
}

func newBinder(t *testing.T) (*Binder, *drivertest.Device, *descriptors.GrowableAllocator) {
	t.Helper()
	dev := drivertest.New(2, driver.Extent2D{Width: 4, Height: 4})
	b := NewBinder(dev)
	err := b.BuildPipelines(testShaders, PipelineConfig{
		VertexShader:   "mesh.vert.spv",
		FragmentShader: "mesh.frag.spv",
		SceneLayout:    1,
		ColorFormat:    driver.FormatR16G16B16A16Sfloat,
		DepthFormat:    driver.FormatD32Sfloat,
	})
	if err != nil {
		t.Fatalf("build pipelines: %v", err)
	}
	alloc := descriptors.NewGrowableAllocator(dev)
	if err := alloc.InitPool(4, []driver.PoolSizeRatio{
		{Type: driver.DescriptorTypeUniformBuffer, Ratio: 1},
		{Type: driver.DescriptorTypeCombinedImageSampler, Ratio: 2},
	}); err != nil {
		t.Fatal(err)
	}
	return b, dev, alloc
}

func TestBuildPipelinesVariants(t *testing.T) {
	b, dev, _ := newBinder(t)
	if !b.Opaque.Usable() || !b.Transparent.Usable() {
		t.Fatalf("pipelines not usable: %+v %+v", b.Opaque, b.Transparent)
	}
	if b.Opaque.Layout != b.Transparent.Layout {
		t.Fatalf("variants should share a layout")
	}
	want := []string{
		"CreateGraphicsPipeline(blend=0,depthWrite=true)",
		"CreateGraphicsPipeline(blend=1,depthWrite=false)",
	}
	got := dev.Ops("CreateGraphicsPipeline")
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("have %v, want %v", got, want)
	}
}

func TestBuildPipelinesShaderFailure(t *testing.T) {
	dev := drivertest.New(2, driver.Extent2D{Width: 4, Height: 4})
	b := NewBinder(dev)
	err := b.BuildPipelines(shaderMap{}, PipelineConfig{VertexShader: "missing.spv", FragmentShader: "missing.spv"})
	if !errors.Is(err, ErrShaderLoad) {
		t.Fatalf("have %v, want ErrShaderLoad", err)
	}
	if b.Opaque.Usable() {
		t.Fatalf("pipeline should be unusable after a shader failure")
	}
	if b.Layout == 0 {
		t.Fatalf("material layout should exist even without pipelines")
	}
}

func TestWriteMaterialBindingOrder(t *testing.T) {
	b, dev, alloc := newBinder(t)
	dev.ClearEvents()

	inst, err := b.WriteMaterial(PassTransparent, Resources{
		ColorImage:        10,
		ColorSampler:      11,
		MetalRoughImage:   12,
		MetalRoughSampler: 13,
		DataBuffer:        14,
	}, alloc)
	if err != nil {
		t.Fatal(err)
	}
	if inst.Pipeline != &b.Transparent || inst.Set == 0 || inst.Pass != PassTransparent {
		t.Fatalf("have %+v", inst)
	}
	want := "UpdateDescriptorSet(0:UniformBuffer,1:CombinedImageSampler,2:CombinedImageSampler)"
	got := dev.Ops("AllocateDescriptorSet", "UpdateDescriptorSet")
	if len(got) != 2 || got[1] != want {
		t.Fatalf("have %v, want allocate then %s", got, want)
	}

	// The scratch batch is cleared between materials.
	dev.ClearEvents()
	if _, err := b.WriteMaterial(PassOpaque, Resources{DataBuffer: 14, DataBufferOffset: ConstantsSize}, alloc); err != nil {
		t.Fatal(err)
	}
	if got := dev.Ops("UpdateDescriptorSet"); len(got) != 1 || got[0] != want {
		t.Fatalf("have %v, want %s", got, want)
	}
}

func TestWriteMaterialInvalidPass(t *testing.T) {
	b, dev, alloc := newBinder(t)
	dev.ClearEvents()

	inst, err := b.WriteMaterial(PassOther, Resources{}, alloc)
	if !errors.Is(err, ErrInvalidMaterialPass) {
		t.Fatalf("have %v, want ErrInvalidMaterialPass", err)
	}
	if inst != nil {
		t.Fatalf("have instance %+v, want nil", inst)
	}
	if n := dev.Count("AllocateDescriptorSet"); n != 0 {
		t.Fatalf("invalid pass allocated %d sets", n)
	}
}

func TestConstantsBytes(t *testing.T) {
	c := Constants{
		ColorFactors:      math.NewVec4(1, 1, 1, 1),
		MetalRoughFactors: math.NewVec4(1, 0.5, 0, 0),
	}
	b := c.Bytes()
	if len(b) != ConstantsSize {
		t.Fatalf("have %d bytes, want %d", len(b), ConstantsSize)
	}
	// 1.0f little endian
	if b[0] != 0x00 || b[3] != 0x3f || b[2] != 0x80 {
		t.Fatalf("have % x", b[:4])
	}
}

func TestClearResources(t *testing.T) {
	b, dev, _ := newBinder(t)
	live := dev.Live()
	b.ClearResources()
	if have := dev.Live(); have != live-4 {
		t.Fatalf("have %d live handles, want %d", have, live-4)
	}
}

func TestRebuildKeepsInstancesAndLayout(t *testing.T) {
	b, _, alloc := newBinder(t)
	inst, err := b.WriteMaterial(PassOpaque, Resources{DataBuffer: 1}, alloc)
	if err != nil {
		t.Fatal(err)
	}
	layout, old := b.Layout, b.Opaque.Handle

	if err := b.BuildPipelines(testShaders, PipelineConfig{VertexShader: "mesh.vert.spv", FragmentShader: "mesh.frag.spv"}); err != nil {
		t.Fatal(err)
	}
	if b.Layout != layout {
		t.Fatalf("material layout changed on rebuild")
	}
	if inst.Pipeline.Handle == old || !inst.Pipeline.Usable() {
		t.Fatalf("instance does not see the rebuilt pipeline")
	}

	current := b.Opaque.Handle
	err = b.BuildPipelines(shaderMap{}, PipelineConfig{VertexShader: "gone.spv", FragmentShader: "gone.spv"})
	if !errors.Is(err, ErrShaderLoad) {
		t.Fatalf("have %v, want ErrShaderLoad", err)
	}
	if b.Opaque.Handle != current {
		t.Fatalf("failed rebuild dropped the working pipeline")
	}
}
