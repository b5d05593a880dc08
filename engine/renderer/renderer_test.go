package renderer

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/spaghettifunk/anima-core/engine/math"
	"github.com/spaghettifunk/anima-core/engine/renderer/driver"
	"github.com/spaghettifunk/anima-core/engine/renderer/driver/drivertest"
	"github.com/spaghettifunk/anima-core/engine/renderer/frame"
	"github.com/spaghettifunk/anima-core/engine/renderer/materials"
	"github.com/spaghettifunk/anima-core/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-core/engine/scene"
)

type shaderMap map[string][]uint32

func (s shaderMap) Load(path string) ([]uint32, error) {
	code, ok := s[path]
	if !ok {
		return nil, errors.New("no such file")
	}
	return code, nil
}

type surface struct{ w, h uint32 }

func (s surface) FramebufferSize() (uint32, uint32) { return s.w, s.h }

var testShaders = shaderMap{
	"mesh.vert.spv":     {0x07230203, 1},
	"mesh.frag.spv":     {0x07230203, 2},
	"gradient.comp.spv": {0x07230203, 3},
	"sky.comp.spv":      {0x07230203, 4},
}

func testConfig() Config {
	return Config{
		Frame:              frame.DefaultConfig(),
		MeshVertexShader:   "mesh.vert.spv",
		MeshFragmentShader: "mesh.frag.spv",
		BackgroundShader:   "gradient.comp.spv",
		SkyShader:          "sky.comp.spv",
		ClearColor:         driver.ClearColor{0, 0, 0, 1},
	}
}

func newRenderer(t *testing.T, shaders shaderMap, cfg Config) (*Renderer, *drivertest.Device) {
	t.Helper()
	dev := drivertest.New(3, driver.Extent2D{Width: 64, Height: 32})
	r, err := New(dev, shaders, surface{64, 32}, cfg)
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	return r, dev
}

func quad() ([]uint32, []metadata.Vertex) {
	vertices := []metadata.Vertex{
		{Position: math.NewVec3(-1, -1, 0)},
		{Position: math.NewVec3(1, -1, 0)},
		{Position: math.NewVec3(1, 1, 0)},
		{Position: math.NewVec3(-1, 1, 0)},
	}
	return []uint32{0, 1, 2, 2, 3, 0}, vertices
}

func (r *Renderer) testMesh(t *testing.T) *metadata.MeshAsset {
	t.Helper()
	indices, vertices := quad()
	buffers, err := r.UploadMeshData(indices, vertices)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	mat := r.DefaultMaterial()
	return &metadata.MeshAsset{
		Name: "quad",
		Surfaces: []metadata.GeoSurface{
			{StartIndex: 0, Count: 3, Material: mat},
			{StartIndex: 3, Count: 3, Material: mat},
		},
		Buffers: buffers,
	}
}

func TestNewBuildsDefaults(t *testing.T) {
	r, dev := newRenderer(t, testShaders, testConfig())
	if r.DefaultMaterial() == nil || !r.DefaultMaterial().Pipeline.Usable() {
		t.Fatalf("default material not usable: %+v", r.DefaultMaterial())
	}
	if r.ErrorImage() == nil || r.ErrorImage().Extent.Width != 16 {
		t.Fatalf("checkerboard image missing: %+v", r.ErrorImage())
	}
	if r.Sampler(driver.FilterNearest) == r.Sampler(driver.FilterLinear) {
		t.Fatalf("samplers should differ")
	}
	if got := dev.Count("CreateComputePipeline"); got != 2 {
		t.Fatalf("compute pipelines = %d, want gradient and sky", got)
	}
}

func TestUploadMeshData(t *testing.T) {
	r, dev := newRenderer(t, testShaders, testConfig())
	indices, vertices := quad()
	dev.ClearEvents()

	mesh, err := r.UploadMeshData(indices, vertices)
	if err != nil {
		t.Fatal(err)
	}
	if got := dev.Count("CopyBuffer"); got != 2 {
		t.Fatalf("copies = %d, want 2", got)
	}
	if got := dev.Count("Submit"); got != 1 {
		t.Fatalf("submits = %d, want 1", got)
	}
	if !bytes.Equal(dev.BufferData(mesh.VertexBuffer.Handle), metadata.VertexBytes(vertices)) {
		t.Fatalf("vertex buffer contents differ")
	}
	if !bytes.Equal(dev.BufferData(mesh.IndexBuffer.Handle), metadata.IndexBytes(indices)) {
		t.Fatalf("index buffer contents differ")
	}
	if mesh.VertexBufferAddress == 0 {
		t.Fatalf("vertex buffer address not set")
	}

	if _, err := r.UploadMeshData(nil, vertices); !errors.Is(err, ErrEmptyUpload) {
		t.Fatalf("empty upload err = %v", err)
	}
}

func TestUploadMeshDataWriteFailureLeaksNothing(t *testing.T) {
	for failAt := 1; failAt <= 2; failAt++ {
		r, dev := newRenderer(t, testShaders, testConfig())
		indices, vertices := quad()
		before := dev.Live()

		writes := 0
		dev.WriteHook = func(driver.Buffer) error {
			writes++
			if writes == failAt {
				return errors.New("mapping lost")
			}
			return nil
		}
		if _, err := r.UploadMeshData(indices, vertices); err == nil {
			t.Fatalf("write %d: expected an error", failAt)
		}
		if after := dev.Live(); after != before {
			t.Fatalf("write %d: %d handles alive, want %d", failAt, after, before)
		}
	}
}

func TestUploadImageData(t *testing.T) {
	r, dev := newRenderer(t, testShaders, testConfig())
	dev.ClearEvents()

	pixels := make([]byte, 2*2*4)
	img, err := r.UploadImageData(pixels, driver.Extent3D{Width: 2, Height: 2, Depth: 1}, driver.FormatR8G8B8A8Unorm, true)
	if err != nil {
		t.Fatal(err)
	}
	got := dev.Ops("TransitionImage", "CopyBufferToImage")
	if len(got) != 3 || !strings.HasPrefix(got[1], "CopyBufferToImage") ||
		!strings.HasSuffix(got[0], "Undefined->TransferDst)") ||
		!strings.HasSuffix(got[2], "TransferDst->ShaderReadOnly)") {
		t.Fatalf("ops = %v", got)
	}
	if img.Image == 0 || img.View == 0 {
		t.Fatalf("image not created: %+v", img)
	}

	if _, err := r.UploadImageData(pixels[:3], driver.Extent3D{Width: 2, Height: 2, Depth: 1}, driver.FormatR8G8B8A8Unorm, false); err == nil {
		t.Fatalf("short pixel data accepted")
	}
}

func TestFrameDrawsEverySurface(t *testing.T) {
	r, dev := newRenderer(t, testShaders, testConfig())
	mesh := r.testMesh(t)

	graph := scene.NewGraph()
	root := graph.AddNode("root", scene.KindEmpty, math.NewMat4Translation(math.NewVec3(0, 0, -5)), scene.NoNode)
	graph.AddMesh("quad", mesh, math.NewMat4Identity(), root)
	graph.RefreshTransforms(math.NewMat4Identity())
	dev.ClearEvents()

	if err := r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	r.SubmitDrawable(graph, root)
	if err := r.EndFrame(); err != nil {
		t.Fatal(err)
	}

	stats := r.Stats()
	if stats.DrawCalls != 2 || stats.Triangles != 2 {
		t.Fatalf("stats = %+v, want 2 draws 2 triangles", stats)
	}
	if got := dev.Count("DrawIndexed"); got != 2 {
		t.Fatalf("DrawIndexed = %d, want 2", got)
	}
	// Both surfaces share material and buffers, so state is bound once.
	if got := dev.Count("BindPipeline"); got != 2 {
		t.Fatalf("BindPipeline = %d, want compute and graphics", got)
	}
	if got := dev.Count("BindIndexBuffer"); got != 1 {
		t.Fatalf("BindIndexBuffer = %d, want 1", got)
	}
	if got := dev.Count("Dispatch"); got != 1 {
		t.Fatalf("Dispatch = %d, want 1", got)
	}
	if got := dev.Count("Present"); got != 1 {
		t.Fatalf("Present = %d, want 1", got)
	}

	// Drawables are consumed by the frame.
	if err := r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := r.EndFrame(); err != nil {
		t.Fatal(err)
	}
	if got := r.Stats().DrawCalls; got != 0 {
		t.Fatalf("second frame draws = %d, want 0", got)
	}
}

func TestBackgroundFallsBackToClear(t *testing.T) {
	cfg := testConfig()
	cfg.BackgroundShader = "missing.comp.spv"
	r, dev := newRenderer(t, testShaders, cfg)
	dev.ClearEvents()

	if err := r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := r.EndFrame(); err != nil {
		t.Fatal(err)
	}
	if dev.Count("Dispatch") != 0 || dev.Count("ClearColorImage") != 1 {
		t.Fatalf("ops = %v", dev.Ops("Dispatch", "ClearColorImage"))
	}
}

func TestSelectBackgroundEffect(t *testing.T) {
	shaders := shaderMap{
		"mesh.vert.spv":     testShaders["mesh.vert.spv"],
		"mesh.frag.spv":     testShaders["mesh.frag.spv"],
		"gradient.comp.spv": testShaders["gradient.comp.spv"],
	}
	cfg := testConfig()
	cfg.SkyShader = "missing.comp.spv"
	r, dev := newRenderer(t, shaders, cfg)

	effects := r.BackgroundEffects()
	if len(effects) != 2 || effects[0].Name != "gradient" || effects[1].Name != "sky" {
		t.Fatalf("have effects %+v", effects)
	}
	if r.BackgroundEffect() != effects[0] {
		t.Fatal("gradient should be selected by default")
	}
	if !effects[0].Usable() || effects[1].Usable() {
		t.Fatal("only the gradient shader loaded")
	}
	if err := r.SetBackgroundEffect(2); !errors.Is(err, ErrUnknownEffect) {
		t.Fatalf("have %v, want ErrUnknownEffect", err)
	}
	if r.BackgroundEffect() != effects[0] {
		t.Fatal("a rejected index must keep the selection")
	}

	frameOps := func() []string {
		dev.ClearEvents()
		if err := r.BeginFrame(); err != nil {
			t.Fatal(err)
		}
		if err := r.EndFrame(); err != nil {
			t.Fatal(err)
		}
		return dev.Ops("Dispatch", "ClearColorImage")
	}
	if ops := frameOps(); len(ops) != 1 || !strings.HasPrefix(ops[0], "Dispatch") {
		t.Fatalf("gradient frame ops = %v", ops)
	}

	if err := r.SetBackgroundEffect(1); err != nil {
		t.Fatal(err)
	}
	if ops := frameOps(); len(ops) != 1 || !strings.HasPrefix(ops[0], "ClearColorImage") {
		t.Fatalf("sky without a pipeline should clear, ops = %v", ops)
	}
}

func TestUnusablePipelineSkipsDraws(t *testing.T) {
	shaders := shaderMap{"gradient.comp.spv": testShaders["gradient.comp.spv"]}
	r, dev := newRenderer(t, shaders, testConfig())
	if r.DefaultMaterial().Pipeline.Usable() {
		t.Fatalf("pipeline usable without shaders")
	}
	mesh := r.testMesh(t)
	graph := scene.NewGraph()
	node := graph.AddMesh("quad", mesh, math.NewMat4Identity(), scene.NoNode)
	graph.RefreshTransforms(math.NewMat4Identity())
	dev.ClearEvents()

	if err := r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	r.SubmitDrawable(graph, node)
	if err := r.EndFrame(); err != nil {
		t.Fatal(err)
	}
	if got := r.Stats(); got.DrawCalls != 0 || got.Skipped != 2 {
		t.Fatalf("stats = %+v, want 2 skipped", got)
	}
	if dev.Count("Present") != 1 {
		t.Fatalf("frame not presented")
	}

	// Shaders fixed on disk: a rebuild makes the existing material drawable.
	shaders["mesh.vert.spv"] = testShaders["mesh.vert.spv"]
	shaders["mesh.frag.spv"] = testShaders["mesh.frag.spv"]
	if err := r.BuildPipelines(); err != nil {
		t.Fatal(err)
	}
	if !r.DefaultMaterial().Pipeline.Usable() {
		t.Fatalf("rebuild did not produce a usable pipeline")
	}
}

func TestSkippedFrameIsNotAnError(t *testing.T) {
	r, dev := newRenderer(t, testShaders, testConfig())
	dev.AcquireResults = []drivertest.AcquireResult{{Err: driver.ErrOutOfDate}}

	if err := r.BeginFrame(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := r.EndFrame(); err != nil {
		t.Fatalf("end: %v", err)
	}
	if dev.Count("Present") != 0 {
		t.Fatalf("skipped frame presented")
	}
	if !r.Scheduler().ResizePending() {
		t.Fatalf("out of date swapchain should request a resize")
	}
}

func TestWriteMaterialInvalidPass(t *testing.T) {
	r, _ := newRenderer(t, testShaders, testConfig())
	if _, err := r.WriteMaterial(materials.PassOther, r.DefaultResources()); !errors.Is(err, materials.ErrInvalidMaterialPass) {
		t.Fatalf("err = %v", err)
	}
}

func TestShutdownReleasesEverything(t *testing.T) {
	r, dev := newRenderer(t, testShaders, testConfig())
	mesh := r.testMesh(t)
	graph := scene.NewGraph()
	node := graph.AddMesh("quad", mesh, math.NewMat4Identity(), scene.NoNode)
	graph.RefreshTransforms(math.NewMat4Identity())

	for i := 0; i < 3; i++ {
		if err := r.BeginFrame(); err != nil {
			t.Fatal(err)
		}
		r.SubmitDrawable(graph, node)
		if err := r.EndFrame(); err != nil {
			t.Fatal(err)
		}
	}
	r.ReleaseMesh(mesh.Buffers)

	if err := r.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if n := dev.Live(); n != 0 {
		t.Fatalf("%d handles alive after shutdown", n)
	}
}

// Buffers released between frames are used by the frame submitted last, so
// they may only be destroyed once that frame's fence has signaled.
func TestReleaseWaitsForLastSubmittedFrame(t *testing.T) {
	r, dev := newRenderer(t, testShaders, testConfig())
	mesh := r.testMesh(t)
	graph := scene.NewGraph()
	node := graph.AddMesh("quad", mesh, math.NewMat4Identity(), scene.NoNode)
	graph.RefreshTransforms(math.NewMat4Identity())

	for i := 0; i < 2; i++ {
		if err := r.BeginFrame(); err != nil {
			t.Fatal(err)
		}
		r.SubmitDrawable(graph, node)
		if err := r.EndFrame(); err != nil {
			t.Fatal(err)
		}
	}
	lastFence := r.frames.Slot(1).RenderFence
	if !dev.Pending(lastFence) {
		t.Fatal("frame 1 fence should still be pending")
	}

	vertex := uint64(mesh.Buffers.VertexBuffer.Handle)
	index := uint64(mesh.Buffers.IndexBuffer.Handle)
	destroyed := 0
	dev.DestroyHook = func(h uint64) {
		if h != vertex && h != index {
			return
		}
		destroyed++
		if dev.Pending(lastFence) {
			t.Errorf("buffer %d destroyed while frame 1 is in flight", h)
		}
	}
	r.ReleaseMesh(mesh.Buffers)

	for i := 0; i < 2; i++ {
		if err := r.BeginFrame(); err != nil {
			t.Fatal(err)
		}
		if err := r.EndFrame(); err != nil {
			t.Fatal(err)
		}
	}
	if destroyed != 2 {
		t.Fatalf("destroyed %d mesh buffers, want 2", destroyed)
	}
}
