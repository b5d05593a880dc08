package frame

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"golang.org/x/exp/rand"

	"github.com/spaghettifunk/anima-core/engine/core"
	"github.com/spaghettifunk/anima-core/engine/renderer/deletion"
	"github.com/spaghettifunk/anima-core/engine/renderer/driver"
	"github.com/spaghettifunk/anima-core/engine/renderer/driver/drivertest"
)

type fixedSurface struct {
	width, height uint32
}

func (f *fixedSurface) FramebufferSize() (uint32, uint32) {
	return f.width, f.height
}

type harness struct {
	dev     *drivertest.Device
	sched   *Scheduler
	targets *RenderTargets
	surface *fixedSurface
	layout  driver.DescriptorSetLayout
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	extent := driver.Extent2D{Width: 64, Height: 48}
	dev := drivertest.New(3, extent)
	targets, err := NewRenderTargets(dev, dev.DrawFormat(), dev.DepthFormat(), extent)
	if err != nil {
		t.Fatal(err)
	}
	surface := &fixedSurface{width: 64, height: 48}
	cfg := DefaultConfig()
	cfg.InitialSets = 4
	sched, err := New(dev, cfg, targets, surface)
	if err != nil {
		t.Fatal(err)
	}
	layout, _ := dev.CreateDescriptorSetLayout([]driver.LayoutBinding{{Binding: 0, Type: driver.DescriptorTypeUniformBuffer, Count: 1}}, driver.StageAllGraphics)
	return &harness{dev: dev, sched: sched, targets: targets, surface: surface, layout: layout}
}

func (h *harness) frame(t *testing.T, passes Passes) {
	t.Helper()
	fc, err := h.sched.BeginFrame()
	if err != nil {
		t.Fatalf("begin frame %d: %v", h.sched.FrameNumber(), err)
	}
	if err := h.sched.EndFrame(fc, passes); err != nil {
		t.Fatalf("end frame %d: %v", fc.Number, err)
	}
}

func opNames(events []drivertest.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Op)
	}
	return out
}

func TestFrameCycleOrder(t *testing.T) {
	h := newHarness(t)
	slot := h.sched.CurrentSlot()
	buf, _ := h.dev.CreateBuffer(16, driver.BufferUsageUniform, driver.MemoryCPUToGPU)
	slot.Deletion.Push(deletion.Buffer(buf))
	h.dev.ClearEvents()

	fc, err := h.sched.BeginFrame()
	if err != nil {
		t.Fatal(err)
	}
	if slot.State() != StateRecording {
		t.Fatalf("have state %s, want recording", slot.State())
	}
	want := []string{
		"WaitForFence",
		"DestroyBuffer",
		"ResetDescriptorPool",
		"AcquireNextImage",
		"ResetFence",
		"ResetCommandBuffer",
		"BeginCommandBuffer",
	}
	if have := opNames(h.dev.Events); !reflect.DeepEqual(have, want) {
		t.Fatalf("have %v, want %v", have, want)
	}

	h.dev.ClearEvents()
	var order []string
	passes := Passes{
		Background: func(*FrameContext) error { order = append(order, "background"); return nil },
		Geometry:   func(*FrameContext) error { order = append(order, "geometry"); return nil },
		Overlay:    func(*FrameContext) error { order = append(order, "overlay"); return nil },
	}
	if err := h.sched.EndFrame(fc, passes); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(order, []string{"background", "geometry", "overlay"}) {
		t.Fatalf("have pass order %v", order)
	}

	draw, depth, sc := fc.Draw.Image, fc.Depth.Image, fc.SwapchainImage
	wantOps := []string{
		fmt.Sprintf("TransitionImage(%d,Undefined->General)", draw),
		fmt.Sprintf("TransitionImage(%d,General->ColorAttachment)", draw),
		fmt.Sprintf("TransitionImage(%d,Undefined->DepthAttachment)", depth),
		fmt.Sprintf("TransitionImage(%d,ColorAttachment->TransferSrc)", draw),
		fmt.Sprintf("TransitionImage(%d,Undefined->TransferDst)", sc),
		fmt.Sprintf("CopyImage(%d->%d)", draw, sc),
		fmt.Sprintf("TransitionImage(%d,TransferDst->ColorAttachment)", sc),
		fmt.Sprintf("TransitionImage(%d,ColorAttachment->PresentSrc)", sc),
		fmt.Sprintf("EndCommandBuffer(%d)", fc.Cmd),
		fmt.Sprintf("Submit(%d)", fc.Cmd),
		"Present(0)",
	}
	if have := h.dev.Ops(); !reflect.DeepEqual(have, wantOps) {
		t.Fatalf("have %v\nwant %v", have, wantOps)
	}
	if slot.State() != StateSubmitted {
		t.Fatalf("have state %s, want submitted", slot.State())
	}
	if h.sched.FrameNumber() != 1 {
		t.Fatalf("have frame number %d, want 1", h.sched.FrameNumber())
	}
	if !h.dev.Pending(slot.RenderFence) {
		t.Fatalf("render fence should guard the submission")
	}
}

func TestSlotsAlternate(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 6; i++ {
		fc, err := h.sched.BeginFrame()
		if err != nil {
			t.Fatal(err)
		}
		if fc.SlotIndex != i%2 || fc.Slot != h.sched.Slot(i%2) {
			t.Fatalf("frame %d used slot %d", i, fc.SlotIndex)
		}
		if err := h.sched.EndFrame(fc, Passes{}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestReleaseSlotFollowsLastSubmission(t *testing.T) {
	h := newHarness(t)
	if h.sched.ReleaseSlot() != h.sched.Slot(0) {
		t.Fatal("before any frame, want slot 0")
	}
	h.frame(t, Passes{})
	if h.sched.ReleaseSlot() != h.sched.Slot(0) {
		t.Fatal("after frame 0, want slot 0")
	}

	fc, err := h.sched.BeginFrame()
	if err != nil {
		t.Fatal(err)
	}
	if h.sched.ReleaseSlot() != fc.Slot {
		t.Fatal("while recording, want the recording slot")
	}
	if err := h.sched.EndFrame(fc, Passes{}); err != nil {
		t.Fatal(err)
	}
	if h.sched.ReleaseSlot() != h.sched.Slot(1) {
		t.Fatal("after frame 1, want slot 1")
	}
}

// Descriptor pools of a slot must never be reset while the GPU may still
// read sets allocated from them.
func TestFenceGatedReuse(t *testing.T) {
	for seed := uint64(1); seed <= 10; seed++ {
		h := newHarness(t)
		r := rand.New(rand.NewSource(seed))

		for frame := 0; frame < 100; frame++ {
			for _, f := range h.dev.PendingFences() {
				if r.Intn(3) == 0 {
					h.dev.Complete(f)
				}
			}

			fc, err := h.sched.BeginFrame()
			if err != nil {
				t.Fatalf("seed %d frame %d: %v", seed, frame, err)
			}
			n := r.Intn(12)
			geometry := func(fc *FrameContext) error {
				for i := 0; i < n; i++ {
					if _, err := fc.Allocator.Allocate(h.layout); err != nil {
						return err
					}
				}
				buf, err := h.dev.CreateBuffer(64, driver.BufferUsageUniform, driver.MemoryCPUToGPU)
				if err != nil {
					return err
				}
				fc.Deletion.Push(deletion.Buffer(buf))
				return nil
			}
			if err := h.sched.EndFrame(fc, Passes{Geometry: geometry}); err != nil {
				t.Fatalf("seed %d frame %d: %v", seed, frame, err)
			}
		}

		if len(h.dev.Violations) > 0 {
			t.Fatalf("seed %d: %v", seed, h.dev.Violations)
		}
	}
}

func TestFenceTimeoutIsFatal(t *testing.T) {
	h := newHarness(t)
	h.frame(t, Passes{})
	h.frame(t, Passes{})

	h.dev.Hang = true
	_, err := h.sched.BeginFrame()
	if !core.IsFatal(err) || !errors.Is(err, driver.ErrTimeout) {
		t.Fatalf("have %v, want fatal timeout", err)
	}
	if n := h.dev.Count("ResetDescriptorPool"); n != 2 {
		t.Fatalf("pools reset %d times, want only the two successful frames", n)
	}
}

func TestOutOfDateSkipsFrame(t *testing.T) {
	h := newHarness(t)
	h.dev.AcquireResults = []drivertest.AcquireResult{{Err: driver.ErrOutOfDate}}
	slot := h.sched.CurrentSlot()

	_, err := h.sched.BeginFrame()
	if !errors.Is(err, ErrFrameSkipped) {
		t.Fatalf("have %v, want ErrFrameSkipped", err)
	}
	if !h.sched.ResizePending() {
		t.Fatalf("resize should be pending")
	}
	if !h.dev.Signaled(slot.RenderFence) {
		t.Fatalf("fence of a skipped frame must stay signaled")
	}
	if h.sched.Recording() || slot.State() != StateIdle {
		t.Fatalf("skipped frame left the slot %s", slot.State())
	}

	h.surface.width, h.surface.height = 128, 96
	h.frame(t, Passes{})
	if h.dev.Recreations() != 1 || h.sched.ResizePending() {
		t.Fatalf("have %d recreations, pending %v", h.dev.Recreations(), h.sched.ResizePending())
	}
	if e := h.targets.DrawImage().Extent; e.Width != 128 || e.Height != 96 {
		t.Fatalf("draw image not rebuilt: %+v", e)
	}
	if h.sched.FrameNumber() != 1 {
		t.Fatalf("have frame number %d, want 1", h.sched.FrameNumber())
	}
}

func TestSuboptimalContinues(t *testing.T) {
	h := newHarness(t)
	h.dev.AcquireResults = []drivertest.AcquireResult{{Status: driver.StatusSuboptimal}}
	h.frame(t, Passes{})
	if !h.sched.ResizePending() {
		t.Fatalf("suboptimal acquire should request a resize")
	}

	h.dev.PresentResults = []drivertest.AcquireResult{{Err: driver.ErrOutOfDate}}
	h.frame(t, Passes{})
	if h.dev.Recreations() != 1 {
		t.Fatalf("have %d recreations, want 1", h.dev.Recreations())
	}
	if !h.sched.ResizePending() {
		t.Fatalf("out of date present should request a resize")
	}
}

func TestMinimizedSurfaceKeepsResizePending(t *testing.T) {
	h := newHarness(t)
	h.sched.RequestResize()
	h.surface.width, h.surface.height = 0, 0
	if err := h.sched.Resize(); err != nil {
		t.Fatal(err)
	}
	if !h.sched.ResizePending() || h.dev.Recreations() != 0 {
		t.Fatalf("zero sized surface should not rebuild the swapchain")
	}
}

func TestImmediateSubmit(t *testing.T) {
	h := newHarness(t)

	fc, err := h.sched.BeginFrame()
	if err != nil {
		t.Fatal(err)
	}
	called := false
	err = h.sched.ImmediateSubmit(func(driver.CommandBuffer) error { called = true; return nil })
	if !errors.Is(err, ErrRecordingInProgress) || called {
		t.Fatalf("have %v, called %v, want ErrRecordingInProgress", err, called)
	}
	if err := h.sched.EndFrame(fc, Passes{}); err != nil {
		t.Fatal(err)
	}

	h.dev.ClearEvents()
	if err := h.sched.ImmediateSubmit(func(cmd driver.CommandBuffer) error {
		h.dev.Dispatch(cmd, 1, 1, 1)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	want := []string{"ResetFence", "ResetCommandBuffer", "BeginCommandBuffer", "Dispatch", "EndCommandBuffer", "Submit", "WaitForFence", "FenceSignaled"}
	if have := opNames(h.dev.Events); !reflect.DeepEqual(have, want) {
		t.Fatalf("have %v, want %v", have, want)
	}

	wantErr := errors.New("upload failed")
	if err := h.sched.ImmediateSubmit(func(driver.CommandBuffer) error { return wantErr }); !errors.Is(err, wantErr) {
		t.Fatalf("have %v, want %v", err, wantErr)
	}
}

func TestRenderScale(t *testing.T) {
	h := newHarness(t)
	h.sched.SetRenderScale(0.1)
	if h.sched.RenderScale() != 0.3 {
		t.Fatalf("have %v, want clamped 0.3", h.sched.RenderScale())
	}
	h.sched.SetRenderScale(0.5)
	h.dev.SetExtent(driver.Extent2D{Width: 40, Height: 100})

	fc, err := h.sched.BeginFrame()
	if err != nil {
		t.Fatal(err)
	}
	if want := (driver.Extent2D{Width: 20, Height: 24}); fc.DrawExtent != want {
		t.Fatalf("have %+v, want %+v", fc.DrawExtent, want)
	}
}

func TestNonFatalPassErrorKeepsFrame(t *testing.T) {
	h := newHarness(t)
	fc, err := h.sched.BeginFrame()
	if err != nil {
		t.Fatal(err)
	}
	err = h.sched.EndFrame(fc, Passes{Geometry: func(*FrameContext) error { return errors.New("missing texture") }})
	if err != nil {
		t.Fatalf("have %v, want frame to complete", err)
	}
	if h.dev.Count("Present") != 1 {
		t.Fatalf("frame was not presented")
	}
}

func TestShutdownReleasesEverything(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		fc, err := h.sched.BeginFrame()
		if err != nil {
			t.Fatal(err)
		}
		buf, _ := h.dev.CreateBuffer(8, driver.BufferUsageUniform, driver.MemoryCPUToGPU)
		fc.Deletion.Push(deletion.Buffer(buf))
		if err := h.sched.EndFrame(fc, Passes{}); err != nil {
			t.Fatal(err)
		}
	}
	if err := h.sched.Shutdown(); err != nil {
		t.Fatal(err)
	}
	h.targets.Destroy()
	h.dev.DestroyDescriptorSetLayout(h.layout)
	if n := h.dev.Live(); n != 0 {
		t.Fatalf("have %d live handles after shutdown", n)
	}
}
