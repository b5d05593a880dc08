// Package frame paces command recording against GPU execution with a fixed
// number of in-flight frame slots.
package frame

import (
	"errors"
	"fmt"
	"time"

	"github.com/spaghettifunk/anima-core/engine/core"
	"github.com/spaghettifunk/anima-core/engine/math"
	"github.com/spaghettifunk/anima-core/engine/renderer/deletion"
	"github.com/spaghettifunk/anima-core/engine/renderer/descriptors"
	"github.com/spaghettifunk/anima-core/engine/renderer/driver"
	"github.com/spaghettifunk/anima-core/engine/renderer/metadata"
)

var (
	// ErrFrameSkipped is returned by BeginFrame when no swapchain image could
	// be acquired. The swapchain is rebuilt before the next frame.
	ErrFrameSkipped        = errors.New("frame skipped, swapchain out of date")
	ErrRecordingInProgress = errors.New("immediate submit while a frame is recording")
	ErrNotRecording        = errors.New("no frame is being recorded")
)

type Config struct {
	FramesInFlight int
	FenceTimeout   time.Duration
	// InitialSets and PoolRatios size the first descriptor pool of every
	// frame slot.
	InitialSets uint32
	PoolRatios  []driver.PoolSizeRatio
	RenderScale float32
}

func DefaultConfig() Config {
	return Config{
		FramesInFlight: 2,
		FenceTimeout:   time.Second,
		InitialSets:    1000,
		PoolRatios: []driver.PoolSizeRatio{
			{Type: driver.DescriptorTypeStorageImage, Ratio: 3},
			{Type: driver.DescriptorTypeStorageBuffer, Ratio: 3},
			{Type: driver.DescriptorTypeUniformBuffer, Ratio: 3},
			{Type: driver.DescriptorTypeCombinedImageSampler, Ratio: 4},
		},
		RenderScale: 1,
	}
}

// SurfaceSizer reports the current size of the presentation surface in
// pixels.
type SurfaceSizer interface {
	FramebufferSize() (width, height uint32)
}

// FrameContext is handed to passes while a frame records.
type FrameContext struct {
	Number          uint64
	SlotIndex       int
	Slot            *Slot
	Cmd             driver.CommandBuffer
	ImageIndex      uint32
	SwapchainImage  driver.Image
	SwapchainView   driver.ImageView
	SwapchainExtent driver.Extent2D
	SwapchainFormat driver.Format
	Draw            *metadata.AllocatedImage
	Depth           *metadata.AllocatedImage
	DrawExtent      driver.Extent2D
	Allocator       *descriptors.GrowableAllocator
	Deletion        *deletion.Queue
}

// Pass records part of a frame. A fatal error aborts the frame; any other
// error is logged and recording continues.
type Pass func(fc *FrameContext) error

// Passes run in order: Background into the draw image in General layout,
// Geometry into the draw and depth attachments, Overlay into the swapchain
// image after the draw image was copied there.
type Passes struct {
	Background Pass
	Geometry   Pass
	Overlay    Pass
}

type Scheduler struct {
	dev      driver.Device
	cfg      Config
	targets  Targets
	surface  SurfaceSizer
	releaser deletion.Releaser

	slots         []*Slot
	frameNumber   uint64
	current       *FrameContext
	resizePending bool
	renderScale   float32

	immPool  driver.CommandPool
	immCmd   driver.CommandBuffer
	immFence driver.Fence
}

// New creates cfg.FramesInFlight slots and the immediate submission
// resources.
func New(dev driver.Device, cfg Config, targets Targets, surface SurfaceSizer) (*Scheduler, error) {
	def := DefaultConfig()
	if cfg.FramesInFlight <= 0 {
		cfg.FramesInFlight = def.FramesInFlight
	}
	if cfg.FenceTimeout <= 0 {
		cfg.FenceTimeout = def.FenceTimeout
	}
	if cfg.InitialSets == 0 {
		cfg.InitialSets = def.InitialSets
	}
	if len(cfg.PoolRatios) == 0 {
		cfg.PoolRatios = def.PoolRatios
	}
	if cfg.RenderScale == 0 {
		cfg.RenderScale = def.RenderScale
	}

	s := &Scheduler{
		dev:      dev,
		cfg:      cfg,
		targets:  targets,
		surface:  surface,
		releaser: deletion.NewDeviceReleaser(dev),
	}
	s.SetRenderScale(cfg.RenderScale)

	for i := 0; i < cfg.FramesInFlight; i++ {
		slot, err := newSlot(dev, cfg)
		if err != nil {
			return nil, fmt.Errorf("frame slot %d: %w", i, err)
		}
		s.slots = append(s.slots, slot)
	}

	var err error
	if s.immPool, err = dev.CreateCommandPool(); err != nil {
		return nil, fmt.Errorf("creating immediate command pool: %w", err)
	}
	if s.immCmd, err = dev.AllocateCommandBuffer(s.immPool); err != nil {
		return nil, fmt.Errorf("allocating immediate command buffer: %w", err)
	}
	if s.immFence, err = dev.CreateFence(true); err != nil {
		return nil, fmt.Errorf("creating immediate fence: %w", err)
	}

	core.LogDebug("frame scheduler created with %d slots", len(s.slots))
	return s, nil
}

func (s *Scheduler) FrameNumber() uint64 {
	return s.frameNumber
}

func (s *Scheduler) Slot(i int) *Slot {
	return s.slots[i]
}

func (s *Scheduler) SlotCount() int {
	return len(s.slots)
}

// CurrentSlot returns the slot the next or current frame uses.
func (s *Scheduler) CurrentSlot() *Slot {
	return s.slots[s.frameNumber%uint64(len(s.slots))]
}

// ReleaseSlot returns the slot whose deletion queue is flushed only after
// every frame recorded so far has retired. While recording that is the
// current slot; between frames it is the slot of the last submitted frame.
func (s *Scheduler) ReleaseSlot() *Slot {
	if s.current != nil || s.frameNumber == 0 {
		return s.CurrentSlot()
	}
	return s.slots[(s.frameNumber-1)%uint64(len(s.slots))]
}

// Recording reports whether a frame is between BeginFrame and EndFrame.
func (s *Scheduler) Recording() bool {
	return s.current != nil
}

func (s *Scheduler) RequestResize() {
	s.resizePending = true
}

func (s *Scheduler) ResizePending() bool {
	return s.resizePending
}

// SetRenderScale sets the fraction of the draw image rendered each frame,
// clamped to [0.3, 1].
func (s *Scheduler) SetRenderScale(scale float32) {
	s.renderScale = math.Clamp(scale, 0.3, 1.0)
}

func (s *Scheduler) RenderScale() float32 {
	return s.renderScale
}

func (s *Scheduler) drawExtent(swapchain driver.Extent2D) driver.Extent2D {
	draw := s.targets.DrawImage().Extent
	return driver.Extent2D{
		Width:  uint32(float32(min(swapchain.Width, draw.Width)) * s.renderScale),
		Height: uint32(float32(min(swapchain.Height, draw.Height)) * s.renderScale),
	}
}

// BeginFrame waits until the next slot is free, recycles its resources,
// acquires a swapchain image and starts recording. It returns
// ErrFrameSkipped when the swapchain is out of date; the caller simply
// tries again next frame.
func (s *Scheduler) BeginFrame() (*FrameContext, error) {
	if s.current != nil {
		return nil, ErrRecordingInProgress
	}
	if s.resizePending {
		if err := s.Resize(); err != nil {
			return nil, err
		}
	}

	index := int(s.frameNumber % uint64(len(s.slots)))
	slot := s.slots[index]

	if err := s.dev.WaitForFence(slot.RenderFence, s.cfg.FenceTimeout); err != nil {
		return nil, core.Fatal(fmt.Errorf("waiting for frame slot %d: %w", index, err))
	}
	slot.state = StateAcquiring

	if err := slot.Deletion.Flush(s.releaser); err != nil {
		return nil, err
	}
	if err := slot.Allocator.ClearPools(); err != nil {
		return nil, core.Fatal(err)
	}

	imageIndex, status, err := s.dev.AcquireNextImage(slot.SwapchainSemaphore, s.cfg.FenceTimeout)
	if errors.Is(err, driver.ErrOutOfDate) {
		// The fence was not reset, so the slot is immediately reusable.
		s.resizePending = true
		slot.state = StateIdle
		return nil, ErrFrameSkipped
	}
	if err != nil {
		slot.state = StateIdle
		return nil, core.Fatal(fmt.Errorf("acquiring swapchain image: %w", err))
	}
	if status == driver.StatusSuboptimal {
		s.resizePending = true
	}

	if err := s.dev.ResetFence(slot.RenderFence); err != nil {
		return nil, core.Fatal(err)
	}
	if err := s.dev.ResetCommandBuffer(slot.Cmd); err != nil {
		return nil, core.Fatal(err)
	}
	if err := s.dev.BeginCommandBuffer(slot.Cmd, true); err != nil {
		return nil, core.Fatal(err)
	}
	slot.state = StateRecording

	swapchainExtent := s.dev.SwapchainExtent()
	s.current = &FrameContext{
		Number:          s.frameNumber,
		SlotIndex:       index,
		Slot:            slot,
		Cmd:             slot.Cmd,
		ImageIndex:      imageIndex,
		SwapchainImage:  s.dev.SwapchainImage(imageIndex),
		SwapchainView:   s.dev.SwapchainView(imageIndex),
		SwapchainExtent: swapchainExtent,
		SwapchainFormat: s.dev.SwapchainFormat(),
		Draw:            s.targets.DrawImage(),
		Depth:           s.targets.DepthImage(),
		DrawExtent:      s.drawExtent(swapchainExtent),
		Allocator:       slot.Allocator,
		Deletion:        &slot.Deletion,
	}
	return s.current, nil
}

func runPass(name string, pass Pass, fc *FrameContext) error {
	if pass == nil {
		return nil
	}
	if err := pass(fc); err != nil {
		if core.IsFatal(err) {
			return err
		}
		core.LogError("%s pass: %s", name, err)
	}
	return nil
}

// EndFrame records the passes around the image transitions, submits the
// frame and presents it.
func (s *Scheduler) EndFrame(fc *FrameContext, passes Passes) error {
	if fc == nil || fc != s.current {
		return ErrNotRecording
	}
	cmd := fc.Cmd
	draw := fc.Draw.Image
	swapchain := fc.SwapchainImage

	s.dev.TransitionImage(cmd, draw, driver.LayoutUndefined, driver.LayoutGeneral)
	if err := runPass("background", passes.Background, fc); err != nil {
		return err
	}

	s.dev.TransitionImage(cmd, draw, driver.LayoutGeneral, driver.LayoutColorAttachment)
	s.dev.TransitionImage(cmd, fc.Depth.Image, driver.LayoutUndefined, driver.LayoutDepthAttachment)
	if err := runPass("geometry", passes.Geometry, fc); err != nil {
		return err
	}

	s.dev.TransitionImage(cmd, draw, driver.LayoutColorAttachment, driver.LayoutTransferSrc)
	s.dev.TransitionImage(cmd, swapchain, driver.LayoutUndefined, driver.LayoutTransferDst)
	s.dev.CopyImage(cmd, draw, swapchain, fc.DrawExtent, fc.SwapchainExtent)

	s.dev.TransitionImage(cmd, swapchain, driver.LayoutTransferDst, driver.LayoutColorAttachment)
	if err := runPass("overlay", passes.Overlay, fc); err != nil {
		return err
	}
	s.dev.TransitionImage(cmd, swapchain, driver.LayoutColorAttachment, driver.LayoutPresentSrc)

	if err := s.dev.EndCommandBuffer(cmd); err != nil {
		return core.Fatal(err)
	}

	slot := fc.Slot
	err := s.dev.Submit(driver.SubmitInfo{
		CommandBuffer: cmd,
		Wait:          slot.SwapchainSemaphore,
		WaitStage:     driver.PipelineStageColorAttachmentOutput,
		Signal:        slot.RenderSemaphore,
		Fence:         slot.RenderFence,
	})
	if err != nil {
		return core.Fatal(fmt.Errorf("submitting frame %d: %w", fc.Number, err))
	}
	slot.state = StateSubmitted
	s.current = nil

	status, err := s.dev.Present(fc.ImageIndex, slot.RenderSemaphore)
	switch {
	case errors.Is(err, driver.ErrOutOfDate):
		s.resizePending = true
	case err != nil:
		return core.Fatal(fmt.Errorf("presenting frame %d: %w", fc.Number, err))
	case status == driver.StatusSuboptimal:
		s.resizePending = true
	}

	s.frameNumber++
	return nil
}

// ImmediateSubmit records fn into the dedicated command buffer, submits it
// and blocks until the GPU is done with it.
func (s *Scheduler) ImmediateSubmit(fn func(cmd driver.CommandBuffer) error) error {
	if s.current != nil {
		return ErrRecordingInProgress
	}

	if err := s.dev.ResetFence(s.immFence); err != nil {
		return core.Fatal(err)
	}
	if err := s.dev.ResetCommandBuffer(s.immCmd); err != nil {
		return core.Fatal(err)
	}
	if err := s.dev.BeginCommandBuffer(s.immCmd, true); err != nil {
		return core.Fatal(err)
	}

	if err := fn(s.immCmd); err != nil {
		if endErr := s.dev.EndCommandBuffer(s.immCmd); endErr != nil {
			return core.Fatal(endErr)
		}
		return err
	}

	if err := s.dev.EndCommandBuffer(s.immCmd); err != nil {
		return core.Fatal(err)
	}
	if err := s.dev.Submit(driver.SubmitInfo{CommandBuffer: s.immCmd, Fence: s.immFence}); err != nil {
		return core.Fatal(fmt.Errorf("immediate submit: %w", err))
	}
	if err := s.dev.WaitForFence(s.immFence, s.cfg.FenceTimeout); err != nil {
		return core.Fatal(fmt.Errorf("waiting for immediate submit: %w", err))
	}
	return nil
}

// Resize waits for the device to go idle and rebuilds the swapchain and the
// render targets at the current surface size. A zero sized surface, such as
// a minimized window, keeps the resize pending.
func (s *Scheduler) Resize() error {
	if err := s.dev.WaitIdle(); err != nil {
		return core.Fatal(err)
	}

	width, height := s.surface.FramebufferSize()
	if width == 0 || height == 0 {
		return nil
	}

	if err := s.dev.RecreateSwapchain(width, height); err != nil {
		return fmt.Errorf("recreating swapchain: %w", err)
	}
	if err := s.targets.Rebuild(driver.Extent2D{Width: width, Height: height}); err != nil {
		return core.Fatal(fmt.Errorf("rebuilding render targets: %w", err))
	}
	s.resizePending = false
	core.LogInfo("swapchain resized to %dx%d", width, height)
	return nil
}

// Shutdown drains the device and releases every slot.
func (s *Scheduler) Shutdown() error {
	if err := s.dev.WaitIdle(); err != nil {
		return core.Fatal(err)
	}

	var errs []error
	for _, slot := range s.slots {
		if err := slot.destroy(s.dev, s.releaser); err != nil {
			errs = append(errs, err)
		}
	}
	s.slots = nil

	s.dev.DestroyCommandPool(s.immPool)
	s.dev.DestroyFence(s.immFence)
	return errors.Join(errs...)
}
