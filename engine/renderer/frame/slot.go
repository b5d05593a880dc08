package frame

import (
	"fmt"

	"github.com/spaghettifunk/anima-core/engine/renderer/deletion"
	"github.com/spaghettifunk/anima-core/engine/renderer/descriptors"
	"github.com/spaghettifunk/anima-core/engine/renderer/driver"
)

type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateRecording
	StateSubmitted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateRecording:
		return "recording"
	case StateSubmitted:
		return "submitted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Slot is everything one in-flight frame owns. None of it is touched again
// until RenderFence has signaled.
type Slot struct {
	CommandPool        driver.CommandPool
	Cmd                driver.CommandBuffer
	RenderFence        driver.Fence
	SwapchainSemaphore driver.Semaphore
	RenderSemaphore    driver.Semaphore
	Allocator          *descriptors.GrowableAllocator
	Deletion           deletion.Queue

	state State
}

func (s *Slot) State() State {
	return s.state
}

func newSlot(dev driver.Device, cfg Config) (*Slot, error) {
	var err error
	s := &Slot{}

	if s.CommandPool, err = dev.CreateCommandPool(); err != nil {
		return nil, fmt.Errorf("creating command pool: %w", err)
	}
	if s.Cmd, err = dev.AllocateCommandBuffer(s.CommandPool); err != nil {
		return nil, fmt.Errorf("allocating command buffer: %w", err)
	}
	// Signaled so the first wait on a fresh slot returns at once.
	if s.RenderFence, err = dev.CreateFence(true); err != nil {
		return nil, fmt.Errorf("creating render fence: %w", err)
	}
	if s.SwapchainSemaphore, err = dev.CreateSemaphore(); err != nil {
		return nil, fmt.Errorf("creating swapchain semaphore: %w", err)
	}
	if s.RenderSemaphore, err = dev.CreateSemaphore(); err != nil {
		return nil, fmt.Errorf("creating render semaphore: %w", err)
	}

	s.Allocator = descriptors.NewGrowableAllocator(dev)
	if err := s.Allocator.InitPool(cfg.InitialSets, cfg.PoolRatios); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Slot) destroy(dev driver.Device, r deletion.Releaser) error {
	err := s.Deletion.Flush(r)
	s.Allocator.DestroyPool()
	dev.DestroyCommandPool(s.CommandPool)
	dev.DestroyFence(s.RenderFence)
	dev.DestroySemaphore(s.SwapchainSemaphore)
	dev.DestroySemaphore(s.RenderSemaphore)
	s.state = StateIdle
	return err
}
