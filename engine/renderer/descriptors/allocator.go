// Package descriptors allocates descriptor sets from pools that grow on
// demand and writes their contents.
package descriptors

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/anima-core/engine/core"
	"github.com/spaghettifunk/anima-core/engine/renderer/driver"
)

// MaxSetsPerPool caps the growth of new pools.
const MaxSetsPerPool uint32 = 4096

// Pool is one native descriptor pool and the capacity it was made with.
type Pool struct {
	Handle  driver.DescriptorPool
	MaxSets uint32
}

// Stats is a snapshot of the allocator's pool lists.
type Stats struct {
	Ready      int
	Full       int
	Capacities []uint32
	NextTarget uint32
}

// GrowableAllocator hands out descriptor sets from a list of ready pools,
// creating a bigger pool whenever every existing one is exhausted. It is not
// safe for concurrent use; each frame owns its own.
type GrowableAllocator struct {
	dev         driver.DescriptorDevice
	ratios      []driver.PoolSizeRatio
	ready       []Pool
	full        []Pool
	created     []uint32
	setsPerPool uint32
}

func NewGrowableAllocator(dev driver.DescriptorDevice) *GrowableAllocator {
	return &GrowableAllocator{dev: dev}
}

func grow(sets uint32) uint32 {
	next := sets + sets/2
	if next > MaxSetsPerPool {
		return MaxSetsPerPool
	}
	return next
}

// InitPool creates the first pool with initialSets sets and remembers ratios
// for every pool created afterwards.
func (a *GrowableAllocator) InitPool(initialSets uint32, ratios []driver.PoolSizeRatio) error {
	if initialSets == 0 {
		return errors.New("descriptor allocator needs at least one set per pool")
	}
	a.ratios = append(a.ratios[:0], ratios...)

	pool, err := a.createPool(initialSets)
	if err != nil {
		return err
	}
	a.setsPerPool = grow(initialSets)
	a.ready = append(a.ready, pool)
	return nil
}

func (a *GrowableAllocator) createPool(sets uint32) (Pool, error) {
	handle, err := a.dev.CreateDescriptorPool(sets, driver.PoolSizes(sets, a.ratios))
	if err != nil {
		return Pool{}, core.Fatal(fmt.Errorf("creating descriptor pool of %d sets: %w", sets, err))
	}
	a.created = append(a.created, sets)
	return Pool{Handle: handle, MaxSets: sets}, nil
}

func (a *GrowableAllocator) getPool() (Pool, error) {
	if n := len(a.ready); n > 0 {
		pool := a.ready[n-1]
		a.ready = a.ready[:n-1]
		return pool, nil
	}

	pool, err := a.createPool(a.setsPerPool)
	if err != nil {
		return Pool{}, err
	}
	a.setsPerPool = grow(a.setsPerPool)
	return pool, nil
}

func exhausted(err error) bool {
	return errors.Is(err, driver.ErrOutOfPoolMemory) || errors.Is(err, driver.ErrFragmentedPool)
}

// Allocate returns one descriptor set for layout. An exhausted pool is
// retired to the full list and the allocation retried once on another pool;
// failing again is fatal, as is running out of memory.
func (a *GrowableAllocator) Allocate(layout driver.DescriptorSetLayout) (driver.DescriptorSet, error) {
	pool, err := a.getPool()
	if err != nil {
		return 0, err
	}

	set, err := a.dev.AllocateDescriptorSet(pool.Handle, layout)
	if exhausted(err) {
		a.full = append(a.full, pool)

		pool, err = a.getPool()
		if err != nil {
			return 0, err
		}
		set, err = a.dev.AllocateDescriptorSet(pool.Handle, layout)
		if err != nil {
			a.full = append(a.full, pool)
			return 0, core.Fatal(fmt.Errorf("allocating descriptor set after growing: %w", err))
		}
	} else if err != nil {
		a.ready = append(a.ready, pool)
		return 0, core.Fatal(fmt.Errorf("allocating descriptor set: %w", err))
	}

	a.ready = append(a.ready, pool)
	return set, nil
}

// ClearPools resets every pool and marks all of them ready again. Pools are
// kept, so calling it twice is the same as calling it once. The lists are
// only rebuilt once every reset succeeded, so a failure leaves each pool
// tracked exactly once.
func (a *GrowableAllocator) ClearPools() error {
	for _, list := range [][]Pool{a.ready, a.full} {
		for _, p := range list {
			if err := a.dev.ResetDescriptorPool(p.Handle); err != nil {
				return fmt.Errorf("resetting descriptor pool: %w", err)
			}
		}
	}
	a.ready = append(a.ready, a.full...)
	a.full = a.full[:0]
	return nil
}

// DestroyPool destroys every pool. The allocator can be initialized again
// afterwards.
func (a *GrowableAllocator) DestroyPool() {
	for _, p := range a.ready {
		a.dev.DestroyDescriptorPool(p.Handle)
	}
	for _, p := range a.full {
		a.dev.DestroyDescriptorPool(p.Handle)
	}
	a.ready = a.ready[:0]
	a.full = a.full[:0]
}

func (a *GrowableAllocator) Stats() Stats {
	caps := make([]uint32, len(a.created))
	copy(caps, a.created)
	return Stats{
		Ready:      len(a.ready),
		Full:       len(a.full),
		Capacities: caps,
		NextTarget: a.setsPerPool,
	}
}
