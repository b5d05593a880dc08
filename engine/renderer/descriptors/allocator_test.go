package descriptors

import (
	"errors"
	"reflect"
	"testing"

	"github.com/spaghettifunk/anima-core/engine/core"
	"github.com/spaghettifunk/anima-core/engine/renderer/driver"
	"github.com/spaghettifunk/anima-core/engine/renderer/driver/drivertest"
)

var uniformOnly = []driver.PoolSizeRatio{{Type: driver.DescriptorTypeUniformBuffer, Ratio: 1}}

func newAllocator(t *testing.T, sets uint32) (*GrowableAllocator, *drivertest.Device) {
	t.Helper()
	dev := drivertest.New(2, driver.Extent2D{Width: 4, Height: 4})
	a := NewGrowableAllocator(dev)
	if err := a.InitPool(sets, uniformOnly); err != nil {
		t.Fatalf("init pool: %v", err)
	}
	return a, dev
}

func TestAllocateElevenFromTen(t *testing.T) {
	a, _ := newAllocator(t, 10)

	for i := 0; i < 11; i++ {
		if _, err := a.Allocate(1); err != nil {
			t.Fatalf("allocation %d: %v", i, err)
		}
	}

	st := a.Stats()
	if want := []uint32{10, 15}; !reflect.DeepEqual(st.Capacities, want) {
		t.Fatalf("have capacities %v, want %v", st.Capacities, want)
	}
	if st.Full != 1 || st.Ready != 1 {
		t.Fatalf("have %d full and %d ready pools, want 1 and 1", st.Full, st.Ready)
	}
}

func TestPoolGrowthIsMonotonic(t *testing.T) {
	tests := []struct {
		initial uint32
		allocs  int
	}{
		{1, 40},
		{10, 200},
		{1000, 12000},
		{3000, 20000},
	}

	for _, tt := range tests {
		a, _ := newAllocator(t, tt.initial)
		for i := 0; i < tt.allocs; i++ {
			if _, err := a.Allocate(1); err != nil {
				t.Fatalf("initial %d, allocation %d: %v", tt.initial, i, err)
			}
		}

		caps := a.Stats().Capacities
		if caps[0] != tt.initial {
			t.Fatalf("have first pool %d, want %d", caps[0], tt.initial)
		}
		for i := 1; i < len(caps); i++ {
			want := grow(caps[i-1])
			if caps[i] < want {
				t.Fatalf("initial %d: pool %d has %d sets, want at least %d", tt.initial, i, caps[i], want)
			}
			if caps[i] > MaxSetsPerPool {
				t.Fatalf("initial %d: pool %d has %d sets, above cap", tt.initial, i, caps[i])
			}
		}
	}
}

func TestGrowthStopsAtCap(t *testing.T) {
	a, _ := newAllocator(t, 4000)
	for i := 0; i < 4000+4096*2+1; i++ {
		if _, err := a.Allocate(1); err != nil {
			t.Fatalf("allocation %d: %v", i, err)
		}
	}
	caps := a.Stats().Capacities
	for _, c := range caps[1:] {
		if c != MaxSetsPerPool {
			t.Fatalf("have pool of %d sets, want %d", c, MaxSetsPerPool)
		}
	}
	if len(caps) != 4 {
		t.Fatalf("have %d pools, want 4", len(caps))
	}
}

func TestClearPoolsIsIdempotent(t *testing.T) {
	a, dev := newAllocator(t, 2)
	for i := 0; i < 7; i++ {
		if _, err := a.Allocate(1); err != nil {
			t.Fatal(err)
		}
	}
	if a.Stats().Full == 0 {
		t.Fatalf("expected exhausted pools before clearing")
	}

	if err := a.ClearPools(); err != nil {
		t.Fatal(err)
	}
	once := a.Stats()
	if err := a.ClearPools(); err != nil {
		t.Fatal(err)
	}
	twice := a.Stats()

	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("have %+v after second clear, want %+v", twice, once)
	}
	if once.Full != 0 || once.Ready != len(once.Capacities) {
		t.Fatalf("have %+v, want every pool ready", once)
	}
	if n := dev.Count("DestroyDescriptorPool"); n != 0 {
		t.Fatalf("clearing destroyed %d pools", n)
	}
	for i := 0; i < 2; i++ {
		if _, err := a.Allocate(1); err != nil {
			t.Fatalf("allocating after clear: %v", err)
		}
	}
	if have := len(a.Stats().Capacities); have != len(once.Capacities) {
		t.Fatalf("have %d pools after reuse, want %d", have, len(once.Capacities))
	}
}

func TestNeverAllocatesFromFullPool(t *testing.T) {
	a, dev := newAllocator(t, 3)
	fullPools := map[driver.DescriptorPool]bool{}
	dev.AllocateHook = func(p driver.DescriptorPool) error {
		if fullPools[p] {
			t.Fatalf("allocation attempted from exhausted pool %d", p)
		}
		if dev.PoolUsed(p) == dev.PoolCapacity(p) {
			fullPools[p] = true
		}
		return nil
	}
	for i := 0; i < 50; i++ {
		if _, err := a.Allocate(1); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSecondFailureIsFatal(t *testing.T) {
	a, dev := newAllocator(t, 4)
	dev.AllocateHook = func(driver.DescriptorPool) error {
		return driver.ErrFragmentedPool
	}
	_, err := a.Allocate(1)
	if !core.IsFatal(err) {
		t.Fatalf("have %v, want fatal", err)
	}
	if !errors.Is(err, driver.ErrFragmentedPool) {
		t.Fatalf("have %v, want fragmented pool cause", err)
	}
	if st := a.Stats(); st.Full != 2 {
		t.Fatalf("have %d full pools, want 2", st.Full)
	}
}

func TestOutOfMemoryIsFatalWithoutRetry(t *testing.T) {
	a, dev := newAllocator(t, 4)
	calls := 0
	dev.AllocateHook = func(driver.DescriptorPool) error {
		calls++
		return driver.ErrOutOfDeviceMemory
	}
	_, err := a.Allocate(1)
	if !core.IsFatal(err) {
		t.Fatalf("have %v, want fatal", err)
	}
	if calls != 1 {
		t.Fatalf("have %d attempts, want 1", calls)
	}
}

func TestDestroyPool(t *testing.T) {
	a, dev := newAllocator(t, 1)
	for i := 0; i < 3; i++ {
		if _, err := a.Allocate(1); err != nil {
			t.Fatal(err)
		}
	}
	pools := len(a.Stats().Capacities)
	a.DestroyPool()
	if have := dev.Count("DestroyDescriptorPool"); have != pools {
		t.Fatalf("have %d pools destroyed, want %d", have, pools)
	}
	if st := a.Stats(); st.Ready != 0 || st.Full != 0 {
		t.Fatalf("have %+v, want empty lists", st)
	}
}

func TestFailedClearKeepsEachPoolOnce(t *testing.T) {
	a, dev := newAllocator(t, 1)
	for i := 0; i < 3; i++ {
		if _, err := a.Allocate(1); err != nil {
			t.Fatal(err)
		}
	}
	before := a.Stats()
	if before.Full < 2 {
		t.Fatalf("have %+v, want at least two exhausted pools", before)
	}

	resets := 0
	dev.ResetHook = func(driver.DescriptorPool) error {
		resets++
		if resets == before.Ready+before.Full {
			return errors.New("device lost")
		}
		return nil
	}
	if err := a.ClearPools(); err == nil {
		t.Fatal("expected the reset failure to be returned")
	}
	if st := a.Stats(); st.Ready+st.Full != len(st.Capacities) {
		t.Fatalf("have %+v, want every pool tracked once", st)
	}

	a.DestroyPool()
	seen := map[string]int{}
	for _, e := range dev.Events {
		if e.Op == "DestroyDescriptorPool" {
			seen[e.Args]++
		}
	}
	if len(seen) != len(before.Capacities) {
		t.Fatalf("have %d pools destroyed, want %d", len(seen), len(before.Capacities))
	}
	for pool, n := range seen {
		if n != 1 {
			t.Fatalf("pool %s destroyed %d times", pool, n)
		}
	}
}
