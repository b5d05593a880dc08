package deletion

import (
	"errors"
	"reflect"
	"testing"

	"github.com/spaghettifunk/anima-core/engine/core"
	"github.com/spaghettifunk/anima-core/engine/renderer/driver"
	"github.com/spaghettifunk/anima-core/engine/renderer/driver/drivertest"
)

type recordingReleaser struct {
	released []Record
	failOn   uint64
}

func (r *recordingReleaser) Release(rec Record) error {
	if r.failOn != 0 && rec.Handle == r.failOn {
		return errors.New("still in use")
	}
	r.released = append(r.released, rec)
	return nil
}

func TestFlushIsLIFO(t *testing.T) {
	var q Queue
	a, b, c := Buffer(1), Image(2), ImageView(3)
	q.Push(a)
	q.Push(b)
	q.Push(c)

	r := &recordingReleaser{}
	if err := q.Flush(r); err != nil {
		t.Fatalf("flush: %v", err)
	}
	want := []Record{c, b, a}
	if !reflect.DeepEqual(r.released, want) {
		t.Fatalf("have %v, want %v", r.released, want)
	}
	if q.Len() != 0 {
		t.Fatalf("queue not empty after flush: %d", q.Len())
	}
}

func TestPushHasNoSideEffects(t *testing.T) {
	var q Queue
	r := &recordingReleaser{}
	q.Push(Buffer(7))
	if len(r.released) != 0 {
		t.Fatalf("push released %v", r.released)
	}
	if got := q.Records(); len(got) != 1 || got[0] != Buffer(7) {
		t.Fatalf("have %v, want [buffer 7]", got)
	}
}

func TestFlushRunsEachRecordOnce(t *testing.T) {
	var q Queue
	q.Push(Sampler(1))
	r := &recordingReleaser{}
	if err := q.Flush(r); err != nil {
		t.Fatal(err)
	}
	if err := q.Flush(r); err != nil {
		t.Fatal(err)
	}
	if len(r.released) != 1 {
		t.Fatalf("have %d releases, want 1", len(r.released))
	}
}

func TestFlushFailureIsFatal(t *testing.T) {
	var q Queue
	q.Push(Buffer(1))
	q.Push(Buffer(2))
	q.Push(Buffer(3))

	r := &recordingReleaser{failOn: 2}
	err := q.Flush(r)
	if !core.IsFatal(err) {
		t.Fatalf("have %v, want fatal error", err)
	}
	if len(r.released) != 1 || r.released[0] != Buffer(3) {
		t.Fatalf("have %v, want only buffer 3 released", r.released)
	}
}

type countingDestroyer struct{ n int }

func (c *countingDestroyer) DestroyPool() { c.n++ }

func TestDeviceReleaser(t *testing.T) {
	dev := drivertest.New(2, driver.Extent2D{Width: 8, Height: 8})
	buf, _ := dev.CreateBuffer(16, driver.BufferUsageUniform, driver.MemoryCPUToGPU)
	img, _ := dev.CreateImage(driver.ImageCreateInfo{Format: driver.FormatR8G8B8A8Unorm, Extent: driver.Extent3D{Width: 1, Height: 1, Depth: 1}})
	view, _ := dev.CreateImageView(img)
	alloc := &countingDestroyer{}

	var q Queue
	q.Push(Image(img))
	q.Push(ImageView(view))
	q.Push(Buffer(buf))
	q.Push(DescriptorAllocator(alloc))

	live := dev.Live()
	dev.ClearEvents()
	if err := q.Flush(NewDeviceReleaser(dev)); err != nil {
		t.Fatal(err)
	}
	if alloc.n != 1 {
		t.Fatalf("allocator destroyed %d times, want 1", alloc.n)
	}
	if have := dev.Live(); have != live-3 {
		t.Fatalf("have %d live handles, want %d", have, live-3)
	}
	want := []string{"DestroyBuffer", "DestroyImageView", "DestroyImage"}
	var have []string
	for _, e := range dev.Events {
		have = append(have, e.Op)
	}
	if !reflect.DeepEqual(have, want) {
		t.Fatalf("have %v, want %v", have, want)
	}
}

func TestDeviceReleaserRejectsNullHandle(t *testing.T) {
	dev := drivertest.New(2, driver.Extent2D{Width: 8, Height: 8})
	var q Queue
	q.Push(Buffer(0))
	err := q.Flush(NewDeviceReleaser(dev))
	if !errors.Is(err, ErrNullHandle) || !core.IsFatal(err) {
		t.Fatalf("have %v, want fatal null handle", err)
	}
}
