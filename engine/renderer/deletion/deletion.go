// Package deletion defers the release of GPU resources until the frame
// that last used them has retired.
package deletion

import (
	"fmt"

	"github.com/spaghettifunk/anima-core/engine/core"
	"github.com/spaghettifunk/anima-core/engine/renderer/driver"
)

type ResourceKind int

const (
	KindBuffer ResourceKind = iota
	KindImage
	KindImageView
	KindSampler
	KindPipeline
	KindPipelineLayout
	KindDescriptorSetLayout
	KindDescriptorAllocator
	KindShaderModule
	KindCommandPool
	KindFence
	KindSemaphore
)

func (k ResourceKind) String() string {
	switch k {
	case KindBuffer:
		return "buffer"
	case KindImage:
		return "image"
	case KindImageView:
		return "image view"
	case KindSampler:
		return "sampler"
	case KindPipeline:
		return "pipeline"
	case KindPipelineLayout:
		return "pipeline layout"
	case KindDescriptorSetLayout:
		return "descriptor set layout"
	case KindDescriptorAllocator:
		return "descriptor allocator"
	case KindShaderModule:
		return "shader module"
	case KindCommandPool:
		return "command pool"
	case KindFence:
		return "fence"
	case KindSemaphore:
		return "semaphore"
	}
	return fmt.Sprintf("ResourceKind(%d)", int(k))
}

// Destroyer is implemented by owners of several native objects, such as
// a descriptor allocator and its pools.
type Destroyer interface {
	DestroyPool()
}

// Record names one resource to release. Handle holds the native handle
// for every kind except KindDescriptorAllocator, which uses Owner.
type Record struct {
	Kind   ResourceKind
	Handle uint64
	Owner  Destroyer
}

func (r Record) String() string {
	if r.Kind == KindDescriptorAllocator {
		return r.Kind.String()
	}
	return fmt.Sprintf("%s %d", r.Kind, r.Handle)
}

func Buffer(b driver.Buffer) Record { return Record{Kind: KindBuffer, Handle: uint64(b)} }
func Image(i driver.Image) Record   { return Record{Kind: KindImage, Handle: uint64(i)} }
func ImageView(v driver.ImageView) Record {
	return Record{Kind: KindImageView, Handle: uint64(v)}
}
func Sampler(s driver.Sampler) Record   { return Record{Kind: KindSampler, Handle: uint64(s)} }
func Pipeline(p driver.Pipeline) Record { return Record{Kind: KindPipeline, Handle: uint64(p)} }
func PipelineLayout(l driver.PipelineLayout) Record {
	return Record{Kind: KindPipelineLayout, Handle: uint64(l)}
}
func DescriptorSetLayout(l driver.DescriptorSetLayout) Record {
	return Record{Kind: KindDescriptorSetLayout, Handle: uint64(l)}
}
func DescriptorAllocator(d Destroyer) Record {
	return Record{Kind: KindDescriptorAllocator, Owner: d}
}
func ShaderModule(m driver.ShaderModule) Record {
	return Record{Kind: KindShaderModule, Handle: uint64(m)}
}
func CommandPool(p driver.CommandPool) Record {
	return Record{Kind: KindCommandPool, Handle: uint64(p)}
}
func Fence(f driver.Fence) Record         { return Record{Kind: KindFence, Handle: uint64(f)} }
func Semaphore(s driver.Semaphore) Record { return Record{Kind: KindSemaphore, Handle: uint64(s)} }

// Releaser destroys the resource a record names.
type Releaser interface {
	Release(rec Record) error
}

// Queue holds records until Flush. It is not safe for concurrent use.
type Queue struct {
	records []Record
}

// Push appends rec. Nothing is released until Flush.
func (q *Queue) Push(rec Record) {
	q.records = append(q.records, rec)
}

// Flush releases every record, last pushed first, then empties the queue.
// A failed release means a resource was still in use or already gone; the
// remaining records are left untouched and the error is fatal.
func (q *Queue) Flush(r Releaser) error {
	for i := len(q.records) - 1; i >= 0; i-- {
		rec := q.records[i]
		if err := r.Release(rec); err != nil {
			q.records = q.records[:i]
			return core.Fatal(fmt.Errorf("releasing %s: %w", rec, err))
		}
	}
	q.records = q.records[:0]
	return nil
}

func (q *Queue) Len() int {
	return len(q.records)
}

// Records returns a copy of the pending records in push order.
func (q *Queue) Records() []Record {
	out := make([]Record, len(q.records))
	copy(out, q.records)
	return out
}
