// Package drivertest provides an in-memory driver.Device for tests. It
// emulates descriptor pool capacity, fence state and swapchain results and
// records every call it receives in order.
package drivertest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spaghettifunk/anima-core/engine/renderer/driver"
)

// Event is one recorded call.
type Event struct {
	Op   string
	Args string
}

func (e Event) String() string {
	if e.Args == "" {
		return e.Op
	}
	return e.Op + "(" + e.Args + ")"
}

// AcquireResult scripts one AcquireNextImage call.
type AcquireResult struct {
	Status driver.Status
	Err    error
}

type pool struct {
	maxSets uint32
	used    uint32
	resets  int
}

type fence struct {
	signaled bool
	pending  bool
}

// Device is a fake driver.Device. The zero value is not usable; call New.
type Device struct {
	Events []Event

	// AllocateHook runs before the capacity check of every descriptor set
	// allocation. A non-nil error is returned to the caller.
	AllocateHook func(pool driver.DescriptorPool) error
	// DestroyHook runs on every handle release, before the handle is dropped.
	DestroyHook func(handle uint64)
	// WriteHook runs before every buffer write. A non-nil error is returned
	// to the caller and nothing is written.
	WriteHook func(b driver.Buffer) error
	// ResetHook runs before every descriptor pool reset. A non-nil error is
	// returned to the caller and the pool is left untouched.
	ResetHook func(p driver.DescriptorPool) error
	// Hang makes every wait on a submitted fence time out.
	Hang bool
	// AcquireResults are consumed in order by AcquireNextImage; when empty
	// the image is acquired optimally.
	AcquireResults []AcquireResult
	// PresentResults are consumed in order by Present.
	PresentResults []AcquireResult

	// Violations lists descriptor pool resets that happened while a
	// submission using the pool had not retired yet.
	Violations []string

	next        uint64
	pools       map[driver.DescriptorPool]*pool
	fences      map[driver.Fence]*fence
	buffers     map[driver.Buffer][]byte
	live        map[uint64]string
	recording   map[driver.CommandBuffer]bool
	openPools   map[driver.DescriptorPool]bool
	poolFence   map[driver.DescriptorPool]driver.Fence
	images      []driver.Image
	views       []driver.ImageView
	extent      driver.Extent2D
	imageIndex  uint32
	recreations int
}

// New returns a fake with a swapchain of imageCount images at extent.
func New(imageCount int, extent driver.Extent2D) *Device {
	d := &Device{
		pools:     make(map[driver.DescriptorPool]*pool),
		fences:    make(map[driver.Fence]*fence),
		buffers:   make(map[driver.Buffer][]byte),
		live:      make(map[uint64]string),
		recording: make(map[driver.CommandBuffer]bool),
		openPools: make(map[driver.DescriptorPool]bool),
		poolFence: make(map[driver.DescriptorPool]driver.Fence),
		extent:    extent,
	}
	d.buildSwapchain(imageCount)
	return d
}

func (d *Device) handle(kind string) uint64 {
	d.next++
	d.live[d.next] = kind
	return d.next
}

func (d *Device) release(h uint64) {
	if d.DestroyHook != nil {
		d.DestroyHook(h)
	}
	delete(d.live, h)
}

func (d *Device) record(op string, format string, args ...interface{}) {
	d.Events = append(d.Events, Event{Op: op, Args: fmt.Sprintf(format, args...)})
}

func (d *Device) buildSwapchain(count int) {
	d.images = d.images[:0]
	d.views = d.views[:0]
	for i := 0; i < count; i++ {
		d.images = append(d.images, driver.Image(d.handle("swapchain-image")))
		d.views = append(d.views, driver.ImageView(d.handle("swapchain-view")))
	}
	d.imageIndex = 0
}

// Ops returns the recorded events as strings, optionally keeping only the
// ones whose op is listed.
func (d *Device) Ops(only ...string) []string {
	keep := make(map[string]bool, len(only))
	for _, o := range only {
		keep[o] = true
	}
	out := make([]string, 0, len(d.Events))
	for _, e := range d.Events {
		if len(keep) > 0 && !keep[e.Op] {
			continue
		}
		out = append(out, e.String())
	}
	return out
}

// Count returns how many times op was called.
func (d *Device) Count(op string) int {
	n := 0
	for _, e := range d.Events {
		if e.Op == op {
			n++
		}
	}
	return n
}

// ClearEvents forgets the recorded events.
func (d *Device) ClearEvents() {
	d.Events = d.Events[:0]
}

// Live returns the number of handles created and not yet destroyed,
// swapchain images excluded.
func (d *Device) Live() int {
	n := 0
	for _, kind := range d.live {
		if !strings.HasPrefix(kind, "swapchain") {
			n++
		}
	}
	return n
}

// PoolCapacity returns the max sets pool was created with.
func (d *Device) PoolCapacity(p driver.DescriptorPool) uint32 {
	if pl, ok := d.pools[p]; ok {
		return pl.maxSets
	}
	return 0
}

// PoolUsed returns how many sets are currently allocated from p.
func (d *Device) PoolUsed(p driver.DescriptorPool) uint32 {
	if pl, ok := d.pools[p]; ok {
		return pl.used
	}
	return 0
}

// Signaled reports the current state of f.
func (d *Device) Signaled(f driver.Fence) bool {
	if fc, ok := d.fences[f]; ok {
		return fc.signaled
	}
	return false
}

// Pending reports whether f belongs to a submission that has not retired.
func (d *Device) Pending(f driver.Fence) bool {
	if fc, ok := d.fences[f]; ok {
		return fc.pending
	}
	return false
}

// Complete retires the submission guarded by f, as if the GPU finished it.
func (d *Device) Complete(f driver.Fence) {
	if fc, ok := d.fences[f]; ok && fc.pending {
		fc.pending = false
		fc.signaled = true
		d.record("FenceSignaled", "%d", f)
	}
}

// PendingFences returns every fence whose submission has not retired.
func (d *Device) PendingFences() []driver.Fence {
	var out []driver.Fence
	for h, fc := range d.fences {
		if fc.pending {
			out = append(out, h)
		}
	}
	return out
}

// SetExtent changes the size reported for the next swapchain recreation.
func (d *Device) SetExtent(e driver.Extent2D) {
	d.extent = e
}

// Recreations returns how many times the swapchain was rebuilt.
func (d *Device) Recreations() int {
	return d.recreations
}

// BufferData returns the bytes last written to buf.
func (d *Device) BufferData(buf driver.Buffer) []byte {
	return d.buffers[buf]
}

// DescriptorDevice

func (d *Device) CreateDescriptorPool(maxSets uint32, sizes []driver.PoolSize) (driver.DescriptorPool, error) {
	if maxSets == 0 {
		return 0, errors.New("drivertest: pool with zero sets")
	}
	p := driver.DescriptorPool(d.handle("descriptor-pool"))
	d.pools[p] = &pool{maxSets: maxSets}
	d.record("CreateDescriptorPool", "%d", maxSets)
	return p, nil
}

func (d *Device) ResetDescriptorPool(p driver.DescriptorPool) error {
	pl, ok := d.pools[p]
	if !ok {
		return fmt.Errorf("drivertest: unknown pool %d", p)
	}
	if d.ResetHook != nil {
		if err := d.ResetHook(p); err != nil {
			return err
		}
	}
	if f, ok := d.poolFence[p]; ok {
		if fc := d.fences[f]; fc != nil && fc.pending {
			d.Violations = append(d.Violations, fmt.Sprintf("pool %d reset while fence %d pending", p, f))
		}
	}
	pl.used = 0
	pl.resets++
	d.record("ResetDescriptorPool", "%d", p)
	return nil
}

func (d *Device) DestroyDescriptorPool(p driver.DescriptorPool) {
	delete(d.pools, p)
	delete(d.poolFence, p)
	d.release(uint64(p))
	d.record("DestroyDescriptorPool", "%d", p)
}

func (d *Device) AllocateDescriptorSet(p driver.DescriptorPool, layout driver.DescriptorSetLayout) (driver.DescriptorSet, error) {
	pl, ok := d.pools[p]
	if !ok {
		return 0, fmt.Errorf("drivertest: unknown pool %d", p)
	}
	if d.AllocateHook != nil {
		if err := d.AllocateHook(p); err != nil {
			return 0, err
		}
	}
	if pl.used >= pl.maxSets {
		return 0, driver.ErrOutOfPoolMemory
	}
	pl.used++
	d.openPools[p] = true
	d.record("AllocateDescriptorSet", "%d", p)
	d.next++
	return driver.DescriptorSet(d.next), nil
}

func (d *Device) UpdateDescriptorSet(set driver.DescriptorSet, writes []driver.DescriptorWrite) {
	parts := make([]string, 0, len(writes))
	for _, w := range writes {
		parts = append(parts, fmt.Sprintf("%d:%s", w.Binding, w.Type))
	}
	d.record("UpdateDescriptorSet", "%s", strings.Join(parts, ","))
}

func (d *Device) CreateDescriptorSetLayout(bindings []driver.LayoutBinding, stages driver.ShaderStage) (driver.DescriptorSetLayout, error) {
	d.record("CreateDescriptorSetLayout", "%d", len(bindings))
	return driver.DescriptorSetLayout(d.handle("descriptor-set-layout")), nil
}

func (d *Device) DestroyDescriptorSetLayout(layout driver.DescriptorSetLayout) {
	d.release(uint64(layout))
	d.record("DestroyDescriptorSetLayout", "%d", layout)
}

// SyncDevice

func (d *Device) CreateFence(signaled bool) (driver.Fence, error) {
	f := driver.Fence(d.handle("fence"))
	d.fences[f] = &fence{signaled: signaled}
	return f, nil
}

func (d *Device) WaitForFence(f driver.Fence, timeout time.Duration) error {
	fc, ok := d.fences[f]
	if !ok {
		return fmt.Errorf("drivertest: unknown fence %d", f)
	}
	d.record("WaitForFence", "%d", f)
	if fc.signaled {
		return nil
	}
	if !fc.pending || d.Hang {
		return driver.ErrTimeout
	}
	d.Complete(f)
	return nil
}

func (d *Device) ResetFence(f driver.Fence) error {
	fc, ok := d.fences[f]
	if !ok {
		return fmt.Errorf("drivertest: unknown fence %d", f)
	}
	fc.signaled = false
	d.record("ResetFence", "%d", f)
	return nil
}

func (d *Device) DestroyFence(f driver.Fence) {
	delete(d.fences, f)
	d.release(uint64(f))
}

func (d *Device) CreateSemaphore() (driver.Semaphore, error) {
	return driver.Semaphore(d.handle("semaphore")), nil
}

func (d *Device) DestroySemaphore(s driver.Semaphore) {
	d.release(uint64(s))
}

func (d *Device) WaitIdle() error {
	for _, f := range d.PendingFences() {
		d.Complete(f)
	}
	d.record("WaitIdle", "")
	return nil
}

// CommandDevice

func (d *Device) CreateCommandPool() (driver.CommandPool, error) {
	return driver.CommandPool(d.handle("command-pool")), nil
}

func (d *Device) DestroyCommandPool(p driver.CommandPool) {
	d.release(uint64(p))
}

func (d *Device) AllocateCommandBuffer(p driver.CommandPool) (driver.CommandBuffer, error) {
	d.next++
	return driver.CommandBuffer(d.next), nil
}

func (d *Device) ResetCommandBuffer(cmd driver.CommandBuffer) error {
	d.recording[cmd] = false
	d.record("ResetCommandBuffer", "%d", cmd)
	return nil
}

func (d *Device) BeginCommandBuffer(cmd driver.CommandBuffer, oneTime bool) error {
	if d.recording[cmd] {
		return fmt.Errorf("drivertest: command buffer %d already recording", cmd)
	}
	d.recording[cmd] = true
	d.record("BeginCommandBuffer", "%d", cmd)
	return nil
}

func (d *Device) EndCommandBuffer(cmd driver.CommandBuffer) error {
	if !d.recording[cmd] {
		return fmt.Errorf("drivertest: command buffer %d not recording", cmd)
	}
	d.recording[cmd] = false
	d.record("EndCommandBuffer", "%d", cmd)
	return nil
}

func (d *Device) Submit(info driver.SubmitInfo) error {
	if info.Fence != 0 {
		fc, ok := d.fences[info.Fence]
		if !ok {
			return fmt.Errorf("drivertest: unknown fence %d", info.Fence)
		}
		if fc.signaled || fc.pending {
			return fmt.Errorf("drivertest: fence %d submitted while in use", info.Fence)
		}
		fc.pending = true
		for p := range d.openPools {
			d.poolFence[p] = info.Fence
		}
	}
	d.openPools = make(map[driver.DescriptorPool]bool)
	d.record("Submit", "%d", info.CommandBuffer)
	return nil
}

// Recorder

func (d *Device) TransitionImage(cmd driver.CommandBuffer, image driver.Image, from, to driver.ImageLayout) {
	d.record("TransitionImage", "%d,%s->%s", image, from, to)
}

func (d *Device) CopyImage(cmd driver.CommandBuffer, src, dst driver.Image, srcSize, dstSize driver.Extent2D) {
	d.record("CopyImage", "%d->%d", src, dst)
}

func (d *Device) ClearColorImage(cmd driver.CommandBuffer, image driver.Image, color driver.ClearColor) {
	d.record("ClearColorImage", "%d", image)
}

func (d *Device) CopyBuffer(cmd driver.CommandBuffer, src, dst driver.Buffer, regions []driver.BufferCopy) {
	for _, r := range regions {
		data := d.buffers[src]
		if r.SrcOffset+r.Size <= uint64(len(data)) {
			out := d.buffers[dst]
			if need := r.DstOffset + r.Size; uint64(len(out)) < need {
				grown := make([]byte, need)
				copy(grown, out)
				out = grown
			}
			copy(out[r.DstOffset:], data[r.SrcOffset:r.SrcOffset+r.Size])
			d.buffers[dst] = out
		}
		d.record("CopyBuffer", "%d->%d,%d", src, dst, r.Size)
	}
}

func (d *Device) CopyBufferToImage(cmd driver.CommandBuffer, src driver.Buffer, dst driver.Image, extent driver.Extent3D) {
	d.record("CopyBufferToImage", "%d->%d", src, dst)
}

func (d *Device) BeginRendering(cmd driver.CommandBuffer, info driver.RenderingInfo) {
	d.record("BeginRendering", "%d", info.ColorImage)
}

func (d *Device) EndRendering(cmd driver.CommandBuffer) {
	d.record("EndRendering", "")
}

func (d *Device) SetViewport(cmd driver.CommandBuffer, vp driver.Viewport) {
	d.record("SetViewport", "%gx%g", vp.Width, vp.Height)
}

func (d *Device) SetScissor(cmd driver.CommandBuffer, r driver.Rect2D) {
	d.record("SetScissor", "%dx%d", r.Width, r.Height)
}

func (d *Device) BindPipeline(cmd driver.CommandBuffer, point driver.BindPoint, p driver.Pipeline) {
	d.record("BindPipeline", "%d", p)
}

func (d *Device) BindDescriptorSets(cmd driver.CommandBuffer, point driver.BindPoint, layout driver.PipelineLayout, first uint32, sets []driver.DescriptorSet) {
	d.record("BindDescriptorSets", "%d,%d", first, len(sets))
}

func (d *Device) PushConstants(cmd driver.CommandBuffer, layout driver.PipelineLayout, stages driver.ShaderStage, offset uint32, data []byte) {
	d.record("PushConstants", "%d", len(data))
}

func (d *Device) BindVertexBuffer(cmd driver.CommandBuffer, buf driver.Buffer, offset uint64) {
	d.record("BindVertexBuffer", "%d", buf)
}

func (d *Device) BindIndexBuffer(cmd driver.CommandBuffer, buf driver.Buffer, offset uint64) {
	d.record("BindIndexBuffer", "%d", buf)
}

func (d *Device) DrawIndexed(cmd driver.CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	d.record("DrawIndexed", "%d,%d", indexCount, firstIndex)
}

func (d *Device) Dispatch(cmd driver.CommandBuffer, x, y, z uint32) {
	d.record("Dispatch", "%d,%d,%d", x, y, z)
}

// Presenter

func (d *Device) AcquireNextImage(signal driver.Semaphore, timeout time.Duration) (uint32, driver.Status, error) {
	res := AcquireResult{}
	if len(d.AcquireResults) > 0 {
		res = d.AcquireResults[0]
		d.AcquireResults = d.AcquireResults[1:]
	}
	d.record("AcquireNextImage", "")
	if res.Err != nil {
		return 0, driver.StatusOptimal, res.Err
	}
	idx := d.imageIndex
	d.imageIndex = (d.imageIndex + 1) % uint32(len(d.images))
	return idx, res.Status, nil
}

func (d *Device) Present(imageIndex uint32, wait driver.Semaphore) (driver.Status, error) {
	res := AcquireResult{}
	if len(d.PresentResults) > 0 {
		res = d.PresentResults[0]
		d.PresentResults = d.PresentResults[1:]
	}
	d.record("Present", "%d", imageIndex)
	return res.Status, res.Err
}

func (d *Device) SwapchainImage(index uint32) driver.Image {
	return d.images[index]
}

func (d *Device) SwapchainView(index uint32) driver.ImageView {
	return d.views[index]
}

func (d *Device) SwapchainExtent() driver.Extent2D {
	return d.extent
}

func (d *Device) SwapchainFormat() driver.Format {
	return driver.FormatB8G8R8A8Unorm
}

func (d *Device) RecreateSwapchain(width, height uint32) error {
	for i := range d.images {
		d.release(uint64(d.images[i]))
		d.release(uint64(d.views[i]))
	}
	d.extent = driver.Extent2D{Width: width, Height: height}
	d.buildSwapchain(len(d.images))
	d.recreations++
	d.record("RecreateSwapchain", "%dx%d", width, height)
	return nil
}

// Memory

func (d *Device) CreateBuffer(size uint64, usage driver.BufferUsage, mem driver.MemoryUsage) (driver.Buffer, error) {
	b := driver.Buffer(d.handle("buffer"))
	d.buffers[b] = make([]byte, size)
	d.record("CreateBuffer", "%d", size)
	return b, nil
}

func (d *Device) DestroyBuffer(b driver.Buffer) {
	delete(d.buffers, b)
	d.release(uint64(b))
	d.record("DestroyBuffer", "%d", b)
}

func (d *Device) WriteBuffer(b driver.Buffer, offset uint64, data []byte) error {
	buf, ok := d.buffers[b]
	if !ok {
		return fmt.Errorf("drivertest: unknown buffer %d", b)
	}
	if d.WriteHook != nil {
		if err := d.WriteHook(b); err != nil {
			return err
		}
	}
	if offset+uint64(len(data)) > uint64(len(buf)) {
		return fmt.Errorf("drivertest: write past end of buffer %d", b)
	}
	copy(buf[offset:], data)
	return nil
}

func (d *Device) BufferAddress(b driver.Buffer) uint64 {
	return uint64(b) << 32
}

func (d *Device) CreateImage(info driver.ImageCreateInfo) (driver.Image, error) {
	img := driver.Image(d.handle("image"))
	d.record("CreateImage", "%dx%d", info.Extent.Width, info.Extent.Height)
	return img, nil
}

func (d *Device) CreateImageView(image driver.Image) (driver.ImageView, error) {
	return driver.ImageView(d.handle("image-view")), nil
}

func (d *Device) DestroyImage(image driver.Image) {
	d.release(uint64(image))
	d.record("DestroyImage", "%d", image)
}

func (d *Device) DestroyImageView(view driver.ImageView) {
	d.release(uint64(view))
	d.record("DestroyImageView", "%d", view)
}

func (d *Device) CreateSampler(filter driver.Filter) (driver.Sampler, error) {
	return driver.Sampler(d.handle("sampler")), nil
}

func (d *Device) DestroySampler(s driver.Sampler) {
	d.release(uint64(s))
}

// Pipelines

func (d *Device) CreateShaderModule(code []uint32) (driver.ShaderModule, error) {
	if len(code) == 0 {
		return 0, errors.New("drivertest: empty shader module")
	}
	return driver.ShaderModule(d.handle("shader-module")), nil
}

func (d *Device) DestroyShaderModule(m driver.ShaderModule) {
	d.release(uint64(m))
}

func (d *Device) CreatePipelineLayout(info driver.PipelineLayoutInfo) (driver.PipelineLayout, error) {
	d.record("CreatePipelineLayout", "%d", len(info.SetLayouts))
	return driver.PipelineLayout(d.handle("pipeline-layout")), nil
}

func (d *Device) DestroyPipelineLayout(layout driver.PipelineLayout) {
	d.release(uint64(layout))
}

func (d *Device) CreateGraphicsPipeline(cfg driver.GraphicsPipelineConfig) (driver.Pipeline, error) {
	d.record("CreateGraphicsPipeline", "blend=%d,depthWrite=%t", cfg.Blend, cfg.DepthWrite)
	return driver.Pipeline(d.handle("pipeline")), nil
}

func (d *Device) CreateComputePipeline(layout driver.PipelineLayout, module driver.ShaderModule) (driver.Pipeline, error) {
	d.record("CreateComputePipeline", "")
	return driver.Pipeline(d.handle("pipeline")), nil
}

func (d *Device) DestroyPipeline(p driver.Pipeline) {
	d.release(uint64(p))
}

func (d *Device) DrawFormat() driver.Format {
	return driver.FormatR16G16B16A16Sfloat
}

func (d *Device) DepthFormat() driver.Format {
	return driver.FormatD32Sfloat
}

func (d *Device) Destroy() {
	d.record("Destroy", "")
}

var _ driver.Device = (*Device)(nil)
