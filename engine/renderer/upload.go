package renderer

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/anima-core/engine/core"
	"github.com/spaghettifunk/anima-core/engine/renderer/driver"
	"github.com/spaghettifunk/anima-core/engine/renderer/metadata"
)

var ErrEmptyUpload = errors.New("nothing to upload")

func (r *Renderer) createBuffer(size uint64, usage driver.BufferUsage, mem driver.MemoryUsage) (metadata.AllocatedBuffer, error) {
	handle, err := r.dev.CreateBuffer(size, usage, mem)
	if err != nil {
		if driver.IsOutOfMemory(err) {
			return metadata.AllocatedBuffer{}, core.Fatal(err)
		}
		return metadata.AllocatedBuffer{}, fmt.Errorf("creating buffer of %d bytes: %w", size, err)
	}
	return metadata.AllocatedBuffer{Handle: handle, Size: size, Usage: usage, Memory: mem}, nil
}

// UploadMeshData copies indices and vertices into GPU only buffers through
// one staging buffer and blocks until the copy finished.
func (r *Renderer) UploadMeshData(indices []uint32, vertices []metadata.Vertex) (*metadata.GPUMeshBuffers, error) {
	if len(indices) == 0 || len(vertices) == 0 {
		return nil, ErrEmptyUpload
	}
	vertexSize := uint64(len(vertices) * metadata.VertexSize)
	indexSize := uint64(len(indices) * 4)

	vertexBuffer, err := r.createBuffer(vertexSize,
		driver.BufferUsageStorage|driver.BufferUsageTransferDst|driver.BufferUsageDeviceAddress|driver.BufferUsageVertex,
		driver.MemoryGPUOnly)
	if err != nil {
		return nil, err
	}
	indexBuffer, err := r.createBuffer(indexSize, driver.BufferUsageIndex|driver.BufferUsageTransferDst, driver.MemoryGPUOnly)
	if err != nil {
		r.dev.DestroyBuffer(vertexBuffer.Handle)
		return nil, err
	}
	mesh := &metadata.GPUMeshBuffers{
		VertexBuffer:        vertexBuffer,
		IndexBuffer:         indexBuffer,
		VertexBufferAddress: r.dev.BufferAddress(vertexBuffer.Handle),
	}

	discard := func(err error) (*metadata.GPUMeshBuffers, error) {
		r.dev.DestroyBuffer(vertexBuffer.Handle)
		r.dev.DestroyBuffer(indexBuffer.Handle)
		return nil, err
	}

	staging, err := r.createBuffer(vertexSize+indexSize, driver.BufferUsageTransferSrc, driver.MemoryCPUToGPU)
	if err != nil {
		return discard(err)
	}
	defer r.dev.DestroyBuffer(staging.Handle)

	if err := r.dev.WriteBuffer(staging.Handle, 0, metadata.VertexBytes(vertices)); err != nil {
		return discard(err)
	}
	if err := r.dev.WriteBuffer(staging.Handle, vertexSize, metadata.IndexBytes(indices)); err != nil {
		return discard(err)
	}

	err = r.frames.ImmediateSubmit(func(cmd driver.CommandBuffer) error {
		r.dev.CopyBuffer(cmd, staging.Handle, vertexBuffer.Handle, []driver.BufferCopy{{Size: vertexSize}})
		r.dev.CopyBuffer(cmd, staging.Handle, indexBuffer.Handle, []driver.BufferCopy{{SrcOffset: vertexSize, Size: indexSize}})
		return nil
	})
	if err != nil {
		return discard(err)
	}
	return mesh, nil
}

// UploadImageData creates a sampled image from tightly packed pixels and
// leaves it in shader read layout. Mipmapped images get a single level.
func (r *Renderer) UploadImageData(pixels []byte, extent driver.Extent3D, format driver.Format, mipmapped bool) (*metadata.AllocatedImage, error) {
	size := uint64(extent.Width) * uint64(extent.Height) * uint64(extent.Depth) * uint64(format.BytesPerPixel())
	if size == 0 {
		return nil, ErrEmptyUpload
	}
	if uint64(len(pixels)) < size {
		return nil, fmt.Errorf("image upload needs %d bytes, have %d", size, len(pixels))
	}

	staging, err := r.createBuffer(size, driver.BufferUsageTransferSrc, driver.MemoryCPUToGPU)
	if err != nil {
		return nil, err
	}
	defer r.dev.DestroyBuffer(staging.Handle)
	if err := r.dev.WriteBuffer(staging.Handle, 0, pixels[:size]); err != nil {
		return nil, err
	}

	image, err := r.dev.CreateImage(driver.ImageCreateInfo{
		Format:    format,
		Extent:    extent,
		Usage:     driver.ImageUsageSampled | driver.ImageUsageTransferDst | driver.ImageUsageTransferSrc,
		Mipmapped: mipmapped,
	})
	if err != nil {
		if driver.IsOutOfMemory(err) {
			return nil, core.Fatal(err)
		}
		return nil, fmt.Errorf("creating image: %w", err)
	}
	view, err := r.dev.CreateImageView(image)
	if err != nil {
		r.dev.DestroyImage(image)
		return nil, fmt.Errorf("creating image view: %w", err)
	}

	err = r.frames.ImmediateSubmit(func(cmd driver.CommandBuffer) error {
		r.dev.TransitionImage(cmd, image, driver.LayoutUndefined, driver.LayoutTransferDst)
		r.dev.CopyBufferToImage(cmd, staging.Handle, image, extent)
		r.dev.TransitionImage(cmd, image, driver.LayoutTransferDst, driver.LayoutShaderReadOnly)
		return nil
	})
	if err != nil {
		r.dev.DestroyImageView(view)
		r.dev.DestroyImage(image)
		return nil, err
	}
	return &metadata.AllocatedImage{Image: image, View: view, Extent: extent, Format: format}, nil
}

// CreateUniformBuffer creates a host visible uniform buffer holding data.
// It lives until it is released.
func (r *Renderer) CreateUniformBuffer(data []byte) (*metadata.AllocatedBuffer, error) {
	if len(data) == 0 {
		return nil, ErrEmptyUpload
	}
	buf, err := r.createBuffer(uint64(len(data)), driver.BufferUsageUniform, driver.MemoryCPUToGPU)
	if err != nil {
		return nil, err
	}
	if err := r.dev.WriteBuffer(buf.Handle, 0, data); err != nil {
		r.dev.DestroyBuffer(buf.Handle)
		return nil, err
	}
	return &buf, nil
}
