package metadata

import "github.com/spaghettifunk/anima-core/engine/renderer/driver"

/** @brief A buffer together with its size and usage. */
type AllocatedBuffer struct {
	Handle driver.Buffer
	Size   uint64
	Usage  driver.BufferUsage
	Memory driver.MemoryUsage
}

/** @brief An image, its default view and how it was created. */
type AllocatedImage struct {
	Image  driver.Image
	View   driver.ImageView
	Extent driver.Extent3D
	Format driver.Format
}

// Extent2D drops the depth of the image extent.
func (i *AllocatedImage) Extent2D() driver.Extent2D {
	return driver.Extent2D{Width: i.Extent.Width, Height: i.Extent.Height}
}

/**
 * @brief The buffers backing one uploaded mesh. The vertex buffer is
 * usable both as a classic vertex binding and through its device address.
 */
type GPUMeshBuffers struct {
	IndexBuffer         AllocatedBuffer
	VertexBuffer        AllocatedBuffer
	VertexBufferAddress uint64
}
