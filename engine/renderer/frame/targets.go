package frame

import (
	"fmt"

	"github.com/spaghettifunk/anima-core/engine/renderer/driver"
	"github.com/spaghettifunk/anima-core/engine/renderer/metadata"
)

// Targets are the size dependent attachments every frame renders into.
type Targets interface {
	DrawImage() *metadata.AllocatedImage
	DepthImage() *metadata.AllocatedImage
	Rebuild(extent driver.Extent2D) error
}

// RenderTargets is an offscreen color image plus a depth image.
type RenderTargets struct {
	mem         driver.Memory
	drawFormat  driver.Format
	depthFormat driver.Format
	draw        metadata.AllocatedImage
	depth       metadata.AllocatedImage
}

func NewRenderTargets(mem driver.Memory, drawFormat, depthFormat driver.Format, extent driver.Extent2D) (*RenderTargets, error) {
	t := &RenderTargets{mem: mem, drawFormat: drawFormat, depthFormat: depthFormat}
	if err := t.Rebuild(extent); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *RenderTargets) DrawImage() *metadata.AllocatedImage  { return &t.draw }
func (t *RenderTargets) DepthImage() *metadata.AllocatedImage { return &t.depth }

func (t *RenderTargets) create(format driver.Format, usage driver.ImageUsage, extent driver.Extent2D) (metadata.AllocatedImage, error) {
	info := driver.ImageCreateInfo{
		Format: format,
		Extent: extent.To3D(),
		Usage:  usage,
	}
	img, err := t.mem.CreateImage(info)
	if err != nil {
		return metadata.AllocatedImage{}, err
	}
	view, err := t.mem.CreateImageView(img)
	if err != nil {
		t.mem.DestroyImage(img)
		return metadata.AllocatedImage{}, err
	}
	return metadata.AllocatedImage{Image: img, View: view, Extent: info.Extent, Format: format}, nil
}

// Rebuild releases the current images and creates new ones at extent. The
// device must be idle.
func (t *RenderTargets) Rebuild(extent driver.Extent2D) error {
	t.Destroy()

	draw, err := t.create(t.drawFormat,
		driver.ImageUsageTransferSrc|driver.ImageUsageTransferDst|driver.ImageUsageStorage|driver.ImageUsageColorAttachment,
		extent)
	if err != nil {
		return fmt.Errorf("creating draw image: %w", err)
	}
	depth, err := t.create(t.depthFormat, driver.ImageUsageDepthAttachment, extent)
	if err != nil {
		t.mem.DestroyImageView(draw.View)
		t.mem.DestroyImage(draw.Image)
		return fmt.Errorf("creating depth image: %w", err)
	}
	t.draw, t.depth = draw, depth
	return nil
}

func (t *RenderTargets) Destroy() {
	for _, img := range []*metadata.AllocatedImage{&t.draw, &t.depth} {
		if img.View != 0 {
			t.mem.DestroyImageView(img.View)
		}
		if img.Image != 0 {
			t.mem.DestroyImage(img.Image)
		}
		*img = metadata.AllocatedImage{}
	}
}
