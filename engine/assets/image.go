package assets

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/spaghettifunk/anima-core/engine/renderer/driver"
)

/** @brief Decoded texels, always 4 channels of 8 bits. */
type ImageData struct {
	Width  uint32
	Height uint32
	Pixels []byte
}

func (d *ImageData) Extent() driver.Extent3D {
	return driver.Extent3D{Width: d.Width, Height: d.Height, Depth: 1}
}

func (d *ImageData) Format() driver.Format {
	return driver.FormatR8G8B8A8Unorm
}

type ImageLoader struct {
	Root string
	// FlipY stores the bottom row first.
	FlipY bool
}

func (il *ImageLoader) Load(path string) (*ImageData, error) {
	f, err := os.Open(resolve(il.Root, path))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return il.Decode(f)
}

// Decode reads any registered image format (PNG, JPEG, BMP, TIFF, WebP).
func (il *ImageLoader) Decode(r io.Reader) (*ImageData, error) {
	src, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	bounds := src.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("%s image is empty", format)
	}

	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), src, bounds.Min, draw.Src)

	out := &ImageData{
		Width:  uint32(bounds.Dx()),
		Height: uint32(bounds.Dy()),
		Pixels: rgba.Pix,
	}
	if il.FlipY {
		flipRows(out.Pixels, bounds.Dx()*4, bounds.Dy())
	}
	return out, nil
}

func flipRows(pix []byte, stride, rows int) {
	tmp := make([]byte, stride)
	for top, bottom := 0, rows-1; top < bottom; top, bottom = top+1, bottom-1 {
		a := pix[top*stride : (top+1)*stride]
		b := pix[bottom*stride : (bottom+1)*stride]
		copy(tmp, a)
		copy(a, b)
		copy(b, tmp)
	}
}
