package renderer

import (
	"github.com/spaghettifunk/anima-core/engine/math"
	"github.com/spaghettifunk/anima-core/engine/renderer/deletion"
	"github.com/spaghettifunk/anima-core/engine/renderer/driver"
	"github.com/spaghettifunk/anima-core/engine/renderer/materials"
	"github.com/spaghettifunk/anima-core/engine/renderer/metadata"
)

type defaults struct {
	white        *metadata.AllocatedImage
	grey         *metadata.AllocatedImage
	black        *metadata.AllocatedImage
	checkerboard *metadata.AllocatedImage

	samplerLinear  driver.Sampler
	samplerNearest driver.Sampler

	constants *metadata.AllocatedBuffer
	material  *materials.Instance
}

func packColor(r, g, b, a byte) []byte {
	return []byte{r, g, b, a}
}

func (r *Renderer) defaultImage(pixels []byte, size uint32) (*metadata.AllocatedImage, error) {
	img, err := r.UploadImageData(pixels, driver.Extent3D{Width: size, Height: size, Depth: 1}, driver.FormatR8G8B8A8Unorm, false)
	if err != nil {
		return nil, err
	}
	r.deletion.Push(deletion.Image(img.Image))
	r.deletion.Push(deletion.ImageView(img.View))
	return img, nil
}

func (r *Renderer) initDefaultData() error {
	var err error
	if r.defaults.white, err = r.defaultImage(packColor(255, 255, 255, 255), 1); err != nil {
		return err
	}
	if r.defaults.grey, err = r.defaultImage(packColor(170, 170, 170, 255), 1); err != nil {
		return err
	}
	if r.defaults.black, err = r.defaultImage(packColor(0, 0, 0, 255), 1); err != nil {
		return err
	}

	// 16x16 magenta and black checkerboard marks missing textures.
	checker := make([]byte, 0, 16*16*4)
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			if (x+y)%2 == 0 {
				checker = append(checker, packColor(255, 0, 255, 255)...)
			} else {
				checker = append(checker, packColor(0, 0, 0, 255)...)
			}
		}
	}
	if r.defaults.checkerboard, err = r.defaultImage(checker, 16); err != nil {
		return err
	}

	if r.defaults.samplerNearest, err = r.dev.CreateSampler(driver.FilterNearest); err != nil {
		return err
	}
	r.deletion.Push(deletion.Sampler(r.defaults.samplerNearest))
	if r.defaults.samplerLinear, err = r.dev.CreateSampler(driver.FilterLinear); err != nil {
		return err
	}
	r.deletion.Push(deletion.Sampler(r.defaults.samplerLinear))

	constants := materials.Constants{
		ColorFactors:      math.NewVec4(1, 1, 1, 1),
		MetalRoughFactors: math.NewVec4(1, 0.5, 0, 0),
	}
	if r.defaults.constants, err = r.CreateUniformBuffer(constants.Bytes()); err != nil {
		return err
	}
	r.deletion.Push(deletion.Buffer(r.defaults.constants.Handle))

	// Without usable pipelines the default material still exists; its
	// draws are skipped.
	r.defaults.material, err = r.WriteMaterial(materials.PassOpaque, r.DefaultResources())
	return err
}

// DefaultResources binds the white texture and default constants.
func (r *Renderer) DefaultResources() materials.Resources {
	return materials.Resources{
		ColorImage:        r.defaults.white.View,
		ColorSampler:      r.defaults.samplerLinear,
		MetalRoughImage:   r.defaults.white.View,
		MetalRoughSampler: r.defaults.samplerLinear,
		DataBuffer:        r.defaults.constants.Handle,
	}
}

func (r *Renderer) DefaultMaterial() *materials.Instance {
	return r.defaults.material
}

// ErrorImage is the checkerboard bound in place of textures that failed to
// load.
func (r *Renderer) ErrorImage() *metadata.AllocatedImage {
	return r.defaults.checkerboard
}

// Sampler returns the default sampler for filter.
func (r *Renderer) Sampler(filter driver.Filter) driver.Sampler {
	if filter == driver.FilterNearest {
		return r.defaults.samplerNearest
	}
	return r.defaults.samplerLinear
}
