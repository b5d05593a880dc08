package deletion

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/anima-core/engine/renderer/driver"
)

var ErrNullHandle = errors.New("null handle")

// DeviceReleaser releases records through a driver device.
type DeviceReleaser struct {
	dev driver.Device
}

func NewDeviceReleaser(dev driver.Device) *DeviceReleaser {
	return &DeviceReleaser{dev: dev}
}

func (d *DeviceReleaser) Release(rec Record) error {
	if rec.Kind == KindDescriptorAllocator {
		if rec.Owner == nil {
			return ErrNullHandle
		}
		rec.Owner.DestroyPool()
		return nil
	}
	if rec.Handle == 0 {
		return ErrNullHandle
	}

	switch rec.Kind {
	case KindBuffer:
		d.dev.DestroyBuffer(driver.Buffer(rec.Handle))
	case KindImage:
		d.dev.DestroyImage(driver.Image(rec.Handle))
	case KindImageView:
		d.dev.DestroyImageView(driver.ImageView(rec.Handle))
	case KindSampler:
		d.dev.DestroySampler(driver.Sampler(rec.Handle))
	case KindPipeline:
		d.dev.DestroyPipeline(driver.Pipeline(rec.Handle))
	case KindPipelineLayout:
		d.dev.DestroyPipelineLayout(driver.PipelineLayout(rec.Handle))
	case KindDescriptorSetLayout:
		d.dev.DestroyDescriptorSetLayout(driver.DescriptorSetLayout(rec.Handle))
	case KindShaderModule:
		d.dev.DestroyShaderModule(driver.ShaderModule(rec.Handle))
	case KindCommandPool:
		d.dev.DestroyCommandPool(driver.CommandPool(rec.Handle))
	case KindFence:
		d.dev.DestroyFence(driver.Fence(rec.Handle))
	case KindSemaphore:
		d.dev.DestroySemaphore(driver.Semaphore(rec.Handle))
	default:
		return fmt.Errorf("unknown resource kind %s", rec.Kind)
	}
	return nil
}
