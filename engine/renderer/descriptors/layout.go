package descriptors

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/anima-core/engine/renderer/driver"
)

// LayoutConfig describes a descriptor set layout. Every binding is visible
// to Stages.
type LayoutConfig struct {
	Bindings []driver.LayoutBinding
	Stages   driver.ShaderStage
}

// AddBinding appends a single descriptor binding.
func (c *LayoutConfig) AddBinding(binding uint32, typ driver.DescriptorType) {
	c.Bindings = append(c.Bindings, driver.LayoutBinding{Binding: binding, Type: typ, Count: 1})
}

func NewLayout(dev driver.DescriptorDevice, cfg LayoutConfig) (driver.DescriptorSetLayout, error) {
	if len(cfg.Bindings) == 0 {
		return 0, errors.New("descriptor set layout without bindings")
	}
	seen := make(map[uint32]bool, len(cfg.Bindings))
	for _, b := range cfg.Bindings {
		if seen[b.Binding] {
			return 0, fmt.Errorf("binding %d declared twice", b.Binding)
		}
		seen[b.Binding] = true
	}
	layout, err := dev.CreateDescriptorSetLayout(cfg.Bindings, cfg.Stages)
	if err != nil {
		return 0, fmt.Errorf("creating descriptor set layout: %w", err)
	}
	return layout, nil
}
