package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-core/engine/renderer/driver"
)

func (d *Device) CreateDescriptorPool(maxSets uint32, sizes []driver.PoolSize) (driver.DescriptorPool, error) {
	poolSizes := make([]vk.DescriptorPoolSize, 0, len(sizes))
	for _, s := range sizes {
		if s.Count == 0 {
			continue
		}
		poolSizes = append(poolSizes, vk.DescriptorPoolSize{
			Type:            vkDescriptorType(s.Type),
			DescriptorCount: s.Count,
		})
	}
	info := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	var pool vk.DescriptorPool
	if res := vk.CreateDescriptorPool(d.LogicalDevice, &info, nil, &pool); res != vk.Success {
		return 0, resultError("vkCreateDescriptorPool", res)
	}
	return driver.DescriptorPool(put(d, d.pools, pool)), nil
}

// forgetSets drops the handles of every set allocated from pool.
func (d *Device) forgetSets(pool uint64) {
	for h, s := range d.sets {
		if s.pool == pool {
			delete(d.sets, h)
		}
	}
}

func (d *Device) ResetDescriptorPool(p driver.DescriptorPool) error {
	pool, ok := d.pools.get(uint64(p))
	if !ok {
		return errUnknown("descriptor pool", uint64(p))
	}
	d.forgetSets(uint64(p))
	return resultError("vkResetDescriptorPool", vk.ResetDescriptorPool(d.LogicalDevice, pool, 0))
}

func (d *Device) DestroyDescriptorPool(p driver.DescriptorPool) {
	if pool, ok := d.pools.take(uint64(p)); ok {
		d.forgetSets(uint64(p))
		vk.DestroyDescriptorPool(d.LogicalDevice, pool, nil)
	}
}

func (d *Device) AllocateDescriptorSet(p driver.DescriptorPool, l driver.DescriptorSetLayout) (driver.DescriptorSet, error) {
	pool, ok := d.pools.get(uint64(p))
	if !ok {
		return 0, errUnknown("descriptor pool", uint64(p))
	}
	layout, ok := d.setLayouts.get(uint64(l))
	if !ok {
		return 0, errUnknown("descriptor set layout", uint64(l))
	}
	info := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}
	sets := make([]vk.DescriptorSet, 1)
	if res := vk.AllocateDescriptorSets(d.LogicalDevice, &info, &sets[0]); res != vk.Success {
		return 0, resultError("vkAllocateDescriptorSets", res)
	}
	return driver.DescriptorSet(put(d, d.sets, descriptorSet{handle: sets[0], pool: uint64(p)})), nil
}

// UpdateDescriptorSet applies writes to set. Writes that name unknown
// resources are skipped.
func (d *Device) UpdateDescriptorSet(h driver.DescriptorSet, writes []driver.DescriptorWrite) {
	set, ok := d.sets.get(uint64(h))
	if !ok {
		return
	}
	out := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set.handle,
			DstBinding:      w.Binding,
			DescriptorCount: 1,
			DescriptorType:  vkDescriptorType(w.Type),
		}
		switch {
		case w.Buffer != nil:
			b, ok := d.buffers.get(uint64(w.Buffer.Buffer))
			if !ok {
				continue
			}
			write.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: b.handle,
				Offset: vk.DeviceSize(w.Buffer.Offset),
				Range:  vk.DeviceSize(w.Buffer.Range),
			}}
		case w.Image != nil:
			info := vk.DescriptorImageInfo{ImageLayout: vkLayout(w.Image.Layout)}
			if v, ok := d.views.get(uint64(w.Image.View)); ok {
				info.ImageView = v.handle
			}
			if s, ok := d.samplers.get(uint64(w.Image.Sampler)); ok {
				info.Sampler = s
			}
			write.PImageInfo = []vk.DescriptorImageInfo{info}
		default:
			continue
		}
		out = append(out, write)
	}
	if len(out) > 0 {
		vk.UpdateDescriptorSets(d.LogicalDevice, uint32(len(out)), out, 0, nil)
	}
}

func (d *Device) CreateDescriptorSetLayout(bindings []driver.LayoutBinding, stages driver.ShaderStage) (driver.DescriptorSetLayout, error) {
	out := make([]vk.DescriptorSetLayoutBinding, 0, len(bindings))
	for _, b := range bindings {
		count := b.Count
		if count == 0 {
			count = 1
		}
		out = append(out, vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  vkDescriptorType(b.Type),
			DescriptorCount: count,
			StageFlags:      vkStages(stages),
		})
	}
	info := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(out)),
		PBindings:    out,
	}
	var layout vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(d.LogicalDevice, &info, nil, &layout); res != vk.Success {
		return 0, resultError("vkCreateDescriptorSetLayout", res)
	}
	return driver.DescriptorSetLayout(put(d, d.setLayouts, layout)), nil
}

func (d *Device) DestroyDescriptorSetLayout(l driver.DescriptorSetLayout) {
	if layout, ok := d.setLayouts.take(uint64(l)); ok {
		vk.DestroyDescriptorSetLayout(d.LogicalDevice, layout, nil)
	}
}
