package descriptors

import "github.com/spaghettifunk/anima-core/engine/renderer/driver"

// Writer batches descriptor writes for one set. Clear it before reuse.
type Writer struct {
	writes []driver.DescriptorWrite
}

func (w *Writer) WriteBuffer(binding uint32, buffer driver.Buffer, size, offset uint64, typ driver.DescriptorType) {
	w.writes = append(w.writes, driver.DescriptorWrite{
		Binding: binding,
		Type:    typ,
		Buffer: &driver.DescriptorBufferInfo{
			Buffer: buffer,
			Offset: offset,
			Range:  size,
		},
	})
}

func (w *Writer) WriteImage(binding uint32, view driver.ImageView, sampler driver.Sampler, layout driver.ImageLayout, typ driver.DescriptorType) {
	w.writes = append(w.writes, driver.DescriptorWrite{
		Binding: binding,
		Type:    typ,
		Image: &driver.DescriptorImageInfo{
			View:    view,
			Sampler: sampler,
			Layout:  layout,
		},
	})
}

func (w *Writer) Clear() {
	w.writes = w.writes[:0]
}

// Writes returns the pending writes in the order they were added.
func (w *Writer) Writes() []driver.DescriptorWrite {
	return w.writes
}

// UpdateSet applies the pending writes to set.
func (w *Writer) UpdateSet(dev driver.DescriptorDevice, set driver.DescriptorSet) {
	dev.UpdateDescriptorSet(set, w.writes)
}
