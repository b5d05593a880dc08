package vulkan

// table maps driver handles to Vulkan objects. Vulkan non-dispatchable
// handles are opaque pointers, so the driver side only ever sees the keys.
type table[T any] map[uint64]T

func (t table[T]) get(h uint64) (T, bool) {
	v, ok := t[h]
	return v, ok
}

func (t table[T]) take(h uint64) (T, bool) {
	v, ok := t[h]
	if ok {
		delete(t, h)
	}
	return v, ok
}

func put[T any](d *Device, t table[T], v T) uint64 {
	d.nextHandle++
	t[d.nextHandle] = v
	return d.nextHandle
}
