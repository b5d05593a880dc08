package metadata

import (
	"encoding/binary"
	m "math"

	"github.com/spaghettifunk/anima-core/engine/math"
	"github.com/spaghettifunk/anima-core/engine/renderer/driver"
	"github.com/spaghettifunk/anima-core/engine/renderer/materials"
)

/**
 * @brief One draw of one surface. Commands are rebuilt every frame and
 * carry no identity beyond it.
 */
type DrawCommand struct {
	IndexCount          uint32
	FirstIndex          uint32
	IndexBuffer         driver.Buffer
	VertexBuffer        driver.Buffer
	VertexBufferAddress uint64
	Transform           math.Mat4
	Material            *materials.Instance
}

/** @brief Per-draw push constants: world matrix and vertex buffer address. */
type GPUDrawPushConstants struct {
	WorldMatrix  math.Mat4
	VertexBuffer uint64
}

func (p GPUDrawPushConstants) Bytes() []byte {
	out := make([]byte, materials.PushConstantsSize)
	for i, f := range p.WorldMatrix.Data {
		binary.LittleEndian.PutUint32(out[i*4:], m.Float32bits(f))
	}
	binary.LittleEndian.PutUint64(out[64:], p.VertexBuffer)
	return out
}

// SceneDataSize is the std140 size of SceneData.
const SceneDataSize = 64*3 + 16*3

/** @brief Global per-frame shader data, bound at set 0 binding 0. */
type SceneData struct {
	View              math.Mat4
	Proj              math.Mat4
	ViewProj          math.Mat4
	AmbientColor      math.Vec4
	SunlightDirection math.Vec4 // w is the sun power
	SunlightColor     math.Vec4
}

func (s SceneData) Bytes() []byte {
	out := make([]byte, SceneDataSize)
	off := 0
	for _, mat := range []math.Mat4{s.View, s.Proj, s.ViewProj} {
		for _, f := range mat.Data {
			binary.LittleEndian.PutUint32(out[off:], m.Float32bits(f))
			off += 4
		}
	}
	for _, v := range []math.Vec4{s.AmbientColor, s.SunlightDirection, s.SunlightColor} {
		for _, f := range [4]float32{v.X, v.Y, v.Z, v.W} {
			binary.LittleEndian.PutUint32(out[off:], m.Float32bits(f))
			off += 4
		}
	}
	return out
}

/** @brief Push constants of the background compute effect. */
type ComputePushConstants struct {
	Data1, Data2, Data3, Data4 math.Vec4
}

func (c ComputePushConstants) Bytes() []byte {
	out := make([]byte, 64)
	off := 0
	for _, v := range []math.Vec4{c.Data1, c.Data2, c.Data3, c.Data4} {
		for _, f := range [4]float32{v.X, v.Y, v.Z, v.W} {
			binary.LittleEndian.PutUint32(out[off:], m.Float32bits(f))
			off += 4
		}
	}
	return out
}
