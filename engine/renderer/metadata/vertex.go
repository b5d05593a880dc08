package metadata

import (
	"encoding/binary"
	m "math"

	"github.com/spaghettifunk/anima-core/engine/math"
	"github.com/spaghettifunk/anima-core/engine/renderer/driver"
)

// VertexSize is the size in bytes of one packed Vertex. UVs are interleaved
// with position and normal to match the std430 layout the shaders read.
const VertexSize = 48

/** @brief A vertex as laid out in GPU memory. */
type Vertex struct {
	Position math.Vec3
	UVX      float32
	Normal   math.Vec3
	UVY      float32
	Color    math.Vec4
}

// VertexAttributes describes Vertex for classic vertex input.
var VertexAttributes = []driver.VertexAttribute{
	{Location: 0, Format: driver.VertexFloat3, Offset: 0},
	{Location: 1, Format: driver.VertexFloat2, Offset: 12},
	{Location: 2, Format: driver.VertexFloat3, Offset: 16},
	{Location: 3, Format: driver.VertexFloat4, Offset: 32},
}

func putf(b []byte, f float32) {
	binary.LittleEndian.PutUint32(b, m.Float32bits(f))
}

// VertexBytes packs vertices in GPU layout.
func VertexBytes(vertices []Vertex) []byte {
	out := make([]byte, len(vertices)*VertexSize)
	for i, v := range vertices {
		b := out[i*VertexSize:]
		putf(b[0:], v.Position.X)
		putf(b[4:], v.Position.Y)
		putf(b[8:], v.Position.Z)
		putf(b[12:], v.UVX)
		putf(b[16:], v.Normal.X)
		putf(b[20:], v.Normal.Y)
		putf(b[24:], v.Normal.Z)
		putf(b[28:], v.UVY)
		putf(b[32:], v.Color.X)
		putf(b[36:], v.Color.Y)
		putf(b[40:], v.Color.Z)
		putf(b[44:], v.Color.W)
	}
	return out
}

// IndexBytes packs 32 bit indices.
func IndexBytes(indices []uint32) []byte {
	out := make([]byte, len(indices)*4)
	for i, idx := range indices {
		binary.LittleEndian.PutUint32(out[i*4:], idx)
	}
	return out
}

// GenerateNormals computes flat per-face normals for a triangle list and
// accumulates them on shared vertices.
func GenerateNormals(vertices []Vertex, indices []uint32) {
	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i], indices[i+1], indices[i+2]
		if int(i0) >= len(vertices) || int(i1) >= len(vertices) || int(i2) >= len(vertices) {
			continue
		}
		edge1 := vertices[i1].Position.Sub(vertices[i0].Position)
		edge2 := vertices[i2].Position.Sub(vertices[i0].Position)
		normal := edge1.Cross(edge2).Normalize()

		vertices[i0].Normal = vertices[i0].Normal.Add(normal)
		vertices[i1].Normal = vertices[i1].Normal.Add(normal)
		vertices[i2].Normal = vertices[i2].Normal.Add(normal)
	}
	for i := range vertices {
		vertices[i].Normal = vertices[i].Normal.Normalize()
	}
}
