package metadata

import (
	"encoding/binary"
	m "math"
	"testing"

	"github.com/spaghettifunk/anima-core/engine/math"
)

func TestVertexBytesLayout(t *testing.T) {
	v := Vertex{
		Position: math.NewVec3(1, 2, 3),
		UVX:      0.25,
		Normal:   math.NewVec3(0, 1, 0),
		UVY:      0.75,
		Color:    math.NewVec4(1, 0, 0, 1),
	}
	b := VertexBytes([]Vertex{v, v})
	if len(b) != 2*VertexSize {
		t.Fatalf("have %d bytes, want %d", len(b), 2*VertexSize)
	}
	at := func(off int) float32 {
		return m.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
	}
	tests := []struct {
		off  int
		want float32
	}{
		{0, 1}, {8, 3}, {12, 0.25}, {20, 1}, {28, 0.75}, {32, 1}, {44, 1},
		{VertexSize + 4, 2},
	}
	for _, tt := range tests {
		if have := at(tt.off); have != tt.want {
			t.Fatalf("offset %d: have %v, want %v", tt.off, have, tt.want)
		}
	}
}

func TestGenerateNormals(t *testing.T) {
	vertices := []Vertex{
		{Position: math.NewVec3(0, 0, 0)},
		{Position: math.NewVec3(1, 0, 0)},
		{Position: math.NewVec3(0, 1, 0)},
	}
	GenerateNormals(vertices, []uint32{0, 1, 2})
	want := math.NewVec3(0, 0, 1)
	for i, v := range vertices {
		if !v.Normal.Compare(want, 1e-6) {
			t.Fatalf("vertex %d: have %+v, want %+v", i, v.Normal, want)
		}
	}
}

func TestPushConstantsBytes(t *testing.T) {
	p := GPUDrawPushConstants{WorldMatrix: math.NewMat4Identity(), VertexBuffer: 0xdeadbeef}
	b := p.Bytes()
	if got := binary.LittleEndian.Uint64(b[64:]); got != 0xdeadbeef {
		t.Fatalf("have %x, want deadbeef", got)
	}
	if got := m.Float32frombits(binary.LittleEndian.Uint32(b[60:])); got != 1 {
		t.Fatalf("have %v, want 1 at m[15]", got)
	}
}
