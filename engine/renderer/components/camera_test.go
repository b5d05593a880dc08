package components

import (
	"testing"

	"github.com/spaghettifunk/anima-core/engine/math"
	"github.com/spaghettifunk/anima-core/engine/renderer/metadata"
)

func near(a, b float32) bool {
	d := a - b
	return d < 1e-4 && d > -1e-4
}

func TestCameraDefaultsLookDownNegativeZ(t *testing.T) {
	c := NewCamera()
	f := c.Forward()
	if !f.Compare(math.NewVec3(0, 0, -1), 1e-5) {
		t.Fatalf("forward = %+v", f)
	}
	if !c.View().Equal(math.NewMat4Identity(), 1e-5) {
		t.Fatalf("view at origin should be identity, got %v", c.View())
	}
}

func TestCameraViewMovesWorldOpposite(t *testing.T) {
	c := NewCamera()
	c.SetPosition(math.NewVec3(0, 0, 5))
	p := math.NewVec3Zero().Transform(c.View())
	if !p.Compare(math.NewVec3(0, 0, -5), 1e-4) {
		t.Fatalf("origin in view space = %+v", p)
	}
}

func TestCameraPitchIsClamped(t *testing.T) {
	c := NewCamera()
	c.Pitch(10)
	_, pitch := c.Rotation()
	if !near(pitch, pitchLimit) {
		t.Fatalf("pitch = %f", pitch)
	}
	c.Pitch(-20)
	_, pitch = c.Rotation()
	if !near(pitch, -pitchLimit) {
		t.Fatalf("pitch = %f", pitch)
	}
}

func TestCameraLookAt(t *testing.T) {
	c := NewCamera()
	c.SetPosition(math.NewVec3(0, 0, 5))
	c.LookAt(math.NewVec3(5, 0, 5))
	f := c.Forward()
	if !f.Compare(math.NewVec3(1, 0, 0), 1e-4) {
		t.Fatalf("forward = %+v", f)
	}
}

func TestCameraProjectionFlipsY(t *testing.T) {
	c := NewCamera()
	proj := c.Projection(16.0 / 9.0)
	if proj.Data[5] >= 0 {
		t.Fatalf("expected negative Y scale, got %f", proj.Data[5])
	}
	data := c.SceneData(metadata.SceneData{}, 1600, 0)
	if data.Proj.Data[0] != data.Proj.Data[5]*-1 {
		t.Fatalf("zero height should fall back to a square aspect: %v", data.Proj)
	}
}
