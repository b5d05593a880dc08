package components

import (
	"github.com/spaghettifunk/anima-core/engine/math"
	"github.com/spaghettifunk/anima-core/engine/renderer/metadata"
)

/**
 * @brief A free look camera producing the view and projection matrices
 * uploaded as the per frame scene data.
 */
type Camera struct {
	/** @brief The position of this camera. */
	Position math.Vec3
	/** @brief Rotation around the world up axis, in radians. */
	yaw float32
	/** @brief Rotation around the camera right axis, in radians. */
	pitch float32
	/** @brief Vertical field of view, in radians. */
	FOV      float32
	NearClip float32
	FarClip  float32

	/** @brief Internal flag used to determine when the view matrix needs to be rebuilt. */
	isDirty    bool
	viewMatrix math.Mat4
	world      math.Mat4
}

// 89 degrees
const pitchLimit float32 = 1.55334306

func NewCamera() *Camera {
	camera := &Camera{}
	camera.Reset()
	return camera
}

func (c *Camera) Reset() {
	c.Position = math.NewVec3Zero()
	c.yaw = 0
	c.pitch = 0
	c.FOV = math.DegToRad(70)
	c.NearClip = 0.1
	c.FarClip = 1000
	c.isDirty = true
}

func (c *Camera) SetPosition(position math.Vec3) {
	c.Position = position
	c.isDirty = true
}

func (c *Camera) Rotation() (yaw, pitch float32) {
	return c.yaw, c.pitch
}

func (c *Camera) Yaw(amount float32) {
	c.yaw += amount
	c.isDirty = true
}

func (c *Camera) Pitch(amount float32) {
	// Clamp to avoid Gimbal lock.
	c.pitch = math.Clamp(c.pitch+amount, -pitchLimit, pitchLimit)
	c.isDirty = true
}

// LookAt points the camera from its position towards target.
func (c *Camera) LookAt(target math.Vec3) {
	dir := target.Sub(c.Position)
	if dir.Length() == 0 {
		return
	}
	dir = dir.Normalize()
	c.pitch = math.Clamp(asin(dir.Y), -pitchLimit, pitchLimit)
	c.yaw = atan2(-dir.X, -dir.Z)
	c.isDirty = true
}

func (c *Camera) rebuild() {
	if !c.isDirty {
		return
	}
	pitch := math.NewQuatFromAxisAngle(math.NewVec3(1, 0, 0), c.pitch, false).ToMat4()
	yaw := math.NewQuatFromAxisAngle(math.NewVec3(0, 1, 0), c.yaw, false).ToMat4()
	c.world = pitch.Then(yaw)
	c.viewMatrix = c.world.Then(math.NewMat4Translation(c.Position)).Inverse()
	c.isDirty = false
}

func (c *Camera) View() math.Mat4 {
	c.rebuild()
	return c.viewMatrix
}

// Forward is the unit direction the camera looks at.
func (c *Camera) Forward() math.Vec3 {
	c.rebuild()
	return math.NewVec3(0, 0, -1).Transform(c.world)
}

func (c *Camera) Right() math.Vec3 {
	c.rebuild()
	return math.NewVec3(1, 0, 0).Transform(c.world)
}

func (c *Camera) MoveForward(amount float32) {
	c.SetPosition(c.Position.Add(c.Forward().MulScalar(amount)))
}

func (c *Camera) MoveRight(amount float32) {
	c.SetPosition(c.Position.Add(c.Right().MulScalar(amount)))
}

func (c *Camera) MoveUp(amount float32) {
	c.SetPosition(c.Position.Add(math.NewVec3(0, amount, 0)))
}

// Projection returns the perspective matrix for aspect with Y pointing up
// in clip space.
func (c *Camera) Projection(aspect float32) math.Mat4 {
	proj := math.NewMat4Perspective(c.FOV, aspect, c.NearClip, c.FarClip)
	proj.Data[5] = -proj.Data[5]
	return proj
}

// SceneData fills the camera matrices of data for a surface of width by
// height pixels. Lighting fields are kept.
func (c *Camera) SceneData(data metadata.SceneData, width, height uint32) metadata.SceneData {
	aspect := float32(1)
	if height > 0 {
		aspect = float32(width) / float32(height)
	}
	data.View = c.View()
	data.Proj = c.Projection(aspect)
	data.ViewProj = data.View.Then(data.Proj)
	return data
}
