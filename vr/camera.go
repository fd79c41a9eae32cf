package vr

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/hellovr/render"
)

const (
	NearClip = 0.1
	FarClip  = 30.0
)

// ScreenDegreesPerPixel is how far the screen camera turns per pixel of
// mouse motion.
const ScreenDegreesPerPixel = 0.1

// Cameras holds the per-eye projection and eye offset matrices and the
// inverse head pose, and derives each render target's view-projection.
type Cameras struct {
	projection [2]mgl32.Mat4
	eyePos     [2]mgl32.Mat4
	hmdPose    mgl32.Mat4
	// screenPos is the screen camera's view, starting at the left eye.
	screenPos mgl32.Mat4
}

// NewCameras reads the fixed per-eye parameters from system.
func NewCameras(system System, near, far float32) *Cameras {
	cameras := &Cameras{hmdPose: mgl32.Ident4()}
	for _, eye := range []render.Eye{render.EyeLeft, render.EyeRight} {
		cameras.projection[eye] = system.ProjectionMatrix(eye, near, far)
		cameras.eyePos[eye] = system.EyeToHeadTransform(eye).Inv()
	}
	cameras.screenPos = cameras.eyePos[render.EyeLeft]
	return cameras
}

// RotateScreen turns the screen camera by mouse motion in pixels: dx about
// the Y axis, then dy about the X axis.
func (c *Cameras) RotateScreen(dx, dy float32) {
	yaw := mgl32.HomogRotate3DY(mgl32.DegToRad(dx * ScreenDegreesPerPixel))
	pitch := mgl32.HomogRotate3DX(mgl32.DegToRad(dy * ScreenDegreesPerPixel))
	c.screenPos = pitch.Mul4(yaw.Mul4(c.screenPos))
}

// Update takes the head pose from devices. The previous pose is kept when
// the HMD pose is not valid this frame.
func (c *Cameras) Update(devices []TrackedDevice) {
	if len(devices) <= HMDIndex {
		return
	}
	hmd := devices[HMDIndex]
	if hmd.Class == ClassHMD && hmd.PoseValid {
		c.hmdPose = hmd.Pose.Inv()
	}
}

// HMDPose is the inverse of the last valid head pose.
func (c *Cameras) HMDPose() mgl32.Mat4 {
	return c.hmdPose
}

// ViewProjection is the world-to-clip transform for target. The screen
// target uses the left eye's projection and the mouse-driven screen view,
// without head tracking.
func (c *Cameras) ViewProjection(target render.TargetID) mgl32.Mat4 {
	switch target {
	case render.LeftEye:
		return c.projection[render.EyeLeft].Mul4(c.eyePos[render.EyeLeft]).Mul4(c.hmdPose)
	case render.RightEye:
		return c.projection[render.EyeRight].Mul4(c.eyePos[render.EyeRight]).Mul4(c.hmdPose)
	}
	return c.projection[render.EyeLeft].Mul4(c.screenPos)
}
