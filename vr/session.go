// Package vr is the VR runtime collaborator: tracked device poses, per-eye
// camera parameters and the compositor that eye images are submitted to.
package vr

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/hellovr/render"
)

// MaxTrackedDevices is the number of tracked device slots a runtime reports.
const MaxTrackedDevices = 64

// HMDIndex is the device slot the head-mounted display always occupies.
const HMDIndex = 0

type DeviceClass int

const (
	ClassInvalid DeviceClass = iota
	ClassHMD
	ClassController
	ClassGenericTracker
	ClassTrackingReference
	ClassDisplayRedirect
)

// Char is the single-letter code used in pose reports.
func (c DeviceClass) Char() byte {
	switch c {
	case ClassController:
		return 'C'
	case ClassHMD:
		return 'H'
	case ClassInvalid:
		return 'I'
	case ClassGenericTracker:
		return 'G'
	case ClassTrackingReference:
		return 'T'
	}
	return '?'
}

func (c DeviceClass) String() string {
	switch c {
	case ClassInvalid:
		return "invalid"
	case ClassHMD:
		return "hmd"
	case ClassController:
		return "controller"
	case ClassGenericTracker:
		return "generic tracker"
	case ClassTrackingReference:
		return "tracking reference"
	case ClassDisplayRedirect:
		return "display redirect"
	}
	return "unknown"
}

// TrackedDevice is the last pose the runtime reported for one device slot.
type TrackedDevice struct {
	Class     DeviceClass
	Connected bool
	PoseValid bool
	// Pose is the device-to-tracking-space transform.
	Pose mgl32.Mat4
	// RenderModel names the mesh drawn at the device, empty for none.
	RenderModel string
	// ButtonsPressed is a bit per controller button held down.
	ButtonsPressed uint64
}

// Visible reports whether the device's model is drawn. Holding any button
// hides it.
func (d TrackedDevice) Visible() bool {
	return d.ButtonsPressed == 0
}

type DeviceEventType int

const (
	DeviceActivated DeviceEventType = iota
	DeviceDeactivated
	// DeviceUpdated follows a change to a device's properties.
	DeviceUpdated
)

func (t DeviceEventType) String() string {
	switch t {
	case DeviceActivated:
		return "activated"
	case DeviceDeactivated:
		return "deactivated"
	case DeviceUpdated:
		return "updated"
	}
	return "unknown"
}

// DeviceEvent reports a change to the tracked device in slot Device.
type DeviceEvent struct {
	Type   DeviceEventType
	Device int
}

// System is the read side of a VR session.
type System interface {
	render.Compositor

	// RecommendedRenderTargetSize is the per-eye render target size.
	RecommendedRenderTargetSize() (width, height int)
	// ProjectionMatrix is a Vulkan clip-space projection for eye.
	ProjectionMatrix(eye render.Eye, near, far float32) mgl32.Mat4
	// EyeToHeadTransform places eye relative to the head pose.
	EyeToHeadTransform(eye render.Eye) mgl32.Mat4
	// Devices returns the poses refreshed by the last WaitGetPoses. The
	// slice is owned by the session and only valid until the next call.
	Devices() []TrackedDevice
	// PollNextEvent pops the oldest pending device event.
	PollNextEvent() (DeviceEvent, bool)
}
