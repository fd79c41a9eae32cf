package vr

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/loov/hrtime"
	"github.com/vkngwrapper/hellovr/render"
)

const (
	ControllerModel  = "controller"
	BaseStationModel = "base_station"

	defaultIPD = 0.064
)

// vulkanClip maps OpenGL clip space onto Vulkan's: Y points down and depth
// runs 0..1.
var vulkanClip = mgl32.Mat4{
	1, 0, 0, 0,
	0, -1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

var _ System = (*SimulatedHMD)(nil)

type SimulatedOptions struct {
	// EyeWidth and EyeHeight default to 1512x1680.
	EyeWidth, EyeHeight int
	// IPD is the distance between the eyes in meters.
	IPD float32
	// Controllers is how many hand controllers are connected, 0..2.
	Controllers int
	// Clock returns seconds; defaults to hrtime.
	Clock func() float64
}

// SimulatedHMD is a VR session without a runtime. The head sways slowly in
// place, controllers float in front of it and a base station stands in the
// corner. Submitted eye textures are validated and counted.
type SimulatedHMD struct {
	width, height int
	ipd           float32
	controllers   int
	clock         func() float64

	// Tangents of the left eye's frustum half-angles; the right eye mirrors
	// them horizontally.
	tanLeft, tanRight, tanUp, tanDown float32

	devices   []TrackedDevice
	events    []DeviceEvent
	submitted [2]int
}

func NewSimulatedHMD(options SimulatedOptions) (*SimulatedHMD, error) {
	if options.EyeWidth == 0 && options.EyeHeight == 0 {
		options.EyeWidth = 1512
		options.EyeHeight = 1680
	}
	if options.EyeWidth <= 0 || options.EyeHeight <= 0 {
		return nil, errors.Newf("invalid simulated eye size %dx%d", options.EyeWidth, options.EyeHeight)
	}
	if options.Controllers < 0 || options.Controllers > 2 {
		return nil, errors.Newf("simulated HMD supports 0 to 2 controllers, got %d", options.Controllers)
	}
	if options.IPD == 0 {
		options.IPD = defaultIPD
	}
	if options.Clock == nil {
		options.Clock = func() float64 { return hrtime.Now().Seconds() }
	}

	hmd := &SimulatedHMD{
		width:       options.EyeWidth,
		height:      options.EyeHeight,
		ipd:         options.IPD,
		controllers: options.Controllers,
		clock:       options.Clock,
		tanLeft:     -1.39,
		tanRight:    1.25,
		tanUp:       1.47,
		tanDown:     -1.47,
		devices:     make([]TrackedDevice, 2+options.Controllers),
	}

	hmd.devices[HMDIndex] = TrackedDevice{Class: ClassHMD, Connected: true}
	for i := 0; i < options.Controllers; i++ {
		hmd.devices[1+i] = TrackedDevice{Class: ClassController, Connected: true, RenderModel: ControllerModel}
	}
	hmd.devices[len(hmd.devices)-1] = TrackedDevice{
		Class:       ClassTrackingReference,
		Connected:   true,
		RenderModel: BaseStationModel,
	}

	for i := range hmd.devices {
		hmd.events = append(hmd.events, DeviceEvent{Type: DeviceActivated, Device: i})
	}

	return hmd, nil
}

func (h *SimulatedHMD) RecommendedRenderTargetSize() (int, int) {
	return h.width, h.height
}

func (h *SimulatedHMD) ProjectionMatrix(eye render.Eye, near, far float32) mgl32.Mat4 {
	left, right := h.tanLeft, h.tanRight
	if eye == render.EyeRight {
		left, right = -right, -left
	}

	frustum := mgl32.Frustum(left*near, right*near, h.tanDown*near, h.tanUp*near, near, far)
	return vulkanClip.Mul4(frustum)
}

func (h *SimulatedHMD) EyeToHeadTransform(eye render.Eye) mgl32.Mat4 {
	offset := h.ipd / 2
	if eye == render.EyeLeft {
		offset = -offset
	}
	return mgl32.Translate3D(offset, 0, 0)
}

func (h *SimulatedHMD) Devices() []TrackedDevice {
	return h.devices
}

func (h *SimulatedHMD) PollNextEvent() (DeviceEvent, bool) {
	if len(h.events) == 0 {
		return DeviceEvent{}, false
	}
	event := h.events[0]
	h.events = h.events[1:]
	return event, true
}

func (h *SimulatedHMD) device(index int) (*TrackedDevice, error) {
	if index < 0 || index >= len(h.devices) {
		return nil, errors.Newf("no tracked device %d", index)
	}
	return &h.devices[index], nil
}

// Controller is the device slot of hand controller i.
func (h *SimulatedHMD) Controller(i int) (int, error) {
	if i < 0 || i >= h.controllers {
		return 0, errors.Newf("no controller %d", i)
	}
	return 1 + i, nil
}

// SetButtons replaces the pressed button mask of a controller.
func (h *SimulatedHMD) SetButtons(index int, pressed uint64) error {
	device, err := h.device(index)
	if err != nil {
		return err
	}
	if device.Class != ClassController {
		return errors.Newf("device %d is a %s, not a controller", index, device.Class)
	}
	device.ButtonsPressed = pressed
	return nil
}

// SetConnected attaches or detaches a device. A change queues an activation
// or deactivation event.
func (h *SimulatedHMD) SetConnected(index int, connected bool) error {
	device, err := h.device(index)
	if err != nil {
		return err
	}
	if index == HMDIndex && !connected {
		return errors.New("the HMD cannot be detached")
	}
	if device.Connected == connected {
		return nil
	}

	device.Connected = connected
	if !connected {
		device.PoseValid = false
		device.ButtonsPressed = 0
		h.events = append(h.events, DeviceEvent{Type: DeviceDeactivated, Device: index})
		return nil
	}
	h.events = append(h.events, DeviceEvent{Type: DeviceActivated, Device: index})
	return nil
}

// SetRenderModel changes the model a device reports and queues an update
// event.
func (h *SimulatedHMD) SetRenderModel(index int, name string) error {
	device, err := h.device(index)
	if err != nil {
		return err
	}
	device.RenderModel = name
	h.events = append(h.events, DeviceEvent{Type: DeviceUpdated, Device: index})
	return nil
}

// WaitGetPoses samples the clock and moves every device. It never blocks.
func (h *SimulatedHMD) WaitGetPoses() error {
	t := float32(h.clock())

	head := mgl32.Translate3D(0.1*sin(0.3*t), 0.02*sin(1.1*t), 0).
		Mul4(mgl32.HomogRotate3DY(0.2 * sin(0.25*t)))
	h.devices[HMDIndex].Pose = head
	h.devices[HMDIndex].PoseValid = true

	for i := 0; i < h.controllers; i++ {
		side := float32(-1)
		if i == 1 {
			side = 1
		}

		bob := 0.05 * sin(0.8*t+float32(i))
		hand := mgl32.Translate3D(side*0.2, -0.3+bob, -0.35).
			Mul4(mgl32.HomogRotate3DX(-0.3 + 0.2*sin(0.6*t)))

		h.devices[1+i].Pose = head.Mul4(hand)
		h.devices[1+i].PoseValid = h.devices[1+i].Connected
	}

	base := len(h.devices) - 1
	h.devices[base].Pose = mgl32.Translate3D(2, 2, -2).Mul4(mgl32.HomogRotate3DY(math.Pi / 4))
	h.devices[base].PoseValid = h.devices[base].Connected

	return nil
}

// Submit checks that texture can be consumed as an eye image.
func (h *SimulatedHMD) Submit(eye render.Eye, texture render.EyeTexture) error {
	if eye != render.EyeLeft && eye != render.EyeRight {
		return errors.Newf("invalid eye %d", int(eye))
	}
	if texture.Extent.Width == 0 || texture.Extent.Height == 0 {
		return errors.Newf("%s eye texture is empty", eye)
	}

	bounds := texture.Bounds
	if bounds.UMin < 0 || bounds.VMin < 0 || bounds.UMax > 1 || bounds.VMax > 1 ||
		bounds.UMin >= bounds.UMax || bounds.VMin >= bounds.VMax {
		return errors.Newf("%s eye texture bounds %+v out of range", eye, bounds)
	}

	h.submitted[eye]++
	return nil
}

// Submitted is the number of accepted textures for eye.
func (h *SimulatedHMD) Submitted(eye render.Eye) int {
	return h.submitted[eye]
}

func sin(x float32) float32 {
	return float32(math.Sin(float64(x)))
}
