package main

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/hellovr/render"
	"github.com/vkngwrapper/hellovr/vkng"
	"github.com/vkngwrapper/hellovr/vr"
)

func TestChooseSampleCount(t *testing.T) {
	supported := core1_0.Samples1 | core1_0.Samples2 | core1_0.Samples4 | core1_0.Samples8

	assert.Equal(t, core1_0.Samples4, chooseSampleCount(4, supported))
	assert.Equal(t, core1_0.Samples8, chooseSampleCount(16, supported))
	assert.Equal(t, core1_0.Samples1, chooseSampleCount(1, supported))
	assert.Equal(t, core1_0.Samples2, chooseSampleCount(4, core1_0.Samples1|core1_0.Samples2))
	assert.Equal(t, core1_0.Samples1, chooseSampleCount(8, core1_0.Samples1))
}

func TestChooseSwapPresentMode(t *testing.T) {
	all := []khr_surface.PresentMode{khr_surface.PresentModeFIFO, khr_surface.PresentModeImmediate, khr_surface.PresentModeMailbox}

	assert.Equal(t, khr_surface.PresentModeFIFO, chooseSwapPresentMode(all, true))
	assert.Equal(t, khr_surface.PresentModeMailbox, chooseSwapPresentMode(all, false))
	assert.Equal(t, khr_surface.PresentModeImmediate, chooseSwapPresentMode(all[:2], false))
	assert.Equal(t, khr_surface.PresentModeFIFO, chooseSwapPresentMode(all[:1], false))
}

func TestChooseSwapExtent(t *testing.T) {
	fixed := &khr_surface.SurfaceCapabilities{
		CurrentExtent: core1_0.Extent2D{Width: 800, Height: 600},
	}
	assert.Equal(t, core1_0.Extent2D{Width: 800, Height: 600}, chooseSwapExtent(fixed, 1280, 720))

	free := &khr_surface.SurfaceCapabilities{
		CurrentExtent:  core1_0.Extent2D{Width: -1, Height: -1},
		MinImageExtent: core1_0.Extent2D{Width: 100, Height: 100},
		MaxImageExtent: core1_0.Extent2D{Width: 1000, Height: 1000},
	}
	assert.Equal(t, core1_0.Extent2D{Width: 1000, Height: 720}, chooseSwapExtent(free, 1280, 720))
	assert.Equal(t, core1_0.Extent2D{Width: 100, Height: 100}, chooseSwapExtent(free, 10, 10))
}

func TestBytesToBytecode(t *testing.T) {
	code, err := bytesToBytecode([]byte{0x03, 0x02, 0x23, 0x07, 0x01, 0x00, 0x00, 0x00})
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x07230203, 1}, code)

	_, err = bytesToBytecode([]byte{1, 2, 3})
	assert.Error(t, err)

	_, err = bytesToBytecode(nil)
	assert.Error(t, err)
}

func TestVertexDescriptions(t *testing.T) {
	cases := []struct {
		kind    PipelineKind
		stride  int
		offsets []int
	}{
		{kind: PipelineScene, stride: 20, offsets: []int{0, 12}},
		{kind: PipelineAxes, stride: 24, offsets: []int{0, 12}},
		{kind: PipelineRenderModel, stride: 32, offsets: []int{0, 12, 24}},
		{kind: PipelineCompanion, stride: 16, offsets: []int{0, 8}},
	}

	for _, c := range cases {
		bindings := getVertexBindingDescription(c.kind)
		require.Len(t, bindings, 1, c.kind.ShaderName())
		assert.Equal(t, c.stride, bindings[0].Stride, c.kind.ShaderName())

		attributes := getVertexAttributeDescriptions(c.kind)
		require.Len(t, attributes, len(c.offsets), c.kind.ShaderName())
		for i, attribute := range attributes {
			assert.EqualValues(t, i, attribute.Location)
			assert.Equal(t, c.offsets[i], attribute.Offset, c.kind.ShaderName())
		}
	}
}

func TestGraphicsPipelineCreateInfo(t *testing.T) {
	axes := graphicsPipelineCreateInfo(pipelineState{Kind: PipelineAxes, Samples: core1_0.Samples4})
	assert.Equal(t, core1_0.PrimitiveTopologyLineList, axes.InputAssemblyState.Topology)
	assert.Equal(t, core1_0.Samples4, axes.MultisampleState.RasterizationSamples)
	assert.True(t, axes.DepthStencilState.DepthTestEnable)
	assert.Equal(t, core1_0.CompareOpLessOrEqual, axes.DepthStencilState.DepthCompareOp)
	assert.Equal(t, core1_0.FrontFaceClockwise, axes.RasterizationState.FrontFace)
	assert.Len(t, axes.DynamicState.DynamicStates, 2)

	companion := graphicsPipelineCreateInfo(pipelineState{Kind: PipelineCompanion, Samples: core1_0.Samples1})
	assert.Equal(t, core1_0.PrimitiveTopologyTriangleList, companion.InputAssemblyState.Topology)
	assert.False(t, companion.DepthStencilState.DepthTestEnable)
	assert.False(t, companion.DepthStencilState.DepthWriteEnable)
	assert.Equal(t, core1_0.FrontFaceCounterClockwise, companion.RasterizationState.FrontFace)
}

func TestRenderModelNames(t *testing.T) {
	devices := []vr.TrackedDevice{
		{Class: vr.ClassHMD, RenderModel: "headset"},
		{Class: vr.ClassController, RenderModel: vr.ControllerModel},
		{Class: vr.ClassController, RenderModel: vr.ControllerModel},
		{Class: vr.ClassTrackingReference, RenderModel: vr.BaseStationModel},
		{Class: vr.ClassGenericTracker},
	}

	assert.Equal(t, []string{vr.BaseStationModel, vr.ControllerModel}, renderModelNames(devices))
	assert.Empty(t, renderModelNames(devices[:1]))
}

const controllerOBJ = `
o controller
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
vn 0 0 1
f 1/1/1 2/2/1 3/3/1 4/4/1
`

func TestPrepareSceneAssets(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "controller.obj"), []byte(controllerOBJ), 0o644))

	var logged bytes.Buffer
	logger := log.New(&logged, "", 0)

	assets, err := prepareSceneAssets(1, "", dir, []string{"base_station", "controller"}, logger)
	require.NoError(t, err)

	assert.Equal(t, 36, assets.cubeCount)
	assert.Len(t, assets.cubes, 36*20)
	assert.Equal(t, 6, assets.companionCount)
	assert.Len(t, assets.companionVertices, 4*16)
	assert.Len(t, assets.companionIndices, 6*2)

	require.NotNil(t, assets.texture)
	assert.Equal(t, checkerSize, assets.texture.Levels[0].Width)

	require.Contains(t, assets.models, "controller")
	assert.NotContains(t, assets.models, "base_station")
	assert.Contains(t, logged.String(), "base_station")
}

func TestPrepareSceneAssetsErrors(t *testing.T) {
	logger := log.New(&bytes.Buffer{}, "", 0)

	_, err := prepareSceneAssets(0, "", t.TempDir(), nil, logger)
	assert.Error(t, err)

	_, err = prepareSceneAssets(1, filepath.Join(t.TempDir(), "missing.png"), t.TempDir(), nil, logger)
	assert.Error(t, err)
}

func TestModelSlots(t *testing.T) {
	assert.Equal(t, 65, numModelSlots)
	assert.Equal(t, 1, deviceModelSlot(0))
	assert.Equal(t, numModelSlots-1, deviceModelSlot(vr.MaxTrackedDevices-1))
}

// teardownLog records the order in which device objects are released.
type teardownLog struct {
	events []string
}

type loggedSemaphore struct {
	log *teardownLog
}

func (s loggedSemaphore) Destroy() {
	s.log.events = append(s.log.events, "destroy semaphore")
}

type loggedDevice struct {
	log *teardownLog
}

func (d loggedDevice) AllocateCommandBuffer() (render.CommandBuffer, error) {
	return nil, errors.New("no command buffers")
}

func (d loggedDevice) CreateFence() (render.Fence, error) {
	return nil, errors.New("no fences")
}

func (d loggedDevice) CreateSemaphore() (render.Semaphore, error) {
	return loggedSemaphore{log: d.log}, nil
}

func (d loggedDevice) WaitIdle() error {
	d.log.events = append(d.log.events, "wait idle")
	return nil
}

type imageCountSwapchain int

func (s imageCountSwapchain) ImageCount() int {
	return int(s)
}

func (s imageCountSwapchain) AcquireNextImage(render.Semaphore) (int, error) {
	return 0, nil
}

func (s imageCountSwapchain) Present(int, render.Semaphore) error {
	return nil
}

func TestStartFrameLoopWaitsBeforeDestroyingSemaphores(t *testing.T) {
	teardown := &teardownLog{}
	var release vkng.Cleanup

	pool, presenter, err := startFrameLoop(loggedDevice{log: teardown}, imageCountSwapchain(2), &release, log.New(&bytes.Buffer{}, "", 0))
	require.NoError(t, err)
	require.NotNil(t, pool)
	require.NotNil(t, presenter)
	assert.Empty(t, teardown.events)

	release.Run()

	require.Len(t, teardown.events, 5)
	assert.Equal(t, "wait idle", teardown.events[0])
	for _, event := range teardown.events[1:] {
		assert.Equal(t, "destroy semaphore", event)
	}
}

func TestStartFrameLoopRegistersNothingOnFailure(t *testing.T) {
	var release vkng.Cleanup

	_, _, err := startFrameLoop(loggedDevice{log: &teardownLog{}}, imageCountSwapchain(0), &release, log.New(&bytes.Buffer{}, "", 0))
	assert.Error(t, err)
	assert.Zero(t, release.Len())
}

func TestModelSetWrites(t *testing.T) {
	stride := render.AlignedStride(render.MatrixSize, 256)
	slots, err := render.NewTransformSlots(make([]byte, render.TransformMemorySize(2, stride)), 2, stride)
	require.NoError(t, err)

	writes, err := modelSetWrites(slots, core1_0.Buffer{}, core1_0.DescriptorSet{}, 1, render.RightEye, core1_0.ImageView{}, core1_0.Sampler{})
	require.NoError(t, err)
	require.Len(t, writes, 3)
	assert.Equal(t, (1*render.NumTargets+int(render.RightEye))*stride, writes[0].BufferInfo[0].Offset)
	assert.Equal(t, render.MatrixSize, writes[0].BufferInfo[0].Range)
	assert.Equal(t, core1_0.DescriptorTypeSampledImage, writes[1].DescriptorType)
	assert.Equal(t, core1_0.DescriptorTypeSampler, writes[2].DescriptorType)

	_, err = modelSetWrites(slots, core1_0.Buffer{}, core1_0.DescriptorSet{}, 2, render.LeftEye, core1_0.ImageView{}, core1_0.Sampler{})
	assert.Error(t, err)
}

func TestSceneDeviceEvents(t *testing.T) {
	hmd, err := vr.NewSimulatedHMD(vr.SimulatedOptions{Controllers: 1})
	require.NoError(t, err)

	var logged bytes.Buffer
	controller := &renderModelMeshes{Name: vr.ControllerModel}
	r := &SceneRenderer{
		logger: log.New(&logged, "", 0),
		system: hmd,
		models: map[string]*renderModelMeshes{vr.ControllerModel: controller},
	}

	require.NoError(t, r.ProcessDeviceEvents())
	assert.Contains(t, logged.String(), "Device 0 attached. Setting up render model.")
	assert.Contains(t, logged.String(), "Device 1 attached. Setting up render model.")
	assert.Contains(t, logged.String(), "render model base_station for device 2 not loaded")
	assert.Nil(t, r.deviceModels[vr.HMDIndex])
	assert.Same(t, controller, r.deviceModels[1])
	assert.Nil(t, r.deviceModels[2])

	logged.Reset()
	require.NoError(t, hmd.SetConnected(1, false))
	require.NoError(t, hmd.SetRenderModel(2, vr.BaseStationModel))
	require.NoError(t, r.ProcessDeviceEvents())
	assert.Equal(t, "Device 1 detached.\nDevice 2 updated.\n", logged.String())

	// A detached model stays loaded for when the device returns.
	assert.Same(t, controller, r.deviceModels[1])

	assert.Error(t, r.processDeviceEvent(vr.DeviceEvent{Type: vr.DeviceActivated, Device: vr.MaxTrackedDevices}))
}

func presentsOn(families ...int) func(int) (bool, error) {
	return func(family int) (bool, error) {
		for _, f := range families {
			if f == family {
				return true, nil
			}
		}
		return false, nil
	}
}

func TestChooseQueueFamilies(t *testing.T) {
	compute := &core1_0.QueueFamilyProperties{QueueFlags: core1_0.QueueCompute, QueueCount: 1}
	graphics := &core1_0.QueueFamilyProperties{QueueFlags: core1_0.QueueGraphics | core1_0.QueueCompute, QueueCount: 4}
	empty := &core1_0.QueueFamilyProperties{QueueFlags: core1_0.QueueGraphics}

	// A family that renders and presents beats earlier partial matches.
	families, ok, err := chooseQueueFamilies([]*core1_0.QueueFamilyProperties{graphics, compute, graphics}, presentsOn(1, 2))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, QueueFamilies{Graphics: 2, Present: 2}, families)
	assert.True(t, families.Shared())

	families, ok, err = chooseQueueFamilies([]*core1_0.QueueFamilyProperties{graphics, compute}, presentsOn(1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, QueueFamilies{Graphics: 0, Present: 1}, families)
	assert.False(t, families.Shared())

	// Families without queues are ignored.
	_, ok, err = chooseQueueFamilies([]*core1_0.QueueFamilyProperties{empty, compute}, presentsOn(0, 1))
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = chooseQueueFamilies([]*core1_0.QueueFamilyProperties{graphics}, func(int) (bool, error) {
		return false, errors.New("surface lost")
	})
	assert.Error(t, err)
}

func testCandidate(deviceType core1_0.PhysicalDeviceType, samples core1_0.SampleCountFlags, rejected string) deviceCandidate {
	return deviceCandidate{
		properties: &core1_0.PhysicalDeviceProperties{
			DriverType: deviceType,
			Limits: &core1_0.PhysicalDeviceLimits{
				FramebufferColorSampleCounts: samples,
				FramebufferDepthSampleCounts: samples,
			},
		},
		rejected: rejected,
	}
}

func TestChooseDevice(t *testing.T) {
	upTo4 := core1_0.Samples1 | core1_0.Samples2 | core1_0.Samples4
	upTo8 := upTo4 | core1_0.Samples8

	integrated := testCandidate(core1_0.PhysicalDeviceTypeIntegratedGPU, upTo8, "")
	discrete := testCandidate(core1_0.PhysicalDeviceTypeDiscreteGPU, upTo4, "")
	rejected := testCandidate(core1_0.PhysicalDeviceTypeDiscreteGPU, upTo8, "no sampler anisotropy")

	chosen, ok := chooseDevice([]deviceCandidate{integrated, rejected, discrete}, 8)
	require.True(t, ok)
	assert.Equal(t, core1_0.PhysicalDeviceTypeDiscreteGPU, chosen.properties.DriverType)
	assert.Equal(t, core1_0.Samples4, chosen.samples(8))

	// Between equal device types the one reaching the requested samples wins.
	weaker := testCandidate(core1_0.PhysicalDeviceTypeIntegratedGPU, upTo4, "")
	chosen, ok = chooseDevice([]deviceCandidate{weaker, integrated}, 8)
	require.True(t, ok)
	assert.Equal(t, core1_0.Samples8, chosen.samples(8))

	_, ok = chooseDevice([]deviceCandidate{rejected}, 4)
	assert.False(t, ok)
	_, ok = chooseDevice(nil, 4)
	assert.False(t, ok)
}

// descriptorDriver records descriptor set updates. Every other driver call
// panics.
type descriptorDriver struct {
	core1_0.DeviceDriver

	updates [][]core1_0.WriteDescriptorSet
	err     error
}

func (d *descriptorDriver) UpdateDescriptorSets(writes []core1_0.WriteDescriptorSet, copies []core1_0.CopyDescriptorSet) error {
	if d.err != nil {
		return d.err
	}
	d.updates = append(d.updates, writes)
	return nil
}

func TestSceneDescriptorWrites(t *testing.T) {
	hmd, err := vr.NewSimulatedHMD(vr.SimulatedOptions{Controllers: 1})
	require.NoError(t, err)

	slots, err := render.NewTransformSlots(make([]byte, render.TransformMemorySize(numModelSlots, render.MatrixSize)),
		numModelSlots, render.MatrixSize)
	require.NoError(t, err)

	driver := &descriptorDriver{}
	texture := &vkng.TextureUpload{Texture: &vkng.ImageUnit{}}
	r := &SceneRenderer{
		driver:          driver,
		logger:          log.New(&bytes.Buffer{}, "", 0),
		system:          hmd,
		models:          map[string]*renderModelMeshes{vr.ControllerModel: {Name: vr.ControllerModel, Texture: texture}},
		transforms:      slots,
		transformBuffer: &vkng.BufferUnit{},
		texture:         texture,
	}

	require.NoError(t, r.ProcessDeviceEvents())
	assert.Empty(t, driver.updates)

	// Scene and controller sets for every target, plus the companion set.
	require.NoError(t, r.UploadsComplete())
	require.Len(t, driver.updates, 1)
	assert.Len(t, driver.updates[0], 2*3*render.NumTargets+2)

	// Reattaching a device leaves its sets alone.
	require.NoError(t, hmd.SetConnected(1, false))
	require.NoError(t, hmd.SetConnected(1, true))
	require.NoError(t, r.ProcessDeviceEvents())
	assert.Len(t, driver.updates, 1)

	// A device first given a model after startup gets its sets written then.
	require.NoError(t, hmd.SetRenderModel(2, vr.ControllerModel))
	require.NoError(t, hmd.SetConnected(2, false))
	require.NoError(t, hmd.SetConnected(2, true))
	require.NoError(t, r.ProcessDeviceEvents())
	require.Len(t, driver.updates, 2)
	late := driver.updates[1]
	require.Len(t, late, 3*render.NumTargets)
	offset, err := slots.Offset(deviceModelSlot(2), render.LeftEye)
	require.NoError(t, err)
	assert.Equal(t, offset, late[0].BufferInfo[0].Offset)

	driver.err = errors.New("out of pool memory")
	err = r.UploadsComplete()
	assert.ErrorContains(t, err, "write descriptor sets")
	assert.ErrorContains(t, err, "out of pool memory")
}
