package main

import (
	"bytes"
	"encoding/binary"
	"log"
	"os"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/hellovr/render"
	"github.com/vkngwrapper/hellovr/scene"
	"github.com/vkngwrapper/hellovr/vkng"
	"github.com/vkngwrapper/hellovr/vr"
	"golang.org/x/sync/errgroup"
)

const (
	sceneTextureFormat = core1_0.FormatR8G8B8A8SRGB

	// Transform slot 0 is the cube scene; tracked device d uses slot 1+d.
	sceneModelSlot = 0
	numModelSlots  = 1 + vr.MaxTrackedDevices

	checkerSize    = 256
	checkerSquares = 8

	maxAnisotropy = 16
)

func deviceModelSlot(device int) int {
	return 1 + device
}

// encodeVertices lays data out in the device's byte order.
func encodeVertices(data any) ([]byte, error) {
	buf := &bytes.Buffer{}
	err := binary.Write(buf, common.ByteOrder, data)
	if err != nil {
		return nil, errors.Wrap(err, "encode vertex data")
	}
	return buf.Bytes(), nil
}

type renderModelMeshes struct {
	Name       string
	Vertices   *vkng.BufferUpload
	Indices    *vkng.BufferUpload
	IndexCount int
	Texture    *vkng.TextureUpload
}

// sceneAssets is everything prepared on the CPU before any GPU object exists.
type sceneAssets struct {
	cubes     []byte
	cubeCount int
	texture   *scene.MipChain

	companionVertices []byte
	companionIndices  []byte
	companionCount    int

	models map[string]*scene.RenderModel
}

// SceneRenderer draws the cube volume, the tracked device render models and
// the controller axes into every render target, and the screen target into
// the companion window.
type SceneRenderer struct {
	driver    core1_0.DeviceDriver
	logger    *log.Logger
	system    vr.System
	pipelines *Pipelines

	cameras  *vr.Cameras
	reporter *vr.PoseReporter

	cubeVertices    *vkng.BufferUpload
	cubeVertexCount int
	texture         *vkng.TextureUpload

	companionVertices   *vkng.BufferUpload
	companionIndices    *vkng.BufferUpload
	companionIndexCount int

	models       map[string]*renderModelMeshes
	deviceModels [vr.MaxTrackedDevices]*renderModelMeshes
	// deviceSetsWritten marks device slots whose descriptor sets point at
	// their model. Sets are written once, so an in-flight frame never sees
	// them change.
	deviceSetsWritten [vr.MaxTrackedDevices]bool
	uploaded          bool

	transformBuffer *vkng.BufferUnit
	transforms      *render.TransformSlots

	axesBuffer      *vkng.BufferUnit
	axesMemory      []byte
	axisVertices    []scene.AxisVertex
	controllerPoses []mgl32.Mat4
	axisVertexCount int

	descriptorPool   core1_0.DescriptorPool
	sets             [numModelSlots][render.NumTargets]core1_0.DescriptorSet
	companionSet     core1_0.DescriptorSet
	textureSampler   core1_0.Sampler
	companionSampler core1_0.Sampler
	screenView       core1_0.ImageView

	devices   []vr.TrackedDevice
	showCubes bool

	release vkng.Cleanup
}

func (r *SceneRenderer) Destroy() {
	r.release.Run()
}

// prepareSceneAssets builds the cube volume, decodes the scene texture and
// loads every render model named by a tracked device, concurrently. A model
// that fails to load is logged and skipped.
func prepareSceneAssets(volume int, texturePath, modelDir string, modelNames []string, logger *log.Logger) (*sceneAssets, error) {
	assets := &sceneAssets{models: make(map[string]*scene.RenderModel)}
	loaded := make([]*scene.RenderModel, len(modelNames))

	var group errgroup.Group

	group.Go(func() error {
		vertices, err := scene.CubeVolume(volume, volume, volume)
		if err != nil {
			return err
		}
		assets.cubeCount = len(vertices)
		assets.cubes, err = encodeVertices(vertices)
		return err
	})

	group.Go(func() error {
		img := scene.CheckerTexture(checkerSize, checkerSquares)
		if texturePath != "" {
			file, err := os.Open(texturePath)
			if err != nil {
				return errors.Wrap(err, "open scene texture")
			}
			defer file.Close()

			img, err = scene.DecodeRGBA(file)
			if err != nil {
				return errors.Wrapf(err, "scene texture %s", texturePath)
			}
		}

		var err error
		assets.texture, err = scene.BuildMipChain(img)
		return err
	})

	group.Go(func() error {
		vertices, indices := scene.CompanionQuad()
		assets.companionCount = len(indices)

		var err error
		assets.companionVertices, err = encodeVertices(vertices)
		if err != nil {
			return err
		}
		assets.companionIndices, err = encodeVertices(indices)
		return err
	})

	for i, name := range modelNames {
		i, name := i, name
		group.Go(func() error {
			model, err := scene.LoadRenderModel(modelDir, name)
			if err != nil {
				logger.Printf("render model %s unavailable: %v", name, err)
				return nil
			}
			loaded[i] = model
			return nil
		})
	}

	err := group.Wait()
	if err != nil {
		return nil, err
	}

	for _, model := range loaded {
		if model != nil {
			assets.models[model.Name] = model
		}
	}
	return assets, nil
}

// renderModelNames is the sorted set of render models used by tracked
// devices other than the HMD.
func renderModelNames(devices []vr.TrackedDevice) []string {
	unique := make(map[string]struct{})
	for i, device := range devices {
		if i == vr.HMDIndex || device.RenderModel == "" {
			continue
		}
		unique[device.RenderModel] = struct{}{}
	}

	names := make([]string, 0, len(unique))
	for name := range unique {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (app *HelloVRApplication) createScene() error {
	devices := app.hmd.Devices()

	assets, err := prepareSceneAssets(app.cfg.CubeVolume, app.cfg.Texture, app.cfg.RenderModelDir,
		renderModelNames(devices), app.logger)
	if err != nil {
		return err
	}

	r := &SceneRenderer{
		driver:    app.deviceDriver,
		logger:    app.logger,
		system:    app.hmd,
		pipelines: app.pipelines,
		cameras:   vr.NewCameras(app.hmd, vr.NearClip, vr.FarClip),
		reporter:  vr.NewPoseReporter(app.logger),
		models:    make(map[string]*renderModelMeshes),
		showCubes: true,
	}
	app.scene = r
	app.release.Add(r.Destroy)

	err = r.createGeometry(app.allocator, assets)
	if err != nil {
		return err
	}

	// Devices present at startup arrive as activation events.
	err = r.ProcessDeviceEvents()
	if err != nil {
		return err
	}

	err = r.createTransforms(app.allocator, int(app.properties.Limits.MinUniformBufferOffsetAlignment))
	if err != nil {
		return err
	}

	err = r.createAxes(app.allocator)
	if err != nil {
		return err
	}

	err = r.createSamplers(app.properties.Limits.MaxSamplerAnisotropy)
	if err != nil {
		return err
	}

	r.screenView = app.targets[render.Screen].Color.View
	return r.createDescriptorSets()
}

func (r *SceneRenderer) createGeometry(allocator *vkng.Allocator, assets *sceneAssets) error {
	var err error

	r.cubeVertices, err = allocator.NewBufferUpload(core1_0.BufferUsageVertexBuffer, assets.cubes)
	if err != nil {
		return errors.Wrap(err, "create cube vertex buffer")
	}
	r.release.Add(r.cubeVertices.Buffer.Destroy)
	r.cubeVertexCount = assets.cubeCount

	r.texture, err = newTextureUpload(allocator, assets.texture)
	if err != nil {
		return errors.Wrap(err, "create scene texture")
	}
	r.release.Add(r.texture.Texture.Destroy)

	r.companionVertices, err = allocator.NewBufferUpload(core1_0.BufferUsageVertexBuffer, assets.companionVertices)
	if err != nil {
		return errors.Wrap(err, "create companion vertex buffer")
	}
	r.release.Add(r.companionVertices.Buffer.Destroy)

	r.companionIndices, err = allocator.NewBufferUpload(core1_0.BufferUsageIndexBuffer, assets.companionIndices)
	if err != nil {
		return errors.Wrap(err, "create companion index buffer")
	}
	r.release.Add(r.companionIndices.Buffer.Destroy)
	r.companionIndexCount = assets.companionCount

	for name, model := range assets.models {
		meshes, err := newRenderModelMeshes(allocator, model)
		if err != nil {
			return errors.Wrapf(err, "render model %s", name)
		}
		r.release.Add(meshes.Destroy)
		r.models[name] = meshes
	}

	return nil
}

func newTextureUpload(allocator *vkng.Allocator, chain *scene.MipChain) (*vkng.TextureUpload, error) {
	levels := make([]vkng.TextureLevel, 0, len(chain.Levels))
	for _, level := range chain.Levels {
		levels = append(levels, vkng.TextureLevel{
			Width:  level.Width,
			Height: level.Height,
			Offset: level.Offset,
		})
	}
	return allocator.NewTextureUpload(sceneTextureFormat, chain.Pixels, levels)
}

func newRenderModelMeshes(allocator *vkng.Allocator, model *scene.RenderModel) (meshes *renderModelMeshes, err error) {
	meshes = &renderModelMeshes{Name: model.Name, IndexCount: len(model.Indices)}
	defer func() {
		if err != nil {
			meshes.Destroy()
		}
	}()

	vertexData, err := encodeVertices(model.Vertices)
	if err != nil {
		return nil, err
	}
	meshes.Vertices, err = allocator.NewBufferUpload(core1_0.BufferUsageVertexBuffer, vertexData)
	if err != nil {
		return nil, err
	}

	indexData, err := encodeVertices(model.Indices)
	if err != nil {
		return nil, err
	}
	meshes.Indices, err = allocator.NewBufferUpload(core1_0.BufferUsageIndexBuffer, indexData)
	if err != nil {
		return nil, err
	}

	meshes.Texture, err = newTextureUpload(allocator, model.Texture)
	if err != nil {
		return nil, err
	}

	return meshes, nil
}

func (m *renderModelMeshes) uploads() []render.Upload {
	return []render.Upload{m.Vertices, m.Indices, m.Texture}
}

func (m *renderModelMeshes) Destroy() {
	if m.Vertices != nil {
		m.Vertices.Buffer.Destroy()
	}
	if m.Indices != nil {
		m.Indices.Buffer.Destroy()
	}
	if m.Texture != nil {
		m.Texture.Texture.Destroy()
	}
}

func (r *SceneRenderer) createTransforms(allocator *vkng.Allocator, alignment int) error {
	stride := render.AlignedStride(render.MatrixSize, alignment)
	size := render.TransformMemorySize(numModelSlots, stride)

	buffer, err := allocator.CreateBuffer(size, core1_0.BufferUsageUniformBuffer,
		core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return errors.Wrap(err, "create transform buffer")
	}
	r.transformBuffer = buffer
	r.release.Add(buffer.Destroy)

	memory, err := buffer.Map()
	if err != nil {
		return err
	}

	r.transforms, err = render.NewTransformSlots(memory, numModelSlots, stride)
	return err
}

func (r *SceneRenderer) createAxes(allocator *vkng.Allocator) error {
	maxVertices := vr.MaxTrackedDevices * scene.AxisVerticesPerController
	size := maxVertices * binary.Size(scene.AxisVertex{})

	buffer, err := allocator.CreateBuffer(size, core1_0.BufferUsageVertexBuffer,
		core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return errors.Wrap(err, "create controller axes buffer")
	}
	r.axesBuffer = buffer
	r.release.Add(buffer.Destroy)

	r.axesMemory, err = buffer.Map()
	if err != nil {
		return err
	}

	r.axisVertices = make([]scene.AxisVertex, 0, maxVertices)
	r.controllerPoses = make([]mgl32.Mat4, 0, vr.MaxTrackedDevices)
	return nil
}

func (r *SceneRenderer) createSamplers(deviceMaxAnisotropy float32) error {
	anisotropy := float32(maxAnisotropy)
	if deviceMaxAnisotropy < anisotropy {
		anisotropy = deviceMaxAnisotropy
	}

	var err error
	r.textureSampler, _, err = r.driver.CreateSampler(nil, core1_0.SamplerCreateInfo{
		MagFilter:    core1_0.FilterLinear,
		MinFilter:    core1_0.FilterLinear,
		AddressModeU: core1_0.SamplerAddressModeClampToEdge,
		AddressModeV: core1_0.SamplerAddressModeClampToEdge,
		AddressModeW: core1_0.SamplerAddressModeClampToEdge,

		AnisotropyEnable: anisotropy > 1,
		MaxAnisotropy:    anisotropy,

		BorderColor: core1_0.BorderColorIntOpaqueBlack,

		MipmapMode: core1_0.SamplerMipmapModeLinear,
		MinLod:     0,
		MaxLod:     float32(r.texture.Texture.MipLevels),
	})
	if err != nil {
		return errors.Wrap(err, "create texture sampler")
	}
	textureSampler := r.textureSampler
	r.release.Add(func() { r.driver.DestroySampler(textureSampler, nil) })

	r.companionSampler, _, err = r.driver.CreateSampler(nil, core1_0.SamplerCreateInfo{
		MagFilter:    core1_0.FilterLinear,
		MinFilter:    core1_0.FilterLinear,
		AddressModeU: core1_0.SamplerAddressModeClampToEdge,
		AddressModeV: core1_0.SamplerAddressModeClampToEdge,
		AddressModeW: core1_0.SamplerAddressModeClampToEdge,

		BorderColor: core1_0.BorderColorIntOpaqueBlack,

		MipmapMode: core1_0.SamplerMipmapModeNearest,
		MinLod:     0,
		MaxLod:     0,
	})
	if err != nil {
		return errors.Wrap(err, "create companion sampler")
	}
	companionSampler := r.companionSampler
	r.release.Add(func() { r.driver.DestroySampler(companionSampler, nil) })

	return nil
}

func (r *SceneRenderer) createDescriptorSets() error {
	setCount := numModelSlots*render.NumTargets + 1

	var err error
	r.descriptorPool, _, err = r.driver.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		MaxSets: setCount,
		PoolSizes: []core1_0.DescriptorPoolSize{
			{
				Type:            core1_0.DescriptorTypeUniformBuffer,
				DescriptorCount: setCount,
			},
			{
				Type:            core1_0.DescriptorTypeSampledImage,
				DescriptorCount: setCount,
			},
			{
				Type:            core1_0.DescriptorTypeSampler,
				DescriptorCount: setCount,
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "create descriptor pool")
	}
	pool := r.descriptorPool
	r.release.Add(func() { r.driver.DestroyDescriptorPool(pool, nil) })

	layouts := make([]core1_0.DescriptorSetLayout, setCount)
	for i := range layouts {
		layouts[i] = r.pipelines.SetLayout
	}

	sets, _, err := r.driver.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: pool,
		SetLayouts:     layouts,
	})
	if err != nil {
		return errors.Wrap(err, "allocate descriptor sets")
	}
	if len(sets) != setCount {
		return errors.Newf("allocated %d of %d descriptor sets", len(sets), setCount)
	}

	for model := 0; model < numModelSlots; model++ {
		for target := 0; target < render.NumTargets; target++ {
			r.sets[model][target] = sets[model*render.NumTargets+target]
		}
	}
	r.companionSet = sets[setCount-1]
	return nil
}

// Uploads are the GPU copies that must finish before the first frame.
func (r *SceneRenderer) Uploads() ([]render.Upload, error) {
	if r.cubeVertices == nil || r.texture == nil {
		return nil, errors.New("scene geometry was not created")
	}

	uploads := []render.Upload{r.cubeVertices, r.texture, r.companionVertices, r.companionIndices}

	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		uploads = append(uploads, r.models[name].uploads()...)
	}

	return uploads, nil
}

// UploadsComplete points every descriptor set at its transform slot and its
// texture once the textures hold their final contents.
func (r *SceneRenderer) UploadsComplete() error {
	writes := make([]core1_0.WriteDescriptorSet, 0, 3*(numModelSlots*render.NumTargets+1))

	for target := render.TargetID(0); target < render.NumTargets; target++ {
		sceneWrites, err := modelSetWrites(r.transforms, r.transformBuffer.Buffer, r.sets[sceneModelSlot][target],
			sceneModelSlot, target, r.texture.Texture.View, r.textureSampler)
		if err != nil {
			return err
		}
		writes = append(writes, sceneWrites...)
	}

	for device := range r.deviceModels {
		deviceWrites, err := r.deviceSetWrites(device)
		if err != nil {
			return err
		}
		writes = append(writes, deviceWrites...)
	}

	writes = append(writes,
		core1_0.WriteDescriptorSet{
			DstSet:         r.companionSet,
			DstBinding:     bindingTexture,
			DescriptorType: core1_0.DescriptorTypeSampledImage,
			ImageInfo: []core1_0.DescriptorImageInfo{
				{
					ImageView:   r.screenView,
					ImageLayout: core1_0.ImageLayoutShaderReadOnlyOptimal,
				},
			},
		},
		core1_0.WriteDescriptorSet{
			DstSet:         r.companionSet,
			DstBinding:     bindingSampler,
			DescriptorType: core1_0.DescriptorTypeSampler,
			ImageInfo: []core1_0.DescriptorImageInfo{
				{Sampler: r.companionSampler},
			},
		},
	)

	err := r.driver.UpdateDescriptorSets(writes, nil)
	if err != nil {
		return errors.Wrap(err, "write descriptor sets")
	}
	r.uploaded = true
	return nil
}

// deviceSetWrites returns the writes for device's sets in every target, or
// nothing when the device has no model or its sets were already written.
func (r *SceneRenderer) deviceSetWrites(device int) ([]core1_0.WriteDescriptorSet, error) {
	meshes := r.deviceModels[device]
	if meshes == nil || r.deviceSetsWritten[device] {
		return nil, nil
	}

	model := deviceModelSlot(device)
	var writes []core1_0.WriteDescriptorSet
	for target := render.TargetID(0); target < render.NumTargets; target++ {
		targetWrites, err := modelSetWrites(r.transforms, r.transformBuffer.Buffer, r.sets[model][target],
			model, target, meshes.Texture.Texture.View, r.textureSampler)
		if err != nil {
			return nil, errors.Wrapf(err, "device %d", device)
		}
		writes = append(writes, targetWrites...)
	}
	r.deviceSetsWritten[device] = true
	return writes, nil
}

// ProcessDeviceEvents drains the session's device events. An activated
// device gets the render model its session entry names, when one was loaded.
func (r *SceneRenderer) ProcessDeviceEvents() error {
	for {
		event, ok := r.system.PollNextEvent()
		if !ok {
			return nil
		}
		err := r.processDeviceEvent(event)
		if err != nil {
			return err
		}
	}
}

func (r *SceneRenderer) processDeviceEvent(event vr.DeviceEvent) error {
	if event.Device < 0 || event.Device >= vr.MaxTrackedDevices {
		return errors.Newf("device event for slot %d", event.Device)
	}

	switch event.Type {
	case vr.DeviceActivated:
		r.logger.Printf("Device %d attached. Setting up render model.", event.Device)
		return r.setupDeviceModel(event.Device)
	case vr.DeviceDeactivated:
		r.logger.Printf("Device %d detached.", event.Device)
	case vr.DeviceUpdated:
		r.logger.Printf("Device %d updated.", event.Device)
	}
	return nil
}

func (r *SceneRenderer) setupDeviceModel(device int) error {
	devices := r.system.Devices()
	if device == vr.HMDIndex || device >= len(devices) || r.deviceModels[device] != nil {
		return nil
	}

	name := devices[device].RenderModel
	meshes := r.models[name]
	if meshes == nil {
		if name != "" {
			r.logger.Printf("render model %s for device %d not loaded", name, device)
		}
		return nil
	}
	r.deviceModels[device] = meshes

	// Before the uploads finish every set is written in one batch.
	if !r.uploaded {
		return nil
	}
	writes, err := r.deviceSetWrites(device)
	if err != nil || len(writes) == 0 {
		return err
	}
	err = r.driver.UpdateDescriptorSets(writes, nil)
	if err != nil {
		return errors.Wrapf(err, "write descriptor sets for device %d", device)
	}
	return nil
}

// modelSetWrites binds one model's set to its transform slot for target and
// to the texture it samples.
func modelSetWrites(slots *render.TransformSlots, transformBuffer core1_0.Buffer, set core1_0.DescriptorSet, model int, target render.TargetID, view core1_0.ImageView, sampler core1_0.Sampler) ([]core1_0.WriteDescriptorSet, error) {
	offset, err := slots.Offset(model, target)
	if err != nil {
		return nil, err
	}

	return []core1_0.WriteDescriptorSet{
		{
			DstSet:         set,
			DstBinding:     bindingTransform,
			DescriptorType: core1_0.DescriptorTypeUniformBuffer,
			BufferInfo: []core1_0.DescriptorBufferInfo{
				{
					Buffer: transformBuffer,
					Offset: offset,
					Range:  render.MatrixSize,
				},
			},
		},
		{
			DstSet:         set,
			DstBinding:     bindingTexture,
			DescriptorType: core1_0.DescriptorTypeSampledImage,
			ImageInfo: []core1_0.DescriptorImageInfo{
				{
					ImageView:   view,
					ImageLayout: core1_0.ImageLayoutShaderReadOnlyOptimal,
				},
			},
		},
		{
			DstSet:         set,
			DstBinding:     bindingSampler,
			DescriptorType: core1_0.DescriptorTypeSampler,
			ImageInfo: []core1_0.DescriptorImageInfo{
				{Sampler: sampler},
			},
		},
	}, nil
}

// ToggleCubes shows or hides the cube volume.
func (r *SceneRenderer) ToggleCubes() {
	r.showCubes = !r.showCubes
	r.logger.Printf("cubes visible: %t", r.showCubes)
}

// RotateScreen orbits the companion window's camera by mouse motion.
func (r *SceneRenderer) RotateScreen(dx, dy float32) {
	r.cameras.RotateScreen(dx, dy)
}

func (r *SceneRenderer) BeginFrame() error {
	r.transforms.BeginFrame()

	err := r.ProcessDeviceEvents()
	if err != nil {
		return err
	}

	r.devices = r.system.Devices()
	r.reporter.Report(r.devices)
	r.cameras.Update(r.devices)

	r.controllerPoses = vr.ControllerPoses(r.devices, r.controllerPoses[:0])
	r.axisVertices = scene.ControllerAxes(r.axisVertices[:0], r.controllerPoses)
	r.axisVertexCount = len(r.axisVertices)
	if r.axisVertexCount == 0 {
		return nil
	}

	data, err := encodeVertices(r.axisVertices)
	if err != nil {
		return err
	}
	if len(data) > len(r.axesMemory) {
		return errors.Newf("%d bytes of controller axes overflow the axes buffer", len(data))
	}
	copy(r.axesMemory, data)
	return nil
}

func (r *SceneRenderer) RenderScene(cmd render.CommandBuffer, target render.TargetID) error {
	buffer, err := vkng.Unwrap(cmd)
	if err != nil {
		return err
	}
	pipelines := r.pipelines.Targets[target]
	viewProjection := r.cameras.ViewProjection(target)

	err = r.transforms.Write(sceneModelSlot, target, viewProjection)
	if err != nil {
		return err
	}

	r.driver.CmdBindDescriptorSets(buffer.Handle, core1_0.PipelineBindPointGraphics, r.pipelines.Layout, 0,
		[]core1_0.DescriptorSet{r.sets[sceneModelSlot][target]}, nil)

	if r.showCubes {
		r.driver.CmdBindPipeline(buffer.Handle, core1_0.PipelineBindPointGraphics, pipelines[PipelineScene])
		r.driver.CmdBindVertexBuffers(buffer.Handle, 0, []core1_0.Buffer{r.cubeVertices.Buffer.Buffer}, []int{0})
		r.driver.CmdDraw(buffer.Handle, r.cubeVertexCount, 1, 0, 0)
	}

	// The axes reuse the scene set, which is still bound.
	if r.axisVertexCount > 0 {
		r.driver.CmdBindPipeline(buffer.Handle, core1_0.PipelineBindPointGraphics, pipelines[PipelineAxes])
		r.driver.CmdBindVertexBuffers(buffer.Handle, 0, []core1_0.Buffer{r.axesBuffer.Buffer}, []int{0})
		r.driver.CmdDraw(buffer.Handle, r.axisVertexCount, 1, 0, 0)
	}

	boundModel := false
	for device, meshes := range r.deviceModels {
		if meshes == nil || device >= len(r.devices) {
			continue
		}
		tracked := r.devices[device]
		if !tracked.Connected || !tracked.PoseValid || !tracked.Visible() {
			continue
		}

		model := deviceModelSlot(device)
		err = r.transforms.Write(model, target, viewProjection.Mul4(tracked.Pose))
		if err != nil {
			return err
		}

		if !boundModel {
			r.driver.CmdBindPipeline(buffer.Handle, core1_0.PipelineBindPointGraphics, pipelines[PipelineRenderModel])
			boundModel = true
		}
		r.driver.CmdBindDescriptorSets(buffer.Handle, core1_0.PipelineBindPointGraphics, r.pipelines.Layout, 0,
			[]core1_0.DescriptorSet{r.sets[model][target]}, nil)
		r.driver.CmdBindVertexBuffers(buffer.Handle, 0, []core1_0.Buffer{meshes.Vertices.Buffer.Buffer}, []int{0})
		r.driver.CmdBindIndexBuffer(buffer.Handle, meshes.Indices.Buffer.Buffer, 0, core1_0.IndexTypeUInt16)
		r.driver.CmdDrawIndexed(buffer.Handle, meshes.IndexCount, 1, 0, 0, 0)
	}

	return nil
}

func (r *SceneRenderer) RenderCompanion(cmd render.CommandBuffer, imageIndex int) error {
	buffer, err := vkng.Unwrap(cmd)
	if err != nil {
		return err
	}

	r.driver.CmdBindPipeline(buffer.Handle, core1_0.PipelineBindPointGraphics, r.pipelines.Companion)
	r.driver.CmdBindDescriptorSets(buffer.Handle, core1_0.PipelineBindPointGraphics, r.pipelines.Layout, 0,
		[]core1_0.DescriptorSet{r.companionSet}, nil)
	r.driver.CmdBindVertexBuffers(buffer.Handle, 0, []core1_0.Buffer{r.companionVertices.Buffer.Buffer}, []int{0})
	r.driver.CmdBindIndexBuffer(buffer.Handle, r.companionIndices.Buffer.Buffer, 0, core1_0.IndexTypeUInt16)
	r.driver.CmdDrawIndexed(buffer.Handle, r.companionIndexCount, 1, 0, 0, 0)
	return nil
}
