package main

import (
	"os"
	"path/filepath"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/hellovr/render"
	"github.com/vkngwrapper/hellovr/scene"
	"github.com/vkngwrapper/hellovr/vkng"
)

type PipelineKind int

const (
	PipelineScene PipelineKind = iota
	PipelineAxes
	PipelineRenderModel
	PipelineCompanion

	numPipelineKinds = 4
)

// ShaderName is the file name prefix of the kind's SPIR-V: <name>_vs.spv and
// <name>_ps.spv.
func (k PipelineKind) ShaderName() string {
	switch k {
	case PipelineScene:
		return "scene"
	case PipelineAxes:
		return "axes"
	case PipelineRenderModel:
		return "rendermodel"
	}
	return "companion"
}

// Descriptor bindings shared by every pipeline.
const (
	bindingTransform = 0
	bindingTexture   = 1
	bindingSampler   = 2
)

func getVertexBindingDescription(kind PipelineKind) []core1_0.VertexInputBindingDescription {
	var stride uintptr
	switch kind {
	case PipelineScene:
		stride = unsafe.Sizeof(scene.SceneVertex{})
	case PipelineAxes:
		stride = unsafe.Sizeof(scene.AxisVertex{})
	case PipelineRenderModel:
		stride = unsafe.Sizeof(scene.ModelVertex{})
	default:
		stride = unsafe.Sizeof(scene.CompanionVertex{})
	}

	return []core1_0.VertexInputBindingDescription{
		{
			Binding:   0,
			Stride:    int(stride),
			InputRate: core1_0.VertexInputRateVertex,
		},
	}
}

func getVertexAttributeDescriptions(kind PipelineKind) []core1_0.VertexInputAttributeDescription {
	switch kind {
	case PipelineScene:
		v := scene.SceneVertex{}
		return []core1_0.VertexInputAttributeDescription{
			{Binding: 0, Location: 0, Format: core1_0.FormatR32G32B32SignedFloat, Offset: int(unsafe.Offsetof(v.Position))},
			{Binding: 0, Location: 1, Format: core1_0.FormatR32G32SignedFloat, Offset: int(unsafe.Offsetof(v.TexCoord))},
		}
	case PipelineAxes:
		v := scene.AxisVertex{}
		return []core1_0.VertexInputAttributeDescription{
			{Binding: 0, Location: 0, Format: core1_0.FormatR32G32B32SignedFloat, Offset: int(unsafe.Offsetof(v.Position))},
			{Binding: 0, Location: 1, Format: core1_0.FormatR32G32B32SignedFloat, Offset: int(unsafe.Offsetof(v.Color))},
		}
	case PipelineRenderModel:
		v := scene.ModelVertex{}
		return []core1_0.VertexInputAttributeDescription{
			{Binding: 0, Location: 0, Format: core1_0.FormatR32G32B32SignedFloat, Offset: int(unsafe.Offsetof(v.Position))},
			{Binding: 0, Location: 1, Format: core1_0.FormatR32G32B32SignedFloat, Offset: int(unsafe.Offsetof(v.Normal))},
			{Binding: 0, Location: 2, Format: core1_0.FormatR32G32SignedFloat, Offset: int(unsafe.Offsetof(v.TexCoord))},
		}
	}

	v := scene.CompanionVertex{}
	return []core1_0.VertexInputAttributeDescription{
		{Binding: 0, Location: 0, Format: core1_0.FormatR32G32SignedFloat, Offset: int(unsafe.Offsetof(v.Position))},
		{Binding: 0, Location: 1, Format: core1_0.FormatR32G32SignedFloat, Offset: int(unsafe.Offsetof(v.TexCoord))},
	}
}

func bytesToBytecode(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, errors.Newf("SPIR-V is %d bytes, not a whole number of words", len(b))
	}

	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	return byteCode, nil
}

type pipelineState struct {
	Kind       PipelineKind
	Stages     []core1_0.PipelineShaderStageCreateInfo
	Layout     core1_0.PipelineLayout
	RenderPass core1_0.RenderPass
	Samples    core1_0.SampleCountFlags
}

// graphicsPipelineCreateInfo describes one pipeline. Viewport and scissor are
// dynamic so one pipeline serves every target of the same render pass.
func graphicsPipelineCreateInfo(state pipelineState) core1_0.GraphicsPipelineCreateInfo {
	topology := core1_0.PrimitiveTopologyTriangleList
	if state.Kind == PipelineAxes {
		topology = core1_0.PrimitiveTopologyLineList
	}

	depthEnabled := state.Kind != PipelineCompanion

	// The projection flips Y, which turns counter-clockwise scene geometry
	// clockwise. The companion quad is already in Vulkan clip space.
	frontFace := core1_0.FrontFaceClockwise
	if state.Kind == PipelineCompanion {
		frontFace = core1_0.FrontFaceCounterClockwise
	}

	return core1_0.GraphicsPipelineCreateInfo{
		Stages: state.Stages,
		VertexInputState: &core1_0.PipelineVertexInputStateCreateInfo{
			VertexBindingDescriptions:   getVertexBindingDescription(state.Kind),
			VertexAttributeDescriptions: getVertexAttributeDescriptions(state.Kind),
		},
		InputAssemblyState: &core1_0.PipelineInputAssemblyStateCreateInfo{
			Topology:               topology,
			PrimitiveRestartEnable: false,
		},
		ViewportState: &core1_0.PipelineViewportStateCreateInfo{
			Viewports: []core1_0.Viewport{{Width: 1, Height: 1, MaxDepth: 1}},
			Scissors:  []core1_0.Rect2D{{Extent: core1_0.Extent2D{Width: 1, Height: 1}}},
		},
		RasterizationState: &core1_0.PipelineRasterizationStateCreateInfo{
			DepthClampEnable:        false,
			RasterizerDiscardEnable: false,

			PolygonMode: core1_0.PolygonModeFill,
			CullMode:    core1_0.CullModeBack,
			FrontFace:   frontFace,

			DepthBiasEnable: false,

			LineWidth: 1.0,
		},
		MultisampleState: &core1_0.PipelineMultisampleStateCreateInfo{
			SampleShadingEnable:  false,
			RasterizationSamples: state.Samples,
			MinSampleShading:     1.0,
		},
		DepthStencilState: &core1_0.PipelineDepthStencilStateCreateInfo{
			DepthTestEnable:  depthEnabled,
			DepthWriteEnable: depthEnabled,
			DepthCompareOp:   core1_0.CompareOpLessOrEqual,
		},
		ColorBlendState: &core1_0.PipelineColorBlendStateCreateInfo{
			LogicOpEnabled: false,
			LogicOp:        core1_0.LogicOpCopy,

			BlendConstants: [4]float32{0, 0, 0, 0},
			Attachments: []core1_0.PipelineColorBlendAttachmentState{
				{
					BlendEnabled:   false,
					ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
				},
			},
		},
		DynamicState: &core1_0.PipelineDynamicStateCreateInfo{
			DynamicStates: []core1_0.DynamicState{core1_0.DynamicStateViewport, core1_0.DynamicStateScissor},
		},
		Layout:            state.Layout,
		RenderPass:        state.RenderPass,
		Subpass:           0,
		BasePipelineIndex: -1,
	}
}

// Pipelines holds the descriptor set layout, the pipeline layout and every
// graphics pipeline. The scene pipelines are built once per render target
// because the eye and screen targets differ in sample count.
type Pipelines struct {
	SetLayout core1_0.DescriptorSetLayout
	Layout    core1_0.PipelineLayout

	Targets   [render.NumTargets][PipelineCompanion]core1_0.Pipeline
	Companion core1_0.Pipeline

	release vkng.Cleanup
}

func (p *Pipelines) Destroy() {
	p.release.Run()
}

func (app *HelloVRApplication) createPipelines() error {
	driver := app.deviceDriver
	pipelines := &Pipelines{}
	app.pipelines = pipelines
	app.release.Add(pipelines.Destroy)

	identity := vkng.PipelineCacheIdentity{
		VendorID:  uint32(app.properties.VendorID),
		DeviceID:  uint32(app.properties.DeviceID),
		CacheUUID: app.properties.PipelineCacheUUID,
	}
	cache, err := vkng.LoadPipelineCache(driver, identity, app.cfg.PipelineCache)
	if err != nil {
		return err
	}
	app.pipelineCache = cache
	pipelines.release.Add(cache.Destroy)

	pipelines.SetLayout, _, err = driver.CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: []core1_0.DescriptorSetLayoutBinding{
			{
				Binding:         bindingTransform,
				DescriptorType:  core1_0.DescriptorTypeUniformBuffer,
				DescriptorCount: 1,

				StageFlags: core1_0.StageVertex,
			},
			{
				Binding:         bindingTexture,
				DescriptorType:  core1_0.DescriptorTypeSampledImage,
				DescriptorCount: 1,

				StageFlags: core1_0.StageFragment,
			},
			{
				Binding:         bindingSampler,
				DescriptorType:  core1_0.DescriptorTypeSampler,
				DescriptorCount: 1,

				StageFlags: core1_0.StageFragment,
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "create descriptor set layout")
	}
	setLayout := pipelines.SetLayout
	pipelines.release.Add(func() { driver.DestroyDescriptorSetLayout(setLayout, nil) })

	pipelines.Layout, _, err = driver.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts: []core1_0.DescriptorSetLayout{setLayout},
	})
	if err != nil {
		return errors.Wrap(err, "create pipeline layout")
	}
	layout := pipelines.Layout
	pipelines.release.Add(func() { driver.DestroyPipelineLayout(layout, nil) })

	var stages [numPipelineKinds][]core1_0.PipelineShaderStageCreateInfo
	for kind := PipelineKind(0); kind < numPipelineKinds; kind++ {
		stages[kind], err = app.loadShaderStages(kind)
		if err != nil {
			return err
		}
	}

	var states []pipelineState
	for id, target := range app.targets {
		for kind := PipelineScene; kind < PipelineCompanion; kind++ {
			states = append(states, pipelineState{
				Kind:       kind,
				Stages:     stages[kind],
				Layout:     layout,
				RenderPass: target.RenderPass,
				Samples:    app.targets[id].Descriptor().Samples,
			})
		}
	}
	states = append(states, pipelineState{
		Kind:       PipelineCompanion,
		Stages:     stages[PipelineCompanion],
		Layout:     layout,
		RenderPass: app.companionFramebuffers.RenderPass,
		Samples:    core1_0.Samples1,
	})

	createInfos := make([]core1_0.GraphicsPipelineCreateInfo, 0, len(states))
	for _, state := range states {
		createInfos = append(createInfos, graphicsPipelineCreateInfo(state))
	}

	created, _, err := driver.CreateGraphicsPipelines(&cache.Handle, nil, createInfos...)
	if err != nil {
		return errors.Wrap(err, "create graphics pipelines")
	}
	for _, pipeline := range created {
		pipeline := pipeline
		pipelines.release.Add(func() { driver.DestroyPipeline(pipeline, nil) })
	}
	if len(created) != len(states) {
		return errors.Newf("created %d of %d pipelines", len(created), len(states))
	}

	for i := range app.targets {
		for kind := PipelineScene; kind < PipelineCompanion; kind++ {
			pipelines.Targets[i][kind] = created[i*int(PipelineCompanion)+int(kind)]
		}
	}
	pipelines.Companion = created[len(created)-1]

	return nil
}

// loadShaderStages reads the kind's vertex and fragment SPIR-V. The shader
// modules are only needed until the pipelines exist and are destroyed with
// them.
func (app *HelloVRApplication) loadShaderStages(kind PipelineKind) ([]core1_0.PipelineShaderStageCreateInfo, error) {
	driver := app.deviceDriver
	var stages []core1_0.PipelineShaderStageCreateInfo

	for _, stage := range []struct {
		suffix string
		flag   core1_0.ShaderStageFlags
	}{
		{suffix: "_vs.spv", flag: core1_0.StageVertex},
		{suffix: "_ps.spv", flag: core1_0.StageFragment},
	} {
		path := filepath.Join(app.cfg.ShaderDir, kind.ShaderName()+stage.suffix)
		shaderBytes, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "load shader")
		}

		code, err := bytesToBytecode(shaderBytes)
		if err != nil {
			return nil, errors.Wrapf(err, "shader %s", path)
		}

		module, _, err := driver.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
			Code: code,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "create shader module %s", path)
		}
		app.pipelines.release.Add(func() { driver.DestroyShaderModule(module, nil) })

		stages = append(stages, core1_0.PipelineShaderStageCreateInfo{
			Stage:  stage.flag,
			Module: module,
			Name:   "main",
		})
	}

	return stages, nil
}
