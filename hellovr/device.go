package main

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"github.com/vkngwrapper/hellovr/vkng"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"
)

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}
var deviceExtensions = []string{khr_swapchain.ExtensionName}

// QueueFamilies are the families the graphics and present queues come from.
type QueueFamilies struct {
	Graphics int
	Present  int
}

// Shared reports whether one family serves both rendering and presentation.
func (f QueueFamilies) Shared() bool {
	return f.Graphics == f.Present
}

// SurfaceSupport is what the companion window's surface offers on a device.
type SurfaceSupport struct {
	Capabilities *khr_surface.SurfaceCapabilities
	Formats      []khr_surface.SurfaceFormat
	PresentModes []khr_surface.PresentMode
}

func (s SurfaceSupport) Adequate() bool {
	return len(s.Formats) > 0 && len(s.PresentModes) > 0
}

func (app *HelloVRApplication) createInstance() error {
	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    "hellovr",
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "No Engine",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	sdlExtensions := app.window.VulkanGetInstanceExtensions()
	extensions, _, err := app.globalDriver.AvailableExtensions()
	if err != nil {
		return errors.Wrap(err, "enumerate instance extensions")
	}

	for _, ext := range sdlExtensions {
		_, hasExt := extensions[ext]
		if !hasExt {
			return errors.Newf("createInstance: cannot initialize sdl: missing extension %s", ext)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}

	if app.cfg.VulkanDebug {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)
	}

	_, enumerationSupported := extensions[khr_portability_enumeration.ExtensionName]
	if enumerationSupported {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if app.cfg.VulkanDebug {
		layers, _, err := app.globalDriver.AvailableLayers()
		if err != nil {
			return errors.Wrap(err, "enumerate instance layers")
		}

		for _, layer := range validationLayers {
			_, hasValidation := layers[layer]
			if !hasValidation {
				return errors.Newf("createInstance: cannot add validation layer %s: not available, install the LunarG Vulkan SDK", layer)
			}
			instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, layer)
		}

		instanceOptions.Next = app.debugMessengerOptions()
	}

	app.instanceDriver, _, err = app.globalDriver.CreateInstance(nil, instanceOptions)
	if err != nil {
		return errors.Wrap(err, "create instance")
	}
	app.release.Add(func() { app.instanceDriver.DestroyInstance(nil) })

	return nil
}

func (app *HelloVRApplication) debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    app.logDebug,
	}
}

func (app *HelloVRApplication) setupDebugMessenger() error {
	if !app.cfg.VulkanDebug {
		return nil
	}

	app.debugDriver = ext_debug_utils.CreateExtensionDriverFromCoreDriver(app.instanceDriver)
	messenger, _, err := app.debugDriver.CreateDebugUtilsMessenger(nil, app.debugMessengerOptions())
	if err != nil {
		return errors.Wrap(err, "create debug messenger")
	}
	app.release.Add(func() { app.debugDriver.DestroyDebugUtilsMessenger(messenger, nil) })

	return nil
}

func (app *HelloVRApplication) logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	app.logger.Printf("[%s %s] - %s", severity, msgType, data.Message)
	return false
}

func (app *HelloVRApplication) createSurface() error {
	app.surfaceExtension = khr_surface.CreateExtensionDriverFromCoreDriver(app.instanceDriver)
	surface, err := vkng_sdl2.CreateSurface(app.instanceDriver.Instance(), app.surfaceExtension, app.window)
	if err != nil {
		return errors.Wrap(err, "create surface")
	}

	app.surface = surface
	app.release.Add(func() { app.surfaceExtension.DestroySurface(surface, nil) })
	return nil
}

func (app *HelloVRApplication) pickPhysicalDevice() error {
	physicalDevices, _, err := app.instanceDriver.EnumeratePhysicalDevices()
	if err != nil {
		return errors.Wrap(err, "enumerate physical devices")
	}

	candidates := make([]deviceCandidate, 0, len(physicalDevices))
	for _, device := range physicalDevices {
		candidate, err := app.inspectDevice(device)
		if err != nil {
			return err
		}
		if candidate.rejected != "" {
			app.logger.Printf("skipping %s: %s", candidate.properties.DriverName, candidate.rejected)
		}
		candidates = append(candidates, candidate)
	}

	chosen, ok := chooseDevice(candidates, app.cfg.MSAA)
	if !ok {
		return errors.New("failed to find a suitable GPU")
	}
	app.physicalDevice = chosen.device
	app.properties = chosen.properties
	app.queueFamilies = chosen.families

	app.msaaSamples = chosen.samples(app.cfg.MSAA)
	if int(app.msaaSamples) != app.cfg.MSAA {
		app.logger.Printf("%d samples per pixel not supported, using %d", app.cfg.MSAA, app.msaaSamples)
	}

	app.logger.Printf("using %s (%s)", app.properties.DriverName, app.properties.DriverType)
	return nil
}

// chooseSampleCount returns the largest supported sample count that does not
// exceed requested.
func chooseSampleCount(requested int, supported core1_0.SampleCountFlags) core1_0.SampleCountFlags {
	for count := core1_0.Samples64; count > core1_0.Samples1; count >>= 1 {
		if int(count) <= requested && supported&count != 0 {
			return count
		}
	}
	return core1_0.Samples1
}

// deviceCandidate is what device selection learned about one physical
// device.
type deviceCandidate struct {
	device     core1_0.PhysicalDevice
	properties *core1_0.PhysicalDeviceProperties
	families   QueueFamilies
	// rejected names the first requirement the device misses, empty when it
	// can run the app.
	rejected string
}

func (c deviceCandidate) samples(requested int) core1_0.SampleCountFlags {
	limits := c.properties.Limits
	return chooseSampleCount(requested, limits.FramebufferColorSampleCounts&limits.FramebufferDepthSampleCounts)
}

// score ranks usable devices. Headsets are driven by a discrete GPU when
// there is one; after that the device reaching the requested MSAA wins.
func (c deviceCandidate) score(requestedSamples int) int {
	if c.rejected != "" {
		return -1
	}
	score := int(c.samples(requestedSamples))
	if c.properties.DriverType == core1_0.PhysicalDeviceTypeDiscreteGPU {
		score += 1000
	}
	return score
}

// chooseDevice returns the best scoring usable candidate, the earliest on a
// tie.
func chooseDevice(candidates []deviceCandidate, requestedSamples int) (deviceCandidate, bool) {
	best, bestScore := -1, -1
	for i, candidate := range candidates {
		score := candidate.score(requestedSamples)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return deviceCandidate{}, false
	}
	return candidates[best], true
}

// chooseQueueFamilies prefers a single family that renders and presents, so
// the eye textures and the companion window go through one queue. Otherwise
// the first graphics family and the first presenting family are used.
func chooseQueueFamilies(families []*core1_0.QueueFamilyProperties, presents func(family int) (bool, error)) (QueueFamilies, bool, error) {
	graphics, present := -1, -1
	for i, family := range families {
		if family.QueueCount == 0 {
			continue
		}

		canPresent, err := presents(i)
		if err != nil {
			return QueueFamilies{}, false, errors.Wrapf(err, "query present support for queue family %d", i)
		}
		canRender := family.QueueFlags&core1_0.QueueGraphics != 0

		if canRender && canPresent {
			return QueueFamilies{Graphics: i, Present: i}, true, nil
		}
		if canRender && graphics < 0 {
			graphics = i
		}
		if canPresent && present < 0 {
			present = i
		}
	}

	if graphics < 0 || present < 0 {
		return QueueFamilies{}, false, nil
	}
	return QueueFamilies{Graphics: graphics, Present: present}, true, nil
}

// inspectDevice gathers what selection needs about device and records the
// first requirement it misses.
func (app *HelloVRApplication) inspectDevice(device core1_0.PhysicalDevice) (deviceCandidate, error) {
	candidate := deviceCandidate{device: device}

	var err error
	candidate.properties, err = app.instanceDriver.GetPhysicalDeviceProperties(device)
	if err != nil {
		return candidate, errors.Wrap(err, "get physical device properties")
	}

	extensions, _, err := app.instanceDriver.EnumerateDeviceExtensionProperties(device)
	if err != nil {
		return candidate, errors.Wrapf(err, "enumerate extensions of %s", candidate.properties.DriverName)
	}
	for _, extension := range deviceExtensions {
		if _, ok := extensions[extension]; !ok {
			candidate.rejected = "missing extension " + extension
			return candidate, nil
		}
	}

	if !app.instanceDriver.GetPhysicalDeviceFeatures(device).SamplerAnisotropy {
		candidate.rejected = "no sampler anisotropy"
		return candidate, nil
	}

	families, ok, err := chooseQueueFamilies(app.instanceDriver.GetPhysicalDeviceQueueFamilyProperties(device),
		func(family int) (bool, error) {
			supported, _, err := app.surfaceExtension.GetPhysicalDeviceSurfaceSupport(app.surface, device, family)
			return supported, err
		})
	if err != nil {
		return candidate, err
	}
	if !ok {
		candidate.rejected = "no graphics and present queues"
		return candidate, nil
	}
	candidate.families = families

	support, err := app.surfaceSupport(device)
	if err != nil {
		return candidate, err
	}
	if !support.Adequate() {
		candidate.rejected = "companion surface has no formats or present modes"
	}
	return candidate, nil
}

func (app *HelloVRApplication) surfaceSupport(device core1_0.PhysicalDevice) (SurfaceSupport, error) {
	var support SurfaceSupport
	var err error

	support.Capabilities, _, err = app.surfaceExtension.GetPhysicalDeviceSurfaceCapabilities(app.surface, device)
	if err != nil {
		return support, errors.Wrap(err, "get surface capabilities")
	}

	support.Formats, _, err = app.surfaceExtension.GetPhysicalDeviceSurfaceFormats(app.surface, device)
	if err != nil {
		return support, errors.Wrap(err, "get surface formats")
	}

	support.PresentModes, _, err = app.surfaceExtension.GetPhysicalDeviceSurfacePresentModes(app.surface, device)
	if err != nil {
		return support, errors.Wrap(err, "get surface present modes")
	}
	return support, nil
}

func (app *HelloVRApplication) createLogicalDevice() error {
	families := app.queueFamilies
	uniqueQueueFamilies := []int{families.Graphics}
	if !families.Shared() {
		uniqueQueueFamilies = append(uniqueQueueFamilies, families.Present)
	}

	var queueFamilyOptions []core1_0.DeviceQueueCreateInfo
	queuePriority := float32(1.0)
	for _, queueFamily := range uniqueQueueFamilies {
		queueFamilyOptions = append(queueFamilyOptions, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: queueFamily,
			QueuePriorities:  []float32{queuePriority},
		})
	}

	var extensionNames []string
	extensionNames = append(extensionNames, deviceExtensions...)

	// Makes the sample compatible with vulkan portability, necessary to run on mac
	extensions, _, err := app.instanceDriver.EnumerateDeviceExtensionProperties(app.physicalDevice)
	if err != nil {
		return err
	}

	_, supported := extensions[khr_portability_subset.ExtensionName]
	if supported {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	app.deviceDriver, _, err = app.instanceDriver.CreateDevice(app.physicalDevice, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos: queueFamilyOptions,
		EnabledFeatures: &core1_0.PhysicalDeviceFeatures{
			SamplerAnisotropy: true,
		},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return errors.Wrap(err, "create device")
	}
	app.release.Add(func() { app.deviceDriver.DestroyDevice(nil) })

	app.device, err = vkng.NewDevice(app.deviceDriver, families.Graphics)
	if err != nil {
		return err
	}
	app.release.Add(app.device.Destroy)

	app.graphicsQueue = vkng.NewQueue(app.deviceDriver, families.Graphics, 0)
	app.presentQueue = app.deviceDriver.GetQueue(families.Present, 0)
	app.allocator = &vkng.Allocator{
		Driver:           app.deviceDriver,
		MemoryProperties: app.instanceDriver.GetPhysicalDeviceMemoryProperties(app.physicalDevice),
	}

	return nil
}

func (app *HelloVRApplication) createSwapchain() error {
	support, err := app.surfaceSupport(app.physicalDevice)
	if err != nil {
		return err
	}

	width, height := app.window.VulkanGetDrawableSize()
	options := vkng.SwapchainOptions{
		Surface:      app.surface,
		Capabilities: support.Capabilities,
		Format:       chooseSwapSurfaceFormat(support.Formats),
		PresentMode:  chooseSwapPresentMode(support.PresentModes, app.cfg.VSync),
		Extent:       chooseSwapExtent(support.Capabilities, int(width), int(height)),
	}
	if !app.queueFamilies.Shared() {
		options.QueueFamilies = []int{app.queueFamilies.Graphics, app.queueFamilies.Present}
	}

	app.swapchain, err = vkng.NewSwapchain(app.deviceDriver, app.presentQueue, options)
	if err != nil {
		return err
	}
	app.release.Add(app.swapchain.Destroy)

	app.companionFramebuffers, err = vkng.NewCompanionFramebuffers(app.deviceDriver, app.swapchain)
	if err != nil {
		return err
	}
	app.release.Add(app.companionFramebuffers.Destroy)

	return nil
}

func chooseSwapSurfaceFormat(availableFormats []khr_surface.SurfaceFormat) khr_surface.SurfaceFormat {
	for _, format := range availableFormats {
		if format.Format == core1_0.FormatB8G8R8A8SRGB && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return format
		}
	}

	return availableFormats[0]
}

// chooseSwapPresentMode uses FIFO for vsync and otherwise prefers mailbox,
// then immediate.
func chooseSwapPresentMode(availablePresentModes []khr_surface.PresentMode, vsync bool) khr_surface.PresentMode {
	if vsync {
		return khr_surface.PresentModeFIFO
	}

	for _, preferred := range []khr_surface.PresentMode{khr_surface.PresentModeMailbox, khr_surface.PresentModeImmediate} {
		for _, presentMode := range availablePresentModes {
			if presentMode == preferred {
				return presentMode
			}
		}
	}

	return khr_surface.PresentModeFIFO
}

func chooseSwapExtent(capabilities *khr_surface.SurfaceCapabilities, width, height int) core1_0.Extent2D {
	if capabilities.CurrentExtent.Width != -1 {
		return capabilities.CurrentExtent
	}

	if width < capabilities.MinImageExtent.Width {
		width = capabilities.MinImageExtent.Width
	}
	if width > capabilities.MaxImageExtent.Width {
		width = capabilities.MaxImageExtent.Width
	}
	if height < capabilities.MinImageExtent.Height {
		height = capabilities.MinImageExtent.Height
	}
	if height > capabilities.MaxImageExtent.Height {
		height = capabilities.MaxImageExtent.Height
	}

	return core1_0.Extent2D{Width: width, Height: height}
}
