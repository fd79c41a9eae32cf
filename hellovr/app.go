package main

import (
	"log"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/hellovr/config"
	"github.com/vkngwrapper/hellovr/render"
	"github.com/vkngwrapper/hellovr/vkng"
	"github.com/vkngwrapper/hellovr/vr"
)

// HelloVRApplication owns the window, the Vulkan objects every component is
// built from and the frame loop. Everything it creates is pushed on release
// and torn down in reverse order, whether or not initialization finished.
type HelloVRApplication struct {
	cfg    config.Config
	logger *log.Logger

	release vkng.Cleanup

	window *sdl.Window

	globalDriver   core1_0.GlobalDriver
	instanceDriver core1_0.CoreInstanceDriver
	deviceDriver   core1_0.CoreDeviceDriver

	debugDriver      ext_debug_utils.ExtensionDriver
	surfaceExtension khr_surface.ExtensionDriver
	surface          khr_surface.Surface

	physicalDevice core1_0.PhysicalDevice
	properties     *core1_0.PhysicalDeviceProperties
	queueFamilies  QueueFamilies
	msaaSamples    core1_0.SampleCountFlags

	device        *vkng.Device
	graphicsQueue *vkng.Queue
	presentQueue  core1_0.Queue
	allocator     *vkng.Allocator

	hmd *vr.SimulatedHMD

	swapchain             *vkng.Swapchain
	companionFramebuffers *vkng.CompanionFramebuffers
	targets               [render.NumTargets]*vkng.TargetUnit

	pipelineCache *vkng.PipelineCache
	pipelines     *Pipelines
	scene         *SceneRenderer

	pool      *render.CommandBufferPool
	submitter *render.FrameSubmitter
}

func (app *HelloVRApplication) Run() error {
	defer app.release.Run()

	err := app.initWindow()
	if err != nil {
		return err
	}

	err = app.initVulkan()
	if err != nil {
		return err
	}

	return app.mainLoop()
}

func (app *HelloVRApplication) initWindow() error {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return errors.Wrap(err, "init sdl")
	}
	app.release.Add(sdl.Quit)

	window, err := sdl.CreateWindow("hellovr [Vulkan]", sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(app.cfg.WindowWidth), int32(app.cfg.WindowHeight), sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN)
	if err != nil {
		return errors.Wrap(err, "create companion window")
	}
	app.window = window
	app.release.Add(func() { window.Destroy() })

	// Mouse motion orbits the screen camera.
	_, err = sdl.ShowCursor(sdl.DISABLE)
	if err != nil {
		return errors.Wrap(err, "hide cursor")
	}

	app.globalDriver, err = core.CreateDriverFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		return errors.Wrap(err, "load vulkan")
	}

	return nil
}

func (app *HelloVRApplication) initVulkan() error {
	err := app.createInstance()
	if err != nil {
		return err
	}

	err = app.setupDebugMessenger()
	if err != nil {
		return err
	}

	err = app.createSurface()
	if err != nil {
		return err
	}

	err = app.pickPhysicalDevice()
	if err != nil {
		return err
	}

	err = app.createLogicalDevice()
	if err != nil {
		return err
	}

	err = app.initVR()
	if err != nil {
		return err
	}

	err = app.createSwapchain()
	if err != nil {
		return err
	}

	err = app.createRenderTargets()
	if err != nil {
		return err
	}

	err = app.createPipelines()
	if err != nil {
		return err
	}

	err = app.createScene()
	if err != nil {
		return err
	}

	return app.createFrameLoop()
}

func (app *HelloVRApplication) initVR() error {
	hmd, err := vr.NewSimulatedHMD(vr.SimulatedOptions{Controllers: app.cfg.Controllers})
	if err != nil {
		return err
	}
	app.hmd = hmd

	// The first frame renders with the poses available at startup.
	return hmd.WaitGetPoses()
}

func (app *HelloVRApplication) createRenderTargets() error {
	width, height := app.hmd.RecommendedRenderTargetSize()
	width = int(float32(width) * app.cfg.SuperSample)
	height = int(float32(height) * app.cfg.SuperSample)

	options := [render.NumTargets]vkng.TargetOptions{
		render.LeftEye:  {Width: width, Height: height, Samples: app.msaaSamples},
		render.RightEye: {Width: width, Height: height, Samples: app.msaaSamples},
		// The companion window samples the screen target, so it is never
		// multisampled.
		render.Screen: {
			Width:   app.swapchain.Extent.Width,
			Height:  app.swapchain.Extent.Height,
			Samples: core1_0.Samples1,
			Sampled: true,
		},
	}

	for id, option := range options {
		target, err := app.allocator.CreateTarget(option)
		if err != nil {
			return errors.Wrapf(err, "create %s target", render.TargetID(id))
		}
		app.targets[id] = target
		app.release.Add(target.Destroy)
	}

	app.logger.Printf("eye targets %dx%d, %d samples", width, height, app.msaaSamples)
	return nil
}

// startFrameLoop builds the presenter and the command buffer pool and
// registers their teardown. The pool shutdown is pushed last so its device
// wait runs before the presenter's semaphores are destroyed.
func startFrameLoop(device render.Device, swapchain render.Swapchain, release *vkng.Cleanup, logger *log.Logger) (*render.CommandBufferPool, *render.SwapchainPresenter, error) {
	presenter, err := render.NewSwapchainPresenter(device, swapchain)
	if err != nil {
		return nil, nil, err
	}
	release.Add(presenter.Destroy)

	pool := render.NewCommandBufferPool(device)
	release.Add(func() {
		err := pool.Shutdown()
		if err != nil {
			logger.Printf("command buffer pool shutdown: %v", err)
		}
	})

	return pool, presenter, nil
}

func (app *HelloVRApplication) createFrameLoop() error {
	companion, err := render.NewCompanionWindow(app.companionFramebuffers.Descriptor())
	if err != nil {
		return err
	}

	pool, presenter, err := startFrameLoop(app.device, app.swapchain, &app.release, app.logger)
	if err != nil {
		return err
	}
	app.pool = pool

	var targets [render.NumTargets]*render.RenderTarget
	for id, unit := range app.targets {
		targets[id] = render.NewRenderTarget(render.TargetID(id), unit.Descriptor())
	}

	uploads, err := app.scene.Uploads()
	if err != nil {
		return err
	}

	loader := render.NewResourceLoader(app.pool, app.graphicsQueue)
	err = loader.Load(append(uploads, companion)...)
	if err != nil {
		return errors.Wrap(err, "load resources")
	}
	err = app.scene.UploadsComplete()
	if err != nil {
		return err
	}

	app.submitter, err = render.NewFrameSubmitter(render.FrameSubmitterOptions{
		Pool:           app.pool,
		Queue:          app.graphicsQueue,
		Targets:        targets,
		Scene:          app.scene,
		Companion:      companion,
		Presenter:      presenter,
		CompanionScene: app.scene,
		Compositor:     app.hmd,
	})
	return err
}

// handleKey applies one keyboard event. Holding 1 or 2 holds a button on
// that controller; d attaches or detaches the first controller.
func (app *HelloVRApplication) handleKey(e *sdl.KeyboardEvent) (quit bool, err error) {
	pressed := e.State == sdl.PRESSED

	switch e.Keysym.Sym {
	case sdl.K_1, sdl.K_2:
		controller, err := app.hmd.Controller(int(e.Keysym.Sym - sdl.K_1))
		if err != nil {
			return false, nil
		}
		var buttons uint64
		if pressed {
			buttons = 1
		}
		return false, app.hmd.SetButtons(controller, buttons)
	}

	if !pressed || e.Repeat != 0 {
		return false, nil
	}

	switch e.Keysym.Sym {
	case sdl.K_ESCAPE, sdl.K_q:
		return true, nil
	case sdl.K_c:
		app.scene.ToggleCubes()
	case sdl.K_d:
		controller, err := app.hmd.Controller(0)
		if err != nil {
			return false, nil
		}
		return false, app.hmd.SetConnected(controller, !app.hmd.Devices()[controller].Connected)
	}
	return false, nil
}

func (app *HelloVRApplication) mainLoop() error {
	start := hrtime.Now()

appLoop:
	for {
		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			switch e := event.(type) {
			case *sdl.QuitEvent:
				break appLoop
			case *sdl.MouseMotionEvent:
				app.scene.RotateScreen(float32(e.XRel), float32(e.YRel))
			case *sdl.KeyboardEvent:
				quit, err := app.handleKey(e)
				if err != nil {
					return err
				}
				if quit {
					break appLoop
				}
			}
		}

		err := app.submitter.RenderFrame()
		if err != nil {
			return err
		}
	}

	elapsed := hrtime.Since(start)
	frames := app.submitter.Frames()
	if elapsed > 0 {
		app.logger.Printf("rendered %d frames in %s (%.1f fps)", frames, elapsed, float64(frames)/elapsed.Seconds())
	}

	err := app.device.WaitIdle()
	if err != nil {
		return errors.Wrap(err, "wait for device idle")
	}

	err = app.pipelineCache.Save()
	if err != nil {
		app.logger.Printf("%v", err)
	}
	return nil
}
