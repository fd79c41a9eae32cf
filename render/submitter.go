package render

import (
	"log"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// SceneRenderer records the draw calls for one render target. It is called
// inside the target's render pass.
type SceneRenderer interface {
	// BeginFrame refreshes per-frame data before any target is recorded.
	BeginFrame() error
	RenderScene(cmd CommandBuffer, target TargetID) error
}

// CompanionRenderer records the desktop mirror inside the companion render
// pass.
type CompanionRenderer interface {
	RenderCompanion(cmd CommandBuffer, imageIndex int) error
}

type FrameSubmitterOptions struct {
	Pool  *CommandBufferPool
	Queue Queue

	// Targets are recorded in index order: left eye, right eye, screen.
	Targets [NumTargets]*RenderTarget
	Scene   SceneRenderer

	// Companion, Presenter and CompanionScene are either all set or all nil.
	Companion      *CompanionWindow
	Presenter      *SwapchainPresenter
	CompanionScene CompanionRenderer

	Compositor Compositor
}

// FrameSubmitter records, submits and presents one frame at a time. It must
// only be driven from a single goroutine.
type FrameSubmitter struct {
	pool  *CommandBufferPool
	queue Queue

	targets [NumTargets]*RenderTarget
	scene   SceneRenderer

	companion      *CompanionWindow
	presenter      *SwapchainPresenter
	companionScene CompanionRenderer

	compositor Compositor

	frames uint64
}

func NewFrameSubmitter(options FrameSubmitterOptions) (*FrameSubmitter, error) {
	if options.Pool == nil {
		return nil, errors.New("frame submitter requires a command buffer pool")
	}
	if options.Queue == nil {
		return nil, errors.New("frame submitter requires a queue")
	}
	if options.Scene == nil {
		return nil, errors.New("frame submitter requires a scene renderer")
	}
	for i, target := range options.Targets {
		if target == nil {
			return nil, errors.Newf("frame submitter is missing the %s target", TargetID(i))
		}
		if target.ID != TargetID(i) {
			return nil, errors.Newf("target slot %d holds the %s target", i, target.ID)
		}
	}

	hasCompanion := options.Companion != nil
	if hasCompanion != (options.Presenter != nil) || hasCompanion != (options.CompanionScene != nil) {
		return nil, errors.New("companion window, presenter and companion renderer must be provided together")
	}
	if hasCompanion && options.Companion.ImageCount() != options.Presenter.ImageCount() {
		return nil, errors.Newf("companion window has %d images but swapchain has %d",
			options.Companion.ImageCount(), options.Presenter.ImageCount())
	}

	return &FrameSubmitter{
		pool:           options.Pool,
		queue:          options.Queue,
		targets:        options.Targets,
		scene:          options.Scene,
		companion:      options.Companion,
		presenter:      options.Presenter,
		companionScene: options.CompanionScene,
		compositor:     options.Compositor,
	}, nil
}

// Frames is the number of frames whose command buffer reached the queue.
func (s *FrameSubmitter) Frames() uint64 {
	return s.frames
}

// RenderFrame records every target into one command buffer, submits it and
// hands the results to the compositor and the companion window. Errors from
// the pool, recording or queue submission are returned; swapchain and
// compositor errors are logged and that part of the frame is skipped.
//
// A returned error is fatal to the frame loop. The command buffer acquired
// for the failed frame stays lent out until the pool's Shutdown frees it.
func (s *FrameSubmitter) RenderFrame() error {
	if s.presenter != nil {
		defer s.presenter.Advance()
	}

	handle, err := s.pool.Acquire()
	if err != nil {
		return errors.Wrap(err, "acquire frame command buffer")
	}
	cmd := handle.Commands

	err = cmd.Begin()
	if err != nil {
		return errors.Wrap(err, "begin frame command buffer")
	}

	err = s.scene.BeginFrame()
	if err != nil {
		return errors.Wrap(err, "begin scene frame")
	}

	for _, target := range s.targets {
		err = s.recordTarget(cmd, target)
		if err != nil {
			return errors.Wrapf(err, "record %s target", target.ID)
		}
	}

	var acquired *Acquired
	if s.presenter != nil {
		next, err := s.presenter.AcquireNext()
		if err != nil {
			log.Printf("companion window: skipping frame, acquire failed: %v", err)
		} else {
			err = s.recordCompanion(cmd, next.ImageIndex)
			if err != nil {
				return errors.Wrap(err, "record companion window")
			}
			acquired = &next
		}
	}

	err = cmd.End()
	if err != nil {
		return errors.Wrap(err, "end frame command buffer")
	}

	submission := Submission{
		Commands: cmd,
		Fence:    handle.Fence,
	}
	if acquired != nil {
		submission.Wait = []SemaphoreWait{
			{Semaphore: acquired.ImageAvailable, Stage: core1_0.PipelineStageColorAttachmentOutput},
		}
		submission.Signal = []Semaphore{acquired.RenderFinished}
	}

	err = s.queue.Submit(submission)
	if err != nil {
		return errors.Wrap(err, "submit frame")
	}
	s.frames++

	err = s.pool.Release(handle)
	if err != nil {
		return errors.Wrap(err, "release frame command buffer")
	}

	if s.compositor != nil {
		for _, eye := range []Eye{EyeLeft, EyeRight} {
			err = s.compositor.Submit(eye, s.targets[eye.Target()].EyeTexture())
			if err != nil {
				log.Printf("compositor: %s eye submit failed: %v", eye, err)
			}
		}
	}

	if acquired != nil {
		err = s.presenter.Present(*acquired)
		if err != nil {
			log.Printf("companion window: present of image %d failed: %v", acquired.ImageIndex, err)
		}
	}

	if s.compositor != nil {
		err = s.compositor.WaitGetPoses()
		if err != nil {
			log.Printf("compositor: wait for poses failed: %v", err)
		}
	}

	return nil
}

func (s *FrameSubmitter) recordTarget(cmd CommandBuffer, target *RenderTarget) error {
	err := target.TransitionColorForRendering(cmd)
	if err != nil {
		return err
	}

	_, err = target.TransitionDepthOnFirstUse(cmd)
	if err != nil {
		return err
	}

	err = target.BeginRenderPass(cmd)
	if err != nil {
		return err
	}

	err = s.scene.RenderScene(cmd, target.ID)
	if err != nil {
		return err
	}

	return target.FinishRendering(cmd)
}

func (s *FrameSubmitter) recordCompanion(cmd CommandBuffer, imageIndex int) error {
	err := s.companion.BeginRendering(cmd, imageIndex)
	if err != nil {
		return err
	}

	err = s.companionScene.RenderCompanion(cmd, imageIndex)
	if err != nil {
		return err
	}

	return s.companion.FinishRendering(cmd, imageIndex)
}
