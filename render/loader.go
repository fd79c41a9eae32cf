package render

import (
	"github.com/cockroachdb/errors"
)

// Upload is one piece of startup work recorded into the loader's command
// buffer, such as a staging copy or an initial layout transition.
type Upload interface {
	RecordUpload(cmd CommandBuffer) error
}

// StagingReleaser is implemented by uploads that hold staging resources which
// can be freed once the GPU has consumed them.
type StagingReleaser interface {
	ReleaseStaging()
}

// ResourceLoader runs the one-shot, synchronously waited upload command buffer
// before the frame loop starts. It borrows its command buffer from the same
// pool the frames use.
type ResourceLoader struct {
	pool  *CommandBufferPool
	queue Queue
}

func NewResourceLoader(pool *CommandBufferPool, queue Queue) *ResourceLoader {
	return &ResourceLoader{pool: pool, queue: queue}
}

// Load records every upload in order into a single command buffer, submits
// it and blocks until the queue is idle. Staging resources are released once
// the wait completes, or on failure if the GPU never saw them.
func (l *ResourceLoader) Load(uploads ...Upload) error {
	inFlight := false
	defer func() {
		if inFlight {
			return
		}
		for _, upload := range uploads {
			releaser, ok := upload.(StagingReleaser)
			if ok {
				releaser.ReleaseStaging()
			}
		}
	}()

	handle, err := l.pool.Acquire()
	if err != nil {
		return errors.Wrap(err, "acquire upload command buffer")
	}
	cmd := handle.Commands

	err = cmd.Begin()
	if err != nil {
		return errors.Wrap(err, "begin upload command buffer")
	}

	for i, upload := range uploads {
		err = upload.RecordUpload(cmd)
		if err != nil {
			return errors.Wrapf(err, "record upload %d", i)
		}
	}

	err = cmd.End()
	if err != nil {
		return errors.Wrap(err, "end upload command buffer")
	}

	err = l.queue.Submit(Submission{Commands: cmd, Fence: handle.Fence})
	if err != nil {
		return errors.Wrap(err, "submit uploads")
	}
	inFlight = true

	err = l.pool.Release(handle)
	if err != nil {
		return errors.Wrap(err, "release upload command buffer")
	}

	err = l.queue.WaitIdle()
	if err != nil {
		return errors.Wrap(err, "wait for uploads")
	}
	inFlight = false

	return nil
}
