package render

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v3/common"
)

// MatrixSize is the size in bytes of one column-major 4x4 float matrix.
const MatrixSize = 16 * 4

// ErrSlotRewritten is returned when a transform slot is written twice in the
// same frame.
var ErrSlotRewritten = errors.New("transform slot already written this frame")

// TransformSlots writes per-target model-view-projection matrices into
// persistently mapped, host-coherent uniform memory.
//
// There is one slot per (model, target) pair and no per-frame copy. A slot
// may be written at most once per frame, only from the frame-loop goroutine,
// and only before the frame's command buffer is submitted.
type TransformSlots struct {
	memory []byte
	models int
	stride int

	frame   uint64
	written []uint64
}

// NewTransformSlots lays out models*NumTargets slots of stride bytes over
// memory. stride must hold a matrix and is normally rounded up to the
// device's minimum uniform buffer offset alignment.
func NewTransformSlots(memory []byte, models, stride int) (*TransformSlots, error) {
	if models <= 0 {
		return nil, errors.Newf("transform slots need at least one model, got %d", models)
	}
	if stride < MatrixSize {
		return nil, errors.Newf("transform slot stride %d is smaller than a matrix", stride)
	}
	if len(memory) < models*NumTargets*stride {
		return nil, errors.Newf("transform memory holds %d bytes, need %d", len(memory), models*NumTargets*stride)
	}

	return &TransformSlots{
		memory:  memory,
		models:  models,
		stride:  stride,
		frame:   1,
		written: make([]uint64, models*NumTargets),
	}, nil
}

// AlignedStride rounds size up to a multiple of alignment.
func AlignedStride(size, alignment int) int {
	if alignment <= 1 {
		return size
	}
	return (size + alignment - 1) / alignment * alignment
}

// TransformMemorySize is the number of bytes of uniform memory the slots need.
func TransformMemorySize(models, stride int) int {
	return models * NumTargets * stride
}

// BeginFrame opens every slot for writing again.
func (s *TransformSlots) BeginFrame() {
	s.frame++
}

func (s *TransformSlots) Models() int {
	return s.models
}

func (s *TransformSlots) slot(model int, target TargetID) (int, error) {
	if model < 0 || model >= s.models {
		return 0, errors.Newf("transform model %d out of range", model)
	}
	if target < 0 || int(target) >= NumTargets {
		return 0, errors.Newf("transform target %d out of range", int(target))
	}
	return model*NumTargets + int(target), nil
}

// Offset is the byte offset of a slot, for dynamic uniform offsets or
// descriptor buffer ranges.
func (s *TransformSlots) Offset(model int, target TargetID) (int, error) {
	slot, err := s.slot(model, target)
	if err != nil {
		return 0, err
	}
	return slot * s.stride, nil
}

// Write stores matrix in the slot for model and target.
func (s *TransformSlots) Write(model int, target TargetID, matrix mgl32.Mat4) error {
	slot, err := s.slot(model, target)
	if err != nil {
		return err
	}
	if s.written[slot] == s.frame {
		return errors.Wrapf(ErrSlotRewritten, "model %d, %s target", model, target)
	}

	dst := s.memory[slot*s.stride : slot*s.stride+MatrixSize]
	for i, value := range matrix {
		common.ByteOrder.PutUint32(dst[i*4:], math.Float32bits(value))
	}

	s.written[slot] = s.frame
	return nil
}

// Read returns the matrix currently stored in a slot.
func (s *TransformSlots) Read(model int, target TargetID) (mgl32.Mat4, error) {
	slot, err := s.slot(model, target)
	if err != nil {
		return mgl32.Mat4{}, err
	}

	var matrix mgl32.Mat4
	src := s.memory[slot*s.stride : slot*s.stride+MatrixSize]
	for i := range matrix {
		matrix[i] = math.Float32frombits(common.ByteOrder.Uint32(src[i*4:]))
	}
	return matrix, nil
}
