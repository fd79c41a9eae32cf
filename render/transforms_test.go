package render

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransformSlotsOncePerTargetPerFrame(t *testing.T) {
	stride := AlignedStride(MatrixSize, 256)
	memory := make([]byte, TransformMemorySize(2, stride))

	slots, err := NewTransformSlots(memory, 2, stride)
	require.NoError(t, err)

	for frame := 0; frame < 3; frame++ {
		slots.BeginFrame()
		for model := 0; model < 2; model++ {
			for target := TargetID(0); target < NumTargets; target++ {
				matrix := mgl32.Translate3D(float32(frame), float32(model), float32(target))
				require.NoError(t, slots.Write(model, target, matrix))

				err := slots.Write(model, target, matrix)
				assert.True(t, errors.Is(err, ErrSlotRewritten))

				read, err := slots.Read(model, target)
				require.NoError(t, err)
				assert.Equal(t, matrix, read)
			}
		}
	}
}

func TestTransformSlotLayout(t *testing.T) {
	stride := AlignedStride(MatrixSize, 256)
	assert.Equal(t, 256, stride)
	assert.Equal(t, MatrixSize, AlignedStride(MatrixSize, 0))
	assert.Equal(t, 128, AlignedStride(100, 64))

	memory := make([]byte, TransformMemorySize(2, stride))
	slots, err := NewTransformSlots(memory, 2, stride)
	require.NoError(t, err)

	offset, err := slots.Offset(1, Screen)
	require.NoError(t, err)
	assert.Equal(t, (1*NumTargets+2)*stride, offset)

	require.NoError(t, slots.Write(1, Screen, mgl32.Ident4()))
	// Identity starts with 1.0f, little endian.
	assert.Equal(t, []byte{0, 0, 0x80, 0x3f}, memory[offset:offset+4])

	_, err = slots.Offset(2, LeftEye)
	assert.Error(t, err)
	assert.Error(t, slots.Write(0, TargetID(NumTargets), mgl32.Ident4()))
}

func TestTransformSlotsValidateMemory(t *testing.T) {
	_, err := NewTransformSlots(make([]byte, 100), 1, MatrixSize)
	assert.Error(t, err)

	_, err = NewTransformSlots(make([]byte, 1024), 1, 32)
	assert.Error(t, err)

	_, err = NewTransformSlots(make([]byte, 1024), 0, MatrixSize)
	assert.Error(t, err)
}
