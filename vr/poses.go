package vr

import (
	"fmt"
	"log"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// PoseSummary counts the valid poses of one frame.
type PoseSummary struct {
	ValidPoses  int
	Classes     string
	Controllers int
}

func (s PoseSummary) String() string {
	return fmt.Sprintf("PoseCount:%d(%s) Controllers:%d", s.ValidPoses, s.Classes, s.Controllers)
}

// Summarize lists the class letter of every device with a valid pose and
// counts connected controllers with a valid pose.
func Summarize(devices []TrackedDevice) PoseSummary {
	var summary PoseSummary
	var classes strings.Builder

	for _, device := range devices {
		if !device.PoseValid {
			continue
		}
		summary.ValidPoses++
		classes.WriteByte(device.Class.Char())
		if device.Class == ClassController && device.Connected {
			summary.Controllers++
		}
	}

	summary.Classes = classes.String()
	return summary
}

// PoseReporter logs the pose summary whenever it differs from the last one.
type PoseReporter struct {
	logger  *log.Logger
	last    PoseSummary
	started bool
}

func NewPoseReporter(logger *log.Logger) *PoseReporter {
	return &PoseReporter{logger: logger}
}

// Report returns true when the summary changed and was logged.
func (r *PoseReporter) Report(devices []TrackedDevice) bool {
	summary := Summarize(devices)
	if r.started && summary == r.last {
		return false
	}

	r.started = true
	r.last = summary
	r.logger.Println(summary)
	return true
}

// ControllerPoses returns the poses of connected, validly tracked devices
// other than the HMD, which is where controller axes are drawn.
func ControllerPoses(devices []TrackedDevice, dst []mgl32.Mat4) []mgl32.Mat4 {
	for i, device := range devices {
		if i == HMDIndex || !device.Connected || !device.PoseValid {
			continue
		}
		if device.Class != ClassController {
			continue
		}
		dst = append(dst, device.Pose)
	}
	return dst
}
