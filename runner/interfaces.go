package runner

import (
	"context"
	"image"
	"time"

	"github.com/devrun/devrun/model"
)

// CaseOutcome is the result of running one scripted case on a device.
type CaseOutcome struct {
	Passed bool
	// Reason is a short description of the failure, empty when passed
	Reason string
}

// Pass returns a passing outcome.
func Pass() CaseOutcome {
	return CaseOutcome{Passed: true}
}

// Fail returns a failing outcome with the given reason.
func Fail(reason string) CaseOutcome {
	return CaseOutcome{Reason: reason}
}

// Recorder records the screen of one device into a file in the result
// folder.
type Recorder interface {
	// Prepare readies the device for a new recording.
	Prepare(ctx context.Context) error
	// Start starts recording. It returns once the recording is running.
	Start(ctx context.Context, timeout time.Duration) error
	// Stop stops recording and returns once the file is written locally.
	Stop(ctx context.Context) error
}

// LogCollector collects the device log for the duration of a run.
type LogCollector interface {
	Start(ctx context.Context) error
	StopAndAnalyse(ctx context.Context) error
}

// DeviceController gives access to the capabilities of connected devices.
type DeviceController interface {
	// ScreenRecorder returns a recorder writing fileName into folder.
	ScreenRecorder(dev *model.Device, folder, fileName string) Recorder
	// LogCollector returns a collector scoped to the app pkg.
	LogCollector(dev *model.Device, pkg string, run *model.TestRun) LogCollector
	// Screenshot captures the current screen. A nil image with a nil error
	// means no screenshot was available.
	Screenshot(ctx context.Context, dev *model.Device) (image.Image, error)
	// RunCase runs the case definition at casePath on the device.
	RunCase(ctx context.Context, dev *model.Device, casePath string) CaseOutcome
}

// PerfInspector samples performance data around a run and its cases.
type PerfInspector interface {
	RunStarted()
	RunFinished()
	CaseStarted(name string)
	CaseSucceeded(name string)
	CaseFailed(name string)
}

// FrameAssembler assembles snapshots into an animated image.
type FrameAssembler interface {
	Open(path string) error
	SetFrameInterval(ms int)
	SetLoop(n int)
	AppendFrame(img image.Image) bool
	IsOpen() bool
	Close() error
}
