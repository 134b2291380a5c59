// Package runner coordinates a test run on a device: recording, log
// collection, performance sampling, sequential case execution and the
// assembly of the run artifacts.
package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/devrun/devrun/artifact"
	"github.com/devrun/devrun/model"
	"github.com/rs/zerolog"
)

const (
	// DefaultSnapshotInterval is the time between two snapshots of a running case.
	DefaultSnapshotInterval = 5 * time.Second
	// DefaultRecordTimeout bounds a screen recording when the task sets no timeout.
	DefaultRecordTimeout = 3 * time.Minute

	frameIntervalMillis = 1000
)

// Time tag labels for the run boundaries.
const (
	TagRunStarted = "testRunStarted"
	TagRunEnded   = "testRunEnded"
)

// Task describes what to run.
type Task struct {
	// Package is the app id of the app under test, e.g. com.example.calculator
	Package string
	// InitialCase is an optional setup case run before Cases
	InitialCase string
	// Cases are case definition files, run in order
	Cases []string
	// RecordTimeout bounds the screen recordings
	RecordTimeout time.Duration
}

// CaseCount returns the number of cases the task will run.
func (t *Task) CaseCount() int {
	n := len(t.Cases)
	if t.InitialCase != "" {
		n++
	}
	return n
}

// Coordinator runs tasks on devices.
type Coordinator struct {
	logger           zerolog.Logger
	controller       DeviceController
	secondary        DeviceController
	perf             PerfInspector
	merger           artifact.Merger
	newAssembler     func() FrameAssembler
	clock            clock.Clock
	snapshotInterval time.Duration
	frameScale       float64
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock sets the clock used for the time baseline and snapshots.
func WithClock(c clock.Clock) Option {
	return func(co *Coordinator) {
		co.clock = c
	}
}

// WithSnapshotInterval sets the time between two snapshots of a running case.
func WithSnapshotInterval(d time.Duration) Option {
	return func(co *Coordinator) {
		if d > 0 {
			co.snapshotInterval = d
		}
	}
}

// WithFrameScale sets the factor snapshots are scaled by.
func WithFrameScale(f float64) Option {
	return func(co *Coordinator) {
		if f > 0 {
			co.frameScale = f
		}
	}
}

// WithAssemblerFactory sets the constructor of the run's frame assembler.
func WithAssemblerFactory(fn func() FrameAssembler) Option {
	return func(co *Coordinator) {
		co.newAssembler = fn
	}
}

// WithSecondaryController sets the controller used for linked devices.
// By default the primary controller serves both.
func WithSecondaryController(c DeviceController) Option {
	return func(co *Coordinator) {
		co.secondary = c
	}
}

// New creates a Coordinator.
func New(logger zerolog.Logger, controller DeviceController, perf PerfInspector, merger artifact.Merger, opts ...Option) *Coordinator {
	c := &Coordinator{
		logger:           logger,
		controller:       controller,
		perf:             perf,
		merger:           merger,
		newAssembler:     func() FrameAssembler { return artifact.NewGIFEncoder() },
		clock:            clock.NewClock(),
		snapshotInterval: DefaultSnapshotInterval,
		frameScale:       artifact.DefaultFrameScale,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.secondary == nil {
		c.secondary = controller
	}
	return c
}

// runState is the per run state of Execute.
type runState struct {
	logger       zerolog.Logger
	task         *Task
	dev          *model.Device
	run          *model.TestRun
	primary      *recordingSession
	secondary    *secondaryActor
	logCollector LogCollector
	assembler    FrameAssembler
	baseline     time.Time
	nextIndex    int
}

// Execute runs task on dev and records the outcome in run. It returns the
// path of the run GIF. An error is only returned when the run could not be
// started; once started a run always completes, failing cases are recorded
// in run.
func (c *Coordinator) Execute(ctx context.Context, task *Task, dev *model.Device, run *model.TestRun) (string, error) {
	switch {
	case task == nil:
		return "", errors.New("no task")
	case task.Package == "":
		return "", errors.New("task has no package")
	case dev == nil:
		return "", errors.New("no device")
	case run == nil || run.ResultFolder == "":
		return "", errors.New("run has no result folder")
	}

	marker := lastSegment(task.Package) + "." + TagRunStarted
	if !dev.ClaimRunning(marker) {
		return "", fmt.Errorf("device %s is already running %s", dev.Serial, dev.RunningTestName())
	}

	s := &runState{
		logger: c.logger.With().Str("run", run.ID).Str("device", dev.Serial).Logger(),
		task:   task,
		dev:    dev,
		run:    run,
	}
	defer dev.SetRunningTestName("")
	defer c.teardown(ctx, s)

	timeout := task.RecordTimeout
	if timeout <= 0 {
		timeout = DefaultRecordTimeout
	}

	if dev.Linked != nil {
		s.secondary = &secondaryActor{
			serial:  dev.Linked.Serial,
			session: newRecordingSession("secondary", c.secondary.ScreenRecorder(dev.Linked, run.ResultFolder, artifact.SecondaryVideoName)),
		}
		if err := s.secondary.session.prepare(ctx); err != nil {
			s.logger.Warn().Err(err).Str("secondary", s.secondary.serial).Msg("Secondary recording unavailable")
		}
	}

	s.primary = newRecordingSession("primary", c.controller.ScreenRecorder(dev, run.ResultFolder, artifact.MergedVideoName))
	if err := s.primary.prepare(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Primary recording unavailable")
	} else if err := s.primary.start(ctx, timeout); err != nil {
		s.logger.Warn().Err(err).Msg("Primary recording unavailable")
	}
	s.baseline = c.clock.Now()

	if s.secondary != nil && s.secondary.session.state == sessionArmed {
		if err := s.secondary.session.start(ctx, timeout); err != nil {
			s.logger.Warn().Err(err).Str("secondary", s.secondary.serial).Msg("Secondary recording unavailable")
		}
	}

	run.SetStartTime(s.baseline)
	run.AddTimeTag(TagRunStarted, 0)

	s.logCollector = c.controller.LogCollector(dev, task.Package, run)
	if err := s.logCollector.Start(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to start log collection")
	}

	c.perf.RunStarted()

	gifPath := filepath.Join(run.ResultFolder, task.Package+".gif")
	s.assembler = c.newAssembler()
	if err := s.assembler.Open(gifPath); err != nil {
		s.logger.Warn().Err(err).Str("path", gifPath).Msg("Failed to open GIF")
	}
	s.assembler.SetFrameInterval(frameIntervalMillis)
	s.assembler.SetLoop(0)

	run.SetTotalCount(task.CaseCount())
	s.logger.Info().
		Str("package", task.Package).
		Int("cases", task.CaseCount()).
		Bool("combo", s.secondary != nil).
		Msg("Test run started")

	if task.InitialCase != "" {
		c.runCase(ctx, s, task.InitialCase)
	}
	for _, casePath := range task.Cases {
		c.runCase(ctx, s, casePath)
	}

	c.perf.RunFinished()
	run.AddTimeTag(TagRunEnded, c.offset(s))
	run.OnEnded(c.clock.Now())
	dev.SetRunningTestName("")

	s.logger.Info().
		Int("total", run.Total()).
		Int("failed", run.Failures()).
		Msg("Test run finished")

	return gifPath, nil
}

// runCase runs one case. A failing case never aborts the run.
func (c *Coordinator) runCase(ctx context.Context, s *runState, casePath string) {
	start := c.clock.Now()
	result := &model.TestCaseResult{
		Index:          s.nextIndex,
		Name:           filepath.Base(casePath),
		Class:          s.task.Package,
		RunID:          s.run.ID,
		TaskID:         s.run.TaskID,
		NumTests:       s.run.Total(),
		StartTime:      start,
		RelStartMillis: c.offsetAt(s, start),
	}
	s.nextIndex++
	title := result.Title()

	s.run.AddTimeTag(fmt.Sprintf("%d. %s", s.nextIndex, title), result.RelStartMillis)
	s.run.AddResult(result)
	c.perf.CaseStarted(title)
	s.logger.Info().Int("index", result.Index).Str("case", title).Msg("Running case")

	snapshotCtx, stopSnapshots := context.WithCancel(ctx)
	go c.snapshotLoop(ctx, snapshotCtx, s)

	outcome := c.invokeCase(ctx, s.dev, casePath)
	stopSnapshots()

	if outcome.Passed {
		s.run.UpdateResult(result, func(r *model.TestCaseResult) {
			r.Status = model.StatusOK
			r.Success = true
		})
		c.perf.CaseSucceeded(title)
	} else {
		s.run.UpdateResult(result, func(r *model.TestCaseResult) {
			r.Status = model.StatusFailure
			r.Success = false
			r.Stack = outcome.Reason
		})
		s.run.AddTimeTag(title+".fail", c.offset(s))
		s.run.OneMoreFailure()
		c.perf.CaseFailed(title)
		s.logger.Warn().Int("index", result.Index).Str("case", title).Str("reason", outcome.Reason).Msg("Case failed")
	}

	end := c.clock.Now()
	s.run.UpdateResult(result, func(r *model.TestCaseResult) {
		r.EndTime = end
		r.RelEndMillis = c.offsetAt(s, end)
	})
	s.run.AddTimeTag(title+".end", c.offsetAt(s, end))
}

// invokeCase runs the case and turns a panic of the controller into a
// failing outcome.
func (c *Coordinator) invokeCase(ctx context.Context, dev *model.Device, casePath string) (outcome CaseOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = Fail(fmt.Sprintf("panic: %v", r))
		}
	}()
	return c.controller.RunCase(ctx, dev, casePath)
}

// snapshotLoop adds a frame to the run GIF every snapshot interval until
// loopCtx is cancelled. Screenshots already requested are completed with
// the run context and dropped if the assembler has been closed meanwhile.
func (c *Coordinator) snapshotLoop(ctx, loopCtx context.Context, s *runState) {
	ticker := c.clock.NewTicker(c.snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-loopCtx.Done():
			return
		case <-ticker.C():
			c.snapshot(ctx, s)
		}
	}
}

func (c *Coordinator) snapshot(ctx context.Context, s *runState) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn().Interface("panic", r).Msg("Snapshot failed")
		}
	}()

	img, err := c.controller.Screenshot(ctx, s.dev)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to capture snapshot")
		return
	}
	if img == nil || !s.assembler.IsOpen() {
		return
	}
	if !s.assembler.AppendFrame(artifact.ScaleFrame(img, c.frameScale)) {
		s.logger.Debug().Msg("Dropped snapshot, GIF already closed")
	}
}

// teardown releases everything Execute acquired. It runs on every exit
// path of Execute, panics included.
func (c *Coordinator) teardown(ctx context.Context, s *runState) {
	ctx = context.WithoutCancel(ctx)

	if s.assembler != nil {
		if err := s.assembler.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to write GIF")
		}
	}

	if s.primary != nil && s.primary.state == sessionRecording {
		if err := s.primary.stop(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to stop recording")
		}
	}

	if s.secondary != nil {
		if s.secondary.session.state == sessionRecording {
			if err := s.secondary.session.stop(ctx); err != nil {
				s.logger.Warn().Err(err).Str("secondary", s.secondary.serial).Msg("Failed to stop recording")
			}
		}
		if _, err := artifact.MergeRecordings(ctx, s.logger, c.merger, s.run.ResultFolder); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to merge recordings")
		}
	}

	if s.logCollector != nil {
		if err := s.logCollector.StopAndAnalyse(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to stop log collection")
		}
	}
}

func (c *Coordinator) offset(s *runState) int64 {
	return c.offsetAt(s, c.clock.Now())
}

func (c *Coordinator) offsetAt(s *runState, t time.Time) int64 {
	return t.Sub(s.baseline).Milliseconds()
}

func lastSegment(pkg string) string {
	return pkg[strings.LastIndex(pkg, ".")+1:]
}
