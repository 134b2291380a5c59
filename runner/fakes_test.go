package runner

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/devrun/devrun/model"
	"github.com/disintegration/imaging"
)

// eventLog records calls of all fakes in order.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *eventLog) indexOf(event string) int {
	for i, e := range l.all() {
		if e == event {
			return i
		}
	}
	return -1
}

type fakeRecorder struct {
	log      *eventLog
	serial   string
	path     string
	timeout  time.Duration
	startErr error
}

func (r *fakeRecorder) Prepare(context.Context) error {
	r.log.add("prepare %s", r.serial)
	return nil
}

func (r *fakeRecorder) Start(_ context.Context, timeout time.Duration) error {
	r.log.add("start %s", r.serial)
	r.timeout = timeout
	return r.startErr
}

func (r *fakeRecorder) Stop(context.Context) error {
	r.log.add("stop %s", r.serial)
	return os.WriteFile(r.path, []byte("video of "+r.serial), 0644)
}

type fakeLogCollector struct {
	log *eventLog
}

func (c *fakeLogCollector) Start(context.Context) error {
	c.log.add("logcat start")
	return nil
}

func (c *fakeLogCollector) StopAndAnalyse(context.Context) error {
	c.log.add("logcat stop")
	return nil
}

type fakeController struct {
	log       *eventLog
	mu        sync.Mutex
	recorders map[string]*fakeRecorder
	outcomes  map[string]CaseOutcome
	// onRunCase, if set, runs inside RunCase before the outcome is returned
	onRunCase     func(casePath string)
	screenshotErr error
	screenshots   int
}

func newFakeController(log *eventLog) *fakeController {
	return &fakeController{
		log:       log,
		recorders: map[string]*fakeRecorder{},
		outcomes:  map[string]CaseOutcome{},
	}
}

func (c *fakeController) ScreenRecorder(dev *model.Device, folder, fileName string) Recorder {
	r := &fakeRecorder{log: c.log, serial: dev.Serial, path: filepath.Join(folder, fileName)}
	c.mu.Lock()
	c.recorders[dev.Serial] = r
	c.mu.Unlock()
	return r
}

func (c *fakeController) LogCollector(*model.Device, string, *model.TestRun) LogCollector {
	return &fakeLogCollector{log: c.log}
}

func (c *fakeController) Screenshot(context.Context, *model.Device) (image.Image, error) {
	c.mu.Lock()
	c.screenshots++
	c.mu.Unlock()
	if c.screenshotErr != nil {
		return nil, c.screenshotErr
	}
	return imaging.New(100, 200, color.White), nil
}

func (c *fakeController) RunCase(_ context.Context, _ *model.Device, casePath string) CaseOutcome {
	c.log.add("case %s", filepath.Base(casePath))
	if c.onRunCase != nil {
		c.onRunCase(casePath)
	}
	if outcome, ok := c.outcomes[filepath.Base(casePath)]; ok {
		return outcome
	}
	return Pass()
}

func (c *fakeController) screenshotCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.screenshots
}

type fakePerf struct {
	log            *eventLog
	panicOnStarted bool
}

func (p *fakePerf) RunStarted()  { p.log.add("perf run started") }
func (p *fakePerf) RunFinished() { p.log.add("perf run finished") }

func (p *fakePerf) CaseStarted(name string) {
	if p.panicOnStarted {
		panic("perf collector crashed")
	}
	p.log.add("perf started %s", name)
}

func (p *fakePerf) CaseSucceeded(name string) { p.log.add("perf succeeded %s", name) }
func (p *fakePerf) CaseFailed(name string)    { p.log.add("perf failed %s", name) }

type fakeMerger struct {
	log *eventLog
	err error
}

func (m *fakeMerger) MergeSideBySide(_ context.Context, left, right, output string) error {
	m.log.add("merge %s %s", filepath.Base(left), filepath.Base(right))
	if m.err != nil {
		return m.err
	}
	return os.WriteFile(output, []byte("merged"), 0644)
}

// loggingAssembler wraps an assembler and records when it is closed.
type loggingAssembler struct {
	FrameAssembler
	log *eventLog
}

func (a *loggingAssembler) Close() error {
	a.log.add("gif close")
	return a.FrameAssembler.Close()
}

var errNoScreen = errors.New("screencap: no display")
