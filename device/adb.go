// Package device controls Android devices through adb.
package device

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"al.essio.dev/pkg/shellescape"
	"github.com/devrun/devrun/artifact"
	"github.com/devrun/devrun/model"
	"github.com/devrun/devrun/runner"
	"github.com/devrun/devrun/shell"
	"github.com/rs/zerolog"
)

// Executor runs shell commands, see shell.Executor.
type Executor interface {
	Run(ctx context.Context, command string, wait bool) (*shell.Process, error)
	RunWithRedirect(ctx context.Context, command, redirectTo string, wait bool) (*shell.Process, error)
	RunWithResult(ctx context.Context, command string) (string, error)
	KillByCommand(ctx context.Context, fragment string) error
	Host() shell.Host
}

// ADB is a runner.DeviceController for Android devices.
type ADB struct {
	logger       zerolog.Logger
	exec         Executor
	path         string
	caseCommand  string
	resultFolder string
}

var _ runner.DeviceController = (*ADB)(nil)

// Option configures ADB.
type Option func(*ADB)

// WithPath sets the adb binary, "adb" by default.
func WithPath(path string) Option {
	return func(a *ADB) {
		if path != "" {
			a.path = path
		}
	}
}

// WithCaseCommand sets the command template running a case file. The
// template may use {case} and {serial} as well as the shell variables.
func WithCaseCommand(template string) Option {
	return func(a *ADB) {
		a.caseCommand = template
	}
}

// WithResultFolder sets the result folder substituted into case commands.
func WithResultFolder(folder string) Option {
	return func(a *ADB) {
		a.resultFolder = folder
	}
}

// New creates an adb controller.
func New(logger zerolog.Logger, exec Executor, opts ...Option) *ADB {
	a := &ADB{
		logger: logger,
		exec:   exec,
		path:   "adb",
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// command builds an adb command for serial, quoting every argument.
func (a *ADB) command(serial string, args ...string) string {
	parts := []string{shellescape.Quote(a.path)}
	if serial != "" {
		parts = append(parts, "-s", shellescape.Quote(serial))
	}
	for _, arg := range args {
		parts = append(parts, shellescape.Quote(arg))
	}
	return strings.Join(parts, " ")
}

// Serial returns the serial of the only connected device.
func (a *ADB) Serial(ctx context.Context) (string, error) {
	out, err := a.exec.RunWithResult(ctx, a.command("", "get-serialno"))
	if err != nil {
		return "", err
	}
	serial := strings.TrimSpace(out)
	if serial == "" || serial == "unknown" {
		return "", errors.New("no device connected")
	}
	return serial, nil
}

// ScreenRecorder implements runner.DeviceController.
func (a *ADB) ScreenRecorder(dev *model.Device, folder, fileName string) runner.Recorder {
	return &screenRecorder{
		adb:        a,
		serial:     dev.Serial,
		localPath:  filepath.Join(folder, fileName),
		remotePath: remoteDir + "/devrun_" + fileName,
	}
}

// LogCollector implements runner.DeviceController.
func (a *ADB) LogCollector(dev *model.Device, pkg string, run *model.TestRun) runner.LogCollector {
	return &logCollector{
		adb:    a,
		serial: dev.Serial,
		pkg:    pkg,
		run:    run,
		path:   filepath.Join(run.ResultFolder, LogcatFileName),
	}
}

const screenshotRemotePath = remoteDir + "/devrun_screen.png"

// Screenshot implements runner.DeviceController.
func (a *ADB) Screenshot(ctx context.Context, dev *model.Device) (image.Image, error) {
	f, err := os.CreateTemp("", "devrun-screen-*.png")
	if err != nil {
		return nil, fmt.Errorf("failed to create screenshot file: %w", err)
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	if err := a.capture(ctx, dev.Serial, path); err != nil {
		return nil, err
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		return nil, nil
	}
	return artifact.LoadFrame(path)
}

// capture stores a PNG screenshot of the device at path. Out-File of
// PowerShell re-encodes binary output as text, so Windows hosts write the
// screenshot on the device and pull it instead of redirecting stdout.
func (a *ADB) capture(ctx context.Context, serial, path string) error {
	if a.exec.Host() != shell.HostWindows {
		_, err := a.exec.RunWithRedirect(ctx, a.command(serial, "exec-out", "screencap", "-p"), path, true)
		return err
	}

	if _, err := a.exec.Run(ctx, a.command(serial, "shell", "screencap", "-p", screenshotRemotePath), true); err != nil {
		return err
	}
	_, err := a.exec.Run(ctx, a.command(serial, "pull", screenshotRemotePath, path), true)
	return err
}

// RunCase implements runner.DeviceController.
func (a *ADB) RunCase(ctx context.Context, dev *model.Device, casePath string) runner.CaseOutcome {
	def, err := LoadCase(casePath)
	if err != nil {
		return runner.Fail(err.Error())
	}
	if len(def.Actions) == 0 {
		a.logger.Info().Str("case", casePath).Msg("Case has no actions")
		return runner.Pass()
	}
	if a.caseCommand == "" {
		return runner.Fail("no case command configured")
	}

	command := a.CaseCommand(casePath, dev.Serial)
	if _, err := a.exec.Run(ctx, command, true); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return runner.Fail(fmt.Sprintf("case command exited with status %d", exitErr.ExitCode()))
		}
		return runner.Fail(err.Error())
	}
	return runner.Pass()
}

// CaseCommand expands the case command template for one case.
func (a *ADB) CaseCommand(casePath, serial string) string {
	command := strings.NewReplacer(
		"{case}", shellescape.Quote(casePath),
		"{serial}", shellescape.Quote(serial),
		"{adb}", shellescape.Quote(a.path),
	).Replace(a.caseCommand)
	return shell.ParseVariables(command, a.resultFolder, serial)
}
