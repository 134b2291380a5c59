package cli

// This file contains the run command, which executes case files on a
// device and records the run in its result folder.

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/devrun/devrun/artifact"
	"github.com/devrun/devrun/config"
	"github.com/devrun/devrun/device"
	"github.com/devrun/devrun/history"
	"github.com/devrun/devrun/model"
	"github.com/devrun/devrun/perf"
	"github.com/devrun/devrun/runner"
	"github.com/devrun/devrun/shell"
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/urfave/cli/v2"
)

func (a *App) run(ctx *cli.Context) error {
	startTime := time.Now()

	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}
	if ctx.IsSet("results") {
		cfg.ResultsRoot = ctx.String("results")
	}
	if ctx.IsSet("record-timeout") {
		cfg.RecordTimeout = ctx.Duration("record-timeout")
	}
	if ctx.IsSet("case-command") {
		cfg.CaseCommand = ctx.String("case-command")
	}

	task := &runner.Task{
		Package:       ctx.String("package"),
		RecordTimeout: cfg.RecordTimeout,
	}
	if initial := ctx.String("initial-case"); initial != "" {
		if task.InitialCase, err = filepath.Abs(initial); err != nil {
			return err
		}
	}
	for _, c := range ctx.Args().Slice() {
		abs, err := filepath.Abs(c)
		if err != nil {
			return err
		}
		task.Cases = append(task.Cases, abs)
	}
	if task.CaseCount() == 0 {
		return fmt.Errorf("no case files specified")
	}

	executor, err := a.executor(cfg)
	if err != nil {
		return err
	}

	// Create the result folder early so artifacts can be written directly to it
	runID := uuid.NewString()
	folder, err := filepath.Abs(filepath.Join(cfg.ResultsRoot, fmt.Sprintf("%s-%s", startTime.Format("20060102-150405"), runID[:8])))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(folder, 0755); err != nil {
		return fmt.Errorf("failed to create result folder: %w", err)
	}

	adb := device.New(a.logger, executor,
		device.WithPath(cfg.ADBPath),
		device.WithCaseCommand(cfg.CaseCommand),
		device.WithResultFolder(folder),
	)

	serial := ctx.String("serial")
	if serial == "" {
		if serial, err = adb.Serial(ctx.Context); err != nil {
			return fmt.Errorf("failed to find device: %w", err)
		}
	}
	dev := &model.Device{Serial: serial}
	if linked := ctx.String("linked-serial"); linked != "" {
		dev.Linked = &model.Device{Serial: linked}
	}

	testRun := model.NewTestRun(runID, ctx.String("task"), folder)
	record := &model.RunRecord{
		ID:        runID,
		Timestamp: startTime,
		Args:      os.Args,
		Package:   task.Package,
		Device:    serial,
		Target:    a.target(ctx.Context),
	}
	if dev.Linked != nil {
		record.LinkedDevice = dev.Linked.Serial
	}

	// Capture git info of the case files (non-fatal if it fails)
	caseDir := filepath.Dir(firstCase(task))
	if commit, branch, err := a.getGitInfo(caseDir); err == nil {
		record.Git = &model.Git{
			Commit: commit,
			Branch: branch,
		}
	}

	a.logger.Info().
		Str("id", runID).
		Str("device", serial).
		Str("folder", folder).
		Msg("Starting run")

	a.runDeviceScripts(ctx.Context, executor, cfg.Scripts(config.WhenSetUp), folder, serial)

	inspector := perf.NewInspector(a.logger, perf.HostSampler{}, clock.NewClock(), folder)
	coordinator := runner.New(a.logger, adb, inspector,
		artifact.NewFFmpeg(a.logger, executor, cfg.FFmpegPath),
		runner.WithSnapshotInterval(cfg.SnapshotInterval),
		runner.WithFrameScale(cfg.FrameScale),
	)
	gifPath, runErr := coordinator.Execute(ctx.Context, task, dev, testRun)

	a.runDeviceScripts(ctx.Context, executor, cfg.Scripts(config.WhenTearDown), folder, serial)

	if runErr != nil {
		return runErr
	}

	record.Run = testRun
	record.Duration = time.Since(startTime)
	if testRun.Failures() > 0 {
		record.ExitCode = 1
	}
	if err := a.annotateProfile(folder, record); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to annotate performance profile")
	}
	a.registerArtifacts(folder, record)

	// Record the run (non-fatal if it fails)
	if err := history.Save(folder, record); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to record run")
	}

	renderResults(os.Stdout, fmt.Sprintf("Run %s on %s", runID[:8], serial), testRun)
	fmt.Printf("\nGIF: %s\nResults: %s\n", gifPath, folder)
	if testRun.CrashSummary != "" {
		fmt.Printf("\nCrashes found in %s:\n%s\n", device.LogcatFileName, testRun.CrashSummary)
	}

	if failed := testRun.Failures(); failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d cases failed", failed, testRun.Total()), 1)
	}
	return nil
}

// runDeviceScripts runs scripts one after another. Failures are logged only.
func (a *App) runDeviceScripts(ctx context.Context, executor *shell.Executor, scripts []config.DeviceScript, folder, serial string) {
	for _, s := range scripts {
		command := shell.ParseVariables(s.Command, folder, serial)
		a.logger.Info().Str("script", s.Name).Str("when", s.When).Msg("Running device script")
		if _, err := executor.Run(ctx, command, true); err != nil {
			a.logger.Warn().Err(err).Str("script", s.Name).Msg("Device script failed")
		}
	}
}

// target describes the host driving the run.
func (a *App) target(ctx context.Context) *model.Target {
	t := &model.Target{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}
	if info, err := host.InfoWithContext(ctx); err == nil {
		t.Hostname = info.Hostname
		if info.Platform != "" {
			t.OS = runtime.GOOS + "/" + info.Platform
		}
	} else {
		a.logger.Debug().Err(err).Msg("Failed to get host info")
	}
	return t
}

func firstCase(task *runner.Task) string {
	if task.InitialCase != "" {
		return task.InitialCase
	}
	return task.Cases[0]
}
