package device

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/devrun/devrun/model"
	"github.com/devrun/devrun/shell"
)

// LogcatFileName is the device log written into the result folder.
const LogcatFileName = "logcat.log"

// maximum number of lines kept per crash block
const maxCrashLines = 30

type logCollector struct {
	adb    *ADB
	serial string
	pkg    string
	run    *model.TestRun
	path   string
	proc   *shell.Process
}

func (c *logCollector) logcatCommand() string {
	return c.adb.command(c.serial, "logcat", "-v", "threadtime")
}

func (c *logCollector) Start(ctx context.Context) error {
	if _, err := c.adb.exec.Run(ctx, c.adb.command(c.serial, "logcat", "-c"), true); err != nil {
		c.adb.logger.Warn().Err(err).Str("serial", c.serial).Msg("Failed to clear logcat")
	}
	proc, err := c.adb.exec.RunWithRedirect(ctx, c.logcatCommand(), c.path, false)
	if err != nil {
		return err
	}
	c.proc = proc
	return nil
}

func (c *logCollector) StopAndAnalyse(ctx context.Context) error {
	if err := c.adb.exec.KillByCommand(ctx, c.logcatCommand()); err != nil {
		c.adb.logger.Warn().Err(err).Str("serial", c.serial).Msg("Failed to stop logcat")
	}
	if c.proc != nil {
		select {
		case <-c.proc.Done():
		case <-time.After(recorderStopTimeout):
			_ = c.proc.Kill()
			<-c.proc.Done()
		}
	}

	f, err := os.Open(c.path)
	if err != nil {
		return fmt.Errorf("failed to open logcat: %w", err)
	}
	defer f.Close()

	summary, err := AnalyseLog(f, c.pkg)
	if err != nil {
		return fmt.Errorf("failed to analyse logcat: %w", err)
	}
	if summary != "" {
		c.adb.logger.Warn().Str("package", c.pkg).Msg("Crash found in logcat")
		c.run.SetCrashSummary(summary)
	}
	return nil
}

// AnalyseLog scans a threadtime logcat for crashes and ANRs of pkg and
// returns them as a summary, empty if there were none.
func AnalyseLog(r io.Reader, pkg string) (string, error) {
	var (
		blocks []string
		block  []string
		tag    string
	)
	flush := func() {
		if len(block) > 0 && belongsTo(block, pkg) {
			blocks = append(blocks, strings.Join(block, "\n"))
		}
		block, tag = nil, ""
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, "FATAL EXCEPTION"):
			flush()
			block, tag = []string{line}, "AndroidRuntime"
		case strings.Contains(line, "ANR in "):
			flush()
			block, tag = []string{line}, "ActivityManager"
		case tag != "" && strings.Contains(line, tag):
			if len(block) < maxCrashLines {
				block = append(block, line)
			}
		default:
			flush()
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return "", err
	}
	return strings.Join(blocks, "\n\n"), nil
}

// belongsTo reports whether a crash block is about pkg.
func belongsTo(block []string, pkg string) bool {
	if strings.Contains(block[0], "ANR in "+pkg) {
		return true
	}
	for _, line := range block {
		if strings.Contains(line, "Process: "+pkg+",") {
			return true
		}
	}
	return false
}
