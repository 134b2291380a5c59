package device

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/devrun/devrun/shell"
)

const (
	remoteDir = "/sdcard"

	// MaxRecordTimeout is the longest recording screenrecord supports.
	MaxRecordTimeout = 180 * time.Second

	// time screenrecord gets to finish the file after it was interrupted
	recorderStopTimeout = 10 * time.Second
)

// screenRecorder records the device screen with screenrecord and pulls the
// file into the result folder when stopped.
type screenRecorder struct {
	adb        *ADB
	serial     string
	localPath  string
	remotePath string
	proc       *shell.Process
}

func (r *screenRecorder) Prepare(ctx context.Context) error {
	_, err := r.adb.exec.Run(ctx, r.adb.command(r.serial, "shell", "rm", "-f", r.remotePath), true)
	return err
}

func (r *screenRecorder) Start(ctx context.Context, timeout time.Duration) error {
	proc, err := r.adb.exec.Run(ctx, r.startCommand(timeout), false)
	if err != nil {
		return err
	}
	r.proc = proc
	r.adb.logger.Info().Str("serial", r.serial).Dur("timeout", recordLimit(timeout)).Msg("Started screen recording")
	return nil
}

func (r *screenRecorder) startCommand(timeout time.Duration) string {
	seconds := strconv.Itoa(int(recordLimit(timeout).Seconds()))
	return r.adb.command(r.serial, "shell", "screenrecord", "--bit-rate", "4000000", "--time-limit", seconds, r.remotePath)
}

func (r *screenRecorder) Stop(ctx context.Context) error {
	// SIGINT makes screenrecord finalize the mp4 before exiting.
	if _, err := r.adb.exec.Run(ctx, r.adb.command(r.serial, "shell", "pkill", "-INT", "screenrecord"), true); err != nil {
		r.adb.logger.Warn().Err(err).Str("serial", r.serial).Msg("Failed to interrupt screenrecord")
	}

	if r.proc != nil {
		select {
		case <-r.proc.Done():
		case <-time.After(recorderStopTimeout):
			r.adb.logger.Warn().Str("serial", r.serial).Msg("Screen recording did not stop in time, killing it")
			_ = r.proc.Kill()
			<-r.proc.Done()
		}
	}

	if _, err := r.adb.exec.Run(ctx, r.adb.command(r.serial, "pull", r.remotePath, r.localPath), true); err != nil {
		return fmt.Errorf("failed to pull recording: %w", err)
	}
	r.adb.logger.Info().Str("serial", r.serial).Str("file", r.localPath).Msg("Saved screen recording")
	return nil
}

// recordLimit bounds timeout to what screenrecord accepts.
func recordLimit(timeout time.Duration) time.Duration {
	switch {
	case timeout <= 0, timeout > MaxRecordTimeout:
		return MaxRecordTimeout
	case timeout < time.Second:
		return time.Second
	default:
		return timeout.Truncate(time.Second)
	}
}
