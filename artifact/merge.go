package artifact

// This file contains the side-by-side merge of the primary and secondary
// device recordings.

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"al.essio.dev/pkg/shellescape"
	"github.com/devrun/devrun/shell"
	"github.com/rs/zerolog"
)

// Canonical video file names inside a result folder. The primary device
// records into MergedVideoName; after a successful merge that file holds the
// merged video and the unmerged primary recording is kept as PhoneVideoName.
const (
	MergedVideoName    = "merged_test.mp4"
	PhoneVideoName     = "phone_test.mp4"
	SecondaryVideoName = "PC_test.mp4"
	TempVideoName      = "temp.mp4"
)

// Merger merges two videos side by side into output.
type Merger interface {
	MergeSideBySide(ctx context.Context, left, right, output string) error
}

// CommandRunner runs a shell command, see shell.Executor.Run.
type CommandRunner interface {
	Run(ctx context.Context, command string, wait bool) (*shell.Process, error)
}

// FFmpeg merges videos with the ffmpeg command line tool.
type FFmpeg struct {
	logger zerolog.Logger
	runner CommandRunner
	path   string
}

// NewFFmpeg creates a merger running the ffmpeg binary at path.
func NewFFmpeg(logger zerolog.Logger, runner CommandRunner, path string) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{
		logger: logger,
		runner: runner,
		path:   path,
	}
}

// BuildSideBySideArgs builds the ffmpeg arguments that scale both inputs to
// the same height and stack them horizontally.
func BuildSideBySideArgs(left, right, output string) []string {
	return []string{
		"-y",                   // Overwrite output file if it exists
		"-loglevel", "warning", // Reduce verbose output
		"-i", left,
		"-i", right,
		"-filter_complex", "[0:v]scale=-2:720[left];[1:v]scale=-2:720[right];[left][right]hstack=inputs=2[v]",
		"-map", "[v]",
		"-c:v", "libx264",
		"-preset", "fast",
		output,
	}
}

// BuildSideBySideCommand builds the ffmpeg command string with proper shell
// escaping.
func (f *FFmpeg) BuildSideBySideCommand(left, right, output string) string {
	args := BuildSideBySideArgs(left, right, output)

	parts := make([]string, 0, len(args)+1)
	parts = append(parts, shellescape.Quote(f.path))
	for _, arg := range args {
		parts = append(parts, shellescape.Quote(arg))
	}

	return strings.Join(parts, " ")
}

// MergeSideBySide implements Merger.
func (f *FFmpeg) MergeSideBySide(ctx context.Context, left, right, output string) error {
	f.logger.Info().
		Str("left", left).
		Str("right", right).
		Str("output", output).
		Msg("Merging videos side-by-side")

	if _, err := f.runner.Run(ctx, f.BuildSideBySideCommand(left, right, output), true); err != nil {
		return fmt.Errorf("ffmpeg merge failed: %w", err)
	}
	return nil
}

// MergeRecordings merges the primary and secondary recordings in folder if
// both exist. It reports whether a merge happened. A missing recording is
// not an error, the merge is skipped and nothing is renamed. When the merge
// itself fails the primary recording is left untouched.
func MergeRecordings(ctx context.Context, logger zerolog.Logger, merger Merger, folder string) (bool, error) {
	primary := filepath.Join(folder, MergedVideoName)
	secondary := filepath.Join(folder, SecondaryVideoName)

	if !fileExists(primary) || !fileExists(secondary) {
		logger.Debug().
			Bool("primary", fileExists(primary)).
			Bool("secondary", fileExists(secondary)).
			Msg("Skipping video merge, recording missing")
		return false, nil
	}

	temp := filepath.Join(folder, TempVideoName)
	if err := merger.MergeSideBySide(ctx, primary, secondary, temp); err != nil {
		_ = os.Remove(temp)
		return false, err
	}
	if !fileExists(temp) {
		return false, fmt.Errorf("merged video %s was not written", temp)
	}

	if err := os.Rename(primary, filepath.Join(folder, PhoneVideoName)); err != nil {
		return false, fmt.Errorf("failed to preserve primary recording: %w", err)
	}
	if err := os.Rename(temp, primary); err != nil {
		return false, fmt.Errorf("failed to move merged video: %w", err)
	}

	logger.Info().Str("video", primary).Msg("Merged recordings")
	return true, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
