package cli

// This file contains the view command for displaying the results of a
// previous run.

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/devrun/devrun/history"
	"github.com/devrun/devrun/model"
	"github.com/urfave/cli/v2"
)

func removeFirstDashDash(in []string) []string {
	if len(in) > 0 && in[0] == "--" {
		return in[1:]
	}
	return in
}

func parseViewArgs(in []string) (idArg string, pprofArgs []string) {
	if len(in) == 0 {
		return "0", nil
	}

	// If first arg is "--", use default "0" and rest are pprof args
	if in[0] == "--" {
		return "0", in[1:]
	}

	// Check if first arg looks like a pprof flag instead of an ID
	// A negative index is: "-" followed by only digits (e.g., "-1", "-2")
	// A pprof flag is: "-" followed by non-digit or equals (e.g., "-http=:8080", "-top")
	if len(in[0]) > 1 && in[0][0] == '-' {
		// Check if it's a valid negative integer
		if _, err := strconv.ParseInt(in[0], 10, 64); err != nil {
			// Not a valid negative integer, so it's a pprof flag
			return "0", in
		}
	}

	// First arg is the ID/index, rest are pprof args (with optional "--" removed)
	return in[0], removeFirstDashDash(in[1:])
}

func (a *App) view(ctx *cli.Context) error {
	// Parse arguments to extract ID/index and pprof args
	arg, pprofArgs := parseViewArgs(ctx.Args().Slice())

	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}

	// Load all run records, newest first
	entries, err := history.LoadEntries(a.logger, cfg.ResultsRoot)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	entry, err := history.Find(entries, arg)
	if err != nil {
		return err
	}

	return a.displayEntry(&entry, pprofArgs)
}

func (a *App) displayEntry(entry *history.Entry, pprofArgs []string) error {
	r := entry.Record

	// Print header
	shortID := r.ID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	fmt.Printf("=== Run: %s ===\n", shortID)
	fmt.Printf("Time: %s\n", r.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Printf("Duration: %s\n", r.Duration)
	fmt.Printf("Exit Code: %d\n", r.ExitCode)
	fmt.Printf("Package: %s\n", r.Package)
	fmt.Printf("Device: %s\n", r.Device)
	if r.LinkedDevice != "" {
		fmt.Printf("Linked Device: %s\n", r.LinkedDevice)
	}
	if r.Git != nil && r.Git.Commit != "" {
		fmt.Printf("Git Commit: %s", r.Git.Commit)
		if r.Git.Branch != "" {
			fmt.Printf(" (%s)", r.Git.Branch)
		}
		fmt.Println()
	}
	fmt.Println()

	if r.Run != nil {
		renderResults(os.Stdout, "Cases", r.Run)
		fmt.Println()
		renderTimeTags(os.Stdout, r.Run)
		if r.Run.CrashSummary != "" {
			fmt.Printf("\nCrashes:\n%s\n", r.Run.CrashSummary)
		}
		fmt.Println()
	}

	var profileArtifact *model.Artifact
	for i := range r.Artifacts {
		art := &r.Artifacts[i]
		fmt.Printf("%s: %s (%.1f KB)\n", art.Type, filepath.Join(entry.FullPath, art.File), float64(art.Size)/1024)
		if art.Type == model.ArtifactTypePprofProfile {
			profileArtifact = art
		}
	}

	// Open the profile only when pprof arguments ask for it
	if profileArtifact != nil && len(pprofArgs) > 0 {
		return a.displayProfile(entry.FullPath, profileArtifact, pprofArgs)
	}
	return nil
}

func (a *App) displayProfile(runDir string, artifact *model.Artifact, pprofArgs []string) error {
	profilePath := filepath.Join(runDir, artifact.File)
	fmt.Printf("\nProfile: %s (%.1f KB)\n", profilePath, float64(artifact.Size)/1024)

	// Build pprof command with any additional args
	args := []string{"tool", "pprof"}
	args = append(args, pprofArgs...)
	args = append(args, profilePath)

	cmd := exec.Command("go", args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Dir = runDir

	return cmd.Run()
}
