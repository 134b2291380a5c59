package cli

// This file contains the list command for displaying previous runs.

import (
	"fmt"
	"strings"
	"time"

	"github.com/devrun/devrun/history"
	"github.com/urfave/cli/v2"
)

func (a *App) resultsRoot(ctx *cli.Context) (string, error) {
	if ctx.IsSet("results") {
		return ctx.String("results"), nil
	}
	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return "", err
	}
	return cfg.ResultsRoot, nil
}

func (a *App) list(ctx *cli.Context) error {
	filterPackage := ctx.String("package")
	limit := ctx.Int("limit")

	root, err := a.resultsRoot(ctx)
	if err != nil {
		return err
	}

	// Load all run records, newest first
	entries, err := history.LoadEntries(a.logger, root)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	// Apply package filter if specified
	var filteredEntries []history.Entry
	for _, entry := range entries {
		if filterPackage == "" || strings.Contains(entry.Record.Package, filterPackage) {
			filteredEntries = append(filteredEntries, entry)
		}
	}

	if len(filteredEntries) == 0 {
		if filterPackage != "" {
			fmt.Printf("No runs found matching package: %s\n", filterPackage)
		} else {
			fmt.Println("No runs found")
			fmt.Printf("Runs are saved to %s/<timestamp>-<id>/\n", root)
		}
		return nil
	}

	// Apply limit
	displayRuns := filteredEntries
	if limit > 0 && limit < len(displayRuns) {
		displayRuns = displayRuns[:limit]
	}

	fmt.Printf("\n=== Runs (%d total) ===\n\n", len(filteredEntries))

	for _, entry := range displayRuns {
		r := entry.Record
		timestamp := r.Timestamp.Format("2006-01-02 15:04:05")

		// Format duration
		duration := r.Duration.Round(time.Millisecond)

		// Determine status indicator
		status := "✓"
		if r.ExitCode != 0 {
			status = "✗"
		}

		// Show short ID (first 8 chars)
		shortID := r.ID
		if len(shortID) > 8 {
			shortID = shortID[:8]
		}

		fmt.Printf("%s  %s  [%s]  exit=%d  id=%s\n", status, timestamp, duration, r.ExitCode, shortID)
		fmt.Printf("   Package: %s\n", r.Package)
		if r.Run != nil {
			fmt.Printf("   Cases: %d, failed: %d\n", r.Run.TotalCount, r.Run.FailCount)
		}
		device := r.Device
		if r.LinkedDevice != "" {
			device += " + " + r.LinkedDevice
		}
		fmt.Printf("   Device: %s\n", device)
		if r.Target != nil && r.Target.Hostname != "" {
			fmt.Printf("   Host: %s (%s/%s)\n", r.Target.Hostname, r.Target.OS, r.Target.Arch)
		}
		if r.Git != nil && r.Git.Commit != "" {
			shortCommit := r.Git.Commit
			if len(shortCommit) > 8 {
				shortCommit = shortCommit[:8]
			}
			fmt.Printf("   Commit: %s", shortCommit)
			if r.Git.Branch != "" {
				fmt.Printf(" (%s)", r.Git.Branch)
			}
			fmt.Println()
		}
		for _, artifact := range r.Artifacts {
			fmt.Printf("   %s: %s (%.1f KB)\n", artifact.Type, artifact.File, float64(artifact.Size)/1024)
		}
		fmt.Printf("   %s\n", entry.FullPath)
		fmt.Println()
	}

	fmt.Println("\nView run: devrun view <ID>")

	return nil
}
