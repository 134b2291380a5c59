package cli

// This file contains artifact management functionality for registering
// the files of a run in its run record.

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/devrun/devrun/artifact"
	"github.com/devrun/devrun/device"
	"github.com/devrun/devrun/model"
	"github.com/devrun/devrun/perf"
	"github.com/google/pprof/profile"
)

// registerArtifacts adds every artifact present in the result folder to
// the record.
func (a *App) registerArtifacts(folder string, record *model.RunRecord) {
	candidates := []struct {
		typ  model.ArtifactType
		file string
	}{
		{model.ArtifactTypeGIF, record.Package + ".gif"},
		{model.ArtifactTypeMergedVideo, artifact.MergedVideoName},
		{model.ArtifactTypePhoneVideo, artifact.PhoneVideoName},
		{model.ArtifactTypeSecondaryVideo, artifact.SecondaryVideoName},
		{model.ArtifactTypeLogcat, device.LogcatFileName},
		{model.ArtifactTypePprofProfile, perf.ProfileFileName},
		{model.ArtifactTypeMetrics, perf.MetricsFileName},
	}

	for _, c := range candidates {
		info, err := os.Stat(filepath.Join(folder, c.file))
		if err != nil {
			continue
		}
		record.Artifacts = append(record.Artifacts, model.Artifact{
			Type: c.typ,
			Size: uint64(info.Size()),
			File: c.file,
		})
		a.logger.Debug().Str("file", c.file).Str("type", c.typ.String()).Msg("Registered artifact")
	}
}

// annotateProfile stores the identity of the run in the comments of the
// performance profile, so that pprof shows which run it belongs to.
func (a *App) annotateProfile(folder string, record *model.RunRecord) error {
	profileFile := filepath.Join(folder, perf.ProfileFileName)
	f, err := os.Open(profileFile)
	if err != nil {
		return fmt.Errorf("failed to open profile: %w", err)
	}
	defer f.Close()

	prof, err := profile.Parse(f)
	if err != nil {
		return fmt.Errorf("failed to parse profile: %w", err)
	}
	f.Close()

	prof.Comments = append(prof.Comments,
		"devrun run "+record.ID,
		"package "+record.Package,
		"device "+record.Device,
	)
	if record.Git != nil && record.Git.Commit != "" {
		prof.Comments = append(prof.Comments, "commit "+record.Git.Commit)
	}

	outFile, err := os.Create(profileFile)
	if err != nil {
		return fmt.Errorf("failed to create output profile: %w", err)
	}
	defer outFile.Close()

	if err := prof.Write(outFile); err != nil {
		return fmt.Errorf("failed to write updated profile: %w", err)
	}

	return nil
}
