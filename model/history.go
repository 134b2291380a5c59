package model

import "time"

// RunRecord is the persisted form of a finished run. It contains the run
// itself plus information about where and how it was executed.
type RunRecord struct {
	// Run ID, same as Run.ID
	ID string `json:"id"`
	// Timestamp when the run started
	Timestamp time.Time `json:"timestamp"`
	// Command-line arguments (including command name)
	Args []string `json:"args"`
	// Package or app identifier under test
	Package string `json:"package"`
	// Device serial and linked device serial, if any
	Device       string `json:"device"`
	LinkedDevice string `json:"linked_device,omitempty"`
	// Exit code of the CLI invocation (0 when every case passed)
	ExitCode int `json:"exit_code"`
	// Duration of the run
	Duration time.Duration `json:"duration"`
	// Git information of the directory holding the case files
	Git *Git `json:"git,omitempty"`
	// Target host information
	Target *Target `json:"target,omitempty"`
	// Artifacts generated during this run
	Artifacts []Artifact `json:"artifacts,omitempty"`
	// The run with its case results and time tags
	Run *TestRun `json:"run"`
}

// Git contains git repository information
type Git struct {
	// Git commit hash at time of execution
	Commit string `json:"commit,omitempty"`
	// Git branch at time of execution
	Branch string `json:"branch,omitempty"`
}

// Target contains information about the host that drove the run
type Target struct {
	// Host name of the agent
	Hostname string `json:"hostname,omitempty"`
	// Operating system of the agent
	OS string `json:"os,omitempty"`
	// CPU architecture of the agent
	Arch string `json:"arch,omitempty"`
}

// ArtifactType identifies the type of artifact
type ArtifactType uint8

const (
	ArtifactTypeGIF ArtifactType = iota
	ArtifactTypeMergedVideo
	ArtifactTypePhoneVideo
	ArtifactTypeSecondaryVideo
	ArtifactTypeLogcat
	ArtifactTypePprofProfile
	ArtifactTypeMetrics
)

func (t ArtifactType) String() string {
	switch t {
	case ArtifactTypeGIF:
		return "gif"
	case ArtifactTypeMergedVideo:
		return "video"
	case ArtifactTypePhoneVideo:
		return "phone video"
	case ArtifactTypeSecondaryVideo:
		return "secondary video"
	case ArtifactTypeLogcat:
		return "logcat"
	case ArtifactTypePprofProfile:
		return "profile"
	case ArtifactTypeMetrics:
		return "metrics"
	default:
		return "unknown"
	}
}

// Artifact represents a file generated during execution
type Artifact struct {
	Type ArtifactType `json:"type"`
	Size uint64       `json:"size"`
	File string       `json:"file"` // relative to result folder
}
