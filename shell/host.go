package shell

// Package shell runs host shell commands for devrun. It wraps commands in
// the host's shell, drains their output streams concurrently, and can stop
// processes it started earlier by matching their command line.

import (
	"fmt"
	"runtime"
	"strings"
)

// PowerShellPath is the PowerShell binary used on Windows hosts.
const PowerShellPath = `C:\Windows\System32\WindowsPowerShell\v1.0\powershell.exe`

// Host is the family of the machine commands are run on.
type Host int

const (
	HostPOSIX Host = iota
	HostWindows
)

func (h Host) String() string {
	if h == HostWindows {
		return "windows"
	}
	return "posix"
}

// DetectHost returns the host family of the running process. It is meant to
// be called once at start-up; the result is passed to New.
func DetectHost() Host {
	if runtime.GOOS == "windows" {
		return HostWindows
	}
	return HostPOSIX
}

// ParseHost parses a host name as written in the configuration. An empty
// name detects the host.
func ParseHost(name string) (Host, error) {
	switch strings.ToLower(name) {
	case "":
		return DetectHost(), nil
	case "posix", "linux", "darwin":
		return HostPOSIX, nil
	case "windows":
		return HostWindows, nil
	default:
		return HostPOSIX, fmt.Errorf("unknown host %q", name)
	}
}

// Invocation returns the program and arguments that run command in the
// shell of the host.
func (h Host) Invocation(command string) (string, []string) {
	if h == HostWindows {
		// Unrestricted execution policy so scripts run on locked down machines
		return PowerShellPath, []string{"-ExecutionPolicy", "Unrestricted", "-NoProfile", "-Command", command}
	}
	return "sh", []string{"-c", command}
}
