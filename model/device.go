package model

import "sync"

// Device is a connected test device. A device may carry a linked secondary
// device whose screen is recorded alongside it.
type Device struct {
	// Serial number, for Android this is the adb serial
	Serial string `json:"serial"`
	// Human readable name
	Name string `json:"name,omitempty"`
	// Linked secondary device, nil for a single device
	Linked *Device `json:"linked,omitempty"`

	mu          sync.Mutex
	runningTest string
}

// SetRunningTestName sets or, with an empty name, clears the marker of the
// test currently running on the device.
func (d *Device) SetRunningTestName(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.runningTest = name
}

// ClaimRunning sets the running marker to name unless a test is already
// running. It reports whether the device was claimed.
func (d *Device) ClaimRunning(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.runningTest != "" {
		return false
	}
	d.runningTest = name
	return true
}

// RunningTestName returns the name of the test currently running on the device.
func (d *Device) RunningTestName() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runningTest
}

// IsRunning reports whether a test is running on the device.
func (d *Device) IsRunning() bool {
	return d.RunningTestName() != ""
}
