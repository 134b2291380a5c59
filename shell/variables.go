package shell

import "strings"

// Variables available in user scripts and case commands.
const (
	// Absolute path of the result folder, with a trailing slash
	ResultFolderVariable = "$DevRun_TestResultFolderPath"
	// Serial number (UDID) of the device under test
	DeviceSerialVariable = "$DevRun_deviceUdid"
)

// ParseVariables replaces the devrun variables in command with the result
// folder and device serial of a run. Text without variables is returned
// unchanged.
func ParseVariables(command, resultFolder, deviceSerial string) string {
	folder := resultFolder
	if !strings.HasSuffix(folder, "/") {
		folder += "/"
	}
	command = strings.ReplaceAll(command, ResultFolderVariable, folder)
	return strings.ReplaceAll(command, DeviceSerialVariable, deviceSerial)
}
