package device

import (
	"encoding/json"
	"fmt"
	"os"
)

// CaseDefinition is a T2C JSON case file.
type CaseDefinition struct {
	Drivers []CaseDriver `json:"drivers"`
	Actions []CaseAction `json:"cases"`
}

// CaseDriver is a driver an action runs on.
type CaseDriver struct {
	ID       string         `json:"id"`
	Platform string         `json:"platform"`
	Init     map[string]any `json:"init,omitempty"`
}

// CaseAction is one step of a case.
type CaseAction struct {
	Index    int            `json:"index"`
	DriverID string         `json:"driverId"`
	Element  map[string]any `json:"elementInfo,omitempty"`
	Action   struct {
		Type      string         `json:"actionType"`
		Arguments map[string]any `json:"arguments,omitempty"`
	} `json:"action"`
	Optional bool `json:"isOption,omitempty"`
}

// LoadCase reads the case file at path. Every action must reference a
// declared driver.
func LoadCase(path string) (*CaseDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read case: %w", err)
	}

	var def CaseDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse case %s: %w", path, err)
	}

	drivers := make(map[string]bool, len(def.Drivers))
	for _, d := range def.Drivers {
		drivers[d.ID] = true
	}
	for _, a := range def.Actions {
		if a.DriverID != "" && !drivers[a.DriverID] {
			return nil, fmt.Errorf("case %s: action %d uses unknown driver %q", path, a.Index, a.DriverID)
		}
	}

	return &def, nil
}
