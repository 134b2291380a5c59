package model

import (
	"strings"
	"sync"
	"time"
)

// StatusCode is the outcome code of a single test case.
type StatusCode int

const (
	StatusOK      StatusCode = 0
	StatusFailure StatusCode = -2
)

func (s StatusCode) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusFailure:
		return "FAILURE"
	default:
		return "UNKNOWN"
	}
}

// TimeTag marks a point of interest in the run relative to the recording baseline.
type TimeTag struct {
	Label        string `json:"label"`
	OffsetMillis int64  `json:"offset_ms"`
}

// TestCaseResult is the result of one executed test case.
type TestCaseResult struct {
	// Sequence index within the run, starting at 0
	Index int `json:"index"`
	// Case name, usually the case file name
	Name string `json:"name"`
	// Package or class the case belongs to
	Class string `json:"class,omitempty"`
	// Owning run and task
	RunID  string `json:"run_id"`
	TaskID string `json:"task_id,omitempty"`
	// Number of cases planned in the run at the time this case started
	NumTests int `json:"num_tests"`
	// Wall clock start and end
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	// Start and end relative to the recording baseline
	RelStartMillis int64      `json:"rel_start_ms"`
	RelEndMillis   int64      `json:"rel_end_ms"`
	Success        bool       `json:"success"`
	Status         StatusCode `json:"status"`
	// Short failure description, empty on success
	Stack string `json:"stack,omitempty"`
}

// Title returns the display title of the case, e.g. "calculator.login.json".
func (r *TestCaseResult) Title() string {
	if r.Class == "" {
		return r.Name
	}
	return r.Class[strings.LastIndex(r.Class, ".")+1:] + "." + r.Name
}

// TestRun is one execution of an ordered set of test cases against a device.
// The coordinator is the only writer; observers read through the snapshot
// accessors. Once OnEnded has been called the run no longer changes.
type TestRun struct {
	mu sync.RWMutex

	// Unique ID for this run (uuid)
	ID string `json:"id"`
	// Task the run belongs to
	TaskID string `json:"task_id,omitempty"`
	// Folder where all artifacts of this run are written
	ResultFolder string `json:"result_folder"`
	// Number of cases planned for this run
	TotalCount int `json:"total_count"`
	// Wall clock start and end of the run
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time,omitempty"`
	Ended     bool      `json:"ended"`
	// Offsets relative to the recording baseline, in append order
	TimeTags []TimeTag `json:"time_tags,omitempty"`
	// Case results in execution order
	Results []*TestCaseResult `json:"results,omitempty"`
	// Number of failed cases
	FailCount int `json:"fail_count"`
	// Crash or ANR summary found by the log collector, if any
	CrashSummary string `json:"crash_summary,omitempty"`
}

// NewTestRun creates a run writing its artifacts into resultFolder.
func NewTestRun(id, taskID, resultFolder string) *TestRun {
	return &TestRun{
		ID:           id,
		TaskID:       taskID,
		ResultFolder: resultFolder,
	}
}

// SetTotalCount sets the number of planned cases.
func (r *TestRun) SetTotalCount(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Ended {
		return
	}
	r.TotalCount = n
}

// SetStartTime records the wall clock start of the run.
func (r *TestRun) SetStartTime(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Ended {
		return
	}
	r.StartTime = t
}

// AddTimeTag appends a time tag. Offsets never go below zero nor below the
// previous tag, so the tag list is always non-decreasing.
func (r *TestRun) AddTimeTag(label string, offsetMillis int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Ended {
		return
	}
	if offsetMillis < 0 {
		offsetMillis = 0
	}
	if n := len(r.TimeTags); n > 0 && offsetMillis < r.TimeTags[n-1].OffsetMillis {
		offsetMillis = r.TimeTags[n-1].OffsetMillis
	}
	r.TimeTags = append(r.TimeTags, TimeTag{Label: label, OffsetMillis: offsetMillis})
}

// AddResult appends a case result. The result becomes visible to observers
// immediately, before the case has finished; later changes to it must go
// through UpdateResult.
func (r *TestRun) AddResult(result *TestCaseResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Ended {
		return
	}
	r.Results = append(r.Results, result)
}

// UpdateResult calls fn with result while holding the run lock, so that
// observers never see a half written result.
func (r *TestRun) UpdateResult(result *TestCaseResult, fn func(*TestCaseResult)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(result)
}

// OneMoreFailure increments the failure counter.
func (r *TestRun) OneMoreFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Ended {
		return
	}
	r.FailCount++
}

// SetCrashSummary stores the crash summary found in the device logs.
func (r *TestRun) SetCrashSummary(summary string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CrashSummary = summary
}

// OnEnded marks the run as finished.
func (r *TestRun) OnEnded(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Ended {
		return
	}
	r.EndTime = t
	r.Ended = true
}

// TimeTagsSnapshot returns a copy of the time tags.
func (r *TestRun) TimeTagsSnapshot() []TimeTag {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]TimeTag(nil), r.TimeTags...)
}

// ResultsSnapshot returns a copy of every result as it is right now.
func (r *TestRun) ResultsSnapshot() []TestCaseResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	results := make([]TestCaseResult, 0, len(r.Results))
	for _, res := range r.Results {
		results = append(results, *res)
	}
	return results
}

// Failures returns the number of failed cases.
func (r *TestRun) Failures() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.FailCount
}

// Total returns the number of planned cases.
func (r *TestRun) Total() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.TotalCount
}
