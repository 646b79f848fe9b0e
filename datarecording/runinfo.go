package datarecording

import (
	"os"
	"strings"
	"time"
)

// RunInfoTable is the table that describes the run itself.
const RunInfoTable = "run_info"

// A RunInfo is one property of a run.
type RunInfo struct {
	Property string
	Value    string
}

const timeLayout = "2006-01-02 15:04:05.000000000"

// A RunRecorder records when and how a run happened.
type RunRecorder struct {
	recorder DataRecorder
	entries  []RunInfo
}

// NewRunRecorder creates the run table in the recorder.
func NewRunRecorder(recorder DataRecorder) *RunRecorder {
	recorder.CreateTable(RunInfoTable, RunInfo{})

	return &RunRecorder{recorder: recorder}
}

// Start notes the start time, the command line and the working directory.
func (r *RunRecorder) Start() {
	r.Add("Start Time", time.Now().Format(timeLayout))
	r.Add("Command", strings.Join(os.Args, " "))

	if wd, err := os.Getwd(); err == nil {
		r.Add("Working Directory", wd)
	}
}

// Add notes a property.
func (r *RunRecorder) Add(property, value string) {
	r.entries = append(r.entries, RunInfo{Property: property, Value: value})
}

// End notes the end time and writes everything.
func (r *RunRecorder) End() {
	r.Add("End Time", time.Now().Format(timeLayout))

	for _, e := range r.entries {
		r.recorder.InsertData(RunInfoTable, e)
	}

	r.entries = nil
	r.recorder.Flush()
}
