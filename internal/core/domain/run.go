package domain

import (
	"fmt"
	"time"
)

// RunMode selects whether a run honours the persisted cursor.
type RunMode string

// Run modes.
const (
	// RunModeFull ignores the cursor and re-fetches from the resource origin.
	RunModeFull RunMode = "full"

	// RunModeIncremental fetches only what changed since the cursor.
	RunModeIncremental RunMode = "incremental"
)

// IsValid returns true if the run mode is recognised.
func (m RunMode) IsValid() bool {
	return m == RunModeFull || m == RunModeIncremental
}

// ParseRunMode parses a run mode, defaulting to incremental for "".
func ParseRunMode(s string) (RunMode, error) {
	if s == "" {
		return RunModeIncremental, nil
	}
	m := RunMode(s)
	if !m.IsValid() {
		return "", fmt.Errorf("%w: run mode %q", ErrInvalidInput, s)
	}
	return m, nil
}

// RunState is a state of the importer state machine.
type RunState string

// Importer states.
const (
	RunStateIdle       RunState = "idle"
	RunStateFetching   RunState = "fetching"
	RunStateParsing    RunState = "parsing"
	RunStateProcessing RunState = "processing"
	RunStateCompleted  RunState = "completed"
	RunStateFailed     RunState = "failed"
)

// Terminal returns true for Completed and Failed.
func (s RunState) Terminal() bool {
	return s == RunStateCompleted || s == RunStateFailed
}

// OutcomeKind is the result of reconciling one record.
type OutcomeKind string

// Reconciliation outcomes.
const (
	OutcomeCreated   OutcomeKind = "created"
	OutcomeUpdated   OutcomeKind = "updated"
	OutcomeUnchanged OutcomeKind = "unchanged"
	OutcomeRejected  OutcomeKind = "rejected"
)

// Outcome is the result of reconciling one record.
type Outcome struct {
	Kind OutcomeKind

	// Reason explains a rejection.
	Reason string

	// Record is the written or matched local record, nil when rejected.
	Record *LocalRecord
}

// Rejected builds a rejected outcome.
func Rejected(format string, args ...any) Outcome {
	return Outcome{Kind: OutcomeRejected, Reason: fmt.Sprintf(format, args...)}
}

// RunCounts are the per-run counters accumulated page by page.
type RunCounts struct {
	PagesFetched int `json:"pagesFetched"`
	RecordsSeen  int `json:"recordsSeen"`
	Created      int `json:"created"`
	Updated      int `json:"updated"`
	Unchanged    int `json:"unchanged"`
	Rejected     int `json:"rejected"`
	Failed       int `json:"failed"`
	Retries      int `json:"retries"`
}

// Record adds one reconciliation outcome.
func (c *RunCounts) Record(kind OutcomeKind) {
	switch kind {
	case OutcomeCreated:
		c.Created++
	case OutcomeUpdated:
		c.Updated++
	case OutcomeUnchanged:
		c.Unchanged++
	case OutcomeRejected:
		c.Rejected++
	}
}

// Processed is the number of records that reached a non-rejected outcome.
func (c RunCounts) Processed() int {
	return c.Created + c.Updated + c.Unchanged
}

// RunSummary is the operator-facing report of one importer run.
type RunSummary struct {
	RunID      string
	ImporterID string
	Mode       RunMode
	State      RunState
	Started    time.Time
	Finished   time.Time

	RunCounts

	// TerminalError is the error that failed the run, empty on success.
	TerminalError string

	// ErrorClass classifies TerminalError.
	ErrorClass ErrorClass
}

// Succeeded returns true if the run completed.
func (s RunSummary) Succeeded() bool {
	return s.State == RunStateCompleted
}

// Duration is the wall time of the run.
func (s RunSummary) Duration() time.Duration {
	if s.Finished.IsZero() {
		return 0
	}
	return s.Finished.Sub(s.Started)
}

// Fail marks the summary as failed with err.
func (s *RunSummary) Fail(err error, at time.Time) {
	s.State = RunStateFailed
	s.Finished = at
	s.TerminalError = err.Error()
	s.ErrorClass = ClassifyError(err)
}

// RunResult is what an importer run hands back to the coordinator.
type RunResult struct {
	Summary RunSummary

	// NextCursor is the cursor to persist; only meaningful when the run completed.
	NextCursor SyncCursor
}
