package domain

import "time"

// SyncCursor is the persisted progress marker of one importer.
type SyncCursor struct {
	// ImporterID is the key of the cursor.
	ImporterID string

	// Watermark is the upstream time up to which records have been fetched.
	Watermark time.Time

	// LastToken is the last upstream continuation token, if the resource uses one.
	LastToken string

	// LastSuccessAt is when the last run completed.
	LastSuccessAt time.Time

	// LastAttemptAt is when the last run finished, successfully or not.
	LastAttemptAt time.Time

	// LastError is the terminal error of the last failed run.
	LastError string

	// LastErrorClass classifies LastError.
	LastErrorClass ErrorClass

	// LastCounts are the counters of the last run.
	LastCounts RunCounts
}

// IsZero returns true if the importer has never completed a run.
func (c SyncCursor) IsZero() bool {
	return c.Watermark.IsZero() && c.LastToken == "" && c.LastSuccessAt.IsZero()
}

// Advance returns the cursor after a completed run. The watermark never
// moves backwards.
func (c SyncCursor) Advance(next SyncCursor, summary RunSummary) SyncCursor {
	out := c
	out.ImporterID = summary.ImporterID
	if next.Watermark.After(out.Watermark) {
		out.Watermark = next.Watermark
	}
	if next.LastToken != "" {
		out.LastToken = next.LastToken
	}
	out.LastSuccessAt = summary.Finished
	out.LastAttemptAt = summary.Finished
	out.LastError = ""
	out.LastErrorClass = ErrorClassNone
	out.LastCounts = summary.RunCounts
	return out
}

// RecordFailure returns the cursor after a failed run. Watermark and token
// are untouched so the next run resumes from the same point.
func (c SyncCursor) RecordFailure(summary RunSummary) SyncCursor {
	out := c
	out.ImporterID = summary.ImporterID
	out.LastAttemptAt = summary.Finished
	out.LastError = summary.TerminalError
	out.LastErrorClass = summary.ErrorClass
	out.LastCounts = summary.RunCounts
	return out
}
