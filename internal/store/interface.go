package store

import (
	"context"
)

// Tx is the transactional write path. All course/assignment/submission
// writes for one sync run go through a single Tx so the run commits or
// rolls back as a whole.
type Tx interface {
	UpsertCourse(ctx context.Context, course *Course) error
	UpsertAssignment(ctx context.Context, assignment *Assignment) error
	UpsertSubmission(ctx context.Context, submission *Submission) error
}

type Store interface {
	// WithTx runs fn inside a transaction; a non-nil error rolls back.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Sync run audit records, written outside the data transaction so a
	// failed run still leaves a trace.
	CreateSyncRun(ctx context.Context, run *SyncRun) error
	UpdateSyncRun(ctx context.Context, run *SyncRun) error
	ListSyncRuns(ctx context.Context, limit, offset int) ([]*SyncRun, error)
	LastSuccessfulRun(ctx context.Context) (*SyncRun, error)

	// Reads for report assembly. An empty studentID selects all students.
	ReportRows(ctx context.Context, studentID string) ([]ReportRow, error)

	Close() error
}
