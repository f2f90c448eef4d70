package store

import (
	"database/sql"
	"time"
)

// Course, Assignment and Submission mirror the remote records keyed by
// remote-assigned IDs. The sync pipeline never deletes rows; the remote
// API has no reliable tombstone signal.

type Course struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	UpdatedAt time.Time `db:"updated_at"`
}

type Assignment struct {
	ID        string         `db:"id"`
	CourseID  string         `db:"course_id"`
	Title     string         `db:"title"`
	MaxPoints float64        `db:"max_points"`
	DueDate   sql.NullString `db:"due_date"` // ISO date, absent if the remote omitted it
}

type Submission struct {
	ID           string          `db:"id"`
	AssignmentID string          `db:"assignment_id"`
	StudentID    string          `db:"student_id"`
	Score        sql.NullFloat64 `db:"score"` // NULL = ungraded
}

// SyncRun is the audit record of one orchestration pass.
type SyncRun struct {
	ID           string         `db:"id"`
	StartedAt    time.Time      `db:"started_at"`
	CompletedAt  sql.NullTime   `db:"completed_at"`
	Courses      int            `db:"courses"`
	Assignments  int            `db:"assignments"`
	Submissions  int            `db:"submissions"`
	Warnings     []string       `db:"-"`
	Status       string         `db:"status"` // running | success | failed
	ErrorMessage sql.NullString `db:"error_message"`
}

const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// ReportRow is one submission joined to its assignment and course, the raw
// material the report assembler groups into per-student facts.
type ReportRow struct {
	StudentID       string
	CourseName      string
	AssignmentTitle string
	Score           sql.NullFloat64
	MaxPoints       float64
}
