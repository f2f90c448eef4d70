package sync

import (
	"context"
	"database/sql"
	"fmt"

	"classroom-sync-service/internal/classroom"
	"classroom-sync-service/internal/store"
	syncerrors "classroom-sync-service/pkg/errors"
)

const defaultMaxPoints = 100

// Reconciler is the only write path into courses, assignments and
// submissions. It is created per run around one transaction; the manager
// guarantees parents are upserted before children.
type Reconciler struct {
	tx       store.Tx
	warnings []syncerrors.ValidationWarning
}

func NewReconciler(tx store.Tx) *Reconciler {
	return &Reconciler{tx: tx}
}

// Warnings returns per-record validation warnings accumulated so far.
func (r *Reconciler) Warnings() []syncerrors.ValidationWarning {
	return r.warnings
}

// UpsertCourse writes one course. Returns false if the record was skipped
// with a warning.
func (r *Reconciler) UpsertCourse(ctx context.Context, c classroom.Course) (bool, error) {
	if c.ID == "" {
		r.warn("course", c.ID, "missing remote id")
		return false, nil
	}
	if c.Name == "" {
		r.warn("course", c.ID, "missing name")
		return false, nil
	}

	err := r.tx.UpsertCourse(ctx, &store.Course{ID: c.ID, Name: c.Name})
	if err != nil {
		return false, fmt.Errorf("upserting course %s: %w", c.ID, err)
	}
	return true, nil
}

// UpsertCourseWork writes one coursework item as an assignment, applying
// the max-points default and due-date normalization.
func (r *Reconciler) UpsertCourseWork(ctx context.Context, courseID string, w classroom.CourseWork) (bool, error) {
	if w.ID == "" {
		r.warn("coursework", w.ID, "missing remote id")
		return false, nil
	}
	if w.Title == "" {
		r.warn("coursework", w.ID, "missing title")
		return false, nil
	}

	maxPoints := float64(defaultMaxPoints)
	if w.MaxPoints != nil {
		maxPoints = *w.MaxPoints
	}
	if maxPoints <= 0 {
		r.warn("coursework", w.ID, fmt.Sprintf("max points must be positive, got %v", maxPoints))
		return false, nil
	}

	err := r.tx.UpsertAssignment(ctx, &store.Assignment{
		ID:        w.ID,
		CourseID:  courseID,
		Title:     w.Title,
		MaxPoints: maxPoints,
		DueDate:   normalizeDueDate(w.DueDate),
	})
	if err != nil {
		return false, fmt.Errorf("upserting assignment %s: %w", w.ID, err)
	}
	return true, nil
}

// UpsertSubmission writes one student submission. An out-of-range score is
// a data-quality warning, not a reason to skip the record.
func (r *Reconciler) UpsertSubmission(ctx context.Context, assignmentID string, maxPoints float64, s classroom.StudentSubmission) (bool, error) {
	if s.ID == "" {
		r.warn("submission", s.ID, "missing remote id")
		return false, nil
	}
	if s.UserID == "" {
		r.warn("submission", s.ID, "missing student id")
		return false, nil
	}

	var score sql.NullFloat64
	if s.AssignedGrade != nil {
		score = sql.NullFloat64{Float64: *s.AssignedGrade, Valid: true}
		if *s.AssignedGrade < 0 || *s.AssignedGrade > maxPoints {
			r.warn("submission", s.ID,
				fmt.Sprintf("score %v outside [0, %v]", *s.AssignedGrade, maxPoints))
		}
	}

	err := r.tx.UpsertSubmission(ctx, &store.Submission{
		ID:           s.ID,
		AssignmentID: assignmentID,
		StudentID:    s.UserID,
		Score:        score,
	})
	if err != nil {
		return false, fmt.Errorf("upserting submission %s: %w", s.ID, err)
	}
	return true, nil
}

func (r *Reconciler) warn(kind, remoteID, message string) {
	r.warnings = append(r.warnings, syncerrors.ValidationWarning{
		Kind:     kind,
		RemoteID: remoteID,
		Message:  message,
	})
}

// normalizeDueDate converts the remote structured date to an ISO date
// string, or absent if any component is missing.
func normalizeDueDate(d *classroom.DueDate) sql.NullString {
	if d == nil || d.Year <= 0 || d.Month <= 0 || d.Day <= 0 {
		return sql.NullString{}
	}
	return sql.NullString{
		String: fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day),
		Valid:  true,
	}
}
