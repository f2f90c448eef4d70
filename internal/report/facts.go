package report

import (
	"context"

	"classroom-sync-service/internal/store"
	syncerrors "classroom-sync-service/pkg/errors"
)

// StudentFacts is the derived, report-ready aggregation for one student.
// It is recomputed from committed rows on every request, never persisted.
type StudentFacts struct {
	StudentID string        `json:"studentId"`
	Courses   []CourseFacts `json:"courses"`
}

// CourseFacts holds one course's assignment entries, ordered by title.
// Course entries themselves are ordered by course name.
type CourseFacts struct {
	Course      string           `json:"course"`
	Assignments []AssignmentFact `json:"assignments"`
}

type AssignmentFact struct {
	Title     string   `json:"title"`
	Score     *float64 `json:"score,omitempty"` // nil = ungraded
	MaxPoints float64  `json:"maxPoints"`
}

// Assembler reads the committed snapshot and groups it per student. Pure
// read and transform; no remote calls, no writes.
type Assembler struct {
	store store.Store
}

func NewAssembler(st store.Store) *Assembler {
	return &Assembler{store: st}
}

func (a *Assembler) FactsForStudent(ctx context.Context, studentID string) (*StudentFacts, error) {
	rows, err := a.store.ReportRows(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, syncerrors.ErrStudentNotFound
	}
	facts := group(rows)
	return &facts[0], nil
}

func (a *Assembler) FactsForAll(ctx context.Context) ([]StudentFacts, error) {
	rows, err := a.store.ReportRows(ctx, "")
	if err != nil {
		return nil, err
	}
	return group(rows), nil
}

// group folds ordered report rows (student, course name, assignment title)
// into per-student facts, preserving that order.
func group(rows []store.ReportRow) []StudentFacts {
	var result []StudentFacts
	for _, row := range rows {
		if len(result) == 0 || result[len(result)-1].StudentID != row.StudentID {
			result = append(result, StudentFacts{StudentID: row.StudentID})
		}
		student := &result[len(result)-1]

		if len(student.Courses) == 0 || student.Courses[len(student.Courses)-1].Course != row.CourseName {
			student.Courses = append(student.Courses, CourseFacts{Course: row.CourseName})
		}
		course := &student.Courses[len(student.Courses)-1]

		fact := AssignmentFact{
			Title:     row.AssignmentTitle,
			MaxPoints: row.MaxPoints,
		}
		if row.Score.Valid {
			score := row.Score.Float64
			fact.Score = &score
		}
		course.Assignments = append(course.Assignments, fact)
	}
	return result
}
