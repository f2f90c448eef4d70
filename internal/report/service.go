package report

import (
	"context"

	"go.uber.org/zap"

	"classroom-sync-service/internal/config"
	"classroom-sync-service/internal/logger"
	"classroom-sync-service/internal/store"
	syncerrors "classroom-sync-service/pkg/errors"
)

// Result is one student's narrative, or an error marker when generation
// failed for that student alone.
type Result struct {
	StudentID string `json:"studentId"`
	Narrative string `json:"narrative,omitempty"`
	Error     string `json:"error,omitempty"`
}

type Service struct {
	assembler   *Assembler
	narrator    Narrator
	store       store.Store
	schoolLevel string
}

func NewService(cfg config.NarrativeConfig, st store.Store, narrator Narrator) *Service {
	return &Service{
		assembler:   NewAssembler(st),
		narrator:    narrator,
		store:       st,
		schoolLevel: cfg.SchoolLevel,
	}
}

// GenerateForStudent composes the narrative for one student. Requires a
// prior successful sync.
func (s *Service) GenerateForStudent(ctx context.Context, studentID string) (*Result, error) {
	if err := s.requireSync(ctx); err != nil {
		return nil, err
	}

	facts, err := s.assembler.FactsForStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}

	narrative, err := s.narrator.Compose(ctx, *facts, s.schoolLevel)
	if err != nil {
		return nil, err
	}

	return &Result{StudentID: studentID, Narrative: narrative}, nil
}

// GenerateForAll composes narratives for every synced student. One
// student's generation failure is recorded on that student's result and
// does not abort the batch.
func (s *Service) GenerateForAll(ctx context.Context) ([]Result, error) {
	if err := s.requireSync(ctx); err != nil {
		return nil, err
	}

	all, err := s.assembler.FactsForAll(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(all))
	for _, facts := range all {
		narrative, err := s.narrator.Compose(ctx, facts, s.schoolLevel)
		if err != nil {
			logger.Log.Warn("Narrative generation failed for student",
				zap.String("student_id", facts.StudentID),
				zap.Error(err),
			)
			results = append(results, Result{StudentID: facts.StudentID, Error: err.Error()})
			continue
		}
		results = append(results, Result{StudentID: facts.StudentID, Narrative: narrative})
	}
	return results, nil
}

func (s *Service) requireSync(ctx context.Context) error {
	run, err := s.store.LastSuccessfulRun(ctx)
	if err != nil {
		return err
	}
	if run == nil {
		return syncerrors.ErrNoSuccessfulSync
	}
	return nil
}
