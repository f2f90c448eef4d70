package sync

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"classroom-sync-service/internal/classroom"
	"classroom-sync-service/internal/config"
	"classroom-sync-service/internal/logger"
	"classroom-sync-service/internal/store"
	syncerrors "classroom-sync-service/pkg/errors"
)

// Fetcher is the slice of the classroom client the manager drives.
type Fetcher interface {
	ListCourses(ctx context.Context) ([]classroom.Course, error)
	ListCourseWork(ctx context.Context, courseID string) ([]classroom.CourseWork, error)
	ListSubmissions(ctx context.Context, courseID, courseWorkID string) ([]classroom.StudentSubmission, error)
}

// CredentialSource yields a usable credential or ErrReauthRequired.
type CredentialSource interface {
	Credential(ctx context.Context) (*oauth2.Token, error)
}

// Manager orchestrates one sync pass: credential, fetch, reconcile,
// commit-or-rollback. Runs are serialized; a second trigger while one is
// in flight is rejected.
type Manager struct {
	cfg        *config.Config
	creds      CredentialSource
	store      store.Store
	newFetcher func(ts oauth2.TokenSource) Fetcher

	runMu   sync.Mutex // held for the duration of a run
	stateMu sync.Mutex
	status  string
	lastRun *store.SyncRun
}

func NewManager(cfg *config.Config, creds CredentialSource, st store.Store) *Manager {
	return &Manager{
		cfg:    cfg,
		creds:  creds,
		store:  st,
		status: "idle",
		newFetcher: func(ts oauth2.TokenSource) Fetcher {
			return classroom.NewClient(cfg.Classroom, ts)
		},
	}
}

// courseData is one course's fetched subtree, held until the write phase.
type courseData struct {
	course classroom.Course
	works  []workData
}

type workData struct {
	work classroom.CourseWork
	subs []classroom.StudentSubmission
}

// RunSync executes one full synchronization pass and returns its audit
// record. The record is persisted even for failed runs; the data
// transaction is all-or-nothing.
func (m *Manager) RunSync(ctx context.Context) (*store.SyncRun, error) {
	if !m.runMu.TryLock() {
		return nil, syncerrors.ErrSyncRunning
	}
	defer m.runMu.Unlock()

	m.setStatus("running")
	defer m.setStatus("idle")

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Sync.GetRunTimeout())
	defer cancel()

	run := &store.SyncRun{
		ID:        uuid.New().String(),
		StartedAt: time.Now().UTC(),
		Status:    store.RunStatusRunning,
	}
	if err := m.store.CreateSyncRun(ctx, run); err != nil {
		return nil, err
	}

	err := m.doRun(ctx, run)
	run.CompletedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	if err != nil {
		run.Status = store.RunStatusFailed
		run.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
		logger.Log.Error("Sync run failed", zap.String("run_id", run.ID), zap.Error(err))
	} else {
		run.Status = store.RunStatusSuccess
		logger.Log.Info("Sync run completed",
			zap.String("run_id", run.ID),
			zap.Int("courses", run.Courses),
			zap.Int("assignments", run.Assignments),
			zap.Int("submissions", run.Submissions),
			zap.Int("warnings", len(run.Warnings)),
		)
	}

	if updateErr := m.store.UpdateSyncRun(context.WithoutCancel(ctx), run); updateErr != nil {
		logger.Log.Error("Failed to record sync run", zap.Error(updateErr))
	}

	m.setLastRun(run)
	return run, err
}

func (m *Manager) doRun(ctx context.Context, run *store.SyncRun) error {
	token, err := m.creds.Credential(ctx)
	if err != nil {
		return err
	}
	fetcher := m.newFetcher(oauth2.StaticTokenSource(token))

	courses, err := fetcher.ListCourses(ctx)
	if err != nil {
		return syncerrors.FetchError{Kind: "courses", Err: err}
	}
	if len(courses) == 0 {
		logger.Log.Info("No courses found, nothing to sync")
		return nil
	}

	// Fetch phase. Course subtrees are independent, so they are fetched
	// through a bounded group; writes happen later on one transaction.
	fetched := make([]courseData, len(courses))
	g, gctx := errgroup.WithContext(ctx)
	workers := m.cfg.Sync.Workers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)

	for i, course := range courses {
		i, course := i, course
		g.Go(func() error {
			data, err := m.fetchCourse(gctx, fetcher, course)
			if err != nil {
				return err
			}
			fetched[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Write phase: every upsert for the run shares one transaction, so a
	// failure here leaves no partial course sync behind.
	return m.store.WithTx(ctx, func(tx store.Tx) error {
		rec := NewReconciler(tx)
		defer func() {
			for _, w := range rec.Warnings() {
				run.Warnings = append(run.Warnings, w.String())
			}
		}()

		for _, data := range fetched {
			ok, err := rec.UpsertCourse(ctx, data.course)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			run.Courses++

			for _, wd := range data.works {
				ok, err := rec.UpsertCourseWork(ctx, data.course.ID, wd.work)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
				run.Assignments++

				maxPoints := float64(defaultMaxPoints)
				if wd.work.MaxPoints != nil {
					maxPoints = *wd.work.MaxPoints
				}
				for _, sub := range wd.subs {
					ok, err := rec.UpsertSubmission(ctx, wd.work.ID, maxPoints, sub)
					if err != nil {
						return err
					}
					if ok {
						run.Submissions++
					}
				}
			}
		}
		return nil
	})
}

func (m *Manager) fetchCourse(ctx context.Context, fetcher Fetcher, course classroom.Course) (courseData, error) {
	logger.Log.Debug("Fetching course", zap.String("course_id", course.ID), zap.String("name", course.Name))

	works, err := fetcher.ListCourseWork(ctx, course.ID)
	if err != nil {
		return courseData{}, syncerrors.FetchError{Kind: "coursework", CourseID: course.ID, Err: err}
	}

	data := courseData{course: course, works: make([]workData, 0, len(works))}
	for _, work := range works {
		subs, err := fetcher.ListSubmissions(ctx, course.ID, work.ID)
		if err != nil {
			return courseData{}, syncerrors.FetchError{Kind: "submissions", CourseID: course.ID, Err: err}
		}
		data.works = append(data.works, workData{work: work, subs: subs})
	}
	return data, nil
}

func (m *Manager) GetStatus() string {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.status
}

func (m *Manager) LastRun() *store.SyncRun {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.lastRun
}

func (m *Manager) setStatus(status string) {
	m.stateMu.Lock()
	m.status = status
	m.stateMu.Unlock()
}

func (m *Manager) setLastRun(run *store.SyncRun) {
	m.stateMu.Lock()
	m.lastRun = run
	m.stateMu.Unlock()
}

// IsAuthError reports whether a run failed because re-authentication is
// required.
func IsAuthError(err error) bool {
	return errors.Is(err, syncerrors.ErrReauthRequired)
}
