package sync

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"classroom-sync-service/internal/classroom"
	"classroom-sync-service/internal/config"
	"classroom-sync-service/internal/report"
	"classroom-sync-service/internal/store"
	syncerrors "classroom-sync-service/pkg/errors"
)

type fakeCreds struct {
	err error
}

func (f fakeCreds) Credential(ctx context.Context) (*oauth2.Token, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &oauth2.Token{AccessToken: "test", Expiry: time.Now().Add(time.Hour)}, nil
}

// fakeFetcher serves canned data and can fail the submissions fetch for
// one course to exercise rollback.
type fakeFetcher struct {
	courses     []classroom.Course
	works       map[string][]classroom.CourseWork
	subs        map[string][]classroom.StudentSubmission
	failSubsFor string
	calls       atomic.Int32
}

func (f *fakeFetcher) ListCourses(ctx context.Context) ([]classroom.Course, error) {
	f.calls.Add(1)
	return f.courses, nil
}

func (f *fakeFetcher) ListCourseWork(ctx context.Context, courseID string) ([]classroom.CourseWork, error) {
	f.calls.Add(1)
	return f.works[courseID], nil
}

func (f *fakeFetcher) ListSubmissions(ctx context.Context, courseID, courseWorkID string) ([]classroom.StudentSubmission, error) {
	f.calls.Add(1)
	if courseID == f.failSubsFor {
		return nil, errors.New("remote API returned status 403: permission denied")
	}
	return f.subs[courseWorkID], nil
}

func newTestManager(t *testing.T, st store.Store, creds CredentialSource, fetcher Fetcher) *Manager {
	t.Helper()

	cfg := &config.Config{
		Sync: config.SyncConfig{Workers: 2, RunTimeout: "30s"},
	}
	m := NewManager(cfg, creds, st)
	m.newFetcher = func(ts oauth2.TokenSource) Fetcher { return fetcher }
	return m
}

func grade(v float64) *float64 { return &v }

func classroomFixture() *fakeFetcher {
	hundred := 100.0
	return &fakeFetcher{
		courses: []classroom.Course{
			{ID: "c1", Name: "Mathematics"},
			{ID: "c2", Name: "Art"},
		},
		works: map[string][]classroom.CourseWork{
			"c1": {{ID: "a1", Title: "Quiz 1", MaxPoints: &hundred}},
			"c2": {{ID: "a2", Title: "Collage"}},
		},
		subs: map[string][]classroom.StudentSubmission{
			"a1": {
				{ID: "s1", UserID: "stu1"},
				{ID: "s2", UserID: "stu2", AssignedGrade: grade(88)},
			},
			"a2": {
				{ID: "s3", UserID: "stu1", AssignedGrade: grade(7)},
			},
		},
	}
}

func TestManager_RunSync(t *testing.T) {
	t.Run("successful run records counts", func(t *testing.T) {
		st := newTestStore(t)
		m := newTestManager(t, st, fakeCreds{}, classroomFixture())

		run, err := m.RunSync(context.Background())
		if err != nil {
			t.Fatalf("RunSync() error = %v", err)
		}
		if run.Status != store.RunStatusSuccess {
			t.Errorf("Status = %q, want success", run.Status)
		}
		if run.Courses != 2 || run.Assignments != 2 || run.Submissions != 3 {
			t.Errorf("counts = (%d, %d, %d), want (2, 2, 3)", run.Courses, run.Assignments, run.Submissions)
		}
		if len(run.Warnings) != 0 {
			t.Errorf("warnings = %v, want none", run.Warnings)
		}
	})

	t.Run("sync is idempotent", func(t *testing.T) {
		st := newTestStore(t)
		m := newTestManager(t, st, fakeCreds{}, classroomFixture())
		ctx := context.Background()

		first, err := m.RunSync(ctx)
		if err != nil {
			t.Fatalf("first RunSync() error = %v", err)
		}
		second, err := m.RunSync(ctx)
		if err != nil {
			t.Fatalf("second RunSync() error = %v", err)
		}

		if first.Courses != second.Courses ||
			first.Assignments != second.Assignments ||
			first.Submissions != second.Submissions {
			t.Errorf("counts differ between runs: %+v vs %+v", first, second)
		}

		rows, err := st.ReportRows(ctx, "")
		if err != nil {
			t.Fatalf("ReportRows() error = %v", err)
		}
		if len(rows) != 3 {
			t.Errorf("got %d rows after two syncs, want 3 (no duplicates)", len(rows))
		}
	})

	t.Run("non-transient failure rolls back the whole run", func(t *testing.T) {
		st := newTestStore(t)
		fetcher := classroomFixture()
		fetcher.failSubsFor = "c2"
		m := newTestManager(t, st, fakeCreds{}, fetcher)
		ctx := context.Background()

		run, err := m.RunSync(ctx)
		if err == nil {
			t.Fatal("RunSync() error = nil, want error")
		}
		if run.Status != store.RunStatusFailed {
			t.Errorf("Status = %q, want failed", run.Status)
		}
		// The failure names the resource kind and course in flight.
		if !strings.Contains(err.Error(), "submissions") || !strings.Contains(err.Error(), "c2") {
			t.Errorf("error %q should name the kind and course", err)
		}

		// Nothing from the run is visible, including the course that
		// fetched cleanly.
		rows, err := st.ReportRows(ctx, "")
		if err != nil {
			t.Fatalf("ReportRows() error = %v", err)
		}
		if len(rows) != 0 {
			t.Errorf("got %d rows after failed run, want 0", len(rows))
		}
		last, err := st.LastSuccessfulRun(ctx)
		if err != nil {
			t.Fatalf("LastSuccessfulRun() error = %v", err)
		}
		if last != nil {
			t.Errorf("LastSuccessfulRun() = %+v, want nil", last)
		}
	})

	t.Run("zero courses is a successful empty run", func(t *testing.T) {
		st := newTestStore(t)
		m := newTestManager(t, st, fakeCreds{}, &fakeFetcher{})

		run, err := m.RunSync(context.Background())
		if err != nil {
			t.Fatalf("RunSync() error = %v", err)
		}
		if run.Status != store.RunStatusSuccess {
			t.Errorf("Status = %q, want success", run.Status)
		}
		if run.Courses != 0 {
			t.Errorf("Courses = %d, want 0", run.Courses)
		}
	})

	t.Run("no credential aborts before any fetch", func(t *testing.T) {
		st := newTestStore(t)
		fetcher := classroomFixture()
		m := newTestManager(t, st, fakeCreds{err: syncerrors.ErrReauthRequired}, fetcher)

		run, err := m.RunSync(context.Background())
		if !IsAuthError(err) {
			t.Fatalf("error = %v, want auth error", err)
		}
		if run.Status != store.RunStatusFailed {
			t.Errorf("Status = %q, want failed", run.Status)
		}
		if got := fetcher.calls.Load(); got != 0 {
			t.Errorf("fetch calls = %d, want 0", got)
		}
	})

	t.Run("concurrent trigger is rejected while running", func(t *testing.T) {
		st := newTestStore(t)
		m := newTestManager(t, st, fakeCreds{}, classroomFixture())

		m.runMu.Lock()
		defer m.runMu.Unlock()

		_, err := m.RunSync(context.Background())
		if !errors.Is(err, syncerrors.ErrSyncRunning) {
			t.Errorf("error = %v, want ErrSyncRunning", err)
		}
	})

	t.Run("validation warnings survive on the run without failing it", func(t *testing.T) {
		st := newTestStore(t)
		fetcher := classroomFixture()
		fetcher.works["c1"] = append(fetcher.works["c1"], classroom.CourseWork{ID: "a9", Title: ""})
		m := newTestManager(t, st, fakeCreds{}, fetcher)

		run, err := m.RunSync(context.Background())
		if err != nil {
			t.Fatalf("RunSync() error = %v", err)
		}
		if run.Status != store.RunStatusSuccess {
			t.Errorf("Status = %q, want success", run.Status)
		}
		if len(run.Warnings) != 1 {
			t.Errorf("warnings = %v, want exactly one", run.Warnings)
		}
	})
}

// End-to-end: one sync then a report request, per the canonical scenario.
func TestSyncThenReport(t *testing.T) {
	st := newTestStore(t)
	hundred := 100.0
	fetcher := &fakeFetcher{
		courses: []classroom.Course{{ID: "c1", Name: "Mathematics"}},
		works: map[string][]classroom.CourseWork{
			"c1": {{ID: "a1", Title: "Quiz 1", MaxPoints: &hundred}},
		},
		subs: map[string][]classroom.StudentSubmission{
			"a1": {{ID: "s1", UserID: "stu1"}},
		},
	}
	m := newTestManager(t, st, fakeCreds{}, fetcher)
	ctx := context.Background()

	if _, err := m.RunSync(ctx); err != nil {
		t.Fatalf("RunSync() error = %v", err)
	}

	facts, err := report.NewAssembler(st).FactsForStudent(ctx, "stu1")
	if err != nil {
		t.Fatalf("FactsForStudent() error = %v", err)
	}
	if len(facts.Courses) != 1 || facts.Courses[0].Course != "Mathematics" {
		t.Fatalf("courses = %+v, want one Mathematics entry", facts.Courses)
	}
	entries := facts.Courses[0].Assignments
	if len(entries) != 1 {
		t.Fatalf("got %d assignment entries, want 1", len(entries))
	}
	if entries[0].Title != "Quiz 1" || entries[0].Score != nil || entries[0].MaxPoints != 100 {
		t.Errorf("entry = %+v, want (Quiz 1, ungraded, 100)", entries[0])
	}
}
