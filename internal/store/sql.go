package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"classroom-sync-service/internal/config"
	"classroom-sync-service/internal/logger"
	"classroom-sync-service/internal/store/migrations"
)

// dialect holds the driver-specific upsert statements. Everything else in
// this store is shared SQL that both sqlite and mysql accept.
type dialect struct {
	name             string
	upsertCourse     string
	upsertAssignment string
	upsertSubmission string
}

var sqliteDialect = dialect{
	name: "sqlite",
	upsertCourse: `INSERT INTO courses (id, name, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, updated_at = CURRENT_TIMESTAMP`,
	upsertAssignment: `INSERT INTO assignments (id, course_id, title, max_points, due_date) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET course_id = excluded.course_id, title = excluded.title,
		max_points = excluded.max_points, due_date = excluded.due_date`,
	upsertSubmission: `INSERT INTO submissions (id, assignment_id, student_id, score) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET assignment_id = excluded.assignment_id,
		student_id = excluded.student_id, score = excluded.score`,
}

var mysqlDialect = dialect{
	name: "mysql",
	upsertCourse: `INSERT INTO courses (id, name, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON DUPLICATE KEY UPDATE name = VALUES(name), updated_at = CURRENT_TIMESTAMP`,
	upsertAssignment: `INSERT INTO assignments (id, course_id, title, max_points, due_date) VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE course_id = VALUES(course_id), title = VALUES(title),
		max_points = VALUES(max_points), due_date = VALUES(due_date)`,
	upsertSubmission: `INSERT INTO submissions (id, assignment_id, student_id, score) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE assignment_id = VALUES(assignment_id),
		student_id = VALUES(student_id), score = VALUES(score)`,
}

type SQLStore struct {
	db *sql.DB
	d  dialect
}

func NewStore(cfg config.StorageConfig) (*SQLStore, error) {
	switch cfg.Driver {
	case "sqlite":
		return newSQLiteStore(cfg.FilePath)
	case "mysql":
		return newMySQLStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

func newSQLiteStore(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// One connection: keeps in-memory databases coherent and serializes
	// the write path.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := migrations.MigrateUp(db, "sqlite"); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLStore{db: db, d: sqliteDialect}, nil
}

func newMySQLStore(cfg config.StorageConfig) (*SQLStore, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql connection: %w", err)
	}

	// Retry loop for Ping
	maxRetries := 30
	for i := 0; i < maxRetries; i++ {
		err = db.Ping()
		if err == nil {
			break
		}
		logger.Log.Info("Waiting for database...", zap.Error(err), zap.Int("attempt", i+1))
		time.Sleep(1 * time.Second)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping mysql after retries: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := migrations.MigrateUp(db, "mysql"); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLStore{db: db, d: mysqlDialect}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// WithTx executes fn within a transaction.
func (s *SQLStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(&sqlTx{tx: tx, d: s.d}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx err: %v, rb err: %v", err, rbErr)
		}
		return err
	}

	return tx.Commit()
}

type sqlTx struct {
	tx *sql.Tx
	d  dialect
}

func (t *sqlTx) UpsertCourse(ctx context.Context, course *Course) error {
	_, err := t.tx.ExecContext(ctx, t.d.upsertCourse, course.ID, course.Name)
	return err
}

func (t *sqlTx) UpsertAssignment(ctx context.Context, assignment *Assignment) error {
	_, err := t.tx.ExecContext(ctx, t.d.upsertAssignment,
		assignment.ID,
		assignment.CourseID,
		assignment.Title,
		assignment.MaxPoints,
		assignment.DueDate,
	)
	return err
}

func (t *sqlTx) UpsertSubmission(ctx context.Context, submission *Submission) error {
	_, err := t.tx.ExecContext(ctx, t.d.upsertSubmission,
		submission.ID,
		submission.AssignmentID,
		submission.StudentID,
		submission.Score,
	)
	return err
}

func (s *SQLStore) CreateSyncRun(ctx context.Context, run *SyncRun) error {
	warnings, err := json.Marshal(run.Warnings)
	if err != nil {
		return err
	}

	query := `INSERT INTO sync_runs (id, started_at, completed_at, courses, assignments, submissions, warnings, status, error_message)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		run.ID,
		run.StartedAt,
		run.CompletedAt,
		run.Courses,
		run.Assignments,
		run.Submissions,
		string(warnings),
		run.Status,
		run.ErrorMessage,
	)
	return err
}

func (s *SQLStore) UpdateSyncRun(ctx context.Context, run *SyncRun) error {
	warnings, err := json.Marshal(run.Warnings)
	if err != nil {
		return err
	}

	query := `UPDATE sync_runs SET completed_at = ?, courses = ?, assignments = ?, submissions = ?, warnings = ?, status = ?, error_message = ?
			  WHERE id = ?`

	_, err = s.db.ExecContext(ctx, query,
		run.CompletedAt,
		run.Courses,
		run.Assignments,
		run.Submissions,
		string(warnings),
		run.Status,
		run.ErrorMessage,
		run.ID,
	)
	return err
}

const syncRunColumns = `id, started_at, completed_at, courses, assignments, submissions, warnings, status, error_message`

func (s *SQLStore) ListSyncRuns(ctx context.Context, limit, offset int) ([]*SyncRun, error) {
	query := `SELECT ` + syncRunColumns + ` FROM sync_runs ORDER BY started_at DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*SyncRun
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLStore) LastSuccessfulRun(ctx context.Context) (*SyncRun, error) {
	query := `SELECT ` + syncRunColumns + ` FROM sync_runs WHERE status = ? ORDER BY completed_at DESC LIMIT 1`

	rows, err := s.db.QueryContext(ctx, query, RunStatusSuccess)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanSyncRun(rows)
}

func scanSyncRun(rows *sql.Rows) (*SyncRun, error) {
	var (
		run      SyncRun
		warnings string
	)
	err := rows.Scan(
		&run.ID,
		&run.StartedAt,
		&run.CompletedAt,
		&run.Courses,
		&run.Assignments,
		&run.Submissions,
		&warnings,
		&run.Status,
		&run.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(warnings), &run.Warnings); err != nil {
		return nil, fmt.Errorf("failed to decode run warnings: %w", err)
	}
	return &run, nil
}

func (s *SQLStore) ReportRows(ctx context.Context, studentID string) ([]ReportRow, error) {
	query := `SELECT s.student_id, c.name, a.title, s.score, a.max_points
			  FROM submissions s
			  JOIN assignments a ON s.assignment_id = a.id
			  JOIN courses c ON a.course_id = c.id`

	args := []interface{}{}
	if studentID != "" {
		query += ` WHERE s.student_id = ?`
		args = append(args, studentID)
	}
	query += ` ORDER BY s.student_id, c.name, a.title`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ReportRow
	for rows.Next() {
		var r ReportRow
		err := rows.Scan(&r.StudentID, &r.CourseName, &r.AssignmentTitle, &r.Score, &r.MaxPoints)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}
