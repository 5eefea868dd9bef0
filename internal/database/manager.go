package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	pkgdatabase "proctor/pkg/database"
	"proctor/pkg/interfaces"
	"proctor/pkg/types"
)

// Manager wraps the SQLite store behind typed read and write operations.
// Reads go straight to the pool; writes are funneled through a single
// goroutine, which is the pattern SQLite rewards under WAL.
type Manager struct {
	db           *sql.DB
	config       *pkgdatabase.Config
	logger       *zap.Logger
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies connection tuning, and starts
// the writer goroutine.
func NewManager(config *pkgdatabase.Config, logger *zap.Logger) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := pkgdatabase.ApplyOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		logger:       logger,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				m.logger.Warn("database write failed, retrying in 5 seconds", zap.Error(err))
				time.Sleep(5 * time.Second)
				err = op.operation(m.db)
				if err != nil {
					m.logger.Error("database write failed after retry", zap.Error(err))
				}
			}
			op.result <- err

		case <-m.shutdown:
			m.logger.Info("database write loop shutting down")
			return
		}
	}
}

func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("database manager is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return fmt.Errorf("database manager is shutting down")
	}
}

// GetDB exposes the pool for migrations and schema validation.
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// HealthCheck verifies database connectivity.
func (m *Manager) HealthCheck(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

// Close stops the writer goroutine and closes the pool.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()
	return m.db.Close()
}

// GetStudent returns the student record for an ID.
func (m *Manager) GetStudent(ctx context.Context, studentID string) (*types.StudentRecord, error) {
	var record types.StudentRecord
	err := m.db.QueryRowContext(ctx,
		`SELECT student_id, first_name, last_name FROM students WHERE student_id = ?`,
		studentID,
	).Scan(&record.StudentID, &record.FirstName, &record.LastName)
	if err == sql.ErrNoRows {
		return nil, interfaces.ErrStudentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query student %s: %w", studentID, err)
	}
	return &record, nil
}

// GetExam returns the catalog entry for an exam ID.
func (m *Manager) GetExam(ctx context.Context, examID string) (*types.Exam, error) {
	var exam types.Exam
	err := m.db.QueryRowContext(ctx,
		`SELECT exam_id, course_id, kind, label FROM exams WHERE exam_id = ?`,
		examID,
	).Scan(&exam.ExamID, &exam.CourseID, &exam.Kind, &exam.Label)
	if err == sql.ErrNoRows {
		return nil, interfaces.ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query exam %s: %w", examID, err)
	}
	return &exam, nil
}

// ListCourseExams returns the course exams a student may attempt: one row
// per exam in a course the student is registered for whose testing window
// contains now.
func (m *Manager) ListCourseExams(ctx context.Context, studentID string, now time.Time) ([]types.ExamEntry, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT e.exam_id, e.label
		FROM exams e
		JOIN course_registrations r ON r.course_id = e.course_id
		WHERE e.kind = 'course'
		  AND r.student_id = ?
		  AND r.open_from <= ?
		  AND r.open_until >= ?
		ORDER BY e.course_id, e.exam_id`,
		studentID, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query course exams for %s: %w", studentID, err)
	}
	defer rows.Close()

	return scanExamEntries(rows)
}

// ListTutorialExams returns the tutorial exams open to a student. Tutorial
// exams carry no registration requirement; any student with a record may
// attempt them.
func (m *Manager) ListTutorialExams(ctx context.Context, studentID string) ([]types.ExamEntry, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT exam_id, label FROM exams WHERE kind = 'tutorial' ORDER BY exam_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tutorial exams for %s: %w", studentID, err)
	}
	defer rows.Close()

	return scanExamEntries(rows)
}

// placementMaxAttempts is the number of proctored placement attempts a
// student is allowed per placement exam.
const placementMaxAttempts = 2

// ListPlacementExams returns the placement exams a student still has
// attempts remaining on, each annotated with the remaining count.
func (m *Manager) ListPlacementExams(ctx context.Context, studentID string) ([]types.ExamEntry, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT e.exam_id, e.label, COUNT(p.exam_id) AS used
		FROM exams e
		LEFT JOIN placement_attempts p
			ON p.exam_id = e.exam_id AND p.student_id = ?
		WHERE e.kind = 'placement'
		GROUP BY e.exam_id, e.label
		HAVING used < ?
		ORDER BY e.exam_id`,
		studentID, placementMaxAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to query placement exams for %s: %w", studentID, err)
	}
	defer rows.Close()

	var entries []types.ExamEntry
	for rows.Next() {
		var entry types.ExamEntry
		var used int
		if err := rows.Scan(&entry.ID, &entry.Label, &used); err != nil {
			return nil, fmt.Errorf("failed to scan placement exam row: %w", err)
		}
		remaining := placementMaxAttempts - used
		if remaining == 1 {
			entry.Note = "1 attempt remaining"
		} else {
			entry.Note = fmt.Sprintf("%d attempts remaining", remaining)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanExamEntries(rows *sql.Rows) ([]types.ExamEntry, error) {
	var entries []types.ExamEntry
	for rows.Next() {
		var entry types.ExamEntry
		if err := rows.Scan(&entry.ID, &entry.Label); err != nil {
			return nil, fmt.Errorf("failed to scan exam row: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// GetLoginSession returns a login session by token.
func (m *Manager) GetLoginSession(ctx context.Context, token string) (*types.LoginSession, error) {
	var ls types.LoginSession
	err := m.db.QueryRowContext(ctx,
		`SELECT token, student_id, expires_at FROM login_sessions WHERE token = ?`,
		token,
	).Scan(&ls.Token, &ls.StudentID, &ls.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, interfaces.ErrInvalidLoginSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query login session: %w", err)
	}
	return &ls, nil
}

// CreateLoginSession stores a new login session token.
func (m *Manager) CreateLoginSession(ctx context.Context, ls *types.LoginSession) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO login_sessions (token, student_id, expires_at) VALUES (?, ?, ?)`,
			ls.Token, ls.StudentID, ls.ExpiresAt)
		if err != nil {
			return fmt.Errorf("failed to create login session: %w", err)
		}
		return nil
	})
}

// DeleteLoginSession removes a login session token. Deleting an unknown
// token is a no-op.
func (m *Manager) DeleteLoginSession(ctx context.Context, token string) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`DELETE FROM login_sessions WHERE token = ?`, token)
		if err != nil {
			return fmt.Errorf("failed to delete login session: %w", err)
		}
		return nil
	})
}

// RecordExamAttempt persists a finished proctoring session for the record.
func (m *Manager) RecordExamAttempt(ctx context.Context, session types.Session, finishedAt time.Time) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO exam_attempts (session_id, student_id, exam_id, course_id, finished_at)
			VALUES (?, ?, ?, ?, ?)`,
			session.ID, session.StudentID, session.ExamID, session.CourseID, finishedAt)
		if err != nil {
			return fmt.Errorf("failed to record exam attempt: %w", err)
		}
		return nil
	})
}

// RecordPlacementAttempt counts one placement attempt against a student.
func (m *Manager) RecordPlacementAttempt(ctx context.Context, studentID, examID string, at time.Time) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO placement_attempts (student_id, exam_id, attempted_at) VALUES (?, ?, ?)`,
			studentID, examID, at)
		if err != nil {
			return fmt.Errorf("failed to record placement attempt: %w", err)
		}
		return nil
	})
}

// UpsertStudent inserts or replaces a student record.
func (m *Manager) UpsertStudent(ctx context.Context, record *types.StudentRecord) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO students (student_id, first_name, last_name)
			VALUES (?, ?, ?)
			ON CONFLICT(student_id) DO UPDATE SET
				first_name = excluded.first_name,
				last_name = excluded.last_name`,
			record.StudentID, record.FirstName, record.LastName)
		if err != nil {
			return fmt.Errorf("failed to upsert student %s: %w", record.StudentID, err)
		}
		return nil
	})
}

// UpsertExam inserts or replaces an exam catalog entry.
func (m *Manager) UpsertExam(ctx context.Context, exam *types.Exam) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO exams (exam_id, course_id, kind, label)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(exam_id) DO UPDATE SET
				course_id = excluded.course_id,
				kind = excluded.kind,
				label = excluded.label`,
			exam.ExamID, exam.CourseID, exam.Kind, exam.Label)
		if err != nil {
			return fmt.Errorf("failed to upsert exam %s: %w", exam.ExamID, err)
		}
		return nil
	})
}

// AddCourseRegistration opens a course testing window for a student.
func (m *Manager) AddCourseRegistration(ctx context.Context, studentID, courseID string, openFrom, openUntil time.Time) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO course_registrations (student_id, course_id, open_from, open_until)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(student_id, course_id) DO UPDATE SET
				open_from = excluded.open_from,
				open_until = excluded.open_until`,
			studentID, courseID, openFrom, openUntil)
		if err != nil {
			return fmt.Errorf("failed to add course registration: %w", err)
		}
		return nil
	})
}
