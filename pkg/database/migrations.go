package database

import (
	"database/sql"
	"fmt"
)

// Migration is one versioned schema change.
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// migrations holds the full schema history in application order. New
// changes append a new entry; existing entries are never edited once
// deployed.
var migrations = []Migration{
	{
		Version:     "001",
		Description: "student records and exam catalog",
		SQL: `
			CREATE TABLE IF NOT EXISTS students (
				student_id TEXT PRIMARY KEY,
				first_name TEXT NOT NULL,
				last_name  TEXT NOT NULL
			);

			CREATE TABLE IF NOT EXISTS exams (
				exam_id   TEXT PRIMARY KEY,
				course_id TEXT NOT NULL,
				kind      TEXT NOT NULL CHECK (kind IN ('course', 'tutorial', 'placement')),
				label     TEXT NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_exams_kind ON exams(kind);
			CREATE INDEX IF NOT EXISTS idx_exams_course ON exams(course_id);
		`,
	},
	{
		Version:     "002",
		Description: "eligibility inputs: registrations and placement attempts",
		SQL: `
			CREATE TABLE IF NOT EXISTS course_registrations (
				student_id TEXT NOT NULL REFERENCES students(student_id),
				course_id  TEXT NOT NULL,
				open_from  DATETIME NOT NULL,
				open_until DATETIME NOT NULL,
				PRIMARY KEY (student_id, course_id)
			);

			CREATE TABLE IF NOT EXISTS placement_attempts (
				student_id   TEXT NOT NULL REFERENCES students(student_id),
				exam_id      TEXT NOT NULL REFERENCES exams(exam_id),
				attempted_at DATETIME NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_placement_attempts_student
				ON placement_attempts(student_id, exam_id);
		`,
	},
	{
		Version:     "003",
		Description: "login sessions and finished exam attempts",
		SQL: `
			CREATE TABLE IF NOT EXISTS login_sessions (
				token      TEXT PRIMARY KEY,
				student_id TEXT NOT NULL REFERENCES students(student_id),
				expires_at DATETIME NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_login_sessions_expiry
				ON login_sessions(expires_at);

			CREATE TABLE IF NOT EXISTS exam_attempts (
				session_id  TEXT PRIMARY KEY,
				student_id  TEXT NOT NULL REFERENCES students(student_id),
				exam_id     TEXT NOT NULL REFERENCES exams(exam_id),
				course_id   TEXT NOT NULL,
				finished_at DATETIME NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_exam_attempts_student
				ON exam_attempts(student_id);
		`,
	},
}

// MigrationManager applies pending schema migrations and tracks which
// versions have run.
type MigrationManager struct {
	db *sql.DB
}

// NewMigrationManager creates a migration manager for the given pool.
func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{db: db}
}

// ApplyMigrations runs every migration not yet recorded in
// schema_migrations, in version order, each inside its own transaction.
func (m *MigrationManager) ApplyMigrations() error {
	if err := m.createMigrationTable(); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	applied, err := m.appliedVersions()
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}
		if err := m.apply(migration); err != nil {
			return fmt.Errorf("failed to apply migration %s (%s): %w",
				migration.Version, migration.Description, err)
		}
	}

	return nil
}

func (m *MigrationManager) createMigrationTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (m *MigrationManager) appliedVersions() (map[string]bool, error) {
	rows, err := m.db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (m *MigrationManager) apply(migration Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(migration.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT INTO schema_migrations (version) VALUES (?)`, migration.Version); err != nil {
		return err
	}

	return tx.Commit()
}
