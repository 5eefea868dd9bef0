package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator verifies a database matches the structure the managers
// expect, independent of the migration system.
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator.
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// ValidateTablesExist verifies that all required tables exist.
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"students":             "Student identity records",
		"exams":                "Proctorable exam catalog",
		"course_registrations": "Course eligibility inputs",
		"placement_attempts":   "Placement attempt history",
		"login_sessions":       "Login session tokens",
		"exam_attempts":        "Finished proctored attempts",
		"schema_migrations":    "Migration tracking",
	}

	for table, description := range requiredTables {
		exists, err := v.tableExists(table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}

	return nil
}

func (v *SchemaValidator) tableExists(name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`,
		name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
