package sqlite

import "fmt"

// schemaVersion is bumped whenever migrations gains a new step.
const schemaVersion = 1

const createJobsTable = `
CREATE TABLE IF NOT EXISTS jobs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_control TEXT NOT NULL UNIQUE,
	working_title TEXT NOT NULL DEFAULT 'Not specified',
	link_title TEXT NOT NULL DEFAULT 'Not specified',
	department TEXT NOT NULL DEFAULT 'Not specified',
	location TEXT NOT NULL DEFAULT 'Not specified',
	salary_range TEXT NOT NULL DEFAULT 'Not specified',
	telework TEXT NOT NULL DEFAULT 'Not specified',
	work_type_schedule TEXT NOT NULL DEFAULT 'Not specified',
	publish_date TEXT NOT NULL DEFAULT 'Not specified',
	filing_deadline TEXT NOT NULL DEFAULT 'Not specified',
	job_posting_url TEXT NOT NULL DEFAULT 'Not specified',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_job_control ON jobs(job_control);
`

const createSchemaVersionTable = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at INTEGER NOT NULL
);
`

// migrate brings the database up to the current schema version. Dates stay
// TEXT on purpose: CalCareers mixes "Until Filled", "Continuous" and real
// dates in the same columns and values must round-trip verbatim.
func (s *SQLiteDB) migrate() error {
	if _, err := s.db.Exec(createSchemaVersionTable); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var current int
	err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if current >= schemaVersion {
		return nil
	}

	if _, err := s.db.Exec(createJobsTable); err != nil {
		return fmt.Errorf("failed to create jobs table: %w", err)
	}

	if _, err := s.db.Exec(
		`INSERT INTO schema_version (version, applied_at) VALUES (?, strftime('%s','now'))`,
		schemaVersion,
	); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	s.logger.Info().
		Int("from", current).
		Int("to", schemaVersion).
		Msg("Database schema migrated")
	return nil
}
