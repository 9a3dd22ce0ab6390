package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/calwatch/calwatch/internal/common"
	"github.com/calwatch/calwatch/internal/interfaces"
	"github.com/calwatch/calwatch/internal/models"
	"github.com/calwatch/calwatch/internal/storage"
)

// JobStorage implements interfaces.JobStore over SQLite.
type JobStorage struct {
	db     *SQLiteDB
	retry  *common.RetryPolicy
	logger arbor.ILogger
}

// NewJobStorage creates a job storage instance. The retry policy covers
// transient lock/busy failures; schema problems are surfaced as fatal.
func NewJobStorage(db *SQLiteDB, retry *common.RetryPolicy, logger arbor.ILogger) interfaces.JobStore {
	if retry == nil {
		retry = common.NewRetryPolicy()
	}
	return &JobStorage{
		db:     db,
		retry:  retry,
		logger: logger,
	}
}

// Exists reports whether a row with the given job control is present.
func (j *JobStorage) Exists(ctx context.Context, jobControl string) (bool, error) {
	var exists bool
	err := j.retry.Execute(ctx, j.logger, func() error {
		var one int
		err := j.db.db.QueryRowContext(ctx,
			`SELECT 1 FROM jobs WHERE job_control = ?`, jobControl).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			exists = false
			return nil
		}
		if err != nil {
			return j.classify(err)
		}
		exists = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to check existence of %s: %w", jobControl, err)
	}
	return exists, nil
}

// Lookup returns the stored row for the job control, or nil when absent.
func (j *JobStorage) Lookup(ctx context.Context, jobControl string) (*models.StoredJob, error) {
	var stored *models.StoredJob
	err := j.retry.Execute(ctx, j.logger, func() error {
		row := j.db.db.QueryRowContext(ctx, `
			SELECT id, job_control, working_title, link_title, department, location,
			       salary_range, telework, work_type_schedule, publish_date,
			       filing_deadline, job_posting_url, created_at, updated_at
			FROM jobs WHERE job_control = ?`, jobControl)

		var s models.StoredJob
		var createdAt, updatedAt int64
		err := row.Scan(
			&s.ID,
			&s.Record.JobControl,
			&s.Record.WorkingTitle,
			&s.Record.LinkTitle,
			&s.Record.Department,
			&s.Record.Location,
			&s.Record.SalaryRange,
			&s.Record.Telework,
			&s.Record.WorkTypeSchedule,
			&s.Record.PublishDate,
			&s.Record.FilingDeadline,
			&s.Record.JobPostingURL,
			&createdAt,
			&updatedAt,
		)
		if errors.Is(err, sql.ErrNoRows) {
			stored = nil
			return nil
		}
		if err != nil {
			return j.classify(err)
		}
		s.CreatedAt = time.Unix(createdAt, 0)
		s.UpdatedAt = time.Unix(updatedAt, 0)
		stored = &s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", jobControl, err)
	}
	return stored, nil
}

// Insert persists a new record. A concurrent duplicate resolves through the
// conflict clause rather than an error, keeping ingestion idempotent.
func (j *JobStorage) Insert(ctx context.Context, record *models.JobRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	now := time.Now().Unix()
	err := j.retry.Execute(ctx, j.logger, func() error {
		_, err := j.db.db.ExecContext(ctx, `
			INSERT INTO jobs (
				job_control, working_title, link_title, department, location,
				salary_range, telework, work_type_schedule, publish_date,
				filing_deadline, job_posting_url, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(job_control) DO UPDATE SET
				working_title = excluded.working_title,
				link_title = excluded.link_title,
				department = excluded.department,
				location = excluded.location,
				salary_range = excluded.salary_range,
				telework = excluded.telework,
				work_type_schedule = excluded.work_type_schedule,
				publish_date = excluded.publish_date,
				filing_deadline = excluded.filing_deadline,
				job_posting_url = excluded.job_posting_url,
				updated_at = excluded.updated_at
		`,
			record.JobControl,
			record.WorkingTitle,
			record.LinkTitle,
			record.Department,
			record.Location,
			record.SalaryRange,
			record.Telework,
			record.WorkTypeSchedule,
			record.PublishDate,
			record.FilingDeadline,
			record.JobPostingURL,
			now,
			now,
		)
		if err != nil {
			return j.classify(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to insert %s: %w", record.JobControl, err)
	}
	return nil
}

// Update rewrites the tracked fields of an existing row, leaving created_at
// untouched.
func (j *JobStorage) Update(ctx context.Context, id int64, record *models.JobRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	err := j.retry.Execute(ctx, j.logger, func() error {
		res, err := j.db.db.ExecContext(ctx, `
			UPDATE jobs SET
				working_title = ?,
				link_title = ?,
				department = ?,
				location = ?,
				salary_range = ?,
				telework = ?,
				work_type_schedule = ?,
				publish_date = ?,
				filing_deadline = ?,
				job_posting_url = ?,
				updated_at = ?
			WHERE id = ?
		`,
			record.WorkingTitle,
			record.LinkTitle,
			record.Department,
			record.Location,
			record.SalaryRange,
			record.Telework,
			record.WorkTypeSchedule,
			record.PublishDate,
			record.FilingDeadline,
			record.JobPostingURL,
			time.Now().Unix(),
			id,
		)
		if err != nil {
			return j.classify(err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("no row with id %d", id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", record.JobControl, err)
	}
	return nil
}

// Count returns the number of persisted listings.
func (j *JobStorage) Count(ctx context.Context) (int64, error) {
	var count int64
	err := j.retry.Execute(ctx, j.logger, func() error {
		if err := j.db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&count); err != nil {
			return j.classify(err)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return count, nil
}

// Close releases the underlying connection.
func (j *JobStorage) Close() error {
	return j.db.Close()
}

// classify maps driver errors onto the shared taxonomy. Schema problems mean
// the database was never migrated or points at the wrong file; retrying
// cannot fix that.
func (j *JobStorage) classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "no such table") ||
		strings.Contains(msg, "no such column") ||
		strings.Contains(msg, "readonly database") {
		return storage.Fatal(err)
	}
	return err
}
