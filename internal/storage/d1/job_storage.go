package d1

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/calwatch/calwatch/internal/common"
	"github.com/calwatch/calwatch/internal/interfaces"
	"github.com/calwatch/calwatch/internal/models"
)

const bootstrapSchema = `
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
)`

// jobRow mirrors one jobs row as D1 returns it.
type jobRow struct {
	ID               int64  `json:"id"`
	JobControl       string `json:"job_control"`
	WorkingTitle     string `json:"working_title"`
	LinkTitle        string `json:"link_title"`
	Department       string `json:"department"`
	Location         string `json:"location"`
	SalaryRange      string `json:"salary_range"`
	Telework         string `json:"telework"`
	WorkTypeSchedule string `json:"work_type_schedule"`
	PublishDate      string `json:"publish_date"`
	FilingDeadline   string `json:"filing_deadline"`
	JobPostingURL    string `json:"job_posting_url"`
	CreatedAt        int64  `json:"created_at"`
	UpdatedAt        int64  `json:"updated_at"`
}

// JobStorage implements interfaces.JobStore against Cloudflare D1.
type JobStorage struct {
	client *Client
	logger arbor.ILogger
}

// NewJobStorage creates the remote store adapter and bootstraps the schema,
// the remote analog of the local migration step.
func NewJobStorage(ctx context.Context, config common.D1Config, retry *common.RetryPolicy, logger arbor.ILogger) (interfaces.JobStore, error) {
	client := NewClient(config, retry, logger)

	if _, err := client.Query(ctx, bootstrapSchema); err != nil {
		return nil, fmt.Errorf("failed to bootstrap d1 schema: %w", err)
	}

	logger.Info().
		Str("database_id", config.DatabaseID).
		Msg("D1 store initialized")

	return &JobStorage{client: client, logger: logger}, nil
}

// Exists reports whether a row with the given job control is present.
func (j *JobStorage) Exists(ctx context.Context, jobControl string) (bool, error) {
	res, err := j.client.Query(ctx,
		`SELECT 1 AS present FROM jobs WHERE job_control = ?`, jobControl)
	if err != nil {
		return false, fmt.Errorf("failed to check existence of %s: %w", jobControl, err)
	}
	return len(res.Results) > 0, nil
}

// Lookup returns the stored row for the job control, or nil when absent.
func (j *JobStorage) Lookup(ctx context.Context, jobControl string) (*models.StoredJob, error) {
	res, err := j.client.Query(ctx, `
		SELECT id, job_control, working_title, link_title, department, location,
		       salary_range, telework, work_type_schedule, publish_date,
		       filing_deadline, job_posting_url, created_at, updated_at
		FROM jobs WHERE job_control = ?`, jobControl)
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", jobControl, err)
	}
	if len(res.Results) == 0 {
		return nil, nil
	}

	var row jobRow
	if err := json.Unmarshal(res.Results[0], &row); err != nil {
		return nil, fmt.Errorf("failed to decode d1 row for %s: %w", jobControl, err)
	}

	return &models.StoredJob{
		ID: row.ID,
		Record: models.JobRecord{
			JobControl:       row.JobControl,
			WorkingTitle:     row.WorkingTitle,
			LinkTitle:        row.LinkTitle,
			Department:       row.Department,
			Location:         row.Location,
			SalaryRange:      row.SalaryRange,
			Telework:         row.Telework,
			WorkTypeSchedule: row.WorkTypeSchedule,
			PublishDate:      row.PublishDate,
			FilingDeadline:   row.FilingDeadline,
			JobPostingURL:    row.JobPostingURL,
		},
		CreatedAt: time.Unix(row.CreatedAt, 0),
		UpdatedAt: time.Unix(row.UpdatedAt, 0),
	}, nil
}

// Insert persists a new record, converging on the existing row when another
// run already wrote the same job control.
func (j *JobStorage) Insert(ctx context.Context, record *models.JobRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	now := time.Now().Unix()
	_, err := j.client.Query(ctx, `
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
			updated_at = excluded.updated_at`,
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
		return fmt.Errorf("failed to insert %s: %w", record.JobControl, err)
	}
	return nil
}

// Update rewrites the tracked fields of an existing row.
func (j *JobStorage) Update(ctx context.Context, id int64, record *models.JobRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	res, err := j.client.Query(ctx, `
		UPDATE jobs SET
			working_title = ?, link_title = ?, department = ?, location = ?,
			salary_range = ?, telework = ?, work_type_schedule = ?,
			publish_date = ?, filing_deadline = ?, job_posting_url = ?,
			updated_at = ?
		WHERE id = ?`,
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
		return fmt.Errorf("failed to update %s: %w", record.JobControl, err)
	}
	if res.Meta.Changes == 0 {
		return fmt.Errorf("no row with id %d", id)
	}
	return nil
}

// Count returns the number of persisted listings.
func (j *JobStorage) Count(ctx context.Context) (int64, error) {
	res, err := j.client.Query(ctx, `SELECT COUNT(*) AS n FROM jobs`)
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	if len(res.Results) == 0 {
		return 0, nil
	}

	var row struct {
		N int64 `json:"n"`
	}
	if err := json.Unmarshal(res.Results[0], &row); err != nil {
		return 0, fmt.Errorf("failed to decode count: %w", err)
	}
	return row.N, nil
}

// Close is a no-op; the client is stateless HTTP.
func (j *JobStorage) Close() error {
	return nil
}
