package models

import (
	"fmt"
	"strings"
	"time"
)

// NotSpecified is the sentinel stored for listing fields the source page does
// not provide. The store treats it as a meaningful value, distinct from empty:
// CalCareers mixes "Until Filled", "Continuous" and real dates in the same
// columns, so absence has to survive round-trips verbatim.
const NotSpecified = "Not specified"

// JobRecord is one scraped CalCareers listing. JobControl is the natural key;
// every other field is preserved as free text exactly as rendered.
type JobRecord struct {
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
}

// NewJobRecord creates a record with every optional field defaulted to the
// sentinel. Callers overwrite the fields they manage to extract.
func NewJobRecord(jobControl string) *JobRecord {
	return &JobRecord{
		JobControl:       jobControl,
		WorkingTitle:     NotSpecified,
		LinkTitle:        NotSpecified,
		Department:       NotSpecified,
		Location:         NotSpecified,
		SalaryRange:      NotSpecified,
		Telework:         NotSpecified,
		WorkTypeSchedule: NotSpecified,
		PublishDate:      NotSpecified,
		FilingDeadline:   NotSpecified,
		JobPostingURL:    NotSpecified,
	}
}

// Validate checks the record is persistable.
func (r *JobRecord) Validate() error {
	if strings.TrimSpace(r.JobControl) == "" {
		return fmt.Errorf("job record missing job control identifier")
	}
	return nil
}

// Changed reports whether any tracked field differs from other after trimming
// whitespace. Used to skip needless updates so the store keeps its original
// created_at provenance.
func (r *JobRecord) Changed(other *JobRecord) bool {
	if other == nil {
		return true
	}
	pairs := [][2]string{
		{r.WorkingTitle, other.WorkingTitle},
		{r.LinkTitle, other.LinkTitle},
		{r.Department, other.Department},
		{r.Location, other.Location},
		{r.SalaryRange, other.SalaryRange},
		{r.Telework, other.Telework},
		{r.WorkTypeSchedule, other.WorkTypeSchedule},
		{r.PublishDate, other.PublishDate},
		{r.FilingDeadline, other.FilingDeadline},
		{r.JobPostingURL, other.JobPostingURL},
	}
	for _, p := range pairs {
		if strings.TrimSpace(p[0]) != strings.TrimSpace(p[1]) {
			return true
		}
	}
	return false
}

// StoredJob is a persisted record together with its row identity and the
// provenance timestamps the store maintains.
type StoredJob struct {
	ID        int64     `json:"id"`
	Record    JobRecord `json:"record"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
