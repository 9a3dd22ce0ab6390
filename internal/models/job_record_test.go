package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobRecordDefaults(t *testing.T) {
	record := NewJobRecord("455123")

	assert.Equal(t, "455123", record.JobControl)
	assert.Equal(t, NotSpecified, record.SalaryRange)
	assert.Equal(t, NotSpecified, record.Department)
	assert.Equal(t, NotSpecified, record.FilingDeadline)
	assert.Equal(t, NotSpecified, record.JobPostingURL)
}

func TestJobRecordValidate(t *testing.T) {
	require.NoError(t, NewJobRecord("455123").Validate())

	assert.Error(t, NewJobRecord("").Validate())
	assert.Error(t, NewJobRecord("   ").Validate())
}

func TestJobRecordChanged(t *testing.T) {
	base := func() *JobRecord {
		r := NewJobRecord("455123")
		r.WorkingTitle = "Staff Services Analyst"
		r.SalaryRange = "$3,534.00 - $5,744.00"
		return r
	}

	tests := []struct {
		name    string
		mutate  func(r *JobRecord)
		changed bool
	}{
		{"identical", func(r *JobRecord) {}, false},
		{"whitespace only difference", func(r *JobRecord) { r.WorkingTitle = "  Staff Services Analyst " }, false},
		{"salary changed", func(r *JobRecord) { r.SalaryRange = "$3,600.00 - $5,900.00" }, true},
		{"deadline changed", func(r *JobRecord) { r.FilingDeadline = "Until Filled" }, true},
		{"department changed", func(r *JobRecord) { r.Department = "Department of Water Resources" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := base()
			b := base()
			tt.mutate(b)
			assert.Equal(t, tt.changed, b.Changed(a))
		})
	}
}

func TestJobRecordChangedNil(t *testing.T) {
	assert.True(t, NewJobRecord("1").Changed(nil))
}
