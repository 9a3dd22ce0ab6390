package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/calwatch/calwatch/internal/common"
	"github.com/calwatch/calwatch/internal/interfaces"
	"github.com/calwatch/calwatch/internal/models"
)

func newTestStorage(t *testing.T) interfaces.JobStore {
	t.Helper()
	logger := arbor.NewLogger()

	db, err := NewSQLiteDB(logger, &common.SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)

	store := NewJobStorage(db, common.NewRetryPolicy(), logger)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRecord(jobControl string) *models.JobRecord {
	record := models.NewJobRecord(jobControl)
	record.WorkingTitle = "Staff Services Analyst"
	record.Department = "Department of Technology"
	record.SalaryRange = "$3,534.00 - $5,744.00"
	record.JobPostingURL = "JobPosting.aspx?JobControlId=" + jobControl
	return record
}

func TestInsertAndLookup(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, sampleRecord("455123")))

	stored, err := store.Lookup(ctx, "455123")
	require.NoError(t, err)
	require.NotNil(t, stored)

	assert.Positive(t, stored.ID)
	assert.Equal(t, "455123", stored.Record.JobControl)
	assert.Equal(t, "Staff Services Analyst", stored.Record.WorkingTitle)
	assert.Equal(t, models.NotSpecified, stored.Record.Telework)
	assert.False(t, stored.CreatedAt.IsZero())
}

func TestLookupAbsent(t *testing.T) {
	store := newTestStorage(t)

	stored, err := store.Lookup(context.Background(), "999999")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestExists(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	exists, err := store.Exists(ctx, "455123")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Insert(ctx, sampleRecord("455123")))

	exists, err = store.Exists(ctx, "455123")
	require.NoError(t, err)
	assert.True(t, exists)
}

// A duplicate insert resolves through the conflict clause instead of failing,
// so two racing runs cannot corrupt the table.
func TestInsertDuplicateUpserts(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, sampleRecord("455123")))

	again := sampleRecord("455123")
	again.SalaryRange = "$3,600.00 - $5,900.00"
	require.NoError(t, store.Insert(ctx, again))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	stored, err := store.Lookup(ctx, "455123")
	require.NoError(t, err)
	assert.Equal(t, "$3,600.00 - $5,900.00", stored.Record.SalaryRange)
}

func TestUpdate(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, sampleRecord("455123")))
	stored, err := store.Lookup(ctx, "455123")
	require.NoError(t, err)

	changed := sampleRecord("455123")
	changed.FilingDeadline = "Until Filled"
	require.NoError(t, store.Update(ctx, stored.ID, changed))

	after, err := store.Lookup(ctx, "455123")
	require.NoError(t, err)
	assert.Equal(t, "Until Filled", after.Record.FilingDeadline)
	assert.Equal(t, stored.CreatedAt, after.CreatedAt)
}

func TestUpdateMissingRow(t *testing.T) {
	store := newTestStorage(t)

	err := store.Update(context.Background(), 12345, sampleRecord("455123"))
	assert.Error(t, err)
}

func TestInsertRejectsEmptyJobControl(t *testing.T) {
	store := newTestStorage(t)

	err := store.Insert(context.Background(), models.NewJobRecord(""))
	assert.Error(t, err)
}

func TestCount(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	require.NoError(t, store.Insert(ctx, sampleRecord("1")))
	require.NoError(t, store.Insert(ctx, sampleRecord("2")))

	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

// "Until Filled" and friends must survive a round-trip verbatim; the store
// never normalizes free-text fields.
func TestFreeTextPreservedVerbatim(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	record := sampleRecord("455123")
	record.FilingDeadline = "Until Filled"
	record.PublishDate = "Continuous"
	require.NoError(t, store.Insert(ctx, record))

	stored, err := store.Lookup(ctx, "455123")
	require.NoError(t, err)
	assert.Equal(t, "Until Filled", stored.Record.FilingDeadline)
	assert.Equal(t, "Continuous", stored.Record.PublishDate)
}
