package interfaces

import (
	"context"

	"github.com/calwatch/calwatch/internal/models"
)

// JobStore is the persistence boundary for scraped listings. The store is the
// sole authority on duplicate detection; the engine only ever asks, inserts,
// or updates.
//
// Implementations own their connection retry/backoff and classify failures as
// transient (retried internally) or fatal (auth/schema misconfiguration,
// wrapped with storage.ErrFatal so callers can abort the run).
type JobStore interface {
	// Exists reports whether a row with the given job control is present.
	Exists(ctx context.Context, jobControl string) (bool, error)

	// Lookup returns the stored row for the job control, or nil when absent.
	Lookup(ctx context.Context, jobControl string) (*models.StoredJob, error)

	// Insert persists a new record.
	Insert(ctx context.Context, record *models.JobRecord) error

	// Update rewrites the tracked fields of an existing row, preserving its
	// created_at provenance.
	Update(ctx context.Context, id int64, record *models.JobRecord) error

	// Count returns the number of persisted listings.
	Count(ctx context.Context) (int64, error)

	// Close releases the underlying connection.
	Close() error
}
