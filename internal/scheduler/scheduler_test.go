package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestNewRejectsInvalidSchedule(t *testing.T) {
	_, err := New("not a cron expression", func(ctx context.Context) error { return nil }, arbor.NewLogger())
	assert.Error(t, err)
}

func TestNewAcceptsStandardExpressions(t *testing.T) {
	for _, schedule := range []string{"0 */6 * * *", "@hourly", "@every 1h"} {
		_, err := New(schedule, func(ctx context.Context) error { return nil }, arbor.NewLogger())
		assert.NoError(t, err, schedule)
	}
}

// A trigger that fires while the previous run is still going must skip, not
// queue: the browser session cannot host two walks at once.
func TestTriggerSkipsOverlappingRuns(t *testing.T) {
	var runs atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	sched, err := New("@hourly", func(ctx context.Context) error {
		runs.Add(1)
		close(started)
		<-release
		return nil
	}, arbor.NewLogger())
	require.NoError(t, err)

	go sched.trigger()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("first run never started")
	}

	// Fires while the first run holds the lock.
	sched.trigger()
	assert.Equal(t, int32(1), runs.Load())

	close(release)
	sched.Stop()
	assert.Equal(t, int32(1), runs.Load())
}
