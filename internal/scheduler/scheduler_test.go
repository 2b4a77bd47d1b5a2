package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingSweeper struct {
	calls atomic.Int64
}

func (c *countingSweeper) ExpireSweep(ctx context.Context, now time.Time) (int64, error) {
	c.calls.Add(1)
	return 0, nil
}

func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_SweepsOnInterval(t *testing.T) {
	sw := &countingSweeper{}
	s := NewScheduler(sw, Config{Interval: 5 * time.Millisecond}, noopLogger())

	s.Start()
	time.Sleep(100 * time.Millisecond)
	s.Stop()

	// one startup sweep plus at least one tick
	assert.GreaterOrEqual(t, sw.calls.Load(), int64(2))
}

func TestScheduler_StartStopIdempotent(t *testing.T) {
	sw := &countingSweeper{}
	s := NewScheduler(sw, Config{Interval: time.Hour}, noopLogger())

	s.Start()
	s.Start()
	s.Stop()
	s.Stop()

	assert.Equal(t, int64(1), sw.calls.Load())
}
