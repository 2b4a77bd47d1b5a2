// Package scheduler runs the background expiry sweep: subscriptions whose
// time ran out get flipped inactive on a fixed interval. The sweep is a
// single UPDATE in the store, so running several bot instances is safe.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/velmor/infoshop-bot/internal/sl"
)

type Sweeper interface {
	ExpireSweep(ctx context.Context, now time.Time) (int64, error)
}

type Scheduler struct {
	sweeper  Sweeper
	interval time.Duration
	log      *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

type Config struct {
	Interval time.Duration
}

func NewScheduler(sweeper Sweeper, config Config, log *slog.Logger) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = 10 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		sweeper:  sweeper,
		interval: config.Interval,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.log.Info("expiry sweeper started", slog.Duration("interval", s.interval))

	s.wg.Add(1)
	go s.run()
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	// sweep once at startup so a long-stopped bot catches up immediately
	s.sweep()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()

	expired, err := s.sweeper.ExpireSweep(ctx, time.Now().UTC())
	if err != nil {
		s.log.Error("expiry sweep failed", sl.Err(err))
		return
	}
	if expired > 0 {
		s.log.Info("subscriptions expired", slog.Int64("count", expired))
	}
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.log.Info("expiry sweeper stopped")
}
