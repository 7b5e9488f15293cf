package push

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/stockbook/internal/model"
)

// Runner is one push batch.
type Runner interface {
	Run(ctx context.Context) (Result, error)
}

// Nudger tells connected clients to re-check their in-app notifications.
type Nudger interface {
	NudgeAll(reason string)
}

// Scheduler runs the push batch on a fixed interval inside the server
// process. It is optional; deployments with an external trigger call the
// batch job endpoint instead.
type Scheduler struct {
	mu       sync.RWMutex
	runner   Runner
	nudger   Nudger
	interval time.Duration
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger
	lastDay  string
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewScheduler creates a push scheduler. nudger may be nil. The day rollover
// nudge fires at midnight in loc; a nil loc means UTC.
func NewScheduler(runner Runner, nudger Nudger, interval time.Duration, loc *time.Location, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		runner:   runner,
		nudger:   nudger,
		interval: interval,
		loc:      loc,
		now:      time.Now,
		logger:   logger,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.lastDay = s.today()
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.runner.Run(ctx); err != nil {
		s.logger.Error("push scheduler run", "error", err)
	}

	day := s.today()
	s.mu.Lock()
	rolled := day != s.lastDay
	s.lastDay = day
	s.mu.Unlock()

	if rolled && s.nudger != nil {
		s.logger.Info("day rolled over, nudging clients", "date", day)
		s.nudger.NudgeAll("day_rollover")
	}
}

func (s *Scheduler) today() string {
	return s.now().In(s.loc).Format(model.DateLayout)
}
