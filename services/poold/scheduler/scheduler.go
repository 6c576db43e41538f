package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Refresher runs one epoch check and reports whether rates were pushed.
type Refresher interface {
	Refresh() (bool, error)
}

// Scheduler drives a Refresher on a fixed interval. Runs never overlap; a
// run that is still busy when the next one is due pushes it back.
type Scheduler struct {
	sched     gocron.Scheduler
	refresher Refresher
	logger    *slog.Logger
	pushes    atomic.Uint64
}

func New(refresher Refresher, interval time.Duration, logger *slog.Logger) (*Scheduler, error) {
	if refresher == nil {
		return nil, errors.New("scheduler: refresher required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("scheduler: interval must be positive, got %s", interval)
	}
	if logger == nil {
		logger = slog.Default()
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("scheduler: create: %w", err)
	}
	s := &Scheduler{sched: sched, refresher: refresher, logger: logger.With("component", "scheduler")}
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.Tick),
		gocron.WithName("epoch-refresh"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("scheduler: register job: %w", err)
	}
	return s, nil
}

// Tick runs one refresh.
func (s *Scheduler) Tick() {
	refreshed, err := s.refresher.Refresh()
	if err != nil {
		s.logger.Error("epoch refresh failed", "error", err)
		return
	}
	if refreshed {
		s.pushes.Add(1)
		s.logger.Info("epoch rates pushed")
	}
}

// Pushes counts the refreshes that pushed rates since start.
func (s *Scheduler) Pushes() uint64 {
	return s.pushes.Load()
}

func (s *Scheduler) Start() {
	s.logger.Info("starting epoch scheduler")
	s.sched.Start()
}

func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}
