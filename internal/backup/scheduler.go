package backup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/haccp/internal/model"
	"github.com/dukerupert/haccp/internal/store"
)

// ScheduledRunner is what the scheduler starts once a day.
type ScheduledRunner interface {
	RunScheduled(ctx context.Context) Outcome
}

// Scheduler fires RunScheduled on the minute matching the saved schedule.
// Ticks that skip over the scheduled minute are logged, never caught up.
type Scheduler struct {
	runner   ScheduledRunner
	configs  *store.ConfigStore
	loc      *time.Location
	interval time.Duration
	logger   *slog.Logger

	mu        sync.RWMutex
	sched     model.Schedule
	lastTick  time.Time
	lastFired time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewScheduler loads the persisted schedule. A nil loc means time.Local.
func NewScheduler(runner ScheduledRunner, configs *store.ConfigStore, loc *time.Location, logger *slog.Logger) (*Scheduler, error) {
	sched, err := configs.GetSchedule()
	if err != nil {
		return nil, fmt.Errorf("load backup schedule: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		runner:   runner,
		configs:  configs,
		loc:      loc,
		interval: time.Minute,
		logger:   logger,
		sched:    sched,
	}, nil
}

// Start begins the schedule loop. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	s.logger.Info("scheduler started", "schedule", s.Schedule().String(), "timezone", s.loc.String())

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.tick(ctx, now)
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight run to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Scheduler) Schedule() model.Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sched
}

// SetSchedule moves the daily run to hour:minute, keeping the enabled flag.
func (s *Scheduler) SetSchedule(hour, minute int) error {
	sched := s.Schedule()
	sched.Hour, sched.Minute = hour, minute
	return s.Update(sched)
}

// Update persists sched and applies it from the next tick.
func (s *Scheduler) Update(sched model.Schedule) error {
	if err := s.configs.SetSchedule(sched); err != nil {
		return err
	}
	s.mu.Lock()
	s.sched = sched
	s.mu.Unlock()
	s.logger.Info("backup schedule updated", "schedule", sched.String(), "enabled", sched.Enabled)
	return nil
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	now = now.In(s.loc)
	minute := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), now.Minute(), 0, 0, s.loc)

	s.mu.Lock()
	sched := s.sched
	prev := s.lastTick
	s.lastTick = now
	s.mu.Unlock()

	if !sched.Enabled {
		return
	}
	if missed, ok := s.missed(sched, prev, now); ok {
		s.logger.Warn("missed scheduled backup", "scheduled_for", missed, "last_tick", prev)
	}
	if now.Hour() != sched.Hour || now.Minute() != sched.Minute {
		return
	}

	s.mu.Lock()
	if s.lastFired.Equal(minute) {
		s.mu.Unlock()
		return
	}
	s.lastFired = minute
	s.mu.Unlock()

	out := s.runner.RunScheduled(ctx)
	if out.Error != nil {
		s.logger.Warn("scheduled backup did not succeed", "kind", out.Error.Kind, "error", out.Error.Message)
	}
}

// missed returns the scheduled minute that fell strictly between the
// previous tick and the minute of now.
func (s *Scheduler) missed(sched model.Schedule, prev, now time.Time) (time.Time, bool) {
	if prev.IsZero() {
		return time.Time{}, false
	}
	for _, day := range []time.Time{now, now.AddDate(0, 0, -1)} {
		at := time.Date(day.Year(), day.Month(), day.Day(), sched.Hour, sched.Minute, 0, 0, s.loc)
		if at.After(prev) && !now.Before(at.Add(time.Minute)) {
			return at, true
		}
	}
	return time.Time{}, false
}
