package maintenance

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Optimizer is the store operation run on schedule
type Optimizer interface {
	Optimize() error
}

// Status describes the scheduler state
type Status struct {
	Running  bool
	Schedule string
	LastRun  *time.Time
	LastErr  error
	NextRun  *time.Time
}

// Scheduler periodically refreshes the store's query planner statistics
type Scheduler struct {
	db          Optimizer
	cron        *cron.Cron
	cronEntryID cron.EntryID
	schedule    string
	mu          sync.RWMutex
	running     bool
	lastRun     *time.Time
	lastErr     error
}

// New creates a scheduler for db
func New(db Optimizer) *Scheduler {
	return &Scheduler{
		db:   db,
		cron: cron.New(),
	}
}

// Start registers the schedule and starts the cron runner. An empty schedule
// leaves the scheduler stopped and returns false.
func (s *Scheduler) Start(schedule string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return true, nil
	}
	if schedule == "" {
		return false, nil
	}

	id, err := s.cron.AddFunc(schedule, func() { _ = s.run() })
	if err != nil {
		return false, fmt.Errorf("invalid maintenance schedule %q: %w", schedule, err)
	}

	s.cronEntryID = id
	s.schedule = schedule
	s.cron.Start()
	s.running = true

	log.Info().Str("schedule", schedule).Msg("Maintenance scheduler started")
	return true, nil
}

// Stop stops the cron runner and waits for a running job to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()

	s.mu.Lock()
	s.cron.Remove(s.cronEntryID)
	s.cronEntryID = 0
	s.mu.Unlock()

	log.Info().Msg("Maintenance scheduler stopped")
}

// RunNow runs the maintenance job immediately
func (s *Scheduler) RunNow() error {
	return s.run()
}

// Status returns the current scheduler status
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := Status{
		Running:  s.running,
		Schedule: s.schedule,
		LastRun:  s.lastRun,
		LastErr:  s.lastErr,
	}

	if s.cronEntryID != 0 {
		entry := s.cron.Entry(s.cronEntryID)
		if !entry.Next.IsZero() {
			status.NextRun = &entry.Next
		}
	}

	return status
}

func (s *Scheduler) run() error {
	start := time.Now()
	err := s.db.Optimize()

	s.mu.Lock()
	s.lastRun = &start
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Msg("Scheduled database maintenance failed")
		return err
	}

	log.Debug().Dur("duration", time.Since(start)).Msg("Database maintenance complete")
	return nil
}
