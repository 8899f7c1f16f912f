package scheduler

import (
	"context"
	"sync"
	"time"

	"RegIngest/internal/ports"
)

// IntervalScheduler fires a job immediately and then on every interval tick.
type IntervalScheduler struct {
	interval time.Duration
	loc      *time.Location

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

var _ ports.Scheduler = (*IntervalScheduler)(nil)

// NewIntervalScheduler builds a scheduler; trigger times are reported in loc.
func NewIntervalScheduler(interval time.Duration, loc *time.Location) *IntervalScheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if loc == nil {
		loc = time.UTC
	}
	return &IntervalScheduler{interval: interval, loc: loc}
}

// Start begins ticking. Runs never overlap: a tick arriving mid-run is dropped.
func (s *IntervalScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return nil
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stop, s.done

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		job(time.Now().In(s.loc))
		for {
			select {
			case t := <-ticker.C:
				job(t.In(s.loc))
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}()

	return nil
}

// Stop halts the ticker goroutine and waits for an in-flight job or ctx expiry.
func (s *IntervalScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stop == nil {
		s.mu.Unlock()
		return nil
	}
	close(s.stop)
	done := s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
