package watch

import (
	"context"
	"sync"
	"time"

	"github.com/leader001a/ro-market-crawler-sub000/logger"
)

// BlockedFunc reports whether the request gate currently holds a lockout.
// While it does, no item becomes eligible.
type BlockedFunc func() bool

// Scheduler is the periodic due-time scan. Every tick it claims all due
// items and launches one independent refresh per item; one slow item
// never delays another. Polling is intentionally simple; the watch list
// is small enough that scan overhead does not matter.
type Scheduler struct {
	list     *List
	worker   *Worker
	interval time.Duration
	blocked  BlockedFunc
	log      *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewScheduler creates a scheduler. blocked may be nil.
func NewScheduler(list *List, worker *Worker, interval time.Duration, blocked BlockedFunc) *Scheduler {
	return &Scheduler{
		list:     list,
		worker:   worker,
		interval: interval,
		blocked:  blocked,
		log:      logger.ForMonitor(),
	}
}

// Start launches the scan loop. The derived context is shared by every
// in-flight refresh so Stop cancels them all at once.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.loop(loopCtx)

	s.log.Info().Dur("interval", s.interval).Msg("Refresh scheduler started")
}

// Stop cancels the loop and every in-flight refresh, then waits for them
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.log.Info().Msg("Refresh scheduler stopped")
}

// SetEnabled flips the master monitoring flag on the underlying list
func (s *Scheduler) SetEnabled(enabled bool) {
	s.list.SetEnabled(enabled)
	s.log.Info().Bool("enabled", enabled).Msg("Monitoring toggled")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scan(ctx)
		}
	}
}

// scan claims every due item and launches its refresh without waiting on
// any other item
func (s *Scheduler) scan(ctx context.Context) {
	if s.blocked != nil && s.blocked() {
		return
	}

	for _, claim := range s.list.ClaimDue(time.Now()) {
		s.wg.Add(1)
		go func(claim *Claim) {
			defer s.wg.Done()
			s.worker.Refresh(ctx, claim)
		}(claim)
	}
}
