package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"tg-amnesia/internal/crash"
	"tg-amnesia/internal/logger"
)

// Job is deferred work. ctx is cancelled when the scheduler stops.
type Job func(ctx context.Context)

// Scheduler runs fire-and-forget jobs after a delay, or periodically. Time comes
// from a clockwork.Clock so tests can drive it with a fake clock.
type Scheduler struct {
	clock    clockwork.Clock
	ctx      context.Context
	cancel   context.CancelFunc
	oneShot  sync.WaitGroup
	periodic sync.WaitGroup
}

func New(clock clockwork.Clock) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{clock: clock, ctx: ctx, cancel: cancel}
}

func (s *Scheduler) Clock() clockwork.Clock { return s.clock }

// After runs job once delay has elapsed. Panics are recovered and logged.
func (s *Scheduler) After(name string, delay time.Duration, job Job) {
	s.oneShot.Add(1)
	crash.SafeGoroutine(name, func() {
		defer s.oneShot.Done()
		select {
		case <-s.clock.After(delay):
		case <-s.ctx.Done():
			logger.Debugf("Scheduled job %s cancelled before it ran", name)
			return
		}
		job(s.ctx)
		logger.Debugf("Scheduled job %s finished", name)
	})
}

// Every runs job at each interval until the scheduler stops.
func (s *Scheduler) Every(name string, interval time.Duration, job Job) {
	s.periodic.Add(1)
	crash.SafeGoroutine(name, func() {
		defer s.periodic.Done()
		ticker := s.clock.NewTicker(interval)
		defer ticker.Stop()
		logger.Infof("Starting periodic job %s with interval: %v", name, interval)
		for {
			select {
			case <-ticker.Chan():
				s.runTick(name, job)
			case <-s.ctx.Done():
				return
			}
		}
	})
}

// runTick isolates one tick so a panicking job does not end the loop.
func (s *Scheduler) runTick(name string, job Job) {
	defer crash.RecoverWithStack(name)
	job(s.ctx)
}

// Wait blocks until every one-shot job has returned.
func (s *Scheduler) Wait() {
	s.oneShot.Wait()
}

// Drain waits for one-shot jobs up to timeout and reports whether they all finished.
func (s *Scheduler) Drain(timeout time.Duration) bool {
	return waitTimeout(&s.oneShot, timeout)
}

// Stop cancels pending and periodic jobs and waits for them, up to timeout.
func (s *Scheduler) Stop(timeout time.Duration) bool {
	s.cancel()
	deadline := time.Now().Add(timeout)
	if !waitTimeout(&s.oneShot, timeout) {
		return false
	}
	return waitTimeout(&s.periodic, time.Until(deadline))
}

func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
