package producer

import (
	"context"
	"sync"

	"ryanMQ/internal/corerr"
)

// permitSemaphore is the per-producer admission-control counting
// semaphore that, unlike a plain channel-based one, can be force-closed
// to unblock every blocked acquirer with Interrupted.
type permitSemaphore struct {
	mu     sync.Mutex
	cond   *sync.Cond
	max    int
	used   int
	closed bool
}

func newPermitSemaphore(max int) *permitSemaphore {
	s := &permitSemaphore{max: max}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// tryAcquire is the non-blocking path (blockIfQueueFull = false).
func (s *permitSemaphore) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.used >= s.max {
		return false
	}
	s.used++
	return true
}

// acquire blocks until a permit is free, ctx is cancelled, or the
// semaphore is closed.
func (s *permitSemaphore) acquire(ctx context.Context) corerr.Result {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		case <-done:
		}
	}()
	defer close(done)

	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.closed && s.used >= s.max {
		if ctx.Err() != nil {
			return corerr.ResultInterrupted
		}
		s.cond.Wait()
	}
	if s.closed {
		return corerr.ResultInterrupted
	}
	if ctx.Err() != nil {
		return corerr.ResultInterrupted
	}
	s.used++
	return corerr.ResultOk
}

func (s *permitSemaphore) release() {
	s.releaseN(1)
}

func (s *permitSemaphore) releaseN(n int) {
	s.mu.Lock()
	s.used -= n
	if s.used < 0 {
		s.used = 0
	}
	s.mu.Unlock()
	s.cond.Broadcast()
}

// closeAll marks the semaphore closed, waking every blocked acquirer so
// it returns Interrupted instead of hanging forever.
func (s *permitSemaphore) closeAll() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

func (s *permitSemaphore) inUse() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}
