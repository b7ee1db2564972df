package connection

import (
	"sync"
	"time"

	"ryanMQ/internal/corerr"
)

// pendingEntry is one in-flight request keyed by requestId. Its result
// is delivered exactly once, either by a response or by the deadline
// timer. twoPhase entries (PRODUCER_SUCCESS)
// are not completed by an intermediate reply; gotIntermediate records
// that one arrived so the timeout check can skip firing.
type pendingEntry[T any] struct {
	resultCh       chan pendingResult[T]
	timer          *time.Timer
	gotIntermediate bool
	startedAt      time.Time
	done           bool
}

type pendingResult[T any] struct {
	value  T
	result corerr.Result
}

// pendingMap is a small typed request registry: one exists per response
// shape (lookup, partition metadata, last-message-id, schema,
// namespace-topics, consumer-stats, generic success/error, producer
// create), mirroring a distinct map per request
// kind.
type pendingMap[T any] struct {
	mu      sync.Mutex
	entries map[uint64]*pendingEntry[T]
}

func newPendingMap[T any]() *pendingMap[T] {
	return &pendingMap[T]{entries: make(map[uint64]*pendingEntry[T])}
}

// register creates a pending entry with a deadline timer. onTimeout is
// invoked from the timer's own goroutine once, unless the entry is
// cancelled or resolved first (cancellation distinguishes
// cancelled from expired").
func (m *pendingMap[T]) register(id uint64, timeout time.Duration, onTimeout func()) *pendingEntry[T] {
	e := &pendingEntry[T]{
		resultCh:  make(chan pendingResult[T], 1),
		startedAt: time.Now(),
	}
	e.timer = time.AfterFunc(timeout, func() {
		m.mu.Lock()
		cur, ok := m.entries[id]
		if !ok || cur != e || e.done || e.gotIntermediate {
			m.mu.Unlock()
			return
		}
		e.done = true
		delete(m.entries, id)
		m.mu.Unlock()
		e.resultCh <- pendingResult[T]{result: corerr.ResultTimeout}
		onTimeout()
	})

	m.mu.Lock()
	m.entries[id] = e
	m.mu.Unlock()
	return e
}

// markIntermediate flags a two-phase entry as having received its
// intermediate reply, so a racing timeout no longer fires.
func (m *pendingMap[T]) markIntermediate(id uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return false
	}
	e.gotIntermediate = true
	return true
}

// resolve completes a pending entry with a final value, removing it from
// the map and stopping its timer. Returns false if no such entry exists
// (already timed out, or unknown id).
func (m *pendingMap[T]) resolve(id uint64, value T, result corerr.Result) bool {
	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok || e.done {
		m.mu.Unlock()
		return false
	}
	e.done = true
	delete(m.entries, id)
	m.mu.Unlock()

	e.timer.Stop()
	e.resultCh <- pendingResult[T]{value: value, result: result}
	return true
}

// failAll resolves every outstanding entry with result, used by
// ClientConnection.close: "outside the lock, fail every
// outstanding promise".
func (m *pendingMap[T]) failAll(result corerr.Result) {
	m.mu.Lock()
	entries := m.entries
	m.entries = make(map[uint64]*pendingEntry[T])
	m.mu.Unlock()

	for _, e := range entries {
		if e.done {
			continue
		}
		e.done = true
		e.timer.Stop()
		e.resultCh <- pendingResult[T]{result: result}
	}
}

func (m *pendingMap[T]) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// wait blocks the caller until e resolves and returns the delivered
// value and result unchanged (convertToTimeoutIfNecessary is applied by
// the caller, not here, since only HandlerBase-driven callers need that
// conversion).
func (e *pendingEntry[T]) wait() (T, corerr.Result) {
	r := <-e.resultCh
	return r.value, r.result
}
