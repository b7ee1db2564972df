// Package handler implements HandlerBase: the reconnection
// state machine shared by producer and consumer handles — exponential
// backoff, epoch tracking and connection re-binding. It knows nothing
// about SEND/MESSAGE payloads; producer.ProducerImpl and any future
// consumer implementation embed it and supply the two callbacks it
// drives (connectionOpened/connectionFailed).
package handler

import "sync/atomic"

// State is the per-handle lifecycle: NotStarted ->
// Pending -> Ready, with side exits Closing -> Closed, ProducerFenced,
// Failed. Closed is terminal.
type State int32

const (
	StateNotStarted State = iota
	StatePending
	StateReady
	StateClosing
	StateClosed
	StateProducerFenced
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "NotStarted"
	case StatePending:
		return "Pending"
	case StateReady:
		return "Ready"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	case StateProducerFenced:
		return "Producer_Fenced"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

type stateBox struct{ v int32 }

func (b *stateBox) load() State { return State(atomic.LoadInt32(&b.v)) }
func (b *stateBox) store(s State) {
	atomic.StoreInt32(&b.v, int32(s))
}

// cas refuses any transition out of Closed: it is terminal.
func (b *stateBox) cas(from, to State) bool {
	if State(atomic.LoadInt32(&b.v)) == StateClosed {
		return false
	}
	return atomic.CompareAndSwapInt32(&b.v, int32(from), int32(to))
}

// reconnectable reports whether a handle in this state should attempt
// to reconnect after a non-Retryable disconnection: only Pending or
// Ready handles do.
func (s State) reconnectable() bool {
	return s == StatePending || s == StateReady
}
