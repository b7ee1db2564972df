package connection

import "sync/atomic"

// State is the exclusive connection lifecycle: Pending ->
// TcpConnected -> Ready -> Disconnected, with Disconnected terminal.
type State int32

const (
	StatePending State = iota
	StateTcpConnected
	StateReady
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "Pending"
	case StateTcpConnected:
		return "TcpConnected"
	case StateReady:
		return "Ready"
	case StateDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

type stateBox struct {
	v int32
}

func (b *stateBox) load() State {
	return State(atomic.LoadInt32(&b.v))
}

func (b *stateBox) store(s State) {
	atomic.StoreInt32(&b.v, int32(s))
}

// casFrom performs a state CAS, refusing any transition out of
// Disconnected: it is terminal.
func (b *stateBox) casFrom(from, to State) bool {
	if State(atomic.LoadInt32(&b.v)) == StateDisconnected {
		return false
	}
	return atomic.CompareAndSwapInt32(&b.v, int32(from), int32(to))
}

// defaultMaxMessageSize is the default before CONNECTED overrides it.
const defaultMaxMessageSize = 5 * 1024 * 1024

// globalMaxMessageSize is the process-wide, handshake-negotiated value
// every producer on every connection reads before sizing a send (
// "process-wide, relaxed-atomic, written on handshake, read on every
// send").
var globalMaxMessageSize int64 = defaultMaxMessageSize

// MaxMessageSize returns the current process-wide negotiated limit.
func MaxMessageSize() int32 {
	return int32(atomic.LoadInt64(&globalMaxMessageSize))
}

// setMaxMessageSize updates the process-wide limit; called at most once
// per successful handshake, from the CONNECTED handler.
func setMaxMessageSize(v int32) {
	if v > 0 {
		atomic.StoreInt64(&globalMaxMessageSize, int64(v))
	}
}
