package connection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ryanMQ/internal/corerr"
)

// TestPendingMapResolveDeliversValue verifies resolve wakes a waiter
// with the given value and result, and removes the entry from the map.
func TestPendingMapResolveDeliversValue(t *testing.T) {
	// Arrange
	m := newPendingMap[string]()
	e := m.register(1, time.Second, func() {})

	// Act
	ok := m.resolve(1, "hello", corerr.ResultOk)
	value, result := e.wait()

	// Assert
	assert.True(t, ok)
	assert.Equal(t, "hello", value)
	assert.Equal(t, corerr.ResultOk, result)
	assert.Equal(t, 0, m.len())
}

// TestPendingMapResolveUnknownIDReturnsFalse verifies resolving an id
// that was never registered (or already resolved) is reported as a
// no-op rather than panicking.
func TestPendingMapResolveUnknownIDReturnsFalse(t *testing.T) {
	// Arrange
	m := newPendingMap[string]()

	// Act
	ok := m.resolve(999, "x", corerr.ResultOk)

	// Assert
	assert.False(t, ok)
}

// TestPendingMapResolveTwiceOnlyDeliversOnce verifies a second resolve
// call against the same id is a no-op.
func TestPendingMapResolveTwiceOnlyDeliversOnce(t *testing.T) {
	// Arrange
	m := newPendingMap[string]()
	m.register(1, time.Second, func() {})

	// Act
	first := m.resolve(1, "a", corerr.ResultOk)
	second := m.resolve(1, "b", corerr.ResultOk)

	// Assert
	assert.True(t, first)
	assert.False(t, second)
}

// TestPendingMapTimeoutFiresOnTimeoutCallback verifies an entry whose
// deadline elapses without a resolve invokes onTimeout and removes
// itself from the map.
func TestPendingMapTimeoutFiresOnTimeoutCallback(t *testing.T) {
	// Arrange
	m := newPendingMap[string]()
	fired := make(chan struct{})

	// Act
	m.register(1, 10*time.Millisecond, func() { close(fired) })

	// Assert
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("onTimeout never fired")
	}
	assert.Eventually(t, func() bool { return m.len() == 0 }, time.Second, 5*time.Millisecond)
}

// TestPendingMapMarkIntermediateSuppressesTimeout verifies flagging an
// entry as having received its intermediate reply prevents the timeout
// callback from firing.
func TestPendingMapMarkIntermediateSuppressesTimeout(t *testing.T) {
	// Arrange
	m := newPendingMap[string]()
	fired := make(chan struct{}, 1)
	m.register(1, 10*time.Millisecond, func() { fired <- struct{}{} })

	// Act
	ok := m.markIntermediate(1)

	// Assert
	assert.True(t, ok)
	select {
	case <-fired:
		t.Fatal("timeout fired despite intermediate reply")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 1, m.len())
}

// TestPendingMapMarkIntermediateUnknownIDReturnsFalse verifies marking
// an id with no entry is reported as false.
func TestPendingMapMarkIntermediateUnknownIDReturnsFalse(t *testing.T) {
	// Arrange
	m := newPendingMap[string]()

	// Act
	ok := m.markIntermediate(42)

	// Assert
	assert.False(t, ok)
}

// TestPendingMapFailAllResolvesEveryOutstandingEntry verifies failAll
// wakes every registered waiter with the given result and empties the
// map.
func TestPendingMapFailAllResolvesEveryOutstandingEntry(t *testing.T) {
	// Arrange
	m := newPendingMap[string]()
	e1 := m.register(1, time.Second, func() {})
	e2 := m.register(2, time.Second, func() {})

	// Act
	m.failAll(corerr.ResultDisconnected)

	// Assert
	_, r1 := e1.wait()
	_, r2 := e2.wait()
	assert.Equal(t, corerr.ResultDisconnected, r1)
	assert.Equal(t, corerr.ResultDisconnected, r2)
	assert.Equal(t, 0, m.len())
}
