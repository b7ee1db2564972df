package producer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestTryReserveRespectsLimit verifies reservations beyond the configured
// limit are rejected without blocking.
func TestTryReserveRespectsLimit(t *testing.T) {
	// Arrange
	m := NewMemoryLimiter(100)

	// Act, Assert
	assert.True(t, m.TryReserve(60))
	assert.False(t, m.TryReserve(60))
	assert.Equal(t, int64(60), m.Used())
}

// TestTryReserveUnboundedWhenLimitNonPositive verifies a non-positive
// limit disables admission control entirely.
func TestTryReserveUnboundedWhenLimitNonPositive(t *testing.T) {
	// Arrange
	m := NewMemoryLimiter(0)

	// Act, Assert
	assert.True(t, m.TryReserve(1<<40))
}

// TestReleaseReturnsBudget verifies Release frees room for a later
// reservation and never drives Used negative.
func TestReleaseReturnsBudget(t *testing.T) {
	// Arrange
	m := NewMemoryLimiter(100)
	assert.True(t, m.TryReserve(100))

	// Act
	m.Release(40)

	// Assert
	assert.Equal(t, int64(60), m.Used())
	assert.True(t, m.TryReserve(40))

	m.Release(1000)
	assert.Equal(t, int64(0), m.Used())
}

// TestReserveBlocksUntilRoom verifies Reserve blocks a caller until enough
// budget is released, then returns nil.
func TestReserveBlocksUntilRoom(t *testing.T) {
	// Arrange
	m := NewMemoryLimiter(10)
	assert.True(t, m.TryReserve(10))

	errc := make(chan error, 1)
	go func() {
		errc <- m.Reserve(context.Background(), 5)
	}()

	select {
	case <-errc:
		t.Fatal("Reserve returned before room was available")
	case <-time.After(20 * time.Millisecond):
	}

	// Act
	m.Release(5)

	// Assert
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Reserve did not unblock after Release")
	}
	assert.Equal(t, int64(10), m.Used())
}

// TestReserveCanceledByContext verifies a cancelled context unblocks
// Reserve with the context's error.
func TestReserveCanceledByContext(t *testing.T) {
	// Arrange
	m := NewMemoryLimiter(10)
	assert.True(t, m.TryReserve(10))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// Act
	err := m.Reserve(ctx, 5)

	// Assert
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
