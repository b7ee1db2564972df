package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestNextGrowsWithAttempts verifies each successive call raises the delay ceiling.
func TestNextGrowsWithAttempts(t *testing.T) {
	// Arrange
	b := New(10*time.Millisecond, time.Second)

	// Act
	first := b.Next(0)
	second := b.Next(0)
	third := b.Next(0)

	// Assert
	assert.LessOrEqual(t, first, 10*time.Millisecond)
	assert.LessOrEqual(t, second, 20*time.Millisecond)
	assert.LessOrEqual(t, third, 40*time.Millisecond)
}

// TestNextNeverBelowInitial verifies the delay never drops under the initial value.
func TestNextNeverBelowInitial(t *testing.T) {
	// Arrange
	b := New(50*time.Millisecond, time.Second)

	// Act
	delay := b.Next(0)

	// Assert
	assert.GreaterOrEqual(t, delay, 50*time.Millisecond, "the jittered delay is clamped to the initial value")
}

// TestNextRespectsMax verifies the delay never exceeds the configured maximum
// even after many attempts.
func TestNextRespectsMax(t *testing.T) {
	// Arrange
	b := New(time.Millisecond, 100*time.Millisecond)

	// Act
	var last time.Duration
	for i := 0; i < 50; i++ {
		last = b.Next(0)
		assert.LessOrEqual(t, last, 100*time.Millisecond)
	}
}

// TestNextRespectsCeiling verifies a caller-supplied ceiling below max wins.
func TestNextRespectsCeiling(t *testing.T) {
	// Arrange
	b := New(time.Millisecond, time.Hour)
	for i := 0; i < 30; i++ {
		b.Next(0)
	}

	// Act
	delay := b.Next(5 * time.Millisecond)

	// Assert
	assert.LessOrEqual(t, delay, 5*time.Millisecond)
}

// TestResetRestartsFromInitial verifies Reset clears the attempt counter.
func TestResetRestartsFromInitial(t *testing.T) {
	// Arrange
	b := New(10*time.Millisecond, time.Second)
	for i := 0; i < 10; i++ {
		b.Next(0)
	}

	// Act
	b.Reset()
	delay := b.Next(0)

	// Assert
	assert.LessOrEqual(t, delay, 10*time.Millisecond, "delay after reset should be back to the first attempt's range")
}
