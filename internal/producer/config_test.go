package producer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestSetDefaultsFillsZeroValues verifies every zero-valued option is
// replaced by its documented default.
func TestSetDefaultsFillsZeroValues(t *testing.T) {
	// Arrange
	c := &Configuration{}

	// Act
	c.setDefaults()

	// Assert
	assert.Equal(t, 30*time.Second, c.SendTimeout)
	assert.Equal(t, 1000, c.MaxPendingMessages)
	assert.Equal(t, 1000, c.BatchingMaxMessages)
	assert.Equal(t, 128*1024, c.BatchingMaxBytes)
	assert.Equal(t, 10*time.Millisecond, c.BatchingMaxPublishDelay)
	assert.Equal(t, 30*time.Second, c.OperationTimeout)
}

// TestSetDefaultsPreservesExplicitValues verifies fields already set by
// the caller are left untouched.
func TestSetDefaultsPreservesExplicitValues(t *testing.T) {
	// Arrange
	c := &Configuration{
		SendTimeout:        5 * time.Second,
		MaxPendingMessages: 42,
	}

	// Act
	c.setDefaults()

	// Assert
	assert.Equal(t, 5*time.Second, c.SendTimeout)
	assert.Equal(t, 42, c.MaxPendingMessages)
	assert.Equal(t, 1000, c.BatchingMaxMessages)
}
