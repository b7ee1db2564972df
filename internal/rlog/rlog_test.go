package rlog

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func captureLog(t *testing.T, fn func()) string {
	t.Helper()
	var buf bytes.Buffer
	orig := log.Writer()
	flags := log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	defer func() {
		log.SetOutput(orig)
		log.SetFlags(flags)
	}()
	fn()
	return buf.String()
}

// TestDebugSuppressedAtDefaultLevel verifies Debug is silent under the
// default Info level.
func TestDebugSuppressedAtDefaultLevel(t *testing.T) {
	// Arrange
	SetLevel(LevelInfo)

	// Act
	out := captureLog(t, func() { Debug("should not appear") })

	// Assert
	assert.Empty(t, out)
}

// TestDebugPrintedOnceLevelLowered verifies Debug output appears once
// the minimum level is lowered to LevelDebug.
func TestDebugPrintedOnceLevelLowered(t *testing.T) {
	// Arrange
	SetLevel(LevelDebug)
	defer SetLevel(LevelInfo)

	// Act
	out := captureLog(t, func() { Debug("value=%d", 7) })

	// Assert
	assert.True(t, strings.Contains(out, "[DEBUG] value=7"))
}

// TestInfoPrintedAtDefaultLevel verifies Info is enabled by default.
func TestInfoPrintedAtDefaultLevel(t *testing.T) {
	// Arrange
	SetLevel(LevelInfo)

	// Act
	out := captureLog(t, func() { Info("hello %s", "world") })

	// Assert
	assert.True(t, strings.Contains(out, "[INFO] hello world"))
}

// TestWarnSuppressedAboveErrorLevel verifies raising the threshold above
// Warn silences it.
func TestWarnSuppressedAboveErrorLevel(t *testing.T) {
	// Arrange
	SetLevel(LevelError)
	defer SetLevel(LevelInfo)

	// Act
	out := captureLog(t, func() { Warn("degraded") })

	// Assert
	assert.Empty(t, out)
}

// TestErrorAlwaysPrintedRegardlessOfLevel verifies Error output is never
// gated by the configured minimum level.
func TestErrorAlwaysPrintedRegardlessOfLevel(t *testing.T) {
	// Arrange
	SetLevel(LevelError)
	defer SetLevel(LevelInfo)

	// Act
	out := captureLog(t, func() { Error("boom %d", 500) })

	// Assert
	assert.True(t, strings.Contains(out, "[ERROR] boom 500"))
}
