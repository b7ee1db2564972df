package checksum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestChecksum32CDeterministic verifies the same input always hashes the same.
func TestChecksum32CDeterministic(t *testing.T) {
	// Arrange
	data := []byte("hello ryanMQ")

	// Act
	a := Checksum32C(data)
	b := Checksum32C(data)

	// Assert
	assert.Equal(t, a, b, "same data should produce the same checksum")
}

// TestChecksum32CEmpty verifies the checksum of an empty slice is 0.
func TestChecksum32CEmpty(t *testing.T) {
	// Arrange
	data := []byte{}

	// Act
	got := Checksum32C(data)

	// Assert
	assert.Equal(t, CRC(0), got, "checksum of empty data should be 0")
}

// TestVerifyRoundTrip verifies Verify accepts a checksum produced by Checksum32C.
func TestVerifyRoundTrip(t *testing.T) {
	// Arrange
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	want := uint32(Checksum32C(data))

	// Act
	ok := Verify(data, want)

	// Assert
	assert.True(t, ok, "verify should accept the checksum it computed")
}

// TestVerifyMismatch verifies Verify rejects corrupted data.
func TestVerifyMismatch(t *testing.T) {
	// Arrange
	data := []byte("original payload")
	want := uint32(Checksum32C(data))
	corrupted := append([]byte(nil), data...)
	corrupted[0] ^= 0xFF

	// Act
	ok := Verify(corrupted, want)

	// Assert
	assert.False(t, ok, "verify should reject data that doesn't match the checksum")
}
