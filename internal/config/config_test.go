package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"

	"ryanMQ/internal/producer"
	"ryanMQ/internal/protocol"
)

func preparedViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	Prepare(v, t.TempDir())
	return v
}

// TestLoadClientConfigurationDefaults verifies a freshly prepared viper
// instance with no overrides yields the documented defaults.
func TestLoadClientConfigurationDefaults(t *testing.T) {
	// Arrange
	v := preparedViper(t)

	// Act
	cfg := LoadClientConfiguration(v)

	// Assert
	assert.Equal(t, "pulsar://localhost:6650", cfg.ServiceURL)
	assert.Equal(t, 30*time.Second, cfg.OperationTimeout)
	assert.Equal(t, 10*time.Second, cfg.ConnectionTimeout)
	assert.Equal(t, 50000, cfg.ConcurrentLookupRequest)
	assert.Equal(t, 60, cfg.StatsIntervalSeconds)
	assert.False(t, cfg.TLS.Enabled)
	assert.True(t, cfg.TLS.ValidateHostName)
}

// TestLoadClientConfigurationEnvOverride verifies an RYANMQ_-prefixed
// environment variable overrides the built-in default.
func TestLoadClientConfigurationEnvOverride(t *testing.T) {
	// Arrange
	t.Setenv("RYANMQ_SERVICE_URL", "pulsar://broker-9:6650")
	v := preparedViper(t)

	// Act
	cfg := LoadClientConfiguration(v)

	// Assert
	assert.Equal(t, "pulsar://broker-9:6650", cfg.ServiceURL)
}

// TestLoadProducerDefaultsDefaultBatchingType verifies an unset
// batching-type key defaults to the plain (non-key-grouped) container.
func TestLoadProducerDefaultsDefaultBatchingType(t *testing.T) {
	// Arrange
	v := preparedViper(t)

	// Act
	d := LoadProducerDefaults(v)

	// Assert
	assert.Equal(t, producer.BatchingDefault, d.BatchingType)
	assert.True(t, d.BatchingEnabled)
	assert.Equal(t, 1000, d.MaxPendingMessages)
}

// TestLoadProducerDefaultsKeyGroupedBatchingType verifies setting
// batching-type to "key-grouped" selects the key-grouped container.
func TestLoadProducerDefaultsKeyGroupedBatchingType(t *testing.T) {
	// Arrange
	v := preparedViper(t)
	v.Set("batching-type", "key-grouped")

	// Act
	d := LoadProducerDefaults(v)

	// Assert
	assert.Equal(t, producer.BatchingKeyGrouped, d.BatchingType)
}

// TestParseCompressionTypeKnownAndUnknown verifies each recognized
// compression name maps to its codec constant and anything else falls
// back to CompressionNone.
func TestParseCompressionTypeKnownAndUnknown(t *testing.T) {
	// Arrange, Act, Assert
	assert.Equal(t, protocol.CompressionSnappy, parseCompressionType("snappy"))
	assert.Equal(t, protocol.CompressionZStd, parseCompressionType("ZSTD"))
	assert.Equal(t, protocol.CompressionLZ4, parseCompressionType("Lz4"))
	assert.Equal(t, protocol.CompressionNone, parseCompressionType("none"))
	assert.Equal(t, protocol.CompressionNone, parseCompressionType("bogus"))
}

// TestToTransportTLSCopiesFields verifies the TLS section is carried
// over field-by-field into transport.TLSOptions.
func TestToTransportTLSCopiesFields(t *testing.T) {
	// Arrange
	cfg := ClientConfiguration{TLS: TLSConfiguration{
		AllowInsecureConnection: true,
		TrustCertsFilePath:      "/etc/ca.pem",
		CertificateFilePath:     "/etc/cert.pem",
		PrivateKeyFilePath:      "/etc/key.pem",
		ValidateHostName:        false,
	}}

	// Act
	opts := cfg.ToTransportTLS()

	// Assert
	assert.True(t, opts.AllowInsecureConnection)
	assert.Equal(t, "/etc/ca.pem", opts.TrustCertsFilePath)
	assert.Equal(t, "/etc/cert.pem", opts.CertificateFilePath)
	assert.Equal(t, "/etc/key.pem", opts.PrivateKeyFilePath)
	assert.False(t, opts.ValidateHostname)
}

// TestToProducerConfigurationSetsTopicAndOmitsZeroInitialSequenceId
// verifies the topic argument flows through and a zero
// InitialSequenceId leaves the pointer nil rather than pointing at 0.
func TestToProducerConfigurationSetsTopicAndOmitsZeroInitialSequenceId(t *testing.T) {
	// Arrange
	d := ProducerDefaults{}

	// Act
	cfg := d.ToProducerConfiguration("persistent://public/default/t1")

	// Assert
	assert.Equal(t, "persistent://public/default/t1", cfg.Topic)
	assert.Nil(t, cfg.InitialSequenceId)
}

// TestToProducerConfigurationCarriesNonZeroInitialSequenceId verifies a
// non-zero InitialSequenceId is carried through as a pointer to its
// value.
func TestToProducerConfigurationCarriesNonZeroInitialSequenceId(t *testing.T) {
	// Arrange
	d := ProducerDefaults{InitialSequenceId: 42}

	// Act
	cfg := d.ToProducerConfiguration("t1")

	// Assert
	if assert.NotNil(t, cfg.InitialSequenceId) {
		assert.Equal(t, int64(42), *cfg.InitialSequenceId)
	}
}
