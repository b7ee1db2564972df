// Package config loads ClientConfiguration and per-producer defaults
// from environment variables (RYANMQ_ prefixed) and an
// optional YAML file, the way ValentinKolb-dKV's cmd/serve and cmd/kv
// packages bind their own configuration with spf13/viper.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"ryanMQ/internal/producer"
	"ryanMQ/internal/protocol"
	"ryanMQ/internal/transport"
)

// ClientConfiguration covers the connection-level options.
type ClientConfiguration struct {
	ServiceURL              string
	OperationTimeout        time.Duration
	ConnectionTimeout       time.Duration
	ConcurrentLookupRequest int
	StatsIntervalSeconds    int
	InitialBackoffMs        time.Duration
	MaxBackoffMs            time.Duration

	TLS TLSConfiguration
}

// TLSConfiguration mirrors the TLS TLS subset, plumbed straight
// into transport.TLSOptions.
type TLSConfiguration struct {
	Enabled                 bool
	AllowInsecureConnection bool
	TrustCertsFilePath      string
	CertificateFilePath     string
	PrivateKeyFilePath      string
	ValidateHostName        bool
}

// ProducerDefaults covers the per-producer connection-level options, used to
// seed a producer.Configuration before topic/producerId are known.
type ProducerDefaults struct {
	SendTimeout                   time.Duration
	MaxPendingMessages            int
	BlockIfQueueFull              bool
	BatchingEnabled               bool
	BatchingType                  producer.BatchingType
	BatchingMaxMessages           int
	BatchingMaxBytes              int
	BatchingMaxPublishDelayMs     time.Duration
	CompressionType               protocol.CompressionType
	EncryptionEnabled             bool
	ChunkingEnabled               bool
	InitialSequenceId             int64
	AccessMode                    int32
	LazyStartPartitionedProducers bool
	InitialSubscriptionName       string
}

// Prepare wires v the way dKV's initConfig does: RYANMQ_-prefixed env
// vars, dashes mapped to underscores, an optional "ryanmq.yaml" in the
// working directory or configPath, and every default this package
// knows about. Callers that already own a *viper.Viper (e.g. a cobra
// command binding its own flags into it) call this instead of New so
// flag values still take precedence over the defaults set here.
func Prepare(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("ryanmq")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("ryanmq")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // absent config file is not an error

	setViperDefaults(v)
}

// New returns a fresh, self-contained viper instance prepared the same
// way Prepare configures a caller-supplied one.
func New(configPath string) *viper.Viper {
	v := viper.New()
	Prepare(v, configPath)
	return v
}

func setViperDefaults(v *viper.Viper) {
	v.SetDefault("service-url", "pulsar://localhost:6650")
	v.SetDefault("operation-timeout-ms", 30000)
	v.SetDefault("connection-timeout-ms", 10000)
	v.SetDefault("concurrent-lookup-request", 50000)
	v.SetDefault("stats-interval-seconds", 60)
	v.SetDefault("initial-backoff-ms", 100)
	v.SetDefault("max-backoff-ms", 60000)

	v.SetDefault("tls-enabled", false)
	v.SetDefault("tls-allow-insecure-connection", false)
	v.SetDefault("tls-validate-hostname", true)

	v.SetDefault("send-timeout-ms", 30000)
	v.SetDefault("max-pending-messages", 1000)
	v.SetDefault("block-if-queue-full", false)
	v.SetDefault("batching-enabled", true)
	v.SetDefault("batching-max-messages", 1000)
	v.SetDefault("batching-max-bytes", 128*1024)
	v.SetDefault("batching-max-publish-delay-ms", 10)
	v.SetDefault("compression-type", "none")
	v.SetDefault("encryption-enabled", false)
	v.SetDefault("chunking-enabled", false)
	v.SetDefault("access-mode", 0)
}

// LoadClientConfiguration reads the connection-level options bound in v.
func LoadClientConfiguration(v *viper.Viper) ClientConfiguration {
	return ClientConfiguration{
		ServiceURL:              v.GetString("service-url"),
		OperationTimeout:        time.Duration(v.GetInt64("operation-timeout-ms")) * time.Millisecond,
		ConnectionTimeout:       time.Duration(v.GetInt64("connection-timeout-ms")) * time.Millisecond,
		ConcurrentLookupRequest: v.GetInt("concurrent-lookup-request"),
		StatsIntervalSeconds:    v.GetInt("stats-interval-seconds"),
		InitialBackoffMs:        time.Duration(v.GetInt64("initial-backoff-ms")) * time.Millisecond,
		MaxBackoffMs:            time.Duration(v.GetInt64("max-backoff-ms")) * time.Millisecond,
		TLS: TLSConfiguration{
			Enabled:                 v.GetBool("tls-enabled"),
			AllowInsecureConnection: v.GetBool("tls-allow-insecure-connection"),
			TrustCertsFilePath:      v.GetString("tls-trust-certs-file-path"),
			CertificateFilePath:     v.GetString("tls-certificate-file-path"),
			PrivateKeyFilePath:      v.GetString("tls-private-key-file-path"),
			ValidateHostName:        v.GetBool("tls-validate-hostname"),
		},
	}
}

// LoadProducerDefaults reads the per-producer defaults bound in v.
func LoadProducerDefaults(v *viper.Viper) ProducerDefaults {
	batchingType := producer.BatchingDefault
	if v.GetString("batching-type") == "key-grouped" {
		batchingType = producer.BatchingKeyGrouped
	}

	return ProducerDefaults{
		SendTimeout:                   time.Duration(v.GetInt64("send-timeout-ms")) * time.Millisecond,
		MaxPendingMessages:            v.GetInt("max-pending-messages"),
		BlockIfQueueFull:              v.GetBool("block-if-queue-full"),
		BatchingEnabled:               v.GetBool("batching-enabled"),
		BatchingType:                  batchingType,
		BatchingMaxMessages:           v.GetInt("batching-max-messages"),
		BatchingMaxBytes:              v.GetInt("batching-max-bytes"),
		BatchingMaxPublishDelayMs:     time.Duration(v.GetInt64("batching-max-publish-delay-ms")) * time.Millisecond,
		CompressionType:               parseCompressionType(v.GetString("compression-type")),
		EncryptionEnabled:             v.GetBool("encryption-enabled"),
		ChunkingEnabled:               v.GetBool("chunking-enabled"),
		InitialSequenceId:             v.GetInt64("initial-sequence-id"),
		AccessMode:                    int32(v.GetInt("access-mode")),
		LazyStartPartitionedProducers: v.GetBool("lazy-start-partitioned-producers"),
		InitialSubscriptionName:       v.GetString("initial-subscription-name"),
	}
}

func parseCompressionType(s string) protocol.CompressionType {
	switch strings.ToLower(s) {
	case "snappy":
		return protocol.CompressionSnappy
	case "zstd":
		return protocol.CompressionZStd
	case "lz4":
		return protocol.CompressionLZ4
	default:
		return protocol.CompressionNone
	}
}

// ToTransportTLS converts the client's TLS section into
// transport.TLSOptions.
func (c ClientConfiguration) ToTransportTLS() transport.TLSOptions {
	return transport.TLSOptions{
		AllowInsecureConnection: c.TLS.AllowInsecureConnection,
		TrustCertsFilePath:      c.TLS.TrustCertsFilePath,
		CertificateFilePath:     c.TLS.CertificateFilePath,
		PrivateKeyFilePath:      c.TLS.PrivateKeyFilePath,
		ValidateHostname:        c.TLS.ValidateHostName,
	}
}

// ToProducerConfiguration builds a producer.Configuration for topic,
// seeded from the loaded defaults.
func (d ProducerDefaults) ToProducerConfiguration(topic string) producer.Configuration {
	var initialSeq *int64
	if d.InitialSequenceId != 0 {
		v := d.InitialSequenceId
		initialSeq = &v
	}
	return producer.Configuration{
		Topic:                         topic,
		InitialSequenceId:             initialSeq,
		SendTimeout:                   d.SendTimeout,
		MaxPendingMessages:            d.MaxPendingMessages,
		BlockIfQueueFull:              d.BlockIfQueueFull,
		BatchingEnabled:               d.BatchingEnabled,
		BatchingType:                  d.BatchingType,
		BatchingMaxMessages:           d.BatchingMaxMessages,
		BatchingMaxBytes:              d.BatchingMaxBytes,
		BatchingMaxPublishDelay:       d.BatchingMaxPublishDelayMs,
		CompressionType:               d.CompressionType,
		EncryptionEnabled:             d.EncryptionEnabled,
		ChunkingEnabled:               d.ChunkingEnabled,
		AccessMode:                    d.AccessMode,
		LazyStartPartitionedProducers: d.LazyStartPartitionedProducers,
		InitialSubscriptionName:       d.InitialSubscriptionName,
	}
}
