package producer

import (
	"time"

	"ryanMQ/internal/protocol"
)

// Configuration is the per-producer option set.
type Configuration struct {
	Topic                         string
	ProducerName                  string // empty means broker-assigned
	Properties                    map[string]string
	InitialSequenceId             *int64
	SendTimeout                   time.Duration
	MaxPendingMessages            int
	BlockIfQueueFull              bool
	BatchingEnabled               bool
	BatchingType                  BatchingType
	BatchingMaxMessages           int
	BatchingMaxBytes              int
	BatchingMaxPublishDelay       time.Duration
	CompressionType               protocol.CompressionType
	EncryptionEnabled             bool
	EncryptionKeyNames            []string
	ChunkingEnabled               bool
	AccessMode                    int32
	LazyStartPartitionedProducers bool
	InitialSubscriptionName       string
	TopicEpoch                    *uint64

	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	OperationTimeout time.Duration
}

func (c *Configuration) setDefaults() {
	if c.SendTimeout == 0 {
		c.SendTimeout = 30 * time.Second
	}
	if c.MaxPendingMessages == 0 {
		c.MaxPendingMessages = 1000
	}
	if c.BatchingMaxMessages == 0 {
		c.BatchingMaxMessages = 1000
	}
	if c.BatchingMaxBytes == 0 {
		c.BatchingMaxBytes = 128 * 1024
	}
	if c.BatchingMaxPublishDelay == 0 {
		c.BatchingMaxPublishDelay = 10 * time.Millisecond
	}
	if c.OperationTimeout == 0 {
		c.OperationTimeout = 30 * time.Second
	}
}
