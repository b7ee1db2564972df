package producer

import (
	"ryanMQ/internal/compression"
	"ryanMQ/internal/protocol"
)

// Message is a single user-submitted message awaiting batching.
type Message struct {
	Payload      []byte
	PartitionKey string
	OrderingKey  []byte
	HasDeliverAt bool

	// ProducerName is only legal on a replicated message; this client
	// never produces those, so any caller-supplied value here is
	// rejected with ResultInvalidMessage.
	ProducerName string
}

// BatchingType selects between the two BatchContainer variants.
type BatchingType int

const (
	BatchingDefault BatchingType = iota
	BatchingKeyGrouped
)

type batchedEntry struct {
	msg        *Message
	cb         SendCallback
	sequenceId uint64
}

// BatchContainer is the batching contract every container variant satisfies.
type BatchContainer interface {
	Add(msg *Message, cb SendCallback, sequenceId uint64) (isFull bool)
	HasEnoughSpace(msg *Message) bool
	IsFirstMessageToAdd(msg *Message) bool
	IsEmpty() bool
	HasMultiOpSendMsgs() bool
	// CreateOpSendMsgs builds one OpSendMsg per group (exactly one for
	// the default container) and clears the batch.
	CreateOpSendMsgs(producerName string, compressionType protocol.CompressionType, build func(*protocol.MessageMetadata, []byte, []SendCallback) *OpSendMsg) []*OpSendMsg
}

// defaultBatchContainer implements the "Default" variant:
// one batch, flushed on maxMessages/maxBytes/maxDelay or explicit flush,
// producing exactly one OpSendMsg.
type defaultBatchContainer struct {
	maxMessages int
	maxBytes    int

	entries      []batchedEntry
	currentBytes int
}

func newDefaultBatchContainer(maxMessages, maxBytes int) *defaultBatchContainer {
	return &defaultBatchContainer{maxMessages: maxMessages, maxBytes: maxBytes}
}

func (b *defaultBatchContainer) IsFirstMessageToAdd(_ *Message) bool {
	return len(b.entries) == 0
}

func (b *defaultBatchContainer) HasEnoughSpace(msg *Message) bool {
	if len(b.entries) == 0 {
		return true
	}
	return len(b.entries) < b.maxMessages && b.currentBytes+len(msg.Payload) <= b.maxBytes
}

func (b *defaultBatchContainer) Add(msg *Message, cb SendCallback, sequenceId uint64) bool {
	b.entries = append(b.entries, batchedEntry{msg: msg, cb: cb, sequenceId: sequenceId})
	b.currentBytes += len(msg.Payload)
	return len(b.entries) >= b.maxMessages || b.currentBytes >= b.maxBytes
}

func (b *defaultBatchContainer) IsEmpty() bool { return len(b.entries) == 0 }

func (b *defaultBatchContainer) HasMultiOpSendMsgs() bool { return false }

func (b *defaultBatchContainer) CreateOpSendMsgs(producerName string, compressionType protocol.CompressionType, build func(*protocol.MessageMetadata, []byte, []SendCallback) *OpSendMsg) []*OpSendMsg {
	if len(b.entries) == 0 {
		return nil
	}

	payload := make([]byte, 0, b.currentBytes)
	cbs := make([]SendCallback, 0, len(b.entries))
	for _, e := range b.entries {
		payload = append(payload, e.msg.Payload...)
		cbs = append(cbs, e.cb)
	}

	codec, err := compression.Get(compressionType)
	uncompressedSize := uint32(len(payload))
	compressed := payload
	if err == nil && compressionType != protocol.CompressionNone {
		if c, encErr := codec.Encode(payload); encErr == nil {
			compressed = c
		}
	}

	meta := &protocol.MessageMetadata{
		ProducerName:       producerName,
		SequenceId:         b.entries[0].sequenceId,
		Compression:        compressionType,
		UncompressedSize:   uncompressedSize,
		NumMessagesInBatch: int32(len(b.entries)),
	}

	op := build(meta, compressed, cbs)
	op.NumMessagesInBatch = int32(len(b.entries))

	b.entries = nil
	b.currentBytes = 0
	return []*OpSendMsg{op}
}

// keyGroupedBatchContainer implements the "Key-grouped" variant: messages
// partitioned by orderingKey (falling back to partitionKey), one
// OpSendMsg per group on flush.
type keyGroupedBatchContainer struct {
	maxMessages int
	maxBytes    int

	groups      map[string][]batchedEntry
	groupOrder  []string
	count       int
	currentByte int
}

func newKeyGroupedBatchContainer(maxMessages, maxBytes int) *keyGroupedBatchContainer {
	return &keyGroupedBatchContainer{maxMessages: maxMessages, maxBytes: maxBytes, groups: make(map[string][]batchedEntry)}
}

func groupKey(msg *Message) string {
	if len(msg.OrderingKey) > 0 {
		return string(msg.OrderingKey)
	}
	return msg.PartitionKey
}

func (b *keyGroupedBatchContainer) IsFirstMessageToAdd(_ *Message) bool { return b.count == 0 }

func (b *keyGroupedBatchContainer) HasEnoughSpace(msg *Message) bool {
	if b.count == 0 {
		return true
	}
	return b.count < b.maxMessages && b.currentByte+len(msg.Payload) <= b.maxBytes
}

func (b *keyGroupedBatchContainer) Add(msg *Message, cb SendCallback, sequenceId uint64) bool {
	key := groupKey(msg)
	if _, ok := b.groups[key]; !ok {
		b.groupOrder = append(b.groupOrder, key)
	}
	b.groups[key] = append(b.groups[key], batchedEntry{msg: msg, cb: cb, sequenceId: sequenceId})
	b.count++
	b.currentByte += len(msg.Payload)
	return b.count >= b.maxMessages || b.currentByte >= b.maxBytes
}

func (b *keyGroupedBatchContainer) IsEmpty() bool { return b.count == 0 }

func (b *keyGroupedBatchContainer) HasMultiOpSendMsgs() bool { return true }

func (b *keyGroupedBatchContainer) CreateOpSendMsgs(producerName string, compressionType protocol.CompressionType, build func(*protocol.MessageMetadata, []byte, []SendCallback) *OpSendMsg) []*OpSendMsg {
	if b.count == 0 {
		return nil
	}

	out := make([]*OpSendMsg, 0, len(b.groupOrder))
	codec, err := compression.Get(compressionType)

	for _, key := range b.groupOrder {
		entries := b.groups[key]
		payload := make([]byte, 0)
		cbs := make([]SendCallback, 0, len(entries))
		for _, e := range entries {
			payload = append(payload, e.msg.Payload...)
			cbs = append(cbs, e.cb)
		}

		uncompressedSize := uint32(len(payload))
		compressed := payload
		if err == nil && compressionType != protocol.CompressionNone {
			if c, encErr := codec.Encode(payload); encErr == nil {
				compressed = c
			}
		}

		meta := &protocol.MessageMetadata{
			ProducerName:       producerName,
			SequenceId:         entries[0].sequenceId,
			Compression:        compressionType,
			UncompressedSize:   uncompressedSize,
			NumMessagesInBatch: int32(len(entries)),
			PartitionKey:       entries[0].msg.PartitionKey,
			OrderingKey:        entries[0].msg.OrderingKey,
		}
		op := build(meta, compressed, cbs)
		op.NumMessagesInBatch = int32(len(entries))
		out = append(out, op)
	}

	b.groups = make(map[string][]batchedEntry)
	b.groupOrder = nil
	b.count = 0
	b.currentByte = 0
	return out
}

// NewBatchContainer constructs the variant selected by batchingType.
func NewBatchContainer(batchingType BatchingType, maxMessages, maxBytes int) BatchContainer {
	if batchingType == BatchingKeyGrouped {
		return newKeyGroupedBatchContainer(maxMessages, maxBytes)
	}
	return newDefaultBatchContainer(maxMessages, maxBytes)
}
