package producer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ryanMQ/internal/protocol"
)

func buildOp(meta *protocol.MessageMetadata, payload []byte, cbs []SendCallback) *OpSendMsg {
	return &OpSendMsg{SequenceId: meta.SequenceId}
}

// TestDefaultBatchContainerFillsAndFlushesOnMaxMessages verifies Add
// reports isFull once maxMessages is reached and CreateOpSendMsgs
// produces exactly one OpSendMsg covering every added message.
func TestDefaultBatchContainerFillsAndFlushesOnMaxMessages(t *testing.T) {
	// Arrange
	b := newDefaultBatchContainer(2, 1<<20)
	msg1 := &Message{Payload: []byte("a")}
	msg2 := &Message{Payload: []byte("bb")}

	// Act
	assert.True(t, b.IsFirstMessageToAdd(msg1))
	full1 := b.Add(msg1, nil, 1)
	full2 := b.Add(msg2, nil, 2)

	// Assert
	assert.False(t, full1)
	assert.True(t, full2)
	assert.False(t, b.HasMultiOpSendMsgs())

	ops := b.CreateOpSendMsgs("producer-1", protocol.CompressionNone, buildOp)
	require.Len(t, ops, 1)
	assert.Equal(t, int32(2), ops[0].NumMessagesInBatch)
	assert.True(t, b.IsEmpty())
}

// TestDefaultBatchContainerHasEnoughSpaceRespectsMaxBytes verifies a
// message that would exceed maxBytes is rejected by HasEnoughSpace even
// when maxMessages has room.
func TestDefaultBatchContainerHasEnoughSpaceRespectsMaxBytes(t *testing.T) {
	// Arrange
	b := newDefaultBatchContainer(100, 10)
	assert.True(t, b.HasEnoughSpace(&Message{Payload: make([]byte, 8)}))
	b.Add(&Message{Payload: make([]byte, 8)}, nil, 1)

	// Act
	fits := b.HasEnoughSpace(&Message{Payload: make([]byte, 5)})

	// Assert
	assert.False(t, fits)
}

// TestDefaultBatchContainerAlwaysAcceptsFirstMessage verifies
// HasEnoughSpace never rejects the very first message, even if its
// payload alone exceeds maxBytes, matching IsFirstMessageToAdd.
func TestDefaultBatchContainerAlwaysAcceptsFirstMessage(t *testing.T) {
	// Arrange
	b := newDefaultBatchContainer(10, 4)

	// Act, Assert
	assert.True(t, b.IsFirstMessageToAdd(&Message{}))
	assert.True(t, b.HasEnoughSpace(&Message{Payload: make([]byte, 100)}))
}

// TestKeyGroupedBatchContainerGroupsByOrderingKey verifies messages
// sharing an ordering key land in the same group and produce one
// OpSendMsg per distinct key, in first-seen order.
func TestKeyGroupedBatchContainerGroupsByOrderingKey(t *testing.T) {
	// Arrange
	b := newKeyGroupedBatchContainer(100, 1<<20)
	b.Add(&Message{Payload: []byte("a"), OrderingKey: []byte("k1")}, nil, 1)
	b.Add(&Message{Payload: []byte("b"), OrderingKey: []byte("k2")}, nil, 2)
	b.Add(&Message{Payload: []byte("c"), OrderingKey: []byte("k1")}, nil, 3)

	// Act
	assert.True(t, b.HasMultiOpSendMsgs())
	ops := b.CreateOpSendMsgs("producer-1", protocol.CompressionNone, buildOp)

	// Assert
	require.Len(t, ops, 2)
	assert.Equal(t, int32(2), ops[0].NumMessagesInBatch)
	assert.Equal(t, int32(1), ops[1].NumMessagesInBatch)
	assert.True(t, b.IsEmpty())
}

// TestKeyGroupedBatchContainerFallsBackToPartitionKey verifies messages
// without an ordering key group by partition key instead.
func TestKeyGroupedBatchContainerFallsBackToPartitionKey(t *testing.T) {
	// Arrange
	b := newKeyGroupedBatchContainer(100, 1<<20)

	// Act
	key := groupKey(&Message{PartitionKey: "p1"})

	// Assert
	assert.Equal(t, "p1", key)

	b.Add(&Message{Payload: []byte("a"), PartitionKey: "p1"}, nil, 1)
	b.Add(&Message{Payload: []byte("b"), PartitionKey: "p1"}, nil, 2)
	ops := b.CreateOpSendMsgs("producer-1", protocol.CompressionNone, buildOp)
	require.Len(t, ops, 1)
	assert.Equal(t, int32(2), ops[0].NumMessagesInBatch)
}

// TestNewBatchContainerSelectsVariant verifies the factory returns the
// container type matching the requested BatchingType.
func TestNewBatchContainerSelectsVariant(t *testing.T) {
	// Arrange, Act
	def := NewBatchContainer(BatchingDefault, 10, 1024)
	grouped := NewBatchContainer(BatchingKeyGrouped, 10, 1024)

	// Assert
	assert.False(t, def.HasMultiOpSendMsgs())
	assert.True(t, grouped.HasMultiOpSendMsgs())
}

// TestCreateOpSendMsgsOnEmptyContainerReturnsNil verifies flushing an
// empty container is a no-op rather than producing a zero-message
// OpSendMsg.
func TestCreateOpSendMsgsOnEmptyContainerReturnsNil(t *testing.T) {
	// Arrange
	b := newDefaultBatchContainer(10, 1024)

	// Act
	ops := b.CreateOpSendMsgs("producer-1", protocol.CompressionNone, buildOp)

	// Assert
	assert.Nil(t, ops)
}
