package producer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ryanMQ/internal/corerr"
	"ryanMQ/pkg/contracts"
)

func newBareProducerForAckTests() *ProducerImpl {
	p := &ProducerImpl{
		queue:   NewPendingQueue(),
		permits: newPermitSemaphore(10),
		mem:     NewMemoryLimiter(0),
	}
	p.lastSequenceIdPublished = -1
	return p
}

// TestAckReceivedMatchingHeadCompletesAndAdvances verifies an ack for the
// exact head sequence id pops the queue, releases admission and advances
// lastSequenceIdPublished by the batch size.
func TestAckReceivedMatchingHeadCompletesAndAdvances(t *testing.T) {
	// Arrange
	p := newBareProducerForAckTests()
	assert.True(t, p.permits.tryAcquire())
	var gotID contracts.MessageIdData
	var gotResult corerr.Result
	op := &OpSendMsg{
		SequenceId:         5,
		NumMessagesInBatch: 3,
		Callback: func(id contracts.MessageIdData, result corerr.Result) {
			gotID = id
			gotResult = result
		},
	}
	p.queue.PushBack(op)

	// Act
	ok := p.AckReceived(5, 100, 200)

	// Assert
	assert.True(t, ok)
	assert.Equal(t, corerr.ResultOk, gotResult)
	assert.Equal(t, contracts.MessageIdData{LedgerId: 100, EntryId: 200}, gotID)
	assert.Equal(t, 0, p.queue.Len())
	assert.Equal(t, int64(7), p.lastSequenceIdPublished)
	assert.Equal(t, 0, p.permits.inUse())
}

// TestAckReceivedStaleDuplicateIsDroppedSilently verifies an ack whose
// sequenceId trails the current head is accepted (ok=true) without
// touching the queue, since it is a duplicate of an already-popped entry.
func TestAckReceivedStaleDuplicateIsDroppedSilently(t *testing.T) {
	// Arrange
	p := newBareProducerForAckTests()
	op := &OpSendMsg{SequenceId: 10}
	p.queue.PushBack(op)

	// Act
	ok := p.AckReceived(3, 1, 1)

	// Assert
	assert.True(t, ok)
	assert.Equal(t, 1, p.queue.Len())
}

// TestAckReceivedAheadOfHeadIsProtocolViolation verifies an ack for a
// sequenceId greater than the current head is reported as a protocol
// violation (ok=false).
func TestAckReceivedAheadOfHeadIsProtocolViolation(t *testing.T) {
	// Arrange
	p := newBareProducerForAckTests()
	op := &OpSendMsg{SequenceId: 10}
	p.queue.PushBack(op)

	// Act
	ok := p.AckReceived(20, 1, 1)

	// Assert
	assert.False(t, ok)
	assert.Equal(t, 1, p.queue.Len())
}

// TestAckReceivedEmptyQueueIsHarmless verifies a receipt with nothing
// pending (e.g. one that already timed out) is accepted rather than
// treated as a violation.
func TestAckReceivedEmptyQueueIsHarmless(t *testing.T) {
	// Arrange
	p := newBareProducerForAckTests()

	// Act
	ok := p.AckReceived(1, 1, 1)

	// Assert
	assert.True(t, ok)
}

// TestRemoveCorruptMessagePopsHeadWithChecksumError verifies a checksum
// SEND_ERROR for the head sequence id fails it with ChecksumError.
func TestRemoveCorruptMessagePopsHeadWithChecksumError(t *testing.T) {
	// Arrange
	p := newBareProducerForAckTests()
	var gotResult corerr.Result
	op := &OpSendMsg{
		SequenceId: 1,
		Callback: func(_ contracts.MessageIdData, result corerr.Result) {
			gotResult = result
		},
	}
	p.queue.PushBack(op)

	// Act
	ok := p.RemoveCorruptMessage(1)

	// Assert
	assert.True(t, ok)
	assert.Equal(t, corerr.ResultChecksumError, gotResult)
	assert.Equal(t, 0, p.queue.Len())
}

// TestFailAllPendingDrainsAndFailsEveryEntry verifies failAllPending
// fires every pending callback with the given result and empties the
// queue.
func TestFailAllPendingDrainsAndFailsEveryEntry(t *testing.T) {
	// Arrange
	p := newBareProducerForAckTests()
	results := make([]corerr.Result, 0, 3)
	for i := 0; i < 3; i++ {
		p.queue.PushBack(&OpSendMsg{
			SequenceId: uint64(i),
			Callback: func(_ contracts.MessageIdData, result corerr.Result) {
				results = append(results, result)
			},
		})
	}

	// Act
	p.failAllPending(corerr.ResultAlreadyClosed)

	// Assert
	assert.Equal(t, 0, p.queue.Len())
	assert.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, corerr.ResultAlreadyClosed, r)
	}
}
