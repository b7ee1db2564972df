package producer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ryanMQ/internal/handler"
	"ryanMQ/pkg/contracts"
)

type gettersFakePool struct{}

func (gettersFakePool) GetConnection(_ context.Context, _ string) (contracts.Connection, error) {
	return nil, assert.AnError
}

func newBareProducerForGettersTests() *ProducerImpl {
	p := newBareProducerForAckTests()
	p.cfg = Configuration{Topic: "persistent://public/default/t1"}
	p.producerName = "producer-7"
	p.closed = make(chan struct{})
	p.base = handler.New(handler.Config{
		Topic:          p.cfg.Topic,
		InitialBackoff: time.Minute,
		MaxBackoff:     time.Minute,
		SendTimeout:    time.Minute,
	}, gettersFakePool{}, p)
	return p
}

// TestTopicReturnsConfiguredTopic verifies Topic simply reflects the
// configuration the producer was created with.
func TestTopicReturnsConfiguredTopic(t *testing.T) {
	// Arrange
	p := newBareProducerForGettersTests()

	// Act, Assert
	assert.Equal(t, "persistent://public/default/t1", p.Topic())
}

// TestProducerNameReturnsAssignedName verifies ProducerName reflects
// whatever the create handshake stored under lock.
func TestProducerNameReturnsAssignedName(t *testing.T) {
	// Arrange
	p := newBareProducerForGettersTests()

	// Act, Assert
	assert.Equal(t, "producer-7", p.ProducerName())
}

// TestLastSequenceIdPublishedDefaultsToMinusOne verifies a producer that
// has not yet had anything acked reports -1, not 0.
func TestLastSequenceIdPublishedDefaultsToMinusOne(t *testing.T) {
	// Arrange
	p := newBareProducerForGettersTests()

	// Act, Assert
	assert.Equal(t, int64(-1), p.LastSequenceIdPublished())
}

// TestLastSequenceIdPublishedReflectsUpdates verifies the getter picks up
// changes made under the same lock elsewhere.
func TestLastSequenceIdPublishedReflectsUpdates(t *testing.T) {
	// Arrange
	p := newBareProducerForGettersTests()
	p.mu.Lock()
	p.lastSequenceIdPublished = 41
	p.mu.Unlock()

	// Act, Assert
	assert.Equal(t, int64(41), p.LastSequenceIdPublished())
}

// TestIsConnectedFalseBeforeReady verifies a producer whose handler
// hasn't reached Ready reports not connected.
func TestIsConnectedFalseBeforeReady(t *testing.T) {
	// Arrange
	p := newBareProducerForGettersTests()

	// Act, Assert
	assert.False(t, p.IsConnected())
}

// TestIsConnectedTrueOnceHandlerReady verifies IsConnected flips to true
// once the underlying handler reaches Ready.
func TestIsConnectedTrueOnceHandlerReady(t *testing.T) {
	// Arrange
	p := newBareProducerForGettersTests()
	p.base.Start(context.Background())
	p.base.TransitionToReady()

	// Act, Assert
	assert.True(t, p.IsConnected())
}

// TestPendingQueueSizeReflectsQueuedOps verifies PendingQueueSize defers
// to the underlying pending queue's length.
func TestPendingQueueSizeReflectsQueuedOps(t *testing.T) {
	// Arrange
	p := newBareProducerForGettersTests()
	p.queue.PushBack(&OpSendMsg{SequenceId: 1})
	p.queue.PushBack(&OpSendMsg{SequenceId: 2})

	// Act, Assert
	assert.Equal(t, 2, p.PendingQueueSize())
}

// TestClosedChannelSignalsAfterClose verifies the Closed channel is open
// until something closes it.
func TestClosedChannelSignalsAfterClose(t *testing.T) {
	// Arrange
	p := newBareProducerForGettersTests()

	// Act, Assert (still open)
	select {
	case <-p.Closed():
		t.Fatal("Closed channel signaled before anything closed it")
	default:
	}

	close(p.closed)
	select {
	case <-p.Closed():
	default:
		t.Fatal("Closed channel did not signal after being closed")
	}
}
