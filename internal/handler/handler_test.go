package handler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ryanMQ/internal/corerr"
	"ryanMQ/internal/protocol"
	"ryanMQ/pkg/contracts"
)

type fakeConnection struct {
	id       string
	closedCh chan struct{}
}

func newFakeConnection(id string) *fakeConnection {
	return &fakeConnection{id: id, closedCh: make(chan struct{})}
}

func (f *fakeConnection) SendCommandBytes(_ []byte) error { return nil }
func (f *fakeConnection) Closed() <-chan struct{}         { return f.closedCh }
func (f *fakeConnection) ID() string                      { return f.id }
func (f *fakeConnection) NextRequestId() uint64            { return 1 }
func (f *fakeConnection) CreateProducer(_ *protocol.Command, _ uint64) (contracts.ResponseData, corerr.Result) {
	return contracts.ResponseData{}, corerr.ResultOk
}
func (f *fakeConnection) RegisterProducer(_ uint64, _ contracts.ProducerNotifyInterface) {}
func (f *fakeConnection) UnregisterProducer(_ uint64)                                    {}

type fakePool struct {
	mu       sync.Mutex
	conn     contracts.Connection
	err      error
	attempts int
}

func (p *fakePool) GetConnection(_ context.Context, _ string) (contracts.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts++
	if p.err != nil {
		return nil, p.err
	}
	return p.conn, nil
}

func (p *fakePool) attemptCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

type fakeOwner struct {
	mu        sync.Mutex
	openedCh  chan struct{}
	failedCh  chan corerr.Result
	openedCnx contracts.Connection
	openedEpoch uint64
}

func newFakeOwner() *fakeOwner {
	return &fakeOwner{openedCh: make(chan struct{}, 8), failedCh: make(chan corerr.Result, 8)}
}

func (o *fakeOwner) ConnectionOpened(conn contracts.Connection, epoch uint64) {
	o.mu.Lock()
	o.openedCnx = conn
	o.openedEpoch = epoch
	o.mu.Unlock()
	o.openedCh <- struct{}{}
}

func (o *fakeOwner) ConnectionFailed(result corerr.Result) {
	o.failedCh <- result
}

func testConfig() Config {
	return Config{
		Topic:          "persistent://public/default/t1",
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
		SendTimeout:    time.Second,
	}
}

// TestStartSuccessfulConnectTransitionsToPendingAndOpens verifies Start
// moves NotStarted->Pending and, when the pool hands back a connection,
// notifies the owner with ConnectionOpened.
func TestStartSuccessfulConnectTransitionsToPendingAndOpens(t *testing.T) {
	// Arrange
	conn := newFakeConnection("conn-1")
	pool := &fakePool{conn: conn}
	owner := newFakeOwner()
	b := New(testConfig(), pool, owner)

	// Act
	b.Start(context.Background())

	// Assert
	select {
	case <-owner.openedCh:
	case <-time.After(time.Second):
		t.Fatal("ConnectionOpened was never called")
	}
	assert.Equal(t, StatePending, b.State())
	assert.Same(t, conn, b.CurrentConnection())
}

// TestStartIsANoOpTheSecondTime verifies calling Start again after it
// has already left NotStarted does not re-run grabCnx.
func TestStartIsANoOpTheSecondTime(t *testing.T) {
	// Arrange
	conn := newFakeConnection("conn-1")
	pool := &fakePool{conn: conn}
	owner := newFakeOwner()
	b := New(testConfig(), pool, owner)
	b.Start(context.Background())
	<-owner.openedCh

	// Act
	b.Start(context.Background())

	// Assert
	assert.Equal(t, 1, pool.attemptCount())
}

// TestGrabCnxFailureNotifiesOwnerAndSchedulesRetry verifies a pool
// error surfaces via ConnectionFailed and a subsequent retry attempt
// happens automatically.
func TestGrabCnxFailureNotifiesOwnerAndSchedulesRetry(t *testing.T) {
	// Arrange
	pool := &fakePool{err: corerr.ResultConnectError}
	owner := newFakeOwner()
	b := New(testConfig(), pool, owner)

	// Act
	b.Start(context.Background())

	// Assert
	select {
	case result := <-owner.failedCh:
		assert.Equal(t, corerr.ResultConnectError, result)
	case <-time.After(time.Second):
		t.Fatal("ConnectionFailed was never called")
	}
	assert.Eventually(t, func() bool { return pool.attemptCount() >= 2 }, time.Second, 5*time.Millisecond)
	b.Close()
}

// TestTransitionToReadyOnlyFromPending verifies TransitionToReady
// succeeds from Pending and fails once already Ready.
func TestTransitionToReadyOnlyFromPending(t *testing.T) {
	// Arrange
	b := New(testConfig(), &fakePool{conn: newFakeConnection("c")}, newFakeOwner())
	b.box.store(StatePending)

	// Act
	first := b.TransitionToReady()
	second := b.TransitionToReady()

	// Assert
	assert.True(t, first)
	assert.False(t, second)
	assert.Equal(t, StateReady, b.State())
}

// TestFenceForcesTerminalProducerFencedState verifies Fence overrides
// whatever state the handler was in.
func TestFenceForcesTerminalProducerFencedState(t *testing.T) {
	// Arrange
	b := New(testConfig(), &fakePool{}, newFakeOwner())
	b.box.store(StateReady)

	// Act
	b.Fence()

	// Assert
	assert.Equal(t, StateProducerFenced, b.State())
}

// TestCloseIsIdempotent verifies the first Close returns true and stops
// the reconnect timer; a second call returns false.
func TestCloseIsIdempotent(t *testing.T) {
	// Arrange
	b := New(testConfig(), &fakePool{}, newFakeOwner())
	b.box.store(StatePending)

	// Act
	first := b.Close()
	second := b.Close()

	// Assert
	assert.True(t, first)
	assert.False(t, second)
	assert.Equal(t, StateClosed, b.State())
}

// TestHandleDisconnectionIgnoresStaleConnection verifies a
// disconnection report naming a connection that is no longer the one
// currently bound is ignored rather than clearing the current binding.
func TestHandleDisconnectionIgnoresStaleConnection(t *testing.T) {
	// Arrange
	current := newFakeConnection("current")
	stale := newFakeConnection("stale")
	pool := &fakePool{conn: current}
	owner := newFakeOwner()
	b := New(testConfig(), pool, owner)
	b.Start(context.Background())
	<-owner.openedCh
	require.Same(t, current, b.CurrentConnection())

	// Act
	b.HandleDisconnection(context.Background(), corerr.ResultDisconnected, stale)

	// Assert
	assert.Same(t, current, b.CurrentConnection())
}

// TestHandleDisconnectionClearsCurrentConnectionAndReschedules verifies
// a report naming the actual bound connection clears it and, since the
// handler is reconnectable, schedules a new connection attempt.
func TestHandleDisconnectionClearsCurrentConnectionAndReschedules(t *testing.T) {
	// Arrange
	current := newFakeConnection("current")
	pool := &fakePool{conn: current}
	owner := newFakeOwner()
	b := New(testConfig(), pool, owner)
	b.Start(context.Background())
	<-owner.openedCh

	// Act
	b.HandleDisconnection(context.Background(), corerr.ResultDisconnected, current)

	// Assert
	assert.Nil(t, b.CurrentConnection())
	select {
	case <-owner.openedCh:
	case <-time.After(time.Second):
		t.Fatal("handler never reconnected after disconnection")
	}
	b.Close()
}

// TestConvertToTimeoutIfNecessaryPassesThroughNonRetryable verifies a
// result other than Retryable is returned unchanged regardless of age.
func TestConvertToTimeoutIfNecessaryPassesThroughNonRetryable(t *testing.T) {
	// Arrange
	b := New(testConfig(), &fakePool{}, newFakeOwner())

	// Act
	result := b.ConvertToTimeoutIfNecessary(corerr.ResultOk, time.Now().Add(-time.Hour))

	// Assert
	assert.Equal(t, corerr.ResultOk, result)
}

// TestConvertToTimeoutIfNecessaryConvertsStaleRetryable verifies a
// Retryable result older than the operation timeout becomes Timeout.
func TestConvertToTimeoutIfNecessaryConvertsStaleRetryable(t *testing.T) {
	// Arrange
	cfg := testConfig()
	cfg.OperationTimeout = 10 * time.Millisecond
	b := New(cfg, &fakePool{}, newFakeOwner())

	// Act
	result := b.ConvertToTimeoutIfNecessary(corerr.ResultRetryable, time.Now().Add(-time.Second))

	// Assert
	assert.Equal(t, corerr.ResultTimeout, result)
}

// TestConvertToTimeoutIfNecessaryKeepsFreshRetryable verifies a
// Retryable result still within the operation timeout window is left
// as Retryable.
func TestConvertToTimeoutIfNecessaryKeepsFreshRetryable(t *testing.T) {
	// Arrange
	b := New(testConfig(), &fakePool{}, newFakeOwner())

	// Act
	result := b.ConvertToTimeoutIfNecessary(corerr.ResultRetryable, time.Now())

	// Assert
	assert.Equal(t, corerr.ResultRetryable, result)
}

// TestEpochIncrementsAcrossReconnectAttempts verifies each scheduled
// reconnect attempt bumps the epoch the owner observes.
func TestEpochIncrementsAcrossReconnectAttempts(t *testing.T) {
	// Arrange
	pool := &fakePool{err: corerr.ResultConnectError}
	owner := newFakeOwner()
	b := New(testConfig(), pool, owner)
	startEpoch := b.Epoch()

	// Act
	b.Start(context.Background())
	<-owner.failedCh

	// Assert
	assert.Eventually(t, func() bool { return b.Epoch() > startEpoch }, time.Second, 5*time.Millisecond)
	b.Close()
}
