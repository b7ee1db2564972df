package handler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"ryanMQ/internal/backoff"
	"ryanMQ/internal/corerr"
	"ryanMQ/internal/rlog"
	"ryanMQ/pkg/contracts"
)

// Owner is what an embedding producer/consumer supplies: the two
// subclass hooks the source's HandlerBase calls.
type Owner interface {
	// ConnectionOpened is invoked with a freshly bound connection and
	// the handler's current epoch; the owner sends its CreateProducer
	// / Subscribe request from here.
	ConnectionOpened(conn contracts.Connection, epoch uint64)
	// ConnectionFailed is invoked when the pool could not hand back a
	// live connection.
	ConnectionFailed(result corerr.Result)
}

// Config bounds the backoff schedule.
type Config struct {
	Topic                    string
	InitialBackoff           time.Duration
	MaxBackoff               time.Duration
	SendTimeout              time.Duration // backoff ceiling is sendTimeout-100ms
	OperationTimeout         time.Duration
}

func (c *Config) setDefaults() {
	if c.InitialBackoff == 0 {
		c.InitialBackoff = 100 * time.Millisecond
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 60 * time.Second
	}
	if c.SendTimeout == 0 {
		c.SendTimeout = 30 * time.Second
	}
	if c.OperationTimeout == 0 {
		c.OperationTimeout = 30 * time.Second
	}
}

// Base is HandlerBase: the reconnection state machine
// embedded by a producer or consumer implementation.
type Base struct {
	cfg   Config
	pool  contracts.ConnectionPool
	owner Owner

	box stateBox

	connectionMutex sync.Mutex
	cnx             contracts.Connection

	reconnectionPending int32 // atomic bool
	epoch                uint64
	backoff              *backoff.Backoff
	reconnectTimer       *time.Timer
	timerMu              sync.Mutex
}

// New constructs a Base bound to pool/owner for topic. The caller
// (producer/consumer constructor) then calls Start.
func New(cfg Config, pool contracts.ConnectionPool, owner Owner) *Base {
	cfg.setDefaults()
	b := &Base{
		cfg:    cfg,
		pool:   pool,
		owner:  owner,
		backoff: backoff.New(cfg.InitialBackoff, cfg.MaxBackoff),
	}
	b.box.store(StateNotStarted)
	return b
}

// State returns the handler's current lifecycle state.
func (b *Base) State() State { return b.box.load() }

// Epoch returns the current reconnection epoch, incremented on every
// scheduled reconnect attempt and used to detect stale callbacks from a
// connection attempt that is no longer current.
func (b *Base) Epoch() uint64 { return atomic.LoadUint64(&b.epoch) }

// Start moves the handler from NotStarted to Pending, then
// grabCnx.
func (b *Base) Start(ctx context.Context) {
	if !b.box.cas(StateNotStarted, StatePending) {
		return
	}
	b.grabCnx(ctx)
}

// grabCnx is a no-op if a connection is already bound; otherwise it
// CASes reconnectionPending false->true (a second concurrent caller
// backs off), asks the pool for a connection, and on failure schedules
// a reconnection.
func (b *Base) grabCnx(ctx context.Context) {
	b.connectionMutex.Lock()
	already := b.cnx != nil
	b.connectionMutex.Unlock()
	if already {
		return
	}

	if !atomic.CompareAndSwapInt32(&b.reconnectionPending, 0, 1) {
		return
	}

	conn, err := b.pool.GetConnection(ctx, b.cfg.Topic)
	atomic.StoreInt32(&b.reconnectionPending, 0)

	if err != nil || conn == nil {
		result := corerr.ResultConnectError
		if err != nil {
			if r, ok := err.(corerr.Result); ok {
				result = r
			}
		}
		b.connectionFailed(result)
		b.scheduleReconnection(ctx)
		return
	}

	b.connectionMutex.Lock()
	b.cnx = conn
	b.connectionMutex.Unlock()

	b.backoff.Reset()
	b.owner.ConnectionOpened(conn, b.Epoch())
}

func (b *Base) connectionFailed(result corerr.Result) {
	b.owner.ConnectionFailed(result)
}

// scheduleReconnection computes
// the next backoff delay, capped at sendTimeout-100ms and bounded by
// [initialBackoff, maxBackoff], arm a timer, and on fire bump epoch and
// call grabCnx again.
func (b *Base) scheduleReconnection(ctx context.Context) {
	if !b.box.load().reconnectable() {
		return
	}

	ceiling := b.cfg.SendTimeout - 100*time.Millisecond
	if ceiling <= 0 {
		ceiling = b.cfg.MaxBackoff
	}
	delay := b.backoff.Next(ceiling)

	b.timerMu.Lock()
	if b.reconnectTimer != nil {
		b.reconnectTimer.Stop()
	}
	b.reconnectTimer = time.AfterFunc(delay, func() {
		atomic.AddUint64(&b.epoch, 1)
		b.grabCnx(ctx)
	})
	b.timerMu.Unlock()
}

// HandleDisconnection is called when conn is the
// connection that went away. A late notification from a connection
// that has since been replaced by a newer one is ignored.
func (b *Base) HandleDisconnection(ctx context.Context, result corerr.Result, conn contracts.Connection) {
	b.connectionMutex.Lock()
	if b.cnx != nil && b.cnx != conn {
		b.connectionMutex.Unlock()
		return
	}
	b.cnx = nil
	b.connectionMutex.Unlock()

	if result == corerr.ResultRetryable || b.box.load().reconnectable() {
		b.scheduleReconnection(ctx)
	}
}

// ConvertToTimeoutIfNecessary turns a Retryable result older than
// operationTimeout into Timeout.
func (b *Base) ConvertToTimeoutIfNecessary(result corerr.Result, startedAt time.Time) corerr.Result {
	if result != corerr.ResultRetryable {
		return result
	}
	if time.Since(startedAt) > b.cfg.OperationTimeout {
		return corerr.ResultTimeout
	}
	return result
}

// CurrentConnection returns the bound connection, or nil if none.
func (b *Base) CurrentConnection() contracts.Connection {
	b.connectionMutex.Lock()
	defer b.connectionMutex.Unlock()
	return b.cnx
}

// TransitionToReady moves Pending -> Ready once the owner's
// create/subscribe request has succeeded.
func (b *Base) TransitionToReady() bool {
	return b.box.cas(StatePending, StateReady)
}

// Fence forces the handler into Producer_Fenced, a terminal side exit
// distinct from Closed.
func (b *Base) Fence() {
	b.box.store(StateProducerFenced)
}

// Fail forces the handler into Failed.
func (b *Base) Fail() {
	b.box.store(StateFailed)
}

// Close CASes the handler to Closed and is
// idempotent; the caller (ProducerImpl.Close) is responsible for the
// owner-specific teardown (semaphore, pending queue, CloseProducer).
// Returns false if already closed.
func (b *Base) Close() bool {
	for {
		cur := b.box.load()
		if cur == StateClosed {
			return false
		}
		if b.box.cas(cur, StateClosed) {
			break
		}
	}
	b.timerMu.Lock()
	if b.reconnectTimer != nil {
		b.reconnectTimer.Stop()
	}
	b.timerMu.Unlock()
	rlog.Info("handler for %s closed", b.cfg.Topic)
	return true
}
