// Package connection implements ClientConnection: the
// multiplexed, full-duplex session over one TCP/TLS socket, its
// request/response registries, keep-alive protocol and command dispatch.
package connection

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"ryanMQ/internal/corerr"
	"ryanMQ/internal/protocol"
	"ryanMQ/internal/rlog"
	"ryanMQ/internal/transport"
	"ryanMQ/pkg/contracts"
)

// Config is the connection-level configuration a single connection needs.
type Config struct {
	ConnectionTimeout       time.Duration
	OperationTimeout        time.Duration
	MaxPendingLookupRequest int
	KeepAliveInterval       time.Duration
	ClientVersion           string
	ProtocolVersion         int32
	TLS                     transport.TLSOptions
	SNI                     string
	Authenticator           contracts.Authenticator
}

func (c *Config) setDefaults() {
	if c.ConnectionTimeout == 0 {
		c.ConnectionTimeout = 10 * time.Second
	}
	if c.OperationTimeout == 0 {
		c.OperationTimeout = 30 * time.Second
	}
	if c.MaxPendingLookupRequest == 0 {
		c.MaxPendingLookupRequest = 50000
	}
	if c.KeepAliveInterval == 0 {
		c.KeepAliveInterval = 30 * time.Second
	}
	if c.ClientVersion == "" {
		c.ClientVersion = "ryanMQ-go-client"
	}
	if c.ProtocolVersion == 0 {
		c.ProtocolVersion = 1
	}
}

// ClientConnection is the connection-core handle: a multiplexed, full-duplex session over one socket.
type ClientConnection struct {
	id           string
	logicalAddr  string
	physicalAddr string
	cfg          Config

	socket *transport.Socket
	state  stateBox

	mu        sync.Mutex
	producers map[uint64]contracts.ProducerNotifyInterface
	consumers map[uint64]contracts.ConsumerPushInterface

	requestIdGen uint64

	pendingGeneric         *pendingMap[*protocol.Command]
	pendingLookup          *pendingMap[LookupResult]
	pendingPartitionMeta   *pendingMap[int32]
	pendingLastMsgId       *pendingMap[contracts.MessageIdData]
	pendingSchema          *pendingMap[[]byte]
	pendingNamespaceTopics *pendingMap[[]string]
	pendingConsumerStats   *pendingMap[struct{}]
	pendingProducerCreate  *pendingMap[contracts.ResponseData]

	connectResult chan error

	havePendingPing int32
	keepAliveTimer  *time.Timer

	closeOnce sync.Once
	closedCh  chan struct{}

	serverVersion   string
	protocolVersion int32
}

// Connect dials raw (pulsar:// or pulsar+ssl://), performs the handshake
// and blocks until the connection is Ready.
func Connect(ctx context.Context, raw string, cfg Config) (*ClientConnection, error) {
	cfg.setDefaults()

	cc := &ClientConnection{
		id:                     uuid.New().String(),
		logicalAddr:            raw,
		physicalAddr:           raw,
		cfg:                    cfg,
		producers:              make(map[uint64]contracts.ProducerNotifyInterface),
		consumers:              make(map[uint64]contracts.ConsumerPushInterface),
		pendingGeneric:         newPendingMap[*protocol.Command](),
		pendingLookup:          newPendingMap[LookupResult](),
		pendingPartitionMeta:   newPendingMap[int32](),
		pendingLastMsgId:       newPendingMap[contracts.MessageIdData](),
		pendingSchema:          newPendingMap[[]byte](),
		pendingNamespaceTopics: newPendingMap[[]string](),
		pendingConsumerStats:   newPendingMap[struct{}](),
		pendingProducerCreate:  newPendingMap[contracts.ResponseData](),
		connectResult:          make(chan error, 1),
		closedCh:               make(chan struct{}),
	}

	socket, err := transport.Dial(ctx, raw, cfg.ConnectionTimeout, cfg.TLS, cfg.SNI)
	if err != nil {
		cc.state.store(StateDisconnected)
		return nil, corerr.ResultConnectError
	}
	cc.socket = socket
	cc.state.store(StateTcpConnected)
	socket.Start(cc)

	if err := cc.sendConnect(ctx); err != nil {
		cc.Close(corerr.ResultConnectError)
		return nil, err
	}

	select {
	case err := <-cc.connectResult:
		if err != nil {
			return nil, err
		}
		return cc, nil
	case <-ctx.Done():
		cc.Close(corerr.ResultTimeout)
		return nil, ctx.Err()
	case <-cc.closedCh:
		return nil, corerr.ResultConnectError
	}
}

func (cc *ClientConnection) sendConnect(ctx context.Context) error {
	var authName string
	var authData []byte
	if cc.cfg.Authenticator != nil {
		authName = cc.cfg.Authenticator.AuthMethodName()
		var err error
		authData, err = cc.cfg.Authenticator.GetAuthData(ctx)
		if err != nil {
			return fmt.Errorf("connection: auth data: %w", err)
		}
	}

	cmd := &protocol.Command{
		Type: protocol.TypeConnect,
		Connect: &protocol.CommandConnect{
			ProtocolVersion: cc.cfg.ProtocolVersion,
			ClientVersion:   cc.cfg.ClientVersion,
			AuthMethodName:  authName,
			AuthData:        authData,
		},
	}
	return cc.sendCommand(cmd)
}

func (cc *ClientConnection) sendCommand(cmd *protocol.Command) error {
	frame, err := protocol.EncodeCommand(cmd)
	if err != nil {
		return err
	}
	return cc.socket.Enqueue(frame)
}

// SendCommand enqueues an already-constructed command frame, gated by
// connection state.
func (cc *ClientConnection) SendCommand(cmd *protocol.Command) error {
	if cc.state.load() == StateDisconnected {
		return corerr.ResultNotConnected
	}
	return cc.sendCommand(cmd)
}

// SendCommandBytes enqueues a pre-encoded frame, used for SEND frames the
// producer pipeline has already built (batched/chunked/compressed) and
// for contracts.Connection.
func (cc *ClientConnection) SendCommandBytes(frame []byte) error {
	if cc.state.load() == StateDisconnected {
		return corerr.ResultNotConnected
	}
	return cc.socket.Enqueue(frame)
}

func (cc *ClientConnection) nextRequestId() uint64 {
	return atomic.AddUint64(&cc.requestIdGen, 1)
}

// NextRequestId exposes the monotonically increasing request id
// generator to callers (producer/handler) that need to tag their own
// commands before calling SendRequestWithId.
func (cc *ClientConnection) NextRequestId() uint64 { return cc.nextRequestId() }

// ID returns the connection's identity, used for logging and as the
// contracts.Connection.ID() implementation.
func (cc *ClientConnection) ID() string { return cc.id }

// State returns the current lifecycle state.
func (cc *ClientConnection) State() State { return cc.state.load() }

// Closed returns a channel closed once the connection has transitioned
// to Disconnected.
func (cc *ClientConnection) Closed() <-chan struct{} { return cc.closedCh }

// RegisterProducer binds a producer's ack/fail sink to its producerId so
// SEND_RECEIPT/SEND_ERROR dispatch can find it.
func (cc *ClientConnection) RegisterProducer(id uint64, p contracts.ProducerNotifyInterface) {
	cc.mu.Lock()
	cc.producers[id] = p
	cc.mu.Unlock()
}

func (cc *ClientConnection) UnregisterProducer(id uint64) {
	cc.mu.Lock()
	delete(cc.producers, id)
	cc.mu.Unlock()
}

// RegisterConsumer binds a consumer's push sink to its consumerId.
func (cc *ClientConnection) RegisterConsumer(id uint64, c contracts.ConsumerPushInterface) {
	cc.mu.Lock()
	cc.consumers[id] = c
	cc.mu.Unlock()
}

func (cc *ClientConnection) UnregisterConsumer(id uint64) {
	cc.mu.Lock()
	delete(cc.consumers, id)
	cc.mu.Unlock()
}

// SendRequestWithId sends cmd and waits (up to the connection's
// operation timeout) for the matching SUCCESS/ERROR response.
func (cc *ClientConnection) SendRequestWithId(cmd *protocol.Command, requestId uint64) (*protocol.Command, corerr.Result) {
	if cc.state.load() != StateReady {
		return nil, corerr.ResultNotConnected
	}

	entry := cc.pendingGeneric.register(requestId, cc.cfg.OperationTimeout, func() {})
	if err := cc.sendCommand(cmd); err != nil {
		cc.pendingGeneric.resolve(requestId, nil, corerr.ResultNotConnected)
	}
	return entry.wait()
}

// Lookup performs a topic lookup, including the
// synchronous TooManyLookupRequestException admission check.
func (cc *ClientConnection) Lookup(ctx context.Context, topic string, authoritative bool, listenerName string, requestId uint64) (LookupResult, corerr.Result) {
	if cc.pendingLookup.len() >= cc.cfg.MaxPendingLookupRequest {
		return LookupResult{}, corerr.ResultTooManyLookupRequestException
	}

	entry := cc.pendingLookup.register(requestId, cc.cfg.OperationTimeout, func() {
		cc.pendingLookup.resolve(requestId, LookupResult{}, corerr.ResultTimeout)
	})
	cmd := &protocol.Command{
		Type: protocol.TypeLookup,
		Lookup: &protocol.CommandLookup{
			RequestId:     requestId,
			Topic:         topic,
			Authoritative: authoritative,
			ListenerName:  listenerName,
		},
	}
	if err := cc.sendCommand(cmd); err != nil {
		cc.pendingLookup.resolve(requestId, LookupResult{}, corerr.ResultNotConnected)
	}
	return entry.wait()
}

// PartitionMetadata performs the partition_metadata operation.
func (cc *ClientConnection) PartitionMetadata(topic string, requestId uint64) (int32, corerr.Result) {
	entry := cc.pendingPartitionMeta.register(requestId, cc.cfg.OperationTimeout, func() {
		cc.pendingPartitionMeta.resolve(requestId, 0, corerr.ResultTimeout)
	})
	cmd := &protocol.Command{
		Type: protocol.TypePartitionedMetadata,
		PartitionedMetadata: &protocol.CommandPartitionedMetadata{
			RequestId: requestId,
			Topic:     topic,
		},
	}
	if err := cc.sendCommand(cmd); err != nil {
		cc.pendingPartitionMeta.resolve(requestId, 0, corerr.ResultNotConnected)
	}
	return entry.wait()
}

// GetLastMessageId performs the get_last_message_id operation.
func (cc *ClientConnection) GetLastMessageId(consumerId, requestId uint64) (contracts.MessageIdData, corerr.Result) {
	entry := cc.pendingLastMsgId.register(requestId, cc.cfg.OperationTimeout, func() {
		cc.pendingLastMsgId.resolve(requestId, contracts.MessageIdData{}, corerr.ResultTimeout)
	})
	cmd := &protocol.Command{
		Type: protocol.TypeGetLastMessageId,
		GetLastMessageId: &protocol.CommandGetLastMessageId{
			RequestId:  requestId,
			ConsumerId: consumerId,
		},
	}
	if err := cc.sendCommand(cmd); err != nil {
		cc.pendingLastMsgId.resolve(requestId, contracts.MessageIdData{}, corerr.ResultNotConnected)
	}
	return entry.wait()
}

// GetTopicsOfNamespace performs the get_topics_of_namespace operation;
// results are de-duplicated and stripped of "-partition-<n>" suffixes.
func (cc *ClientConnection) GetTopicsOfNamespace(namespace string, requestId uint64) ([]string, corerr.Result) {
	entry := cc.pendingNamespaceTopics.register(requestId, cc.cfg.OperationTimeout, func() {
		cc.pendingNamespaceTopics.resolve(requestId, nil, corerr.ResultTimeout)
	})
	cmd := &protocol.Command{
		Type: protocol.TypeGetTopicsOfNamespace,
		GetTopicsOfNamespace: &protocol.CommandGetTopicsOfNamespace{
			RequestId: requestId,
			Namespace: namespace,
		},
	}
	if err := cc.sendCommand(cmd); err != nil {
		cc.pendingNamespaceTopics.resolve(requestId, nil, corerr.ResultNotConnected)
	}
	return entry.wait()
}

// GetSchema performs the get_schema operation.
func (cc *ClientConnection) GetSchema(topic string, requestId uint64) ([]byte, corerr.Result) {
	entry := cc.pendingSchema.register(requestId, cc.cfg.OperationTimeout, func() {
		cc.pendingSchema.resolve(requestId, nil, corerr.ResultTimeout)
	})
	cmd := &protocol.Command{
		Type:      protocol.TypeGetSchema,
		GetSchema: &protocol.CommandGetSchema{RequestId: requestId, Topic: topic},
	}
	if err := cc.sendCommand(cmd); err != nil {
		cc.pendingSchema.resolve(requestId, nil, corerr.ResultNotConnected)
	}
	return entry.wait()
}

// ConsumerStats performs the consumer_stats operation.
func (cc *ClientConnection) ConsumerStats(consumerId, requestId uint64) corerr.Result {
	entry := cc.pendingConsumerStats.register(requestId, cc.cfg.OperationTimeout, func() {
		cc.pendingConsumerStats.resolve(requestId, struct{}{}, corerr.ResultTimeout)
	})
	cmd := &protocol.Command{
		Type: protocol.TypeConsumerStats,
		ConsumerStats: &protocol.CommandConsumerStats{
			RequestId:  requestId,
			ConsumerId: consumerId,
		},
	}
	if err := cc.sendCommand(cmd); err != nil {
		cc.pendingConsumerStats.resolve(requestId, struct{}{}, corerr.ResultNotConnected)
	}
	_, result := entry.wait()
	return result
}

// CreateProducer sends the CommandProducer and waits for the two-phase
// PRODUCER_SUCCESS.
func (cc *ClientConnection) CreateProducer(cmd *protocol.Command, requestId uint64) (contracts.ResponseData, corerr.Result) {
	entry := cc.pendingProducerCreate.register(requestId, cc.cfg.OperationTimeout, func() {
		cc.pendingProducerCreate.resolve(requestId, contracts.ResponseData{}, corerr.ResultTimeout)
	})
	if err := cc.sendCommand(cmd); err != nil {
		cc.pendingProducerCreate.resolve(requestId, contracts.ResponseData{}, corerr.ResultNotConnected)
	}
	return entry.wait()
}

// Close transitions the connection to Disconnected, shuts the socket
// down, cancels timers, and — outside the registry lock — fails every
// outstanding promise and notifies registered producers/consumers.
// Idempotent.
func (cc *ClientConnection) Close(result corerr.Result) {
	cc.closeOnce.Do(func() {
		cc.state.store(StateDisconnected)

		if cc.keepAliveTimer != nil {
			cc.keepAliveTimer.Stop()
		}
		if cc.socket != nil {
			cc.socket.Close(fmt.Errorf("connection: closed: %s", result))
		}

		cc.mu.Lock()
		producers := make([]contracts.ProducerNotifyInterface, 0, len(cc.producers))
		for _, p := range cc.producers {
			producers = append(producers, p)
		}
		consumers := make([]contracts.ConsumerPushInterface, 0, len(cc.consumers))
		for _, c := range cc.consumers {
			consumers = append(consumers, c)
		}
		cc.mu.Unlock()

		cc.pendingGeneric.failAll(result)
		cc.pendingLookup.failAll(result)
		cc.pendingPartitionMeta.failAll(result)
		cc.pendingLastMsgId.failAll(result)
		cc.pendingSchema.failAll(result)
		cc.pendingNamespaceTopics.failAll(result)
		cc.pendingConsumerStats.failAll(result)
		cc.pendingProducerCreate.failAll(result)

		select {
		case cc.connectResult <- result:
		default:
		}
		close(cc.closedCh)

		for _, p := range producers {
			p.DisconnectProducer(result)
		}
		for _, c := range consumers {
			c.DisconnectConsumer(result)
		}

		rlog.Info("connection %s closed: %s", cc.id, result)
	})
}
