// Package producer implements ProducerCore/ProducerImpl:
// admission control, batching, chunking, the encryption hook, ack
// reconciliation and resend-on-reconnect, built on top of
// internal/handler's reconnection state machine.
package producer

import (
	"context"
	"sync"
	"time"

	"ryanMQ/internal/compression"
	"ryanMQ/internal/connection"
	"ryanMQ/internal/corerr"
	"ryanMQ/internal/handler"
	"ryanMQ/internal/protocol"
	"ryanMQ/internal/rlog"
	"ryanMQ/pkg/contracts"
)

// ProducerImpl is one producer handle: a HandlerBase-driven reconnection
// loop wrapped around a pending-send pipeline.
type ProducerImpl struct {
	cfg        Configuration
	producerId uint64
	crypto     contracts.MessageCrypto

	base *handler.Base
	mem  *MemoryLimiter

	permits *permitSemaphore
	queue   *PendingQueue

	mu                     sync.Mutex
	batch                  BatchContainer
	seqGen                 uint64
	producerName           string
	schemaVersion          []byte
	topicEpoch             *uint64
	lastSequenceIdPublished int64

	connMu sync.Mutex
	conn   contracts.Connection

	sendTimeoutMu sync.Mutex
	sendTimer     *time.Timer

	batchTimerMu sync.Mutex
	batchTimer   *time.Timer

	dataKeyStop chan struct{}

	closing int32 // atomic bool, CAS-guarded so Close() runs its teardown exactly once
	closed  chan struct{}
}

// NewProducer constructs a producer bound to topic and starts its
// reconnection state machine.
func NewProducer(ctx context.Context, cfg Configuration, producerId uint64, pool contracts.ConnectionPool, mem *MemoryLimiter, crypto contracts.MessageCrypto) *ProducerImpl {
	cfg.setDefaults()

	p := &ProducerImpl{
		cfg:        cfg,
		producerId: producerId,
		crypto:     crypto,
		mem:        mem,
		permits:    newPermitSemaphore(cfg.MaxPendingMessages),
		queue:      NewPendingQueue(),
		batch:      NewBatchContainer(cfg.BatchingType, cfg.BatchingMaxMessages, cfg.BatchingMaxBytes),
		closed:     make(chan struct{}),
	}
	p.lastSequenceIdPublished = -1
	if cfg.InitialSequenceId != nil {
		p.seqGen = uint64(*cfg.InitialSequenceId) + 1
	}
	p.base = handler.New(handler.Config{
		Topic:            cfg.Topic,
		InitialBackoff:   cfg.InitialBackoff,
		MaxBackoff:       cfg.MaxBackoff,
		SendTimeout:      cfg.SendTimeout,
		OperationTimeout: cfg.OperationTimeout,
	}, pool, p)
	p.base.Start(ctx)
	return p
}

// ConnectionOpened implements handler.Owner: send the newProducer
// request and, on success, bind the connection and resend anything
// still pending.
func (p *ProducerImpl) ConnectionOpened(conn contracts.Connection, epoch uint64) {
	go p.createOnConnection(conn, epoch)
}

func (p *ProducerImpl) createOnConnection(conn contracts.Connection, epoch uint64) {
	requestId := conn.NextRequestId()
	cmd := &protocol.Command{
		Type: protocol.TypeProducer,
		Producer: &protocol.CommandProducer{
			RequestId:                     requestId,
			ProducerId:                    p.producerId,
			Topic:                         p.cfg.Topic,
			ProducerName:                  p.cfg.ProducerName,
			UserProvidedProducerName:      p.cfg.ProducerName != "",
			Encrypted:                     p.cfg.EncryptionEnabled,
			Properties:                    p.cfg.Properties,
			ProducerAccessMode:            p.cfg.AccessMode,
			TopicEpoch:                    p.cfg.TopicEpoch,
			InitialSubscriptionName:       p.cfg.InitialSubscriptionName,
			LazyStartPartitionedProducers: p.cfg.LazyStartPartitionedProducers,
		},
	}

	resp, result := conn.CreateProducer(cmd, requestId)
	if result != corerr.ResultOk {
		rlog.Warn("producer %d: create on %s failed: %s", p.producerId, conn.ID(), result)
		if result == corerr.ResultTimeout {
			// Let the broker release the half-created producer slot
			//.
			p.sendCloseProducer(conn)
		}
		if epoch == p.base.Epoch() {
			p.base.HandleDisconnection(context.Background(), result, conn)
		}
		return
	}

	p.mu.Lock()
	p.producerName = resp.ProducerName
	p.schemaVersion = resp.SchemaVersion
	p.topicEpoch = resp.TopicEpoch
	if p.cfg.InitialSequenceId == nil {
		p.seqGen = uint64(resp.LastSequenceId) + 1
	}
	p.mu.Unlock()

	conn.RegisterProducer(p.producerId, p)
	p.connMu.Lock()
	p.conn = conn
	p.connMu.Unlock()

	p.resendMessages(conn)
	p.base.TransitionToReady()
	p.armSendTimeoutTimer()
	if p.cfg.EncryptionEnabled {
		p.armDataKeyRefresh()
	}
	rlog.Info("producer %d ready on %s as %q", p.producerId, conn.ID(), p.producerName)
}

func (p *ProducerImpl) sendCloseProducer(conn contracts.Connection) {
	requestId := conn.NextRequestId()
	frame, err := protocol.EncodeCommand(&protocol.Command{
		Type:          protocol.TypeCloseProducer,
		CloseProducer: &protocol.CommandCloseProducer{ProducerId: p.producerId, RequestId: requestId},
	})
	if err != nil {
		return
	}
	_ = conn.SendCommandBytes(frame)
}

// ConnectionFailed implements handler.Owner.
func (p *ProducerImpl) ConnectionFailed(result corerr.Result) {
	rlog.Warn("producer %d: connection attempt failed: %s", p.producerId, result)
}

// resendMessages replays the entire
// pending queue, in order, on the freshly bound connection.
func (p *ProducerImpl) resendMessages(conn contracts.Connection) {
	for _, op := range p.queue.Snapshot() {
		if op.Frame == nil {
			continue
		}
		if err := conn.SendCommandBytes(op.Frame); err != nil {
			rlog.Warn("producer %d: resend of sequence %d failed: %v", p.producerId, op.SequenceId, err)
			return
		}
	}
}

// canEnqueueRequest is the admission-control gate ahead of a send.
func (p *ProducerImpl) canEnqueueRequest(ctx context.Context, payloadSize int) corerr.Result {
	if p.cfg.BlockIfQueueFull {
		if result := p.permits.acquire(ctx); result != corerr.ResultOk {
			return result
		}
		if err := p.mem.Reserve(ctx, int64(payloadSize)); err != nil {
			p.permits.release()
			return corerr.ResultInterrupted
		}
		return corerr.ResultOk
	}

	if !p.permits.tryAcquire() {
		return corerr.ResultProducerQueueIsFull
	}
	if !p.mem.TryReserve(int64(payloadSize)) {
		p.permits.release()
		return corerr.ResultMemoryBufferIsFull
	}
	return corerr.ResultOk
}

// releaseAdmission returns permits admission-control permits (never
// fewer than one) and reservedMemory bytes to the shared budget. A
// batched op's permits count is the number of messages it collapsed,
// not one, or a full batch would exhaust the permit semaphore one
// message at a time on every ack.
func (p *ProducerImpl) releaseAdmission(permits int32, reservedMemory int64) {
	if permits < 1 {
		permits = 1
	}
	p.permits.releaseN(int(permits))
	if reservedMemory > 0 {
		p.mem.Release(reservedMemory)
	}
}

// Send is the send entry point.
func (p *ProducerImpl) Send(ctx context.Context, msg *Message, cb SendCallback) corerr.Result {
	switch p.base.State() {
	case handler.StateReady, handler.StatePending:
	case handler.StateClosing, handler.StateClosed:
		return corerr.ResultAlreadyClosed
	case handler.StateProducerFenced:
		return corerr.ResultProducerFenced
	default:
		return corerr.ResultNotConnected
	}

	if msg.ProducerName != "" {
		return corerr.ResultInvalidMessage
	}

	if result := p.canEnqueueRequest(ctx, len(msg.Payload)); result != corerr.ResultOk {
		return result
	}

	p.mu.Lock()
	seqId := p.seqGen
	p.seqGen++
	producerName := p.producerName
	schemaVersion := p.schemaVersion
	p.mu.Unlock()

	batchable := p.cfg.BatchingEnabled && !msg.HasDeliverAt
	if batchable {
		return p.sendBatched(msg, cb, seqId, producerName, schemaVersion)
	}
	return p.sendIndividual(ctx, msg, cb, seqId, producerName, schemaVersion, int64(len(msg.Payload)))
}

func (p *ProducerImpl) sendBatched(msg *Message, cb SendCallback, seqId uint64, producerName string, schemaVersion []byte) corerr.Result {
	p.mu.Lock()
	first := p.batch.IsFirstMessageToAdd(msg)
	if !p.batch.HasEnoughSpace(msg) {
		p.flushBatchLocked(producerName, schemaVersion)
	}
	full := p.batch.Add(msg, cb, seqId)
	p.mu.Unlock()

	if first {
		p.armBatchTimer(producerName, schemaVersion)
	}
	if full {
		p.mu.Lock()
		p.flushBatchLocked(producerName, schemaVersion)
		p.mu.Unlock()
	}
	return corerr.ResultOk
}

// flushBatchLocked must be called with p.mu held; it builds and enqueues
// the batch's OpSendMsg(s) and clears the container.
func (p *ProducerImpl) flushBatchLocked(producerName string, schemaVersion []byte) {
	if p.batch.IsEmpty() {
		return
	}
	ops := p.batch.CreateOpSendMsgs(producerName, p.cfg.CompressionType, func(meta *protocol.MessageMetadata, payload []byte, cbs []SendCallback) *OpSendMsg {
		meta.PublishTime = uint64(time.Now().UnixMilli())
		meta.SchemaVersion = schemaVersion
		// meta.UncompressedSize is the sum of every batched message's
		// payload, i.e. exactly what canEnqueueRequest reserved for each
		// of them; len(payload) here is the batch's *compressed* size and
		// would under-release whenever compression is enabled.
		return p.buildFrameOp(meta, payload, multiCallback(cbs), int64(meta.UncompressedSize))
	})
	for _, op := range ops {
		p.enqueue(op)
	}
}

// multiCallback fans a single ack/fail out to every message batched
// into one OpSendMsg.
func multiCallback(cbs []SendCallback) SendCallback {
	return func(id contracts.MessageIdData, result corerr.Result) {
		for _, cb := range cbs {
			if cb != nil {
				cb(id, result)
			}
		}
	}
}

// sendIndividual handles the non-batched path: compress now, chunk if
// necessary, build one or more OpSendMsgs.
func (p *ProducerImpl) sendIndividual(ctx context.Context, msg *Message, cb SendCallback, seqId uint64, producerName string, schemaVersion []byte, reservedMemory int64) corerr.Result {
	payload := msg.Payload
	compressed, err := compressPayload(p.cfg.CompressionType, payload)
	if err != nil {
		p.releaseAdmission(1, reservedMemory)
		return corerr.ResultCryptoError
	}

	if p.crypto != nil && p.cfg.EncryptionEnabled {
		enc, _, encErr := p.crypto.Encrypt(compressed, p.cfg.EncryptionKeyNames)
		if encErr != nil {
			p.releaseAdmission(1, reservedMemory)
			return corerr.ResultCryptoError
		}
		compressed = enc
	}

	maxMessageSize := connection.MaxMessageSize()
	baseMeta := &protocol.MessageMetadata{
		ProducerName:     producerName,
		SequenceId:       seqId,
		PublishTime:      uint64(time.Now().UnixMilli()),
		Compression:      p.cfg.CompressionType,
		UncompressedSize: uint32(len(payload)),
		SchemaVersion:    schemaVersion,
		PartitionKey:     msg.PartitionKey,
		OrderingKey:      msg.OrderingKey,
	}
	metaBytes, err := protocol.EncodeMessageMetadata(baseMeta)
	if err != nil {
		p.releaseAdmission(1, reservedMemory)
		return corerr.ResultUnknownError
	}

	totalSize := len(metaBytes) + len(compressed)
	chunkingEligible := p.cfg.ChunkingEnabled
	if totalSize <= int(maxMessageSize) {
		op := p.buildFrameOp(baseMeta, compressed, cb, reservedMemory)
		op.NumMessagesInBatch = 1
		p.enqueue(op)
		return corerr.ResultOk
	}

	if !chunkingEligible {
		p.releaseAdmission(1, reservedMemory)
		return corerr.ResultMessageTooBig
	}

	numChunks, chunkSize, planErr := planChunks(len(compressed), len(metaBytes), maxMessageSize)
	if planErr != nil {
		p.releaseAdmission(1, reservedMemory)
		return planErr.(corerr.Result)
	}

	accum := &chunkAccumulator{numChunks: int32(numChunks)}
	chunks := splitPayload(compressed, numChunks, chunkSize)
	uuid := chunkUUID(producerName, seqId)

	for i, chunkPayload := range chunks {
		if i > 0 {
			// Extra chunks reserve a permit only, memory was already
			// charged for the whole message.
			if result := p.canEnqueueRequest(ctx, 0); result != corerr.ResultOk {
				// Earlier chunks are already enqueued (and possibly
				// already written) sharing this accumulator, but none of
				// them is IsLastChunk, so their own ack/timeout would
				// never surface a result to the caller. Report the
				// failure now; their individual permits/memory are
				// still released normally as each one completes.
				if cb != nil {
					cb(contracts.MessageIdData{}, result)
				}
				return result
			}
		}
		meta := &protocol.MessageMetadata{
			ProducerName:      producerName,
			SequenceId:        seqId,
			PublishTime:       uint64(time.Now().UnixMilli()),
			Compression:       p.cfg.CompressionType,
			UncompressedSize:  uint32(len(payload)),
			SchemaVersion:     schemaVersion,
			PartitionKey:      msg.PartitionKey,
			OrderingKey:        msg.OrderingKey,
			UUID:              uuid,
			ChunkId:           int32(i),
			NumChunksFromMsg:  int32(numChunks),
			TotalChunkMsgSize: uint32(len(compressed)),
		}
		var reserved int64
		if i == 0 {
			reserved = reservedMemory
		}
		op := p.buildFrameOp(meta, chunkPayload, cb, reserved)
		op.accum = accum
		op.IsLastChunk = i == numChunks-1
		op.NumMessagesInBatch = 1
		p.enqueue(op)
	}
	return corerr.ResultOk
}

// buildFrameOp encodes the wire frame for one SEND and wraps it in an
// OpSendMsg with a send-timeout deadline.
func (p *ProducerImpl) buildFrameOp(meta *protocol.MessageMetadata, payload []byte, cb SendCallback, reservedMemory int64) *OpSendMsg {
	cmd := &protocol.Command{
		Type: protocol.TypeSend,
		Send: &protocol.CommandSend{
			ProducerId:  p.producerId,
			SequenceId:  meta.SequenceId,
			NumMessages: 1,
		},
	}
	frame, err := protocol.EncodeSend(cmd, meta, payload, true)
	op := &OpSendMsg{
		SequenceId:   meta.SequenceId,
		Callback:     cb,
		SendDeadline: time.Now().Add(p.cfg.SendTimeout),
	}
	if err != nil {
		op.Result = corerr.ResultUnknownError
		return op
	}
	op.Result = corerr.ResultOk
	op.Frame = frame
	op.memoryReserved = reservedMemory
	return op
}

// enqueue appends op to the pending queue and, if a connection is
// currently bound, writes it immediately.
func (p *ProducerImpl) enqueue(op *OpSendMsg) {
	if op.Result != corerr.ResultOk {
		op.complete(contracts.MessageIdData{}, op.Result)
		return
	}
	if p.queue.PushBackWasEmpty(op) {
		p.armSendTimeoutTimer()
	}

	p.connMu.Lock()
	conn := p.conn
	p.connMu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.SendCommandBytes(op.Frame); err != nil {
		rlog.Warn("producer %d: write failed: %v", p.producerId, err)
	}
}

func compressPayload(t protocol.CompressionType, payload []byte) ([]byte, error) {
	if t == protocol.CompressionNone {
		return payload, nil
	}
	codec, err := compression.Get(t)
	if err != nil {
		return payload, nil
	}
	return codec.Encode(payload)
}
