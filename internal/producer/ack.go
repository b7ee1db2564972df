package producer

import (
	"context"
	"sync/atomic"

	"ryanMQ/internal/corerr"
	"ryanMQ/internal/handler"
	"ryanMQ/internal/protocol"
	"ryanMQ/internal/rlog"
	"ryanMQ/pkg/contracts"
)

// AckReceived implements contracts.ProducerNotifyInterface's ack
// reconciliation: the head of the pending queue is compared
// against the acked sequenceId. A strictly greater sequenceId than the
// head is a protocol violation (broker acked something not yet sent);
// a strictly lesser one is a stale/duplicate receipt and is dropped.
func (p *ProducerImpl) AckReceived(sequenceId uint64, ledgerID, entryID uint64) bool {
	op, ok := p.queue.Front()
	if !ok {
		// Nothing pending: most likely a receipt for a send that already
		// timed out and was popped. Not a protocol violation.
		return true
	}
	if sequenceId > op.SequenceId {
		return false
	}
	if sequenceId < op.SequenceId {
		return true
	}

	p.queue.PopFront()
	p.releaseAdmission(op.NumMessagesInBatch, op.memoryReserved)

	p.mu.Lock()
	newLast := int64(sequenceId) + int64(op.NumMessagesInBatch) - 1
	if newLast > p.lastSequenceIdPublished {
		p.lastSequenceIdPublished = newLast
	}
	p.mu.Unlock()

	op.complete(contracts.MessageIdData{LedgerId: ledgerID, EntryId: entryID}, corerr.ResultOk)
	return true
}

// RemoveCorruptMessage implements contracts.ProducerNotifyInterface: a
// SEND_ERROR with ChecksumError pops and fails the head the same way an
// ack does, but with a ChecksumError result instead of a message id.
func (p *ProducerImpl) RemoveCorruptMessage(sequenceId uint64) bool {
	op, ok := p.queue.Front()
	if !ok {
		return true
	}
	if sequenceId > op.SequenceId {
		return false
	}
	if sequenceId < op.SequenceId {
		return true
	}

	p.queue.PopFront()
	p.releaseAdmission(op.NumMessagesInBatch, op.memoryReserved)
	op.complete(contracts.MessageIdData{}, corerr.ResultChecksumError)
	return true
}

// DisconnectProducer implements contracts.ProducerNotifyInterface: the
// connection this producer was bound to went away (SEND_ERROR with a
// connection-closing code, or the socket itself closed).
func (p *ProducerImpl) DisconnectProducer(result corerr.Result) {
	p.connMu.Lock()
	conn := p.conn
	p.conn = nil
	p.connMu.Unlock()

	if result == corerr.ResultProducerFenced {
		p.base.Fence()
		p.failAllPending(result)
		return
	}

	p.base.HandleDisconnection(context.Background(), result, conn)
}

// failAllPending drains the pending queue and fails every entry, used
// on a terminal disconnection (fenced) and on Close.
func (p *ProducerImpl) failAllPending(result corerr.Result) {
	for _, op := range p.queue.DrainAll() {
		p.releaseAdmission(op.NumMessagesInBatch, op.memoryReserved)
		op.complete(contracts.MessageIdData{}, result)
	}
}

// Close is idempotent and stops the reconnection
// state machine, unblocks anyone waiting on admission, fails whatever
// is still pending, and tells the broker to release the producer.
func (p *ProducerImpl) Close() corerr.Result {
	if !atomic.CompareAndSwapInt32(&p.closing, 0, 1) {
		return corerr.ResultAlreadyClosed
	}

	wasStarted := p.base.State() != handler.StateNotStarted
	p.base.Close()
	close(p.closed)

	p.stopSendTimeoutTimer()
	p.stopBatchTimer()
	p.stopDataKeyRefresh()
	p.permits.closeAll()

	if !wasStarted {
		return corerr.ResultOk
	}

	p.mu.Lock()
	p.flushBatchLocked(p.producerName, p.schemaVersion)
	p.mu.Unlock()

	p.failAllPending(corerr.ResultAlreadyClosed)

	p.connMu.Lock()
	conn := p.conn
	p.conn = nil
	p.connMu.Unlock()
	if conn == nil {
		return corerr.ResultOk
	}
	conn.UnregisterProducer(p.producerId)
	requestId := conn.NextRequestId()
	frame, err := protocol.EncodeCommand(&protocol.Command{
		Type:          protocol.TypeCloseProducer,
		CloseProducer: &protocol.CommandCloseProducer{ProducerId: p.producerId, RequestId: requestId},
	})
	if err != nil {
		return corerr.ResultOk
	}
	if err := conn.SendCommandBytes(frame); err != nil {
		rlog.Warn("producer %d: close notification failed: %v", p.producerId, err)
	}
	return corerr.ResultOk
}
