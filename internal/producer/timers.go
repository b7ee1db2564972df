package producer

import (
	"time"

	"ryanMQ/internal/corerr"
	"ryanMQ/internal/rlog"
	"ryanMQ/pkg/contracts"
)

// armSendTimeoutTimer (re)starts the head-first send-timeout watchdog
//: only the queue's head is ever timed, and firing it
// always recomputes the next deadline from whatever is now at the
// head, rather than tracking one timer per entry.
func (p *ProducerImpl) armSendTimeoutTimer() {
	op, ok := p.queue.Front()
	if !ok {
		return
	}
	delay := time.Until(op.SendDeadline)
	if delay < 0 {
		delay = 0
	}

	p.sendTimeoutMu.Lock()
	if p.sendTimer != nil {
		p.sendTimer.Stop()
	}
	p.sendTimer = time.AfterFunc(delay, p.sendTimeoutTick)
	p.sendTimeoutMu.Unlock()
}

func (p *ProducerImpl) stopSendTimeoutTimer() {
	p.sendTimeoutMu.Lock()
	if p.sendTimer != nil {
		p.sendTimer.Stop()
	}
	p.sendTimeoutMu.Unlock()
}

// sendTimeoutTick fires one head-of-queue timeout check and rearms for
// whatever is now at the head, repeating until the queue is either
// empty or its head hasn't yet expired.
func (p *ProducerImpl) sendTimeoutTick() {
	for {
		op, ok := p.queue.Front()
		if !ok {
			return
		}
		if time.Now().Before(op.SendDeadline) {
			p.armSendTimeoutTimer()
			return
		}

		p.queue.PopFront()
		p.releaseAdmission(op.NumMessagesInBatch, op.memoryReserved)
		op.complete(contracts.MessageIdData{}, corerr.ResultTimeout)
		rlog.Warn("producer %d: send timeout for sequence %d", p.producerId, op.SequenceId)
	}
}

// armBatchTimer starts the batchingMaxPublishDelay countdown on the
// first message added to an otherwise-empty batch.
func (p *ProducerImpl) armBatchTimer(producerName string, schemaVersion []byte) {
	p.batchTimerMu.Lock()
	if p.batchTimer != nil {
		p.batchTimer.Stop()
	}
	p.batchTimer = time.AfterFunc(p.cfg.BatchingMaxPublishDelay, func() {
		p.mu.Lock()
		p.flushBatchLocked(producerName, schemaVersion)
		p.mu.Unlock()
	})
	p.batchTimerMu.Unlock()
}

func (p *ProducerImpl) stopBatchTimer() {
	p.batchTimerMu.Lock()
	if p.batchTimer != nil {
		p.batchTimer.Stop()
	}
	p.batchTimerMu.Unlock()
}

// armDataKeyRefresh starts the 4-hour encryption data-key rotation of
// when encryption is enabled: arms a 4h data-key refresh task.
// MessageCrypto owns the actual key material; the producer only needs
// to prompt it periodically.
func (p *ProducerImpl) armDataKeyRefresh() {
	p.dataKeyStop = make(chan struct{})
	stop := p.dataKeyStop
	go func() {
		ticker := time.NewTicker(4 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-p.closed:
				return
			case <-ticker.C:
				if _, _, err := p.crypto.Encrypt(nil, p.cfg.EncryptionKeyNames); err != nil {
					rlog.Warn("producer %d: data key refresh failed: %v", p.producerId, err)
				}
			}
		}
	}()
}

func (p *ProducerImpl) stopDataKeyRefresh() {
	if p.dataKeyStop != nil {
		close(p.dataKeyStop)
	}
}
