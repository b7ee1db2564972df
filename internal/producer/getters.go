package producer

import "ryanMQ/internal/handler"

// Topic returns the topic this producer was created against.
func (p *ProducerImpl) Topic() string { return p.cfg.Topic }

// ProducerName returns the broker-assigned (or user-pinned) producer
// name once the create handshake has completed; empty before Ready.
func (p *ProducerImpl) ProducerName() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.producerName
}

// LastSequenceIdPublished returns the highest sequenceId acked so far,
// or -1 if nothing has been acked yet.
func (p *ProducerImpl) LastSequenceIdPublished() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSequenceIdPublished
}

// IsConnected reports whether the producer currently has a bound
// connection and has completed its create handshake.
func (p *ProducerImpl) IsConnected() bool {
	return p.base.State() == handler.StateReady
}

// PendingQueueSize reports how many sends are awaiting an ack, for
// diagnostics/metrics.
func (p *ProducerImpl) PendingQueueSize() int {
	return p.queue.Len()
}

// Closed returns a channel closed once Close() has run.
func (p *ProducerImpl) Closed() <-chan struct{} {
	return p.closed
}
