package connection

import (
	"strings"

	"ryanMQ/internal/corerr"
	"ryanMQ/internal/protocol"
	"ryanMQ/internal/rlog"
	"ryanMQ/pkg/contracts"
)

// OnFrame implements transport.FrameHandler: it is the connection-wide
// dispatch table, gated by connection state. In Pending/Disconnected
// every frame is dropped (nothing is expected yet, or ever again); in
// TcpConnected only CONNECTED is accepted and anything else is a
// protocol violation that closes the connection; in Ready an unknown or
// unexpected command type likewise closes the connection rather than
// being silently dropped.
func (cc *ClientConnection) OnFrame(f *protocol.DecodedFrame) {
	cmd := f.Command
	if cmd == nil {
		return
	}

	// Any inbound data, not just a PONG, proves the peer is alive.
	atomicStoreHavePendingPing(cc, false)

	state := cc.state.load()
	switch state {
	case StatePending, StateDisconnected:
		rlog.Warn("connection %s: dropping frame %s received in state %s", cc.id, cmd.Type, state)
		return
	case StateTcpConnected:
		if cmd.Type != protocol.TypeConnected {
			rlog.Warn("connection %s: protocol violation: frame %s received before CONNECTED, closing", cc.id, cmd.Type)
			cc.Close(corerr.ResultUnknownError)
			return
		}
	}

	switch cmd.Type {
	case protocol.TypeConnected:
		cc.handleConnected(cmd.Connected)
	case protocol.TypePing:
		cc.handlePing()
	case protocol.TypePong:
		cc.handlePong()
	case protocol.TypeSendReceipt:
		cc.handleSendReceipt(cmd.SendReceipt)
	case protocol.TypeSendError:
		cc.handleSendError(cmd.SendError)
	case protocol.TypeSuccess:
		cc.handleSuccess(cmd.Success)
	case protocol.TypeError:
		cc.handleError(cmd.Error)
	case protocol.TypeLookupResponse:
		cc.handleLookupResponse(cmd.LookupResponse)
	case protocol.TypePartitionedMetadataResponse:
		cc.handlePartitionedMetadataResponse(cmd.PartitionedMetadataResponse)
	case protocol.TypeProducerSuccess:
		cc.handleProducerSuccess(cmd.ProducerSuccess)
	case protocol.TypeCloseProducer:
		cc.handleCloseProducer(cmd.CloseProducer)
	case protocol.TypeCloseConsumer:
		cc.handleCloseConsumer(cmd.CloseConsumer)
	case protocol.TypeMessage:
		cc.handleMessage(cmd.Message, f)
	case protocol.TypeAuthChallenge:
		cc.handleAuthChallenge(cmd.AuthChallenge)
	case protocol.TypeConsumerStatsResponse:
		cc.handleConsumerStatsResponse(cmd.ConsumerStatsResponse)
	case protocol.TypeActiveConsumerChange:
		cc.handleActiveConsumerChange(cmd.ActiveConsumerChange)
	case protocol.TypeGetLastMessageIdResponse:
		cc.handleGetLastMessageIdResponse(cmd.GetLastMessageIdResponse)
	case protocol.TypeGetTopicsOfNamespaceResponse:
		cc.handleGetTopicsOfNamespaceResponse(cmd.GetTopicsOfNamespaceResponse)
	case protocol.TypeGetSchemaResponse:
		cc.handleGetSchemaResponse(cmd.GetSchemaResponse)
	case protocol.TypeAckResponse:
		// Consumer ack tracking is out of scope for this connection; the
		// broker's ACK_RESPONSE is acknowledged as received and dropped
		// rather than routed to a dedicated pending map.
	default:
		rlog.Warn("connection %s: closing on unexpected frame %s in state %s", cc.id, cmd.Type, state)
		cc.Close(corerr.ResultUnknownError)
	}
}

// OnClose implements transport.FrameHandler.
func (cc *ClientConnection) OnClose(err error) {
	result := corerr.ResultDisconnected
	if err == nil {
		result = corerr.ResultOk
	}
	cc.Close(result)
}

func (cc *ClientConnection) handleConnected(c *protocol.CommandConnected) {
	if c == nil || !cc.state.casFrom(StateTcpConnected, StateReady) {
		return
	}
	if c.ServerVersion == "" {
		rlog.Warn("connection %s: CONNECTED missing server_version, closing", cc.id)
		cc.Close(corerr.ResultUnknownError)
		return
	}
	cc.serverVersion = c.ServerVersion
	cc.protocolVersion = c.ProtocolVersion
	if c.MaxMessageSize > 0 {
		setMaxMessageSize(c.MaxMessageSize)
	}
	if c.ProtocolVersion >= 1 {
		cc.startKeepAlive()
	}

	select {
	case cc.connectResult <- nil:
	default:
	}
}

func (cc *ClientConnection) handlePing() {
	_ = cc.sendCommand(&protocol.Command{Type: protocol.TypePong, Pong: &protocol.CommandPong{}})
}

func (cc *ClientConnection) handlePong() {
	atomicStoreHavePendingPing(cc, false)
}

func (cc *ClientConnection) handleSendReceipt(r *protocol.CommandSendReceipt) {
	if r == nil {
		return
	}
	cc.mu.Lock()
	p, ok := cc.producers[r.ProducerId]
	cc.mu.Unlock()
	if !ok {
		return
	}
	if !p.AckReceived(r.SequenceId, r.LedgerId, r.EntryId) {
		rlog.Warn("connection %s: producer %d rejected send receipt for sequence %d, closing", cc.id, r.ProducerId, r.SequenceId)
		cc.Close(corerr.ResultUnknownError)
	}
}

func (cc *ClientConnection) handleSendError(e *protocol.CommandSendError) {
	if e == nil {
		return
	}
	result := corerr.MapBrokerError(e.Error)
	cc.mu.Lock()
	p, ok := cc.producers[e.ProducerId]
	cc.mu.Unlock()
	if ok && !p.RemoveCorruptMessage(e.SequenceId) {
		rlog.Warn("connection %s: producer %d rejected send error for sequence %d, closing", cc.id, e.ProducerId, e.SequenceId)
		cc.Close(corerr.ResultUnknownError)
		return
	}
	if corerr.ClosesConnection(e.Error) {
		cc.Close(result)
	}
}

func (cc *ClientConnection) handleSuccess(s *protocol.CommandSuccess) {
	if s == nil {
		return
	}
	cc.pendingGeneric.resolve(s.RequestId, nil, corerr.ResultOk)
}

func (cc *ClientConnection) handleError(e *protocol.CommandError) {
	if e == nil {
		return
	}
	cc.pendingGeneric.resolve(e.RequestId, nil, corerr.MapBrokerErrorWithMessage(e.Error, e.Message))
}

func (cc *ClientConnection) handleLookupResponse(r *protocol.CommandLookupResponse) {
	if r == nil {
		return
	}
	if r.Response == protocol.LookupFailed {
		cc.pendingLookup.resolve(r.RequestId, LookupResult{}, corerr.MapBrokerErrorWithMessage(r.Error, r.Message))
		return
	}
	cc.pendingLookup.resolve(r.RequestId, LookupResult{
		BrokerURL:              r.BrokerServiceURL,
		BrokerURLTLS:           r.BrokerServiceURLTLS,
		Authoritative:          r.Authoritative,
		Redirect:               r.Response == protocol.LookupRedirect,
		ProxyThroughServiceURL: r.ProxyThroughServiceURL,
	}, corerr.ResultOk)
}

func (cc *ClientConnection) handlePartitionedMetadataResponse(r *protocol.CommandPartitionedMetadataResponse) {
	if r == nil {
		return
	}
	if r.Error != protocol.ErrNone {
		cc.pendingPartitionMeta.resolve(r.RequestId, 0, corerr.MapBrokerError(r.Error))
		return
	}
	cc.pendingPartitionMeta.resolve(r.RequestId, int32(r.Partitions), corerr.ResultOk)
}

// handleProducerSuccess implements the two-phase response:
// ProducerReady=false means this is only the intermediate reply and the
// pending request must keep waiting for a later, final PRODUCER_SUCCESS.
func (cc *ClientConnection) handleProducerSuccess(r *protocol.CommandProducerSuccess) {
	if r == nil {
		return
	}
	if !r.ProducerReady {
		cc.pendingProducerCreate.markIntermediate(r.RequestId)
		return
	}
	cc.pendingProducerCreate.resolve(r.RequestId, contracts.ResponseData{
		ProducerName:   r.ProducerName,
		LastSequenceId: r.LastSequenceId,
		SchemaVersion:  r.SchemaVersion,
		TopicEpoch:     r.TopicEpoch,
	}, corerr.ResultOk)
}

func (cc *ClientConnection) handleCloseProducer(c *protocol.CommandCloseProducer) {
	if c == nil {
		return
	}
	cc.mu.Lock()
	p, ok := cc.producers[c.ProducerId]
	cc.mu.Unlock()
	if ok {
		p.DisconnectProducer(corerr.ResultProducerFenced)
	}
}

func (cc *ClientConnection) handleCloseConsumer(c *protocol.CommandCloseConsumer) {
	if c == nil {
		return
	}
	cc.mu.Lock()
	cons, ok := cc.consumers[c.ConsumerId]
	cc.mu.Unlock()
	if ok {
		cons.DisconnectConsumer(corerr.ResultDisconnected)
	}
}

func (cc *ClientConnection) handleMessage(m *protocol.CommandMessage, f *protocol.DecodedFrame) {
	if m == nil {
		return
	}
	cc.mu.Lock()
	cons, ok := cc.consumers[m.ConsumerId]
	cc.mu.Unlock()
	if !ok {
		return
	}
	cons.MessageReceived(cc, m.LedgerId, m.EntryId, !f.ChecksumPresent || f.ChecksumValid, f.BrokerEntryMeta, f.Payload)
}

func (cc *ClientConnection) handleAuthChallenge(c *protocol.CommandAuthChallenge) {
	if c == nil || cc.cfg.Authenticator == nil {
		return
	}
	resp, err := cc.cfg.Authenticator.Authenticate(c.Challenge)
	if err != nil {
		rlog.Error("connection %s: auth challenge failed: %v", cc.id, err)
		cc.Close(corerr.ResultAuthenticationError)
		return
	}
	// Fire-and-forget: no pending-request tracking for AUTH_RESPONSE.
	_ = cc.sendCommand(&protocol.Command{
		Type:         protocol.TypeAuthResponse,
		AuthResponse: &protocol.CommandAuthResponse{Response: resp},
	})
}

func (cc *ClientConnection) handleConsumerStatsResponse(r *protocol.CommandConsumerStatsResponse) {
	if r == nil {
		return
	}
	cc.pendingConsumerStats.resolve(r.RequestId, struct{}{}, corerr.MapBrokerError(r.Error))
}

func (cc *ClientConnection) handleActiveConsumerChange(c *protocol.CommandActiveConsumerChange) {
	if c == nil {
		return
	}
	cc.mu.Lock()
	cons, ok := cc.consumers[c.ConsumerId]
	cc.mu.Unlock()
	if ok {
		cons.ActiveConsumerChanged(c.IsActive)
	}
}

func (cc *ClientConnection) handleGetLastMessageIdResponse(r *protocol.CommandGetLastMessageIdResponse) {
	if r == nil {
		return
	}
	cc.pendingLastMsgId.resolve(r.RequestId, contracts.MessageIdData{LedgerId: r.LedgerId, EntryId: r.EntryId}, corerr.ResultOk)
}

// handleGetTopicsOfNamespaceResponse de-duplicates and strips partition
// suffixes from the topic list (the topic-of-namespace
// response").
func (cc *ClientConnection) handleGetTopicsOfNamespaceResponse(r *protocol.CommandGetTopicsOfNamespaceResponse) {
	if r == nil {
		return
	}
	seen := make(map[string]struct{}, len(r.Topics))
	out := make([]string, 0, len(r.Topics))
	for _, t := range r.Topics {
		base := stripPartitionSuffix(t)
		if _, dup := seen[base]; dup {
			continue
		}
		seen[base] = struct{}{}
		out = append(out, base)
	}
	cc.pendingNamespaceTopics.resolve(r.RequestId, out, corerr.ResultOk)
}

func (cc *ClientConnection) handleGetSchemaResponse(r *protocol.CommandGetSchemaResponse) {
	if r == nil {
		return
	}
	if r.Error != protocol.ErrNone {
		cc.pendingSchema.resolve(r.RequestId, nil, corerr.MapBrokerError(r.Error))
		return
	}
	cc.pendingSchema.resolve(r.RequestId, r.SchemaVersion, corerr.ResultOk)
}

func stripPartitionSuffix(topic string) string {
	const marker = "-partition-"
	idx := strings.LastIndex(topic, marker)
	if idx < 0 {
		return topic
	}
	suffix := topic[idx+len(marker):]
	if suffix == "" {
		return topic
	}
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return topic
		}
	}
	return topic[:idx]
}
