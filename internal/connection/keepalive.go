package connection

import (
	"sync/atomic"
	"time"

	"ryanMQ/internal/corerr"
	"ryanMQ/internal/protocol"
	"ryanMQ/internal/rlog"
)

// startKeepAlive arms the periodic PING described in the "keep
// alive": every interval, if a previous PING is still unanswered the
// connection is considered dead and closed; otherwise a fresh PING is
// sent and havePendingPing is set.
func (cc *ClientConnection) startKeepAlive() {
	cc.keepAliveTimer = time.AfterFunc(cc.cfg.KeepAliveInterval, cc.keepAliveTick)
}

func (cc *ClientConnection) keepAliveTick() {
	if cc.state.load() == StateDisconnected {
		return
	}

	if atomic.LoadInt32(&cc.havePendingPing) == 1 {
		rlog.Warn("connection %s: keep-alive timed out, no PONG for %s", cc.id, cc.cfg.KeepAliveInterval)
		cc.Close(corerr.ResultDisconnected)
		return
	}

	atomicStoreHavePendingPing(cc, true)
	if err := cc.sendCommand(&protocol.Command{Type: protocol.TypePing, Ping: &protocol.CommandPing{}}); err != nil {
		cc.Close(corerr.ResultDisconnected)
		return
	}

	cc.keepAliveTimer = time.AfterFunc(cc.cfg.KeepAliveInterval, cc.keepAliveTick)
}

func atomicStoreHavePendingPing(cc *ClientConnection, v bool) {
	if v {
		atomic.StoreInt32(&cc.havePendingPing, 1)
	} else {
		atomic.StoreInt32(&cc.havePendingPing, 0)
	}
}
