package diagcmd

import (
	"context"
	"fmt"
	"sync"

	"ryanMQ/internal/connection"
	"ryanMQ/pkg/contracts"
)

// singleAddrPool is the smallest ConnectionPool that satisfies
// handler.Base.grabCnx: every topic resolves to the one broker address
// it was built with, and the underlying ClientConnection is dialed once
// and reused. A full client's lookup service and per-partition routing
// are out of scope here (contracts.ConnectionPool exists precisely so
// this stays swappable).
type singleAddrPool struct {
	addr string
	cfg  connection.Config

	mu   sync.Mutex
	conn *connection.ClientConnection
}

func newSingleAddrPool(addr string, cfg connection.Config) *singleAddrPool {
	return &singleAddrPool{addr: addr, cfg: cfg}
}

func (p *singleAddrPool) GetConnection(ctx context.Context, topic string) (contracts.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil {
		select {
		case <-p.conn.Closed():
			p.conn = nil
		default:
			return p.conn, nil
		}
	}

	cc, err := connection.Connect(ctx, p.addr, p.cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", p.addr, err)
	}
	p.conn = cc
	return cc, nil
}
