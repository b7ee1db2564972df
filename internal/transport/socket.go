// Package transport owns the physical TCP/TLS byte stream for one
// ClientConnection: endpoint resolution,
// socket options, TLS handshake, single-writer serialization and the
// buffered read pump. It is deliberately ignorant of the Pulsar
// command set beyond frame boundaries; ClientConnection decides what the
// bytes mean.
package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"ryanMQ/internal/protocol"
	"ryanMQ/internal/rlog"
)

const (
	initialReadBufferSize = 64 * 1024
	keepAliveIdle         = 60 * time.Second
	keepAlivePeriod       = 6 * time.Second // closest stdlib analogue to the 10-probes/6s-interval policy
	writeQueueDepth       = 256
)

var (
	ErrUnsupportedScheme = errors.New("transport: endpoint must be pulsar:// or pulsar+ssl://")
	ErrSocketClosed      = errors.New("transport: socket closed")
)

// TLSOptions mirrors the TLS-related config subset.
type TLSOptions struct {
	AllowInsecureConnection bool
	TrustCertsFilePath      string
	CertificateFilePath     string
	PrivateKeyFilePath      string
	ValidateHostname        bool
}

// Endpoint is a parsed pulsar://host:port or pulsar+ssl://host:port URL.
type Endpoint struct {
	Host string
	Port string
	TLS  bool
}

func ParseEndpoint(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("transport: %w", err)
	}
	var useTLS bool
	switch u.Scheme {
	case "pulsar":
		useTLS = false
	case "pulsar+ssl":
		useTLS = true
	default:
		return Endpoint{}, ErrUnsupportedScheme
	}
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		if useTLS {
			port = "6651"
		} else {
			port = "6650"
		}
	}
	if host == "" {
		return Endpoint{}, ErrUnsupportedScheme
	}
	return Endpoint{Host: host, Port: port, TLS: useTLS}, nil
}

// FrameHandler is invoked by the read pump for every decoded frame, and
// once (with err set) when the socket has closed.
type FrameHandler interface {
	OnFrame(*protocol.DecodedFrame)
	OnClose(error)
}

// Socket owns one TCP/TLS connection. All writes are serialized through
// a single drain goroutine (a single writer strand): callers never
// touch conn.Write directly.
type Socket struct {
	conn   net.Conn
	reader *bufio.Reader

	writeQueue chan []byte
	writeDone  chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
	closeMu   sync.Mutex

	handler FrameHandler
}

// Dial resolves, connects and (if the endpoint is pulsar+ssl) performs
// the TLS handshake, all under one deadline covering DNS + TCP connect
// + handshake.
func Dial(ctx context.Context, raw string, connectTimeout time.Duration, tlsOpts TLSOptions, sniOverride string) (*Socket, error) {
	ep, err := ParseEndpoint(raw)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	conn, err := dialResolved(ctx, ep.Host, ep.Port)
	if err != nil {
		return nil, fmt.Errorf("transport: connect %s: %w", raw, err)
	}

	if err := applySocketOptions(conn); err != nil {
		rlog.Warn("transport: failed to apply socket options to %s: %v", raw, err)
	}

	if ep.TLS {
		tlsConn, err := handshakeTLS(ctx, conn, ep.Host, sniOverride, tlsOpts)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("transport: TLS handshake with %s: %w", raw, err)
		}
		conn = tlsConn
	}

	s := &Socket{
		conn:       conn,
		reader:     bufio.NewReaderSize(conn, initialReadBufferSize),
		writeQueue: make(chan []byte, writeQueueDepth),
		writeDone:  make(chan struct{}),
		closed:     make(chan struct{}),
	}
	return s, nil
}

// dialResolved resolves host to one or more addresses and tries each in
// turn, moving on to the next on a connect failure.
func dialResolved(ctx context.Context, host, port string) (net.Conn, error) {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil || len(addrs) == 0 {
		// Host may already be an IP literal or unresolvable via this
		// path; fall back to letting the dialer resolve it itself.
		var d net.Dialer
		return d.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	}

	var lastErr error
	d := net.Dialer{}
	for _, addr := range addrs {
		conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(addr.IP.String(), port))
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func applySocketOptions(conn net.Conn) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	if err := tcpConn.SetNoDelay(true); err != nil {
		return err
	}
	if err := tcpConn.SetKeepAlive(true); err != nil {
		return err
	}
	return tcpConn.SetKeepAlivePeriod(keepAlivePeriod)
}

func handshakeTLS(ctx context.Context, conn net.Conn, host, sniOverride string, opts TLSOptions) (net.Conn, error) {
	cfg := &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: opts.AllowInsecureConnection,
	}
	if sniOverride != "" {
		cfg.ServerName = sniOverride
	}

	if opts.TrustCertsFilePath != "" {
		pem, err := os.ReadFile(opts.TrustCertsFilePath)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("transport: no certificates parsed from %s", opts.TrustCertsFilePath)
		}
		cfg.RootCAs = pool
	}

	// Checks both cert file paths exist once while building the config
	// and again right before loading the keypair; a harmless
	// duplication kept rather than collapsed.
	if opts.CertificateFilePath != "" && opts.PrivateKeyFilePath != "" {
		if _, err := os.Stat(opts.CertificateFilePath); err != nil {
			return nil, err
		}
		if _, err := os.Stat(opts.PrivateKeyFilePath); err != nil {
			return nil, err
		}
		if _, err := os.Stat(opts.CertificateFilePath); err != nil {
			return nil, err
		}
		if _, err := os.Stat(opts.PrivateKeyFilePath); err != nil {
			return nil, err
		}
		cert, err := tls.LoadX509KeyPair(opts.CertificateFilePath, opts.PrivateKeyFilePath)
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	if !opts.ValidateHostname && !opts.AllowInsecureConnection {
		// Verify the chain but skip the hostname/SAN match: accept the
		// server's own verification failure for hostname only.
		cfg.InsecureSkipVerify = true
		cfg.VerifyConnection = func(cs tls.ConnectionState) error {
			opts := x509.VerifyOptions{
				Roots:         cfg.RootCAs,
				Intermediates: x509.NewCertPool(),
			}
			for _, cert := range cs.PeerCertificates[1:] {
				opts.Intermediates.AddCert(cert)
			}
			if len(cs.PeerCertificates) == 0 {
				return errors.New("transport: no peer certificates presented")
			}
			_, err := cs.PeerCertificates[0].Verify(opts)
			return err
		}
	}

	tlsConn := tls.Client(conn, cfg)

	type result struct{ err error }
	done := make(chan result, 1)
	go func() { done <- result{tlsConn.Handshake()} }()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return tlsConn, nil
	case <-ctx.Done():
		conn.Close()
		return nil, ctx.Err()
	}
}

// Start launches the write pump and the read pump. h is invoked for
// every decoded frame and exactly once on close.
func (s *Socket) Start(h FrameHandler) {
	s.handler = h
	go s.writePump()
	go s.readPump()
}

// Enqueue posts a pre-built frame for writing. Frames are drained FIFO
// by the single write-pump goroutine, so writes from different callers
// interleave only at frame boundaries.
func (s *Socket) Enqueue(frame []byte) error {
	select {
	case <-s.closed:
		return ErrSocketClosed
	default:
	}
	select {
	case s.writeQueue <- frame:
		return nil
	case <-s.closed:
		return ErrSocketClosed
	}
}

func (s *Socket) writePump() {
	defer close(s.writeDone)
	for {
		select {
		case frame, ok := <-s.writeQueue:
			if !ok {
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
			if _, err := s.conn.Write(frame); err != nil {
				s.Close(fmt.Errorf("transport: write: %w", err))
				return
			}
		case <-s.closed:
			return
		}
	}
}

// readPump decodes frames one after another from a bufio.Reader of a
// fixed 64KiB size. DecodeFrame reads each frame in full through it, so a
// frame larger than 64KiB is read across several buffer fills; the buffer
// itself is never grown or replaced.
func (s *Socket) readPump() {
	for {
		frame, err := protocol.DecodeFrame(s.reader)
		if err != nil {
			if err == io.EOF || errors.Is(err, net.ErrClosed) || strings.Contains(err.Error(), "use of closed") {
				s.Close(err)
			} else {
				s.Close(fmt.Errorf("transport: decode frame: %w", err))
			}
			return
		}
		if s.handler != nil {
			s.handler.OnFrame(frame)
		}
	}
}

// Close shuts the socket down in both directions. Idempotent; only the
// first call's reason is kept and delivered to the handler.
func (s *Socket) Close(reason error) {
	s.closeOnce.Do(func() {
		s.closeMu.Lock()
		s.closeErr = reason
		s.closeMu.Unlock()

		close(s.closed)
		s.conn.Close()

		if s.handler != nil {
			s.handler.OnClose(reason)
		}
	})
}

// CloseReason returns the reason the socket closed, or nil if open.
func (s *Socket) CloseReason() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	return s.closeErr
}

// RemoteAddr exposes the underlying connection's remote address for
// logging.
func (s *Socket) RemoteAddr() string {
	if s.conn == nil {
		return ""
	}
	return s.conn.RemoteAddr().String()
}
