package endpoint

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/wardenhq/sentryd/pkg/cluster"
	"github.com/wardenhq/sentryd/pkg/log"
)

const reconnectInterval = 5 * time.Second

// PeerAddress is one configured outbound peer's dial target.
type PeerAddress struct {
	Name string
	Addr string // host:port
}

// Manager owns the listener for inbound connections and the reconnect
// timer for outbound ones, and keeps one *Conn per currently-connected
// peer. It is the thing the cluster router asks "is peer X connected"
// and "send this message to peer X".
type Manager struct {
	selfName  string
	cert      tls.Certificate
	caPool    *x509.CertPool
	listenAddr string
	handler   Handler

	mu    sync.Mutex
	conns map[string]*Conn

	cancel context.CancelFunc
}

// NewManager builds a Manager. cert is this endpoint's own client/server
// certificate issued by the cluster CA; caPool trusts only that CA.
func NewManager(selfName string, cert tls.Certificate, caPool *x509.CertPool, listenAddr string, handler Handler) *Manager {
	return &Manager{
		selfName:   selfName,
		cert:       cert,
		caPool:     caPool,
		listenAddr: listenAddr,
		handler:    handler,
		conns:      make(map[string]*Conn),
	}
}

func (m *Manager) tlsConfig() *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{m.cert},
		RootCAs:      m.caPool,
		ClientCAs:    m.caPool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS13,
	}
}

// Start runs the inbound listener (if listenAddr is non-empty) and the
// outbound reconnect loop until ctx is canceled.
func (m *Manager) Start(ctx context.Context, outbound []PeerAddress, identify func(cn string) (peer string, ok bool)) error {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	if m.listenAddr != "" {
		ln, err := tls.Listen("tcp", m.listenAddr, m.tlsConfig())
		if err != nil {
			cancel()
			return fmt.Errorf("endpoint: listen on %s: %w", m.listenAddr, err)
		}
		go m.acceptLoop(ctx, ln, identify)
	}

	go m.reconnectLoop(ctx, outbound)
	return nil
}

// Stop cancels the listener and reconnect loop. Connections adopted since
// Start run under the same derived context, so Stop closes them too.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *Manager) acceptLoop(ctx context.Context, ln net.Listener, identify func(cn string) (peer string, ok bool)) {
	logger := log.WithComponent("endpoint-manager")
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		rawConn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn().Err(err).Msg("accept failed")
			continue
		}

		tlsConn, ok := rawConn.(*tls.Conn)
		if !ok {
			rawConn.Close()
			continue
		}

		go m.handleInbound(ctx, tlsConn, identify)
	}
}

func (m *Manager) handleInbound(ctx context.Context, tlsConn *tls.Conn, identify func(cn string) (peer string, ok bool)) {
	conn, err := Accept(tlsConn, identify, m.handler)
	if err != nil {
		return
	}
	m.adopt(ctx, conn)
}

func (m *Manager) reconnectLoop(ctx context.Context, outbound []PeerAddress) {
	ticker := time.NewTicker(reconnectInterval)
	defer ticker.Stop()

	m.dialMissing(ctx, outbound)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.dialMissing(ctx, outbound)
		}
	}
}

func (m *Manager) dialMissing(ctx context.Context, outbound []PeerAddress) {
	for _, p := range outbound {
		if m.IsConnected(p.Name) {
			continue
		}
		go m.dialOne(ctx, p)
	}
}

func (m *Manager) dialOne(ctx context.Context, p PeerAddress) {
	dialCtx, cancel := context.WithTimeout(ctx, reconnectInterval)
	defer cancel()

	conn, err := DialOutbound(dialCtx, p.Addr, p.Name, m.tlsConfig(), m.handler)
	if err != nil {
		return
	}
	m.adopt(ctx, conn)
}

func (m *Manager) adopt(ctx context.Context, conn *Conn) {
	m.mu.Lock()
	if existing, ok := m.conns[conn.Peer()]; ok && existing.State() == Connected {
		m.mu.Unlock()
		conn.close(log.WithComponent("endpoint-manager"))
		return
	}
	m.conns[conn.Peer()] = conn
	m.mu.Unlock()

	conn.Run(ctx)

	m.mu.Lock()
	if m.conns[conn.Peer()] == conn {
		delete(m.conns, conn.Peer())
	}
	m.mu.Unlock()
}

// IsConnected reports whether peer currently has a Connected *Conn.
func (m *Manager) IsConnected(peer string) bool {
	m.mu.Lock()
	conn, ok := m.conns[peer]
	m.mu.Unlock()
	return ok && conn.State() == Connected
}

// Send enqueues msg for delivery to peer, a no-op if peer is not
// currently connected.
func (m *Manager) Send(peer string, msg cluster.Message) {
	m.mu.Lock()
	conn, ok := m.conns[peer]
	m.mu.Unlock()
	if ok {
		conn.Send(msg)
	}
}
