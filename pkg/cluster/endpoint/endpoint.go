// Package endpoint implements one TLS connection to one cluster peer:
// handshake and identity verification, netstring-framed JSON messages,
// and the heartbeat/liveness check that forces a stale peer closed.
package endpoint

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wardenhq/sentryd/pkg/cluster"
	"github.com/wardenhq/sentryd/pkg/log"
	"github.com/wardenhq/sentryd/pkg/metrics"
)

// State is a connection's position in its own state machine:
// Disconnected -> Dialing -> Handshaking -> Connected -> Closing -> Disconnected.
type State int

const (
	Disconnected State = iota
	Dialing
	Handshaking
	Connected
	Closing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Dialing:
		return "dialing"
	case Handshaking:
		return "handshaking"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}

const (
	heartbeatInterval = 5 * time.Second
	staleAfter        = 60 * time.Second
	writeQueueDepth   = 256
	sendTimeout       = 2 * time.Second
)

// Handler is notified of inbound messages and connection lifecycle
// changes. HandleMessage is called on the read loop's goroutine and must
// not block for long.
type Handler interface {
	HandleMessage(peer string, msg cluster.Message)
	HandleStateChange(peer string, state State)
}

// Conn manages one TLS connection to one named peer. Callers obtain one
// from DialOutbound or Accept and drive it with Run.
type Conn struct {
	peer    string
	conn    *tls.Conn
	handler Handler

	mu        sync.Mutex
	state     State
	lastSeen  time.Time
	sendCh    chan cluster.Message
	closed    chan struct{}
	closeOnce sync.Once
}

// DialOutbound dials addr, completes a TLS handshake using tlsConfig, and
// verifies the peer certificate's CN equals wantPeer before returning.
func DialOutbound(ctx context.Context, addr, wantPeer string, tlsConfig *tls.Config, handler Handler) (*Conn, error) {
	c := newConn(wantPeer, handler)
	c.setState(Dialing)

	dialer := &tls.Dialer{Config: tlsConfig}
	rawConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		c.setState(Disconnected)
		return nil, fmt.Errorf("endpoint: dial %s: %w", addr, err)
	}

	tlsConn, ok := rawConn.(*tls.Conn)
	if !ok {
		rawConn.Close()
		c.setState(Disconnected)
		return nil, fmt.Errorf("endpoint: dialer returned non-TLS connection")
	}

	c.setState(Handshaking)
	if err := verifyPeerIdentity(tlsConn, wantPeer); err != nil {
		tlsConn.Close()
		c.setState(Disconnected)
		return nil, err
	}

	c.conn = tlsConn
	c.setState(Connected)
	return c, nil
}

// Accept wraps an inbound tlsConn. It completes the TLS handshake itself
// (tls.Listener.Accept leaves it to the first read/write) and then
// verifies the peer's identity against the registered endpoint set via
// identify.
func Accept(tlsConn *tls.Conn, identify func(cn string) (peer string, ok bool), handler Handler) (*Conn, error) {
	if err := tlsConn.Handshake(); err != nil {
		tlsConn.Close()
		return nil, fmt.Errorf("endpoint: inbound handshake: %w", err)
	}

	cn := peerCommonName(tlsConn)
	peer, ok := identify(cn)
	if !ok {
		tlsConn.Close()
		return nil, fmt.Errorf("endpoint: no configured endpoint for certificate CN %q", cn)
	}

	c := newConn(peer, handler)
	c.conn = tlsConn
	c.setState(Connected)
	return c, nil
}

func newConn(peer string, handler Handler) *Conn {
	return &Conn{
		peer:    peer,
		handler: handler,
		state:   Disconnected,
		sendCh:  make(chan cluster.Message, writeQueueDepth),
		closed:  make(chan struct{}),
	}
}

func verifyPeerIdentity(tlsConn *tls.Conn, wantPeer string) error {
	if err := tlsConn.Handshake(); err != nil {
		return fmt.Errorf("endpoint: handshake: %w", err)
	}
	cn := peerCommonName(tlsConn)
	if cn != wantPeer {
		return fmt.Errorf("endpoint: peer certificate CN %q does not match configured endpoint %q", cn, wantPeer)
	}
	return nil
}

func peerCommonName(tlsConn *tls.Conn) string {
	state := tlsConn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return ""
	}
	return state.PeerCertificates[0].Subject.CommonName
}

// Peer is the configured name of the endpoint at the other end.
func (c *Conn) Peer() string { return c.peer }

// State returns the connection's current state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastSeen returns the time any message was last received.
func (c *Conn) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	if c.handler != nil {
		c.handler.HandleStateChange(c.peer, s)
	}
	metrics.EndpointConnected.WithLabelValues(c.peer).Set(boolToFloat(s == Connected))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Send enqueues msg for the write loop, blocking the caller for up to
// sendTimeout while the queue is full. A drop at the end of that wait
// only delays delivery rather than losing msg outright: the caller is
// expected to have already appended it to the peer's replay log, which
// is replayed in full on reconnect.
func (c *Conn) Send(msg cluster.Message) {
	select {
	case c.sendCh <- msg:
		return
	default:
	}

	timer := time.NewTimer(sendTimeout)
	defer timer.Stop()
	select {
	case c.sendCh <- msg:
	case <-timer.C:
		log.WithComponent("endpoint").Warn().Str("peer", c.peer).Msg("write queue still full after send timeout, dropping message")
		metrics.SendQueueTimeoutsTotal.WithLabelValues(c.peer).Inc()
	case <-c.closed:
	}
}

// Run drives the connection's read loop, write loop, heartbeat, and
// liveness watchdog until ctx is canceled or the peer disconnects. Run
// blocks until the connection is fully closed.
func (c *Conn) Run(ctx context.Context) {
	logger := log.WithComponent("endpoint").With().Str("peer", c.peer).Logger()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.touchLastSeen()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); c.readLoop(runCtx, cancel, logger) }()
	go func() { defer wg.Done(); c.writeLoop(runCtx, logger) }()
	go func() { defer wg.Done(); c.watchdogLoop(runCtx, cancel, logger) }()

	<-runCtx.Done()
	c.close(logger)
	wg.Wait()
}

func (c *Conn) touchLastSeen() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

func (c *Conn) readLoop(ctx context.Context, cancel context.CancelFunc, logger zerolog.Logger) {
	defer cancel()

	br := bufio.NewReader(c.conn)
	for {
		payload, err := cluster.ReadNetstring(br, cluster.DefaultMaxFrameSize)
		if err != nil {
			if ctx.Err() == nil {
				logger.Info().Err(err).Msg("read loop ended")
			}
			return
		}

		var msg cluster.Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			logger.Warn().Err(err).Msg("dropping unparseable frame")
			continue
		}

		c.touchLastSeen()
		if c.handler != nil {
			c.handler.HandleMessage(c.peer, msg)
		}
	}
}

func (c *Conn) writeLoop(ctx context.Context, logger zerolog.Logger) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hb, err := cluster.NewMessage(cluster.MethodHeartBeat, struct{}{})
			if err != nil {
				continue
			}
			if err := c.writeMessage(hb); err != nil {
				logger.Info().Err(err).Msg("heartbeat write failed")
				return
			}
		case msg := <-c.sendCh:
			if err := c.writeMessage(msg); err != nil {
				logger.Info().Err(err).Msg("write failed")
				return
			}
		}
	}
}

func (c *Conn) writeMessage(msg cluster.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("endpoint: marshal message: %w", err)
	}
	return cluster.WriteNetstring(c.conn, payload)
}

func (c *Conn) watchdogLoop(ctx context.Context, cancel context.CancelFunc, logger zerolog.Logger) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if time.Since(c.LastSeen()) > staleAfter {
				logger.Warn().Msg("peer exceeded stale threshold, forcing close")
				cancel()
				return
			}
		}
	}
}

func (c *Conn) close(logger zerolog.Logger) {
	c.setState(Closing)
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.conn != nil {
			var opErr *net.OpError
			if err := c.conn.Close(); err != nil && !errors.As(err, &opErr) {
				logger.Info().Err(err).Msg("error closing connection")
			}
		}
	})
	c.setState(Disconnected)
}
