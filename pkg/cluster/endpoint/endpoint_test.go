package endpoint

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wardenhq/sentryd/pkg/cluster"
	"github.com/wardenhq/sentryd/pkg/security"
)

type recordingHandler struct {
	mu       sync.Mutex
	messages []cluster.Message
	states   []State
}

func (h *recordingHandler) HandleMessage(peer string, msg cluster.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msg)
}

func (h *recordingHandler) HandleStateChange(peer string, state State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = append(h.states, state)
}

func (h *recordingHandler) messageCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

func (h *recordingHandler) sawConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.states {
		if s == Connected {
			return true
		}
	}
	return false
}

func issueCert(t *testing.T, ca *security.CertAuthority, name string) tls.Certificate {
	t.Helper()
	cert, err := ca.IssueEndpointCertificate(name, []string{"localhost"}, []net.IP{net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	return *cert
}

func rootPool(t *testing.T, ca *security.CertAuthority) *x509.CertPool {
	t.Helper()
	root, err := x509.ParseCertificate(ca.GetRootCACert())
	require.NoError(t, err)
	pool := x509.NewCertPool()
	pool.AddCert(root)
	return pool
}

func TestDialOutboundEstablishesConnectedStateOnBothSides(t *testing.T) {
	ca := security.NewCertAuthority(t.TempDir() + "/ca.json")
	require.NoError(t, ca.Initialize())
	pool := rootPool(t, ca)

	serverCert := issueCert(t, ca, "server-endpoint")
	clientCert := issueCert(t, ca, "client-endpoint")

	serverHandler := &recordingHandler{}
	identify := func(cn string) (string, bool) {
		if cn == "client-endpoint" {
			return "client-endpoint", true
		}
		return "", false
	}

	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{serverCert},
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS13,
	})
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		rawConn, err := ln.Accept()
		if err != nil {
			return
		}
		tlsConn := rawConn.(*tls.Conn)
		conn, err := Accept(tlsConn, identify, serverHandler)
		if err != nil {
			return
		}
		conn.Run(ctx)
	}()

	clientHandler := &recordingHandler{}
	clientConn, err := DialOutbound(ctx, ln.Addr().String(), "server-endpoint", &tls.Config{
		Certificates: []tls.Certificate{clientCert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS13,
	}, clientHandler)
	require.NoError(t, err)
	assert := require.New(t)
	assert.Equal(Connected, clientConn.State())

	go clientConn.Run(ctx)

	require.Eventually(t, func() bool {
		return serverHandler.sawConnected()
	}, 2*time.Second, 20*time.Millisecond, "server should observe the inbound connection reach Connected")
}

func TestSendEnqueuesMessageDeliveredToPeer(t *testing.T) {
	ca := security.NewCertAuthority(t.TempDir() + "/ca.json")
	require.NoError(t, ca.Initialize())
	pool := rootPool(t, ca)

	serverCert := issueCert(t, ca, "server-endpoint")
	clientCert := issueCert(t, ca, "client-endpoint")

	serverHandler := &recordingHandler{}
	identify := func(cn string) (string, bool) { return cn, cn == "client-endpoint" }

	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{serverCert},
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS13,
	})
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		rawConn, err := ln.Accept()
		if err != nil {
			return
		}
		conn, err := Accept(rawConn.(*tls.Conn), identify, serverHandler)
		if err != nil {
			return
		}
		conn.Run(ctx)
	}()

	clientHandler := &recordingHandler{}
	clientConn, err := DialOutbound(ctx, ln.Addr().String(), "server-endpoint", &tls.Config{
		Certificates: []tls.Certificate{clientCert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS13,
	}, clientHandler)
	require.NoError(t, err)
	go clientConn.Run(ctx)

	msg, err := cluster.NewMessage(cluster.MethodSetLogPosition, cluster.SetLogPositionParams{LogPosition: 7})
	require.NoError(t, err)
	clientConn.Send(msg)

	require.Eventually(t, func() bool {
		return serverHandler.messageCount() >= 1
	}, 2*time.Second, 20*time.Millisecond)

	var sawSetLogPosition bool
	serverHandler.mu.Lock()
	for _, m := range serverHandler.messages {
		if m.Method == cluster.MethodSetLogPosition {
			sawSetLogPosition = true
		}
	}
	serverHandler.mu.Unlock()
	require.True(t, sawSetLogPosition)
}

func TestDialOutboundRejectsMismatchedPeerIdentity(t *testing.T) {
	ca := security.NewCertAuthority(t.TempDir() + "/ca.json")
	require.NoError(t, ca.Initialize())
	pool := rootPool(t, ca)

	serverCert := issueCert(t, ca, "server-endpoint")
	clientCert := issueCert(t, ca, "client-endpoint")

	identify := func(cn string) (string, bool) { return cn, true }

	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{serverCert},
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS13,
	})
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		rawConn, err := ln.Accept()
		if err != nil {
			return
		}
		_, _ = Accept(rawConn.(*tls.Conn), identify, &recordingHandler{})
	}()

	_, err = DialOutbound(ctx, ln.Addr().String(), "wrong-expected-name", &tls.Config{
		Certificates: []tls.Certificate{clientCert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS13,
	}, &recordingHandler{})
	require.Error(t, err)
}

func TestStateStringer(t *testing.T) {
	cases := map[State]string{
		Disconnected: "disconnected",
		Dialing:      "dialing",
		Handshaking:  "handshaking",
		Connected:    "connected",
		Closing:      "closing",
	}
	for state, want := range cases {
		require.Equal(t, want, state.String())
	}
}
