package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/wardenhq/sentryd/pkg/cluster"
	"github.com/wardenhq/sentryd/pkg/cluster/endpoint"
	"github.com/wardenhq/sentryd/pkg/cluster/replay"
	"github.com/wardenhq/sentryd/pkg/cluster/router"
	"github.com/wardenhq/sentryd/pkg/config"
	"github.com/wardenhq/sentryd/pkg/events"
	"github.com/wardenhq/sentryd/pkg/log"
	"github.com/wardenhq/sentryd/pkg/metrics"
	"github.com/wardenhq/sentryd/pkg/persistence"
	"github.com/wardenhq/sentryd/pkg/registry"
	"github.com/wardenhq/sentryd/pkg/runner"
	"github.com/wardenhq/sentryd/pkg/schedule"
	"github.com/wardenhq/sentryd/pkg/security"
	"github.com/wardenhq/sentryd/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitoring engine",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().String("endpoint-name", "", "this process's own endpoint name (required, must match a config entry)")
	runCmd.Flags().String("config", "sentryd.yaml", "path to the object definition file")
	runCmd.Flags().String("state-dir", "/var/lib/sentryd", "directory for certificates, replay logs, and persisted state")
	runCmd.Flags().String("listen-addr", "", "address to listen on for inbound cluster connections (empty disables listening)")
	runCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "address for the /metrics and /health HTTP endpoints")
	runCmd.Flags().String("cluster-id", "", "shared cluster identifier used to derive the key protecting the CA's root private key at rest (required)")
	_ = runCmd.MarkFlagRequired("endpoint-name")
	_ = runCmd.MarkFlagRequired("cluster-id")
}

func runRun(cmd *cobra.Command, args []string) error {
	selfName, _ := cmd.Flags().GetString("endpoint-name")
	configPath, _ := cmd.Flags().GetString("config")
	stateDir, _ := cmd.Flags().GetString("state-dir")
	listenAddr, _ := cmd.Flags().GetString("listen-addr")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	clusterID, _ := cmd.Flags().GetString("cluster-id")

	logger := log.WithComponent("main")

	if err := security.SetClusterEncryptionKey(security.DeriveKeyFromClusterID(clusterID)); err != nil {
		return fmt.Errorf("deriving cluster encryption key: %w", err)
	}

	doc, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	metrics.RegisterComponent(metrics.ComponentRegistry, false, "loading config")
	metrics.RegisterComponent(metrics.ComponentReplayLog, false, "not opened")
	metrics.RegisterComponent(metrics.ComponentClusterRouter, false, "not started")

	reg := registry.New()
	if err := config.Apply(doc, reg); err != nil {
		return fmt.Errorf("applying config: %w", err)
	}

	statePath := filepath.Join(stateDir, "state.dat")
	if err := persistence.Restore(statePath, reg); err != nil {
		return fmt.Errorf("restoring persisted state: %w", err)
	}
	metrics.UpdateComponent(metrics.ComponentRegistry, true, "loaded")

	cert, caPool, err := loadClusterIdentity(stateDir, selfName)
	if err != nil {
		return fmt.Errorf("loading cluster identity: %w", err)
	}

	bus := events.New()
	replayLog := replay.NewLog(filepath.Join(stateDir, "cluster", "log"))
	defer replayLog.Close()
	metrics.UpdateComponent(metrics.ComponentReplayLog, true, "open")

	handler := &delegatingHandler{}
	manager := endpoint.NewManager(selfName, cert, caPool, listenAddr, handler)
	rtr := router.New(selfName, reg, bus, replayLog, manager)
	handler.set(rtr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	unsubscribeRouter := rtr.Start(ctx)
	defer unsubscribeRouter()

	if err := manager.Start(ctx, outboundPeers(doc, selfName), identifyFunc(doc)); err != nil {
		return fmt.Errorf("starting endpoint manager: %w", err)
	}
	defer manager.Stop()
	metrics.UpdateComponent(metrics.ComponentClusterRouter, true, "running")

	schedCfg := schedule.DefaultConfig()
	run := runner.New(schedCfg.MaxConcurrentChecks)
	sched := schedule.New(reg, rtr, run, bus, schedCfg)
	enqueueAllServices(reg, sched)
	sched.Start()
	defer sched.Stop()

	collector := metrics.NewCollector(reg, replayLog)
	collector.Start()
	defer collector.Stop()

	metrics.SetVersion(Version)
	serveMetrics(metricsAddr, logger)

	logger.Info().Str("endpoint", selfName).Msg("sentryd started")

	waitForShutdown(logger)

	if err := persistence.Dump(statePath, reg); err != nil {
		logger.Error().Err(err).Msg("failed to persist state on shutdown")
	}
	return nil
}

// delegatingHandler exists because endpoint.Manager and router.Router need
// references to each other: the manager's handler must be known at
// construction, but the router needs the already-constructed manager as
// its PeerSender. set is called once, immediately after both exist.
type delegatingHandler struct {
	mu sync.RWMutex
	h  endpoint.Handler
}

func (d *delegatingHandler) set(h endpoint.Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.h = h
}

func (d *delegatingHandler) HandleMessage(peer string, msg cluster.Message) {
	d.mu.RLock()
	h := d.h
	d.mu.RUnlock()
	if h != nil {
		h.HandleMessage(peer, msg)
	}
}

func (d *delegatingHandler) HandleStateChange(peer string, state endpoint.State) {
	d.mu.RLock()
	h := d.h
	d.mu.RUnlock()
	if h != nil {
		h.HandleStateChange(peer, state)
	}
}

func loadClusterIdentity(stateDir, selfName string) (tls.Certificate, *x509.CertPool, error) {
	caPath := filepath.Join(stateDir, "ca.json")
	ca := security.NewCertAuthority(caPath)
	if err := ca.Load(); err != nil {
		if err := ca.Initialize(); err != nil {
			return tls.Certificate{}, nil, fmt.Errorf("initializing cluster CA: %w", err)
		}
		if err := ca.Save(); err != nil {
			return tls.Certificate{}, nil, fmt.Errorf("saving cluster CA: %w", err)
		}
	}

	logger := log.WithComponent("main")
	certDir := security.GetCertDir(stateDir, selfName)

	needFresh := !security.CertExists(certDir)
	var cert *tls.Certificate
	if !needFresh {
		loaded, err := security.LoadCertFromFile(certDir)
		if err != nil {
			return tls.Certificate{}, nil, fmt.Errorf("loading endpoint certificate: %w", err)
		}
		if security.CertNeedsRotation(loaded.Leaf) {
			logger.Info().Str("endpoint", selfName).Msg("endpoint certificate nearing expiry, rotating")
			if err := security.RemoveCerts(certDir); err != nil {
				return tls.Certificate{}, nil, fmt.Errorf("removing expiring endpoint certificate: %w", err)
			}
			needFresh = true
		} else {
			cert = loaded
		}
	}

	if needFresh {
		issued, err := ca.IssueEndpointCertificate(selfName, []string{selfName}, nil)
		if err != nil {
			return tls.Certificate{}, nil, fmt.Errorf("issuing endpoint certificate: %w", err)
		}
		if err := security.SaveCertToFile(issued, certDir); err != nil {
			return tls.Certificate{}, nil, fmt.Errorf("saving endpoint certificate: %w", err)
		}
		cert = issued
	}

	info := security.GetCertInfo(cert.Leaf)
	logger.Info().Str("subject", info.Subject).Time("not_after", info.NotAfter).Msg("loaded endpoint certificate")

	root, err := x509.ParseCertificate(ca.GetRootCACert())
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("parsing cluster CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AddCert(root)

	return *cert, pool, nil
}

func outboundPeers(doc *config.Document, selfName string) []endpoint.PeerAddress {
	peers := make([]endpoint.PeerAddress, 0, len(doc.Endpoints))
	for _, e := range doc.Endpoints {
		if e.Name == selfName || e.Host == "" || e.Port == "" {
			continue
		}
		peers = append(peers, endpoint.PeerAddress{Name: e.Name, Addr: e.Host + ":" + e.Port})
	}
	return peers
}

func identifyFunc(doc *config.Document) func(cn string) (string, bool) {
	names := make(map[string]bool, len(doc.Endpoints))
	for _, e := range doc.Endpoints {
		names[e.Name] = true
	}
	return func(cn string) (string, bool) {
		return cn, names[cn]
	}
}

// enqueueAllServices seeds the scheduler's heap with every configured
// service on startup: at the NextCheck persistence restored, or, for a
// service without one, at a random instant within its first check
// interval.
func enqueueAllServices(reg *registry.Registry, sched *schedule.Scheduler) {
	for _, key := range reg.IterateServiceKeys() {
		var nextCheck time.Time
		var interval time.Duration
		_ = reg.WithServiceRead(key, func(svc *types.Service) {
			nextCheck = svc.NextCheck
			interval = svc.CheckInterval
		})
		sched.Enqueue(key, nextCheck, interval)
	}
}

func serveMetrics(addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error().Err(err).Str("addr", addr).Msg("metrics server exited")
		}
	}()
}

func waitForShutdown(logger zerolog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down")
}
