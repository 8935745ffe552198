// Package router implements the cluster router: the authority rule
// that decides which endpoint executes a service's checks, the relay of
// locally- and remotely-originated events to every other connected peer,
// and the inbound apply table that turns a received message back into a
// local state change.
package router

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/wardenhq/sentryd/pkg/cluster"
	"github.com/wardenhq/sentryd/pkg/cluster/endpoint"
	"github.com/wardenhq/sentryd/pkg/cluster/replay"
	"github.com/wardenhq/sentryd/pkg/events"
	"github.com/wardenhq/sentryd/pkg/log"
	"github.com/wardenhq/sentryd/pkg/metrics"
	"github.com/wardenhq/sentryd/pkg/types"
)

// Registry is the subset of *registry.Registry the router needs.
type Registry interface {
	WithService(key string, fn func(svc *types.Service)) error
	WithServiceRead(key string, fn func(svc *types.Service)) error
	WithHost(key string, fn func(host *types.Host)) error
	WithEndpoint(key string, fn func(ep *types.Endpoint)) error
	WithEndpointRead(key string, fn func(ep *types.Endpoint)) error
	WithZoneRead(key string, fn func(zone *types.Zone)) error
	IterateServiceKeys() []string
	IterateEndpointKeys() []string
}

// PeerSender is the subset of *endpoint.Manager the router drives.
type PeerSender interface {
	Send(peer string, msg cluster.Message)
	IsConnected(peer string) bool
}

// ReplayLog is the subset of *replay.Log the router drives.
type ReplayLog interface {
	Append(peer string, ts float64, except string, msg cluster.Message) error
	Rotate(peer string) error
	Replay(peer string, minTs float64, excludePeer string, fn func(replay.Record) error) error
	Sweep(minLogPosition float64) error
}

const (
	ackEveryMessages = 20
	ackInterval      = 10 * time.Second
	sweepInterval    = 60 * time.Second
)

// Router wires together the event bus, the replay log and endpoint
// connections into the cluster's replication behavior.
type Router struct {
	selfName string
	registry Registry
	bus      *events.Bus
	log      ReplayLog
	peers    PeerSender

	mu              sync.Mutex
	appliedFromPeer map[string]float64 // highest ts applied per origin peer, for our own acks
	sinceLastAck    map[string]int
}

// New builds a Router. selfName must match this process's own endpoint
// name as configured in the registry.
func New(selfName string, registry Registry, bus *events.Bus, log ReplayLog, peers PeerSender) *Router {
	return &Router{
		selfName:        selfName,
		registry:        registry,
		bus:             bus,
		log:             log,
		peers:           peers,
		appliedFromPeer: make(map[string]float64),
		sinceLastAck:    make(map[string]int),
	}
}

// Start subscribes to the event bus and launches the ack and sweep
// timers. It returns an unsubscribe function.
func (r *Router) Start(ctx context.Context) (unsubscribe func()) {
	unsub := r.bus.Subscribe(r.handleEvent)

	go r.ackLoop(ctx)
	go r.sweepLoop(ctx)

	return unsub
}

func (r *Router) handleEvent(ev events.Event) {
	if ev.Kind == events.MessageReceived {
		msg, ok := ev.Value.(cluster.Message)
		if !ok {
			return
		}
		r.applyInbound(ev.ObjectKey, msg)
		return
	}
	r.relay(ev)
}

// HandleMessage implements endpoint.Handler: every inbound frame becomes
// a MessageReceived event, with the router the sole consumer that applies it.
func (r *Router) HandleMessage(peer string, msg cluster.Message) {
	r.bus.Publish(events.Event{
		Kind:      events.MessageReceived,
		ObjectKey: peer,
		Value:     msg,
		Authority: peer,
		Timestamp: time.Now(),
	})
}

// HandleStateChange implements endpoint.Handler. On a peer reaching
// Connected, it streams that peer's missed replay-log records before
// normal relay resumes.
func (r *Router) HandleStateChange(peer string, state endpoint.State) {
	connected := state == endpoint.Connected
	logger := log.WithComponent("router")

	_ = r.registry.WithEndpoint(peer, func(ep *types.Endpoint) {
		ep.Connected = connected
		if connected {
			ep.LastSeen = time.Now()
		}
	})
	metrics.EndpointConnected.WithLabelValues(peer).Set(boolToFloat(connected))

	if !connected {
		return
	}

	var minTs float64
	_ = r.registry.WithEndpointRead(peer, func(ep *types.Endpoint) { minTs = ep.LocalLogPosition })

	if err := r.log.Rotate(peer); err != nil {
		logger.Warn().Str("peer", peer).Err(err).Msg("rotate before catch-up failed")
	}
	err := r.log.Replay(peer, minTs, peer, func(rec replay.Record) error {
		msg, err := rec.DecodeMessage()
		if err != nil {
			return err
		}
		r.peers.Send(peer, msg)
		return nil
	})
	if err != nil {
		logger.Warn().Str("peer", peer).Err(err).Msg("catch-up replay failed")
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// relay appends ev's wire form to every configured peer's replay log
// except the origin, whether or not that peer is currently connected —
// a disconnected peer's log is exactly what lets it catch up on
// reconnect — and sends it immediately only to the subset that is
// connected right now.
func (r *Router) relay(ev events.Event) {
	msg, ok := buildMessage(ev)
	if !ok {
		return
	}

	now := secondsSinceEpoch(time.Now())
	msg.Ts = now
	origin := ev.Authority

	for _, peer := range r.registry.IterateEndpointKeys() {
		if peer == origin || peer == r.selfName {
			continue
		}
		if err := r.log.Append(peer, now, origin, msg); err != nil {
			log.WithComponent("router").Warn().Str("peer", peer).Err(err).Msg("append to replay log failed")
			continue
		}
		metrics.ReplayLogRecordsWritten.WithLabelValues(peer).Inc()
		if r.peers.IsConnected(peer) {
			r.peers.Send(peer, msg)
		}
	}
	metrics.RelayedMessagesTotal.WithLabelValues(string(msg.Method)).Inc()
}

// secondsSinceEpoch renders t as the float64 Unix-seconds timestamp used
// on the wire (cluster.Message.Ts, replay.Record.Ts).
func secondsSinceEpoch(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// IsAuthoritative implements pkg/schedule.Authority: true only if this
// process resolves as the authoritative checker for svc.
func (r *Router) IsAuthoritative(svc *types.Service) bool {
	return r.resolveAuthority(svc) == r.selfName
}

// resolveAuthority walks svc.Authority's patterns in priority order and,
// within each pattern, endpoints in deterministic (sorted) order,
// returning the first endpoint that matches, is connected-or-self, and
// is reachable via the zone graph.
func (r *Router) resolveAuthority(svc *types.Service) string {
	endpointKeys := r.registry.IterateEndpointKeys()

	for _, pattern := range svc.Authority {
		for _, epKey := range endpointKeys {
			matched, err := filepath.Match(pattern, epKey)
			if err != nil || !matched {
				continue
			}
			if epKey == r.selfName {
				return epKey
			}
			var connected bool
			if err := r.registry.WithEndpointRead(epKey, func(ep *types.Endpoint) {
				connected = ep.Connected
			}); err != nil || !connected {
				continue
			}
			if r.zoneReachable(epKey) {
				return epKey
			}
		}
	}
	return ""
}

// zoneReachable reports whether epKey's zone is reachable from this
// process's own zone: equal, or one an ancestor of the other in the
// ParentZone chain.
func (r *Router) zoneReachable(epKey string) bool {
	selfZone := r.endpointZone(r.selfName)
	candidateZone := r.endpointZone(epKey)
	if selfZone == "" || candidateZone == "" {
		return selfZone == candidateZone
	}
	if selfZone == candidateZone {
		return true
	}
	ancestorsOfSelf := r.zoneAncestors(selfZone)
	if ancestorsOfSelf[candidateZone] {
		return true
	}
	ancestorsOfCandidate := r.zoneAncestors(candidateZone)
	return ancestorsOfCandidate[selfZone]
}

func (r *Router) endpointZone(epKey string) string {
	var zone string
	_ = r.registry.WithEndpointRead(epKey, func(ep *types.Endpoint) { zone = ep.Zone })
	return zone
}

const maxZoneDepth = 32

func (r *Router) zoneAncestors(zone string) map[string]bool {
	seen := make(map[string]bool)
	current := zone
	for i := 0; i < maxZoneDepth && current != "" && !seen[current]; i++ {
		seen[current] = true
		var parent string
		err := r.registry.WithZoneRead(current, func(z *types.Zone) { parent = z.ParentZone })
		if err != nil {
			break
		}
		current = parent
	}
	return seen
}
