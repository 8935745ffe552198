package router

import (
	"context"
	"time"

	"github.com/wardenhq/sentryd/pkg/cluster"
	"github.com/wardenhq/sentryd/pkg/types"
)

// isStale reports whether ts is no newer than the highest ts already
// applied from sender: inbound messages with ts no greater than the
// peer's remote log position are dropped as stale. Treating equal ts as
// stale too makes re-delivery of the exact same record (replay after a
// reconnect racing a live send) a no-op rather than a second apply.
func (r *Router) isStale(sender string, ts float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ts <= r.appliedFromPeer[sender]
}

// recordApplied tracks the highest ts applied from sender and, once
// ackEveryMessages inbound messages have been applied since the last
// ack, sends one immediately instead of waiting for the timer.
func (r *Router) recordApplied(sender string, ts float64) {
	r.mu.Lock()
	if ts > r.appliedFromPeer[sender] {
		r.appliedFromPeer[sender] = ts
	}
	r.sinceLastAck[sender]++
	due := r.sinceLastAck[sender] >= ackEveryMessages
	if due {
		r.sinceLastAck[sender] = 0
	}
	r.mu.Unlock()

	if due {
		r.sendAck(sender)
	}
}

func (r *Router) sendAck(peer string) {
	r.mu.Lock()
	ts := r.appliedFromPeer[peer]
	r.mu.Unlock()

	msg, err := cluster.NewMessage(cluster.MethodSetLogPosition, cluster.SetLogPositionParams{LogPosition: ts})
	if err != nil {
		return
	}
	r.peers.Send(peer, msg)

	_ = r.registry.WithEndpoint(peer, func(ep *types.Endpoint) { ep.RemoteLogPosition = ts })
}

func (r *Router) ackLoop(ctx context.Context) {
	ticker := time.NewTicker(ackInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.mu.Lock()
			peers := make([]string, 0, len(r.appliedFromPeer))
			for peer := range r.appliedFromPeer {
				peers = append(peers, peer)
			}
			r.mu.Unlock()

			for _, peer := range peers {
				r.sendAck(peer)
			}
		}
	}
}

// sweepLoop periodically truncates replay-log files that are older than
// every peer's current ack.
func (r *Router) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			min := r.minLocalLogPosition()
			if err := r.log.Sweep(min); err != nil {
				_ = err // best-effort; next tick retries
			}
		}
	}
}

func (r *Router) minLocalLogPosition() float64 {
	var min float64
	first := true
	for _, key := range r.registry.IterateEndpointKeys() {
		if key == r.selfName {
			continue
		}
		var pos float64
		_ = r.registry.WithEndpointRead(key, func(ep *types.Endpoint) { pos = ep.LocalLogPosition })
		if first || pos < min {
			min = pos
			first = false
		}
	}
	return min
}
