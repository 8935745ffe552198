// Package registry implements the typed, named object store that
// underlies the scheduler, state machine, and cluster router. Every
// Service, Host, Endpoint, and Zone in the engine lives here; everything
// else holds a borrowed reference resolved by (type, name).
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/wardenhq/sentryd/pkg/types"
)

// ObjectType names one of the four registrable kinds.
type ObjectType string

const (
	TypeService  ObjectType = "service"
	TypeHost     ObjectType = "host"
	TypeEndpoint ObjectType = "endpoint"
	TypeZone     ObjectType = "zone"
)

// Signal is emitted by Notify after a caller has written a State attribute
// under With*. Subscribers register for these via Subscribe.
type Signal struct {
	Type      ObjectType
	Name      string
	Attribute string
	Authority string // empty == locally originated
}

// SignalFunc receives registry signals. It must not block; slow handlers
// should hand off to their own goroutine.
type SignalFunc func(Signal)

// serviceEntry pairs a Service with its own lock, so each object carries
// its own lock rather than contending on one registry-wide mutex.
type serviceEntry struct {
	mu  sync.RWMutex
	svc *types.Service
}

type hostEntry struct {
	mu   sync.RWMutex
	host *types.Host
}

type endpointEntry struct {
	mu  sync.RWMutex
	ep  *types.Endpoint
}

type zoneEntry struct {
	mu   sync.RWMutex
	zone *types.Zone
}

// Registry owns every Service/Host/Endpoint/Zone in the process. It is the
// sole owner; all other holders reference objects by key and acquire the
// per-object lock themselves via the With* helpers before mutating.
type Registry struct {
	mu sync.RWMutex

	services  map[string]*serviceEntry
	hosts     map[string]*hostEntry
	endpoints map[string]*endpointEntry
	zones     map[string]*zoneEntry

	signalMu sync.RWMutex
	signals  []SignalFunc
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		services:  make(map[string]*serviceEntry),
		hosts:     make(map[string]*hostEntry),
		endpoints: make(map[string]*endpointEntry),
		zones:     make(map[string]*zoneEntry),
	}
}

// Subscribe registers fn to receive every future signal. There is no
// Unsubscribe; the registry's subscriber list is fixed at wiring time.
func (r *Registry) Subscribe(fn SignalFunc) {
	r.signalMu.Lock()
	defer r.signalMu.Unlock()
	r.signals = append(r.signals, fn)
}

func (r *Registry) emit(sig Signal) {
	r.signalMu.RLock()
	subs := r.signals
	r.signalMu.RUnlock()
	for _, fn := range subs {
		fn(sig)
	}
}

// RegisterService adds a new service. It fails if the key already exists.
func (r *Registry) RegisterService(svc *types.Service) error {
	key := svc.Key()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.services[key]; exists {
		return fmt.Errorf("registry: service %q already registered", key)
	}
	r.services[key] = &serviceEntry{svc: svc}
	return nil
}

// RegisterHost adds a new host. It fails if the key already exists.
func (r *Registry) RegisterHost(host *types.Host) error {
	key := host.Key()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.hosts[key]; exists {
		return fmt.Errorf("registry: host %q already registered", key)
	}
	r.hosts[key] = &hostEntry{host: host}
	return nil
}

// RegisterEndpoint adds a new endpoint. It fails if the key already exists.
func (r *Registry) RegisterEndpoint(ep *types.Endpoint) error {
	key := ep.Key()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.endpoints[key]; exists {
		return fmt.Errorf("registry: endpoint %q already registered", key)
	}
	r.endpoints[key] = &endpointEntry{ep: ep}
	return nil
}

// RegisterZone adds a new zone. It fails if the key already exists.
func (r *Registry) RegisterZone(zone *types.Zone) error {
	key := zone.Key()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.zones[key]; exists {
		return fmt.Errorf("registry: zone %q already registered", key)
	}
	r.zones[key] = &zoneEntry{zone: zone}
	return nil
}

// WithService runs fn with the named service's lock held for writing.
// fn observes and may mutate svc; it must not retain the pointer past fn.
func (r *Registry) WithService(key string, fn func(svc *types.Service)) error {
	r.mu.RLock()
	entry, ok := r.services[key]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("registry: service %q not found", key)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	fn(entry.svc)
	return nil
}

// WithServiceRead runs fn with the named service's lock held for reading.
func (r *Registry) WithServiceRead(key string, fn func(svc *types.Service)) error {
	r.mu.RLock()
	entry, ok := r.services[key]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("registry: service %q not found", key)
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	fn(entry.svc)
	return nil
}

// WithHost runs fn with the named host's lock held for writing.
func (r *Registry) WithHost(key string, fn func(host *types.Host)) error {
	r.mu.RLock()
	entry, ok := r.hosts[key]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("registry: host %q not found", key)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	fn(entry.host)
	return nil
}

// WithHostRead runs fn with the named host's lock held for reading.
func (r *Registry) WithHostRead(key string, fn func(host *types.Host)) error {
	r.mu.RLock()
	entry, ok := r.hosts[key]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("registry: host %q not found", key)
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	fn(entry.host)
	return nil
}

// WithEndpoint runs fn with the named endpoint's lock held for writing.
func (r *Registry) WithEndpoint(key string, fn func(ep *types.Endpoint)) error {
	r.mu.RLock()
	entry, ok := r.endpoints[key]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("registry: endpoint %q not found", key)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	fn(entry.ep)
	return nil
}

// WithEndpointRead runs fn with the named endpoint's lock held for reading.
func (r *Registry) WithEndpointRead(key string, fn func(ep *types.Endpoint)) error {
	r.mu.RLock()
	entry, ok := r.endpoints[key]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("registry: endpoint %q not found", key)
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	fn(entry.ep)
	return nil
}

// WithZoneRead runs fn with the named zone's lock held for reading.
func (r *Registry) WithZoneRead(key string, fn func(zone *types.Zone)) error {
	r.mu.RLock()
	entry, ok := r.zones[key]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("registry: zone %q not found", key)
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	fn(entry.zone)
	return nil
}

// Notify emits a signal for an attribute write. Callers mutate the object
// under its own lock (via With*) and then call Notify to fan the change
// out to every subscriber.
func (r *Registry) Notify(typ ObjectType, name, attribute, authority string) {
	r.emit(Signal{Type: typ, Name: name, Attribute: attribute, Authority: authority})
}

// IterateServiceKeys returns every registered service key in sorted order,
// so callers get a deterministic iteration order.
func (r *Registry) IterateServiceKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.services))
	for k := range r.services {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IterateEndpointKeys returns every registered endpoint key in sorted order.
func (r *Registry) IterateEndpointKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.endpoints))
	for k := range r.endpoints {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IterateHostKeys returns every registered host key in sorted order.
func (r *Registry) IterateHostKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.hosts))
	for k := range r.hosts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ServiceCount returns the number of registered services, for metrics.
func (r *Registry) ServiceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.services)
}

// HostCount returns the number of registered hosts, for metrics.
func (r *Registry) HostCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hosts)
}

// ServiceStateCounts returns the number of services currently in each
// state, keyed by types.ServiceState.String(). Used by pkg/metrics.
func (r *Registry) ServiceStateCounts() map[string]int {
	r.mu.RLock()
	keys := make([]string, 0, len(r.services))
	entries := make([]*serviceEntry, 0, len(r.services))
	for k, e := range r.services {
		keys = append(keys, k)
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	counts := make(map[string]int, 4)
	for _, e := range entries {
		e.mu.RLock()
		counts[e.svc.State.String()]++
		e.mu.RUnlock()
	}
	return counts
}

// EndpointConnectedStates returns, for every registered endpoint, whether
// it is currently connected. Used by pkg/metrics.
func (r *Registry) EndpointConnectedStates() map[string]bool {
	r.mu.RLock()
	entries := make(map[string]*endpointEntry, len(r.endpoints))
	for k, e := range r.endpoints {
		entries[k] = e
	}
	r.mu.RUnlock()

	states := make(map[string]bool, len(entries))
	for name, e := range entries {
		e.mu.RLock()
		states[name] = e.ep.Connected
		e.mu.RUnlock()
	}
	return states
}
