// Package reachability derives whether a Service or Host is reachable from
// its Dependency graph. Reachability is never stored on the object
// itself — it is recomputed on demand from the current, already
// up-to-date state of the objects it depends on.
package reachability

import (
	"github.com/wardenhq/sentryd/pkg/types"
)

// Registry is the subset of *registry.Registry reachability needs: locked
// read access to services and hosts by key.
type Registry interface {
	WithServiceRead(key string, fn func(svc *types.Service)) error
	WithHostRead(key string, fn func(host *types.Host)) error
}

// Service reports whether the named service is reachable: its host must be
// up, and every one of its dependencies must be satisfied by its parent's
// current state, recursively. A dependency or host that no longer exists
// in the registry is treated as unreachable rather than an error — a
// config edit can remove a parent out from under a still-registered
// child between ticks.
func Service(reg Registry, hostName, serviceName string) bool {
	return serviceReachable(reg, hostName, serviceName, make(map[string]bool))
}

// Host reports whether the named host is up: every one of the host's own
// dependencies must be satisfied, and none of its configured CheckServices
// may be Critical (a CheckService not in the registry is skipped). A host
// with no dependencies and no CheckServices is always up; a host not in
// the registry is reported down.
func Host(reg Registry, hostName string) bool {
	return hostReachable(reg, hostName, make(map[string]bool))
}

func serviceReachable(reg Registry, hostName, serviceName string, visiting map[string]bool) bool {
	key := hostName + "!" + serviceName
	if visiting[key] {
		// A dependency cycle; treat as reachable rather than deadlocking
		// or recursing forever — a misconfiguration, not a state fact.
		return true
	}
	visiting[key] = true

	if !hostReachable(reg, hostName, visiting) {
		return false
	}

	var (
		deps  []types.Dependency
		found bool
	)
	err := reg.WithServiceRead(key, func(svc *types.Service) {
		deps = svc.Dependencies
		found = true
	})
	if err != nil || !found {
		return false
	}

	for _, dep := range deps {
		if !dependencySatisfied(reg, dep, visiting) {
			return false
		}
	}
	return true
}

func hostReachable(reg Registry, hostName string, visiting map[string]bool) bool {
	key := "host:" + hostName
	if visiting[key] {
		return true
	}
	visiting[key] = true

	var (
		checkServices []string
		deps          []types.Dependency
		found         bool
	)
	err := reg.WithHostRead(hostName, func(h *types.Host) {
		checkServices = h.CheckServices
		deps = h.Dependencies
		found = true
	})
	if err != nil || !found {
		return false
	}

	for _, dep := range deps {
		if !dependencySatisfied(reg, dep, visiting) {
			return false
		}
	}

	for _, svcName := range checkServices {
		var (
			state types.ServiceState
			ok    bool
		)
		if err := reg.WithServiceRead(hostName+"!"+svcName, func(svc *types.Service) {
			state = svc.State
			ok = true
		}); err != nil || !ok {
			continue
		}
		if state == types.StateCritical {
			return false
		}
	}

	return true
}

// dependencySatisfied evaluates one Dependency edge: the parent (a host,
// if ParentService is empty, else a specific service on that host) must
// itself be reachable, and a service parent's current state must satisfy
// the dependency's StateFilter (a host parent has no state of its own, so
// the filter is not applied to it).
func dependencySatisfied(reg Registry, dep types.Dependency, visiting map[string]bool) bool {
	if dep.ParentService == "" {
		return hostReachable(reg, dep.ParentHost, visiting)
	}

	if !serviceReachable(reg, dep.ParentHost, dep.ParentService, visiting) {
		return false
	}

	var (
		state types.ServiceState
		ok    bool
	)
	err := reg.WithServiceRead(dep.ParentHost+"!"+dep.ParentService, func(svc *types.Service) {
		state = svc.State
		ok = true
	})
	if err != nil || !ok {
		return false
	}
	return dep.Satisfied(state)
}
