// Package persistence dumps and restores the mutable ("state") attributes
// of every registered object to a single newline-delimited JSON file so a
// restart reproduces the previous cluster view.
package persistence

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/wardenhq/sentryd/pkg/log"
	"github.com/wardenhq/sentryd/pkg/types"
)

// Registry is the subset of *registry.Registry persistence needs.
type Registry interface {
	IterateServiceKeys() []string
	IterateHostKeys() []string
	IterateEndpointKeys() []string
	WithService(key string, fn func(svc *types.Service)) error
	WithServiceRead(key string, fn func(svc *types.Service)) error
	WithHost(key string, fn func(host *types.Host)) error
	WithHostRead(key string, fn func(host *types.Host)) error
	WithEndpoint(key string, fn func(ep *types.Endpoint)) error
	WithEndpointRead(key string, fn func(ep *types.Endpoint)) error
}

// record is one line of state.dat.
type record struct {
	Type  string          `json:"type"`
	Name  string          `json:"name"`
	Attrs json.RawMessage `json:"attrs"`
}

const (
	typeService  = "service"
	typeHost     = "host"
	typeEndpoint = "endpoint"
)

// serviceState is the mutable subset of types.Service ("State"
// attributes, as opposed to its immutable config attributes).
type serviceState struct {
	State                 types.ServiceState        `json:"state"`
	StateType             types.StateType           `json:"state_type"`
	CurrentAttempt        int                        `json:"current_attempt"`
	NextCheck             string                     `json:"next_check"`
	LastCheckResult       *types.CheckResult         `json:"last_check_result,omitempty"`
	LastStateChange       string                     `json:"last_state_change"`
	LastHardStateChange   string                     `json:"last_hard_state_change"`
	EnableActiveChecks    bool                       `json:"enable_active_checks"`
	EnablePassiveChecks   bool                       `json:"enable_passive_checks"`
	EnableNotifications   bool                       `json:"enable_notifications"`
	EnableFlapping        bool                       `json:"enable_flapping"`
	NextNotification      string                     `json:"next_notification"`
	ForceNextCheck        bool                       `json:"force_next_check"`
	ForceNextNotification bool                       `json:"force_next_notification"`
	Acknowledgement       *types.Acknowledgement     `json:"acknowledgement,omitempty"`
	Comments              map[string]*types.Comment  `json:"comments,omitempty"`
	Downtimes             map[string]*types.Downtime `json:"downtimes,omitempty"`
}

// hostState is the mutable subset of types.Host.
type hostState struct {
	EnableNotifications bool `json:"enable_notifications"`
}

// endpointState is the mutable subset of types.Endpoint.
type endpointState struct {
	LastSeen          string          `json:"last_seen"`
	RemoteLogPosition float64         `json:"remote_log_position"`
	LocalLogPosition  float64         `json:"local_log_position"`
	Subscriptions     map[string]bool `json:"subscriptions,omitempty"`
}

// Dump serializes every registered object's state attributes to path, one
// JSON object per line, overwriting any existing file.
func Dump(path string, reg Registry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("persistence: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	defer w.Flush()

	for _, key := range reg.IterateServiceKeys() {
		var state serviceState
		if err := reg.WithServiceRead(key, func(svc *types.Service) {
			state = serviceStateOf(svc)
		}); err != nil {
			continue
		}
		if err := writeRecord(w, typeService, key, state); err != nil {
			return err
		}
	}

	for _, key := range reg.IterateHostKeys() {
		var state hostState
		if err := reg.WithHostRead(key, func(h *types.Host) {
			state = hostState{EnableNotifications: h.EnableNotifications}
		}); err != nil {
			continue
		}
		if err := writeRecord(w, typeHost, key, state); err != nil {
			return err
		}
	}

	for _, key := range reg.IterateEndpointKeys() {
		var state endpointState
		if err := reg.WithEndpointRead(key, func(ep *types.Endpoint) {
			state = endpointStateOf(ep)
		}); err != nil {
			continue
		}
		if err := writeRecord(w, typeEndpoint, key, state); err != nil {
			return err
		}
	}

	return w.Flush()
}

func writeRecord(w *bufio.Writer, typ, name string, state any) error {
	attrs, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("persistence: marshal %s %q: %w", typ, name, err)
	}
	line, err := json.Marshal(record{Type: typ, Name: name, Attrs: attrs})
	if err != nil {
		return fmt.Errorf("persistence: marshal record %s %q: %w", typ, name, err)
	}
	if _, err := w.Write(line); err != nil {
		return err
	}
	return w.WriteByte('\n')
}

// Restore replays path into the registry. It must run after config load
// (so objects already exist) and before the scheduler, endpoint
// connections, or cluster router start. An object named in the file that
// is no longer registered is skipped, as is a line that fails to parse —
// persistence corruption is logged and skipped, never fatal.
func Restore(path string, reg Registry) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("persistence: open %s: %w", path, err)
	}
	defer f.Close()

	logger := log.WithComponent("persistence")
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			logger.Warn().Err(err).Msg("skipping corrupt state.dat line")
			continue
		}

		if err := restoreRecord(reg, rec); err != nil {
			logger.Warn().Str("type", rec.Type).Str("name", rec.Name).Err(err).Msg("skipping unrestorable state.dat record")
		}
	}

	return scanner.Err()
}

func restoreRecord(reg Registry, rec record) error {
	switch rec.Type {
	case typeService:
		var state serviceState
		if err := json.Unmarshal(rec.Attrs, &state); err != nil {
			return err
		}
		return reg.WithService(rec.Name, func(svc *types.Service) { applyServiceState(svc, state) })

	case typeHost:
		var state hostState
		if err := json.Unmarshal(rec.Attrs, &state); err != nil {
			return err
		}
		return reg.WithHost(rec.Name, func(h *types.Host) { h.EnableNotifications = state.EnableNotifications })

	case typeEndpoint:
		var state endpointState
		if err := json.Unmarshal(rec.Attrs, &state); err != nil {
			return err
		}
		return reg.WithEndpoint(rec.Name, func(ep *types.Endpoint) { applyEndpointState(ep, state) })

	default:
		return fmt.Errorf("unknown object type %q", rec.Type)
	}
}
