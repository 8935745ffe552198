// Package config loads the static object definitions (hosts, services,
// endpoints, zones) that populate the registry at startup, from a single
// YAML document.
//
// This is deliberately thin: there is no expression language, no
// inheritance between object templates, and no runtime reload. A
// config-compiler and feature-enable tooling are out of scope; this
// loader's only job is to turn one YAML file into registry.RegisterX
// calls.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wardenhq/sentryd/pkg/errkind"
	"github.com/wardenhq/sentryd/pkg/types"
)

// Document is the root of a sentryd config file.
type Document struct {
	Hosts     []HostDef     `yaml:"hosts"`
	Services  []ServiceDef  `yaml:"services"`
	Endpoints []EndpointDef `yaml:"endpoints"`
	Zones     []ZoneDef     `yaml:"zones"`
}

// HostDef is a Host definition as it appears in YAML.
type HostDef struct {
	Name                string            `yaml:"name"`
	Labels              map[string]string `yaml:"labels"`
	CheckServices       []string          `yaml:"check_services"`
	EnableNotifications bool              `yaml:"enable_notifications"`
	Dependencies        []DependencyDef   `yaml:"dependencies"`
}

// ServiceDef is a Service definition as it appears in YAML.
type ServiceDef struct {
	Host                string            `yaml:"host"`
	Name                string            `yaml:"name"`
	CheckCommand        []string          `yaml:"check_command"`
	Macros              map[string]string `yaml:"macros"`
	CheckInterval       time.Duration     `yaml:"check_interval"`
	RetryInterval       time.Duration     `yaml:"retry_interval"`
	MaxCheckAttempts    int               `yaml:"max_check_attempts"`
	Authority           []string          `yaml:"authority"`
	EnableActiveChecks  bool              `yaml:"enable_active_checks"`
	EnablePassiveChecks bool              `yaml:"enable_passive_checks"`
	EnableNotifications bool              `yaml:"enable_notifications"`
	EnableFlapping      bool              `yaml:"enable_flapping"`
	Dependencies        []DependencyDef   `yaml:"dependencies"`
}

// DependencyDef is a Dependency edge as it appears in YAML.
type DependencyDef struct {
	ParentHost    string `yaml:"parent_host"`
	ParentService string `yaml:"parent_service"`
	StateFilter   int    `yaml:"state_filter"`
}

// EndpointDef is an Endpoint definition as it appears in YAML.
type EndpointDef struct {
	Name string `yaml:"name"`
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	Zone string `yaml:"zone"`
}

// ZoneDef is a Zone definition as it appears in YAML.
type ZoneDef struct {
	Name       string   `yaml:"name"`
	ParentZone string   `yaml:"parent_zone"`
	Endpoints  []string `yaml:"endpoints"`
}

// Load reads and parses path into a Document. It does not validate
// cross-references; Apply rejects a service naming a host the document
// does not define. Dependency parents and authority patterns are not
// checked.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errkind.Wrap(fmt.Errorf("config: reading %s: %w", path, err), errkind.Config)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errkind.Wrap(fmt.Errorf("config: parsing %s: %w", path, err), errkind.Config)
	}
	return &doc, nil
}

// Registry is the subset of *registry.Registry that Apply populates.
type Registry interface {
	RegisterHost(host *types.Host) error
	RegisterService(svc *types.Service) error
	RegisterEndpoint(ep *types.Endpoint) error
	RegisterZone(zone *types.Zone) error
}

// Apply registers every object in doc with reg, in dependency order
// (zones and endpoints first, then hosts, then services) so that a
// service naming an authority pattern never races its endpoint's
// registration.
func Apply(doc *Document, reg Registry) error {
	for _, z := range doc.Zones {
		zone := &types.Zone{Name: z.Name, ParentZone: z.ParentZone, Endpoints: z.Endpoints}
		if err := reg.RegisterZone(zone); err != nil {
			return errkind.Wrap(fmt.Errorf("config: zone %q: %w", z.Name, err), errkind.Config)
		}
	}

	for _, e := range doc.Endpoints {
		ep := &types.Endpoint{Name: e.Name, Host: e.Host, Port: e.Port, Zone: e.Zone}
		if err := reg.RegisterEndpoint(ep); err != nil {
			return errkind.Wrap(fmt.Errorf("config: endpoint %q: %w", e.Name, err), errkind.Config)
		}
	}

	hostNames := make(map[string]bool, len(doc.Hosts))
	for _, h := range doc.Hosts {
		hostNames[h.Name] = true
		host := &types.Host{
			Name:                h.Name,
			Labels:              h.Labels,
			CheckServices:       h.CheckServices,
			EnableNotifications: h.EnableNotifications,
			Dependencies:        dependenciesFrom(h.Dependencies),
		}
		if err := reg.RegisterHost(host); err != nil {
			return errkind.Wrap(fmt.Errorf("config: host %q: %w", h.Name, err), errkind.Config)
		}
	}

	for _, s := range doc.Services {
		if !hostNames[s.Host] {
			return errkind.Wrap(fmt.Errorf("config: service %q: unknown host %q", s.Name, s.Host), errkind.Config)
		}
		if s.MaxCheckAttempts <= 0 {
			s.MaxCheckAttempts = 3
		}
		svc := &types.Service{
			HostName:              s.Host,
			Name:                  s.Name,
			CheckCommand:          s.CheckCommand,
			Macros:                s.Macros,
			CheckInterval:         s.CheckInterval,
			RetryInterval:         s.RetryInterval,
			MaxCheckAttempts:      s.MaxCheckAttempts,
			Authority:             s.Authority,
			Dependencies:          dependenciesFrom(s.Dependencies),
			EnableActiveChecks:    s.EnableActiveChecks,
			EnablePassiveChecks:   s.EnablePassiveChecks,
			EnableNotifications:   s.EnableNotifications,
			EnableFlapping:        s.EnableFlapping,
		}
		if err := reg.RegisterService(svc); err != nil {
			return errkind.Wrap(fmt.Errorf("config: service %q!%q: %w", s.Host, s.Name, err), errkind.Config)
		}
	}

	return nil
}

func dependenciesFrom(defs []DependencyDef) []types.Dependency {
	if len(defs) == 0 {
		return nil
	}
	deps := make([]types.Dependency, 0, len(defs))
	for _, d := range defs {
		filter := types.StateFilter(d.StateFilter)
		if filter == 0 {
			filter = types.DefaultStateFilter
		}
		deps = append(deps, types.Dependency{
			ParentHost:    d.ParentHost,
			ParentService: d.ParentService,
			StateFilter:   filter,
		})
	}
	return deps
}
