package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wardenhq/sentryd/pkg/registry"
	"github.com/wardenhq/sentryd/pkg/types"
)

const sampleYAML = `
zones:
  - name: main
  - name: satellite
    parent_zone: main

endpoints:
  - name: master-1
    host: 10.0.0.1
    port: "5665"
    zone: main
  - name: agent-1
    host: 10.0.1.1
    port: "5665"
    zone: satellite

hosts:
  - name: web01
    check_services: [http, ssh]

services:
  - host: web01
    name: http
    check_command: ["check_http", "-H", "web01"]
    check_interval: 60s
    retry_interval: 10s
    max_check_attempts: 3
    authority: ["master-1"]
    enable_active_checks: true
    enable_notifications: true
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sentryd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))
	return path
}

func TestLoadParsesSampleDocument(t *testing.T) {
	doc, err := Load(writeSample(t))
	require.NoError(t, err)
	require.Len(t, doc.Zones, 2)
	require.Len(t, doc.Endpoints, 2)
	require.Len(t, doc.Hosts, 1)
	require.Len(t, doc.Services, 1)
	require.Equal(t, 60*time.Second, doc.Services[0].CheckInterval)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hosts: [this is not a host list"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestApplyRegistersEveryObject(t *testing.T) {
	doc, err := Load(writeSample(t))
	require.NoError(t, err)

	reg := registry.New()
	require.NoError(t, Apply(doc, reg))

	require.Equal(t, 1, reg.ServiceCount())
	require.Equal(t, 1, reg.HostCount())
	require.Contains(t, reg.IterateEndpointKeys(), "master-1")
	require.Contains(t, reg.IterateEndpointKeys(), "agent-1")

	var authority []string
	require.NoError(t, reg.WithServiceRead("web01!http", func(svc *types.Service) {
		authority = svc.Authority
	}))
	require.Equal(t, []string{"master-1"}, authority)

	var zone string
	require.NoError(t, reg.WithZoneRead("satellite", func(z *types.Zone) { zone = z.ParentZone }))
	require.Equal(t, "main", zone)
}

func TestApplyFailsOnDuplicateHost(t *testing.T) {
	doc := &Document{Hosts: []HostDef{{Name: "dup"}, {Name: "dup"}}}
	reg := registry.New()
	require.Error(t, Apply(doc, reg))
}
