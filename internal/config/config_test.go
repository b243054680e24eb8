package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	timeouts, err := cfg.Flows.Timeouts()
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, timeouts.Idle)
	assert.Equal(t, time.Second, timeouts.Grace)
	assert.False(t, cfg.Flows.RetainUDP)
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chains.yaml")
	data := `
log:
  level: debug
flows:
  idle_timeout: 30s
  retain_udp: true
  clock: wall
source:
  type: live
  interface: eth0
  bpf: "tcp or udp"
enrichment:
  reverse_dns:
    enabled: true
    server: 127.0.0.1:5353
analyzers: [dns, tags]
writers:
  - type: file
    file:
      path: /tmp/flows
  - type: clickhouse
    clickhouse:
      host: localhost
      port: 9000
      database: chains
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	timeouts, err := cfg.Flows.Timeouts()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, timeouts.Idle)
	assert.Equal(t, time.Second, timeouts.Grace)
	assert.True(t, cfg.Flows.RetainUDP)
	assert.Equal(t, "wall", cfg.Flows.Clock)
	assert.Equal(t, "cidr", cfg.Flows.Locality)
	assert.Equal(t, "eth0", cfg.Source.Interface)
	assert.Equal(t, int32(65536), cfg.Source.SnapLen)
	assert.Equal(t, time.Second, cfg.Source.IdlePollDuration())

	rdns, err := cfg.Enrichment.ReverseDNS.Durations()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, rdns.CacheTTL)
	assert.Equal(t, 4096, cfg.Enrichment.ReverseDNS.CacheSize)
	assert.Equal(t, []string{"dns", "tags"}, cfg.Analyzers)

	require.Len(t, cfg.Writers, 2)
	assert.Equal(t, "/tmp/flows", cfg.Writers[0].File.Path)
	assert.Equal(t, 9000, cfg.Writers[1].ClickHouse.Port)
}

func TestParseRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad clock", "flows: {clock: sundial}"},
		{"bad locality", "flows: {locality: everywhere}"},
		{"zero idle", "flows: {idle_timeout: 0s}"},
		{"negative grace", "flows: {grace_period: -1s}"},
		{"unparsable duration", "flows: {idle_timeout: soon}"},
		{"bad source", "source: {type: carrier_pigeon}"},
		{"bad log format", "log: {format: xml}"},
		{"bad writer", "writers: [{type: fax}]"},
		{"file writer without path", "writers: [{type: file}]"},
		{"bad rdns ttl", "enrichment: {reverse_dns: {enabled: true, cache_ttl: never}}"},
		{"negative rdns cache", "enrichment: {reverse_dns: {enabled: true, cache_size: -1}}"},
		{"not yaml", "flows: ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestFlowClockFollowsSource(t *testing.T) {
	tests := []struct {
		source, clock, want string
	}{
		{"pcap", "", ClockPacket},
		{"live", "", ClockWall},
		{"nats", "", ClockWall},
		{"live", ClockPacket, ClockPacket},
		{"pcap", ClockWall, ClockWall},
	}
	for _, tt := range tests {
		cfg := Default()
		cfg.Source.Type = tt.source
		cfg.Flows.Clock = tt.clock
		require.NoError(t, cfg.Validate())
		assert.Equal(t, tt.want, cfg.FlowClock(), "source %s clock %q", tt.source, tt.clock)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
