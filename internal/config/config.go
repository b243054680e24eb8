package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// FlowsConfig holds the flow table policy.
type FlowsConfig struct {
	IdleTimeout string `yaml:"idle_timeout"`
	GracePeriod string `yaml:"grace_period"`
	RetainUDP   bool   `yaml:"retain_udp"`
	Clock       string `yaml:"clock"`    // packet, wall, or empty to follow the source type
	Locality    string `yaml:"locality"` // cidr or prefix
}

// SourceConfig describes where packets come from.
type SourceConfig struct {
	Type        string `yaml:"type"` // pcap, live or nats
	Path        string `yaml:"path"`
	Interface   string `yaml:"interface"`
	BPF         string `yaml:"bpf"`
	SnapLen     int32  `yaml:"snaplen"`
	Promiscuous bool   `yaml:"promiscuous"`
	MaxPackets  int    `yaml:"max_packets"`
	IdlePoll    string `yaml:"idle_poll"`
}

// ReverseDNSConfig configures the reverse DNS enrichment.
type ReverseDNSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Server   string `yaml:"server"`
	Timeout  string `yaml:"timeout"`
	CacheTTL string `yaml:"cache_ttl"`
	// CacheSize caps the remembered addresses; zero uses the default.
	CacheSize int `yaml:"cache_size"`
}

// EnrichmentConfig groups the packet enrichers.
type EnrichmentConfig struct {
	ReverseDNS ReverseDNSConfig `yaml:"reverse_dns"`
}

// TextConfig configures the text printer.
type TextConfig struct {
	Output         string `yaml:"output"` // "stdout" or a file path
	PayloadPreview int    `yaml:"payload_preview"`
}

// FileConfig configures the msgpack file writer.
type FileConfig struct {
	Path string `yaml:"path"`
}

// NATSWriterConfig configures the NATS flow publisher.
type NATSWriterConfig struct {
	Subject string `yaml:"subject"`
}

// ClickHouseConfig holds the connection details for ClickHouse.
type ClickHouseConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Database  string `yaml:"database"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	BatchSize int    `yaml:"batch_size"`
}

// WriterConfig defines a single flow sink.
type WriterConfig struct {
	Type       string           `yaml:"type"` // text, file, nats or clickhouse
	Text       TextConfig       `yaml:"text"`
	File       FileConfig       `yaml:"file"`
	NATS       NATSWriterConfig `yaml:"nats"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// NATSConfig holds the broker connection used by the probe and the engine.
type NATSConfig struct {
	URL           string `yaml:"url"`
	PacketSubject string `yaml:"packet_subject"`
}

// APIConfig holds the listen addresses of the HTTP and gRPC servers.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	GRPCAddr   string `yaml:"grpc_addr"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Log        LogConfig        `yaml:"log"`
	Flows      FlowsConfig      `yaml:"flows"`
	Source     SourceConfig     `yaml:"source"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Analyzers  []string         `yaml:"analyzers"`
	Writers    []WriterConfig   `yaml:"writers"`
	NATS       NATSConfig       `yaml:"nats"`
	API        APIConfig        `yaml:"api"`
}

// Default returns the configuration used when no file is given: offline
// analysis printing flows to stdout. The flow clock is left empty so it
// follows the source type, see FlowClock.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Flows: FlowsConfig{
			IdleTimeout: "60s",
			GracePeriod: "1s",
			Locality:    "cidr",
		},
		Source: SourceConfig{
			Type:     "pcap",
			SnapLen:  65536,
			IdlePoll: "1s",
		},
		Enrichment: EnrichmentConfig{
			ReverseDNS: ReverseDNSConfig{Timeout: "2s", CacheTTL: "10m", CacheSize: 4096},
		},
		Writers: []WriterConfig{{Type: "text", Text: TextConfig{Output: "stdout", PayloadPreview: 20}}},
		NATS: NATSConfig{
			URL:           "nats://127.0.0.1:4222",
			PacketSubject: "chains.packets",
		},
		API: APIConfig{ListenAddr: ":8080", GRPCAddr: ":50051"},
	}
}

// LoadConfig reads the configuration from a YAML file on top of Default and
// validates it.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config YAML")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unknown enum values and malformed or non-positive durations.
func (c *Config) Validate() error {
	if _, err := c.Flows.Timeouts(); err != nil {
		return err
	}
	if err := oneOf("flows.clock", c.Flows.Clock, "", ClockPacket, ClockWall); err != nil {
		return err
	}
	if err := oneOf("flows.locality", c.Flows.Locality, "cidr", "prefix"); err != nil {
		return err
	}
	if err := oneOf("log.format", c.Log.Format, "text", "json"); err != nil {
		return err
	}
	if err := oneOf("source.type", c.Source.Type, "pcap", "live", "nats"); err != nil {
		return err
	}
	if _, err := positive("source.idle_poll", c.Source.IdlePoll); err != nil {
		return err
	}
	if c.Enrichment.ReverseDNS.Enabled {
		if _, err := c.Enrichment.ReverseDNS.Durations(); err != nil {
			return err
		}
		if c.Enrichment.ReverseDNS.CacheSize < 0 {
			return errors.Errorf("enrichment.reverse_dns.cache_size must not be negative, got %d", c.Enrichment.ReverseDNS.CacheSize)
		}
	}
	for i, w := range c.Writers {
		if err := oneOf("writers.type", w.Type, "text", "file", "nats", "clickhouse"); err != nil {
			return errors.Wrapf(err, "writer %d", i)
		}
		if w.Type == "file" && w.File.Path == "" {
			return errors.Errorf("writer %d: file writer needs a path", i)
		}
	}
	return nil
}

// Flow clock names.
const (
	ClockPacket = "packet"
	ClockWall   = "wall"
)

// FlowClock returns the configured flow clock. When none is set, offline
// captures use the packet clock and live or NATS sources the wall clock, so
// idle sweeps still expire flows while no packets arrive.
func (c *Config) FlowClock() string {
	if c.Flows.Clock != "" {
		return c.Flows.Clock
	}
	switch c.Source.Type {
	case "live", "nats":
		return ClockWall
	default:
		return ClockPacket
	}
}

// FlowTimeouts holds the parsed flow durations.
type FlowTimeouts struct {
	Idle  time.Duration
	Grace time.Duration
}

// Timeouts parses the idle timeout and grace period.
func (f FlowsConfig) Timeouts() (FlowTimeouts, error) {
	idle, err := positive("flows.idle_timeout", f.IdleTimeout)
	if err != nil {
		return FlowTimeouts{}, err
	}
	grace, err := positive("flows.grace_period", f.GracePeriod)
	if err != nil {
		return FlowTimeouts{}, err
	}
	return FlowTimeouts{Idle: idle, Grace: grace}, nil
}

// IdlePollDuration parses the idle poll window.
func (s SourceConfig) IdlePollDuration() time.Duration {
	d, err := time.ParseDuration(s.IdlePoll)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

// ReverseDNSDurations holds the parsed reverse DNS durations.
type ReverseDNSDurations struct {
	Timeout  time.Duration
	CacheTTL time.Duration
}

// Durations parses the lookup timeout and cache TTL.
func (r ReverseDNSConfig) Durations() (ReverseDNSDurations, error) {
	timeout, err := positive("enrichment.reverse_dns.timeout", r.Timeout)
	if err != nil {
		return ReverseDNSDurations{}, err
	}
	ttl, err := positive("enrichment.reverse_dns.cache_ttl", r.CacheTTL)
	if err != nil {
		return ReverseDNSDurations{}, err
	}
	return ReverseDNSDurations{Timeout: timeout, CacheTTL: ttl}, nil
}

func positive(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", field)
	}
	if d <= 0 {
		return 0, errors.Errorf("%s must be positive, got %s", field, value)
	}
	return d, nil
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return errors.Errorf("invalid %s %q, expected one of %v", field, value, allowed)
}
