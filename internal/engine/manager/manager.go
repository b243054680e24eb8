package manager

import (
	"context"
	"io"
	"sync"

	"FlowChains/internal/analyzer"
	"FlowChains/internal/config"
	"FlowChains/internal/core/model"
	"FlowChains/internal/engine/direction"
	"FlowChains/internal/engine/flowtable"
	"FlowChains/internal/enrich"
	"FlowChains/internal/factory"
	"FlowChains/internal/logging"
	contract "FlowChains/internal/model"
	"FlowChains/internal/pipeline"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

// Manager assembles a capture chain from the config and drives it:
// source -> enrichment -> flow table -> analyzers -> writers.
type Manager struct {
	logger    logging.Logger
	recorder  flowtable.Recorder
	policy    flowtable.Policy
	clock     string
	enricher  contract.Enricher
	analyzers []contract.Analyzer
	writers   []contract.Writer

	mu      sync.Mutex
	written int
	closed  bool
}

// Option customizes a Manager.
type Option func(*Manager)

// WithWriters replaces the configured writers.
func WithWriters(writers ...contract.Writer) Option {
	return func(m *Manager) {
		m.writers = append([]contract.Writer{}, writers...)
	}
}

// WithEnricher replaces the configured packet enricher.
func WithEnricher(e contract.Enricher) Option {
	return func(m *Manager) { m.enricher = e }
}

// WithRecorder reports flow table activity to r.
func WithRecorder(r flowtable.Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// NewManager creates a Manager. Writers come from the writer registry unless
// WithWriters is given.
func NewManager(cfg *config.Config, logger logging.Logger, opts ...Option) (*Manager, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = logging.NewNullLogger()
	}

	timeouts, err := cfg.Flows.Timeouts()
	if err != nil {
		return nil, err
	}
	locality, err := direction.NewLocality(cfg.Flows.Locality)
	if err != nil {
		return nil, err
	}
	analyzers, err := analyzer.New(cfg.Analyzers...)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		logger: logger,
		policy: flowtable.Policy{
			IdleTimeout: timeouts.Idle,
			GracePeriod: timeouts.Grace,
			RetainUDP:   cfg.Flows.RetainUDP,
			Classifier:  direction.NewClassifier(locality),
		},
		clock:     cfg.FlowClock(),
		analyzers: analyzers,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.enricher == nil && cfg.Enrichment.ReverseDNS.Enabled {
		rc := cfg.Enrichment.ReverseDNS
		durations, err := rc.Durations()
		if err != nil {
			return nil, err
		}
		resolver, err := enrich.NewDNSResolver(rc.Server, durations.Timeout)
		if err != nil {
			return nil, err
		}
		m.enricher = enrich.NewReverseDNS(resolver, locality, enrich.NewCache(rc.CacheSize, durations.CacheTTL, clock.New()), logger)
		logger.Info("reverse DNS enrichment enabled", logging.Fields{"server": resolver.Server()})
	}

	if m.writers == nil {
		if m.writers, err = factory.Create(cfg, logger); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Chain builds the flow stream over src without pulling it.
func (m *Manager) Chain(src pipeline.Stream[*model.PacketRecord]) (pipeline.Stream[*model.FlowRecord], error) {
	var err error
	if m.enricher != nil {
		if src, err = enrich.Stage(src, m.enricher); err != nil {
			return nil, err
		}
	}

	table := flowtable.NewTable(m.policy, flowtable.NewClock(m.clock))
	var stageOpts []flowtable.StageOption
	if m.recorder != nil {
		stageOpts = append(stageOpts, flowtable.WithRecorder(m.recorder))
	}
	flows, err := flowtable.NewStage(src, table, m.logger, stageOpts...)
	if err != nil {
		return nil, err
	}

	if len(m.analyzers) == 0 {
		return flows, nil
	}
	return analyzer.Stage(flows, m.analyzers...)
}

// Run pulls src to completion and hands every flow to every writer. A write
// error is logged and the flow still reaches the remaining writers.
func (m *Manager) Run(ctx context.Context, src pipeline.Stream[*model.PacketRecord]) error {
	flows, err := m.Chain(src)
	if err != nil {
		return err
	}

	m.logger.Info("pipeline started", logging.Fields{"writers": len(m.writers), "analyzers": len(m.analyzers)})
	err = pipeline.Pull(ctx, flows, func(f *model.FlowRecord) error {
		for _, w := range m.writers {
			if err := w.Write(ctx, f); err != nil {
				m.logger.Error(errors.Wrap(err, "writer failed"), logging.Fields{"flow": f.Key()})
			}
		}
		m.mu.Lock()
		m.written++
		m.mu.Unlock()
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	m.logger.Info("pipeline finished", logging.Fields{"flows": m.Written()})
	return err
}

// Written returns how many flows reached the writers.
func (m *Manager) Written() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written
}

// Close closes every writer once and returns the first error.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	var first error
	for _, w := range m.writers {
		if err := w.Close(); err != nil {
			m.logger.Error(errors.Wrap(err, "failed to close writer"), nil)
			if first == nil {
				first = err
			}
		}
	}
	m.logger.Info("manager stopped", nil)
	return first
}

var _ io.Closer = (*Manager)(nil)
