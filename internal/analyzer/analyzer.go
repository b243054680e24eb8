// Package analyzer annotates emitted flows with protocol level metadata.
package analyzer

import (
	"context"
	"sort"
	"sync"

	"FlowChains/internal/core/model"
	contract "FlowChains/internal/model"
	"FlowChains/internal/pipeline"

	"github.com/pkg/errors"
)

// Factory creates an analyzer.
type Factory func() contract.Analyzer

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes an analyzer available by name. It panics on duplicates.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := factories[name]; ok {
		panic("analyzer: duplicate registration for " + name)
	}
	factories[name] = factory
}

// Names lists the registered analyzers.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the named analyzers in the given order.
func New(names ...string) ([]contract.Analyzer, error) {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]contract.Analyzer, 0, len(names))
	for _, name := range names {
		factory, ok := factories[name]
		if !ok {
			return nil, errors.Errorf("unknown analyzer %q", name)
		}
		out = append(out, factory())
	}
	return out, nil
}

// Stage runs every analyzer over each flow of in, in order.
func Stage(in pipeline.Stream[*model.FlowRecord], analyzers ...contract.Analyzer) (pipeline.Stream[*model.FlowRecord], error) {
	return pipeline.Tap(in, func(_ context.Context, f *model.FlowRecord) {
		for _, a := range analyzers {
			a.Analyze(f)
		}
	})
}
