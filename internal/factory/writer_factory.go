package factory

import (
	"sort"

	"FlowChains/internal/config"
	"FlowChains/internal/logging"
	"FlowChains/internal/model"

	"github.com/pkg/errors"
)

// WriterFactory creates a flow sink from its configuration. cfg is the whole
// application configuration, for sinks that share connection settings.
type WriterFactory func(cfg *config.Config, wc config.WriterConfig, logger logging.Logger) (model.Writer, error)

// registry holds the mapping of writer types to their factory functions.
var registry = make(map[string]WriterFactory)

// RegisterWriter registers a new writer type with its factory function.
func RegisterWriter(name string, factory WriterFactory) {
	if _, exists := registry[name]; exists {
		panic("writer type '" + name + "' already registered")
	}
	registry[name] = factory
}

// Registered lists the known writer types.
func Registered() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create builds every writer listed in the config. Writers created before a
// failure are closed again.
func Create(cfg *config.Config, logger logging.Logger) ([]model.Writer, error) {
	var writers []model.Writer

	for i, wc := range cfg.Writers {
		logger.Info("creating writer", logging.Fields{"type": wc.Type, "index": i})

		factory, ok := registry[wc.Type]
		if !ok {
			closeAll(writers)
			return nil, errors.Errorf("unknown writer type: '%s'", wc.Type)
		}

		w, err := factory(cfg, wc, logger)
		if err != nil {
			closeAll(writers)
			return nil, errors.Wrapf(err, "error creating writer type '%s'", wc.Type)
		}
		writers = append(writers, w)
	}

	return writers, nil
}

func closeAll(writers []model.Writer) {
	for _, w := range writers {
		_ = w.Close()
	}
}
