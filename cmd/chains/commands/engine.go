package commands

import (
	"context"
	"time"

	"FlowChains/internal/api"
	"FlowChains/internal/config"
	"FlowChains/internal/engine/manager"
	"FlowChains/internal/logging"
	"FlowChains/internal/metrics"
	"FlowChains/internal/query"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli"
)

const shutdownTimeout = 5 * time.Second

func init() {
	GetRegistry().RegisterCommands(cli.Command{
		Name:  "engine",
		Usage: "Reconstruct flows from packet records published on NATS and serve the API",
		Flags: []cli.Flag{configFlag},
		Action: func(c *cli.Context) error {
			if err := runEngine(c); err != nil {
				return exitError(err)
			}
			return nil
		},
	})
}

func runEngine(c *cli.Context) error {
	cfg, logger, err := loadEnvironment(c)
	if err != nil {
		return err
	}
	cfg.Source.Type = "nats"

	stats := metrics.New()
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := stats.Register(reg); err != nil {
		return err
	}

	querier, err := newQuerier(cfg, logger)
	if err != nil {
		return err
	}
	if querier != nil {
		defer querier.Close()
	}

	server := api.NewServer(cfg.API, stats, reg, querier, logger)
	if err := server.Start(); err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error(err, nil)
		}
	}()

	m, err := manager.NewManager(cfg, logger, manager.WithRecorder(stats))
	if err != nil {
		return err
	}
	defer m.Close()

	src, err := manager.OpenSource(cfg, "", logger)
	if err != nil {
		return err
	}
	defer src.Close()

	stop, cancel := interruptContext()
	defer cancel()
	server.SetServing(true)
	logger.Info("engine started", logging.Fields{"subject": cfg.NATS.PacketSubject})
	if err := m.Run(context.Background(), manager.UntilDone(stop, src)); err != nil {
		return err
	}
	return m.Close()
}

// newQuerier connects to the first clickhouse writer's database, if any.
func newQuerier(cfg *config.Config, logger logging.Logger) (query.Querier, error) {
	for _, wc := range cfg.Writers {
		if wc.Type != "clickhouse" {
			continue
		}
		q, err := query.NewClickHouseQuerier(wc.ClickHouse)
		if err != nil {
			return nil, err
		}
		logger.Info("flow queries enabled", logging.Fields{"host": wc.ClickHouse.Host, "database": wc.ClickHouse.Database})
		return q, nil
	}
	return nil, nil
}
