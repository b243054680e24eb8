package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"FlowChains/internal/config"
	"FlowChains/internal/logging"
	_ "FlowChains/internal/writer" // registers the flow writers

	"github.com/urfave/cli"
)

var configFlag = cli.StringFlag{
	Name:  "config, c",
	Usage: "path to the YAML configuration; built-in defaults when empty",
}

// loadEnvironment reads the config named by --config and builds the logger.
func loadEnvironment(c *cli.Context) (*config.Config, logging.Logger, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.LoadConfig(path); err != nil {
			return nil, nil, err
		}
	}
	logger, err := logging.NewLogrusLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func exitError(err error) error {
	return cli.NewExitError(fmt.Sprintf("%+v\n", err), 1)
}

// interruptContext is cancelled on SIGINT or SIGTERM.
func interruptContext() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() { signal.Stop(sigChan); cancel() }
}
