package commands

import (
	"context"

	"FlowChains/internal/engine/manager"
	"FlowChains/internal/logging"

	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

func init() {
	GetRegistry().RegisterCommands(cli.Command{
		Name:      "analyze",
		Usage:     "Reconstruct the flows of a pcap or pcapng file",
		ArgsUsage: "<capture file>",
		Flags: []cli.Flag{
			configFlag,
			cli.IntFlag{Name: "max-packets", Usage: "stop after this many packets (0: all)"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() > 1 {
				return exitError(errors.New("analyze takes a single capture file"))
			}
			if err := analyze(c); err != nil {
				return exitError(err)
			}
			return nil
		},
	})
}

func analyze(c *cli.Context) error {
	cfg, logger, err := loadEnvironment(c)
	if err != nil {
		return err
	}
	cfg.Source.Type = "pcap"
	if n := c.Int("max-packets"); n > 0 {
		cfg.Source.MaxPackets = n
	}

	m, err := manager.NewManager(cfg, logger)
	if err != nil {
		return err
	}
	defer m.Close()

	src, err := manager.OpenSource(cfg, c.Args().First(), logger)
	if err != nil {
		return err
	}
	defer src.Close()

	ctx, cancel := interruptContext()
	defer cancel()
	if err := m.Run(ctx, src); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("analysis complete", logging.Fields{"flows": m.Written()})
	return m.Close()
}
