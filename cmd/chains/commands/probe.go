package commands

import (
	"context"

	"FlowChains/internal/engine/manager"
	"FlowChains/internal/logging"
	"FlowChains/internal/probe"

	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

func init() {
	GetRegistry().RegisterCommands(cli.Command{
		Name:  "probe",
		Usage: "Capture on an interface and publish packet records to NATS",
		Flags: []cli.Flag{
			configFlag,
			cli.StringFlag{Name: "iface, i", Usage: "interface to capture on; overrides source.interface"},
		},
		Action: func(c *cli.Context) error {
			if err := runProbe(c); err != nil {
				return exitError(err)
			}
			return nil
		},
	})
}

func runProbe(c *cli.Context) error {
	cfg, logger, err := loadEnvironment(c)
	if err != nil {
		return err
	}
	cfg.Source.Type = "live"
	if iface := c.String("iface"); iface != "" {
		cfg.Source.Interface = iface
	}

	src, err := manager.OpenSource(cfg, "", logger)
	if err != nil {
		return err
	}
	defer src.Close()

	pub, err := probe.NewPublisher(cfg.NATS.URL, cfg.NATS.PacketSubject, logger)
	if err != nil {
		return err
	}
	defer pub.Close()
	logger.Info("probe started", logging.Fields{"interface": cfg.Source.Interface, "subject": cfg.NATS.PacketSubject})

	ctx, cancel := interruptContext()
	defer cancel()
	if err := pub.Run(ctx, src); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
