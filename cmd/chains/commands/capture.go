package commands

import (
	"context"

	"FlowChains/internal/engine/manager"

	"github.com/urfave/cli"
)

func init() {
	GetRegistry().RegisterCommands(cli.Command{
		Name:  "capture",
		Usage: "Reconstruct flows from a live interface until interrupted",
		Flags: []cli.Flag{
			configFlag,
			cli.StringFlag{Name: "iface, i", Usage: "interface to capture on; overrides source.interface"},
			cli.StringFlag{Name: "bpf", Usage: "BPF filter; overrides source.bpf"},
		},
		Action: func(c *cli.Context) error {
			if err := capture(c); err != nil {
				return exitError(err)
			}
			return nil
		},
	})
}

func capture(c *cli.Context) error {
	cfg, logger, err := loadEnvironment(c)
	if err != nil {
		return err
	}
	cfg.Source.Type = "live"
	if iface := c.String("iface"); iface != "" {
		cfg.Source.Interface = iface
	}
	if bpf := c.String("bpf"); bpf != "" {
		cfg.Source.BPF = bpf
	}

	m, err := manager.NewManager(cfg, logger)
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
	if err := m.Run(context.Background(), manager.UntilDone(stop, src)); err != nil {
		return err
	}
	return m.Close()
}
