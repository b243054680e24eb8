package commands

import (
	"fmt"
	"time"

	"FlowChains/pkg/pcapgen"

	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

func init() {
	GetRegistry().RegisterCommands(cli.Command{
		Name:      "generate",
		Usage:     "Write a synthetic capture of DNS lookups and TCP sessions",
		ArgsUsage: "<output file>",
		Flags: []cli.Flag{
			cli.IntFlag{Name: "conversations, n", Value: 100, Usage: "number of lookup and session pairs"},
			cli.StringFlag{Name: "format", Value: "pcap", Usage: "pcap or pcapng"},
			cli.Int64Flag{Name: "seed", Value: 1, Usage: "random seed"},
			cli.DurationFlag{Name: "gap", Value: 5 * time.Millisecond, Usage: "time between packets"},
		},
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return exitError(errors.New("no output file given"))
			}
			gen := pcapgen.NewGenerator(c.Int64("seed"), time.Now().UTC(), c.Duration("gap"))
			packets, err := gen.Traffic(c.Int("conversations"))
			if err != nil {
				return exitError(err)
			}
			if err := pcapgen.WriteFile(path, c.String("format"), packets); err != nil {
				return exitError(err)
			}
			fmt.Printf("Wrote %d packets to %s\n", len(packets), path)
			return nil
		},
	})
}
