package commands

import (
	"fmt"

	"github.com/urfave/cli"
	"gopkg.in/yaml.v3"
)

func init() {
	GetRegistry().RegisterCommands(cli.Command{
		Name:  "check-config",
		Usage: "Validate the configuration and print it with defaults applied",
		Flags: []cli.Flag{configFlag},
		Action: func(c *cli.Context) error {
			cfg, _, err := loadEnvironment(c)
			if err != nil {
				return exitError(err)
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return exitError(err)
			}
			fmt.Printf("Loaded Configuration:\n%s\n", out)
			return nil
		},
	})
}
