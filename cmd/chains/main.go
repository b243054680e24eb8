package main

import (
	"os"

	"FlowChains/cmd/chains/commands"

	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "chains"
	app.Usage = "Reconstruct network flows from packet captures"
	app.Version = "v0.1.0"
	app.Commands = commands.GetRegistry().GetCommands()

	app.Run(os.Args)
}
