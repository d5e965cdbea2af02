// Command radiusd is the RADIUS/AAA request-processing core's executable:
// "radiusd run" boots the module lifecycle, worker pool, and virtual-server
// dispatcher from a YAML config file and blocks until terminated; "radiusd
// stats" and "radiusd modules" attach to an already-running instance's
// admin socket.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/quarry-radius/cli/cmd"
	"github.com/pithecene-io/quarry-radius/types"

	_ "github.com/pithecene-io/quarry-radius/module/examples/eapsim"
	_ "github.com/pithecene-io/quarry-radius/module/examples/homeproxy"
	_ "github.com/pithecene-io/quarry-radius/module/examples/ldapish"
)

func main() {
	app := &cli.App{
		Name:  "radiusd",
		Usage: "RADIUS/AAA request-processing core",
		Version: fmt.Sprintf("%s (commit: %s)", types.Version, cmd.Commit),
		Commands: []*cli.Command{
			cmd.RunCommand(),
			cmd.StatsCommand(),
			cmd.ModulesCommand(),
			cmd.VersionCommand("", cmd.Commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		if exitCoder, ok := err.(cli.ExitCoder); ok {
			if msg := exitCoder.Error(); msg != "" {
				fmt.Fprintln(os.Stderr, msg)
			}
			os.Exit(exitCoder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
