package cmd

import (
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/quarry-radius/admin"
	quarryconfig "github.com/pithecene-io/quarry-radius/cli/config"
	"github.com/pithecene-io/quarry-radius/cli/render"
)

// ModulesCommand groups the read-only "list" and mutating "hup" module
// admin subcommands under "radiusd modules".
func ModulesCommand() *cli.Command {
	return &cli.Command{
		Name:  "modules",
		Usage: "Inspect and reconfigure module instances",
		Subcommands: []*cli.Command{
			modulesListCommand(),
			modulesHistoryCommand(),
			modulesHUPCommand(),
		},
	}
}

func socketFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "socket",
		Usage: "Path to the admin control socket",
		Value: quarryconfig.DefaultAdminSocket,
	}
}

func modulesListCommand() *cli.Command {
	return &cli.Command{
		Name:   "list",
		Usage:  "List configured module instances",
		Flags:  append(ReadOnlyFlags(), socketFlag()),
		Action: modulesListAction,
	}
}

func modulesListAction(c *cli.Context) error {
	client := admin.NewClient(c.String("socket"), 5*time.Second)
	st, err := client.Status()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	return r.Render(st.Modules)
}

func modulesHistoryCommand() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "Show the retained HUP attempt history for a module instance",
		ArgsUsage: "<instance-name>",
		Flags:     append(ReadOnlyFlags(), socketFlag()),
		Action:    modulesHistoryAction,
	}
}

func modulesHistoryAction(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		return cli.Exit("usage: radiusd modules history <instance-name>", 1)
	}

	client := admin.NewClient(c.String("socket"), 5*time.Second)
	history, err := client.History(name)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	return r.Render(history)
}

func modulesHUPCommand() *cli.Command {
	return &cli.Command{
		Name:      "hup",
		Usage:     "Reconfigure a HUP-safe module instance from a fresh config file",
		ArgsUsage: "<instance-name> <config-file>",
		Flags:     []cli.Flag{socketFlag()},
		Action:    modulesHUPAction,
	}
}

func modulesHUPAction(c *cli.Context) error {
	args := c.Args()
	if args.Len() < 2 {
		return cli.Exit("usage: radiusd modules hup <instance-name> <config-file>", 1)
	}
	name, path := args.Get(0), args.Get(1)

	rawConfig, err := os.ReadFile(path)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	client := admin.NewClient(c.String("socket"), 5*time.Second)
	if err := client.HUP(name, rawConfig); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return nil
}
