package cmd

import (
	"time"

	"github.com/urfave/cli/v2"

	quarryconfig "github.com/pithecene-io/quarry-radius/cli/config"
	"github.com/pithecene-io/quarry-radius/admin"
	"github.com/pithecene-io/quarry-radius/cli/render"
	"github.com/pithecene-io/quarry-radius/cli/tui"
)

// StatsCommand reports a point-in-time (or, with --tui, continuously
// polled) snapshot of the pool, queue, and loaded modules from a running
// radiusd's admin socket.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show worker pool, queue, and module stats",
		Flags: append(ReadOnlyFlags(), &cli.StringFlag{
			Name:  "socket",
			Usage: "Path to the admin control socket",
			Value: quarryconfig.DefaultAdminSocket,
		}),
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
	client := admin.NewClient(c.String("socket"), 5*time.Second)

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return r.RenderTUI("stats", func() (tui.Snapshot, error) {
			return fetchSnapshot(client)
		})
	}

	snap, err := fetchSnapshot(client)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return r.Render(snap)
}

func fetchSnapshot(client *admin.Client) (tui.Snapshot, error) {
	st, err := client.Status()
	if err != nil {
		return tui.Snapshot{}, err
	}
	return tui.Snapshot{
		Idle:         st.Pool.Idle,
		Active:       st.Pool.Active,
		Exited:       st.Pool.Exited,
		QueueLength:  st.Queue.Length,
		InputPPS:     st.Queue.InputPPS,
		OutputPPS:    st.Queue.OutputPPS,
		TotalBlocked: st.Queue.TotalBlocked,
		Modules:      st.Modules,
	}, nil
}
