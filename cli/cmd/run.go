package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/quarry-radius/admin"
	quarryconfig "github.com/pithecene-io/quarry-radius/cli/config"
	"github.com/pithecene-io/quarry-radius/core"
	"github.com/pithecene-io/quarry-radius/log"
	"github.com/pithecene-io/quarry-radius/module"
)

// Commit is set via ldflags at build time; it is the ABI fingerprint
// component that distinguishes one dynamically loaded .so build from
// another (module.Registry's magic check never applies to statically
// registered modules, only plugin.Open ones).
var Commit = "unknown"

// RunCommand boots a Core from a config file, starts the admin socket, and
// blocks until SIGTERM/SIGINT, running the module lifecycle, worker pool,
// and HUP grace-period sweeper for the life of the process. SIGHUP triggers
// a reconfigure of every HUP-safe module instance (spec section 4.2).
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Boot the core and block until terminated",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Path to radiusd.yaml",
				Required: true,
			},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	cfg, err := quarryconfig.Load(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	instance := cfg.Instance
	if instance == "" {
		instance = "radiusd"
	}
	socketPath := cfg.AdminSocket
	if socketPath == "" {
		socketPath = quarryconfig.DefaultAdminSocket
	}

	logger := log.NewLogger(instance)
	host := module.Magic{Prefix: "quarry-radius", Version: "1", Commit: Commit}

	cr, err := core.New(cfg, host, instance, logger, time.Now())
	if err != nil {
		return cli.Exit(fmt.Sprintf("assembling core: %v", err), 1)
	}
	if err := cr.Bootstrap(time.Now()); err != nil {
		return cli.Exit(fmt.Sprintf("bootstrap: %v", err), 1)
	}

	adminServer := admin.NewServer(cr, logger)
	serveErrCh := make(chan error, 1)
	go func() {
		serveErrCh <- adminServer.Serve(socketPath)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	logger.Info("radiusd started", map[string]any{"instance": instance, "admin_socket": socketPath})

	for {
		select {
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				reconfigureAll(cr, logger)
			default:
				logger.Info("radiusd shutting down", map[string]any{"signal": sig.String()})
				adminServer.Close()
				if err := cr.Shutdown(); err != nil {
					return cli.Exit(fmt.Sprintf("shutdown: %v", err), 1)
				}
				return nil
			}
		case err := <-serveErrCh:
			if err != nil {
				logger.Error("admin socket serve failed", map[string]any{"error": err.Error()})
			}
		}
	}
}

// reconfigureAll runs Reconfigure against every declared module instance,
// the SIGHUP-driven equivalent of "radiusd modules hup <name>" run for
// each instance in turn. A per-instance failure is logged and does not
// stop the sweep over the rest (spec section 4.2: a failed HUP leaves the
// instance serving its prior configuration, it is never fatal to the
// process).
func reconfigureAll(cr *core.Core, logger *log.Logger) {
	now := time.Now()
	for _, name := range cr.Modules.Names() {
		in, ok := cr.Modules.Instance(name)
		if !ok {
			continue
		}
		if err := cr.Reconfigure(name, in.RawConfig, now); err != nil {
			logger.Warn("HUP failed", map[string]any{"instance": name, "error": err.Error()})
		}
	}
}
