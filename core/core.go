// Package core wires the module registry, instance manager, HUP
// controller, virtual-server dispatcher, request queue, worker pool, and
// child reaper into the single handle a listener starts, enqueues
// against, and shuts down.
package core

import (
	"context"
	"time"

	"github.com/pithecene-io/quarry-radius/adapter"
	"github.com/pithecene-io/quarry-radius/cli/config"
	"github.com/pithecene-io/quarry-radius/log"
	"github.com/pithecene-io/quarry-radius/metrics"
	"github.com/pithecene-io/quarry-radius/module"
	"github.com/pithecene-io/quarry-radius/policy"
	"github.com/pithecene-io/quarry-radius/pool"
	"github.com/pithecene-io/quarry-radius/queue"
	"github.com/pithecene-io/quarry-radius/reaper"
	"github.com/pithecene-io/quarry-radius/types"
	"github.com/pithecene-io/quarry-radius/vserver"
)

// Core is the top-level handle a listener holds. It owns every
// long-lived subsystem and the ordering in which they come up and down.
type Core struct {
	Registry   *module.Registry
	Modules    *module.Manager
	HUP        *module.HUPController
	Servers    *vserver.Registry
	Dispatcher *vserver.Dispatcher
	Queue      *queue.Queue
	Pool       *pool.Pool
	Reaper     *reaper.Reaper
	Policy     policy.Policy
	Metrics    *metrics.Collector

	notify      adapter.Adapter
	instance    string
	log         *log.Logger
	stopSweeper context.CancelFunc
}

// New assembles a Core from configuration. instance names this process for
// the adapter and trace-archive partition key. Modules are declared but
// not yet bootstrapped; call Bootstrap to run the two-pass lifecycle and
// start the worker pool.
func New(cfg *config.Config, host module.Magic, instance string, logger *log.Logger, now time.Time) (*Core, error) {
	registry := module.NewRegistry(host, cfg.LibraryPath, logger)
	manager := module.NewManager(registry, logger)
	hup := module.NewHUPController(manager, logger)
	servers := vserver.NewRegistry()
	dispatcher := vserver.NewDispatcher(servers, logger)
	r := reaper.New(logger)

	collector := metrics.NewCollector(cfg.Trace.Policy, cfg.Trace.Backend, instance)
	tracePolicy, err := newTracePolicy(cfg.Trace, instance, collector, logger)
	if err != nil {
		return nil, err
	}
	dispatcher.SetTracer(&dispatchTracer{instance: instance, policy: tracePolicy, log: logger})

	notify, err := newAdapter(cfg.Adapter)
	if err != nil {
		return nil, err
	}

	comparator := queue.Comparators[cfg.ThreadPool.QueuePriority]
	if comparator == nil {
		comparator = queue.Default
	}
	q := queue.New(queue.Config{
		MaxSize:       cfg.ThreadPool.MaxQueueSize,
		Comparator:    comparator,
		AutoLimitAcct: cfg.ThreadPool.AutoLimitAcct,
		Logger:        logger,
	}, now)

	p := pool.New(pool.Config{
		StartWorkers:         cfg.ThreadPool.StartServers,
		MaxWorkers:           cfg.ThreadPool.MaxServers,
		MinSpareWorkers:      cfg.ThreadPool.MinSpareServers,
		MaxSpareWorkers:      cfg.ThreadPool.MaxSpareServers,
		MaxRequestsPerWorker: cfg.ThreadPool.MaxRequestsPerServer,
		CleanupDelay:         cfg.ThreadPool.CleanupDelay.Duration,
	}, q, logger)

	c := &Core{
		Registry:   registry,
		Modules:    manager,
		HUP:        hup,
		Servers:    servers,
		Dispatcher: dispatcher,
		Queue:      q,
		Pool:       p,
		Reaper:     r,
		Policy:     tracePolicy,
		Metrics:    collector,
		notify:     notify,
		instance:   instance,
		log:        logger,
	}

	for _, name := range cfg.ModuleNames() {
		mc := cfg.Modules[name]
		rawConfig, err := marshalModuleConfig(mc.Config)
		if err != nil {
			return nil, err
		}
		if err := manager.Declare(name, mc.Type, mc.Path, rawConfig, mc.SiblingRef); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Bootstrap runs every declared module instance's bootstrap/instantiate
// lifecycle, then starts the worker pool. Order matters: instances must
// be ready before any worker can dispatch through them (spec section 5
// "an instance is instantiated exactly once before any worker may invoke
// it").
func (c *Core) Bootstrap(now time.Time) error {
	if err := c.Modules.Bootstrap(); err != nil {
		return err
	}
	for _, name := range c.Modules.Names() {
		c.HUP.NoteReady(name, now)
	}
	c.Pool.Start()

	ctx, cancel := context.WithCancel(context.Background())
	c.stopSweeper = cancel
	go c.HUP.RunSweeper(ctx, hupSweepInterval)
	return nil
}

// hupSweepInterval is how often Core drives HUPController.Sweep in the
// background, keeping retired module data buffers from outliving their
// spec section 4.2 grace period even when no further HUP triggers a sweep.
const hupSweepInterval = 5 * time.Second

// Enqueue hands r to the core, per spec section 6's listener contract.
func (c *Core) Enqueue(r *types.Request, now time.Time) bool {
	accepted := c.Pool.Enqueue(r, now)
	if accepted {
		c.Metrics.IncRequestsAccepted()
	} else {
		c.Metrics.IncRequestsDropped()
	}
	return accepted
}

// Status is a point-in-time snapshot of the pool, queue, metrics, and
// registered modules/servers, for the admin socket's "status" command.
type Status struct {
	Pool    pool.Stats
	Queue   queue.Stats
	Metrics metrics.Snapshot
	Modules []string
	Servers []string
}

// Status gathers the current pool/queue/metrics snapshot plus the
// registered module instance and virtual server names.
func (c *Core) Status(now time.Time) Status {
	return Status{
		Pool:    c.Pool.Stats(),
		Queue:   c.Queue.Stats(now),
		Metrics: c.Metrics.Snapshot(),
		Modules: c.Modules.Names(),
		Servers: c.Servers.Names(),
	}
}

// HUPAttempt is one retained reconfigure attempt for a module instance,
// for the admin socket's "history" command.
type HUPAttempt struct {
	At      time.Time
	OK      bool
	Message string
}

// ModuleHistory returns the retained HUP attempt history for a module
// instance, oldest first.
func (c *Core) ModuleHistory(name string) []HUPAttempt {
	records := c.HUP.History(name)
	out := make([]HUPAttempt, len(records))
	for i, r := range records {
		out[i] = HUPAttempt{At: r.At(), OK: r.OK(), Message: r.Message()}
	}
	return out
}

// Reconfigure runs a SIGHUP-triggered reload of one module instance,
// records the outcome on Metrics, and publishes an EventHUPSucceeded or
// EventHUPFailed notification through the configured adapter. Per the
// spec's HUP contract, a failed reconfigure is not fatal: the instance
// keeps running its prior configuration.
func (c *Core) Reconfigure(name string, rawConfig []byte, now time.Time) error {
	err := c.HUP.HUP(name, rawConfig, now)
	if err != nil {
		c.Metrics.IncHUPFailed()
	} else {
		c.Metrics.IncHUPSucceeded()
	}
	c.publishHUP(name, err, now)
	return err
}

// Shutdown stops the HUP sweeper, then the workers (so no goroutine is
// mid-dispatch against an instance), then closes the trace policy and the
// notification adapter, and finally detaches every module instance. The
// registry's cached module codes are left as they are.
func (c *Core) Shutdown() error {
	if c.stopSweeper != nil {
		c.stopSweeper()
	}
	c.Pool.Shutdown()
	if c.Policy != nil {
		stats := c.Policy.Stats()
		c.Metrics.AbsorbPolicyStats(stats.TotalDispatchRecords, stats.DispatchRecordsPersisted, stats.DispatchRecordsDropped)
		if err := c.Policy.Close(); err != nil && c.log != nil {
			c.log.Error("trace policy close failed", map[string]any{"error": err.Error()})
		}
	}
	if c.notify != nil {
		if err := c.notify.Close(); err != nil && c.log != nil {
			c.log.Error("notify adapter close failed", map[string]any{"error": err.Error()})
		}
	}
	return c.Modules.Detach()
}
