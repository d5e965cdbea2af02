package core

import (
	"context"
	"time"

	"github.com/pithecene-io/quarry-radius/adapter"
	redisadapter "github.com/pithecene-io/quarry-radius/adapter/redis"
	"github.com/pithecene-io/quarry-radius/adapter/webhook"
	"github.com/pithecene-io/quarry-radius/cli/config"
)

// noopAdapter discards every event. Used when no adapter is configured, so
// Core's publish call sites never have to check for a nil Notifier.
type noopAdapter struct{}

func (noopAdapter) Publish(context.Context, *adapter.Event) error { return nil }
func (noopAdapter) Close() error                                  { return nil }

// newAdapter builds the notification adapter named by cfg.Type. An empty
// Type returns a noopAdapter rather than an error: the adapter is an
// optional downstream integration, not a required part of booting.
func newAdapter(cfg config.AdapterConfig) (adapter.Adapter, error) {
	retries := webhook.DefaultRetries
	if cfg.Retries != nil {
		retries = *cfg.Retries
	}

	switch cfg.Type {
	case "":
		return noopAdapter{}, nil
	case "redis":
		return redisadapter.New(redisadapter.Config{
			URL:     cfg.URL,
			Channel: cfg.Channel,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})
	default:
		return nil, &UnknownAdapterError{Type: cfg.Type}
	}
}

// UnknownAdapterError is returned by newAdapter for an AdapterConfig.Type
// that names neither "redis" nor "webhook".
type UnknownAdapterError struct{ Type string }

func (e *UnknownAdapterError) Error() string {
	return "core: unknown adapter type " + e.Type
}

// publishHUP tells the notification adapter about the outcome of a
// Reconfigure call. Publish errors are logged, never returned: a
// downstream notification failure must never be mistaken for a HUP
// failure by the caller.
func (c *Core) publishHUP(name string, hupErr error, now time.Time) {
	if c.notify == nil {
		return
	}
	event := &adapter.Event{
		EventType: adapter.EventHUPSucceeded,
		Timestamp: now.UTC().Format(time.RFC3339),
		Instance:  c.instance,
		Module:    name,
	}
	if hupErr != nil {
		event.EventType = adapter.EventHUPFailed
		event.Error = hupErr.Error()
	}
	c.publish(event)
}

// PublishPoolStats tells the notification adapter about the current
// queue depth, PPS, and pool occupancy. Intended to be called from a
// periodic telemetry ticker owned by the listener, per spec section 6's
// queue_stats() notification.
func (c *Core) PublishPoolStats(now time.Time) {
	if c.notify == nil {
		return
	}
	qs := c.Queue.Stats(now)
	ps := c.Pool.Stats()
	c.publish(&adapter.Event{
		EventType:    adapter.EventPoolStats,
		Timestamp:    now.UTC().Format(time.RFC3339),
		Instance:     c.instance,
		QueueLength:  qs.Length,
		InputPPS:     qs.InputPPS,
		OutputPPS:    qs.OutputPPS,
		TotalBlocked: qs.TotalBlocked,
		PoolTotal:    ps.Total,
		PoolIdle:     ps.Idle,
		PoolActive:   ps.Active,
	})
}

func (c *Core) publish(event *adapter.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := c.notify.Publish(ctx, event); err != nil && c.log != nil {
		c.log.Error("notify publish failed", map[string]any{
			"event_type": string(event.EventType),
			"error":      err.Error(),
		})
	}
}

// publishTimeout bounds how long a single notify publish may block a HUP
// or telemetry tick. The adapter implementations apply their own
// per-request timeout; this is a backstop against a misconfigured one.
const publishTimeout = 30 * time.Second
