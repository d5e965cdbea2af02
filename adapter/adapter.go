// Package adapter defines the notification-publisher boundary the core
// uses to tell downstream systems about module reconfiguration and pool
// health, without the core itself knowing anything about HTTP or pub/sub.
package adapter

import "context"

// EventType distinguishes the kinds of notification the core publishes.
type EventType string

const (
	// EventHUPSucceeded is published after HUPController.HUP swaps in a
	// module instance's new data.
	EventHUPSucceeded EventType = "hup_succeeded"
	// EventHUPFailed is published when a HUP attempt's Instantiate call
	// fails and the old instance data is kept.
	EventHUPFailed EventType = "hup_failed"
	// EventPoolStats is published on a periodic telemetry tick, carrying
	// a queue_stats()-shaped snapshot.
	EventPoolStats EventType = "pool_stats"
)

// Event is the payload published to a downstream system. Shape is
// intentionally flat and JSON-friendly regardless of which fields a given
// EventType populates.
type Event struct {
	EventType EventType `json:"event_type"`
	Timestamp string    `json:"timestamp"` // ISO 8601

	// HUP fields; populated for EventHUPSucceeded/EventHUPFailed.
	Instance string `json:"instance,omitempty"`
	Module   string `json:"module,omitempty"`
	Error    string `json:"error,omitempty"`

	// Pool fields; populated for EventPoolStats.
	QueueLength  int     `json:"queue_length,omitempty"`
	InputPPS     float64 `json:"input_pps,omitempty"`
	OutputPPS    float64 `json:"output_pps,omitempty"`
	TotalBlocked uint64  `json:"total_blocked,omitempty"`
	PoolTotal    int     `json:"pool_total,omitempty"`
	PoolIdle     int     `json:"pool_idle,omitempty"`
	PoolActive   int     `json:"pool_active,omitempty"`
}

// Adapter publishes events to a downstream system. Implementations must
// be safe for concurrent Publish calls: the core's HUP controller and its
// telemetry ticker may both publish at once.
type Adapter interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}
