// Package queue implements the bounded priority queue requests sit in
// between a listener handing them to Core.Enqueue and a worker picking
// them up, plus the admission-control and rate-metering logic that guards
// entry to it (spec sections 4.5).
package queue

import "github.com/pithecene-io/quarry-radius/types"

// Comparator orders two requests for the priority heap: Less(a, b) true
// means a should be serviced before b. The core ships three, selectable
// per virtual server, mirroring the "default/time/eap" comparator set
// named in spec section 4.5.
type Comparator func(a, b *types.Request) bool

// Default orders purely by Priority, falling back to arrival order
// (earlier first) to break ties so same-priority requests stay FIFO.
func Default(a, b *types.Request) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.Timestamp.Before(b.Timestamp)
}

// Time ignores Priority entirely and orders strictly by arrival time,
// for virtual servers that want pure FIFO fairness over priority classes.
func Time(a, b *types.Request) bool {
	return a.Timestamp.Before(b.Timestamp)
}

// EAP favors requests further along an EAP conversation (higher Rounds)
// over earlier ones at the same priority, so a multi-round authentication
// in progress is not repeatedly starved by a flood of brand-new requests.
func EAP(a, b *types.Request) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if a.Rounds != b.Rounds {
		return a.Rounds > b.Rounds
	}
	return a.Timestamp.Before(b.Timestamp)
}

// Comparators maps the configuration-file comparator name to its function,
// for config.go to resolve "default"/"time"/"eap" into a Comparator.
var Comparators = map[string]Comparator{
	"default": Default,
	"time":    Time,
	"eap":     EAP,
}
