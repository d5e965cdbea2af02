// Package admin implements a local control socket for an already-running
// radiusd instance: "radiusd stats" and "radiusd modules" attach to it
// instead of reading the daemon's state out of process memory directly.
//
// There is no library in this module's dependency stack for a home-grown
// control protocol (the teacher's adapter/webhook package talks to an
// external HTTP endpoint, not the other direction), so this is one
// request/response per connection over a Unix domain socket, newline
// delimited JSON, using only net and encoding/json.
package admin

import (
	"time"

	"github.com/pithecene-io/quarry-radius/core"
)

// StatusProvider is the subset of Core the admin socket depends on,
// narrowed so the transport can be tested without assembling a full Core.
type StatusProvider interface {
	Status(now time.Time) core.Status
	ModuleHistory(name string) []core.HUPAttempt
	Reconfigure(name string, rawConfig []byte, now time.Time) error
}

// request is the wire shape of one client command.
type request struct {
	Cmd    string `json:"cmd"`
	Name   string `json:"name,omitempty"`
	Config []byte `json:"config,omitempty"`
}

// response is the wire shape of one server reply. At most one field is
// populated: Status or History for those commands, Error for a failed
// command, and none for a successful hup.
type response struct {
	Error   string           `json:"error,omitempty"`
	Status  *core.Status     `json:"status,omitempty"`
	History []core.HUPAttempt `json:"history,omitempty"`
}

const (
	cmdStatus  = "status"
	cmdHistory = "history"
	cmdHUP     = "hup"
)
