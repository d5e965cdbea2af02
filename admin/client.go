package admin

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/pithecene-io/quarry-radius/core"
)

// Client talks to a running Server over its Unix domain socket.
type Client struct {
	path    string
	timeout time.Duration
}

// NewClient creates a Client dialing path, with a per-request timeout.
func NewClient(path string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{path: path, timeout: timeout}
}

// Status fetches the daemon's current pool/queue/metrics snapshot.
func (c *Client) Status() (core.Status, error) {
	resp, err := c.roundTrip(request{Cmd: cmdStatus})
	if err != nil {
		return core.Status{}, err
	}
	if resp.Status == nil {
		return core.Status{}, fmt.Errorf("admin: server returned no status")
	}
	return *resp.Status, nil
}

// History fetches the retained HUP attempt history for a module instance.
func (c *Client) History(name string) ([]core.HUPAttempt, error) {
	resp, err := c.roundTrip(request{Cmd: cmdHistory, Name: name})
	if err != nil {
		return nil, err
	}
	return resp.History, nil
}

// HUP triggers a reconfigure of a module instance with a fresh config
// section.
func (c *Client) HUP(name string, rawConfig []byte) error {
	_, err := c.roundTrip(request{Cmd: cmdHUP, Name: name, Config: rawConfig})
	return err
}

func (c *Client) roundTrip(req request) (response, error) {
	conn, err := net.DialTimeout("unix", c.path, c.timeout)
	if err != nil {
		return response{}, fmt.Errorf("admin: connect to %s: %w", c.path, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(c.timeout))

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return response{}, fmt.Errorf("admin: send request: %w", err)
	}

	var resp response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return response{}, fmt.Errorf("admin: read response: %w", err)
	}
	if resp.Error != "" {
		return response{}, fmt.Errorf("admin: %s", resp.Error)
	}
	return resp, nil
}
