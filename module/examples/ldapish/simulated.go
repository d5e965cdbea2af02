package ldapish

import "context"

// simulatedDialer is the default Dialer: an in-process stand-in for a
// directory server so this module runs with no real network dependency.
// Its connections always succeed.
func simulatedDialer(server string) (Conn, error) {
	return &simulatedConn{server: server}, nil
}

type simulatedConn struct {
	server string
	closed bool
}

func (c *simulatedConn) Bind(_ context.Context, _, _ string) error {
	if c.closed {
		return errConnClosed
	}
	return nil
}

func (c *simulatedConn) Close() error {
	c.closed = true
	return nil
}

var errConnClosed = &connClosedError{}

type connClosedError struct{}

func (*connClosedError) Error() string { return "ldapish: connection closed" }
