package admin

import (
	"encoding/json"
	"errors"
	"net"
	"os"
	"time"

	"github.com/pithecene-io/quarry-radius/log"
)

// Server listens on a Unix domain socket and answers admin commands
// against a StatusProvider (normally a *core.Core).
type Server struct {
	provider StatusProvider
	log      *log.Logger
	listener net.Listener
}

// NewServer creates a Server over provider. Call Serve to start accepting
// connections.
func NewServer(provider StatusProvider, logger *log.Logger) *Server {
	return &Server{provider: provider, log: logger}
}

// Serve removes any stale socket file at path, listens on it, and accepts
// connections until the listener is closed by Close. Each connection
// handles exactly one request then closes, so a slow or wedged client
// cannot hold the socket open against others.
func (s *Server) Serve(path string) error {
	if err := os.RemoveAll(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return err
	}
	s.listener = ln

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.handle(conn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	var req request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		s.reply(conn, response{Error: "malformed request: " + err.Error()})
		return
	}

	now := time.Now()
	switch req.Cmd {
	case cmdStatus:
		st := s.provider.Status(now)
		s.reply(conn, response{Status: &st})
	case cmdHistory:
		s.reply(conn, response{History: s.provider.ModuleHistory(req.Name)})
	case cmdHUP:
		if err := s.provider.Reconfigure(req.Name, req.Config, now); err != nil {
			s.reply(conn, response{Error: err.Error()})
			return
		}
		s.reply(conn, response{})
	default:
		s.reply(conn, response{Error: "unknown command: " + req.Cmd})
	}
}

func (s *Server) reply(conn net.Conn, resp response) {
	if err := json.NewEncoder(conn).Encode(resp); err != nil && s.log != nil {
		s.log.Debug("admin: write reply failed", map[string]any{"error": err.Error()})
	}
}
