package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"os"
	"time"
)

const (
	CmdRecord = "record"
	CmdText   = "text"
	CmdFile   = "file"
	CmdClear  = "clear"
	CmdCancel = "cancel"
)

// DefaultTimeout bounds one request on both ends of the socket. The daemon
// acknowledges a command once it is queued, so this stays short.
const DefaultTimeout = 10 * time.Second

// ControlMessage is one request from elisa-ctl. Arg carries the text for
// CmdText and the path for CmdFile.
type ControlMessage struct {
	Cmd string `json:"cmd"`
	Arg string `json:"arg,omitempty"`
}

// Reply tells the client whether the daemon accepted the command.
type Reply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Handler executes a command. A non-nil error is sent back to the client.
type Handler func(ControlMessage) error

type Server struct {
	path string
	ln   net.Listener
}

// StartServer listens on the unix socket at path and serves connections
// until Close. A stale socket file is replaced.
func StartServer(path string, handler Handler) (*Server, error) {
	_ = os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	s := &Server{path: path, ln: ln}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				log.Warn("Control socket accept failed", "err", err)
				continue
			}
			go handleConn(conn, handler)
		}
	}()

	log.Info("Control socket ready", "path", path)
	return s, nil
}

func (s *Server) Close() error {
	err := s.ln.Close()
	_ = os.Remove(s.path)
	return err
}

func handleConn(conn net.Conn, handler Handler) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(DefaultTimeout))

	var msg ControlMessage
	dec := json.NewDecoder(conn)
	if err := dec.Decode(&msg); err != nil {
		log.Warn("Bad control message", "err", err)
		return
	}

	log.Debug("Control command", "cmd", msg.Cmd)
	reply := Reply{OK: true}
	if err := handler(msg); err != nil {
		reply = Reply{Error: err.Error()}
	}
	_ = json.NewEncoder(conn).Encode(reply)
}

// SendCommand delivers msg to the daemon listening at path and waits for
// its reply.
func SendCommand(ctx context.Context, path string, msg ControlMessage) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return fmt.Errorf("dial %s: %w", path, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := json.NewEncoder(conn).Encode(msg); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	var reply Reply
	if err := json.NewDecoder(conn).Decode(&reply); err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	if !reply.OK {
		return fmt.Errorf("daemon: %s", reply.Error)
	}
	return nil
}
