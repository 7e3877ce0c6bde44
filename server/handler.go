package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"go.sakib.dev/shuttle/logger"
	"go.sakib.dev/shuttle/pkg/nanoid"
	"go.sakib.dev/shuttle/pkg/utils"
	"go.sakib.dev/shuttle/protocol"
)

// maxLoggedLine bounds how much of a bad request line ends up in the log.
const maxLoggedLine = 128

// handleConn is the worker for one connection. Whatever happens inside, the
// connection is closed exactly once and nothing escapes to the accept loop.
func (s *Server) handleConn(conn net.Conn) {
	connID := nanoid.New()
	ctx := context.WithValue(context.Background(), utils.ConnIDKey, connID)

	t := newTransport(conn, s.cfg.IdleTimeout, s.cfg.ChunkSize)
	defer func() {
		if err := t.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			slog.DebugContext(ctx, "Error closing connection", "error", err)
		}
	}()

	clientIP, err := utils.GetPeerIP(conn.RemoteAddr())
	if err != nil {
		slog.WarnContext(ctx, "Failed to get client IP", "error", err)
		clientIP = "unknown"
	}

	s.publish(EventConnOpen{
		ConnID: connID,
		Client: &Client{IP: clientIP, ConnectedAt: time.Now()},
		Time:   time.Now(),
	})
	defer s.publish(EventConnClose{ConnID: connID, Time: time.Now()})

	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Connection handler panicked", "panic", r)
		}
	}()

	if err := s.serveConn(ctx, t, clientIP); err != nil {
		slog.ErrorContext(ctx, "Connection aborted", "error", err)
	}
}

func (s *Server) serveConn(ctx context.Context, t *transport, clientIP string) error {
	line, err := t.ReadLine()
	if err != nil {
		if errors.Is(err, ErrLineTooLong) {
			return s.badRequest(ctx, t, "<request line too long>")
		}
		if errors.Is(err, io.EOF) {
			slog.DebugContext(ctx, "Peer closed before sending a request", "clientIP", clientIP)
			return nil
		}
		return fmt.Errorf("read request line: %w", err)
	}

	req := protocol.Parse(line)
	slog.InfoContext(ctx, "REQUEST", "clientIP", clientIP, "request", req.String())

	switch req.Kind {
	case protocol.Get:
		return s.serveGet(ctx, t, req.Arg)
	case protocol.Upload:
		return s.serveUpload(ctx, t, req.Arg)
	default:
		return s.badRequest(ctx, t, line)
	}
}

func (s *Server) badRequest(ctx context.Context, t *transport, line string) error {
	if len(line) > maxLoggedLine {
		line = line[:maxLoggedLine] + "..."
	}
	if err := t.WriteResponse(protocol.StatusBadRequest, "text/html", []byte(badRequestPage)); err != nil {
		return err
	}
	s.warn(ctx, "BAD REQUEST", protocol.StatusBadRequest, "line", line)
	s.record(ctx, fmt.Sprintf("%q: invalid request", line), protocol.StatusBadRequest)
	return nil
}

func (s *Server) record(ctx context.Context, message, status string) {
	if err := s.records.Append(message, status); err != nil {
		slog.WarnContext(ctx, "Failed to write access log", "error", err)
	}
}

func (s *Server) info(ctx context.Context, msg, status string, args ...any) {
	slog.InfoContext(ctx, msg, append(args, logger.StatusKey, status)...)
}

func (s *Server) warn(ctx context.Context, msg, status string, args ...any) {
	slog.WarnContext(ctx, msg, append(args, logger.StatusKey, status)...)
}

func connIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(utils.ConnIDKey).(string)
	return id
}
