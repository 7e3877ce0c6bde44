package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"go.sakib.dev/shuttle/config"
	"go.sakib.dev/shuttle/logger"
	"go.sakib.dev/shuttle/pkg/utils"
)

const maxAcceptDelay = time.Second

type Server struct {
	cfg     config.Config
	records *logger.RecordLog
	spawner Spawner
	ch      chan<- ServerEventName

	mu        sync.Mutex
	listener  net.Listener
	serveDone chan struct{}
	closing   bool
	conns     map[net.Conn]struct{}
	state     ServerState
}

// NewServer checks the served directory and prepares the upload directory
// and the access log. Any failure here means the server must not start.
func NewServer(cfg config.Config, ch chan<- ServerEventName) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	info, err := os.Stat(cfg.ServeDir)
	if err != nil {
		return nil, fmt.Errorf("served directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("served directory %s is not a directory", cfg.ServeDir)
	}

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}

	records, err := logger.OpenRecordLog(cfg.LogFile)
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:     cfg,
		records: records,
		spawner: NewSpawner(cfg.MaxConns),
		ch:      ch,
		conns:   make(map[net.Conn]struct{}),
		state: ServerState{
			Dir:   cfg.ServeDir,
			Conns: make(map[string]*Conn),
		},
	}, nil
}

// Listen binds the configured port.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr())
	if err != nil {
		return nil, fmt.Errorf("error starting server: %w", err)
	}
	return ln, nil
}

// Start binds and serves until the server is closed.
func (s *Server) Start() error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln and hands each one to a worker. It
// returns nil once ln is closed; other accept errors are retried.
func (s *Server) Serve(ln net.Listener) error {
	done := make(chan struct{})
	defer close(done)

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return ln.Close()
	}
	s.listener = ln
	s.serveDone = done
	s.mu.Unlock()

	s.announce(ln.Addr())

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay = min(2*delay, maxAcceptDelay)
			}
			slog.Warn("Accept failed, retrying", "error", err, "delay", delay)
			time.Sleep(delay)
			continue
		}
		delay = 0

		if !s.track(conn) {
			conn.Close()
			return nil
		}
		s.spawner.Go(func() {
			defer s.untrack(conn)
			s.handleConn(conn)
		})
	}
}

func (s *Server) announce(addr net.Addr) {
	port := strconv.Itoa(s.cfg.Port)
	if tcpAddr, ok := addr.(*net.TCPAddr); ok {
		port = strconv.Itoa(tcpAddr.Port)
	}

	localIP, err := utils.GetLocalIP()
	if err != nil {
		slog.Warn("error getting local IP", "error", err)
		localIP = "localhost"
	}

	hostPort := net.JoinHostPort(localIP, port)
	slog.Info("File server is running", "addr", hostPort, "dir", s.cfg.ServeDir, "uploads", s.cfg.UploadDir)
	s.publish(EventAddrUpdated{Addr: hostPort})
}

// Addr is the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) GetState() ServerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.snapshot()
}

// publish updates the state and pokes the subscriber without blocking; a
// slow UI only misses redraw hints.
func (s *Server) publish(ev ServerEvent) {
	s.mu.Lock()
	s.state.apply(ev)
	s.mu.Unlock()

	if s.ch == nil {
		return
	}
	select {
	case s.ch <- ev.EventName():
	default:
	}
}

// track registers a live connection; it refuses once the server is closing.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// Shutdown stops accepting, waits for in-flight connections until ctx is
// done, then force-closes whatever is left.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	ln, serveDone := s.listener, s.serveDone
	s.mu.Unlock()

	var err error
	if ln != nil {
		if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
	}

	// the accept loop may still be handing its last connection to a worker
	if serveDone != nil {
		s.waitOrForce(ctx, serveDone)
	}

	workersDone := make(chan struct{})
	go func() {
		s.spawner.Wait()
		close(workersDone)
	}()
	s.waitOrForce(ctx, workersDone)

	return errors.Join(err, s.records.Close())
}

func (s *Server) waitOrForce(ctx context.Context, done <-chan struct{}) {
	select {
	case <-done:
		return
	case <-ctx.Done():
	}

	s.mu.Lock()
	for conn := range s.conns {
		slog.Warn("Closing connection", "remote", conn.RemoteAddr())
		conn.Close()
	}
	s.mu.Unlock()
	<-done
}

// Close shuts down without waiting for in-flight connections.
func (s *Server) Close() error {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return s.Shutdown(ctx)
}
