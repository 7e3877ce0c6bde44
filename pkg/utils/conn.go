package utils

import (
	"net"
	"time"
)

// IdleConn pushes the connection deadline forward before every read and
// write, so a transfer only times out when it stops making progress. With
// a zero Idle, reads and writes carry no deadline unless ReadBy is set.
type IdleConn struct {
	net.Conn
	Idle time.Duration

	// ReadBy, when set, is a hard limit for reads regardless of Idle.
	ReadBy time.Time
}

func (c *IdleConn) Read(p []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(c.readDeadline()); err != nil {
		return 0, err
	}
	return c.Conn.Read(p)
}

func (c *IdleConn) Write(p []byte) (int, error) {
	var deadline time.Time
	if c.Idle > 0 {
		deadline = time.Now().Add(c.Idle)
	}
	if err := c.Conn.SetWriteDeadline(deadline); err != nil {
		return 0, err
	}
	return c.Conn.Write(p)
}

func (c *IdleConn) readDeadline() time.Time {
	var deadline time.Time
	if c.Idle > 0 {
		deadline = time.Now().Add(c.Idle)
	}
	if !c.ReadBy.IsZero() && (deadline.IsZero() || c.ReadBy.Before(deadline)) {
		deadline = c.ReadBy
	}
	return deadline
}

// WithIdleTimeout wraps conn in an IdleConn, or returns it unchanged when
// idle is zero.
func WithIdleTimeout(conn net.Conn, idle time.Duration) net.Conn {
	if idle <= 0 {
		return conn
	}
	return &IdleConn{Conn: conn, Idle: idle}
}
