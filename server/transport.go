package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"go.sakib.dev/shuttle/pkg/utils"
	"go.sakib.dev/shuttle/protocol"
)

const (
	maxRequestLine  = 8 << 10
	maxPreambleLine = 64

	// a peer that never sends the blank line ending an upload preamble gets
	// its signal after this long.
	preambleTimeout = time.Second

	// after the response is written, unread peer bytes are drained for at
	// most this long so the close does not turn into a reset.
	lingerTimeout = 500 * time.Millisecond
	lingerBytes   = 256 << 10
)

var (
	ErrLineTooLong     = errors.New("request line too long")
	ErrPreambleTooLong = errors.New("upload preamble too long")
)

// transport frames a single connection: one request line in, one response
// out. It is owned by exactly one worker.
type transport struct {
	conn net.Conn
	rw   *utils.IdleConn
	r    *bufio.Reader
	w    *bufio.Writer

	closeOnce sync.Once
	closeErr  error
}

func newTransport(conn net.Conn, idle time.Duration, bufSize int) *transport {
	rw := &utils.IdleConn{Conn: conn, Idle: idle}
	return &transport{
		conn: conn,
		rw:   rw,
		r:    bufio.NewReaderSize(rw, bufSize),
		w:    bufio.NewWriterSize(rw, bufSize),
	}
}

// ReadLine returns the next line without its terminator. A final line that
// ends at EOF without a newline is still returned.
func (t *transport) ReadLine() (string, error) {
	var line []byte
	for {
		frag, isPrefix, err := t.r.ReadLine()
		if err != nil {
			return "", err
		}
		line = append(line, frag...)
		if len(line) > maxRequestLine {
			return "", ErrLineTooLong
		}
		if !isPrefix {
			return string(line), nil
		}
	}
}

// SkipPreamble consumes lines up to and including the blank line that ends
// an upload request. The protocol defines no headers, so anything before the
// blank line is discarded. End of input or preambleTimeout without the
// blank line also end the preamble.
func (t *transport) SkipPreamble() error {
	t.rw.ReadBy = time.Now().Add(preambleTimeout)
	defer func() { t.rw.ReadBy = time.Time{} }()

	for range maxPreambleLine {
		line, err := t.ReadLine()
		if errors.Is(err, io.EOF) || errors.Is(err, os.ErrDeadlineExceeded) {
			return nil
		}
		if err != nil {
			return err
		}
		if line == "" {
			return nil
		}
	}
	return ErrPreambleTooLong
}

// Body is everything the peer sends after the preamble, including bytes
// already buffered while reading it.
func (t *transport) Body() io.Reader {
	return t.r
}

func (t *transport) Writer() io.Writer {
	return t.w
}

func (t *transport) Flush() error {
	return t.w.Flush()
}

// WriteResponse writes a complete response with an in-memory body.
func (t *transport) WriteResponse(status, contentType string, body []byte) error {
	headers := protocol.ContentHeaders(contentType, int64(len(body)))
	if err := protocol.WriteHead(t.w, status, headers...); err != nil {
		return err
	}
	if _, err := t.w.Write(body); err != nil {
		return err
	}
	return t.w.Flush()
}

func (t *transport) WriteSignal(accepted bool) error {
	if err := protocol.WriteSignal(t.w, accepted); err != nil {
		return err
	}
	return t.w.Flush()
}

// Close half-closes the write side, drains what the peer still sends for a
// short while, then releases the socket. Safe to call more than once.
func (t *transport) Close() error {
	t.closeOnce.Do(func() {
		if cw, ok := t.conn.(interface{ CloseWrite() error }); ok {
			if err := cw.CloseWrite(); err == nil {
				_ = t.conn.SetReadDeadline(time.Now().Add(lingerTimeout))
				_, _ = io.CopyN(io.Discard, t.conn, lingerBytes)
			}
		}
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}
