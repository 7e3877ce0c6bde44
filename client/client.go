package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.sakib.dev/shuttle/config"
	"go.sakib.dev/shuttle/pkg/utils"
	"go.sakib.dev/shuttle/protocol"
)

var (
	ErrNotRegularFile = errors.New("file not found or is a directory")
	ErrRejected       = errors.New("invalid file or file format, upload failed")
)

// Uploader sends files to a server, one fresh connection per file. It
// holds no per-transfer state and is safe for concurrent use.
type Uploader struct {
	addr      string
	chunkSize int
	idle      time.Duration
	dialer    net.Dialer
}

func NewUploader(cfg config.Config) *Uploader {
	chunk := cfg.ChunkSize
	if chunk <= 0 {
		chunk = config.DefaultChunkSize
	}
	return &Uploader{
		addr:      cfg.ServerAddr,
		chunkSize: chunk,
		idle:      cfg.IdleTimeout,
		dialer:    net.Dialer{Timeout: 10 * time.Second},
	}
}

type Result struct {
	Path  string
	Bytes int64
	Err   error
}

// UploadAll uploads every path concurrently and returns one Result per
// path, in input order. A failed upload does not affect the others.
func (u *Uploader) UploadAll(ctx context.Context, paths []string) []Result {
	results := make([]Result, len(paths))

	var wg sync.WaitGroup
	for i, path := range paths {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := u.Upload(ctx, path)
			results[i] = Result{Path: path, Bytes: n, Err: err}
		}()
	}
	wg.Wait()

	return results
}

// Upload sends a single file and returns the number of body bytes written.
// It returns once the server has closed the connection, which happens after
// the file is on disk.
func (u *Uploader) Upload(ctx context.Context, path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s: %w", path, ErrNotRegularFile)
	}

	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	conn, err := u.dialer.DialContext(ctx, "tcp", u.addr)
	if err != nil {
		return 0, fmt.Errorf("connect to %s: %w", u.addr, err)
	}
	defer conn.Close()

	// cancelling ctx unblocks any pending read or write
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	rw := utils.WithIdleTimeout(conn, u.idle)
	r := bufio.NewReader(rw)
	w := bufio.NewWriterSize(rw, u.chunkSize)

	name := filepath.Base(path)
	if err := protocol.WriteUploadRequest(w, name); err != nil {
		return 0, u.wrap(ctx, "send request", err)
	}
	if err := w.Flush(); err != nil {
		return 0, u.wrap(ctx, "send request", err)
	}

	accepted, reply, err := protocol.ReadSignal(r)
	if err != nil {
		return 0, u.wrap(ctx, "read server reply", err)
	}
	if !accepted {
		slog.Debug("Upload rejected", "file", name, "reply", reply)
		return 0, fmt.Errorf("%s: %w", name, ErrRejected)
	}

	sent, err := u.sendChunks(w, file)
	if err != nil {
		return sent, u.wrap(ctx, "send "+name, err)
	}

	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		if err := cw.CloseWrite(); err != nil {
			return sent, u.wrap(ctx, "close write side", err)
		}
	}

	// wait for the server to finish writing and hang up
	if _, err := io.Copy(io.Discard, r); err != nil {
		return sent, u.wrap(ctx, "await server", err)
	}

	slog.Debug("Upload complete", "file", name, "bytes", sent)
	return sent, nil
}

// sendChunks streams file in chunkSize pieces, flushing after each one so
// at most one chunk is buffered on the client side.
func (u *Uploader) sendChunks(w *bufio.Writer, file io.Reader) (int64, error) {
	buf := make([]byte, u.chunkSize)
	var sent int64
	for {
		n, readErr := file.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return sent, err
			}
			if err := w.Flush(); err != nil {
				return sent, err
			}
			sent += int64(n)
		}
		if readErr == io.EOF {
			return sent, nil
		}
		if readErr != nil {
			return sent, readErr
		}
	}
}

func (u *Uploader) wrap(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	return fmt.Errorf("%s: %w", op, err)
}
