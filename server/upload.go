package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.sakib.dev/shuttle/pkg/utils"
	"go.sakib.dev/shuttle/protocol"
)

var ErrUploadTooLarge = errors.New("upload exceeds size limit")

func (s *Server) serveUpload(ctx context.Context, t *transport, name string) error {
	if err := t.SkipPreamble(); err != nil {
		return fmt.Errorf("read upload preamble: %w", err)
	}

	contentType, accepted := isAcceptedUpload(name)
	if !utils.IsPlainFileName(name) {
		accepted = false
	}

	// the signal always goes out before any body byte is read
	if err := t.WriteSignal(accepted); err != nil {
		return fmt.Errorf("send upload signal: %w", err)
	}

	if !accepted {
		s.warn(ctx, "Invalid file or file format, upload rejected", protocol.StatusBadRequest,
			"file", name, "contentType", contentType)
		s.record(ctx, "UPLOAD "+name+": uploading "+name+" failed", protocol.StatusBadRequest)
		return nil
	}

	dest := filepath.Join(s.cfg.UploadDir, name)
	n, err := s.receiveFile(ctx, t, name, dest)
	if err != nil {
		s.record(ctx, "UPLOAD "+name+": uploading "+name+" failed", protocol.StatusBadRequest)
		if errors.Is(err, ErrUploadTooLarge) {
			s.warn(ctx, "Upload too large, discarded", protocol.StatusBadRequest,
				"file", name, "limit", humanizeSize(s.cfg.MaxUploadSize))
			return nil
		}
		return err
	}

	s.info(ctx, "OK - Upload stored", protocol.StatusOK, "file", name, "dest", dest, "size", humanizeSize(n))
	s.record(ctx, "UPLOAD "+name+": "+name+" uploaded successfully", protocol.StatusOK)
	return nil
}

// receiveFile copies everything the peer sends until it closes its write
// side. The destination is truncated first, so a repeated upload replaces
// the old content.
func (s *Server) receiveFile(ctx context.Context, t *transport, name, dest string) (int64, error) {
	file, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", dest, err)
	}

	s.publish(EventUploadStart{ConnID: connIDFrom(ctx), FileName: name, Time: time.Now()})
	prog := s.newProgress(ctx, name, -1)

	body := t.Body()
	limit := s.cfg.MaxUploadSize
	if limit > 0 {
		body = io.LimitReader(body, limit+1)
	}

	buf := make([]byte, s.cfg.ChunkSize)
	n, copyErr := io.CopyBuffer(io.MultiWriter(file, prog), body, buf)
	closeErr := file.Close()

	if copyErr == nil && limit > 0 && n > limit {
		copyErr = ErrUploadTooLarge
	}
	if copyErr != nil {
		if errors.Is(copyErr, ErrUploadTooLarge) {
			if err := os.Remove(dest); err != nil {
				slog.WarnContext(ctx, "Failed to remove oversized upload", "dest", dest, "error", err)
			}
			return n, copyErr
		}
		return n, fmt.Errorf("receive %s: %w", name, copyErr)
	}
	if closeErr != nil {
		return n, fmt.Errorf("write %s: %w", dest, closeErr)
	}

	prog.done()
	return n, nil
}
