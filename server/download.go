package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"go.sakib.dev/shuttle/pkg/utils"
	"go.sakib.dev/shuttle/protocol"
)

func (s *Server) serveGet(ctx context.Context, t *transport, reqPath string) error {
	// listing links are percent-encoded; a token that is not valid encoding
	// is taken literally
	if decoded, err := url.PathUnescape(reqPath); err == nil {
		reqPath = decoded
	}

	absPath, err := utils.SecureJoin(s.cfg.ServeDir, reqPath)
	slog.DebugContext(ctx, "Secure Join", "path", absPath, "root", s.cfg.ServeDir, "reqPath", reqPath, "error", err)
	if err != nil {
		// escapes from the root are answered exactly like missing files
		return s.notFound(ctx, t, reqPath)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return s.notFound(ctx, t, reqPath)
		}
		return fmt.Errorf("stat %s: %w", absPath, err)
	}

	if info.IsDir() {
		return s.serveDirectory(ctx, t, reqPath, absPath)
	}
	return s.serveFile(ctx, t, reqPath, absPath, info)
}

func (s *Server) notFound(ctx context.Context, t *transport, reqPath string) error {
	if err := t.WriteResponse(protocol.StatusNotFound, "text/html", []byte(notFoundPage)); err != nil {
		return err
	}
	s.warn(ctx, "NOT FOUND", protocol.StatusNotFound, "path", reqPath)
	s.record(ctx, "GET "+reqPath+": page not found", protocol.StatusNotFound)
	return nil
}

func (s *Server) serveFile(ctx context.Context, t *transport, reqPath, absPath string, info os.FileInfo) error {
	file, err := os.Open(absPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", absPath, err)
	}
	defer file.Close()

	name := filepath.Base(absPath)
	contentType := ProbeContentType(name)
	if contentType == "" {
		if contentType, err = sniffContentType(file); err != nil {
			return fmt.Errorf("read %s: %w", absPath, err)
		}
	}

	switch classify(contentType) {
	case kindText:
		content, err := io.ReadAll(file)
		if err != nil {
			return fmt.Errorf("read %s: %w", absPath, err)
		}
		if err := t.WriteResponse(protocol.StatusOK, "text/html", textPage(name, content)); err != nil {
			return err
		}
		s.info(ctx, "OK - Text file displayed", protocol.StatusOK, "path", reqPath, "size", humanizeSize(info.Size()))
		s.record(ctx, "GET "+reqPath+": text file displayed", protocol.StatusOK)
		return nil

	case kindImage:
		content, err := io.ReadAll(file)
		if err != nil {
			return fmt.Errorf("read %s: %w", absPath, err)
		}
		if err := t.WriteResponse(protocol.StatusOK, "text/html", imagePage(name, contentType, content)); err != nil {
			return err
		}
		s.info(ctx, "OK - Image displayed", protocol.StatusOK, "path", reqPath, "size", humanizeSize(info.Size()))
		s.record(ctx, "GET "+reqPath+": image displayed", protocol.StatusOK)
		return nil
	}

	if contentType == "" {
		contentType = octetStream
	}
	return s.streamFile(ctx, t, reqPath, name, contentType, file, info.Size())
}

// streamFile sends the file as an attachment. Content-Length is the size
// seen at stat time; a file that shrinks underneath aborts the transfer.
func (s *Server) streamFile(ctx context.Context, t *transport, reqPath, name, contentType string, file *os.File, size int64) error {
	headers := []protocol.Header{
		{Key: protocol.HeaderContentType, Value: contentType},
		protocol.AttachmentHeader(name),
		{Key: protocol.HeaderContentLength, Value: fmt.Sprintf("%d", size)},
	}
	if err := protocol.WriteHead(t.Writer(), protocol.StatusOK, headers...); err != nil {
		return err
	}

	s.publish(EventDownloadStart{ConnID: connIDFrom(ctx), FileName: name, TotalSize: size, Time: time.Now()})
	prog := s.newProgress(ctx, name, size)

	buf := make([]byte, s.cfg.ChunkSize)
	sent, err := io.CopyBuffer(io.MultiWriter(t.Writer(), prog), io.LimitReader(file, size), buf)
	if err != nil {
		return fmt.Errorf("send %s: %w", name, err)
	}
	if sent != size {
		return fmt.Errorf("send %s: %w (sent %d of %d bytes)", name, io.ErrUnexpectedEOF, sent, size)
	}
	if err := t.Flush(); err != nil {
		return fmt.Errorf("send %s: %w", name, err)
	}

	prog.done()
	s.info(ctx, "OK - Delivered for downloading", protocol.StatusOK, "path", reqPath, "size", humanizeSize(size))
	s.record(ctx, "GET "+reqPath+": "+name+" delivered for downloading", protocol.StatusOK)
	return nil
}
