package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const progressLogInterval = 500 * time.Millisecond // Report transfer progress every 500 milliseconds

// progress counts bytes as they pass through and reports them as events and
// log lines at most once per progressLogInterval, plus once when done. It
// never fails a write.
type progress struct {
	ctx      context.Context
	s        *Server
	connID   string
	fileName string
	total    int64 // -1 when unknown (uploads)

	transferred  int64
	lastReported int64
	lastTime     time.Time
	start        time.Time
}

func (s *Server) newProgress(ctx context.Context, fileName string, total int64) *progress {
	now := time.Now()
	return &progress{
		ctx:      ctx,
		s:        s,
		connID:   connIDFrom(ctx),
		fileName: fileName,
		total:    total,
		lastTime: now,
		start:    now,
	}
}

func (p *progress) Write(b []byte) (int, error) {
	p.transferred += int64(len(b))

	if time.Since(p.lastTime) > progressLogInterval {
		p.s.publish(EventFileProgress{ConnID: p.connID, Transferred: p.transferred, Time: time.Now()})

		mbps := float64(p.transferred-p.lastReported) / 1024 / 1024 / time.Since(p.lastTime).Seconds()

		var msg string
		if p.total > 0 {
			pct := float64(p.transferred) / float64(p.total) * 100
			msg = fmt.Sprintf("%10s / %10s | %6.2f%% | %5.2f MB/s",
				humanizeSize(p.transferred), humanizeSize(p.total), pct, mbps)
		} else {
			msg = fmt.Sprintf("%10s | %5.2f MB/s", humanizeSize(p.transferred), mbps)
		}
		slog.InfoContext(p.ctx, msg, "file", p.fileName)

		p.lastReported = p.transferred
		p.lastTime = time.Now()
	}
	return len(b), nil
}

func (p *progress) done() {
	p.s.publish(EventFileProgress{ConnID: p.connID, Transferred: p.transferred, Time: time.Now()})
	slog.InfoContext(p.ctx, "TRANSFER COMPLETE",
		"file", p.fileName,
		"size", humanizeSize(p.transferred),
		"duration", time.Since(p.start))
}
