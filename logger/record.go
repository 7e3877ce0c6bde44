package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const recordTimeFormat = "2006-01-02 15:04:05"

// RecordLog is the append-only access log. Each record is formatted in full
// and handed to the file in a single Write, so concurrent connections never
// interleave inside a line.
type RecordLog struct {
	mu  sync.Mutex
	w   io.Writer
	c   io.Closer
	now func() time.Time
}

// OpenRecordLog creates the parent directory if needed and opens path for
// appending.
func OpenRecordLog(path string) (*RecordLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &RecordLog{w: f, c: f, now: time.Now}, nil
}

func NewRecordLog(w io.Writer) *RecordLog {
	return &RecordLog{w: w, now: time.Now}
}

func FormatRecord(t time.Time, message, status string) string {
	return "[" + t.Format(recordTimeFormat) + "] " + message + " - " + status + "\n"
}

func (l *RecordLog) Append(message, status string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := io.WriteString(l.w, FormatRecord(l.now(), message, status))
	return err
}

func (l *RecordLog) Close() error {
	if l.c == nil {
		return nil
	}
	return l.c.Close()
}
