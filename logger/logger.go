package logger

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
	"go.sakib.dev/shuttle/pkg/utils"
	"golang.org/x/term"
)

const (
	StatusKey string = "status"
)

type Handler struct {
	slog.Handler
}

func NewHandler(w io.Writer, level slog.Level) *Handler {
	return &Handler{
		Handler: tint.NewHandler(
			w,
			&tint.Options{
				Level:      level,
				TimeFormat: time.TimeOnly,
				NoColor:    !isTerminal(w),
			},
		),
	}
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	connID, ok := ctx.Value(utils.ConnIDKey).(string)

	if !ok {
		return h.Handler.Handle(ctx, r)
	}

	r.AddAttrs(slog.String(string(utils.ConnIDKey), connID))

	return h.Handler.Handle(ctx, r)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{Handler: h.Handler.WithGroup(name)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}
