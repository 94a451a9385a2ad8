package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/japaniel/glossary/internal/config"
)

// Setup installs the process-wide slog logger: text in development, JSON otherwise.
func Setup(cfg config.Config) {
	slog.SetDefault(slog.New(NewHandler(cfg, os.Stdout)))
}

// NewHandler builds the handler Setup installs, writing to w.
func NewHandler(cfg config.Config, w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if cfg.IsDevelopment() {
		opts.Level = slog.LevelDebug
	}
	if cfg.IsProduction() {
		return NewContextHandler(slog.NewJSONHandler(w, opts))
	}
	return NewContextHandler(slog.NewTextHandler(w, opts))
}

// ContextHandler adds the LogFields carried by the context to each record.
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: h}
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	fields := GetLogFields(ctx)
	if fields.SessionID != nil {
		r.AddAttrs(slog.String("session_id", *fields.SessionID))
	}
	if fields.UserID != nil {
		r.AddAttrs(slog.String("user_id", *fields.UserID))
	}
	if fields.TermID != nil {
		r.AddAttrs(slog.String("term_id", *fields.TermID))
	}
	if fields.RequestID != nil {
		r.AddAttrs(slog.String("request_id", *fields.RequestID))
	}
	if fields.Component != "" {
		r.AddAttrs(slog.String("component", fields.Component))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithGroup(name)}
}
