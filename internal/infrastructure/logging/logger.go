package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
	"time"
)

// Config holds logger configuration
type Config struct {
	Level       string // debug, info, warn, error
	Format      string // json, text
	Output      io.Writer
	AddSource   bool
	ServiceName string
	Environment string
}

// NewLogger creates the service logger. Records carry the service name,
// the environment and any request fields stored in the context.
func NewLogger(cfg Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.String(a.Key, a.Value.Time().UTC().Format(time.RFC3339Nano))
			}
			return a
		},
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}

	var static []slog.Attr
	if cfg.ServiceName != "" {
		static = append(static, slog.String("service", cfg.ServiceName))
	}
	if cfg.Environment != "" {
		static = append(static, slog.String("environment", cfg.Environment))
	}

	return slog.New(&contextHandler{handler: handler.WithAttrs(static)})
}

type fieldsKey struct{}

// requestFields identify the caller of one API request.
type requestFields struct {
	requestID string
	userID    string
	sectorID  string
}

func (f requestFields) attrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, 3)
	if f.requestID != "" {
		attrs = append(attrs, slog.String("request_id", f.requestID))
	}
	if f.userID != "" {
		attrs = append(attrs, slog.String("user_id", f.userID))
	}
	if f.sectorID != "" {
		attrs = append(attrs, slog.String("sector_id", f.sectorID))
	}
	return attrs
}

func fieldsFrom(ctx context.Context) requestFields {
	f, _ := ctx.Value(fieldsKey{}).(requestFields)
	return f
}

func withFields(ctx context.Context, update func(*requestFields)) context.Context {
	f := fieldsFrom(ctx)
	update(&f)
	return context.WithValue(ctx, fieldsKey{}, f)
}

// contextHandler appends the request fields of the record's context.
type contextHandler struct {
	handler slog.Handler
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		r.AddAttrs(fieldsFrom(ctx).attrs()...)
	}
	return h.handler.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{handler: h.handler.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{handler: h.handler.WithGroup(name)}
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withFields(ctx, func(f *requestFields) { f.requestID = requestID })
}

// WithUserID adds a user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return withFields(ctx, func(f *requestFields) { f.userID = userID })
}

// WithSectorID adds the caller's sector to the context
func WithSectorID(ctx context.Context, sectorID string) context.Context {
	return withFields(ctx, func(f *requestFields) { f.sectorID = sectorID })
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	return fieldsFrom(ctx).requestID
}

// LoggerFromContext binds the request fields of ctx to logger, for records
// written without a context.
func LoggerFromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	attrs := fieldsFrom(ctx).attrs()
	if len(attrs) == 0 {
		return logger
	}
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return logger.With(args...)
}

// LogPanic logs a recovered panic with the goroutine's stack.
func LogPanic(logger *slog.Logger, panicValue any) {
	logger.Error("panic recovered",
		"panic", panicValue,
		"stack_trace", string(debug.Stack()),
	)
}

// RequestRecord describes one served API request.
type RequestRecord struct {
	Method       string
	Route        string
	StatusCode   int
	Duration     time.Duration
	BytesWritten int64
	ClientIP     string
	UserAgent    string
}

// LogRequest writes the access log line of rec. Server errors log at error
// level and client errors at warn.
func LogRequest(ctx context.Context, logger *slog.Logger, rec RequestRecord) {
	level := slog.LevelInfo
	switch {
	case rec.StatusCode >= 500:
		level = slog.LevelError
	case rec.StatusCode >= 400:
		level = slog.LevelWarn
	}

	logger.LogAttrs(ctx, level, "http request",
		slog.String("method", rec.Method),
		slog.String("path", rec.Route),
		slog.Int("status_code", rec.StatusCode),
		slog.Int64("duration_ms", rec.Duration.Milliseconds()),
		slog.Int64("bytes_written", rec.BytesWritten),
		slog.String("client_ip", rec.ClientIP),
		slog.String("user_agent", rec.UserAgent),
	)
}
