package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"
)

// LogSink persists a single job log record.
type LogSink interface {
	AppendLog(ctx context.Context, jobID uuid.UUID, at time.Time, level, message string, metadata []byte) error
}

// DBLogHandler is a slog.Handler that writes records to the job log table.
type DBLogHandler struct {
	Sink  LogSink
	JobID uuid.UUID
	Level slog.Leveler

	attrs map[string]any
}

func NewDBLogHandler(sink LogSink, jobID uuid.UUID) *DBLogHandler {
	return &DBLogHandler{
		Sink:  sink,
		JobID: jobID,
		Level: slog.LevelInfo,
	}
}

func (h *DBLogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.Level.Level()
}

func (h *DBLogHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	maps.Copy(attrs, h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = attrValue(a.Value)
		return true
	})

	metaJSON, err := json.Marshal(attrs)
	if err != nil {
		metaJSON = []byte("{}")
	}

	// Background context so records survive a cancelled run.
	return h.Sink.AppendLog(context.Background(), h.JobID, r.Time, r.Level.String(), r.Message, metaJSON)
}

func (h *DBLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.attrs = make(map[string]any, len(h.attrs)+len(attrs))
	maps.Copy(cp.attrs, h.attrs)
	for _, a := range attrs {
		cp.attrs[a.Key] = attrValue(a.Value)
	}
	return &cp
}

func (h *DBLogHandler) WithGroup(string) slog.Handler {
	return h
}

func attrValue(v slog.Value) any {
	v = v.Resolve()
	if err, ok := v.Any().(error); ok {
		return err.Error()
	}
	return v.Any()
}
