package logger

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Entry is a set of per-line fields (duration_ms, count, attempt, ...)
// resolved against the context logger when the line is written, so job and
// request fields carried by ctx are kept.
type Entry struct {
	fields Fields
}

// With starts an Entry from the given fields.
// Example: logger.With(logger.Fields{logger.FieldCount: n}).Info(ctx, "Aggregated")
func With(fields Fields) *Entry {
	return &Entry{fields: fields}
}

// ForJob starts an Entry tagged with a job ID, for code that logs about a
// job without running inside its context.
func ForJob(jobID string) *Entry {
	return With(Fields{FieldJobID: jobID})
}

// With returns a copy of the Entry with more fields. Later keys win.
func (e *Entry) With(fields Fields) *Entry {
	merged := make(Fields, len(e.fields)+len(fields))
	for k, v := range e.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Entry{fields: merged}
}

// WithField returns a copy of the Entry with one more field.
func (e *Entry) WithField(key string, value interface{}) *Entry {
	return e.With(Fields{key: value})
}

// Since records the milliseconds elapsed from start as duration_ms.
func (e *Entry) Since(start time.Time) *Entry {
	return e.WithField(FieldDurationMs, time.Since(start).Milliseconds())
}

// WithErrorKind tags the line with a job error kind. Empty kinds are skipped.
func (e *Entry) WithErrorKind(kind string) *Entry {
	if kind == "" {
		return e
	}
	return e.WithField(FieldErrorKind, kind)
}

func (e *Entry) logf(ctx context.Context, level logrus.Level, format string, args ...interface{}) {
	FromContext(ctx).WithFields(e.fields).Logf(level, format, args...)
}

func (e *Entry) Debug(ctx context.Context, format string, args ...interface{}) {
	e.logf(ctx, logrus.DebugLevel, format, args...)
}

func (e *Entry) Info(ctx context.Context, format string, args ...interface{}) {
	e.logf(ctx, logrus.InfoLevel, format, args...)
}

func (e *Entry) Warn(ctx context.Context, format string, args ...interface{}) {
	e.logf(ctx, logrus.WarnLevel, format, args...)
}

func (e *Entry) Error(ctx context.Context, format string, args ...interface{}) {
	e.logf(ctx, logrus.ErrorLevel, format, args...)
}
