// Package corelog provides the structured logging abstraction used by every
// component of the runtime (Navigator, Manager, Effects engine, storage
// substrate). Swapping the backing implementation never touches call sites.
package corelog

import (
	"context"
	"fmt"
	"log"
	"os"
)

// Logger is the logging interface threaded through the runtime.
type Logger interface {
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	// WithFields returns a new logger that includes the given structured
	// fields on every subsequent call.
	WithFields(fields map[string]interface{}) Logger

	// WithContext extracts request/tenant identifiers from ctx (if present)
	// and returns a logger annotated with them.
	WithContext(ctx context.Context) Logger
}

type ctxKey int

const requestIDKey ctxKey = iota

// WithRequestID returns a context carrying the given request id, retrievable
// by Logger.WithContext.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID extracts the request id set by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// stdLogger implements Logger atop the standard log package, mirroring the
// level-prefixed writers of the teacher's default logger.
type stdLogger struct {
	errorLogger *log.Logger
	warnLogger  *log.Logger
	infoLogger  *log.Logger
	debugLogger *log.Logger
	fields      map[string]interface{}
}

// NewDefaultLogger returns a plain-text stdlib-backed logger with no fields.
func NewDefaultLogger() Logger {
	return &stdLogger{
		errorLogger: log.New(os.Stderr, "[ERROR] ", log.LstdFlags),
		warnLogger:  log.New(os.Stderr, "[WARN] ", log.LstdFlags),
		infoLogger:  log.New(os.Stdout, "[INFO] ", log.LstdFlags),
		debugLogger: log.New(os.Stdout, "[DEBUG] ", log.LstdFlags),
		fields:      make(map[string]interface{}),
	}
}

func (l *stdLogger) write(w *log.Logger, msg string) {
	if len(l.fields) > 0 {
		w.Output(3, fmt.Sprintf("%s %v", msg, l.fields))
		return
	}
	w.Output(3, msg)
}

func (l *stdLogger) Error(args ...interface{})            { l.write(l.errorLogger, fmt.Sprint(args...)) }
func (l *stdLogger) Errorf(f string, a ...interface{})    { l.write(l.errorLogger, fmt.Sprintf(f, a...)) }
func (l *stdLogger) Warn(args ...interface{})             { l.write(l.warnLogger, fmt.Sprint(args...)) }
func (l *stdLogger) Warnf(f string, a ...interface{})     { l.write(l.warnLogger, fmt.Sprintf(f, a...)) }
func (l *stdLogger) Info(args ...interface{})             { l.write(l.infoLogger, fmt.Sprint(args...)) }
func (l *stdLogger) Infof(f string, a ...interface{})     { l.write(l.infoLogger, fmt.Sprintf(f, a...)) }
func (l *stdLogger) Debug(args ...interface{})            { l.write(l.debugLogger, fmt.Sprint(args...)) }
func (l *stdLogger) Debugf(f string, a ...interface{})    { l.write(l.debugLogger, fmt.Sprintf(f, a...)) }

func (l *stdLogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &stdLogger{
		errorLogger: l.errorLogger,
		warnLogger:  l.warnLogger,
		infoLogger:  l.infoLogger,
		debugLogger: l.debugLogger,
		fields:      merged,
	}
}

func (l *stdLogger) WithContext(ctx context.Context) Logger {
	if id := RequestID(ctx); id != "" {
		return l.WithFields(map[string]interface{}{"request_id": id})
	}
	return l
}

var _ Logger = (*stdLogger)(nil)
