package corelog

import (
	"context"
	"os"

	"github.com/rs/zerolog"
)

// zlogger adapts zerolog.Logger to the Logger interface. Used when the
// operator wants structured JSON output (cmd/fsmrtd --log-json).
type zlogger struct {
	z      zerolog.Logger
	fields map[string]interface{}
}

// NewZerologLogger returns a Logger backed by zerolog, writing JSON lines to
// os.Stderr at the given minimum level ("debug", "info", "warn", "error").
func NewZerologLogger(level string) Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	z := zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
	return &zlogger{z: z}
}

func (l *zlogger) event(e *zerolog.Event, msg string) {
	for k, v := range l.fields {
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}

func (l *zlogger) Error(args ...interface{})         { l.event(l.z.Error(), sprint(args)) }
func (l *zlogger) Errorf(f string, a ...interface{}) { l.event(l.z.Error(), sprintf(f, a)) }
func (l *zlogger) Warn(args ...interface{})          { l.event(l.z.Warn(), sprint(args)) }
func (l *zlogger) Warnf(f string, a ...interface{})  { l.event(l.z.Warn(), sprintf(f, a)) }
func (l *zlogger) Info(args ...interface{})          { l.event(l.z.Info(), sprint(args)) }
func (l *zlogger) Infof(f string, a ...interface{})  { l.event(l.z.Info(), sprintf(f, a)) }
func (l *zlogger) Debug(args ...interface{})         { l.event(l.z.Debug(), sprint(args)) }
func (l *zlogger) Debugf(f string, a ...interface{}) { l.event(l.z.Debug(), sprintf(f, a)) }

func (l *zlogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &zlogger{z: l.z, fields: merged}
}

func (l *zlogger) WithContext(ctx context.Context) Logger {
	if id := RequestID(ctx); id != "" {
		return l.WithFields(map[string]interface{}{"request_id": id})
	}
	return l
}

var _ Logger = (*zlogger)(nil)
