package corelog

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestRequestID_RoundTripsThroughContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-123")
	assert.Equal(t, "req-123", RequestID(ctx))
}

func TestRequestID_AbsentOnPlainContext(t *testing.T) {
	assert.Equal(t, "", RequestID(context.Background()))
}

func TestDefaultLogger_WithFieldsDoesNotMutateParent(t *testing.T) {
	base := NewDefaultLogger()
	child := base.WithFields(map[string]interface{}{"tenant_id": "tenant-a"})

	assert.NotSame(t, base, child)
	assert.Empty(t, base.(*stdLogger).fields)
}

func TestDefaultLogger_WithContextAttachesRequestID(t *testing.T) {
	base := NewDefaultLogger()
	ctx := WithRequestID(context.Background(), "req-abc")

	withCtx := base.WithContext(ctx)
	assert.NotNil(t, withCtx)
	assert.Equal(t, "req-abc", withCtx.(*stdLogger).fields["request_id"])
}

func TestDefaultLogger_WithContextIsNoopWithoutRequestID(t *testing.T) {
	base := NewDefaultLogger()
	withCtx := base.WithContext(context.Background())
	assert.Same(t, base, withCtx)
}

func TestDefaultLogger_AllLevelsAreCallableWithoutPanicking(t *testing.T) {
	l := NewDefaultLogger()
	assert.NotPanics(t, func() {
		l.Error("boom")
		l.Errorf("boom %d", 1)
		l.Warn("careful")
		l.Warnf("careful %d", 1)
		l.Info("fyi")
		l.Infof("fyi %d", 1)
		l.Debug("trace")
		l.Debugf("trace %d", 1)
	})
}

func TestZerologLogger_FallsBackToInfoOnInvalidLevel(t *testing.T) {
	l := NewZerologLogger("not-a-real-level")
	assert.NotNil(t, l)
	assert.Equal(t, zerolog.InfoLevel, l.(*zlogger).z.GetLevel())
}

func TestZerologLogger_WithFieldsReturnsDistinctLogger(t *testing.T) {
	base := NewZerologLogger("debug")
	child := base.WithFields(map[string]interface{}{"instance_id": "inst-1"})
	assert.NotSame(t, base, child)
}

func TestZerologLogger_AllLevelsAreCallableWithoutPanicking(t *testing.T) {
	l := NewZerologLogger("debug")
	assert.NotPanics(t, func() {
		l.Error("boom")
		l.Warn("careful")
		l.Info("fyi")
		l.Debug("trace")
	})
}
