package navigator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxorio/fsmruntime/pkg/corelog"
	"github.com/fluxorio/fsmruntime/pkg/kind"
	"github.com/fluxorio/fsmruntime/pkg/telemetry"
)

// fakeLog is an in-memory EventAppender double.
type fakeLog struct {
	mu      sync.Mutex
	records []map[string]interface{}
}

func (f *fakeLog) Append(tenantID, kindName, instanceID string, record map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record)
	return nil
}

func (f *fakeLog) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

type failingLog struct{}

func (failingLog) Append(tenantID, kindName, instanceID string, record map[string]interface{}) error {
	return errors.New("disk full")
}

func doorKind(t *testing.T) *kind.KindDefinition {
	t.Helper()
	def, err := kind.NewBuilder("door").
		InitialState("closed").
		AddState("closed").
		AddState("open").
		AddTransition("closed", "open_door", "open").
		AddTransition("open", "close_door", "closed").
		Build()
	require.NoError(t, err)
	return def
}

func newTestNavigator(log EventAppender) *Navigator {
	return New(log, telemetry.NewBus(nil), nil, corelog.NewDefaultLogger())
}

func TestNavigator_SuccessfulTransitionCommitsAndBumpsVersion(t *testing.T) {
	def := doorKind(t)
	inst := New("inst-1", "tenant-a", "door", "closed", nil)
	log := &fakeLog{}
	nav := newTestNavigator(log)

	_, err := nav.Send(context.Background(), def, inst, "open_door", nil)
	require.NoError(t, err)

	assert.Equal(t, "open", inst.State())
	assert.Equal(t, int64(1), inst.Metadata().Version)
	assert.Equal(t, int64(1), inst.Performance().TransitionCount)
	assert.Equal(t, 1, log.count())
}

func TestNavigator_UnresolvedTransitionLeavesInstanceUnchanged(t *testing.T) {
	def := doorKind(t)
	inst := New("inst-1", "tenant-a", "door", "closed", nil)
	nav := newTestNavigator(&fakeLog{})

	_, err := nav.Send(context.Background(), def, inst, "close_door", nil)
	require.Error(t, err)

	var navErr *Error
	require.True(t, errors.As(err, &navErr))
	assert.Equal(t, ReasonInvalidTransition, navErr.Reason)
	assert.Equal(t, "closed", inst.State())
	assert.Equal(t, int64(0), inst.Metadata().Version)
}

func TestNavigator_GuardDenialBlocksTransition(t *testing.T) {
	def, err := kind.NewBuilder("door").
		InitialState("closed").
		AddState("closed").
		AddState("open").
		AddTransition("closed", "open_door", "open", kind.Guarded("not_locked", func(inst kind.Instance, event string, eventData map[string]interface{}) bool {
			return false
		})).
		Build()
	require.NoError(t, err)

	inst := New("inst-1", "tenant-a", "door", "closed", nil)
	nav := newTestNavigator(&fakeLog{})

	_, err = nav.Send(context.Background(), def, inst, "open_door", nil)
	require.Error(t, err)

	var navErr *Error
	require.True(t, errors.As(err, &navErr))
	assert.Equal(t, ReasonGuardDenied, navErr.Reason)
	assert.Equal(t, "not_locked", navErr.Name)
	assert.Equal(t, "closed", inst.State())
}

func TestNavigator_KindValidatorRunsBeforeTransitionGuard(t *testing.T) {
	var order []string
	def, err := kind.NewBuilder("door").
		InitialState("closed").
		AddState("closed").
		AddState("open").
		AddValidator("global_check", func(inst kind.Instance, event string, eventData map[string]interface{}) bool {
			order = append(order, "validator")
			return true
		}).
		AddTransition("closed", "open_door", "open", kind.Guarded("transition_guard", func(inst kind.Instance, event string, eventData map[string]interface{}) bool {
			order = append(order, "guard")
			return true
		})).
		Build()
	require.NoError(t, err)

	inst := New("inst-1", "tenant-a", "door", "closed", nil)
	nav := newTestNavigator(&fakeLog{})

	_, err = nav.Send(context.Background(), def, inst, "open_door", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"validator", "guard"}, order)
}

func TestNavigator_OnExitHookFailureAbortsBeforeCommit(t *testing.T) {
	def, err := kind.NewBuilder("door").
		InitialState("closed").
		AddState("closed", kind.OnExit("lock_check", func(inst kind.Instance) error {
			return errors.New("still locked")
		})).
		AddState("open").
		AddTransition("closed", "open_door", "open").
		Build()
	require.NoError(t, err)

	inst := New("inst-1", "tenant-a", "door", "closed", nil)
	nav := newTestNavigator(&fakeLog{})

	_, err = nav.Send(context.Background(), def, inst, "open_door", nil)
	require.Error(t, err)

	var navErr *Error
	require.True(t, errors.As(err, &navErr))
	assert.Equal(t, ReasonHookFailed, navErr.Reason)
	assert.Equal(t, "lock_check", navErr.Name)
	assert.Equal(t, "closed", inst.State())
	assert.Equal(t, int64(0), inst.Metadata().Version)
}

func TestNavigator_OnEnterHookFailureLeavesInstanceInPriorState(t *testing.T) {
	def, err := kind.NewBuilder("door").
		InitialState("closed").
		AddState("closed").
		AddState("open", kind.OnEnter("sensor_check", func(inst kind.Instance) error {
			return errors.New("sensor fault")
		})).
		AddTransition("closed", "open_door", "open").
		Build()
	require.NoError(t, err)

	inst := New("inst-1", "tenant-a", "door", "closed", nil)
	nav := newTestNavigator(&fakeLog{})

	_, err = nav.Send(context.Background(), def, inst, "open_door", nil)
	require.Error(t, err)

	var navErr *Error
	require.True(t, errors.As(err, &navErr))
	assert.Equal(t, ReasonHookFailed, navErr.Reason)
	assert.Equal(t, "sensor_check", navErr.Name)
	assert.Equal(t, "closed", inst.State(), "on_enter failure must leave the instance in the prior state")
	assert.Equal(t, int64(0), inst.Metadata().Version)
}

func TestNavigator_EventDataShallowMergedIntoInstanceData(t *testing.T) {
	def := doorKind(t)
	inst := New("inst-1", "tenant-a", "door", "closed", map[string]interface{}{"opened_count": 0})
	nav := newTestNavigator(&fakeLog{})

	_, err := nav.Send(context.Background(), def, inst, "open_door", map[string]interface{}{"opened_count": 1, "by": "operator"})
	require.NoError(t, err)

	assert.Equal(t, 1, inst.Data()["opened_count"])
	assert.Equal(t, "operator", inst.Data()["by"])
}

func TestNavigator_PluginHooksRunBeforeAndAfterButCannotVeto(t *testing.T) {
	var order []string
	plugin := kind.Plugin{
		Name: "audit",
		Before: func(inst kind.Instance, event string, eventData map[string]interface{}) {
			order = append(order, "before")
			panic("plugins cannot veto, even by panicking")
		},
		After: func(inst kind.Instance, event string, eventData map[string]interface{}) {
			order = append(order, "after")
		},
	}
	def, err := kind.NewBuilder("door").
		InitialState("closed").
		AddState("closed").
		AddState("open").
		AddTransition("closed", "open_door", "open").
		AddPlugin(plugin).
		Build()
	require.NoError(t, err)

	inst := New("inst-1", "tenant-a", "door", "closed", nil)
	nav := newTestNavigator(&fakeLog{})

	_, err = nav.Send(context.Background(), def, inst, "open_door", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"before", "after"}, order)
	assert.Equal(t, "open", inst.State())
}

func TestNavigator_EventLogAppendFailureDoesNotFailTransition(t *testing.T) {
	def := doorKind(t)
	inst := New("inst-1", "tenant-a", "door", "closed", nil)
	nav := newTestNavigator(failingLog{})

	_, err := nav.Send(context.Background(), def, inst, "open_door", nil)
	require.NoError(t, err)
	assert.Equal(t, "open", inst.State())
}

func TestNavigator_SendReturnsSubscribersForCallerToNotify(t *testing.T) {
	def := doorKind(t)
	inst := New("inst-1", "tenant-a", "door", "closed", nil)
	inst.Subscribe("inst-2")
	inst.Subscribe("inst-3")
	nav := newTestNavigator(&fakeLog{})

	subs, err := nav.Send(context.Background(), def, inst, "open_door", nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"inst-2", "inst-3"}, subs)
}

func TestNavigator_HandleExternal_NilReducerIsNoop(t *testing.T) {
	def := doorKind(t)
	inst := New("inst-1", "tenant-a", "door", "closed", nil)
	nav := newTestNavigator(&fakeLog{})

	nav.HandleExternal(def, inst, kind.ExternalSource{KindName: "door", InstanceID: "inst-other"}, "state_changed", nil)
	assert.Equal(t, "closed", inst.State())
}

// TestNavigator_HandleExternal_ReducerDrivesStateTransition exercises §8.4
// scenario 3: a subscriber's handle_external reducer lands the instance in a
// new current_state, not just a data update.
func TestNavigator_HandleExternal_ReducerDrivesStateTransition(t *testing.T) {
	def, err := kind.NewBuilder("door").
		InitialState("closed").
		AddState("closed").
		AddState("emergency_lock").
		HandleExternal(func(inst kind.Instance, source kind.ExternalSource, eventType string, eventData map[string]interface{}) (kind.ExternalResult, error) {
			if eventType == "state_changed" && eventData["to"] == "alarm" {
				return kind.ExternalResult{NextState: "emergency_lock", Data: map[string]interface{}{"locked_reason": "subscribed_alarm"}}, nil
			}
			return kind.ExternalResult{}, nil
		}).
		Build()
	require.NoError(t, err)

	inst := New("inst-1", "tenant-a", "door", "closed", nil)
	nav := newTestNavigator(&fakeLog{})

	nav.HandleExternal(def, inst, kind.ExternalSource{KindName: "alarm_panel", InstanceID: "panel-1"}, "state_changed", map[string]interface{}{"to": "alarm"})

	assert.Equal(t, "emergency_lock", inst.State())
	assert.Equal(t, "subscribed_alarm", inst.Data()["locked_reason"])
	assert.Equal(t, int64(1), inst.Metadata().Version)
}

func TestNavigator_HandleExternal_ObserverOnlyReducerDoesNotBumpVersion(t *testing.T) {
	def, err := kind.NewBuilder("door").
		InitialState("closed").
		AddState("closed").
		HandleExternal(func(inst kind.Instance, source kind.ExternalSource, eventType string, eventData map[string]interface{}) (kind.ExternalResult, error) {
			return kind.ExternalResult{}, nil
		}).
		Build()
	require.NoError(t, err)

	inst := New("inst-1", "tenant-a", "door", "closed", nil)
	nav := newTestNavigator(&fakeLog{})

	nav.HandleExternal(def, inst, kind.ExternalSource{KindName: "door", InstanceID: "inst-other"}, "state_changed", nil)

	assert.Equal(t, "closed", inst.State())
	assert.Equal(t, int64(0), inst.Metadata().Version)
}

func TestNavigator_HandleExternal_PanicIsContained(t *testing.T) {
	def, err := kind.NewBuilder("door").
		InitialState("closed").
		AddState("closed").
		HandleExternal(func(inst kind.Instance, source kind.ExternalSource, eventType string, eventData map[string]interface{}) (kind.ExternalResult, error) {
			panic("reducer exploded")
		}).
		Build()
	require.NoError(t, err)

	inst := New("inst-1", "tenant-a", "door", "closed", nil)
	nav := newTestNavigator(&fakeLog{})

	assert.NotPanics(t, func() {
		nav.HandleExternal(def, inst, kind.ExternalSource{KindName: "door", InstanceID: "inst-other"}, "state_changed", nil)
	})
}

func TestNavigator_HandleExternal_ErrorIsSwallowed(t *testing.T) {
	def, err := kind.NewBuilder("door").
		InitialState("closed").
		AddState("closed").
		HandleExternal(func(inst kind.Instance, source kind.ExternalSource, eventType string, eventData map[string]interface{}) (kind.ExternalResult, error) {
			return kind.ExternalResult{}, errors.New("reducer failed")
		}).
		Build()
	require.NoError(t, err)

	inst := New("inst-1", "tenant-a", "door", "closed", nil)
	nav := newTestNavigator(&fakeLog{})

	nav.HandleExternal(def, inst, kind.ExternalSource{KindName: "door", InstanceID: "inst-other"}, "state_changed", nil)
	assert.Equal(t, "closed", inst.State())
}
