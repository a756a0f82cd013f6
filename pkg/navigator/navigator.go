package navigator

import (
	"context"
	"time"

	"github.com/fluxorio/fsmruntime/pkg/corelog"
	"github.com/fluxorio/fsmruntime/pkg/effects"
	"github.com/fluxorio/fsmruntime/pkg/kind"
	"github.com/fluxorio/fsmruntime/pkg/telemetry"
)

// EventAppender is the event log's write side, as seen by the navigator. A
// failed append is logged, not propagated: the in-memory transition has
// already committed by the time the record would be written (§4.1.2 step 7
// runs after commit), and the spec does not require rollback on a store
// failure.
type EventAppender interface {
	Append(tenantID, kindName, instanceID string, record map[string]interface{}) error
}

// Navigator drives single-instance transitions (§4.1.2). It holds no
// instance state itself; every dependency (event log, telemetry, effects
// engine) is injected so tests can build an isolated Navigator per case
// (§9's "dependency-injected handles" design note).
type Navigator struct {
	log     EventAppender
	bus     *telemetry.Bus
	effects *effects.Engine
	logger  corelog.Logger
}

// New builds a Navigator. log may be nil (append skipped, useful in tests
// exercising only the transition algorithm).
func New(log EventAppender, bus *telemetry.Bus, eng *effects.Engine, logger corelog.Logger) *Navigator {
	if logger == nil {
		logger = corelog.NewDefaultLogger()
	}
	return &Navigator{log: log, bus: bus, effects: eng, logger: logger}
}

// Send runs the §4.1.2 algorithm (steps 1-8; subscriber notification is
// step 9, driven by the caller via HandleExternal since it requires
// resolving other instances — see pkg/registry). On success inst is
// mutated in place and the returned subscriber ID list is ready to notify.
// On failure inst is left exactly as it was.
func (n *Navigator) Send(ctx context.Context, def *kind.KindDefinition, inst *Instance, event string, eventData map[string]interface{}) ([]string, error) {
	start := time.Now()
	from := inst.State()

	t, ok := def.Resolve(from, event)
	if !ok {
		return nil, newError(ReasonInvalidTransition, "", nil)
	}

	for _, g := range def.Validators() {
		if !g.Guard(inst, event, eventData) {
			return nil, newError(ReasonGuardDenied, g.Name, nil)
		}
	}
	for _, g := range t.Guards {
		if !g.Guard(inst, event, eventData) {
			return nil, newError(ReasonGuardDenied, g.Name, nil)
		}
	}

	fromState, _ := def.State(from)
	for _, h := range fromState.OnExit {
		if err := runHook(h.Hook, inst); err != nil {
			n.logger.Warnf("navigator: on_exit hook %q failed for instance %s: %v", h.Name, inst.id, err)
			return nil, newError(ReasonHookFailed, h.Name, err)
		}
	}

	for _, p := range def.Plugins() {
		if p.Before != nil {
			runPlugin(p.Before, inst, event, eventData)
		}
	}

	merged := inst.Data()
	for k, v := range eventData {
		merged[k] = v
	}
	buf := &bufferedInstance{id: inst.id, tenant: inst.tenantID, state: t.To, data: merged}

	toState, _ := def.State(t.To)
	for _, h := range toState.OnEnter {
		if err := runHook(h.Hook, buf); err != nil {
			n.logger.Warnf("navigator: on_enter hook %q failed for instance %s: %v", h.Name, inst.id, err)
			return nil, newError(ReasonHookFailed, h.Name, err)
		}
	}

	durationUs := time.Since(start).Microseconds()
	inst.commit(t.To, buf.data, durationUs)

	for _, p := range def.Plugins() {
		if p.After != nil {
			runPlugin(p.After, inst, event, eventData)
		}
	}

	if n.log != nil {
		record := map[string]interface{}{
			"type": "transition", "from": from, "to": t.To, "event": event,
			"event_data": eventData, "duration_us": durationUs,
			"version": inst.Metadata().Version,
		}
		if err := n.log.Append(inst.tenantID, inst.kindName, inst.id, record); err != nil {
			n.logger.Errorf("navigator: event log append failed for instance %s: %v", inst.id, err)
		}
		n.bus.Emit(telemetry.StoreAppendEvent("transition", inst.id, inst.tenantID, 0))
	}
	n.bus.Emit(telemetry.TransitionEvent(inst.id, inst.tenantID, inst.kindName, from, t.To, event, durationUs))

	if toState.EntryEffect != nil && n.effects != nil {
		effectTree := toState.EntryEffect
		go func() {
			if _, err := n.effects.Run(context.Background(), inst.id, inst.tenantID, effectTree, inst); err != nil {
				n.logger.Warnf("navigator: entry effect for instance %s failed: %v", inst.id, err)
			}
		}()
	}

	return inst.Subscribers(), nil
}

// HandleExternal invokes def's external-event reducer against inst,
// catching both errors and panics so a misbehaving reducer never affects
// the caller (§4.1.1's "must be total; failures are caught"), then commits
// the returned I' (a direct state/data update, not a guarded transition).
func (n *Navigator) HandleExternal(def *kind.KindDefinition, inst *Instance, source kind.ExternalSource, eventType string, data map[string]interface{}) {
	h := def.HandleExternal()
	if h == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			n.logger.Warnf("navigator: handle_external panicked for instance %s: %v", inst.id, r)
		}
	}()
	result, err := h(inst, source, eventType, data)
	if err != nil {
		n.logger.Warnf("navigator: handle_external failed for instance %s: %v", inst.id, err)
		return
	}
	inst.ApplyExternalResult(result.NextState, result.Data)
}

func runHook(h kind.Hook, inst kind.Instance) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicToError(r)
		}
	}()
	return h(inst)
}

func runPlugin(p kind.PluginHook, inst kind.Instance, event string, data map[string]interface{}) {
	defer func() {
		recover() // plugin hooks cannot veto or fail the transition
	}()
	p(inst, event, data)
}

func panicToError(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return &panicError{r}
}

type panicError struct{ v interface{} }

func (p *panicError) Error() string { return "panic: " + toString(p.v) }

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return "unknown panic value"
}
