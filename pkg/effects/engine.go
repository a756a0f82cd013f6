package effects

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fluxorio/fsmruntime/pkg/corelog"
	"github.com/fluxorio/fsmruntime/pkg/rtconfig"
	"github.com/fluxorio/fsmruntime/pkg/telemetry"
)

// Engine interprets effect trees (§4.3.2). It holds no per-instance state of
// its own beyond the active cancellation scopes; instance data lives behind
// the DataStore passed into Run.
type Engine struct {
	registry *CapabilityRegistry
	llm      map[string]LLMPort
	agents   AgentCoordinator
	rag      RAGPort
	bus      *telemetry.Bus
	logger   corelog.Logger
	cfg      rtconfig.Config

	sem chan struct{}

	scopes *scopeTable
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithCapabilityRegistry replaces the default empty registry.
func WithCapabilityRegistry(r *CapabilityRegistry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithLLMPort binds provider name to an LLMPort, consulted by call_llm nodes.
func WithLLMPort(provider string, port LLMPort) Option {
	return func(e *Engine) { e.llm[provider] = port }
}

// WithAgentCoordinator sets the coordinate_agents backend.
func WithAgentCoordinator(a AgentCoordinator) Option {
	return func(e *Engine) { e.agents = a }
}

// WithRAGPort sets the rag_pipeline backend.
func WithRAGPort(r RAGPort) Option {
	return func(e *Engine) { e.rag = r }
}

// WithLogger overrides the engine's logger.
func WithLogger(l corelog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine builds an Engine bounded by cfg.EffectWorkerPool concurrent
// blocking operations (§4.3.3), wired to bus for lifecycle telemetry.
func NewEngine(cfg rtconfig.Config, bus *telemetry.Bus, opts ...Option) *Engine {
	pool := cfg.EffectWorkerPool
	if pool <= 0 {
		pool = rtconfig.Default().EffectWorkerPool
	}
	e := &Engine{
		registry: NewCapabilityRegistry(),
		llm:      make(map[string]LLMPort),
		bus:      bus,
		logger:   corelog.NewDefaultLogger(),
		cfg:      cfg,
		sem:      make(chan struct{}, pool),
		scopes:   newScopeTable(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// execCtx threads per-branch state (the running instance's data, and the
// lexical "last result" that get_result() resolves to) through a single
// execution. Children of sequence/parallel/race/retry fork their own
// execCtx so concurrent branches never race on lastResult.
type execCtx struct {
	data       DataStore
	lastResult interface{}
}

func (e *execCtx) fork() *execCtx {
	return &execCtx{data: e.data, lastResult: e.lastResult}
}

// Run validates and executes root against data, scoped to instanceID/
// tenantID for cancellation and telemetry purposes. It returns the root
// node's result; a malformed tree yields a *ValidationError without running
// anything, and a failed run an *Error describing why execution stopped (or
// the bare context error when a parallel/race branch is cancelled while
// waiting for a worker slot).
func (e *Engine) Run(ctx context.Context, instanceID, tenantID string, root *Node, data DataStore) (interface{}, error) {
	if err := Validate(root); err != nil {
		return nil, err
	}

	executionID := uuid.NewString()
	runCtx, cancel := context.WithCancel(ctx)
	e.scopes.register(instanceID, executionID, cancel)
	defer e.scopes.unregister(instanceID, executionID)

	e.bus.Emit(telemetry.EffectEvent(telemetry.EventEffectStarted, executionID, string(root.Kind), 0))
	start := time.Now()

	result, err := e.exec(runCtx, &execCtx{data: data}, root)

	durationUs := time.Since(start).Microseconds()
	switch {
	case err == nil:
		e.bus.Emit(telemetry.EffectEvent(telemetry.EventEffectCompleted, executionID, string(root.Kind), durationUs))
	case errors.Is(err, context.Canceled):
		e.bus.Emit(telemetry.EffectEvent(telemetry.EventEffectCancelled, executionID, string(root.Kind), durationUs))
	default:
		e.bus.Emit(telemetry.EffectEvent(telemetry.EventEffectFailed, executionID, string(root.Kind), durationUs))
	}
	return result, err
}

// CancelEffects cancels every in-flight execution scoped to instanceID
// (§4.3.5, and the cascading cancellation destroy_fsm needs). It returns
// the number of executions cancelled.
func (e *Engine) CancelEffects(instanceID string) int {
	return e.scopes.cancelAll(instanceID)
}

func (e *Engine) exec(ctx context.Context, ec *execCtx, n *Node) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, newError(string(n.Kind), ReasonCancelled, "", err)
	}

	switch n.Kind {
	case KindSequence:
		return e.execSequence(ctx, ec, n)
	case KindParallel:
		return e.execParallel(ctx, ec, n)
	case KindRace:
		return e.execRace(ctx, ec, n)
	case KindRetry:
		return e.execRetry(ctx, ec, n)
	case KindTimeout:
		return e.execTimeout(ctx, ec, n)
	case KindWithCompensation:
		return e.execWithCompensation(ctx, ec, n)
	case KindCall:
		return e.execCall(ctx, ec, n)
	case KindDelay:
		return e.execDelay(ctx, n)
	case KindLog:
		e.logAt(n.Level, n.Message)
		return nil, nil
	case KindPutData:
		resolved := resolveArgs([]interface{}{n.Value}, ec.lastResult, ec.data)
		ec.data.Put(n.Key, resolved[0])
		return resolved[0], nil
	case KindGetData:
		v, _ := ec.data.Get(n.Key)
		return v, nil
	case KindCallLLM:
		return e.execCallLLM(ctx, n)
	case KindCoordinateAgents:
		return e.execCoordinateAgents(ctx, n)
	case KindRAGPipeline:
		return e.execRAGPipeline(ctx, n)
	default:
		return nil, newError(string(n.Kind), ReasonRaised, "unrecognized effect kind", nil)
	}
}

func (e *Engine) execSequence(ctx context.Context, ec *execCtx, n *Node) (interface{}, error) {
	var prev interface{}
	for _, c := range n.Children {
		child := ec.fork()
		child.lastResult = prev
		r, err := e.exec(ctx, child, c)
		if err != nil {
			return nil, err
		}
		prev = r
	}
	return prev, nil
}

func (e *Engine) execParallel(ctx context.Context, ec *execCtx, n *Node) (interface{}, error) {
	results := make([]interface{}, len(n.Children))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range n.Children {
		i, c := i, c
		g.Go(func() error {
			if err := e.acquire(gctx); err != nil {
				return err
			}
			defer e.release()
			r, err := e.exec(gctx, ec.fork(), c)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Engine) execRace(ctx context.Context, ec *execCtx, n *Node) (interface{}, error) {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		result interface{}
		err    error
	}
	ch := make(chan outcome, len(n.Children))
	for _, c := range n.Children {
		c := c
		go func() {
			if err := e.acquire(raceCtx); err != nil {
				ch <- outcome{err: err}
				return
			}
			defer e.release()
			r, err := e.exec(raceCtx, ec.fork(), c)
			ch <- outcome{result: r, err: err}
		}()
	}

	var lastErr error
	for range n.Children {
		o := <-ch
		if o.err == nil {
			cancel()
			return o.result, nil
		}
		lastErr = o.err
	}
	return nil, lastErr
}

func (e *Engine) execRetry(ctx context.Context, ec *execCtx, n *Node) (interface{}, error) {
	opts := n.Retry
	if opts.Attempts < 1 {
		opts.Attempts = e.cfg.RetryDefault.Attempts
	}
	backoff := opts.Backoff
	if backoff == "" {
		backoff = e.cfg.RetryDefault.Backoff
	}
	baseMs := opts.BaseMs
	if baseMs <= 0 {
		baseMs = e.cfg.RetryDefault.BaseMs
	}

	var lastErr error
	for attempt := 0; attempt < opts.Attempts; attempt++ {
		if attempt > 0 {
			wait := backoffDuration(backoff, baseMs, attempt, opts.JitterEnabled())
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, newError("retry", ReasonCancelled, "", ctx.Err())
			}
		}
		r, err := e.exec(ctx, ec.fork(), n.Child)
		if err == nil {
			return r, nil
		}
		lastErr = err
	}
	return nil, newError("retry", ReasonMaxRetriesExceeded, "", lastErr)
}

func backoffDuration(kind rtconfig.BackoffKind, baseMs, attempt int, jitter bool) time.Duration {
	var ms float64
	switch kind {
	case rtconfig.BackoffLinear:
		ms = float64(baseMs * attempt)
	case rtconfig.BackoffExponential:
		ms = float64(baseMs) * float64(int(1)<<uint(attempt-1))
	default: // constant
		ms = float64(baseMs)
	}
	if jitter {
		// +/-20% jitter, §4.3.2.
		delta := ms * 0.2
		ms = ms - delta + rand.Float64()*2*delta
	}
	if ms < 0 {
		ms = 0
	}
	return time.Duration(ms) * time.Millisecond
}

func (e *Engine) execTimeout(ctx context.Context, ec *execCtx, n *Node) (interface{}, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, time.Duration(n.Ms)*time.Millisecond)
	defer cancel()

	r, err := e.exec(timeoutCtx, ec.fork(), n.Child)
	if err != nil {
		if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			return nil, newError("timeout", ReasonTimeout, "", timeoutCtx.Err())
		}
		return nil, err
	}
	return r, nil
}

func (e *Engine) execWithCompensation(ctx context.Context, ec *execCtx, n *Node) (interface{}, error) {
	r, err := e.exec(ctx, ec.fork(), n.Child)
	if err == nil {
		return r, nil
	}
	// Rollback runs best-effort on a fresh context: the main branch's
	// context may already be cancelled or expired.
	if _, rbErr := e.exec(context.Background(), ec.fork(), n.Rollback); rbErr != nil {
		e.logger.Warnf("with_compensation rollback failed: %v", rbErr)
	}
	return nil, err
}

func (e *Engine) execCall(ctx context.Context, ec *execCtx, n *Node) (interface{}, error) {
	fn, ok := e.registry.Lookup(n.Module, n.Function)
	if !ok {
		return nil, newError("call", ReasonFunctionNotExported, n.Module+"."+n.Function, nil)
	}
	if err := e.acquire(ctx); err != nil {
		return nil, newError("call", ReasonCancelled, "", err)
	}
	defer e.release()

	args := resolveArgs(n.Args, ec.lastResult, ec.data)
	r, err := fn(ctx, args)
	if err != nil {
		return nil, newError("call", ReasonRaised, err.Error(), err)
	}
	return r, nil
}

func (e *Engine) execDelay(ctx context.Context, n *Node) (interface{}, error) {
	select {
	case <-time.After(time.Duration(n.Ms) * time.Millisecond):
		return Delayed, nil
	case <-ctx.Done():
		return nil, newError("delay", ReasonCancelled, "", ctx.Err())
	}
}

func (e *Engine) logAt(level LogLevel, msg string) {
	switch level {
	case LogDebug:
		e.logger.Debugf("%s", msg)
	case LogWarn:
		e.logger.Warnf("%s", msg)
	case LogError:
		e.logger.Errorf("%s", msg)
	default:
		e.logger.Infof("%s", msg)
	}
}

func (e *Engine) execCallLLM(ctx context.Context, n *Node) (interface{}, error) {
	port, ok := e.llm[n.LLM.Provider]
	if !ok {
		return nil, newError("call_llm", ReasonFunctionNotExported, "provider "+n.LLM.Provider+" not configured", nil)
	}
	if err := e.acquire(ctx); err != nil {
		return nil, newError("call_llm", ReasonCancelled, "", err)
	}
	defer e.release()

	r, err := port.Complete(ctx, n.LLM)
	if err != nil {
		return nil, newError("call_llm", ReasonRaised, err.Error(), err)
	}
	return r, nil
}

func (e *Engine) execCoordinateAgents(ctx context.Context, n *Node) (interface{}, error) {
	if e.agents == nil {
		return nil, newError("coordinate_agents", ReasonFunctionNotExported, "no agent coordinator configured", nil)
	}
	if err := e.acquire(ctx); err != nil {
		return nil, newError("coordinate_agents", ReasonCancelled, "", err)
	}
	defer e.release()

	results := make([]AgentResult, len(n.Agents))

	switch n.Coordination {
	case CoordinationSequential:
		for i, spec := range n.Agents {
			r, err := e.agents.RunAgent(ctx, spec)
			if err != nil {
				r.Err = err
			}
			results[i] = r
		}
	default: // parallel, consensus both run every agent concurrently
		g, gctx := errgroup.WithContext(ctx)
		for i, spec := range n.Agents {
			i, spec := i, spec
			g.Go(func() error {
				r, err := e.agents.RunAgent(gctx, spec)
				if err != nil {
					r.Err = err
				}
				results[i] = r
				return nil // individual agent failures don't abort the group
			})
		}
		_ = g.Wait()
	}

	if n.Coordination == CoordinationConsensus {
		succeeded := 0
		for _, r := range results {
			if r.Err == nil {
				succeeded++
			}
		}
		if succeeded*2 < len(results) {
			return results, newError("coordinate_agents", ReasonRaised, "no consensus reached", nil)
		}
	}
	return results, nil
}

func (e *Engine) execRAGPipeline(ctx context.Context, n *Node) (interface{}, error) {
	if e.rag == nil {
		return nil, newError("rag_pipeline", ReasonFunctionNotExported, "no RAG port configured", nil)
	}
	if err := e.acquire(ctx); err != nil {
		return nil, newError("rag_pipeline", ReasonCancelled, "", err)
	}
	defer e.release()

	r, err := e.rag.Query(ctx, n.RAG)
	if err != nil {
		return nil, newError("rag_pipeline", ReasonRaised, err.Error(), err)
	}
	return r, nil
}

// acquire blocks for a worker-pool slot, bounding how much blocking I/O
// (call/call_llm/coordinate_agents/rag_pipeline) runs concurrently (§4.3.3).
func (e *Engine) acquire(ctx context.Context) error {
	select {
	case e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) release() {
	<-e.sem
}
