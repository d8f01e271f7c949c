// Package runtime implements the thread-pool / runtime façade of spec
// §4.8/§6 (C9): it wires the generational collector, the transactional
// global environment manager, the effect coordinator, the IO and error
// propagation coordinators, and the adapted worker pool
// (internal/parallel) into a single entry point that submits Scheme
// expression evaluations across OS threads and collects their results in
// submission order.
//
// Grounded on the teacher's top-level engine/session pattern
// (pkg/minikanren's Engine wiring a ConstraintStore, a WorkerPool and a
// ContextMonitor behind one constructor) adapted from goal-stream
// evaluation to expression evaluation.
package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gitrdm/lambdust/internal/parallel"
	"github.com/gitrdm/lambdust/pkg/effect"
	"github.com/gitrdm/lambdust/pkg/environment"
	"github.com/gitrdm/lambdust/pkg/eval"
	"github.com/gitrdm/lambdust/pkg/gc"
	"github.com/gitrdm/lambdust/pkg/globalenv"
	"github.com/gitrdm/lambdust/pkg/intern"
	"github.com/gitrdm/lambdust/pkg/iocoord"
	"github.com/gitrdm/lambdust/pkg/value"
)

// Config tunes the façade's subsystems at construction. Zero fields select
// defaults: New substitutes 1024 effect events, a 5s effect timeout and
// 256 error-history entries; the pool, heap and global environment use
// their own defaults, mirroring the teacher's functional-options
// constructors.
type Config struct {
	MaxWorkers int
	MinWorkers int

	GCOptions []gc.Option

	EffectMaxEvents      int
	EffectDefaultTimeout time.Duration

	GlobalEnvOptions []globalenv.Option

	ErrorHistory int
	ErrorPolicy  iocoord.PropagationPolicy
}

// Runtime is one running instance of the multithreaded Scheme core: a
// shared heap, global environment, effect/IO/error coordinators, a
// worker pool executing submitted evaluations, and an intern table
// shared by every spawned evaluator.
type Runtime struct {
	pool     *parallel.WorkerPool
	heap     *gc.Heap
	globals  *globalenv.Manager
	effects  *effect.Coordinator
	io       *iocoord.Coordinator
	errs     *iocoord.ErrorCoordinator
	interner *intern.Table

	mu        sync.Mutex
	nextThread uint64
	handles    map[string]*EvaluatorHandle
}

// New constructs a Runtime with cfg applied over subsystem defaults.
func New(cfg Config) *Runtime {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 0 // NewDynamicWorkerPool interprets <=0 as NumCPU
	}
	if cfg.EffectMaxEvents <= 0 {
		cfg.EffectMaxEvents = 1024
	}
	if cfg.EffectDefaultTimeout <= 0 {
		cfg.EffectDefaultTimeout = 5 * time.Second
	}
	if cfg.ErrorHistory <= 0 {
		cfg.ErrorHistory = 256
	}

	heap := gc.NewHeap(cfg.GCOptions...)
	globals := globalenv.New(cfg.GlobalEnvOptions...)
	heap.RegisterRoot("globalenv", globals)

	rt := &Runtime{
		pool:     parallel.NewDynamicWorkerPool(cfg.MaxWorkers, cfg.MinWorkers),
		heap:     heap,
		globals:  globals,
		effects:  effect.NewCoordinator(cfg.EffectMaxEvents, cfg.EffectDefaultTimeout),
		io:       iocoord.New(),
		errs:     iocoord.NewErrorCoordinator(cfg.ErrorHistory, cfg.ErrorPolicy),
		interner: intern.New(),
		handles:  make(map[string]*EvaluatorHandle),
	}
	return rt
}

// GlobalEnv returns the runtime's transactional global environment
// manager (§4.6).
func (rt *Runtime) GlobalEnv() *globalenv.Manager { return rt.globals }

// EffectCoordinator returns the runtime's cross-thread effect coordinator
// (§4.5).
func (rt *Runtime) EffectCoordinator() *effect.Coordinator { return rt.effects }

// IOCoordinator returns the runtime's per-thread IO operation sequencer
// (§4.7).
func (rt *Runtime) IOCoordinator() *iocoord.Coordinator { return rt.io }

// ErrorPropagation returns the runtime's structured error coordinator
// (§4.7, §7).
func (rt *Runtime) ErrorPropagation() *iocoord.ErrorCoordinator { return rt.errs }

// Heap returns the runtime's shared generational collector.
func (rt *Runtime) Heap() *gc.Heap { return rt.heap }

// Interner returns the runtime's shared symbol intern table.
func (rt *Runtime) Interner() *intern.Table { return rt.interner }

// ExprSpan pairs an expression with the environment to evaluate it in.
// EvalParallel returns each item's result at the item's slice index.
type ExprSpan struct {
	Expr eval.Expr
	Env  *environment.Frame // nil uses a fresh top-level frame per call
}

// EvalExpr evaluates expr on a fresh, throwaway evaluator thread and
// returns its result. Use SpawnEvaluator for a thread that persists
// across multiple evaluations (e.g. to accumulate top-level defines).
func (rt *Runtime) EvalExpr(ctx context.Context, expr eval.Expr, env *environment.Frame) (result value.Value, err error) {
	h := rt.SpawnEvaluator()
	defer h.Shutdown()
	return h.Eval(ctx, expr, env)
}

// EvalParallel submits every item in exprs to the worker pool and
// returns their results in submission order (§4.8: "eval_parallel(...)
// returns results in submission order, not completion order").
func (rt *Runtime) EvalParallel(ctx context.Context, exprs []ExprSpan) ([]value.Value, []error) {
	results := make([]value.Value, len(exprs))
	errs := make([]error, len(exprs))
	var wg sync.WaitGroup
	wg.Add(len(exprs))
	for i, es := range exprs {
		i, es := i, es
		h := rt.SpawnEvaluator()
		submitErr := rt.pool.Submit(ctx, h.ThreadID(), func() {
			defer wg.Done()
			defer h.Shutdown()
			results[i], errs[i] = h.Eval(ctx, es.Expr, es.Env)
		})
		if submitErr != nil {
			errs[i] = submitErr
			h.Shutdown()
			wg.Done()
		}
	}
	wg.Wait()
	return results, errs
}

// SpawnEvaluator creates a new evaluator thread, registered with the
// effect coordinator under a fresh thread id, and returns a handle exposing
// eval/define_global/shutdown (§4.8).
func (rt *Runtime) SpawnEvaluator() *EvaluatorHandle {
	rt.mu.Lock()
	rt.nextThread++
	threadID := fmt.Sprintf("thread-%d", rt.nextThread)
	rt.mu.Unlock()

	rt.effects.RegisterThread(threadID)

	top := environment.New(rt.globals.Generation())
	in := eval.New(threadID, rt.heap, rt.interner, rt.effects, rt.globals)
	in.Top(top)
	in.InstallCorePrimitives(top)

	h := &EvaluatorHandle{rt: rt, threadID: threadID, interp: in, top: top}

	rt.mu.Lock()
	rt.handles[threadID] = h
	rt.mu.Unlock()
	return h
}

// Shutdown drains in-flight IO operations, then shuts down the worker
// pool. It blocks until every active IO operation completes or ctx
// expires (§4.8: "shutdown() ... graceful drain with a bounded
// timeout").
func (rt *Runtime) Shutdown(ctx context.Context) error {
	if err := rt.io.Drain(ctx, 10*time.Millisecond); err != nil {
		return err
	}
	rt.pool.Shutdown()
	return nil
}

// EvaluatorHandle is one spawned evaluator thread's external surface
// (§4.8: "spawn_evaluator() -> handle exposing eval/define_global/
// shutdown").
type EvaluatorHandle struct {
	rt       *Runtime
	threadID string
	interp   *eval.Interp
	top      *environment.Frame
}

// ThreadID returns the id this handle's evaluator registered under with
// the effect coordinator.
func (h *EvaluatorHandle) ThreadID() string { return h.threadID }

// Eval evaluates expr in env (or this handle's own top-level frame if
// env is nil).
func (h *EvaluatorHandle) Eval(ctx context.Context, expr eval.Expr, env *environment.Frame) (value.Value, error) {
	if env == nil {
		env = h.top
	}
	return h.interp.Eval(ctx, env, expr)
}

// DefineGlobal binds name to val in this handle's top-level frame,
// publishing it through the transactional global manager (mirrors what
// evaluating a top-level `define` does, for callers driving the runtime
// without going through Eval).
func (h *EvaluatorHandle) DefineGlobal(name uint64, val value.Value) error {
	h.top.Define(name, val)
	return h.rt.globals.DefineGlobalTransactional(h.threadID, name, val)
}

// Shutdown unregisters this evaluator from the effect coordinator and
// drops the handle from the runtime. It does not affect other handles or
// the runtime's worker pool.
func (h *EvaluatorHandle) Shutdown() {
	h.rt.effects.UnregisterThread(h.threadID)
	h.rt.mu.Lock()
	delete(h.rt.handles, h.threadID)
	h.rt.mu.Unlock()
}
