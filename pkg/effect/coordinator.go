package effect

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ErrIsolationBlocked is returned when a cross-thread effect is rejected
// by the target (or initiating) thread's isolation level.
var ErrIsolationBlocked = errors.New("effect: blocked by isolation level")

// ErrTimeout is the §7 `Timeout` kind: a cross-thread coordination did
// not complete within its deadline.
var ErrTimeout = errors.New("effect: coordination timed out")

// EffectID identifies one effect occurrence, assigned from the
// coordinator's global sequence.
type EffectID uint64

// pendingEffect tracks an admitted-but-not-yet-completed effect and the
// goroutines waiting on it.
type pendingEffect struct {
	id   EffectID
	done chan struct{}
}

// Coordinator is the process-wide (or test-local; see intern's design
// note on avoiding singletons) effect coordination hub. One Coordinator
// typically backs one runtime instance.
type Coordinator struct {
	seq uint64 // atomic, monotonic global sequence number (§4.5)

	mu       sync.Mutex
	contexts map[string][]*Context // per-thread stack of pushed contexts
	pending  map[EffectID]*pendingEffect
	deps     map[EffectID][]EffectID // effect -> effects it must wait for

	eventsMu sync.Mutex
	events   []Event
	maxEvents int

	chansMu sync.Mutex
	chans   map[string]chan coordinationMessage // per-thread coordination channels

	defaultTimeout time.Duration
}

type coordinationMessage struct {
	id      EffectID
	seq     uint64
	deps    []EffectID
	payload interface{}
	handle  func(payload interface{}) (interface{}, error)
	reply   chan coordinationResult
}

// coordinationResult is what a target thread's consumer goroutine sends
// back after running a cross-thread message's handler.
type coordinationResult struct {
	value interface{}
	err   error
}

// NewCoordinator constructs a coordinator. maxEvents bounds the recent-
// events ring (oldest discarded first); 0 selects a sensible default.
func NewCoordinator(maxEvents int, defaultTimeout time.Duration) *Coordinator {
	if maxEvents <= 0 {
		maxEvents = 4096
	}
	if defaultTimeout <= 0 {
		defaultTimeout = 5 * time.Second
	}
	return &Coordinator{
		contexts:       make(map[string][]*Context),
		pending:        make(map[EffectID]*pendingEffect),
		deps:           make(map[EffectID][]EffectID),
		chans:          make(map[string]chan coordinationMessage),
		maxEvents:      maxEvents,
		defaultTimeout: defaultTimeout,
	}
}

// RegisterThread creates the coordination channel and initial (root)
// effect context for a newly started evaluator thread, and spawns the
// consumer goroutine that drains that channel for the thread's lifetime.
// Called by the thread pool façade on worker startup (§4.8).
func (c *Coordinator) RegisterThread(threadID string) {
	c.mu.Lock()
	if _, ok := c.contexts[threadID]; !ok {
		c.contexts[threadID] = []*Context{newContext()}
	}
	c.mu.Unlock()

	c.chansMu.Lock()
	ch, exists := c.chans[threadID]
	if !exists {
		ch = make(chan coordinationMessage, 16)
		c.chans[threadID] = ch
	}
	c.chansMu.Unlock()

	if !exists {
		go c.serveThread(ch)
	}
}

// serveThread is threadID's consumer goroutine: every cross-thread
// message CoordinateCrossThread sends to this thread's channel is handled
// here, so the handler genuinely executes on the target thread's
// goroutine rather than the initiator's (§4.5). Returns once ch is closed
// by UnregisterThread.
func (c *Coordinator) serveThread(ch chan coordinationMessage) {
	for msg := range ch {
		value, err := msg.handle(msg.payload)
		select {
		case msg.reply <- coordinationResult{value: value, err: err}:
		default:
		}
	}
}

// UnregisterThread tears down a thread's coordination channel and context
// stack on worker shutdown.
func (c *Coordinator) UnregisterThread(threadID string) {
	c.mu.Lock()
	delete(c.contexts, threadID)
	c.mu.Unlock()

	c.chansMu.Lock()
	if ch, ok := c.chans[threadID]; ok {
		close(ch)
		delete(c.chans, threadID)
	}
	c.chansMu.Unlock()
}

// PushContext pushes a new nested effect context onto threadID's stack,
// returning it for mutation (SetIsolation etc).
func (c *Coordinator) PushContext(threadID string) *Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx := newContext()
	c.contexts[threadID] = append(c.contexts[threadID], ctx)
	return ctx
}

// PopContext pops the innermost context for threadID, restoring the
// enclosing one. Popping the last (root) context is a no-op.
func (c *Coordinator) PopContext(threadID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stack := c.contexts[threadID]
	if len(stack) <= 1 {
		return
	}
	c.contexts[threadID] = stack[:len(stack)-1]
}

// CurrentContext returns the innermost active context for threadID,
// registering the thread with a fresh root context if it has none yet.
func (c *Coordinator) CurrentContext(threadID string) *Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	stack := c.contexts[threadID]
	if len(stack) == 0 {
		ctx := newContext()
		c.contexts[threadID] = []*Context{ctx}
		return ctx
	}
	return stack[len(stack)-1]
}

// SetIsolation sets the isolation level of threadID's current context.
func (c *Coordinator) SetIsolation(threadID string, level Isolation, rule CustomRule) {
	ctx := c.CurrentContext(threadID)
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx.Isolation = level
	ctx.CustomRule = rule
	ctx.Generation++
}

// allowed reports whether kind may cross ctx's thread boundary under its
// isolation level (§4.5).
func allowed(ctx *Context, kind Kind) bool {
	switch ctx.Isolation {
	case IsolationNone:
		return true
	case IsolationComplete:
		return false
	case IsolationSideEffectOnly:
		// Blocks any effect with an observable side effect: IO and
		// State both touch shared, externally visible state.
		return kind != IO && kind != State
	case IsolationWriteOnly:
		// Blocks write effects only: State models a binding/storage
		// write, IO and Error may still cross.
		return kind != State
	case IsolationCustom:
		if ctx.CustomRule == nil {
			return false
		}
		return ctx.CustomRule(kind)
	default:
		return false
	}
}

func (c *Coordinator) nextSeq() uint64 { return atomic.AddUint64(&c.seq, 1) }

func (c *Coordinator) recordEvent(e Event) {
	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()
	c.events = append(c.events, e)
	if len(c.events) > c.maxEvents {
		c.events = c.events[len(c.events)-c.maxEvents:]
	}
}

// RecentEvents returns a copy of the bounded recent-events ring.
func (c *Coordinator) RecentEvents() []Event {
	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Activate admits a new effect occurrence from threadID, waiting for any
// declared dependencies to complete first (§4.5: "waits for dependencies
// before admitting an effect, then adds it to the pending set"). It
// returns the assigned EffectID and a completion function the caller must
// invoke exactly once when the effect finishes.
func (c *Coordinator) Activate(ctx context.Context, threadID string, kind Kind, deps []EffectID) (EffectID, func(), error) {
	id := EffectID(c.nextSeq())
	c.recordEvent(Event{ThreadID: threadID, Kind: kind, Seq: uint64(id), Timestamp: time.Now(), Phase: PhaseActivated})

	c.mu.Lock()
	c.deps[id] = deps
	waitFor := make([]*pendingEffect, 0, len(deps))
	for _, dep := range deps {
		if p, ok := c.pending[dep]; ok {
			waitFor = append(waitFor, p)
		}
	}
	pe := &pendingEffect{id: id, done: make(chan struct{})}
	c.pending[id] = pe
	c.mu.Unlock()

	for _, dep := range waitFor {
		select {
		case <-dep.done:
		case <-ctx.Done():
			return id, func() {}, ctx.Err()
		}
	}

	complete := func() {
		c.recordEvent(Event{ThreadID: threadID, Kind: kind, Seq: uint64(id), Timestamp: time.Now(), Phase: PhaseHandled})
		c.mu.Lock()
		delete(c.pending, id)
		delete(c.deps, id)
		c.mu.Unlock()
		close(pe.done)
	}
	return id, complete, nil
}

// SubmitOrdered runs fn synchronously under one Activate/complete pair
// and returns only after that effect has completed, so a thread that
// submits its effects by calling SubmitOrdered in sequence gets
// coordinator completion order equal to submission order (§5, §8
// property 6). No dependency on earlier calls is recorded: concurrent
// callers are not ordered against each other, and work fn starts
// asynchronously is not waited for.
func (c *Coordinator) SubmitOrdered(ctx context.Context, threadID string, kind Kind, fn func() error) error {
	id, complete, err := c.Activate(ctx, threadID, kind, nil)
	if err != nil {
		return err
	}
	defer complete()
	if err := fn(); err != nil {
		c.recordEvent(Event{ThreadID: threadID, Kind: kind, Seq: uint64(id), Timestamp: time.Now(), Phase: PhaseError})
		return err
	}
	c.recordEvent(Event{ThreadID: threadID, Kind: kind, Seq: uint64(id), Timestamp: time.Now(), Phase: PhaseProduced})
	return nil
}

// CoordinateCrossThread initiates a cross-thread effect from `from` to
// `to`: it starts a transaction, sends a coordination message on the
// target's channel, and waits for commit within timeout (0 selects the
// coordinator's default). On timeout or send failure the transaction
// aborts and an error is returned; both thread's isolation levels are
// checked first (§4.5, §5).
func (c *Coordinator) CoordinateCrossThread(ctx context.Context, from, to string, kind Kind, timeout time.Duration, handle func(payload interface{}) (interface{}, error)) (interface{}, error) {
	fromCtx := c.CurrentContext(from)
	toCtx := c.CurrentContext(to)
	if !allowed(fromCtx, kind) || !allowed(toCtx, kind) {
		return nil, ErrIsolationBlocked
	}

	if timeout <= 0 {
		timeout = c.defaultTimeout
	}
	deadline, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	id, complete, err := c.Activate(deadline, from, kind, nil)
	if err != nil {
		return nil, fmt.Errorf("effect: activation failed: %w", err)
	}
	defer complete()

	c.chansMu.Lock()
	targetChan, ok := c.chans[to]
	c.chansMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("effect: target thread %q not registered", to)
	}

	reply := make(chan coordinationResult, 1)
	msg := coordinationMessage{id: id, seq: uint64(id), handle: handle, reply: reply}

	select {
	case targetChan <- msg:
	case <-deadline.Done():
		return nil, ErrTimeout
	}

	select {
	case res := <-reply:
		if res.err != nil {
			return nil, res.err
		}
		c.recordEvent(Event{ThreadID: from, Kind: kind, Seq: uint64(id), Timestamp: time.Now(), Phase: PhaseCoordinationCompleted})
		return res.value, nil
	case <-deadline.Done():
		return nil, ErrTimeout
	}
}

// Sandbox is a thread running with IsolationComplete and a handle to tear
// it down (§4.5: "A sandbox is a thread in Complete mode with a handle by
// which the sandbox may be destroyed").
type Sandbox struct {
	ThreadID    string
	coordinator *Coordinator
}

// NewSandbox puts threadID into Complete isolation and returns a handle
// that can later destroy it (unregistering the thread entirely).
func (c *Coordinator) NewSandbox(threadID string) *Sandbox {
	c.RegisterThread(threadID)
	c.SetIsolation(threadID, IsolationComplete, nil)
	return &Sandbox{ThreadID: threadID, coordinator: c}
}

// Destroy tears down the sandboxed thread's coordination state.
func (s *Sandbox) Destroy() {
	s.coordinator.UnregisterThread(s.ThreadID)
}
