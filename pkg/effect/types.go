// Package effect implements the per-thread effect coordinator of spec
// §4.5/§4: effect activations get a monotonic global sequence number,
// dependencies among effects are tracked and waited on before an effect
// is admitted, and a thread may restrict which effects are allowed to
// cross a thread boundary via an isolation level.
//
// Grounded on the teacher's fd_monitor.go / wfs_trace.go event-logging
// pattern (a bounded ring buffer of typed events behind a mutex) and on
// original_source/src/runtime/effect_coordinator_main.rs for the six-
// phase event lifecycle and nested per-thread effect-context stack
// (SPEC_FULL.md's supplemented features #3).
package effect

import (
	"fmt"
	"time"
)

// Kind is the effect taxonomy of §3: IO, State, Error, or an
// implementation-defined Custom effect.
type Kind struct {
	Tag    string // "IO", "State", "Error", or "Custom"
	Custom string // populated only when Tag == "Custom"
}

var (
	IO    = Kind{Tag: "IO"}
	State = Kind{Tag: "State"}
	Error = Kind{Tag: "Error"}
)

// CustomKind builds a Kind for a named custom effect.
func CustomKind(name string) Kind { return Kind{Tag: "Custom", Custom: name} }

func (k Kind) String() string {
	if k.Tag == "Custom" {
		return "Custom(" + k.Custom + ")"
	}
	return k.Tag
}

// Isolation restricts which effects may cross a thread boundary (§4.5).
type Isolation int

const (
	IsolationNone Isolation = iota
	IsolationSideEffectOnly
	IsolationWriteOnly
	IsolationComplete
	IsolationCustom
)

// CustomRule decides, for IsolationCustom, whether a specific effect Kind
// may cross the thread boundary.
type CustomRule func(Kind) bool

// Phase is a point in an effect occurrence's lifecycle (§4.5 statistics).
type Phase int

const (
	PhaseActivated Phase = iota
	PhaseDeactivated
	PhaseProduced
	PhaseHandled
	PhaseError
	PhaseCoordinationCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseActivated:
		return "Activated"
	case PhaseDeactivated:
		return "Deactivated"
	case PhaseProduced:
		return "Produced"
	case PhaseHandled:
		return "Handled"
	case PhaseError:
		return "Error"
	case PhaseCoordinationCompleted:
		return "CoordinationCompleted"
	default:
		return "Unknown"
	}
}

// Event is one entry in the coordinator's bounded recent-events ring.
type Event struct {
	ThreadID  string
	Kind      Kind
	Seq       uint64
	Timestamp time.Time
	Phase     Phase
}

func (e Event) String() string {
	return fmt.Sprintf("[%s] thread=%s kind=%s seq=%d phase=%s", e.Timestamp.Format(time.RFC3339Nano), e.ThreadID, e.Kind, e.Seq, e.Phase)
}

// Context is a thread's currently active effect set and isolation level.
// A thread may push nested contexts (SPEC_FULL.md supplement #3); Context
// itself is one frame of that stack.
type Context struct {
	Active     map[Kind]bool
	Isolation  Isolation
	CustomRule CustomRule
	Generation uint64
}

func newContext() *Context {
	return &Context{Active: make(map[Kind]bool)}
}
