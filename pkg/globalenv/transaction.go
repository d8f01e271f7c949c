package globalenv

import (
	"sync"
	"time"

	"github.com/gitrdm/lambdust/pkg/value"
)

// State is a transaction's lifecycle state (§4.6).
type State int

const (
	Active State = iota
	Committing
	Committed
	Aborting
	RolledBack
)

func (s State) String() string {
	switch s {
	case Active:
		return "Active"
	case Committing:
		return "Committing"
	case Committed:
		return "Committed"
	case Aborting:
		return "Aborting"
	case RolledBack:
		return "RolledBack"
	default:
		return "Unknown"
	}
}

// Change is one recorded mutation within a transaction: enough to undo it
// (PreImage/PreExisted) and enough to describe it (PostImage).
type Change struct {
	Name       uint64
	PreImage   value.Value
	PreExisted bool
	PostImage  value.Value
}

// Transaction is a bounded sequence of global-environment changes that
// commits or aborts atomically from the point of view of any reader
// (§4.6, §8 property 4).
type Transaction struct {
	ID                 uint64
	Initiator          string
	SnapshotGeneration uint64
	CreatedAt          time.Time
	Timeout            time.Duration

	mu      sync.Mutex
	State   State
	Changes []Change
}

// Expired reports whether the transaction has outlived its timeout
// without reaching a terminal state.
func (t *Transaction) Expired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.State == Active && time.Since(t.CreatedAt) > t.Timeout
}
