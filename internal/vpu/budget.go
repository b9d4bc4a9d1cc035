// Package vpu implements the global hardware video-processing-unit session
// budget (C1). Hardware encoders/decoders on the reference SoC become
// unstable past a fixed concurrent-session bound, so every acquisition in
// the process funnels through this single mutex-guarded counter.
package vpu

import (
	"fmt"
	"sync"
)

// Kind distinguishes encode and decode session pools; the SoC budgets them
// independently.
type Kind string

const (
	Encode Kind = "encode"
	Decode Kind = "decode"
)

// Budget is a single mutable counter pair protected by a mutex.
type Budget struct {
	mu sync.Mutex

	maxEncode int
	maxDecode int

	inUseEncode int
	inUseDecode int
}

// New creates a Budget with the given per-kind caps.
func New(maxEncode, maxDecode int) *Budget {
	return &Budget{maxEncode: maxEncode, maxDecode: maxDecode}
}

// Guard is an RAII-style lease on n sessions of a given kind. Release is
// idempotent.
type Guard struct {
	b       *Budget
	kind    Kind
	n       int
	once    sync.Once
}

// TryAcquire atomically checks in_use_kind+n <= max_kind; on success it
// increments and returns a Guard. On failure it returns (nil, false) and the
// caller MUST fall back to software.
func (b *Budget) TryAcquire(kind Kind, n int) (*Guard, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch kind {
	case Encode:
		if b.inUseEncode+n > b.maxEncode {
			return nil, false
		}
		b.inUseEncode += n
	case Decode:
		if b.inUseDecode+n > b.maxDecode {
			return nil, false
		}
		b.inUseDecode += n
	default:
		return nil, false
	}

	return &Guard{b: b, kind: kind, n: n}, true
}

// Release returns the guard's sessions to the budget. Safe to call more
// than once; only the first call has effect. Safe to call on a nil guard.
func (g *Guard) Release() {
	if g == nil {
		return
	}
	g.once.Do(func() {
		g.b.mu.Lock()
		defer g.b.mu.Unlock()
		switch g.kind {
		case Encode:
			g.b.inUseEncode -= g.n
		case Decode:
			g.b.inUseDecode -= g.n
		}
	})
}

// Snapshot reports the current counters, primarily for /capabilities.
type Snapshot struct {
	MaxEncode    int `json:"max_encode"`
	MaxDecode    int `json:"max_decode"`
	InUseEncode  int `json:"in_use_encode"`
	InUseDecode  int `json:"in_use_decode"`
}

// Stats returns a point-in-time snapshot of the budget.
func (b *Budget) Stats() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		MaxEncode:   b.maxEncode,
		MaxDecode:   b.maxDecode,
		InUseEncode: b.inUseEncode,
		InUseDecode: b.inUseDecode,
	}
}

// SetLimits updates the configured caps at runtime (e.g. on config reload).
// It does not evict existing leases; it only affects future TryAcquire
// calls.
func (b *Budget) SetLimits(maxEncode, maxDecode int) error {
	if maxEncode < 0 || maxDecode < 0 {
		return fmt.Errorf("vpu budget limits must be non-negative, got encode=%d decode=%d", maxEncode, maxDecode)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maxEncode = maxEncode
	b.maxDecode = maxDecode
	return nil
}
