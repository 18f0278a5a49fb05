package ir

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces identifiers for sync runs and locally created blocks.
// Implemented by UUIDv7Generator (production) and SequenceGenerator (tests).
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 identifiers.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequenceGenerator returns "<prefix>-1", "<prefix>-2", ... in order.
//
// This enables deterministic test execution and golden trace comparison.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	seq    int64
}

// NewSequenceGenerator creates a generator whose first id is "<prefix>-1".
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next id in sequence.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%d", g.prefix, g.seq)
}

// Reset restarts the sequence so the next id is "<prefix>-1" again.
func (g *SequenceGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
