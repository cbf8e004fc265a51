// Package ids provides the identifier generators used for datasets, distributions and fallback filenames.
package ids

import (
	"io"
	"math/rand"
	"sync"

	"github.com/google/uuid"
)

// Generator returns a new unique identifier on each call.
type Generator interface {
	NewID() string
}

// Random generates random (version 4) UUIDs.
type Random struct{}

// NewID returns a new random UUID.
func (Random) NewID() string {
	return uuid.NewString()
}

// Seeded generates version 4 UUIDs from a deterministic source.
// It is safe for concurrent use.
type Seeded struct {
	mu  sync.Mutex
	src io.Reader
}

// NewSeeded returns a generator that yields the same sequence of UUIDs for the same seed.
func NewSeeded(seed int64) *Seeded {
	//nolint:gosec // Reproducible identifiers, not security sensitive.
	return &Seeded{src: rand.New(rand.NewSource(seed))}
}

// NewID returns the next UUID of the sequence.
func (g *Seeded) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	// Reading from a math/rand source never fails.
	return uuid.Must(uuid.NewRandomFromReader(g.src)).String()
}
