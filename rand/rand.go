package rand

import (
	mrand "math/rand"
	"sync"

	"github.com/pkg/errors"
	"github.com/seehuhn/mt19937"
)

// A Generator uses a goroutine to populate batches of random numbers from a
// Mersenne twister. It implements golang.org/x/exp/rand.Source so it can be
// handed directly to gonum's distuv distributions as their Src.
type Generator struct {
	ch   chan uint64
	rnd  *mrand.Rand
	stop chan struct{}
	once sync.Once
}

// source64 adapts the generator to math/rand.Source64 (whose Seed takes an
// int64) for the stdlib ziggurat used by NormFloat64.
type source64 struct {
	g *Generator
}

func (s source64) Int63() int64   { return s.g.Int63() }
func (s source64) Uint64() uint64 { return s.g.Uint64() }
func (s source64) Seed(int64)     {}

func startGenerator(r *mt19937.MT19937) *Generator {
	numChan := make(chan uint64, 1024)
	stop := make(chan struct{})

	go func() {
		for {
			select {
			case numChan <- r.Uint64():
			case <-stop:
				return
			}
		}
	}()

	g := &Generator{
		ch:   numChan,
		stop: stop,
	}
	g.rnd = mrand.New(source64{g})

	return g
}

// NewGenerator starts a new background PRNG based on the given seed
func NewGenerator(seed int64) (*Generator, error) {
	r := mt19937.New()
	r.Seed(seed)
	return startGenerator(r), nil
}

// NewGeneratorSlice starts a new background PRNG seeded from an entire slice
// of values (the canonical MT19937 seeding method).
func NewGeneratorSlice(seed []uint64) (*Generator, error) {
	if len(seed) < 1 {
		return nil, errors.Errorf("Seed slice must be non-empty")
	}
	r := mt19937.New()
	r.SeedFromSlice(seed)
	return startGenerator(r), nil
}

// Close stops the prefetch goroutine. Safe to call more than once; draws
// made after Close may block once the buffered values drain.
func (g *Generator) Close() {
	g.once.Do(func() { close(g.stop) })
}

// Uint64 returns the next raw 64 bits from the twister.
func (g *Generator) Uint64() uint64 {
	return <-g.ch
}

// Int63 provides the same interface as Go's math/rand, but with pre-generation.
func (g *Generator) Int63() int64 {
	return int64(g.Uint64() & 0x7fffffffffffffff)
}

// Seed satisfies exp/rand.Source. The generator is seeded once at
// construction, so reseeding is ignored.
func (g *Generator) Seed(seed uint64) {}

// Int63n is a copy of the current Go code
func (g *Generator) Int63n(n int64) int64 {
	if n <= 0 {
		panic("invalid argument to Int63n")
	}

	if n&(n-1) == 0 { // n is power of two, can mask
		return g.Int63() & (n - 1)
	}

	max := int64((1 << 63) - 1 - (1<<63)%uint64(n))
	v := g.Int63()
	for v > max {
		v = g.Int63()
	}

	return v % n
}

// Intn mirrors math/rand.Intn for non-negative n
func (g *Generator) Intn(n int) int {
	return int(g.Int63n(int64(n)))
}

// Float64 uses the commented, simpler implmentation since we don't have the
// same support requirements for users
func (g *Generator) Float64() float64 {
	// See the Go lang comments for Rand Float64 implementation for details
	return float64(g.Int63n(1<<53)) / (1 << 53)
}

// NormFloat64 returns a standard normal draw (math/rand's ziggurat layered
// over our twister source).
func (g *Generator) NormFloat64() float64 {
	return g.rnd.NormFloat64()
}
