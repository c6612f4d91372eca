package buffer

import "gonum.org/v1/gonum/floats"

// CircularFloat is a fixed-size circular buffer of floats used to track a
// moving window of per-step statistics (e.g. recent acceptance
// probabilities during step-size adaptation).
type CircularFloat struct {
	buffer    []float64 // actual storage
	pos       int       // Current position in buffer
	BufSize   int       // BufSize is the fixed number of floats maintained in memory
	Count     int       // Count is the number of floats in memory. Will always be <= BufSize
	TotalSeen int64     // TotalSeen is the total number of times Add has been called
}

// NewCircularFloat creates a new circular buffer holding totalSize values.
func NewCircularFloat(totalSize int) *CircularFloat {
	return &CircularFloat{
		buffer:  make([]float64, totalSize),
		pos:     0,
		BufSize: totalSize,
		Count:   0,
	}
}

// Internal: return the next array position
func (c *CircularFloat) nextPos() int {
	return (c.pos + 1) % c.BufSize
}

// Add appends the given value to the buffer, overwriting the oldest entry
func (c *CircularFloat) Add(v float64) error {
	c.TotalSeen++

	c.buffer[c.pos] = v

	c.pos = c.nextPos()

	c.Count++
	if c.Count > c.BufSize {
		c.Count = c.BufSize // max out
	}

	return nil
}

// Full is true once the window has wrapped at least once.
func (c *CircularFloat) Full() bool {
	return c.Count >= c.BufSize
}

// Mean returns the average of the values currently held. An empty buffer
// has mean 0.
func (c *CircularFloat) Mean() float64 {
	if c.Count < 1 {
		return 0.0
	}
	if c.Count < c.BufSize {
		return floats.Sum(c.buffer[:c.Count]) / float64(c.Count)
	}
	return floats.Sum(c.buffer) / float64(c.BufSize)
}
