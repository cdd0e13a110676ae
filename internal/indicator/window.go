// Package indicator implements streaming technical indicators that are
// advanced explicitly, one bar at a time, by the caller.
package indicator

import (
	"math"

	"github.com/gammazero/deque"
)

// Epsilon is added to every denominator that can reach zero. Near-zero
// denominators produce near-zero or large values, never errors.
const Epsilon = 1e-12

// Available reports whether v holds a usable value. NaN marks "not yet
// available" throughout this package.
func Available(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ---------------------------------------------------------------------------
// Window: rolling mean and population variance of one stream
// ---------------------------------------------------------------------------

// Window keeps the last size values of a stream and their running mean and
// sum of squared deviations. Updates are sliding Welford steps; the
// accumulators are recomputed from the buffer once every size pushes so the
// result depends only on the input sequence.
type Window struct {
	size  int
	buf   deque.Deque[float64]
	mean  float64
	m2    float64
	since int
}

// NewWindow creates a Window over the last size values. Sizes below 1 are
// treated as 1.
func NewWindow(size int) *Window {
	return &Window{size: max(size, 1)}
}

// Push adds x, evicting the oldest value once the window is full.
func (w *Window) Push(x float64) {
	if w.buf.Len() == w.size {
		w.remove(w.buf.PopFront())
	}
	w.buf.PushBack(x)
	n := float64(w.buf.Len())
	d := x - w.mean
	w.mean += d / n
	w.m2 += d * (x - w.mean)

	w.since++
	if w.since >= w.size {
		w.resync()
	}
}

func (w *Window) remove(x float64) {
	n := float64(w.buf.Len())
	if n == 0 {
		w.mean, w.m2 = 0, 0
		return
	}
	d := x - w.mean
	w.mean -= d / n
	w.m2 -= d * (x - w.mean)
}

func (w *Window) resync() {
	w.since = 0
	n := w.buf.Len()
	if n == 0 {
		w.mean, w.m2 = 0, 0
		return
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += w.buf.At(i)
	}
	mean := sum / float64(n)
	var m2 float64
	for i := 0; i < n; i++ {
		d := w.buf.At(i) - mean
		m2 += d * d
	}
	w.mean, w.m2 = mean, m2
}

// Len returns the number of values currently held.
func (w *Window) Len() int { return w.buf.Len() }

// Size returns the window capacity.
func (w *Window) Size() int { return w.size }

// Full reports whether the window holds size values.
func (w *Window) Full() bool { return w.buf.Len() == w.size }

// Mean returns the mean of the held values.
func (w *Window) Mean() float64 { return w.mean }

// Variance returns the population variance of the held values.
func (w *Window) Variance() float64 {
	if w.buf.Len() == 0 {
		return 0
	}
	return math.Max(w.m2, 0) / float64(w.buf.Len())
}

// Std returns the population standard deviation of the held values.
func (w *Window) Std() float64 { return math.Sqrt(w.Variance()) }

// ---------------------------------------------------------------------------
// PairWindow: rolling means and variances of two streams
// ---------------------------------------------------------------------------

type pair struct{ x, y float64 }

// PairWindow keeps the last size (x, y) pairs with the running mean and
// population variance of each stream, under the same update and resync
// rules as Window.
type PairWindow struct {
	size   int
	buf    deque.Deque[pair]
	mx, my float64
	m2x    float64
	m2y    float64
	since  int
}

// NewPairWindow creates a PairWindow over the last size pairs.
func NewPairWindow(size int) *PairWindow {
	return &PairWindow{size: max(size, 1)}
}

// Push adds the pair (x, y).
func (c *PairWindow) Push(x, y float64) {
	if c.buf.Len() == c.size {
		c.remove(c.buf.PopFront())
	}
	c.buf.PushBack(pair{x, y})
	n := float64(c.buf.Len())
	dx := x - c.mx
	dy := y - c.my
	c.mx += dx / n
	c.my += dy / n
	c.m2x += dx * (x - c.mx)
	c.m2y += dy * (y - c.my)

	c.since++
	if c.since >= c.size {
		c.resync()
	}
}

func (c *PairWindow) remove(p pair) {
	n := float64(c.buf.Len())
	if n == 0 {
		c.mx, c.my, c.m2x, c.m2y = 0, 0, 0, 0
		return
	}
	dx := p.x - c.mx
	dy := p.y - c.my
	c.mx -= dx / n
	c.my -= dy / n
	c.m2x -= dx * (p.x - c.mx)
	c.m2y -= dy * (p.y - c.my)
}

func (c *PairWindow) resync() {
	c.since = 0
	n := c.buf.Len()
	if n == 0 {
		c.mx, c.my, c.m2x, c.m2y = 0, 0, 0, 0
		return
	}
	var sx, sy float64
	for i := 0; i < n; i++ {
		p := c.buf.At(i)
		sx += p.x
		sy += p.y
	}
	mx := sx / float64(n)
	my := sy / float64(n)
	var m2x, m2y float64
	for i := 0; i < n; i++ {
		p := c.buf.At(i)
		dx := p.x - mx
		dy := p.y - my
		m2x += dx * dx
		m2y += dy * dy
	}
	c.mx, c.my, c.m2x, c.m2y = mx, my, m2x, m2y
}

// Len returns the number of pairs held.
func (c *PairWindow) Len() int { return c.buf.Len() }

// Full reports whether the window holds size pairs.
func (c *PairWindow) Full() bool { return c.buf.Len() == c.size }

// MeanX returns the mean of the x stream.
func (c *PairWindow) MeanX() float64 { return c.mx }

// MeanY returns the mean of the y stream.
func (c *PairWindow) MeanY() float64 { return c.my }

// VarX returns the population variance of x.
func (c *PairWindow) VarX() float64 { return c.variance(c.m2x) }

// VarY returns the population variance of y.
func (c *PairWindow) VarY() float64 { return c.variance(c.m2y) }

func (c *PairWindow) variance(m2 float64) float64 {
	n := c.buf.Len()
	if n == 0 {
		return 0
	}
	return math.Max(m2, 0) / float64(n)
}
