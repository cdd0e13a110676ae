package indicator

import (
	"math"

	"github.com/gammazero/deque"
)

// DefaultRankPeriod is the look-back of the rank transform used by the rank
// strategy.
const DefaultRankPeriod = 252

// PercentRank reports, for each new value, the fraction of the last period
// values (the new one included) that are strictly below it.
type PercentRank struct {
	period int
	buf    deque.Deque[float64]
}

// NewPercentRank creates a PercentRank over period values.
func NewPercentRank(period int) *PercentRank {
	return &PercentRank{period: max(period, 1)}
}

// Push adds x and returns its rank. Unavailable inputs are not added and
// yield NaN, as does every push before the window is full.
func (p *PercentRank) Push(x float64) float64 {
	if !Available(x) {
		return math.NaN()
	}
	if p.buf.Len() == p.period {
		p.buf.PopFront()
	}
	p.buf.PushBack(x)
	if p.buf.Len() < p.period {
		return math.NaN()
	}
	below := 0
	for i := 0; i < p.buf.Len(); i++ {
		if p.buf.At(i) < x {
			below++
		}
	}
	return float64(below) / float64(p.period)
}

// PercentChange reports x[t]/x[t-period] - 1.
type PercentChange struct {
	period int
	buf    deque.Deque[float64]
}

// NewPercentChange creates a PercentChange with the given lag.
func NewPercentChange(period int) *PercentChange {
	return &PercentChange{period: max(period, 1)}
}

// Push adds x and returns the change against the value period pushes ago,
// or NaN while that value does not exist yet.
func (p *PercentChange) Push(x float64) float64 {
	p.buf.PushBack(x)
	if p.buf.Len() > p.period+1 {
		p.buf.PopFront()
	}
	if p.buf.Len() < p.period+1 {
		return math.NaN()
	}
	return x/p.buf.Front() - 1
}

// Returns computes single-period percent changes over a full series; the
// first value is NaN.
func Returns(values []float64) []float64 {
	pc := NewPercentChange(1)
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = pc.Push(v)
	}
	return out
}
