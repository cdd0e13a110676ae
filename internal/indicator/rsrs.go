package indicator

import "math"

// Default RSRS window lengths.
const (
	DefaultRSRSPeriod = 18
	DefaultDistPeriod = 250
)

// SignalBar is the RSRS output for one bar. NaN fields are not yet
// available.
type SignalBar struct {
	Slope       float64
	Intercept   float64
	RSquared    float64 // squared corr of the deviation averages; may exceed 1
	ZScore      float64
	Revised     float64
	RightSkewed float64
}

// EmptySignalBar returns a SignalBar with every field unavailable.
func EmptySignalBar() SignalBar {
	nan := math.NaN()
	return SignalBar{Slope: nan, Intercept: nan, RSquared: nan, ZScore: nan, Revised: nan, RightSkewed: nan}
}

// RSRS computes the resistance-support relative strength family. Each bar's
// high and low are taken as deviations from their own N-bar moving means;
// the N-bar averages of the deviation products give the slope of high on
// low. The slope's distribution over M bars gives the z-score family.
type RSRS struct {
	n, m  int
	hl    *PairWindow // N-bar means and population variances of high, low
	cross *Window     // N-bar average of dev_high*dev_low
	lowSq *Window     // N-bar average of dev_low²
	beta  *Window     // M-bar slope distribution
	count int
	slope float64
}

// NewRSRS creates an RSRS computer with regression window n and slope
// distribution window m.
func NewRSRS(n, m int) *RSRS {
	n, m = max(n, 1), max(m, 1)
	return &RSRS{
		n:     n,
		m:     m,
		hl:    NewPairWindow(n),
		cross: NewWindow(n),
		lowSq: NewWindow(n),
		beta:  NewWindow(m),
		slope: math.NaN(),
	}
}

// Periods returns the regression and distribution window lengths.
func (r *RSRS) Periods() (n, m int) { return r.n, r.m }

// Warmup is the number of bars that must be observed before any output is
// published: the slope needs 2N-1 bars (N for the first deviation, N
// deviations for their average), and nothing is published before M bars.
func (r *RSRS) Warmup() int { return max(2*r.n-1, r.m) }

// Count returns the number of bars observed.
func (r *RSRS) Count() int { return r.count }

// Slope returns the latest regression slope regardless of warmup. It is NaN
// until 2N-1 bars have been seen.
func (r *RSRS) Slope() float64 { return r.slope }

// Update advances the computation by one bar and returns that bar's output.
func (r *RSRS) Update(high, low float64) SignalBar {
	r.count++
	r.hl.Push(high, low)

	out := EmptySignalBar()
	if !r.hl.Full() {
		return out
	}

	meanHigh := r.hl.MeanX()
	meanLow := r.hl.MeanY()
	devHigh := high - meanHigh
	devLow := low - meanLow
	r.cross.Push(devHigh * devLow)
	r.lowSq.Push(devLow * devLow)
	if !r.cross.Full() {
		return out
	}

	cov := r.cross.Mean()
	varLow := r.lowSq.Mean()
	stdHigh := math.Sqrt(r.hl.VarX())
	stdLow := math.Sqrt(r.hl.VarY())

	slope := cov / (varLow + Epsilon)
	intercept := meanHigh - slope*meanLow
	corr := cov / (stdHigh*stdLow + Epsilon)
	rSquared := corr * corr

	r.slope = slope
	r.beta.Push(slope)

	if r.count < r.Warmup() {
		return out
	}

	out.Slope = slope
	out.Intercept = intercept
	out.RSquared = rSquared

	if r.beta.Full() {
		z := (slope - r.beta.Mean()) / (r.beta.Std() + Epsilon)
		out.ZScore = z
		out.Revised = z * rSquared
		out.RightSkewed = z * rSquared * slope
	}
	return out
}

// Compute runs a fresh RSRS over complete high/low series. The two slices
// must have equal length.
func Compute(highs, lows []float64, n, m int) []SignalBar {
	r := NewRSRS(n, m)
	out := make([]SignalBar, min(len(highs), len(lows)))
	for i := range out {
		out[i] = r.Update(highs[i], lows[i])
	}
	return out
}
