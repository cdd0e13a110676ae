// Package analysis measures how well a signal series predicts future
// returns.
package analysis

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

var (
	// ErrNoSignal is returned when a strategy exposes no signal to evaluate.
	// It is a configuration error and is raised before any bar is processed.
	ErrNoSignal = errors.New("strategy exposes no signal")

	// ErrLengthMismatch is returned when the signal and return series differ
	// in length.
	ErrLengthMismatch = errors.New("signal and returns differ in length")
)

// Default IC settings.
const (
	DefaultICPeriod     = 10
	DefaultICMinSamples = 15
)

// Series is a read-only per-bar series; NaN marks undefined bars.
type Series interface {
	ValueAt(i int) float64
	Len() int
}

// Values adapts a float slice to Series.
type Values []float64

// ValueAt implements Series.
func (v Values) ValueAt(i int) float64 {
	if i < 0 || i >= len(v) {
		return math.NaN()
	}
	return v[i]
}

// Len implements Series.
func (v Values) Len() int { return len(v) }

// Precheck fails with ErrNoSignal when s is nil.
func Precheck(s Series) error {
	if s == nil {
		return ErrNoSignal
	}
	return nil
}

// ICResult is the information coefficient of one signal.
type ICResult struct {
	Period  int
	Value   float64 // NaN when not Defined
	Samples int
	Defined bool
}

// Key names the metric in reports, e.g. "ic_spearman_p10".
func (r ICResult) Key() string {
	return fmt.Sprintf("ic_spearman_p%d", r.Period)
}

// ICAnalyzer computes the Spearman rank correlation between a signal and the
// return Period bars ahead.
type ICAnalyzer struct {
	Period     int
	MinSamples int
	Log        *slog.Logger // nil uses slog.Default()
}

// NewICAnalyzer creates an ICAnalyzer. Non-positive arguments take the
// defaults.
func NewICAnalyzer(period, minSamples int) *ICAnalyzer {
	if period <= 0 {
		period = DefaultICPeriod
	}
	if minSamples <= 0 {
		minSamples = DefaultICMinSamples
	}
	return &ICAnalyzer{Period: period, MinSamples: minSamples}
}

// Evaluate pairs signal[t] with returns[t+Period] and correlates them. Bars
// where the signal, the bar's own return or the future return is NaN or
// infinite are dropped. Too few pairs yield an undefined result, not an
// error.
func (a *ICAnalyzer) Evaluate(signal Series, returns []float64) (ICResult, error) {
	res := ICResult{Period: a.Period, Value: math.NaN()}
	if err := Precheck(signal); err != nil {
		return res, err
	}
	if signal.Len() != len(returns) {
		return res, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, signal.Len(), len(returns))
	}

	var xs, ys []float64
	for t := 0; t+a.Period < len(returns); t++ {
		s, f := signal.ValueAt(t), returns[t+a.Period]
		if !finite(s) || !finite(returns[t]) || !finite(f) {
			continue
		}
		xs = append(xs, s)
		ys = append(ys, f)
	}
	res.Samples = len(xs)

	log := a.Log
	if log == nil {
		log = slog.Default()
	}
	if res.Samples < a.MinSamples {
		log.Warn("not enough samples for IC", "key", res.Key(),
			"samples", res.Samples, "min", a.MinSamples)
		return res, nil
	}

	ic := Spearman(xs, ys)
	if !finite(ic) {
		log.Warn("IC undefined for constant series", "key", res.Key(), "samples", res.Samples)
		return res, nil
	}
	res.Value = ic
	res.Defined = true
	return res, nil
}

// Spearman returns the Spearman rank correlation of x and y: the Pearson
// correlation of their average ranks.
func Spearman(x, y []float64) float64 {
	if len(x) != len(y) || len(x) < 2 {
		return math.NaN()
	}
	return stat.Correlation(Ranks(x), Ranks(y), nil)
}

// Ranks returns 1-based ranks of x, giving tied values the mean of the ranks
// they span.
func Ranks(x []float64) []float64 {
	idx := make([]int, len(x))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return x[idx[a]] < x[idx[b]] })

	ranks := make([]float64, len(x))
	for i := 0; i < len(idx); {
		j := i + 1
		for j < len(idx) && x[idx[j]] == x[idx[i]] {
			j++
		}
		avg := float64(i+j+1) / 2 // mean of ranks i+1..j
		for k := i; k < j; k++ {
			ranks[idx[k]] = avg
		}
		i = j
	}
	return ranks
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
