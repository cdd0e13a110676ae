package report

import (
	"fmt"
	"math"
	"strings"

	"rsrs/internal/analysis"
)

// Undefined is shown for metrics that could not be computed.
const Undefined = "undefined"

// FormatMetric formats v with three decimals, or Undefined for NaN and
// infinities.
func FormatMetric(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Undefined
	}
	return fmt.Sprintf("%.3f", v)
}

// FormatInt formats an integer with comma separators.
func FormatInt(n int) string {
	if n < 0 {
		return "-" + FormatInt(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	start := len(s) % 3
	if start > 0 {
		b.WriteString(s[:start])
	}
	for i := start; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatIC formats an IC result, showing Undefined when it is not defined.
func FormatIC(r analysis.ICResult) string {
	if !r.Defined {
		return Undefined
	}
	return FormatMetric(r.Value)
}
