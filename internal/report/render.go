package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/samber/lo"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Padding(0, 1).Align(lipgloss.Right)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// metric is one row of the comparison: a label, its machine key and how to
// read it from a Performance.
type metric struct {
	label string
	key   string
	cell  func(p Performance) string
	raw   func(p Performance) string
}

func floatMetric(label, key string, get func(p Performance) float64) metric {
	return metric{
		label: label,
		key:   key,
		cell:  func(p Performance) string { return FormatMetric(get(p)) },
		raw:   func(p Performance) string { return FormatMetric(get(p)) },
	}
}

func intMetric(label, key string, get func(p Performance) int) metric {
	return metric{
		label: label,
		key:   key,
		cell:  func(p Performance) string { return FormatInt(get(p)) },
		raw:   func(p Performance) string { return strconv.Itoa(get(p)) },
	}
}

func metrics(icPeriod int) []metric {
	icKey := fmt.Sprintf("ic_spearman_p%d", icPeriod)
	return []metric{
		floatMetric("Total return (%)", "total_return_pct", func(p Performance) float64 { return p.TotalReturnPct }),
		floatMetric("Annual return (%)", "annual_return_pct", func(p Performance) float64 { return p.AnnualReturnPct }),
		floatMetric("Max drawdown (%)", "max_drawdown_pct", func(p Performance) float64 { return p.MaxDrawdownPct }),
		floatMetric("Sharpe ratio", "sharpe", func(p Performance) float64 { return p.Sharpe }),
		floatMetric("Calmar ratio", "calmar", func(p Performance) float64 { return p.Calmar }),
		floatMetric("Sortino ratio", "sortino", func(p Performance) float64 { return p.Sortino }),
		floatMetric("Return skewness", "skewness", func(p Performance) float64 { return p.Skewness }),
		floatMetric("Return kurtosis", "kurtosis", func(p Performance) float64 { return p.Kurtosis }),
		intMetric("Total trades", "total_trades", func(p Performance) int { return p.TotalTrades }),
		floatMetric("Win rate (%)", "win_rate_pct", func(p Performance) float64 { return p.WinRatePct }),
		floatMetric("Avg win", "avg_win", func(p Performance) float64 { return p.AvgWin }),
		floatMetric("Avg loss", "avg_loss", func(p Performance) float64 { return p.AvgLoss }),
		floatMetric("P/L ratio", "pl_ratio", func(p Performance) float64 { return p.ProfitLossRatio }),
		{
			label: fmt.Sprintf("IC (Spearman, %d bars)", icPeriod),
			key:   icKey,
			cell:  func(p Performance) string { return FormatIC(p.IC) },
			raw:   func(p Performance) string { return FormatIC(p.IC) },
		},
		floatMetric("End equity", "end_equity", func(p Performance) float64 { return p.EndEquity }),
	}
}

func icPeriodOf(reports []Performance) int {
	if len(reports) == 0 || reports[0].IC.Period <= 0 {
		return 10
	}
	return reports[0].IC.Period
}

// RenderTable writes the reports as a table with one column per strategy
// and one row per metric.
func RenderTable(w io.Writer, reports []Performance) error {
	ms := metrics(icPeriodOf(reports))
	headers := append([]string{"Metric"}, lo.Map(reports, func(p Performance, _ int) string { return p.Strategy })...)
	rows := lo.Map(ms, func(m metric, _ int) []string {
		return append([]string{m.label}, lo.Map(reports, func(p Performance, _ int) string { return m.cell(p) })...)
	})

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0:
				return labelStyle
			default:
				return cellStyle
			}
		})

	if _, err := fmt.Fprintln(w, t.String()); err != nil {
		return fmt.Errorf("writing report table: %w", err)
	}
	return nil
}

// WriteCSV writes one row per strategy with a column per metric key.
func WriteCSV(w io.Writer, reports []Performance) error {
	ms := metrics(icPeriodOf(reports))
	cw := csv.NewWriter(w)

	header := append([]string{"strategy"}, lo.Map(ms, func(m metric, _ int) string { return m.key })...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing report header: %w", err)
	}
	for _, p := range reports {
		rec := append([]string{p.Strategy}, lo.Map(ms, func(m metric, _ int) string { return m.raw(p) })...)
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("writing report row for %s: %w", p.Strategy, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
