package backtest

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	ComparisonFile    = "portfolio_comparison.csv"
	ReportFile        = "backtest_report.md"
	RollingSharpeFile = "rolling_sharpe.csv"
)

var comparisonHeader = []string{
	"Portfolio",
	"Total Return (%)",
	"Annualized Return (%)",
	"Volatility (%)",
	"Sharpe Ratio",
	"Max Drawdown (%)",
	"Num Stocks",
	"Rolling Sharpe Min",
	"Rolling Sharpe Median",
	"Rolling Sharpe Last",
}

var rollingHeader = []string{"Portfolio", "Date", "Rolling Sharpe"}

type ComparisonRow struct {
	Portfolio           string
	TotalReturnPct      float64
	AnnualizedReturnPct float64
	VolatilityPct       float64
	Sharpe              float64
	MaxDrawdownPct      float64
	NumStocks           int
	Rolling             RollingStats
}

func (r ComparisonRow) record() []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }
	return []string{
		r.Portfolio,
		f(r.TotalReturnPct),
		f(r.AnnualizedReturnPct),
		f(r.VolatilityPct),
		f(r.Sharpe),
		f(r.MaxDrawdownPct),
		strconv.Itoa(r.NumStocks),
		r.rolling(r.Rolling.Min, f),
		r.rolling(r.Rolling.Median, f),
		r.rolling(r.Rolling.Last, f),
	}
}

// rolling formats a rolling Sharpe cell, blank when the replay was shorter
// than the window.
func (r ComparisonRow) rolling(v float64, f func(float64) string) string {
	if r.Rolling.Points == 0 {
		return ""
	}
	return f(v)
}

// Compare builds one row per result, in input order.
func Compare(results []*Result) []ComparisonRow {
	rows := make([]ComparisonRow, 0, len(results))
	for _, r := range results {
		m := r.Metrics
		// a window below 2 leaves the rolling cells blank
		rs, _ := r.RollingSharpeStats()
		rows = append(rows, ComparisonRow{
			Portfolio:           r.Portfolio.Name,
			TotalReturnPct:      m.TotalReturn * 100,
			AnnualizedReturnPct: m.AnnualizedReturn * 100,
			VolatilityPct:       m.AnnualizedVolatility * 100,
			Sharpe:              m.Sharpe,
			MaxDrawdownPct:      m.MaxDrawdown * 100,
			NumStocks:           m.NumStocks,
			Rolling:             rs,
		})
	}
	return rows
}

// WriteReport writes the comparison CSV, a markdown summary and the rolling
// Sharpe series (RollingSharpeFile) into dir, and returns the first two paths.
func WriteReport(dir string, results []*Result) (csvPath, mdPath string, err error) {
	if len(results) == 0 {
		return "", "", fmt.Errorf("no backtest results to report")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create report dir: %w", err)
	}
	rows := Compare(results)

	csvPath = filepath.Join(dir, ComparisonFile)
	if err := writeComparisonCSV(csvPath, rows); err != nil {
		return "", "", err
	}

	if err := writeRollingCSV(filepath.Join(dir, RollingSharpeFile), results); err != nil {
		return "", "", err
	}

	mdPath = filepath.Join(dir, ReportFile)
	if err := os.WriteFile(mdPath, []byte(Markdown(results)), 0o644); err != nil {
		return "", "", fmt.Errorf("write %s: %w", mdPath, err)
	}
	return csvPath, mdPath, nil
}

func writeComparisonCSV(path string, rows []ComparisonRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(comparisonHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		if err := w.Write(r.record()); err != nil {
			return fmt.Errorf("write row %s: %w", r.Portfolio, err)
		}
	}
	w.Flush()
	return w.Error()
}

// writeRollingCSV writes one row per portfolio and window end date.
func writeRollingCSV(path string, results []*Result) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(rollingHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range results {
		points, err := r.RollingSharpe(0)
		if err != nil {
			return fmt.Errorf("rolling sharpe %s: %w", r.Portfolio.Name, err)
		}
		for _, p := range points {
			rec := []string{r.Portfolio.Name, p.Date.Format(dateLayout), strconv.FormatFloat(p.Sharpe, 'f', 4, 64)}
			if err := w.Write(rec); err != nil {
				return fmt.Errorf("write row %s: %w", r.Portfolio.Name, err)
			}
		}
	}
	w.Flush()
	return w.Error()
}

// Markdown renders every summary followed by the comparison table.
func Markdown(results []*Result) string {
	var b strings.Builder
	b.WriteString("# Backtest Report\n\n")
	for _, r := range results {
		fmt.Fprintf(&b, "## %s\n\n```\n%s```\n\n", r.Portfolio.Name, r.Summary())
	}

	b.WriteString("## Comparison\n\n")
	b.WriteString("| " + strings.Join(comparisonHeader, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat("---|", len(comparisonHeader)) + "\n")
	for _, row := range Compare(results) {
		cell := func(v float64) string {
			if row.Rolling.Points == 0 {
				return "-"
			}
			return fmt.Sprintf("%.3f", v)
		}
		fmt.Fprintf(&b, "| %s | %.2f | %.2f | %.2f | %.3f | %.2f | %d | %s | %s | %s |\n",
			row.Portfolio, row.TotalReturnPct, row.AnnualizedReturnPct, row.VolatilityPct,
			row.Sharpe, row.MaxDrawdownPct, row.NumStocks,
			cell(row.Rolling.Min), cell(row.Rolling.Median), cell(row.Rolling.Last))
	}
	return b.String()
}
