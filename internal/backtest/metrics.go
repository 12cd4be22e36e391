package backtest

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"
)

type Metrics struct {
	TotalReturn          float64 `json:"total_return"`
	AnnualizedReturn     float64 `json:"annualized_return"`
	InitialCapital       float64 `json:"initial_capital"`
	FinalValue           float64 `json:"final_value"`
	DailyVolatility      float64 `json:"daily_volatility"`
	AnnualizedVolatility float64 `json:"annualized_volatility"`
	MaxDrawdown          float64 `json:"max_drawdown"`
	Sharpe               float64 `json:"sharpe_ratio"`
	NumTradingDays       int     `json:"num_trading_days"`
	WinRate              float64 `json:"win_rate"`
	NumStocks            int     `json:"num_stocks"`
}

// Result is one portfolio's replay. Returns, Values and Dates share an index:
// Returns[i] is the portfolio return realized on Dates[i].
type Result struct {
	Portfolio    Portfolio
	Tickers      []string
	Weights      []float64
	Dates        []time.Time
	AssetReturns [][]float64
	Returns      []float64
	Values       []float64
	Metrics      Metrics

	settings Settings
}

type RollingPoint struct {
	Date   time.Time
	Sharpe float64
}

// Compute derives per-asset returns, the weighted portfolio return series,
// the value series and summary metrics from an aligned price matrix.
func (p Portfolio) Compute(m *PriceMatrix, s Settings) (*Result, error) {
	if len(m.Dates) < 2 {
		return nil, fmt.Errorf("%w: need at least two aligned trading days", ErrNoPriceData)
	}
	if p.InitialCapital <= 0 {
		return nil, fmt.Errorf("initial capital must be positive, got %v", p.InitialCapital)
	}
	weights, err := p.ResolveWeights(m.Tickers)
	if err != nil {
		return nil, err
	}

	n := len(m.Dates) - 1
	res := &Result{
		Portfolio:    p,
		Tickers:      m.Tickers,
		Weights:      weights,
		Dates:        m.Dates[1:],
		AssetReturns: make([][]float64, n),
		Returns:      make([]float64, n),
		Values:       make([]float64, n),
		settings:     s,
	}
	value := p.InitialCapital
	for i := 0; i < n; i++ {
		prev, cur := m.Closes[i], m.Closes[i+1]
		row := make([]float64, len(m.Tickers))
		var r float64
		for j := range row {
			row[j] = cur[j]/prev[j] - 1
			r += weights[j] * row[j]
		}
		value *= 1 + r
		res.AssetReturns[i] = row
		res.Returns[i] = r
		res.Values[i] = value
	}
	res.Metrics = computeMetrics(res.Returns, res.Values, p.InitialCapital, len(m.Tickers), s)
	return res, nil
}

func computeMetrics(returns, values []float64, capital float64, stocks int, s Settings) Metrics {
	days := float64(s.TradingDaysPerYear)
	n := len(returns)
	m := Metrics{
		InitialCapital: capital,
		FinalValue:     values[n-1],
		NumTradingDays: n,
		NumStocks:      stocks,
	}
	m.TotalReturn = m.FinalValue/capital - 1
	m.AnnualizedReturn = math.Pow(1+m.TotalReturn, days/float64(n)) - 1

	if n >= 2 {
		m.DailyVolatility = stat.StdDev(returns, nil)
	}
	m.AnnualizedVolatility = m.DailyVolatility * math.Sqrt(days)
	if m.AnnualizedVolatility > 0 {
		m.Sharpe = (stat.Mean(returns, nil)*days - s.RiskFreeRate) / m.AnnualizedVolatility
	}

	cum, peak := 1.0, 1.0
	wins := 0
	for i, r := range returns {
		cum *= 1 + r
		if i == 0 || cum > peak {
			peak = cum
		}
		if dd := (cum - peak) / peak; dd < m.MaxDrawdown {
			m.MaxDrawdown = dd
		}
		if r > 0 {
			wins++
		}
	}
	m.WinRate = float64(wins) / float64(n)
	return m
}

// RollingSharpe recomputes the annualized Sharpe ratio over every trailing
// window of daily returns. A non-positive window uses the configured default.
func (r *Result) RollingSharpe(window int) ([]RollingPoint, error) {
	if window <= 0 {
		window = r.settings.RollingWindow
	}
	if window < 2 {
		return nil, fmt.Errorf("rolling window must be at least 2, got %d", window)
	}
	if len(r.Returns) < window {
		return nil, nil
	}
	days := float64(r.settings.TradingDaysPerYear)
	out := make([]RollingPoint, 0, len(r.Returns)-window+1)
	for end := window; end <= len(r.Returns); end++ {
		slice := r.Returns[end-window : end]
		mean, std := stat.MeanStdDev(slice, nil)
		var sharpe float64
		if std > 0 {
			sharpe = (mean*days - r.settings.RiskFreeRate) / (std * math.Sqrt(days))
		}
		out = append(out, RollingPoint{Date: r.Dates[end-1], Sharpe: sharpe})
	}
	return out, nil
}

// RollingStats summarizes the rolling Sharpe series over the configured
// window. Points is zero when the replay is shorter than the window.
type RollingStats struct {
	Window int
	Points int
	Min    float64
	Median float64
	Last   float64
}

// RollingSharpeStats reduces RollingSharpe over the configured window to its
// minimum, median and most recent value.
func (r *Result) RollingSharpeStats() (RollingStats, error) {
	points, err := r.RollingSharpe(0)
	if err != nil {
		return RollingStats{}, err
	}
	st := RollingStats{Window: r.settings.RollingWindow, Points: len(points)}
	if len(points) == 0 {
		return st, nil
	}
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Sharpe
	}
	st.Last = values[len(values)-1]
	sort.Float64s(values)
	st.Min = values[0]
	st.Median = stat.Quantile(0.5, stat.Empirical, values, nil)
	return st, nil
}

// Summary renders the metrics as a plain-text block.
func (r *Result) Summary() string {
	m := r.Metrics
	p := r.Portfolio
	var b strings.Builder
	fmt.Fprintf(&b, "Portfolio Performance Summary: %s\n", p.Name)
	b.WriteString(strings.Repeat("=", 70) + "\n\n")
	fmt.Fprintf(&b, "Period: %s to %s\n", p.Start.Format(dateLayout), p.End.Format(dateLayout))
	fmt.Fprintf(&b, "Number of Stocks: %d\n", m.NumStocks)
	shown := r.Tickers
	more := ""
	if len(shown) > 5 {
		shown, more = shown[:5], "..."
	}
	fmt.Fprintf(&b, "Stocks: %s%s\n\n", strings.Join(shown, ", "), more)

	b.WriteString("RETURNS:\n")
	fmt.Fprintf(&b, "  Total Return: %+.2f%%\n", m.TotalReturn*100)
	fmt.Fprintf(&b, "  Annualized Return: %+.2f%%\n", m.AnnualizedReturn*100)
	fmt.Fprintf(&b, "  Final Value: $%.2f\n", m.FinalValue)
	fmt.Fprintf(&b, "  Initial Capital: $%.2f\n\n", m.InitialCapital)

	b.WriteString("RISK:\n")
	fmt.Fprintf(&b, "  Annualized Volatility: %.2f%%\n", m.AnnualizedVolatility*100)
	fmt.Fprintf(&b, "  Maximum Drawdown: %.2f%%\n\n", m.MaxDrawdown*100)

	b.WriteString("RISK-ADJUSTED:\n")
	fmt.Fprintf(&b, "  Sharpe Ratio: %.3f\n", m.Sharpe)
	if rs, err := r.RollingSharpeStats(); err == nil && rs.Points > 0 {
		fmt.Fprintf(&b, "  Rolling Sharpe (%d-day): min %.3f / median %.3f / last %.3f\n", rs.Window, rs.Min, rs.Median, rs.Last)
	}
	b.WriteString("\n")

	b.WriteString("TRADING STATS:\n")
	fmt.Fprintf(&b, "  Trading Days: %d\n", m.NumTradingDays)
	fmt.Fprintf(&b, "  Win Rate: %.1f%%\n", m.WinRate*100)
	return b.String()
}
