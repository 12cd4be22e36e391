package tools

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/dyike/alphaagents/internal/dataflows"
)

type Trend string

const (
	TrendUp      Trend = "upward"
	TrendDown    Trend = "downward"
	TrendNeutral Trend = "neutral"
)

// PriceMetrics summarizes one price history.
type PriceMetrics struct {
	Ticker               string
	Period               string
	Start, End           time.Time
	StartPrice           float64
	EndPrice             float64
	CumulativeReturn     float64
	AnnualizedReturn     float64
	DailyVolatility      float64
	AnnualizedVolatility float64
	Sharpe               float64
	AvgVolume            float64
	RecentVolume         float64
	VolumeTrend          string
	SMA20, SMA50         float64
	RSI14                float64
	HasRSI               bool
	Trend                Trend
}

// ComputePriceMetrics derives return, risk and trend figures from daily
// bars ordered oldest first.
func ComputePriceMetrics(ticker, period string, bars []*dataflows.MarketData, tradingDays int, riskFree float64) (*PriceMetrics, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("no price data available for %s", ticker)
	}
	prices := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		prices[i] = b.ClosePrice()
		volumes[i] = float64(b.Volume)
	}

	m := &PriceMetrics{
		Ticker:     ticker,
		Period:     period,
		Start:      bars[0].Date,
		End:        bars[len(bars)-1].Date,
		StartPrice: prices[0],
		EndPrice:   prices[len(prices)-1],
	}
	days := float64(tradingDays)

	if len(prices) >= 2 && m.StartPrice != 0 {
		returns := DailyReturns(prices)
		m.CumulativeReturn = m.EndPrice/m.StartPrice - 1
		m.AnnualizedReturn = math.Pow(1+m.CumulativeReturn, days/float64(len(prices))) - 1
		if len(returns) >= 2 {
			m.DailyVolatility = stat.StdDev(returns, nil)
			m.AnnualizedVolatility = m.DailyVolatility * math.Sqrt(days)
			if m.AnnualizedVolatility > 0 {
				m.Sharpe = (stat.Mean(returns, nil)*days - riskFree) / m.AnnualizedVolatility
			}
		}
	}

	m.AvgVolume = stat.Mean(volumes, nil)
	recent := volumes
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	m.RecentVolume = stat.Mean(recent, nil)
	m.VolumeTrend = "decreasing"
	if m.RecentVolume > m.AvgVolume {
		m.VolumeTrend = "increasing"
	}

	m.SMA20 = trailingMean(prices, 20, m.EndPrice)
	m.SMA50 = trailingMean(prices, 50, m.EndPrice)
	m.RSI14, m.HasRSI = RSI(prices, 14)
	switch {
	case m.EndPrice > m.SMA20 && m.SMA20 > m.SMA50:
		m.Trend = TrendUp
	case m.EndPrice < m.SMA20 && m.SMA20 < m.SMA50:
		m.Trend = TrendDown
	default:
		m.Trend = TrendNeutral
	}
	return m, nil
}

// DailyReturns are simple close-to-close returns.
func DailyReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		out = append(out, prices[i]/prices[i-1]-1)
	}
	return out
}

// RSI is Wilder's relative strength index of the last close. It needs
// period+1 prices.
func RSI(prices []float64, period int) (float64, bool) {
	if period < 1 || len(prices) < period+1 {
		return 0, false
	}
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		gain, loss := splitChange(prices[i] - prices[i-1])
		avgGain += gain
		avgLoss += loss
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(prices); i++ {
		gain, loss := splitChange(prices[i] - prices[i-1])
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}
	if avgLoss == 0 {
		return 100, true
	}
	return 100 - 100/(1+avgGain/avgLoss), true
}

func splitChange(change float64) (gain, loss float64) {
	if change > 0 {
		return change, 0
	}
	return 0, -change
}

// trailingMean is the mean of the last window values, or fallback when
// there are fewer.
func trailingMean(values []float64, window int, fallback float64) float64 {
	if len(values) < window {
		return fallback
	}
	return stat.Mean(values[len(values)-window:], nil)
}

// Implication is POSITIVE, NEGATIVE or NEUTRAL with a short reason.
func (m *PriceMetrics) Implication() string {
	switch {
	case m.Sharpe > 1 && m.Trend == TrendUp:
		return "POSITIVE - Strong risk-adjusted returns with upward momentum"
	case m.Sharpe < 0 || m.Trend == TrendDown:
		return "NEGATIVE - Poor risk-adjusted returns or downward trend"
	default:
		return "NEUTRAL - Mixed signals, requires further analysis"
	}
}

func (m *PriceMetrics) RiskLevel() string {
	vol := m.AnnualizedVolatility * 100
	switch {
	case vol > 40:
		return fmt.Sprintf("HIGH RISK - Volatility at %.1f%% is significant", vol)
	case vol > 25:
		return fmt.Sprintf("MODERATE RISK - Volatility at %.1f%% is elevated", vol)
	default:
		return fmt.Sprintf("LOW RISK - Volatility at %.1f%% is manageable", vol)
	}
}

// Report renders the metrics. thresholdPct adds a comparison with the
// investor's volatility ceiling when positive.
func (m *PriceMetrics) Report(thresholdPct float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Price Trend Analysis for %s (%s)\n", m.Ticker, m.Period)
	b.WriteString(strings.Repeat("=", 50) + "\n\n")
	fmt.Fprintf(&b, "Period: %s to %s\n\n", m.Start.Format("2006-01-02"), m.End.Format("2006-01-02"))

	b.WriteString("Price Performance:\n")
	fmt.Fprintf(&b, "- Price change: %+.2f%%\n", m.CumulativeReturn*100)
	fmt.Fprintf(&b, "- Annualized return: %+.2f%%\n", m.AnnualizedReturn*100)
	fmt.Fprintf(&b, "- Trend: %s\n", strings.ToUpper(string(m.Trend)))
	if m.HasRSI {
		fmt.Fprintf(&b, "- RSI(14): %.1f\n", m.RSI14)
	}
	b.WriteString("\n")

	b.WriteString("Risk Metrics:\n")
	fmt.Fprintf(&b, "- Daily volatility: %.2f%%\n", m.DailyVolatility*100)
	fmt.Fprintf(&b, "- Annualized volatility: %.2f%%\n", m.AnnualizedVolatility*100)
	fmt.Fprintf(&b, "- Sharpe ratio: %.2f\n\n", m.Sharpe)

	b.WriteString("Volume Analysis:\n")
	fmt.Fprintf(&b, "- Volume trend: %s\n\n", m.VolumeTrend)

	b.WriteString("Investment Implication:\n")
	b.WriteString(m.Implication() + "\n")
	b.WriteString(m.RiskLevel())

	if thresholdPct > 0 {
		vol := m.AnnualizedVolatility * 100
		if vol > thresholdPct {
			fmt.Fprintf(&b, "\nEXCEEDS RISK TOLERANCE - Volatility %.1f%% is above the %.0f%% ceiling", vol, thresholdPct)
		} else {
			fmt.Fprintf(&b, "\nWITHIN RISK TOLERANCE - Volatility %.1f%% is within the %.0f%% ceiling", vol, thresholdPct)
		}
	}
	return b.String()
}

// PriceCapability analyzes price history over a lookback period.
type PriceCapability struct {
	prices      dataflows.PriceSource
	tradingDays int
	riskFree    float64
	now         func() time.Time
}

func NewPriceCapability(prices dataflows.PriceSource, tradingDays int, riskFree float64) *PriceCapability {
	return &PriceCapability{prices: prices, tradingDays: tradingDays, riskFree: riskFree, now: time.Now}
}

func (c *PriceCapability) Metrics(ctx context.Context, ticker, period string) (*PriceMetrics, error) {
	ticker = dataflows.NormalizeSymbol(ticker)
	if period == "" {
		period = "3mo"
	}
	window, err := dataflows.PeriodRange(period, c.now())
	if err != nil {
		return nil, err
	}
	bars, err := c.prices.History(ctx, ticker, window.Start, window.End)
	if err != nil {
		return nil, err
	}
	return ComputePriceMetrics(ticker, period, bars, c.tradingDays, c.riskFree)
}

// QueryPriceValuation returns the valuation report for ticker.
func (c *PriceCapability) QueryPriceValuation(ctx context.Context, ticker, period string, thresholdPct float64) (string, error) {
	m, err := c.Metrics(ctx, ticker, period)
	if err != nil {
		return "", err
	}
	return m.Report(thresholdPct), nil
}
