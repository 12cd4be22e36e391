// Package backtest replays weighted buy-and-hold portfolios over daily
// closing prices.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/dyike/alphaagents/internal/config"
	"github.com/dyike/alphaagents/internal/dataflows"
	"github.com/dyike/alphaagents/internal/logger"
)

var (
	ErrNoPriceData    = errors.New("no price data")
	ErrInvalidWeights = errors.New("invalid portfolio weights")
)

const dateLayout = "2006-01-02"

type Settings struct {
	TradingDaysPerYear int
	RiskFreeRate       float64
	RollingWindow      int
}

func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		TradingDaysPerYear: cfg.TradingDaysPerYear,
		RiskFreeRate:       cfg.RiskFreeRate,
		RollingWindow:      cfg.RollingWindowDays,
	}
}

// Portfolio is a static allocation held from Start to End. Nil Weights mean
// equal weight.
type Portfolio struct {
	Name           string
	Tickers        []string
	Start, End     time.Time
	Weights        map[string]float64
	InitialCapital float64
}

// PriceMatrix holds closes aligned on a common calendar. Closes[i][j] is the
// close of Tickers[j] on Dates[i].
type PriceMatrix struct {
	Dates   []time.Time
	Tickers []string
	Closes  [][]float64
}

// AlignCloses builds the matrix over the union of trading dates. A missing
// close is carried forward from the previous date; leading dates on which any
// ticker has not traded yet are dropped.
func AlignCloses(history map[string][]*dataflows.MarketData, tickers []string) (*PriceMatrix, error) {
	series := make([]map[string]float64, 0, len(tickers))
	kept := make([]string, 0, len(tickers))
	calendar := make(map[string]struct{})
	for _, t := range tickers {
		bars := history[t]
		if len(bars) == 0 {
			continue
		}
		closes := make(map[string]float64, len(bars))
		for _, b := range bars {
			day := b.Date.Format(dateLayout)
			closes[day] = b.ClosePrice()
			calendar[day] = struct{}{}
		}
		series = append(series, closes)
		kept = append(kept, t)
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("%w for any ticker", ErrNoPriceData)
	}

	days := make([]string, 0, len(calendar))
	for d := range calendar {
		days = append(days, d)
	}
	sort.Strings(days)

	m := &PriceMatrix{Tickers: kept}
	last := make([]float64, len(kept))
	for i := range last {
		last[i] = math.NaN()
	}
	for _, day := range days {
		complete := true
		for j, closes := range series {
			if c, ok := closes[day]; ok {
				last[j] = c
			}
			if math.IsNaN(last[j]) {
				complete = false
			}
		}
		if !complete {
			continue
		}
		date, _ := time.Parse(dateLayout, day)
		row := make([]float64, len(last))
		copy(row, last)
		m.Dates = append(m.Dates, date)
		m.Closes = append(m.Closes, row)
	}
	if len(m.Dates) < 2 {
		return nil, fmt.Errorf("%w: need at least two aligned trading days, got %d", ErrNoPriceData, len(m.Dates))
	}
	return m, nil
}

// ResolveWeights returns one weight per ticker, summing to 1. Explicit weights
// may only name tickers of the portfolio and must not be negative; tickers
// without data drop out and the rest are renormalized.
func (p Portfolio) ResolveWeights(loaded []string) ([]float64, error) {
	out := make([]float64, len(loaded))
	if len(p.Weights) == 0 {
		for i := range out {
			out[i] = 1 / float64(len(loaded))
		}
		return out, nil
	}

	known := make(map[string]bool, len(p.Tickers))
	for _, t := range p.Tickers {
		known[t] = true
	}
	for t, w := range p.Weights {
		if !known[t] {
			return nil, fmt.Errorf("%w: %s is not in portfolio %s", ErrInvalidWeights, t, p.Name)
		}
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("%w: weight %v for %s", ErrInvalidWeights, w, t)
		}
	}

	var sum float64
	for i, t := range loaded {
		out[i] = p.Weights[t]
		sum += out[i]
	}
	if sum <= 0 {
		return nil, fmt.Errorf("%w: weights of tickers with data sum to zero", ErrInvalidWeights)
	}
	for i := range out {
		out[i] /= sum
	}
	return out, nil
}

// Load fetches daily history for every ticker. Tickers that fail or have no
// bars are skipped with a warning.
func (p Portfolio) Load(ctx context.Context, src dataflows.PriceSource) (*PriceMatrix, error) {
	if len(p.Tickers) == 0 {
		return nil, fmt.Errorf("%w: portfolio %s has no tickers", ErrNoPriceData, p.Name)
	}
	history := make(map[string][]*dataflows.MarketData, len(p.Tickers))
	for _, t := range p.Tickers {
		bars, err := src.History(ctx, t, p.Start, p.End)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn(ctx, "Skipping ticker without price data", "portfolio", p.Name, "ticker", t, "error", err)
			continue
		}
		if len(bars) == 0 {
			logger.Warn(ctx, "Skipping ticker without price data", "portfolio", p.Name, "ticker", t)
			continue
		}
		history[t] = bars
	}
	return AlignCloses(history, p.Tickers)
}

// Run loads prices and computes the portfolio's performance.
func (p Portfolio) Run(ctx context.Context, src dataflows.PriceSource, s Settings) (*Result, error) {
	op := logger.StartOperation(ctx, "backtest", "portfolio", p.Name, "tickers", len(p.Tickers))
	m, err := p.Load(op.Context(), src)
	if err != nil {
		op.EndWithError(err)
		return nil, err
	}
	res, err := p.Compute(m, s)
	if err != nil {
		op.EndWithError(err)
		return nil, err
	}
	op.End("trading_days", res.Metrics.NumTradingDays, "total_return", res.Metrics.TotalReturn)
	return res, nil
}
