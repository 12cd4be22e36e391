package backtest

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/alphaagents/internal/dataflows"
)

var day0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func testSettings() Settings {
	return Settings{TradingDaysPerYear: 252, RiskFreeRate: 0.05, RollingWindow: 20}
}

func closes(symbol string, offsets []int, prices ...float64) []*dataflows.MarketData {
	out := make([]*dataflows.MarketData, len(prices))
	for i, p := range prices {
		out[i] = &dataflows.MarketData{
			Symbol: symbol,
			Date:   day0.AddDate(0, 0, offsets[i]).Add(21 * time.Hour),
			Close:  decimal.NewFromFloat(p),
		}
	}
	return out
}

type mapSource map[string][]*dataflows.MarketData

func (m mapSource) History(_ context.Context, symbol string, _, _ time.Time) ([]*dataflows.MarketData, error) {
	bars, ok := m[symbol]
	if !ok {
		return nil, errors.New("unknown symbol")
	}
	return bars, nil
}

func TestTwoTickerEqualWeight(t *testing.T) {
	src := mapSource{
		"AAA": closes("AAA", []int{0, 1, 2}, 100, 102, 101),
		"BBB": closes("BBB", []int{0, 1, 2}, 50, 49, 51),
	}
	p := Portfolio{Name: "pair", Tickers: []string{"AAA", "BBB"}, InitialCapital: 100000}

	res, err := p.Run(context.Background(), src, testSettings())
	require.NoError(t, err)

	require.Len(t, res.AssetReturns, 2)
	assert.InDelta(t, 0.02, res.AssetReturns[0][0], 1e-9)
	assert.InDelta(t, -0.0098, res.AssetReturns[1][0], 1e-4)
	assert.InDelta(t, -0.02, res.AssetReturns[0][1], 1e-9)
	assert.InDelta(t, 0.0408, res.AssetReturns[1][1], 1e-4)

	want1 := (101.0/102 - 1 + 51.0/49 - 1) / 2
	assert.InDelta(t, 0.0, res.Returns[0], 1e-12)
	assert.InDelta(t, want1, res.Returns[1], 1e-12)
	assert.InDelta(t, 100000*(1+want1), res.Values[1], 1e-6)

	m := res.Metrics
	assert.InDelta(t, want1, m.TotalReturn, 1e-12)
	assert.InDelta(t, math.Pow(1+want1, 126)-1, m.AnnualizedReturn, 1e-9)
	assert.Equal(t, 2, m.NumTradingDays)
	assert.Equal(t, 2, m.NumStocks)
	assert.InDelta(t, 0.5, m.WinRate, 1e-12)
	assert.Zero(t, m.MaxDrawdown)

	std := math.Abs(want1) / math.Sqrt2
	assert.InDelta(t, std, m.DailyVolatility, 1e-12)
	assert.InDelta(t, std*math.Sqrt(252), m.AnnualizedVolatility, 1e-9)
	assert.InDelta(t, (want1/2*252-0.05)/(std*math.Sqrt(252)), m.Sharpe, 1e-9)
	assert.Equal(t, day0.AddDate(0, 0, 1), res.Dates[0])
}

func TestAlignForwardFillsAndDropsLeadingGaps(t *testing.T) {
	history := map[string][]*dataflows.MarketData{
		"AAA": closes("AAA", []int{0, 1, 2, 3}, 10, 11, 12, 13),
		"BBB": closes("BBB", []int{0, 2, 3}, 20, 22, 23),
		"CCC": closes("CCC", []int{1, 2, 3}, 5, 6, 7),
	}
	m, err := AlignCloses(history, []string{"AAA", "BBB", "CCC", "DDD"})
	require.NoError(t, err)

	assert.Equal(t, []string{"AAA", "BBB", "CCC"}, m.Tickers)
	require.Len(t, m.Dates, 3)
	assert.Equal(t, day0.AddDate(0, 0, 1), m.Dates[0])
	// BBB did not trade on day 1 and carries day 0's close
	assert.Equal(t, []float64{11, 20, 5}, m.Closes[0])
	assert.Equal(t, []float64{13, 23, 7}, m.Closes[2])
}

func TestAlignNeedsData(t *testing.T) {
	_, err := AlignCloses(map[string][]*dataflows.MarketData{}, []string{"AAA"})
	assert.ErrorIs(t, err, ErrNoPriceData)

	_, err = AlignCloses(map[string][]*dataflows.MarketData{
		"AAA": closes("AAA", []int{0}, 10),
	}, []string{"AAA"})
	assert.ErrorIs(t, err, ErrNoPriceData)
}

func TestLoadSkipsFailingTickers(t *testing.T) {
	src := mapSource{"AAA": closes("AAA", []int{0, 1, 2}, 10, 11, 12)}
	p := Portfolio{Name: "p", Tickers: []string{"AAA", "ZZZ"}, InitialCapital: 1000}

	res, err := p.Run(context.Background(), src, testSettings())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA"}, res.Tickers)
	assert.Equal(t, []float64{1}, res.Weights)
	assert.InDelta(t, 1200, res.Values[len(res.Values)-1], 1e-9)

	_, err = Portfolio{Name: "none", Tickers: []string{"ZZZ"}, InitialCapital: 1000}.Run(context.Background(), src, testSettings())
	assert.ErrorIs(t, err, ErrNoPriceData)
}

func TestResolveWeights(t *testing.T) {
	p := Portfolio{Name: "w", Tickers: []string{"AAA", "BBB", "CCC"}, Weights: map[string]float64{"AAA": 3, "BBB": 1}}

	w, err := p.ResolveWeights([]string{"AAA", "BBB", "CCC"})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.75, 0.25, 0}, w, 1e-12)

	w, err = p.ResolveWeights([]string{"BBB", "CCC"})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 0}, w, 1e-12)

	_, err = p.ResolveWeights([]string{"CCC"})
	assert.ErrorIs(t, err, ErrInvalidWeights)

	bad := Portfolio{Name: "bad", Tickers: []string{"AAA"}, Weights: map[string]float64{"AAA": -1}}
	_, err = bad.ResolveWeights([]string{"AAA"})
	assert.ErrorIs(t, err, ErrInvalidWeights)

	stranger := Portfolio{Name: "s", Tickers: []string{"AAA"}, Weights: map[string]float64{"XYZ": 1}}
	_, err = stranger.ResolveWeights([]string{"AAA"})
	assert.ErrorIs(t, err, ErrInvalidWeights)
}

func TestMaxDrawdown(t *testing.T) {
	m := &PriceMatrix{
		Dates:   []time.Time{day0, day0.AddDate(0, 0, 1), day0.AddDate(0, 0, 2), day0.AddDate(0, 0, 3), day0.AddDate(0, 0, 4)},
		Tickers: []string{"AAA"},
		Closes:  [][]float64{{100}, {120}, {90}, {108}, {130}},
	}
	res, err := Portfolio{Name: "dd", Tickers: []string{"AAA"}, InitialCapital: 100}.Compute(m, testSettings())
	require.NoError(t, err)

	assert.InDelta(t, -0.25, res.Metrics.MaxDrawdown, 1e-12)
	assert.InDelta(t, 0.75, res.Metrics.WinRate, 1e-12)
	assert.InDelta(t, 130, res.Metrics.FinalValue, 1e-9)
}

func TestRollingSharpe(t *testing.T) {
	prices := []float64{100, 101, 100, 102, 103, 101}
	m := &PriceMatrix{Tickers: []string{"AAA"}}
	for i, p := range prices {
		m.Dates = append(m.Dates, day0.AddDate(0, 0, i))
		m.Closes = append(m.Closes, []float64{p})
	}
	res, err := Portfolio{Name: "r", Tickers: []string{"AAA"}, InitialCapital: 1}.Compute(m, testSettings())
	require.NoError(t, err)

	points, err := res.RollingSharpe(3)
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, res.Dates[2], points[0].Date)

	window := res.Returns[0:3]
	var mean float64
	for _, r := range window {
		mean += r / 3
	}
	var ss float64
	for _, r := range window {
		ss += (r - mean) * (r - mean)
	}
	std := math.Sqrt(ss / 2)
	assert.InDelta(t, (mean*252-0.05)/(std*math.Sqrt(252)), points[0].Sharpe, 1e-9)

	points, err = res.RollingSharpe(0)
	require.NoError(t, err)
	assert.Empty(t, points)

	_, err = res.RollingSharpe(1)
	assert.Error(t, err)
}

func TestWriteReport(t *testing.T) {
	src := mapSource{
		"AAA": closes("AAA", []int{0, 1, 2}, 100, 102, 101),
		"BBB": closes("BBB", []int{0, 1, 2}, 50, 49, 51),
	}
	agents, err := Portfolio{Name: "agents", Tickers: []string{"AAA"}, InitialCapital: 100000}.Run(context.Background(), src, testSettings())
	require.NoError(t, err)
	bench, err := Portfolio{Name: "benchmark", Tickers: []string{"AAA", "BBB"}, InitialCapital: 100000}.Run(context.Background(), src, testSettings())
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "results")
	csvPath, mdPath, err := WriteReport(dir, []*Result{agents, bench})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ComparisonFile), csvPath)

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, comparisonHeader, records[0])
	assert.Equal(t, "agents", records[1][0])
	assert.Equal(t, "1.0000", records[1][1])
	assert.Equal(t, "2", records[2][6])
	// two returns never fill a 20-day window
	assert.Equal(t, []string{"", "", ""}, records[2][7:])

	md, err := os.ReadFile(mdPath)
	require.NoError(t, err)
	assert.Contains(t, string(md), "## benchmark")
	assert.Contains(t, string(md), "Portfolio Performance Summary: agents")

	_, _, err = WriteReport(dir, nil)
	assert.Error(t, err)
}

func TestRollingSharpeInReports(t *testing.T) {
	prices := []float64{100, 101, 100, 102, 103, 101}
	m := &PriceMatrix{Tickers: []string{"AAA"}}
	for i, p := range prices {
		m.Dates = append(m.Dates, day0.AddDate(0, 0, i))
		m.Closes = append(m.Closes, []float64{p})
	}
	settings := testSettings()
	settings.RollingWindow = 3
	res, err := Portfolio{Name: "agents", Tickers: []string{"AAA"}, InitialCapital: 1}.Compute(m, settings)
	require.NoError(t, err)

	points, err := res.RollingSharpe(0)
	require.NoError(t, err)
	require.Len(t, points, 3)
	sharpes := []float64{points[0].Sharpe, points[1].Sharpe, points[2].Sharpe}

	rs, err := res.RollingSharpeStats()
	require.NoError(t, err)
	assert.Equal(t, 3, rs.Window)
	assert.Equal(t, 3, rs.Points)
	assert.InDelta(t, math.Min(sharpes[0], math.Min(sharpes[1], sharpes[2])), rs.Min, 1e-12)
	assert.InDelta(t, sharpes[2], rs.Last, 1e-12)
	assert.LessOrEqual(t, rs.Min, rs.Median)
	assert.Contains(t, sharpes, rs.Median)
	assert.Contains(t, res.Summary(), "Rolling Sharpe (3-day): min ")

	dir := t.TempDir()
	csvPath, mdPath, err := WriteReport(dir, []*Result{res})
	require.NoError(t, err)

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Len(t, records[1], len(comparisonHeader))
	assert.Equal(t, "Rolling Sharpe Median", records[0][8])
	assert.NotEmpty(t, records[1][7])
	assert.NotEmpty(t, records[1][9])

	rf, err := os.Open(filepath.Join(dir, RollingSharpeFile))
	require.NoError(t, err)
	defer rf.Close()
	rolling, err := csv.NewReader(rf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rolling, 4)
	assert.Equal(t, []string{"Portfolio", "Date", "Rolling Sharpe"}, rolling[0])
	assert.Equal(t, "agents", rolling[1][0])
	assert.Equal(t, res.Dates[2].Format(dateLayout), rolling[1][1])

	md, err := os.ReadFile(mdPath)
	require.NoError(t, err)
	assert.Contains(t, string(md), "| Rolling Sharpe Min | Rolling Sharpe Median | Rolling Sharpe Last |")
}
