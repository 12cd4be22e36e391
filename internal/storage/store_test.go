package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/alphaagents/internal/consensus"
	"github.com/dyike/alphaagents/internal/debate"
	"github.com/dyike/alphaagents/internal/models"
	"github.com/dyike/alphaagents/internal/recommendation"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "alpha.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// stepClock returns base, base+1s, base+2s, ...
func stepClock(base time.Time) func() time.Time {
	n := 0
	return func() time.Time {
		t := base.Add(time.Duration(n) * time.Second)
		n++
		return t
	}
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}

func TestSaveAndListDecisions(t *testing.T) {
	s := openTestStore(t)
	s.now = stepClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	res := &debate.DebateResult{
		SessionID:   "sess-1",
		Ticker:      "AAPL",
		Mode:        models.ModeDebate,
		RiskProfile: "risk_neutral",
		Consensus: consensus.Result{
			Decision:         recommendation.ActionBuy,
			ConsensusReached: true,
			Votes:            consensus.Votes{Buy: 2, Sell: 1},
			PerRole: map[models.Role]recommendation.Recommendation{
				models.RoleFundamental: {Action: recommendation.ActionBuy},
				models.RoleSentiment:   {Action: recommendation.ActionBuy},
				models.RoleValuation:   {Action: recommendation.ActionSell},
			},
		},
	}
	rec := DecisionFromDebate(res)
	require.NoError(t, s.SaveDecision(ctx, &rec))
	assert.NotEmpty(t, rec.ID)

	other := DecisionRecord{Ticker: "MSFT", Mode: "debate", RiskProfile: "risk_averse", Decision: "SELL", PerRole: map[string]string{}}
	require.NoError(t, s.SaveDecision(ctx, &other))

	all, err := s.ListDecisions(ctx, DecisionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "MSFT", all[0].Ticker)

	got, err := s.ListDecisions(ctx, DecisionFilter{Ticker: "AAPL"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "BUY", got[0].Decision)
	assert.True(t, got[0].ConsensusReached)
	assert.Equal(t, 2, got[0].BuyVotes)
	assert.Equal(t, "SELL", got[0].PerRole["Valuation"])
	assert.Equal(t, "sess-1", got[0].SessionID)
	assert.True(t, got[0].CreatedAt.Equal(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)))
}

func TestSaveDecisionRequiresTicker(t *testing.T) {
	s := openTestStore(t)
	assert.Error(t, s.SaveDecision(context.Background(), &DecisionRecord{}))
}

func TestLatestBuysUsesMostRecentDecision(t *testing.T) {
	s := openTestStore(t)
	s.now = stepClock(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	save := func(ticker, profile, decision string) {
		rec := DecisionRecord{Ticker: ticker, Mode: "debate", RiskProfile: profile, Decision: decision}
		require.NoError(t, s.SaveDecision(ctx, &rec))
	}
	save("AAPL", "risk_neutral", "SELL")
	save("AAPL", "risk_neutral", "BUY")
	save("MSFT", "risk_neutral", "BUY")
	save("MSFT", "risk_neutral", "SELL")
	save("NVDA", "risk_neutral", "BUY")
	save("TSLA", "risk_seeking", "BUY")

	buys, err := s.LatestBuys(ctx, "risk_neutral")
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "NVDA"}, buys)

	buys, err = s.LatestBuys(ctx, "risk_averse")
	require.NoError(t, err)
	assert.Empty(t, buys)
}

func TestSaveAndListBacktests(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC)
	rec, err := s.SaveBacktest(ctx, "agents", []string{"AAPL", "MSFT"}, start, end, map[string]float64{"sharpe": 1.25})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)

	runs, err := s.ListBacktests(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "agents", runs[0].Name)
	assert.Equal(t, []string{"AAPL", "MSFT"}, runs[0].Tickers)
	assert.Equal(t, "2024-01-02", runs[0].Start)
	assert.Equal(t, "2024-06-28", runs[0].End)
	assert.JSONEq(t, `{"sharpe":1.25}`, string(runs[0].Metrics))
}
