package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/alphaagents/internal/backtest"
	"github.com/dyike/alphaagents/internal/consensus"
	"github.com/dyike/alphaagents/internal/debate"
	"github.com/dyike/alphaagents/internal/models"
	"github.com/dyike/alphaagents/internal/recommendation"
)

func TestParseTickers(t *testing.T) {
	assert.Equal(t, []string{"AAPL", "MSFT", "700.HK"}, parseTickers(" aapl, msft 700.hk,AAPL,,"))
	assert.Empty(t, parseTickers(" , "))
}

func TestParseWeights(t *testing.T) {
	w, err := parseWeights("aapl=0.6, MSFT = 0.4")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"AAPL": 0.6, "MSFT": 0.4}, w)

	w, err = parseWeights("")
	require.NoError(t, err)
	assert.Nil(t, w)

	_, err = parseWeights("AAPL:0.6")
	assert.ErrorIs(t, err, backtest.ErrInvalidWeights)
	_, err = parseWeights("AAPL=abc")
	assert.ErrorIs(t, err, backtest.ErrInvalidWeights)
}

func TestParseRange(t *testing.T) {
	now := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)

	start, end, err := parseRange("", "", now)
	require.NoError(t, err)
	assert.Equal(t, now, end)
	assert.Equal(t, time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), start)

	start, end, err = parseRange("2024-01-02", "2024-03-01", now)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", start.Format("2006-01-02"))
	assert.Equal(t, "2024-03-01", end.Format("2006-01-02"))

	_, _, err = parseRange("2024-03-01", "2024-03-01", now)
	assert.Error(t, err)
	_, _, err = parseRange("01/02/2024", "", now)
	assert.Error(t, err)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "BRK_B_a_b", sanitizeFilename("BRK/B a:b"))
}

func TestDebateSessionReport(t *testing.T) {
	res := &debate.DebateResult{
		SessionID:   "s-1",
		Ticker:      "AAPL",
		Mode:        models.ModeDebate,
		RiskProfile: "risk_averse",
		NumRounds:   2,
		Transcript: []models.Turn{
			{Speaker: models.AgentIdentity{Role: models.RoleFundamental, DisplayName: "Fundamental_Analyst"}, Text: "Strong margins. RECOMMENDATION: BUY"},
		},
		Consensus: consensus.Result{
			Decision:         recommendation.ActionBuy,
			ConsensusReached: true,
			Votes:            consensus.Votes{Buy: 3},
			PerRole: map[models.Role]recommendation.Recommendation{
				models.RoleFundamental: {Action: recommendation.ActionBuy, Confidence: recommendation.ConfidenceHigh},
			},
		},
	}
	now := time.Date(2025, 6, 30, 14, 5, 9, 0, time.UTC)
	dir := t.TempDir()

	path, err := reportFromDebate(res).save(dir, now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "AAPL", "2025-06-30", "debate_risk_averse_140509.md"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	md := string(data)
	assert.Contains(t, md, "# debate report: AAPL")
	assert.Contains(t, md, "**Decision:** BUY")
	assert.Contains(t, md, "- Fundamental: BUY (HIGH)")
	assert.Contains(t, md, "- Valuation: UNSET (UNSET)")
	assert.NotContains(t, md, "Strong margins.")
}

func TestDebateReportQuotesLastReasoning(t *testing.T) {
	fundamental := models.AgentIdentity{Role: models.RoleFundamental, DisplayName: "Fundamental_Analyst"}
	valuation := models.AgentIdentity{Role: models.RoleValuation, DisplayName: "Valuation_Analyst"}
	res := &debate.DebateResult{
		Ticker: "AAPL",
		Mode:   models.ModeDebate,
		Transcript: []models.Turn{
			{Speaker: fundamental, Text: "RECOMMENDATION: SELL\nREASONING: Early view."},
			{Speaker: valuation, Text: "RECOMMENDATION: BUY\nReasoning: Low\n  volatility."},
			{Speaker: fundamental, Text: "RECOMMENDATION: BUY\nREASONING: Margins held at 44%."},
			{Speaker: valuation, Err: "agent timeout"},
		},
		Consensus: consensus.Result{
			Decision: recommendation.ActionBuy,
			PerRole: map[models.Role]recommendation.Recommendation{
				models.RoleFundamental: {Action: recommendation.ActionBuy, Confidence: recommendation.ConfidenceHigh},
				models.RoleValuation:   {Action: recommendation.ActionBuy, Confidence: recommendation.ConfidenceLow},
			},
		},
	}
	md := reportFromDebate(res).Markdown(time.Now())
	assert.Contains(t, md, "- Fundamental: BUY (HIGH): Margins held at 44%.\n")
	assert.Contains(t, md, "- Valuation: BUY (LOW): Low volatility.\n")
	assert.Contains(t, md, "- Sentiment: UNSET (UNSET)\n")
	assert.NotContains(t, md, "Early view.")
}

func TestCollaborationSessionReport(t *testing.T) {
	res := &debate.CollaborationResult{
		SessionID: "s-2",
		Ticker:    "MSFT",
		Mode:      models.ModeCollaboration,
		Synthesis: "  Joint view  ",
		Syntheses: []models.Turn{
			{Speaker: models.AgentIdentity{Role: models.RoleCoordinator}, Text: "Joint view"},
		},
	}
	md := reportFromCollaboration(res).Markdown(time.Now())
	assert.Contains(t, md, "# collaboration report: MSFT")
	assert.Contains(t, md, "## Outcome\n\nJoint view\n")
}
