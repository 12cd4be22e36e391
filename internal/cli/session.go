package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dyike/alphaagents/internal/debate"
	"github.com/dyike/alphaagents/internal/models"
	"github.com/dyike/alphaagents/internal/recommendation"
)

// sessionReport is the markdown outcome of one finished session, written
// under <results>/<TICKER>/<date>/. Turns are not written.
type sessionReport struct {
	SessionID   string
	Ticker      string
	Mode        models.Mode
	RiskProfile string
	NumTurns    int
	Outcome     string
}

func reportFromDebate(res *debate.DebateResult) sessionReport {
	var b strings.Builder
	fmt.Fprintf(&b, "**Decision:** %s  \n", res.Consensus.Decision)
	fmt.Fprintf(&b, "**Consensus reached:** %t  \n", res.Consensus.ConsensusReached)
	fmt.Fprintf(&b, "**Votes:** BUY %d / SELL %d / UNSET %d  \n", res.Consensus.Votes.Buy, res.Consensus.Votes.Sell, res.Consensus.Votes.Unset)
	fmt.Fprintf(&b, "**Rounds:** %d\n\n", res.NumRounds)
	reasons := lastReasoning(res.Transcript)
	for _, role := range models.AnalystRoles {
		rec, ok := res.Consensus.PerRole[role]
		if !ok {
			rec = recommendation.Unset
		}
		fmt.Fprintf(&b, "- %s: %s (%s)", role, rec.Action, rec.Confidence)
		if r := reasons[role]; r != "" {
			fmt.Fprintf(&b, ": %s", r)
		}
		b.WriteString("\n")
	}
	return sessionReport{
		SessionID:   res.SessionID,
		Ticker:      res.Ticker,
		Mode:        res.Mode,
		RiskProfile: res.RiskProfile,
		NumTurns:    res.NumTurns,
		Outcome:     b.String(),
	}
}

// maxReasoningRunes bounds the reasoning quoted per role in a report.
const maxReasoningRunes = 200

// lastReasoning keeps, per analyst, the stated REASONING of its last
// successful turn, flattened to one line.
func lastReasoning(transcript []models.Turn) map[models.Role]string {
	out := make(map[models.Role]string)
	for _, turn := range transcript {
		if turn.Failed() {
			continue
		}
		r := strings.Join(strings.Fields(recommendation.ExtractReasoning(turn.Text)), " ")
		if r == "" {
			continue
		}
		if runes := []rune(r); len(runes) > maxReasoningRunes {
			r = string(runes[:maxReasoningRunes]) + "..."
		}
		out[turn.Speaker.Role] = r
	}
	return out
}

func reportFromCollaboration(res *debate.CollaborationResult) sessionReport {
	return sessionReport{
		SessionID:   res.SessionID,
		Ticker:      res.Ticker,
		Mode:        res.Mode,
		RiskProfile: res.RiskProfile,
		NumTurns:    res.NumTurns,
		Outcome:     strings.TrimSpace(res.Synthesis) + "\n",
	}
}

func (r sessionReport) Markdown(now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s report: %s\n\n", r.Mode, r.Ticker)
	fmt.Fprintf(&b, "**Session:** %s  \n", r.SessionID)
	fmt.Fprintf(&b, "**Risk profile:** %s  \n", r.RiskProfile)
	fmt.Fprintf(&b, "**Turns:** %d  \n", r.NumTurns)
	fmt.Fprintf(&b, "**Generated:** %s\n\n", now.Format("2006-01-02 15:04:05"))
	b.WriteString("## Outcome\n\n")
	b.WriteString(r.Outcome)
	b.WriteString("\n---\n\n*For research purposes only. This is not financial advice.*\n")
	return b.String()
}

// save writes the report and returns its path.
func (r sessionReport) save(resultsDir string, now time.Time) (string, error) {
	dir := filepath.Join(resultsDir, sanitizeFilename(r.Ticker), now.Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create results directory: %w", err)
	}
	name := fmt.Sprintf("%s_%s_%s.md", r.Mode, sanitizeFilename(r.RiskProfile), now.Format("150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(r.Markdown(now)), 0644); err != nil {
		return "", fmt.Errorf("failed to write session report: %w", err)
	}
	return path, nil
}

func sanitizeFilename(filename string) string {
	result := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, filename)
	if len(result) > 50 {
		result = result[:50]
	}
	return result
}
