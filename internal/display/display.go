package display

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/dyike/alphaagents/internal/backtest"
	"github.com/dyike/alphaagents/internal/consensus"
	"github.com/dyike/alphaagents/internal/debate"
	"github.com/dyike/alphaagents/internal/models"
	"github.com/dyike/alphaagents/internal/recommendation"
	"github.com/dyike/alphaagents/internal/selection"
	"github.com/dyike/alphaagents/internal/storage"
)

const width = 80

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Background(lipgloss.Color("#1F2937")).
			Padding(0, 1).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#3B82F6")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 2).
			Width(width)

	turnStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#6B7280")).
			Padding(0, 1).
			Width(width)

	synthesisStyle = turnStyle.
			BorderForeground(lipgloss.Color("#8B5CF6"))

	decisionStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.DoubleBorder()).
			Padding(1, 2).
			Width(width)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	buyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	sellStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	unsetStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F59E0B")).
			Bold(true)

	roleColors = map[models.Role]lipgloss.Color{
		models.RoleFundamental: lipgloss.Color("#3B82F6"),
		models.RoleSentiment:   lipgloss.Color("#F59E0B"),
		models.RoleValuation:   lipgloss.Color("#10B981"),
		models.RoleCoordinator: lipgloss.Color("#8B5CF6"),
	}
)

func Banner() string {
	return titleStyle.Render("AlphaAgents · multi-agent equity analysis") + "\n" +
		mutedStyle.Render("Fundamental, sentiment and valuation analysts debating one stock at a time")
}

func Header(title string) string {
	return headerStyle.Render(title)
}

// Action colors a BUY/SELL/UNSET label.
func Action(a recommendation.Action) string {
	switch a {
	case recommendation.ActionBuy:
		return buyStyle.Render("🟢 " + string(a))
	case recommendation.ActionSell:
		return sellStyle.Render("🔴 " + string(a))
	default:
		return unsetStyle.Render("⏳ " + string(recommendation.ActionUnset))
	}
}

func speaker(id models.AgentIdentity) string {
	name := id.DisplayName
	if name == "" {
		name = string(id.Role)
	}
	return lipgloss.NewStyle().Bold(true).Foreground(roleColors[id.Role]).Render(name)
}

// Turn renders one transcript entry in a bordered box.
func Turn(t models.Turn) string {
	style := turnStyle
	if t.Speaker.Role == models.RoleCoordinator {
		style = synthesisStyle
	}
	head := fmt.Sprintf("%s  %s", speaker(t.Speaker), mutedStyle.Render(fmt.Sprintf("round %d · turn %d", t.Round+1, t.Index+1)))
	body := t.Text
	if t.Failed() {
		body = sellStyle.Render(t.Text)
	}
	return style.Render(head + "\n\n" + strings.TrimSpace(body))
}

// Transcript interleaves syntheses with analyst turns by creation time.
func Transcript(turns, syntheses []models.Turn) string {
	var b strings.Builder
	next := 0
	for _, t := range turns {
		for next < len(syntheses) && syntheses[next].CreatedAt.Before(t.CreatedAt) {
			b.WriteString(Turn(syntheses[next]) + "\n")
			next++
		}
		b.WriteString(Turn(t) + "\n")
	}
	for ; next < len(syntheses); next++ {
		b.WriteString(Turn(syntheses[next]) + "\n")
	}
	return b.String()
}

func Consensus(ticker string, res consensus.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "FINAL DECISION FOR %s: %s\n", ticker, Action(res.Decision))
	if res.ConsensusReached {
		b.WriteString("Consensus: reached\n")
	} else {
		b.WriteString("Consensus: not reached, defaulting to SELL\n")
	}
	fmt.Fprintf(&b, "Votes: BUY %d · SELL %d · UNSET %d\n\n", res.Votes.Buy, res.Votes.Sell, res.Votes.Unset)
	for _, role := range models.AnalystRoles {
		rec, ok := res.PerRole[role]
		if !ok {
			rec = recommendation.Unset
		}
		fmt.Fprintf(&b, "  %-12s %s  confidence %s\n", role, Action(rec.Action), rec.Confidence)
	}
	return decisionStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func DebateResult(res *debate.DebateResult) string {
	return strings.Join([]string{
		Header(fmt.Sprintf("📊 Debate on %s · %s · %d rounds", res.Ticker, res.RiskProfile, res.NumRounds)),
		Transcript(res.Transcript, res.Syntheses),
		Consensus(res.Ticker, res.Consensus),
		Footer(),
	}, "\n")
}

func CollaborationResult(res *debate.CollaborationResult) string {
	return strings.Join([]string{
		Header(fmt.Sprintf("🤝 Collaboration on %s · %s · %d turns", res.Ticker, res.RiskProfile, res.NumTurns)),
		Transcript(res.Transcript, res.Syntheses),
		decisionStyle.Render("SYNTHESIS\n\n" + strings.TrimSpace(res.Synthesis)),
		Footer(),
	}, "\n")
}

func SelectionReport(r *selection.Report) string {
	var b strings.Builder
	b.WriteString(Header(fmt.Sprintf("🔎 Stock selection · %s · %d tickers", r.RiskProfile, len(r.Items))) + "\n")
	for _, it := range r.Items {
		status := Action(it.Decision())
		if it.Status == selection.Failed {
			status = sellStyle.Render("❌ failed: " + errString(it.Err))
		}
		fmt.Fprintf(&b, "  %-8s %s  %s\n", it.Ticker, status, mutedStyle.Render(it.Duration.Round(time.Second).String()))
	}
	fmt.Fprintf(&b, "\nCompleted %d · Failed %d · Duration %s\n", r.Completed, r.Failed, r.Duration.Round(time.Second))
	if len(r.Buys) == 0 {
		b.WriteString("No stocks selected.\n")
	} else {
		fmt.Fprintf(&b, "Selected: %s\n", buyStyle.Render(strings.Join(r.Buys, ", ")))
	}
	return b.String()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// BacktestTable renders the comparison rows as an aligned table.
func BacktestTable(rows []backtest.ComparisonRow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-18s %10s %10s %10s %8s %10s %6s %22s\n", "Portfolio", "Return%", "Annual%", "Vol%", "Sharpe", "MaxDD%", "Stocks", "Rolling min/med/last")
	b.WriteString(strings.Repeat("─", 101) + "\n")
	for _, r := range rows {
		rolling := "-"
		if r.Rolling.Points > 0 {
			rolling = fmt.Sprintf("%.2f/%.2f/%.2f", r.Rolling.Min, r.Rolling.Median, r.Rolling.Last)
		}
		fmt.Fprintf(&b, "%-18s %10.2f %10.2f %10.2f %8.3f %10.2f %6d %22s\n",
			truncate(r.Portfolio, 18), r.TotalReturnPct, r.AnnualizedReturnPct, r.VolatilityPct, r.Sharpe, r.MaxDrawdownPct, r.NumStocks, rolling)
	}
	return headerStyle.Render("📈 PORTFOLIO COMPARISON") + "\n" + b.String()
}

func Decisions(recs []storage.DecisionRecord) string {
	if len(recs) == 0 {
		return mutedStyle.Render("No decisions recorded.")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-8s %-14s %-10s %-9s %s\n", "Time", "Ticker", "Profile", "Decision", "Consensus", "Votes B/S/U")
	for _, r := range recs {
		fmt.Fprintf(&b, "%-20s %-8s %-14s %-10s %-9t %d/%d/%d\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Ticker, r.RiskProfile, r.Decision,
			r.ConsensusReached, r.BuyVotes, r.SellVotes, r.UnsetVotes)
	}
	return b.String()
}

// BacktestRuns lists stored backtest runs with their headline metrics.
func BacktestRuns(runs []storage.BacktestRecord) string {
	if len(runs) == 0 {
		return mutedStyle.Render("No backtests recorded.")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-18s %-23s %10s %8s  %s\n", "Time", "Portfolio", "Period", "Return%", "Sharpe", "Tickers")
	for _, r := range runs {
		var m backtest.Metrics
		if err := json.Unmarshal(r.Metrics, &m); err != nil {
			m = backtest.Metrics{}
		}
		fmt.Fprintf(&b, "%-20s %-18s %-23s %10.2f %8.3f  %s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"), truncate(r.Name, 18), r.Start+" → "+r.End,
			m.TotalReturn*100, m.Sharpe, strings.Join(r.Tickers, ","))
	}
	return b.String()
}

func Footer() string {
	return mutedStyle.Render(fmt.Sprintf("🕐 Completed at %s\n⚠️  For research purposes only. This is not financial advice.",
		time.Now().Format("2006-01-02 15:04:05")))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func Info(message string) {
	fmt.Printf("ℹ️  %s\n", message)
}

func Success(message string) {
	fmt.Println(buyStyle.Render("✅ " + message))
}

func Warning(message string) {
	fmt.Println(unsetStyle.Render("⚠️  Warning: " + message))
}

func Error(err error, context string) {
	fmt.Println(sellStyle.Render(fmt.Sprintf("❌ Error in %s:", context)))
	fmt.Printf("   %v\n", err)
}
