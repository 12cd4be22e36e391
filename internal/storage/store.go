// Package storage keeps debate decisions and backtest runs in SQLite.
// Transcripts are never persisted.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/dyike/alphaagents/internal/debate"
	"github.com/dyike/alphaagents/internal/models"
)

// timestamps are stored as fixed-width UTC text so they sort lexically
const timeLayout = "2006-01-02 15:04:05.000000"

type Store struct {
	db  *sql.DB
	now func() time.Time
}

type DecisionRecord struct {
	ID               string            `json:"id"`
	SessionID        string            `json:"session_id"`
	Ticker           string            `json:"ticker"`
	Mode             string            `json:"mode"`
	RiskProfile      string            `json:"risk_profile"`
	Decision         string            `json:"decision"`
	ConsensusReached bool              `json:"consensus_reached"`
	BuyVotes         int               `json:"buy_votes"`
	SellVotes        int               `json:"sell_votes"`
	UnsetVotes       int               `json:"unset_votes"`
	PerRole          map[string]string `json:"per_role"`
	CreatedAt        time.Time         `json:"created_at"`
}

type DecisionFilter struct {
	Ticker      string
	RiskProfile string
	Decision    string
	Limit       int
}

type BacktestRecord struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Tickers   []string        `json:"tickers"`
	Start     string          `json:"start"`
	End       string          `json:"end"`
	Metrics   json.RawMessage `json:"metrics"`
	CreatedAt time.Time       `json:"created_at"`
}

// DecisionFromDebate flattens a debate outcome into a record.
func DecisionFromDebate(res *debate.DebateResult) DecisionRecord {
	perRole := make(map[string]string, len(res.Consensus.PerRole))
	for _, role := range models.AnalystRoles {
		if rec, ok := res.Consensus.PerRole[role]; ok {
			perRole[string(role)] = string(rec.Action)
		}
	}
	return DecisionRecord{
		SessionID:        res.SessionID,
		Ticker:           res.Ticker,
		Mode:             string(res.Mode),
		RiskProfile:      res.RiskProfile,
		Decision:         string(res.Consensus.Decision),
		ConsensusReached: res.Consensus.ConsensusReached,
		BuyVotes:         res.Consensus.Votes.Buy,
		SellVotes:        res.Consensus.Votes.Sell,
		UnsetVotes:       res.Consensus.Votes.Unset,
		PerRole:          perRole,
	}
}

func Open(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=3000;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", p, err)
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS decisions (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    ticker TEXT NOT NULL,
    mode TEXT NOT NULL,
    risk_profile TEXT NOT NULL,
    decision TEXT NOT NULL,
    consensus INTEGER NOT NULL,
    buy_votes INTEGER NOT NULL,
    sell_votes INTEGER NOT NULL,
    unset_votes INTEGER NOT NULL,
    per_role TEXT NOT NULL DEFAULT '{}',
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_profile_ticker ON decisions(risk_profile, ticker, created_at);

CREATE TABLE IF NOT EXISTS backtest_runs (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    tickers TEXT NOT NULL,
    start_date TEXT NOT NULL,
    end_date TEXT NOT NULL,
    metrics TEXT NOT NULL,
    created_at TEXT NOT NULL
);
`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// SaveDecision inserts rec, filling ID and CreatedAt when empty.
func (s *Store) SaveDecision(ctx context.Context, rec *DecisionRecord) error {
	if strings.TrimSpace(rec.Ticker) == "" {
		return fmt.Errorf("decision ticker is required")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	perRole, err := json.Marshal(rec.PerRole)
	if err != nil {
		return fmt.Errorf("encode per-role votes: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO decisions (id, session_id, ticker, mode, risk_profile, decision, consensus,
    buy_votes, sell_votes, unset_votes, per_role, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, rec.ID, rec.SessionID, rec.Ticker, rec.Mode, rec.RiskProfile, rec.Decision, rec.ConsensusReached,
		rec.BuyVotes, rec.SellVotes, rec.UnsetVotes, string(perRole), rec.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// ListDecisions returns matching decisions, newest first.
func (s *Store) ListDecisions(ctx context.Context, f DecisionFilter) ([]DecisionRecord, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, ticker, mode, risk_profile, decision, consensus,
    buy_votes, sell_votes, unset_votes, per_role, created_at
FROM decisions
WHERE (? = '' OR ticker = ?)
  AND (? = '' OR risk_profile = ?)
  AND (? = '' OR decision = ?)
ORDER BY created_at DESC, rowid DESC
LIMIT ?
`, f.Ticker, f.Ticker, f.RiskProfile, f.RiskProfile, f.Decision, f.Decision, limit)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		var (
			rec       DecisionRecord
			perRole   string
			createdAt string
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Ticker, &rec.Mode, &rec.RiskProfile, &rec.Decision,
			&rec.ConsensusReached, &rec.BuyVotes, &rec.SellVotes, &rec.UnsetVotes, &perRole, &createdAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		if err := json.Unmarshal([]byte(perRole), &rec.PerRole); err != nil {
			return nil, fmt.Errorf("decode per-role votes for %s: %w", rec.ID, err)
		}
		if rec.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at for %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list decisions rows: %w", err)
	}
	return out, nil
}

// LatestBuys returns, sorted, the tickers whose most recent decision under
// riskProfile is BUY.
func (s *Store) LatestBuys(ctx context.Context, riskProfile string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT d.ticker
FROM decisions d
WHERE d.risk_profile = ?
  AND d.decision = 'BUY'
  AND d.rowid = (
    SELECT l.rowid FROM decisions l
    WHERE l.ticker = d.ticker AND l.risk_profile = d.risk_profile
    ORDER BY l.created_at DESC, l.rowid DESC
    LIMIT 1
  )
ORDER BY d.ticker
`, riskProfile)
	if err != nil {
		return nil, fmt.Errorf("latest buys: %w", err)
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan ticker: %w", err)
		}
		tickers = append(tickers, t)
	}
	return tickers, rows.Err()
}

// SaveBacktest stores one portfolio run. metrics is encoded as JSON.
func (s *Store) SaveBacktest(ctx context.Context, name string, tickers []string, start, end time.Time, metrics any) (*BacktestRecord, error) {
	raw, err := json.Marshal(metrics)
	if err != nil {
		return nil, fmt.Errorf("encode metrics: %w", err)
	}
	tickersJSON, err := json.Marshal(tickers)
	if err != nil {
		return nil, fmt.Errorf("encode tickers: %w", err)
	}
	rec := &BacktestRecord{
		ID:        uuid.NewString(),
		Name:      name,
		Tickers:   tickers,
		Start:     start.Format("2006-01-02"),
		End:       end.Format("2006-01-02"),
		Metrics:   raw,
		CreatedAt: s.now(),
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO backtest_runs (id, name, tickers, start_date, end_date, metrics, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, rec.ID, rec.Name, string(tickersJSON), rec.Start, rec.End, string(raw), rec.CreatedAt.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("insert backtest run: %w", err)
	}
	return rec, nil
}

// ListBacktests returns the most recent runs first.
func (s *Store) ListBacktests(ctx context.Context, limit int) ([]BacktestRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, name, tickers, start_date, end_date, metrics, created_at
FROM backtest_runs
ORDER BY created_at DESC, rowid DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list backtest runs: %w", err)
	}
	defer rows.Close()

	var out []BacktestRecord
	for rows.Next() {
		var (
			rec                         BacktestRecord
			tickers, metrics, createdAt string
		)
		if err := rows.Scan(&rec.ID, &rec.Name, &tickers, &rec.Start, &rec.End, &metrics, &createdAt); err != nil {
			return nil, fmt.Errorf("scan backtest run: %w", err)
		}
		if err := json.Unmarshal([]byte(tickers), &rec.Tickers); err != nil {
			return nil, fmt.Errorf("decode tickers for %s: %w", rec.ID, err)
		}
		rec.Metrics = json.RawMessage(metrics)
		if rec.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at for %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list backtest runs rows: %w", err)
	}
	return out, nil
}
