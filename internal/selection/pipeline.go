// Package selection runs debates over a universe of tickers and keeps the
// ones the analysts agree to buy.
package selection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dyike/alphaagents/internal/dataflows"
	"github.com/dyike/alphaagents/internal/debate"
	"github.com/dyike/alphaagents/internal/logger"
	"github.com/dyike/alphaagents/internal/recommendation"
	"github.com/dyike/alphaagents/internal/riskprofile"
	"github.com/dyike/alphaagents/internal/storage"
)

type Status int

const (
	Pending Status = iota
	Running
	Completed
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Item is the outcome for one ticker.
type Item struct {
	Ticker   string
	Status   Status
	Result   *debate.DebateResult
	Err      error
	Duration time.Duration
}

func (it Item) Decision() recommendation.Action {
	if it.Result == nil {
		return recommendation.ActionUnset
	}
	return it.Result.Consensus.Decision
}

type Report struct {
	RiskProfile string
	Items       []Item
	Buys        []string
	Completed   int
	Failed      int
	Duration    time.Duration
}

type Debater interface {
	RunDebate(ctx context.Context, ticker, profileName string) (*debate.DebateResult, error)
}

type DecisionStore interface {
	SaveDecision(ctx context.Context, rec *storage.DecisionRecord) error
}

type Option func(*Pipeline)

// WithStore records every completed debate.
func WithStore(store DecisionStore) Option {
	return func(p *Pipeline) { p.store = store }
}

// WithProgress is called after every status change. Calls are serialized.
func WithProgress(fn func(Item)) Option {
	return func(p *Pipeline) { p.onUpdate = fn }
}

type Pipeline struct {
	debater     Debater
	store       DecisionStore
	concurrency int
	onUpdate    func(Item)

	mu sync.Mutex
}

func NewPipeline(debater Debater, concurrency int, opts ...Option) *Pipeline {
	if concurrency <= 0 || concurrency > 10 {
		concurrency = 3
	}
	p := &Pipeline{debater: debater, concurrency: concurrency}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run debates every ticker with at most the configured number of sessions in
// flight. Items keep the order of universe. A failing ticker is reported and
// skipped; an unknown risk profile aborts the whole run.
func (p *Pipeline) Run(ctx context.Context, universe []string, profileName string) (*Report, error) {
	if len(universe) == 0 {
		return nil, fmt.Errorf("no tickers provided for selection")
	}

	began := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	op := logger.StartOperation(ctx, "stock_selection", "tickers", len(universe), "risk_profile", profileName)
	report := &Report{RiskProfile: profileName, Items: make([]Item, len(universe))}
	for i, t := range universe {
		report.Items[i] = Item{Ticker: dataflows.NormalizeSymbol(t), Status: Pending}
	}

	var (
		fatalOnce sync.Once
		fatal     error
	)
	semaphore := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup
	for i := range report.Items {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			err := p.process(op.Context(), report, idx)
			if errors.Is(err, riskprofile.ErrUnknownProfile) {
				fatalOnce.Do(func() {
					fatal = err
					cancel()
				})
			}
		}(i)
	}
	wg.Wait()
	report.Duration = time.Since(began)

	if fatal != nil {
		op.EndWithError(fatal)
		return nil, fatal
	}

	for _, it := range report.Items {
		switch it.Status {
		case Completed:
			report.Completed++
			if it.Decision() == recommendation.ActionBuy {
				report.Buys = append(report.Buys, it.Ticker)
			}
		case Failed:
			report.Failed++
		}
	}
	op.End("completed", report.Completed, "failed", report.Failed, "buys", len(report.Buys))
	return report, nil
}

func (p *Pipeline) process(ctx context.Context, report *Report, idx int) error {
	began := time.Now()
	p.update(report, idx, func(it *Item) { it.Status = Running })

	ticker := report.Items[idx].Ticker
	var res *debate.DebateResult
	err := dataflows.ValidateSymbol(ticker)
	if err == nil {
		err = ctx.Err()
	}
	if err == nil {
		res, err = p.debater.RunDebate(ctx, ticker, report.RiskProfile)
	}

	if err == nil && p.store != nil {
		rec := storage.DecisionFromDebate(res)
		if serr := p.store.SaveDecision(ctx, &rec); serr != nil {
			logger.Warn(ctx, "Failed to record decision", "ticker", ticker, "error", serr)
		}
	}
	if err != nil {
		logger.Warn(ctx, "Selection skipped ticker", "ticker", ticker, "error", err)
	}

	p.update(report, idx, func(it *Item) {
		it.Duration = time.Since(began)
		it.Result = res
		it.Err = err
		it.Status = Completed
		if err != nil {
			it.Status = Failed
		}
	})
	return err
}

func (p *Pipeline) update(report *Report, idx int, fn func(*Item)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&report.Items[idx])
	if p.onUpdate != nil {
		p.onUpdate(report.Items[idx])
	}
}
