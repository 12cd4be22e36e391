package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/retriever"

	"github.com/dyike/alphaagents/internal/dataflows"
	"github.com/dyike/alphaagents/internal/logger"
	"github.com/dyike/alphaagents/internal/retrieval"
)

const annualReportForm = "10-K"

// errIndexAborted is seen by callers waiting on a load that panicked.
var errIndexAborted = errors.New("filing index load aborted")

// FilingCapability answers questions from the latest 10-K of a company. Each
// filing is downloaded and indexed once per process. Callers asking about the
// same ticker share one download; other tickers never wait on it.
type FilingCapability struct {
	filings  dataflows.FilingSource
	splitter *retrieval.Splitter
	topK     int
	embedder embedding.Embedder

	mu      sync.Mutex
	indexes map[string]*filingIndex
}

// filingIndex is one ticker's index, ready once done is closed.
type filingIndex struct {
	done chan struct{}
	r    retriever.Retriever
	err  error
}

type FilingOption func(*FilingCapability)

// WithEmbedder ranks filing chunks by embedding similarity. Filings whose
// chunks cannot be embedded are indexed lexically instead.
func WithEmbedder(e embedding.Embedder) FilingOption {
	return func(c *FilingCapability) {
		c.embedder = e
	}
}

func NewFilingCapability(filings dataflows.FilingSource, splitter *retrieval.Splitter, topK int, opts ...FilingOption) *FilingCapability {
	c := &FilingCapability{
		filings:  filings,
		splitter: splitter,
		topK:     topK,
		indexes:  make(map[string]*filingIndex),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func noFilingInfo(ticker string) string {
	return fmt.Sprintf("No 10-K information found for %s. The filing may need to be downloaded first.", ticker)
}

// QueryFilingSection returns the passages most relevant to question, or the
// no-information text when the company has no indexed filing or nothing
// matches.
func (c *FilingCapability) QueryFilingSection(ctx context.Context, ticker, question string) (string, error) {
	ticker = dataflows.NormalizeSymbol(ticker)
	if err := dataflows.ValidateSymbol(ticker); err != nil {
		return "", err
	}

	index, err := c.index(ctx, ticker)
	if errors.Is(err, dataflows.ErrNotFound) {
		return noFilingInfo(ticker), nil
	}
	if err != nil {
		return "", err
	}

	docs, err := index.Retrieve(ctx, question, retriever.WithTopK(c.topK))
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return noFilingInfo(ticker), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Information from %s 10-K filing:\n\n", ticker)
	for i, d := range docs {
		fmt.Fprintf(&b, "[Result %d]\n%s\n\n", i+1, d.Content)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// index returns the ticker's index, loading it on first use. c.mu only
// guards the map; the download runs without it. A failed load is forgotten
// so a later call can retry.
func (c *FilingCapability) index(ctx context.Context, ticker string) (retriever.Retriever, error) {
	c.mu.Lock()
	entry, ok := c.indexes[ticker]
	if !ok {
		entry = &filingIndex{done: make(chan struct{})}
		c.indexes[ticker] = entry
	}
	c.mu.Unlock()

	if ok {
		select {
		case <-entry.done:
			if isContextErr(entry.err) && ctx.Err() == nil {
				// the loading caller gave up; this one has not
				return c.index(ctx, ticker)
			}
			return entry.r, entry.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	defer func() {
		if entry.r == nil {
			if entry.err == nil {
				entry.err = errIndexAborted
			}
			c.mu.Lock()
			delete(c.indexes, ticker)
			c.mu.Unlock()
		}
		close(entry.done)
	}()
	entry.r, entry.err = c.load(ctx, ticker)
	return entry.r, entry.err
}

func (c *FilingCapability) load(ctx context.Context, ticker string) (retriever.Retriever, error) {
	op := logger.StartOperation(ctx, "index_filing", "ticker", ticker)
	filing, err := c.filings.LatestFiling(op.Context(), ticker, annualReportForm)
	if err != nil {
		op.EndWithError(err)
		return nil, err
	}
	text, err := c.filings.FilingText(op.Context(), filing)
	if err != nil {
		op.EndWithError(err)
		return nil, err
	}

	docs := c.splitter.Documents(ticker+"-"+filing.AccessionNumber, text, map[string]any{
		"ticker":      ticker,
		"form":        filing.Form,
		"filing_date": filing.FilingDate.Format("2006-01-02"),
		"source":      filing.URL,
	})

	if c.embedder != nil {
		idx := retrieval.NewEmbeddingRetriever(c.embedder, c.topK)
		err := idx.Add(op.Context(), docs...)
		if err == nil {
			op.End("chunks", idx.Len(), "accession", filing.AccessionNumber, "index", "embedding")
			return idx, nil
		}
		logger.Warn(op.Context(), "embedding filing failed, using lexical index", "ticker", ticker, "error", err)
	}

	idx := retrieval.NewLexicalRetriever(c.topK)
	idx.Add(docs...)
	op.End("chunks", idx.Len(), "accession", filing.AccessionNumber, "index", "lexical")
	return idx, nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
