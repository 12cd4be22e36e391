package dataflows

import (
	"context"
	"time"

	"github.com/dyike/alphaagents/internal/config"
	"github.com/shopspring/decimal"
)

// Config is an alias for the main application config
type Config = config.Config

// MarketData is one daily bar
type MarketData struct {
	Symbol   string          `json:"symbol"`
	Date     time.Time       `json:"date"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	AdjClose decimal.Decimal `json:"adj_close"`
	Volume   int64           `json:"volume"`
}

// ClosePrice prefers the adjusted close when the source provides one.
func (m *MarketData) ClosePrice() float64 {
	if !m.AdjClose.IsZero() {
		return m.AdjClose.InexactFloat64()
	}
	return m.Close.InexactFloat64()
}

// NewsArticle represents a news article
type NewsArticle struct {
	Title       string            `json:"title"`
	Summary     string            `json:"summary"`
	URL         string            `json:"url"`
	Source      string            `json:"source"`
	PublishedAt time.Time         `json:"published_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Filing identifies one document in a company's EDGAR submissions.
type Filing struct {
	CIK             string    `json:"cik"`
	Ticker          string    `json:"ticker"`
	CompanyName     string    `json:"company_name"`
	Form            string    `json:"form"`
	AccessionNumber string    `json:"accession_number"`
	FilingDate      time.Time `json:"filing_date"`
	PrimaryDocument string    `json:"primary_document"`
	URL             string    `json:"url"`
}

// DateRange represents a time period for data queries
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// PriceSource returns daily bars for a symbol, oldest first.
type PriceSource interface {
	History(ctx context.Context, symbol string, start, end time.Time) ([]*MarketData, error)
}

// NewsSource returns company news published within a window.
type NewsSource interface {
	CompanyNews(ctx context.Context, symbol string, from, to time.Time) ([]*NewsArticle, error)
}

// FilingSource resolves and downloads annual reports.
type FilingSource interface {
	LatestFiling(ctx context.Context, ticker, form string) (*Filing, error)
	FilingText(ctx context.Context, filing *Filing) (string, error)
}
