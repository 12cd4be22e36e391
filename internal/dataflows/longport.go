package dataflows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lpconfig "github.com/longportapp/openapi-go/config"
	"github.com/longportapp/openapi-go/quote"
	"github.com/shopspring/decimal"

	"github.com/dyike/alphaagents/internal/config"
	"github.com/dyike/alphaagents/internal/logger"
	"github.com/dyike/alphaagents/internal/ratelimit"
)

// Longport caps one candlestick request at 1000 bars.
const maxLongportBars = 1000

type LongportClient struct {
	quoteCtx *quote.QuoteContext
	limiter  ratelimit.Limiter
}

func NewLongportClient(cfg *Config, limiter ratelimit.Limiter) (*LongportClient, error) {
	if !cfg.HasLongportCredentials() {
		return nil, errors.New("longport API credentials not configured")
	}

	conf, err := lpconfig.New(lpconfig.WithConfigKey(cfg.LongportAppKey, cfg.LongportAppSecret, cfg.LongportAccessToken))
	if err != nil {
		return nil, err
	}
	quoteContext, err := quote.NewFromCfg(conf)
	if err != nil {
		return nil, err
	}

	if limiter == nil {
		limiter = ratelimit.Noop()
	}
	return &LongportClient{
		quoteCtx: quoteContext,
		limiter:  limiter,
	}, nil
}

// History fetches enough daily candlesticks to cover start and keeps the
// ones inside the range.
func (lpc *LongportClient) History(ctx context.Context, symbol string, start, end time.Time) ([]*MarketData, error) {
	if lpc.quoteCtx == nil {
		return nil, errors.New("quote context is nil")
	}
	if err := lpc.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	count := int(time.Since(start).Hours()/24) + 1
	if count > maxLongportBars {
		count = maxLongportBars
	}
	sticks, err := lpc.quoteCtx.Candlesticks(ctx, symbol, quote.PeriodDay, int32(count), quote.AdjustTypeNo)
	if err != nil {
		return nil, fmt.Errorf("failed to get candlesticks for %s: %w", symbol, err)
	}

	result := make([]*MarketData, 0, len(sticks))
	for _, s := range sticks {
		if s == nil {
			continue
		}
		date := time.Unix(s.Timestamp, 0).UTC()
		if date.Before(start) || date.After(end) {
			continue
		}
		result = append(result, &MarketData{
			Symbol: symbol,
			Date:   date,
			Open:   decimalOrZero(s.Open),
			High:   decimalOrZero(s.High),
			Low:    decimalOrZero(s.Low),
			Close:  decimalOrZero(s.Close),
			Volume: s.Volume,
		})
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("no candlesticks for %s: %w", symbol, ErrNotFound)
	}
	return result, nil
}

func decimalOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

// PriceRouter sends exchange-qualified symbols (700.HK, AAPL.US) to
// Longport when it is configured and everything else to Yahoo.
type PriceRouter struct {
	yahoo    PriceSource
	longport PriceSource
}

func NewPriceRouter(yahoo, longport PriceSource) *PriceRouter {
	return &PriceRouter{yahoo: yahoo, longport: longport}
}

func (r *PriceRouter) History(ctx context.Context, symbol string, start, end time.Time) ([]*MarketData, error) {
	if r.longport != nil && isLongportSymbol(symbol) {
		return r.longport.History(ctx, NormalizeSymbol(symbol), start, end)
	}
	return r.yahoo.History(ctx, symbol, start, end)
}

func isLongportSymbol(symbol string) bool {
	symbol = NormalizeSymbol(symbol)
	for _, market := range []string{".HK", ".US", ".SH", ".SZ", ".SG"} {
		if strings.HasSuffix(symbol, market) {
			return true
		}
	}
	return false
}

// NewPriceSource builds the price source from config. Longport is used only
// when credentials exist and the client can connect.
func NewPriceSource(ctx context.Context, cfg *Config, limits *ratelimit.Registry) PriceSource {
	yahoo := NewYahooClient(cfg, limits.For(config.ProviderYahoo))
	if !cfg.HasLongportCredentials() {
		return yahoo
	}
	lp, err := NewLongportClient(cfg, limits.For(config.ProviderLongport))
	if err != nil {
		logger.Warn(ctx, "Longport unavailable, using Yahoo only", "error", err)
		return yahoo
	}
	return NewPriceRouter(yahoo, lp)
}
