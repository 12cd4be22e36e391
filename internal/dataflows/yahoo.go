package dataflows

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"

	"github.com/dyike/alphaagents/internal/ratelimit"
)

// YahooClient handles Yahoo Finance price history
type YahooClient struct {
	cache   *CacheManager
	limiter ratelimit.Limiter
	retry   *RetryConfig
}

func NewYahooClient(config *Config, limiter ratelimit.Limiter) *YahooClient {
	cacheDir := filepath.Join(config.DataCacheDir, "yahoo_finance")
	cache := NewCacheManager(cacheDir, 24*time.Hour, config.CacheEnabled)

	if limiter == nil {
		limiter = ratelimit.Noop()
	}
	return &YahooClient{
		cache:   cache,
		limiter: limiter,
		retry:   DefaultRetryConfig(),
	}
}

// History gets daily bars for symbol between start and end.
func (yc *YahooClient) History(ctx context.Context, symbol string, start, end time.Time) ([]*MarketData, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	symbol = NormalizeSymbol(symbol)

	cacheKey := map[string]interface{}{
		"symbol": symbol,
		"start":  start.Format("2006-01-02"),
		"end":    end.Format("2006-01-02"),
	}
	var cached []*MarketData
	if yc.cache.Get("yahoo", "historical", cacheKey, &cached) {
		return cached, nil
	}

	var result []*MarketData
	err := WithRetry(ctx, yc.retry, func() error {
		if err := yc.limiter.Wait(ctx); err != nil {
			return Permanent(err)
		}
		iter := chart.Get(&chart.Params{
			Symbol:   symbol,
			Start:    datetime.New(&start),
			End:      datetime.New(&end),
			Interval: datetime.OneDay,
		})

		result = make([]*MarketData, 0)
		for iter.Next() {
			bar := iter.Bar()
			result = append(result, &MarketData{
				Symbol:   symbol,
				Date:     time.Unix(int64(bar.Timestamp), 0).UTC(),
				Open:     bar.Open,
				High:     bar.High,
				Low:      bar.Low,
				Close:    bar.Close,
				AdjClose: bar.AdjClose,
				Volume:   int64(bar.Volume),
			})
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("failed to get historical data for %s: %w", symbol, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("no price data for %s between %s and %s: %w",
			symbol, start.Format("2006-01-02"), end.Format("2006-01-02"), ErrNotFound)
	}

	yc.cache.Set("yahoo", "historical", cacheKey, result)
	return result, nil
}
