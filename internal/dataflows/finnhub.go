package dataflows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dyike/alphaagents/internal/ratelimit"
)

const finnhubBaseURL = "https://finnhub.io/api/v1"

// FinnhubClient handles Finnhub API operations
type FinnhubClient struct {
	client  *resty.Client
	cache   *CacheManager
	limiter ratelimit.Limiter
	retry   *RetryConfig
	apiKey  string
	dataDir string
}

// NewFinnhubClient creates a new Finnhub client
func NewFinnhubClient(config *Config, limiter ratelimit.Limiter) *FinnhubClient {
	cacheDir := filepath.Join(config.DataCacheDir, "finnhub")
	cache := NewCacheManager(cacheDir, 6*time.Hour, config.CacheEnabled)

	client := resty.New()
	client.SetBaseURL(finnhubBaseURL)
	client.SetTimeout(30 * time.Second)

	if limiter == nil {
		limiter = ratelimit.Noop()
	}
	return &FinnhubClient{
		client:  client,
		cache:   cache,
		limiter: limiter,
		retry:   DefaultRetryConfig(),
		apiKey:  config.FinnhubAPIKey,
		dataDir: config.DataDir,
	}
}

// WithBaseURL points the client at another endpoint.
func (fc *FinnhubClient) WithBaseURL(url string) *FinnhubClient {
	fc.client.SetBaseURL(url)
	return fc
}

// FinnhubNews represents news from Finnhub API
type FinnhubNews struct {
	Category string `json:"category"`
	DateTime int64  `json:"datetime"`
	Headline string `json:"headline"`
	ID       int64  `json:"id"`
	Image    string `json:"image"`
	Related  string `json:"related"`
	Source   string `json:"source"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}

// CompanyNews gets news articles for a company, newest first.
func (fc *FinnhubClient) CompanyNews(ctx context.Context, symbol string, from, to time.Time) ([]*NewsArticle, error) {
	if fc.apiKey == "" {
		return nil, errors.New("Finnhub API key not configured")
	}
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	symbol = NormalizeSymbol(symbol)

	cacheKey := map[string]interface{}{
		"symbol": symbol,
		"from":   from.Format("2006-01-02"),
		"to":     to.Format("2006-01-02"),
	}
	var cached []*NewsArticle
	if fc.cache.Get("finnhub", "company_news", cacheKey, &cached) {
		return cached, nil
	}

	var result []*NewsArticle
	err := WithRetry(ctx, fc.retry, func() error {
		if err := fc.limiter.Wait(ctx); err != nil {
			return Permanent(err)
		}
		resp, err := fc.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"symbol": symbol,
				"from":   from.Format("2006-01-02"),
				"to":     to.Format("2006-01-02"),
				"token":  fc.apiKey,
			}).
			Get("/company-news")
		if err != nil {
			return fmt.Errorf("failed to fetch news for %s: %w", symbol, err)
		}
		if resp.StatusCode() != 200 {
			return statusError("Finnhub", resp.StatusCode(), resp.String())
		}

		var finnhubNews []FinnhubNews
		if err := json.Unmarshal(resp.Body(), &finnhubNews); err != nil {
			return Permanent(fmt.Errorf("failed to parse news response: %w", err))
		}

		result = make([]*NewsArticle, 0, len(finnhubNews))
		for _, news := range finnhubNews {
			result = append(result, &NewsArticle{
				Title:       news.Headline,
				Summary:     news.Summary,
				URL:         news.URL,
				Source:      news.Source,
				PublishedAt: time.Unix(news.DateTime, 0).UTC(),
				Metadata: map[string]string{
					"category": news.Category,
					"related":  news.Related,
					"id":       strconv.FormatInt(news.ID, 10),
				},
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].PublishedAt.After(result[j].PublishedAt)
	})

	fc.cache.Set("finnhub", "company_news", cacheKey, result)
	if fc.dataDir != "" {
		filePath := filepath.Join(fc.dataDir, "finnhub_data",
			fmt.Sprintf("news_%s_%s_%s.json", symbol, from.Format("2006-01-02"), to.Format("2006-01-02")))
		SaveDataToFile(result, filePath)
	}

	return result, nil
}
