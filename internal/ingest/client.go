// Package ingest polls an upstream outcome feed and drives live sessions
// with the new events it finds.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/signal-engine/internal/model"
	"github.com/sells-group/signal-engine/internal/resilience"
)

// FeedRecord is one outcome as delivered by the upstream feed.
type FeedRecord struct {
	Sequence  int64     `json:"sequence"`
	Category  string    `json:"category"`
	Value     int       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientOptions configures the feed client.
type ClientOptions struct {
	// RequestsPerSec throttles feed polling. Default: 1.
	RequestsPerSec float64
	// Timeout bounds a single feed request. Default: 15s.
	Timeout time.Duration
	// Retry controls per-request retry behavior.
	Retry resilience.RetryConfig
	// Breaker optionally short-circuits a persistently failing feed.
	Breaker *resilience.CircuitBreaker
}

// Client fetches recent outcomes from the feed with rate limiting, retries
// and an optional circuit breaker.
type Client struct {
	feedURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// NewClient creates a feed client for the given URL.
func NewClient(feedURL string, opts ClientOptions) *Client {
	rps := opts.RequestsPerSec
	if rps <= 0 {
		rps = 1
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	retry := opts.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("feed", "recent")
	}
	return &Client{
		feedURL: feedURL,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		retry:   retry,
		breaker: opts.Breaker,
	}
}

// Recent fetches the feed's recent outcomes, oldest first.
func (c *Client) Recent(ctx context.Context) ([]FeedRecord, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "ingest: rate limit wait")
	}

	fetch := func(ctx context.Context) ([]FeedRecord, error) {
		return c.fetchOnce(ctx)
	}
	if c.breaker != nil {
		inner := fetch
		fetch = func(ctx context.Context) ([]FeedRecord, error) {
			return resilience.ExecuteVal(ctx, c.breaker, inner)
		}
	}
	return resilience.DoVal(ctx, c.retry, fetch)
}

func (c *Client) fetchOnce(ctx context.Context) ([]FeedRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feedURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: fetch feed")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		err := eris.Errorf("ingest: feed returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var records []FeedRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, eris.Wrap(err, "ingest: decode feed")
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Sequence < records[j].Sequence })
	return records, nil
}

// ParseCategory maps a feed category string onto the engine's category type.
func ParseCategory(s string) (model.Category, error) {
	switch model.Category(s) {
	case model.CategoryRed, model.CategoryBlack, model.CategoryWhite:
		return model.Category(s), nil
	default:
		return "", fmt.Errorf("unknown category %q", s)
	}
}
