package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/avolkov/paperboy/internal/cache"
	"github.com/avolkov/paperboy/internal/model"
	"github.com/avolkov/paperboy/internal/util"
	"github.com/avolkov/paperboy/internal/worker"
)

const maxResponseBytes = 16 << 20

// Fetcher is the shared HTTP layer for all feed sources: one client with
// proxy support, per-host rate limiting, response caching, and retries on
// transient upstream failures.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	limiter    *worker.Limiter
	cache      cache.Cache
	cacheTTL   time.Duration
	retry      worker.Policy
}

// NewFetcher builds a fetcher from the HTTP config. A nil cache disables
// caching.
func NewFetcher(cfg model.HTTPConfig, c cache.Cache) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Fetcher{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy),
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		userAgent: cfg.UserAgent,
		limiter:   worker.NewLimiter(2, 2),
		cache:     c,
		cacheTTL:  cfg.CacheTTL,
		retry:     worker.Policy{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2},
	}
}

// statusError marks HTTP responses outside 2xx
type statusError struct {
	code   int
	status string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status: %s", e.status)
}

func retryableFetch(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// Get fetches url on behalf of the named source, serving from cache when a
// fresh entry exists.
func (f *Fetcher) Get(ctx context.Context, source, url string) ([]byte, error) {
	key := cache.Key(source, url)
	if f.cache != nil {
		if body, found := f.cache.Get(key); found {
			return body, nil
		}
	}

	var body []byte
	err := worker.Retry(ctx, f.retry, retryableFetch, func(ctx context.Context) error {
		var err error
		body, err = f.fetchOnce(ctx, url)
		return err
	})
	if err != nil {
		return nil, err
	}

	if f.cache != nil {
		_ = f.cache.Set(key, body, f.cacheTTL)
	}
	return body, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	if err := f.limiter.Wait(ctx, url); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/atom+xml,application/json,text/html;q=0.9,*/*;q=0.8")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{code: resp.StatusCode, status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
