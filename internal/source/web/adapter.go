package web

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// SourceID identifies the HTTP fetcher.
const SourceID = "web"

// Config holds configuration for the HTTP fetcher.
type Config struct {
	Timeout    time.Duration
	RetryCount int
	UserAgent  string
}

// Adapter fetches http:// and https:// sources.
type Adapter struct {
	client *resty.Client
}

// NewAdapter creates a new HTTP adapter.
// Parameters:
//   - cfg: timeout, retry count and user agent.
//
// Returns:
//   - *Adapter: initialized HTTP fetcher.
func NewAdapter(cfg Config) *Adapter {
	client := resty.New()
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	if cfg.RetryCount > 0 {
		client.SetRetryCount(cfg.RetryCount).
			SetRetryWaitTime(500 * time.Millisecond).
			SetRetryMaxWaitTime(5 * time.Second).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				return err != nil || r.StatusCode() >= 500 || r.StatusCode() == 429
			})
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "textfleet-worker"
	}
	client.SetHeader("User-Agent", ua)
	return &Adapter{client: client}
}

func (a *Adapter) GetSourceID() string {
	return SourceID
}

func (a *Adapter) Supports(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Fetch downloads ref. Any non-2xx status is an error.
func (a *Adapter) Fetch(ctx context.Context, ref string) ([]byte, error) {
	resp, err := a.client.R().
		SetContext(ctx).
		Get(ref)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", ref, err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, fmt.Errorf("failed to fetch %s: HTTP %d", ref, resp.StatusCode())
	}
	return resp.Body(), nil
}
