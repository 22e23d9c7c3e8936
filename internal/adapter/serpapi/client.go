// internal/adapter/serpapi/client.go

package serpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"adintel/internal/config"
	"adintel/internal/retry"
)

// ErrNoAPIKey is returned by every fetch when no key is configured
var ErrNoAPIKey = errors.New("SERPAPI_API_KEY is not set")

const maxBodyBytes = 8 << 20

// Client calls the SerpAPI search endpoint. It implements both
// serp.Fetcher and creative.Fetcher.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      retry.Config
	logger     *zap.Logger
}

// NewClient creates a new SerpAPI client
func NewClient(cfg config.SerpAPIConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 1
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.Attempts = cfg.MaxRetries
	if cfg.RetryDelay > 0 {
		retryCfg.InitialDelay = cfg.RetryDelay
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		retry:      retryCfg,
		logger:     logger.Named("serpapi"),
	}
}

// search runs one query and returns the raw JSON body. Errors never carry
// the API key.
func (c *Client) search(ctx context.Context, params url.Values) ([]byte, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	var body []byte
	err := retry.Do(ctx, c.retry, c.logger, params.Get("engine"), func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return retry.Permanent(fmt.Errorf("rate limiter: %w", err))
		}

		b, err := c.do(ctx, params)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.New(redact(err.Error()))
	}

	return body, nil
}

func (c *Client) do(ctx context.Context, params url.Values) ([]byte, error) {
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("error building request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("%d", resp.StatusCode)
		if e := gjson.GetBytes(body, "error"); e.Exists() && e.String() != "" {
			msg = fmt.Sprintf("%d: %s", resp.StatusCode, e.String())
		} else if len(body) > 0 {
			msg = fmt.Sprintf("%d: %s", resp.StatusCode, truncate(string(body), 200))
		}
		err := fmt.Errorf("serpapi error %s", msg)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, err
		}
		return nil, retry.Permanent(err)
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("serpapi returned invalid JSON")
	}
	// 200 with an error message in the body
	if e := gjson.GetBytes(body, "error"); e.Exists() && e.String() != "" {
		return nil, retry.Permanent(fmt.Errorf("serpapi error: %s", e.String()))
	}

	return body, nil
}

var (
	apiKeyParam = regexp.MustCompile(`(?i)api_key=[a-zA-Z0-9_-]+`)
	longKey     = regexp.MustCompile(`(?i)key=[a-zA-Z0-9_-]{20,}`)
)

// redact strips API keys from messages that may reach users
func redact(s string) string {
	s = apiKeyParam.ReplaceAllString(s, "api_key=***REDACTED***")
	return longKey.ReplaceAllString(s, "key=***REDACTED***")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
