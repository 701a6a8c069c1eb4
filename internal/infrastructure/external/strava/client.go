package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fitmatch/fitmatch-core/internal/domain/fitness"
	"github.com/fitmatch/fitmatch-core/pkg/circuitbreaker"
	"github.com/fitmatch/fitmatch-core/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// DefaultBaseURL is the public v3 API root.
const DefaultBaseURL = "https://www.strava.com/api/v3"

// Config contains configuration for the provider client.
type Config struct {
	// BaseURL is the API root, without trailing slash.
	BaseURL string

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration

	// PerPage is the page size for activity listing. The provider caps it at 200.
	PerPage int

	// MaxPages bounds a single history fetch. Zero means no bound.
	MaxPages int

	// MaxAttempts is the retry budget per page.
	MaxAttempts int

	// BreakerFailures consecutive server-side failures open the breaker.
	BreakerFailures int

	// BreakerOpenFor is how long the breaker stays open.
	BreakerOpenFor time.Duration

	RateLimiterConfig RateLimiterConfig

	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:           DefaultBaseURL,
		Timeout:           15 * time.Second,
		PerPage:           200,
		MaxPages:          50,
		MaxAttempts:       3,
		BreakerFailures:   5,
		BreakerOpenFor:    time.Minute,
		RateLimiterConfig: DefaultRateLimiterConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client reads athlete activities. It implements fitness.ActivitySource.
type Client struct {
	config     Config
	httpClient *http.Client
	tokens     TokenSource
	logger     *slog.Logger
	limiter    *RateLimiter
	retrier    *retry.Retrier
	breaker    *circuitbreaker.CircuitBreaker
}

var _ fitness.ActivitySource = (*Client)(nil)

// NewClient creates a client. tokens supplies per-user access tokens.
func NewClient(cfg Config, tokens TokenSource) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.PerPage <= 0 || cfg.PerPage > 200 {
		cfg.PerPage = def.PerPage
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if tokens == nil {
		tokens = ContextTokenSource{}
	}

	logger := cfg.Logger.With(slog.String("component", "strava"))
	c := &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		tokens:     tokens,
		logger:     logger,
		limiter:    NewRateLimiter(cfg.RateLimiterConfig),
	}
	c.retrier = retry.StravaAPIRetrier(cfg.MaxAttempts, func(attempt int, err error, delay time.Duration) {
		logger.Warn("retrying provider request",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
	})
	c.breaker = circuitbreaker.StravaAPIBreaker(cfg.BreakerFailures, cfg.BreakerOpenFor, isBreakerFailure,
		func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		})
	return c
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// FetchActivities returns every activity started after since. A zero since
// fetches the full history.
func (c *Client) FetchActivities(ctx context.Context, userID string, since time.Time) ([]fitness.Activity, error) {
	token, err := c.tokens.Token(ctx, userID)
	if err != nil {
		return nil, err
	}

	var all []fitness.Activity
	for page := 1; c.config.MaxPages == 0 || page <= c.config.MaxPages; page++ {
		dtos, err := c.listPage(ctx, token, since, page)
		if err != nil {
			return nil, fmt.Errorf("list activities page %d: %w", page, err)
		}
		all = append(all, ActivitiesFromDTOs(dtos)...)
		if len(dtos) < c.config.PerPage {
			break
		}
	}

	c.logger.Debug("activities fetched",
		slog.String("user_id", userID),
		slog.Int("count", len(all)),
	)
	return all, nil
}

func (c *Client) listPage(ctx context.Context, token string, since time.Time, page int) ([]ActivityDTO, error) {
	params := url.Values{}
	if !since.IsZero() {
		params.Set("after", strconv.FormatInt(since.Unix(), 10))
	}
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(c.config.PerPage))

	var dtos []ActivityDTO
	err := c.doRequest(ctx, token, "/athlete/activities?"+params.Encode(), &dtos)
	return dtos, err
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// doRequest runs one GET through the breaker and the retrier.
func (c *Client) doRequest(ctx context.Context, token, path string, result interface{}) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			return c.doSingleRequest(ctx, token, path, result)
		})
	})
}

func (c *Client) doSingleRequest(ctx context.Context, token, path string, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+path, nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return retry.Retryable(fmt.Errorf("execute request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return retry.Retryable(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		c.limiter.OnRateLimited(parseRetryAfter(resp.Header.Get("Retry-After")))
		return retry.Retryable(newAPIError(resp.StatusCode, body))
	}
	if resp.StatusCode >= 500 {
		return retry.Retryable(newAPIError(resp.StatusCode, body))
	}
	if resp.StatusCode >= 400 {
		return retry.Permanent(newAPIError(resp.StatusCode, body))
	}

	if err := json.Unmarshal(body, result); err != nil {
		return retry.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func newAPIError(status int, body []byte) *APIError {
	var fault FaultDTO
	msg := ""
	if json.Unmarshal(body, &fault) == nil {
		msg = fault.Message
	}
	return &APIError{StatusCode: status, Message: msg}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// isBreakerFailure counts only failures that point at the provider.
func isBreakerFailure(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsServerSide()
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, ErrNoAccessToken)
}
