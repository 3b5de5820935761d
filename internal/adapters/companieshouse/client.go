// Package companieshouse reads filing deadlines and company searches from the
// Companies House public data API.
package companieshouse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/PetrosWatts/regdeadline/internal/config"
	"github.com/PetrosWatts/regdeadline/internal/core"
)

const searchDateFormat = "2006-01-02"

// Client implements core.DeadlineSource
type Client struct {
	baseURL     string
	apiKey      string
	http        *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	retryMin    time.Duration
	retryMax    time.Duration
	logger      *zap.Logger
}

// Option customises a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithRetryDelay sets the backoff bounds between attempts
func WithRetryDelay(min, max time.Duration) Option {
	return func(cl *Client) {
		cl.retryMin = min
		cl.retryMax = max
	}
}

// NewClient creates a new Companies House client
func NewClient(cfg config.RegistryConfig, logger *zap.Logger, opts ...Option) *Client {
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	c := &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		http:        &http.Client{Timeout: cfg.Timeout},
		limiter:     rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		maxAttempts: cfg.MaxAttempts,
		retryMin:    500 * time.Millisecond,
		retryMax:    10 * time.Second,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type companyProfile struct {
	Accounts struct {
		NextDue string `json:"next_due"`
	} `json:"accounts"`
	ConfirmationStatement struct {
		NextDue string `json:"next_due"`
	} `json:"confirmation_statement"`
}

type searchResponse struct {
	Items []struct {
		CompanyNumber  string `json:"company_number"`
		CompanyName    string `json:"company_name"`
		DateOfCreation string `json:"date_of_creation"`
	} `json:"items"`
}

// CompanyDeadlines returns the next accounts and confirmation statement due
// dates. A non-200 answer is logged and yields nil deadlines.
func (c *Client) CompanyDeadlines(ctx context.Context, companyNumber string) (core.Deadlines, error) {
	var profile companyProfile
	ok, err := c.get(ctx, "/company/"+url.PathEscape(companyNumber), nil, &profile)
	if err != nil || !ok {
		return nil, err
	}

	deadlines := core.Deadlines{}
	if profile.Accounts.NextDue != "" {
		deadlines[core.DeadlineAccounts] = profile.Accounts.NextDue
	}
	if profile.ConfirmationStatement.NextDue != "" {
		deadlines[core.DeadlineConfirmationStatement] = profile.ConfirmationStatement.NextDue
	}
	return deadlines, nil
}

// SearchCompanies runs an advanced search, newest incorporations first
func (c *Client) SearchCompanies(ctx context.Context, search core.CompanySearch) ([]core.Company, error) {
	params := url.Values{}
	params.Set("sort_order", "descending")
	if search.Size > 0 {
		params.Set("size", strconv.Itoa(search.Size))
	}
	if !search.IncorporatedFrom.IsZero() {
		params.Set("incorporated_from", search.IncorporatedFrom.Format(searchDateFormat))
	}
	if !search.IncorporatedTo.IsZero() {
		params.Set("incorporated_to", search.IncorporatedTo.Format(searchDateFormat))
	}
	if search.Status != "" {
		params.Set("company_status", search.Status)
	}

	var resp searchResponse
	ok, err := c.get(ctx, "/advanced-search/companies", params, &resp)
	if err != nil || !ok {
		return nil, err
	}

	companies := make([]core.Company, 0, len(resp.Items))
	for _, item := range resp.Items {
		companies = append(companies, core.Company{
			Number:         item.CompanyNumber,
			Name:           item.CompanyName,
			IncorporatedOn: item.DateOfCreation,
		})
	}
	return companies, nil
}

// get performs a rate limited GET and decodes a 200 body into out. It
// retries 429 and 5xx answers with backoff. It reports false for any other
// non-200 status.
func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) (bool, error) {
	if c.apiKey == "" {
		return false, core.ErrMissingCredentials
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	logger := c.logger.With(zap.String("url", endpoint))

	boff := backoff.Backoff{Min: c.retryMin, Max: c.retryMax, Factor: 2, Jitter: true}

	for attempt := 1; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return false, err
		}

		status, body, err := c.do(ctx, endpoint)
		retryable := err != nil || status == http.StatusTooManyRequests || status >= 500
		if !retryable {
			if status != http.StatusOK {
				logger.Warn("Companies House returned an error", zap.Int("status", status))
				return false, nil
			}
			if err := json.Unmarshal(body, out); err != nil {
				return false, fmt.Errorf("failed to decode response from %s: %w", path, err)
			}
			return true, nil
		}

		if attempt >= c.maxAttempts {
			if err != nil {
				return false, fmt.Errorf("request to %s failed after %d attempts: %w", path, attempt, err)
			}
			logger.Warn("Companies House request failed", zap.Int("status", status), zap.Int("attempts", attempt))
			return false, nil
		}

		delay := boff.Duration()
		logger.Debug("Retrying Companies House request",
			zap.Int("attempt", attempt),
			zap.Int("status", status),
			zap.Duration("delay", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Client) do(ctx context.Context, endpoint string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.apiKey, "")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}
