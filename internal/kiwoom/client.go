package kiwoom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the base URL for the Kiwoom REST API.
	DefaultBaseURL = "https://api.kiwoom.com"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 5

	chartPath = "/api/dostk/chart"
)

// Client is a Kiwoom chart API client. One method per candle resolution;
// no client-side retries, callers handle error results.
type Client struct {
	baseURL    string
	tokens     *TokenKeeper
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets a custom rate limit.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewClient creates a new Kiwoom chart API client.
func NewClient(tokens *TokenKeeper, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// post executes one chart request with the given TR code. On a 401 the
// request is retried once with a force-refreshed token.
func (c *Client) post(ctx context.Context, trCode string, body chartRequestBody) (*ChartResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	resp, err := c.doPost(ctx, trCode, body, false)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		resp, err = c.doPost(ctx, trCode, body, true)
		if err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
			Endpoint:   trCode,
		}
	}

	var chart ChartResponse
	if err := json.NewDecoder(resp.Body).Decode(&chart); err != nil {
		return nil, fmt.Errorf("failed to decode chart response: %w", err)
	}
	return &chart, nil
}

func (c *Client) doPost(ctx context.Context, trCode string, body chartRequestBody, forceToken bool) (*http.Response, error) {
	token, err := c.tokens.GetAccessToken(ctx, forceToken)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chart request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chartPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("api-id", trCode)
	req.Header.Set("cont-yn", "N")

	if c.logger != nil {
		c.logger.Debug().
			Str("tr_code", trCode).
			Str("stk_cd", body.StkCd).
			Msg("Kiwoom chart request")
	}

	return c.httpClient.Do(req)
}

// MinuteChart retrieves minute candles. scope is the tick scope in minutes
// (1, 3, 5, 10, 15, 30, 45 or 60).
func (c *Client) MinuteChart(ctx context.Context, ticker string, scope int) (*ChartResponse, error) {
	return c.post(ctx, TRMinuteChart, chartRequestBody{
		StkCd:    NormalizeTicker(ticker),
		TicScope: strconv.Itoa(scope),
		UpdStkpc: "1",
	})
}

// DailyChart retrieves daily candles anchored at baseDate (YYYYMMDD).
func (c *Client) DailyChart(ctx context.Context, ticker, baseDate string) (*ChartResponse, error) {
	return c.post(ctx, TRDailyChart, chartRequestBody{
		StkCd:    NormalizeTicker(ticker),
		BaseDt:   baseDate,
		UpdStkpc: "1",
	})
}

// WeeklyChart retrieves weekly candles anchored at baseDate.
func (c *Client) WeeklyChart(ctx context.Context, ticker, baseDate string) (*ChartResponse, error) {
	return c.post(ctx, TRWeeklyChart, chartRequestBody{
		StkCd:    NormalizeTicker(ticker),
		BaseDt:   baseDate,
		UpdStkpc: "1",
	})
}

// MonthlyChart retrieves monthly candles anchored at baseDate.
func (c *Client) MonthlyChart(ctx context.Context, ticker, baseDate string) (*ChartResponse, error) {
	return c.post(ctx, TRMonthlyChart, chartRequestBody{
		StkCd:    NormalizeTicker(ticker),
		BaseDt:   baseDate,
		UpdStkpc: "1",
	})
}

// YearlyChart retrieves yearly candles anchored at baseDate.
func (c *Client) YearlyChart(ctx context.Context, ticker, baseDate string) (*ChartResponse, error) {
	return c.post(ctx, TRYearlyChart, chartRequestBody{
		StkCd:    NormalizeTicker(ticker),
		BaseDt:   baseDate,
		UpdStkpc: "1",
	})
}
