// Package oracle implements the price lookup client used to quote
// trades. Lookups are bounded by a request timeout, rate limited, and
// guarded by a circuit breaker so a dead quote service degrades into a
// retryable error instead of hanging trades.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/papertrade/stock-ledger/internal/interfaces"
	"github.com/papertrade/stock-ledger/internal/models"
)

const (
	defaultTimeout = 5 * time.Second
	defaultRPS     = 10
)

type Config struct {
	BaseURL string
	APIKey  string

	// RequestTimeout caps a single lookup; zero means 5s.
	RequestTimeout time.Duration

	// RequestsPerSecond throttles outbound lookups; zero means 10.
	RequestsPerSecond float64
}

// Client resolves ticker symbols against an IEX-style quote endpoint:
// GET {base}/stock/{symbol}/quote?token={key}.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  zerolog.Logger
}

func NewClient(cfg Config, logger zerolog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRPS
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "price-oracle",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// An unknown symbol is a valid answer, not an oracle failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, interfaces.ErrSymbolNotFound)
		},
	})

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)),
		logger:  logger,
	}
}

func (c *Client) Lookup(ctx context.Context, symbol string) (models.Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return models.Quote{}, interfaces.ErrSymbolNotFound
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return models.Quote{}, fmt.Errorf("%w: %v", interfaces.ErrOracleUnavailable, err)
	}

	result, err := c.breaker.Execute(func() (any, error) {
		return c.fetch(ctx, symbol)
	})
	switch {
	case errors.Is(err, interfaces.ErrSymbolNotFound):
		return models.Quote{}, fmt.Errorf("%w: %s", interfaces.ErrSymbolNotFound, symbol)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.logger.Warn().Str("symbol", symbol).Msg("oracle circuit open")
		return models.Quote{}, fmt.Errorf("%w: %v", interfaces.ErrOracleUnavailable, err)
	case err != nil:
		if errors.Is(err, interfaces.ErrOracleUnavailable) {
			return models.Quote{}, err
		}
		return models.Quote{}, fmt.Errorf("%w: %v", interfaces.ErrOracleUnavailable, err)
	}
	return result.(models.Quote), nil
}

func (c *Client) fetch(ctx context.Context, symbol string) (models.Quote, error) {
	endpoint := fmt.Sprintf("%s/stock/%s/quote", c.baseURL, url.PathEscape(symbol))
	if c.apiKey != "" {
		endpoint += "?token=" + url.QueryEscape(c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.Quote{}, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return models.Quote{}, fmt.Errorf("%w: %v", interfaces.ErrOracleUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return models.Quote{}, interfaces.ErrSymbolNotFound
	case resp.StatusCode != http.StatusOK:
		return models.Quote{}, fmt.Errorf("%w: status %d", interfaces.ErrOracleUnavailable, resp.StatusCode)
	}

	var body struct {
		Symbol      string          `json:"symbol"`
		CompanyName string          `json:"companyName"`
		LatestPrice decimal.Decimal `json:"latestPrice"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return models.Quote{}, fmt.Errorf("%w: decode quote: %v", interfaces.ErrOracleUnavailable, err)
	}
	if body.LatestPrice.Sign() <= 0 {
		return models.Quote{}, fmt.Errorf("%w: non-positive price for %s", interfaces.ErrOracleUnavailable, symbol)
	}

	return models.Quote{
		Symbol: strings.ToUpper(body.Symbol),
		Name:   body.CompanyName,
		Price:  body.LatestPrice,
	}, nil
}

var _ interfaces.PriceOracle = (*Client)(nil)
