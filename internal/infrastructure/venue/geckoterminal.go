package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	cb "github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/avel/solana_strategy_bot/internal/domain"
)

const GeckoTerminalBaseURL = "https://api.geckoterminal.com/api/v2"

// GeckoTerminalClient prices a token from its top pool on GeckoTerminal.
type GeckoTerminalClient struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	breaker *cb.CircuitBreaker
}

func NewGeckoTerminalClient(baseURL string) *GeckoTerminalClient {
	if baseURL == "" {
		baseURL = GeckoTerminalBaseURL
	}
	return &GeckoTerminalClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(0.5), 2), // free tier: 30 req/min
		breaker: newBreaker("geckoterminal"),
	}
}

func (c *GeckoTerminalClient) Name() string { return "geckoterminal" }

func (c *GeckoTerminalClient) GetPrice(ctx context.Context, token string) (*domain.VenuePrice, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	res, err := c.breaker.Execute(func() (any, error) {
		return c.fetch(ctx, token)
	})
	if err != nil {
		return nil, err
	}
	return res.(*domain.VenuePrice), nil
}

func (c *GeckoTerminalClient) fetch(ctx context.Context, token string) (*domain.VenuePrice, error) {
	url := fmt.Sprintf("%s/networks/solana/tokens/%s/pools?page=1", c.baseURL, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("geckoterminal: status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Data []struct {
			Attributes struct {
				BaseTokenPriceUsd string `json:"base_token_price_usd"`
				ReserveInUsd      string `json:"reserve_in_usd"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("geckoterminal: decode: %w", err)
	}
	if len(result.Data) == 0 {
		return nil, domain.ErrUnsupportedVenue
	}

	attrs := result.Data[0].Attributes
	price, err := strconv.ParseFloat(attrs.BaseTokenPriceUsd, 64)
	if err != nil {
		return nil, fmt.Errorf("geckoterminal: bad price %q: %w", attrs.BaseTokenPriceUsd, err)
	}
	liquidity, _ := strconv.ParseFloat(attrs.ReserveInUsd, 64)

	return &domain.VenuePrice{
		Venue:     c.Name(),
		Price:     price,
		Liquidity: liquidity,
		Timestamp: time.Now(),
	}, nil
}
