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

const DexScreenerBaseURL = "https://api.dexscreener.com"

// DexScreenerClient prices a token from the most liquid Solana pair the
// screener knows about.
type DexScreenerClient struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	breaker *cb.CircuitBreaker
}

func NewDexScreenerClient(baseURL string) *DexScreenerClient {
	if baseURL == "" {
		baseURL = DexScreenerBaseURL
	}
	return &DexScreenerClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(5), 5), // public API: ~300 req/min
		breaker: newBreaker("dexscreener"),
	}
}

func (c *DexScreenerClient) Name() string { return "dexscreener" }

func (c *DexScreenerClient) GetPrice(ctx context.Context, token string) (*domain.VenuePrice, error) {
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

func (c *DexScreenerClient) fetch(ctx context.Context, token string) (*domain.VenuePrice, error) {
	url := fmt.Sprintf("%s/latest/dex/tokens/%s", c.baseURL, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

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
		return nil, fmt.Errorf("dexscreener: status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Pairs []struct {
			ChainID   string `json:"chainId"`
			PriceUsd  string `json:"priceUsd"`
			Liquidity struct {
				Usd float64 `json:"usd"`
			} `json:"liquidity"`
		} `json:"pairs"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("dexscreener: decode: %w", err)
	}

	// Pick the deepest Solana pair. No pair we can parse means the venue is
	// unsupported for this token, never a made-up price.
	best := -1
	for i, p := range result.Pairs {
		if p.ChainID != "solana" || p.PriceUsd == "" {
			continue
		}
		if best == -1 || p.Liquidity.Usd > result.Pairs[best].Liquidity.Usd {
			best = i
		}
	}
	if best == -1 {
		return nil, domain.ErrUnsupportedVenue
	}

	price, err := strconv.ParseFloat(result.Pairs[best].PriceUsd, 64)
	if err != nil {
		return nil, fmt.Errorf("dexscreener: bad price %q: %w", result.Pairs[best].PriceUsd, err)
	}

	return &domain.VenuePrice{
		Venue:     c.Name(),
		Price:     price,
		Liquidity: result.Pairs[best].Liquidity.Usd,
		Timestamp: time.Now(),
	}, nil
}
