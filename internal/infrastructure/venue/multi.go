package venue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/avel/solana_strategy_bot/internal/domain"
)

type cachedPrices struct {
	prices []*domain.VenuePrice
	expiry time.Time
}

// MultiVenueClient fans one price request out to every configured venue and
// caches the combined result for a short TTL. A single venue failing is not
// an error: it is logged and omitted, and callers treat "too few venues" as
// a no-opportunity condition.
type MultiVenueClient struct {
	venues []domain.VenueClient
	ttl    time.Duration
	logger *zap.Logger

	mu      sync.Mutex
	cache   map[string]cachedPrices
	timeNow func() time.Time // For testing
}

func NewMultiVenueClient(venues []domain.VenueClient, ttl time.Duration, logger *zap.Logger) *MultiVenueClient {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &MultiVenueClient{
		venues:  venues,
		ttl:     ttl,
		logger:  logger,
		cache:   make(map[string]cachedPrices),
		timeNow: time.Now,
	}
}

// GetPrices returns every venue quote it could obtain, possibly none.
func (m *MultiVenueClient) GetPrices(ctx context.Context, token string) []*domain.VenuePrice {
	m.mu.Lock()
	if c, ok := m.cache[token]; ok && m.timeNow().Before(c.expiry) {
		prices := c.prices
		m.mu.Unlock()
		return prices
	}
	m.mu.Unlock()

	var (
		wg  sync.WaitGroup
		out = make([]*domain.VenuePrice, len(m.venues))
	)
	for i, v := range m.venues {
		wg.Add(1)
		go func(i int, v domain.VenueClient) {
			defer wg.Done()
			price, err := v.GetPrice(ctx, token)
			if err != nil {
				m.logger.Warn("Venue price fetch failed",
					zap.String("venue", v.Name()),
					zap.String("token", token),
					zap.Error(err))
				return
			}
			out[i] = price
		}(i, v)
	}
	wg.Wait()

	prices := make([]*domain.VenuePrice, 0, len(out))
	for _, p := range out {
		if p != nil {
			prices = append(prices, p)
		}
	}

	m.mu.Lock()
	m.cache[token] = cachedPrices{prices: prices, expiry: m.timeNow().Add(m.ttl)}
	m.mu.Unlock()

	return prices
}

// GetPrice returns the deepest venue's price for the token, or
// ErrPriceUnavailable when every venue is down or unsupported.
func (m *MultiVenueClient) GetPrice(ctx context.Context, token string) (float64, error) {
	prices := m.GetPrices(ctx, token)
	if len(prices) == 0 {
		return 0, domain.ErrPriceUnavailable
	}

	best := prices[0]
	for _, p := range prices[1:] {
		if p.Liquidity > best.Liquidity {
			best = p
		}
	}
	return best.Price, nil
}
