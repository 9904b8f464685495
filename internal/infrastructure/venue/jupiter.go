package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	cb "github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/avel/solana_strategy_bot/internal/domain"
)

const (
	JupiterBaseURL = "https://quote-api.jup.ag/v6"

	lamportsPerSol = 1e9
	solMint        = "So11111111111111111111111111111111111111112"
)

// JupiterClient is the swap-quote collaborator: it quotes a route and builds
// the unsigned swap transaction for it.
type JupiterClient struct {
	baseURL     string
	userPubkey  string
	slippageBps int
	client      *http.Client
	limiter     *rate.Limiter
	breaker     *cb.CircuitBreaker
}

func NewJupiterClient(baseURL, userPubkey string, slippageBps int) *JupiterClient {
	if baseURL == "" {
		baseURL = JupiterBaseURL
	}
	if slippageBps <= 0 {
		slippageBps = 50
	}
	return &JupiterClient{
		baseURL:     baseURL,
		userPubkey:  userPubkey,
		slippageBps: slippageBps,
		client:      &http.Client{Timeout: 10 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(10), 10),
		breaker:     newBreaker("jupiter"),
	}
}

// GetQuote asks for a swap quote. amount is denominated in tokenIn units
// (SOL for buys).
func (c *JupiterClient) GetQuote(ctx context.Context, tokenIn, tokenOut string, amount float64) (*domain.Quote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	res, err := c.breaker.Execute(func() (any, error) {
		return c.fetchQuote(ctx, tokenIn, tokenOut, amount)
	})
	if err != nil {
		return nil, err
	}
	return res.(*domain.Quote), nil
}

func (c *JupiterClient) fetchQuote(ctx context.Context, tokenIn, tokenOut string, amount float64) (*domain.Quote, error) {
	inLamports := uint64(math.Round(amount * lamportsPerSol))
	url := fmt.Sprintf("%s/quote?inputMint=%s&outputMint=%s&amount=%d&slippageBps=%d",
		c.baseURL, mintFor(tokenIn), mintFor(tokenOut), inLamports, c.slippageBps)

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
		return nil, fmt.Errorf("jupiter quote: status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		OutAmount string `json:"outAmount"`
		RoutePlan []struct {
			SwapInfo struct {
				Label  string `json:"label"`
				FeeAmt string `json:"feeAmount"`
			} `json:"swapInfo"`
		} `json:"routePlan"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("jupiter quote: decode: %w", err)
	}

	outLamports, err := strconv.ParseFloat(result.OutAmount, 64)
	if err != nil || outLamports <= 0 {
		return nil, fmt.Errorf("jupiter quote: bad outAmount %q", result.OutAmount)
	}

	route := ""
	fee := 0.0
	for i, hop := range result.RoutePlan {
		if i > 0 {
			route += " > "
		}
		route += hop.SwapInfo.Label
		if f, err := strconv.ParseFloat(hop.SwapInfo.FeeAmt, 64); err == nil {
			fee += f / lamportsPerSol
		}
	}

	return &domain.Quote{
		TokenIn:     tokenIn,
		TokenOut:    tokenOut,
		InAmount:    amount,
		OutAmount:   outLamports / lamportsPerSol,
		Route:       route,
		FeeEstimate: fee,
	}, nil
}

// BuildSwapTransaction turns a quote into a base64 unsigned transaction.
func (c *JupiterClient) BuildSwapTransaction(ctx context.Context, quote *domain.Quote) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	payload := map[string]any{
		"userPublicKey": c.userPubkey,
		"quoteResponse": map[string]any{
			"inputMint":  mintFor(quote.TokenIn),
			"outputMint": mintFor(quote.TokenOut),
			"inAmount":   strconv.FormatUint(uint64(math.Round(quote.InAmount*lamportsPerSol)), 10),
			"outAmount":  strconv.FormatUint(uint64(math.Round(quote.OutAmount*lamportsPerSol)), 10),
		},
		"wrapAndUnwrapSol": true,
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/swap", bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("jupiter swap: status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		SwapTransaction string `json:"swapTransaction"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("jupiter swap: decode: %w", err)
	}
	if result.SwapTransaction == "" {
		return "", fmt.Errorf("jupiter swap: empty transaction in response")
	}
	return result.SwapTransaction, nil
}

// mintFor maps the bot's base-token shorthand to its mint address; anything
// else is assumed to already be a mint.
func mintFor(token string) string {
	if token == "SOL" {
		return solMint
	}
	return token
}
