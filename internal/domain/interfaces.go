package domain

import (
	"context"
	"errors"
)

// ErrUnsupportedVenue means the venue responded but we cannot parse its pool
// layout for this token. The scanner treats the venue as absent; we never
// substitute simulated data.
var ErrUnsupportedVenue = errors.New("unsupported venue")

// ErrPriceUnavailable means no configured venue could price the token.
var ErrPriceUnavailable = errors.New("price unavailable")

// VenueClient fetches a token's price and liquidity from a single venue.
type VenueClient interface {
	Name() string
	GetPrice(ctx context.Context, token string) (*VenuePrice, error)
}

// QuoteProvider is the swap-quote collaborator (an aggregator API).
// Timeouts and non-2xx responses are expected, not exceptional.
type QuoteProvider interface {
	GetQuote(ctx context.Context, tokenIn, tokenOut string, amount float64) (*Quote, error)
	BuildSwapTransaction(ctx context.Context, quote *Quote) (string, error)
}

// TransactionSigner signs a serialized unsigned transaction.
type TransactionSigner interface {
	Sign(tx string) (string, error)
}

// BundleRelay submits signed transactions, optionally with a priority tip for
// front-running protection, and reports confirmation status.
type BundleRelay interface {
	SubmitBundle(ctx context.Context, signedTxs []string, tipLamports uint64) (string, error)
	GetBundleStatus(ctx context.Context, bundleID string) (*BundleStatus, error)
}

// Notifier is fire-and-forget; implementations must never block trading logic
// and callers swallow all failures.
type Notifier interface {
	Notify(message string)
}
