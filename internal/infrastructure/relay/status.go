package relay

import (
	"context"
	"fmt"

	"github.com/avel/solana_strategy_bot/internal/domain"
)

// GetBundleStatus reports whether the bundle landed. "pending" is not an
// error; the pipeline keeps polling until its attempt budget runs out.
func (c *JitoClient) GetBundleStatus(ctx context.Context, bundleID string) (*domain.BundleStatus, error) {
	var result struct {
		Value []struct {
			BundleID           string `json:"bundle_id"`
			Slot               uint64 `json:"slot"`
			ConfirmationStatus string `json:"confirmation_status"`
			Err                struct {
				Ok *string `json:"Ok"`
			} `json:"err"`
		} `json:"value"`
	}
	if err := c.rpc(ctx, "getBundleStatuses", []any{[]string{bundleID}}, &result); err != nil {
		return nil, err
	}
	if len(result.Value) == 0 {
		// Relay has not seen the bundle yet.
		return &domain.BundleStatus{}, nil
	}

	v := result.Value[0]
	status := &domain.BundleStatus{Slot: v.Slot}
	switch v.ConfirmationStatus {
	case "confirmed", "finalized":
		status.Confirmed = true
	case "failed":
		status.Err = fmt.Sprintf("bundle failed at slot %d", v.Slot)
	}
	if v.Err.Ok != nil && *v.Err.Ok != "" {
		status.Err = *v.Err.Ok
	}
	return status, nil
}
