package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const JitoBaseURL = "https://mainnet.block-engine.jito.wtf/api/v1"

// JitoClient submits transaction bundles to the block engine and polls their
// status. A non-zero tip buys priority and front-running protection; tip 0 is
// a plain submission.
type JitoClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewJitoClient(baseURL string, logger *zap.Logger) *JitoClient {
	if baseURL == "" {
		baseURL = JitoBaseURL
	}
	return &JitoClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

func (c *JitoClient) rpc(ctx context.Context, method string, params any, result any) error {
	payload := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/bundles", bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("relay: status %d: %s", resp.StatusCode, string(respBody))
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("relay: decode: %w", err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("relay: rpc error %d: %s", envelope.Error.Code, envelope.Error.Message)
	}
	return json.Unmarshal(envelope.Result, result)
}

// SubmitBundle sends the signed transactions as one atomic bundle and returns
// the relay's bundle id.
func (c *JitoClient) SubmitBundle(ctx context.Context, signedTxs []string, tipLamports uint64) (string, error) {
	var bundleID string
	params := []any{signedTxs}
	if tipLamports > 0 {
		params = append(params, map[string]any{"tipLamports": tipLamports})
	}
	if err := c.rpc(ctx, "sendBundle", params, &bundleID); err != nil {
		return "", err
	}

	c.logger.Debug("Bundle submitted",
		zap.String("bundle_id", bundleID),
		zap.Int("txs", len(signedTxs)),
		zap.Uint64("tip_lamports", tipLamports))
	return bundleID, nil
}
