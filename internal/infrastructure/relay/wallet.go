package relay

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
)

// Wallet signs serialized transactions with a local ed25519 key.
type Wallet struct {
	priv ed25519.PrivateKey
}

// NewWallet parses a base64-encoded ed25519 private key.
func NewWallet(encodedKey string) (*Wallet, error) {
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("wallet: decode key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("wallet: key must be %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	return &Wallet{priv: ed25519.PrivateKey(raw)}, nil
}

// NoWallet is the signer used when no key is configured. Every signing
// attempt fails, which the pipeline folds into a failed order.
type NoWallet struct{}

func (NoWallet) Sign(tx string) (string, error) {
	return "", fmt.Errorf("wallet: no key configured")
}

// Sign appends the wallet's signature to the base64 transaction payload.
func (w *Wallet) Sign(tx string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(tx)
	if err != nil {
		return "", fmt.Errorf("wallet: decode transaction: %w", err)
	}
	sig := ed25519.Sign(w.priv, raw)
	return base64.StdEncoding.EncodeToString(append(sig, raw...)), nil
}
