// Package crypto resolves token transfers through a block-explorer
// style scan API.
package crypto

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	providerdomain "github.com/conectalocal/vitrina/internal/providers/payment/domain"
	"go.uber.org/zap"
)

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
	log  *zap.Logger
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
		log:  log.Named("crypto.client"),
	}
}

// LookupTransaction implements domain.ChainVerifier. It returns the
// first token transfer recorded for the hash, with the amount
// converted from raw token units.
func (c *Client) LookupTransaction(ctx context.Context, txHash string) (providerdomain.ChainTransfer, error) {
	txHash = strings.TrimSpace(txHash)
	if txHash == "" {
		return providerdomain.ChainTransfer{}, providerdomain.ErrTransactionNotFound
	}

	query := url.Values{
		"module": {"account"},
		"action": {"tokentx"},
		"txhash": {txHash},
	}
	if c.cfg.APIKey != "" {
		query.Set("apikey", c.cfg.APIKey)
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/api?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return providerdomain.ChainTransfer{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("scan request failed", zap.String("tx_hash", txHash), zap.Error(err))
		return providerdomain.ChainTransfer{}, fmt.Errorf("%w: %v", providerdomain.ErrVerifierUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return providerdomain.ChainTransfer{}, fmt.Errorf("%w: scan status %d", providerdomain.ErrVerifierUnavailable, resp.StatusCode)
	}

	var payload scanResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return providerdomain.ChainTransfer{}, fmt.Errorf("%w: decode scan response: %v", providerdomain.ErrVerifierUnavailable, err)
	}
	if payload.Status != "1" || len(payload.Result) == 0 {
		return providerdomain.ChainTransfer{}, providerdomain.ErrTransactionNotFound
	}

	entry := payload.Result[0]
	decimals, err := strconv.Atoi(strings.TrimSpace(entry.TokenDecimal))
	if err != nil || decimals < 0 {
		decimals = 18
	}
	raw, err := strconv.ParseFloat(strings.TrimSpace(entry.Value), 64)
	if err != nil {
		return providerdomain.ChainTransfer{}, providerdomain.ErrTransactionNotFound
	}
	confirmations, _ := strconv.Atoi(strings.TrimSpace(entry.Confirmations))

	return providerdomain.ChainTransfer{
		TxHash:          txHash,
		ToAddress:       strings.ToLower(strings.TrimSpace(entry.To)),
		ContractAddress: strings.ToLower(strings.TrimSpace(entry.ContractAddress)),
		Amount:          raw / math.Pow10(decimals),
		Confirmations:   confirmations,
	}, nil
}

type scanResponse struct {
	Status string      `json:"status"`
	Result []scanEntry `json:"result"`
}

type scanEntry struct {
	To              string `json:"to"`
	ContractAddress string `json:"contractAddress"`
	Value           string `json:"value"`
	TokenDecimal    string `json:"tokenDecimal"`
	Confirmations   string `json:"confirmations"`
}
