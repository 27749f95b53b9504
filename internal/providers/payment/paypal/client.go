// Package paypal captures checkout orders through the PayPal Orders v2
// API.
package paypal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	providerdomain "github.com/conectalocal/vitrina/internal/providers/payment/domain"
	"go.uber.org/zap"
)

type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

type Client struct {
	cfg    Config
	http   *http.Client
	log    *zap.Logger
	tokens *tokenCache
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		log:    log.Named("paypal.client"),
		tokens: &tokenCache{},
	}
}

// Capture implements domain.OrderVerifier. Transport failures surface
// as ErrVerifierUnavailable so callers can retry; an order PayPal will
// not complete is a hard rejection.
func (c *Client) Capture(ctx context.Context, orderID string) (providerdomain.CaptureResult, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return providerdomain.CaptureResult{}, providerdomain.ErrInvalidOrder
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return providerdomain.CaptureResult{}, err
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/v2/checkout/orders/" + url.PathEscape(orderID) + "/capture"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader("{}"))
	if err != nil {
		return providerdomain.CaptureResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("capture request failed", zap.String("order_id", orderID), zap.Error(err))
		return providerdomain.CaptureResult{}, fmt.Errorf("%w: %v", providerdomain.ErrVerifierUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return providerdomain.CaptureResult{}, fmt.Errorf("%w: paypal status %d", providerdomain.ErrVerifierUnavailable, resp.StatusCode)
	}
	if resp.StatusCode == http.StatusNotFound {
		return providerdomain.CaptureResult{}, providerdomain.ErrInvalidOrder
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return providerdomain.CaptureResult{}, providerdomain.ErrPaymentNotCompleted
	}

	var payload captureResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return providerdomain.CaptureResult{}, fmt.Errorf("%w: decode capture response: %v", providerdomain.ErrVerifierUnavailable, err)
	}

	result := providerdomain.CaptureResult{
		OrderID: payload.ID,
		Status:  strings.ToUpper(strings.TrimSpace(payload.Status)),
	}

	capture := payload.firstCapture()
	if capture == nil {
		return result, providerdomain.ErrPaymentNotCompleted
	}

	amount, err := strconv.ParseFloat(strings.TrimSpace(capture.Amount.Value), 64)
	if err != nil {
		return result, providerdomain.ErrPaymentNotCompleted
	}
	result.Amount = amount
	result.Currency = strings.ToUpper(strings.TrimSpace(capture.Amount.CurrencyCode))

	if !result.Completed() {
		return result, providerdomain.ErrPaymentNotCompleted
	}
	return result, nil
}

type captureResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []captureDetail `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

type captureDetail struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount struct {
		CurrencyCode string `json:"currency_code"`
		Value        string `json:"value"`
	} `json:"amount"`
}

func (r captureResponse) firstCapture() *captureDetail {
	for _, unit := range r.PurchaseUnits {
		for i := range unit.Payments.Captures {
			return &unit.Payments.Captures[i]
		}
	}
	return nil
}

type tokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.tokens.mu.Lock()
	defer c.tokens.mu.Unlock()

	if c.tokens.token != "" && time.Now().Before(c.tokens.expiresAt) {
		return c.tokens.token, nil
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/oauth2/token"
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", providerdomain.ErrVerifierUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: oauth status %d", providerdomain.ErrVerifierUnavailable, resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("%w: decode token response: %v", providerdomain.ErrVerifierUnavailable, err)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return "", errors.New("empty_access_token")
	}

	c.tokens.token = payload.AccessToken
	// Refresh a minute early to avoid using a token at the edge of its
	// lifetime.
	c.tokens.expiresAt = time.Now().Add(time.Duration(payload.ExpiresIn)*time.Second - time.Minute)
	return c.tokens.token, nil
}
