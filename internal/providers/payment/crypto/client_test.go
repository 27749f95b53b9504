package crypto

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	providerdomain "github.com/conectalocal/vitrina/internal/providers/payment/domain"
	"go.uber.org/zap"
)

func TestLookupTransaction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("txhash"); got != "0xabc" {
			t.Errorf("unexpected txhash %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "1",
			"result": [{
				"to": "0xRecv",
				"contractAddress": "0xToken",
				"value": "9990000",
				"tokenDecimal": "6",
				"confirmations": "25"
			}]
		}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "key"}, zap.NewNop())
	transfer, err := client.LookupTransaction(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}

	if transfer.ToAddress != "0xrecv" || transfer.ContractAddress != "0xtoken" {
		t.Fatalf("unexpected addresses: %+v", transfer)
	}
	if transfer.Amount != 9.99 {
		t.Fatalf("expected amount 9.99, got %v", transfer.Amount)
	}
	if transfer.Confirmations != 25 {
		t.Fatalf("expected 25 confirmations, got %d", transfer.Confirmations)
	}
}

func TestLookupTransactionNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status": "0", "result": []}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, zap.NewNop())
	_, err := client.LookupTransaction(context.Background(), "0xmissing")
	if !errors.Is(err, providerdomain.ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestLookupTransactionOutage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, zap.NewNop())
	_, err := client.LookupTransaction(context.Background(), "0xabc")
	if !errors.Is(err, providerdomain.ErrVerifierUnavailable) {
		t.Fatalf("expected ErrVerifierUnavailable, got %v", err)
	}
}
