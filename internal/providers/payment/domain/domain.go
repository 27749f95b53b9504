// Package domain defines the payment verifier contracts. Verifiers
// talk to external gateways and never touch local state.
package domain

import (
	"context"
	"errors"
)

const (
	GatewayManual = "manual"
	GatewayPayPal = "paypal"
	GatewayCrypto = "crypto"
)

// CaptureResult is the verified outcome of a gateway order capture.
type CaptureResult struct {
	OrderID  string
	Status   string
	Amount   float64
	Currency string
}

// Completed reports whether the gateway finalized the payment.
func (r CaptureResult) Completed() bool {
	return r.Status == "COMPLETED"
}

// ChainTransfer is a token transfer resolved from a transaction hash.
// Amount is already converted from raw token units.
type ChainTransfer struct {
	TxHash          string
	ToAddress       string
	ContractAddress string
	Amount          float64
	Confirmations   int
}

// OrderVerifier captures a gateway order and reports the settled
// amount (PayPal-style).
type OrderVerifier interface {
	Capture(ctx context.Context, orderID string) (CaptureResult, error)
}

// ChainVerifier resolves an on-chain transaction to its token transfer
// (block-explorer style).
type ChainVerifier interface {
	LookupTransaction(ctx context.Context, txHash string) (ChainTransfer, error)
}

var (
	// ErrVerifierUnavailable marks timeouts and transport failures.
	// Callers may retry the whole operation; it never means the
	// payment was rejected.
	ErrVerifierUnavailable = errors.New("verifier_unavailable")

	ErrPaymentNotCompleted = errors.New("payment_not_completed")
	ErrTransactionNotFound = errors.New("transaction_not_found")
	ErrInvalidOrder        = errors.New("invalid_order")
)
