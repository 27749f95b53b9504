package server

import (
	"net/http"
	"testing"

	"github.com/conectalocal/vitrina/internal/authorization"
	entitlementdomain "github.com/conectalocal/vitrina/internal/entitlement/domain"
	highlightdomain "github.com/conectalocal/vitrina/internal/highlight/domain"
	paymentdomain "github.com/conectalocal/vitrina/internal/payment/domain"
	plandomain "github.com/conectalocal/vitrina/internal/plan/domain"
	providerdomain "github.com/conectalocal/vitrina/internal/providers/payment/domain"
	subscriptiondomain "github.com/conectalocal/vitrina/internal/subscription/domain"
	"gorm.io/gorm"
)

func TestMapErrorStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		typ    string
	}{
		{"invalid subject", entitlementdomain.ErrInvalidSubjectType, http.StatusBadRequest, "validation_error"},
		{"invalid duration", subscriptiondomain.ErrInvalidDuration, http.StatusBadRequest, "validation_error"},
		{"inactive plan", plandomain.ErrPlanInactive, http.StatusBadRequest, "validation_error"},
		{"amount mismatch", paymentdomain.ErrAmountMismatch, http.StatusBadRequest, "validation_error"},
		{"payment not completed", providerdomain.ErrPaymentNotCompleted, http.StatusBadRequest, "validation_error"},
		{"plan not found", plandomain.ErrPlanNotFound, http.StatusNotFound, "not_found"},
		{"subscription not found", subscriptiondomain.ErrSubscriptionNotFound, http.StatusNotFound, "not_found"},
		{"gorm not found", gorm.ErrRecordNotFound, http.StatusNotFound, "not_found"},
		{"chain tx not found", providerdomain.ErrTransactionNotFound, http.StatusNotFound, "not_found"},
		{"unauthorized", authorization.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"forbidden", authorization.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"transaction replay", paymentdomain.ErrTransactionUsed, http.StatusConflict, "conflict"},
		{"submission reprocessed", paymentdomain.ErrSubmissionProcessed, http.StatusConflict, "conflict"},
		{"plan code taken", plandomain.ErrPlanCodeExists, http.StatusConflict, "conflict"},
		{"lapsed membership toggle", highlightdomain.ErrNoActiveMembership, http.StatusConflict, "conflict"},
		{"verifier down", providerdomain.ErrVerifierUnavailable, http.StatusServiceUnavailable, "service_unavailable"},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{"unknown", gorm.ErrInvalidTransaction, http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			if status != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, status)
			}
			if payload.Type != tc.typ {
				t.Fatalf("expected type %q, got %q", tc.typ, payload.Type)
			}
		})
	}
}

func TestMapErrorHighlightLimitDetails(t *testing.T) {
	status, payload := mapError(&highlightdomain.LimitError{Limit: 2, Active: 2})
	if status != http.StatusConflict {
		t.Fatalf("expected 409, got %d", status)
	}
	if payload.Details["limit"] != 2 || payload.Details["active"] != 2 {
		t.Fatalf("expected slot numbers in details, got %+v", payload.Details)
	}
}
