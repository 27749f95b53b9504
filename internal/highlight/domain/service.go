package domain

import (
	"context"
	"errors"
	"fmt"

	entitlementdomain "github.com/conectalocal/vitrina/internal/entitlement/domain"
)

type ToggleRequest struct {
	SubjectType string `json:"subject_type"`
	SubjectID   string `json:"subject_id"`
	Active      bool   `json:"active"`

	// Caller is the account attempting the toggle. Owners toggle their
	// own subjects; admins toggle anyone's.
	Caller string `json:"-"`
}

type Service interface {
	Toggle(ctx context.Context, req ToggleRequest) (entitlementdomain.Entitlement, error)
}

var (
	ErrNoActiveMembership    = errors.New("no_active_membership")
	ErrHighlightLimitReached = errors.New("highlight_limit_reached")
)

// LimitError reports why a toggle-on was rejected: the account's slot
// limit and how many slots are already taken. It matches
// ErrHighlightLimitReached under errors.Is.
type LimitError struct {
	Limit  int
	Active int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("highlight_limit_reached: %d of %d slots in use", e.Active, e.Limit)
}

func (e *LimitError) Is(target error) bool {
	return target == ErrHighlightLimitReached
}
