package authorization

import (
	"context"
	"errors"
)

// Service answers "may this actor perform this action on this object".
// Role assignments live in account_roles; permissions are casbin policies.
type Service interface {
	Authorize(ctx context.Context, actor string, object string, action string) error
	IsAdmin(ctx context.Context, actor string) bool
}

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidActor = errors.New("invalid_actor")
)
