package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/conectalocal/vitrina/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const (
	keyCaptureAccount = "capture:account:%s"
	keyCaptureGateway = "capture:gateway:%s"
	keyCaptureLock    = "capture:lock:%s:%s"
)

// CaptureLimiter throttles the payment verification endpoints. Gateway
// calls are slow and cost quota upstream, so each account gets a small
// budget and each gateway a global one. A per-subject lock keeps two
// concurrent captures for the same subject from racing the verifier.
type CaptureLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker

	accountRate  float64
	accountBurst int
	gatewayRate  float64
	gatewayBurst int
	lockTTL      time.Duration
}

func NewCaptureLimiter(cfg config.Config) (*CaptureLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.CaptureAccountRate <= 0 || limitCfg.CaptureAccountBurst <= 0 {
		return nil, errors.New("capture account rate limit must be positive")
	}
	if limitCfg.CaptureGatewayRate <= 0 || limitCfg.CaptureGatewayBurst <= 0 {
		return nil, errors.New("capture gateway rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &CaptureLimiter{
		enabled:      true,
		bucket:       NewTokenBucket(client),
		locker:       NewLocker(client),
		accountRate:  limitCfg.CaptureAccountRate,
		accountBurst: limitCfg.CaptureAccountBurst,
		gatewayRate:  limitCfg.CaptureGatewayRate,
		gatewayBurst: limitCfg.CaptureGatewayBurst,
		lockTTL:      time.Duration(limitCfg.CaptureLockTTLSeconds) * time.Second,
	}, nil
}

func (l *CaptureLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *CaptureLimiter) AllowAccount(ctx context.Context, accountID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyCaptureAccount, strings.TrimSpace(accountID)), l.accountRate, l.accountBurst)
}

func (l *CaptureLimiter) AllowGateway(ctx context.Context, gateway string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyCaptureGateway, strings.TrimSpace(gateway)), l.gatewayRate, l.gatewayBurst)
}

func (l *CaptureLimiter) TryLockSubject(ctx context.Context, subjectType, subjectID string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	key := fmt.Sprintf(keyCaptureLock, strings.TrimSpace(subjectType), strings.TrimSpace(subjectID))
	return l.locker.TryLock(ctx, key, l.lockTTL)
}

func (l *CaptureLimiter) ReleaseSubject(ctx context.Context, subjectType, subjectID, token string) error {
	if !l.Enabled() {
		return nil
	}
	key := fmt.Sprintf(keyCaptureLock, strings.TrimSpace(subjectType), strings.TrimSpace(subjectID))
	return l.locker.Release(ctx, key, token)
}
