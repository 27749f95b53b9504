package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/conectalocal/vitrina/internal/clock"
	subscriptiondomain "github.com/conectalocal/vitrina/internal/subscription/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeSubscriptionService struct {
	expired int64
	calls   int
	err     error
}

func (f *fakeSubscriptionService) List(_ context.Context, _ subscriptiondomain.ListSubscriptionRequest) (subscriptiondomain.ListSubscriptionResponse, error) {
	return subscriptiondomain.ListSubscriptionResponse{}, nil
}

func (f *fakeSubscriptionService) GetByID(_ context.Context, _ string) (subscriptiondomain.Subscription, error) {
	return subscriptiondomain.Subscription{}, nil
}

func (f *fakeSubscriptionService) Activate(_ context.Context, _ subscriptiondomain.ActivateRequest) (subscriptiondomain.Subscription, error) {
	return subscriptiondomain.Subscription{}, nil
}

func (f *fakeSubscriptionService) Extend(_ context.Context, _ subscriptiondomain.ExtendRequest) (subscriptiondomain.Subscription, error) {
	return subscriptiondomain.Subscription{}, nil
}

func (f *fakeSubscriptionService) Deactivate(_ context.Context, _ string) error { return nil }

func (f *fakeSubscriptionService) ExpireLapsed(_ context.Context) (int64, error) {
	f.calls++
	return f.expired, f.err
}

func (f *fakeSubscriptionService) ApplyPaidPeriodTx(_ context.Context, _ *gorm.DB, _ subscriptiondomain.PaidPeriodRequest) (subscriptiondomain.PaidPeriodResult, error) {
	return subscriptiondomain.PaidPeriodResult{}, nil
}

func newTestScheduler(t *testing.T, svc subscriptiondomain.Service, cfg Config) *Scheduler {
	t.Helper()

	node, err := snowflake.NewNode(4)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	sched, err := New(Params{
		Log:             zap.NewNop(),
		SubscriptionSvc: svc,
		GenID:           node,
		Clock:           clock.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
		Config:          cfg,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return sched
}

func TestRunOnceSweepsLapsedMemberships(t *testing.T) {
	svc := &fakeSubscriptionService{expired: 3}
	sched := newTestScheduler(t, svc, Config{})

	if err := sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if svc.calls != 1 {
		t.Fatalf("expected one sweep, got %d", svc.calls)
	}
}

func TestRunOncePropagatesJobError(t *testing.T) {
	svc := &fakeSubscriptionService{err: errors.New("db down")}
	sched := newTestScheduler(t, svc, Config{})

	err := sched.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestRunOnceTimeoutIsSoft(t *testing.T) {
	svc := &fakeSubscriptionService{err: context.DeadlineExceeded}
	sched := newTestScheduler(t, svc, Config{})

	if err := sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("timeout should not propagate, got %v", err)
	}
}

func TestDisabledJobSkipped(t *testing.T) {
	svc := &fakeSubscriptionService{}
	sched := newTestScheduler(t, svc, Config{EnabledJobs: []string{"other_job"}})

	if err := sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if svc.calls != 0 {
		t.Fatalf("expected sweep skipped, got %d calls", svc.calls)
	}
}

func TestNewRejectsMissingDeps(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
