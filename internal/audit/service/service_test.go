package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/conectalocal/vitrina/internal/audit/domain"
	"github.com/conectalocal/vitrina/internal/clock"
	"github.com/conectalocal/vitrina/pkg/db/pagination"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeAuditRepo struct {
	entries    []*auditdomain.AuditLog
	lastFilter auditdomain.ListFilter
	insertErr  error
}

func (f *fakeAuditRepo) Insert(_ context.Context, _ *gorm.DB, entry *auditdomain.AuditLog) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	copied := *entry
	f.entries = append(f.entries, &copied)
	return nil
}

func (f *fakeAuditRepo) List(_ context.Context, _ *gorm.DB, filter auditdomain.ListFilter) ([]*auditdomain.AuditLog, error) {
	f.lastFilter = filter
	if filter.Limit > 0 && len(f.entries) > filter.Limit+1 {
		return f.entries[:filter.Limit+1], nil
	}
	return f.entries, nil
}

type fixture struct {
	svc   auditdomain.Service
	repo  *fakeAuditRepo
	clock *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	node, err := snowflake.NewNode(5)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	repo := &fakeAuditRepo{}
	fc := clock.NewFakeClock(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC))

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fc,
		Repo:  repo,
	})

	return &fixture{svc: svc, repo: repo, clock: fc}
}

func TestRecord(t *testing.T) {
	f := newFixture(t)

	err := f.svc.Record(context.Background(), auditdomain.Entry{
		ActorType:  auditdomain.ActorTypeAccount,
		ActorID:    " 123456789 ",
		Action:     "plan.create",
		TargetType: "plan",
		TargetID:   "42",
		Metadata:   map[string]any{"code": "conecta_monthly", "": "dropped"},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	if len(f.repo.entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(f.repo.entries))
	}
	entry := f.repo.entries[0]
	if entry.ActorID == nil || *entry.ActorID != "123456789" {
		t.Fatalf("actor id not trimmed: %v", entry.ActorID)
	}
	if _, ok := entry.Metadata[""]; ok {
		t.Fatal("empty metadata key should be dropped")
	}
	if !entry.CreatedAt.Equal(f.clock.Now()) {
		t.Fatalf("created_at should come from the clock, got %v", entry.CreatedAt)
	}
}

func TestRecordRejectsEmptyAction(t *testing.T) {
	f := newFixture(t)

	err := f.svc.Record(context.Background(), auditdomain.Entry{Action: "  "})
	if !errors.Is(err, auditdomain.ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction, got %v", err)
	}
}

func TestRecordDefaultsToSystemActor(t *testing.T) {
	f := newFixture(t)

	if err := f.svc.Record(context.Background(), auditdomain.Entry{
		Action: "membership.expire",
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	entry := f.repo.entries[0]
	if entry.ActorType != string(auditdomain.ActorTypeSystem) {
		t.Fatalf("expected system actor, got %q", entry.ActorType)
	}
	if entry.TargetType != "unknown" {
		t.Fatalf("expected unknown target type, got %q", entry.TargetType)
	}
}

func TestListPaginates(t *testing.T) {
	f := newFixture(t)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if err := f.svc.Record(context.Background(), auditdomain.Entry{
			Action:     "plan.create",
			TargetType: "plan",
		}); err != nil {
			t.Fatalf("record: %v", err)
		}
		f.repo.entries[i].CreatedAt = base.Add(time.Duration(i) * time.Minute)
	}

	resp, err := f.svc.List(context.Background(), auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2},
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(resp.AuditLogs) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(resp.AuditLogs))
	}
	if !resp.HasMore {
		t.Fatal("expected has_more")
	}
	if resp.NextPageToken == "" {
		t.Fatal("expected next page token")
	}

	decoded, err := pagination.DecodeCursor(resp.NextPageToken)
	if err != nil {
		t.Fatalf("decode next token: %v", err)
	}
	if decoded.ID == "" || decoded.CreatedAt == "" {
		t.Fatalf("cursor incomplete: %+v", decoded)
	}
}

func TestListRejectsBadPageToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.List(context.Background(), auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageToken: "not-base64!!"},
	})
	if !errors.Is(err, auditdomain.ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}
}

func TestListRejectsInvertedTimeRange(t *testing.T) {
	f := newFixture(t)

	start := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	_, err := f.svc.List(context.Background(), auditdomain.ListAuditLogRequest{
		StartAt: &start,
		EndAt:   &end,
	})
	if !errors.Is(err, auditdomain.ErrInvalidTimeRange) {
		t.Fatalf("expected ErrInvalidTimeRange, got %v", err)
	}
}
