package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/conectalocal/vitrina/internal/authorization"
	"github.com/conectalocal/vitrina/internal/clock"
	"github.com/conectalocal/vitrina/internal/config"
	entitlementdomain "github.com/conectalocal/vitrina/internal/entitlement/domain"
	highlightdomain "github.com/conectalocal/vitrina/internal/highlight/domain"
	plandomain "github.com/conectalocal/vitrina/internal/plan/domain"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeEntitlementRepo struct {
	bySubject map[string]*entitlementdomain.Entitlement
	byID      map[snowflake.ID]*entitlementdomain.Entitlement
}

func newFakeEntitlementRepo() *fakeEntitlementRepo {
	return &fakeEntitlementRepo{
		bySubject: map[string]*entitlementdomain.Entitlement{},
		byID:      map[snowflake.ID]*entitlementdomain.Entitlement{},
	}
}

func subjectKey(subjectType entitlementdomain.SubjectType, subjectID snowflake.ID) string {
	return string(subjectType) + "/" + subjectID.String()
}

func (f *fakeEntitlementRepo) FindBySubject(_ context.Context, _ *gorm.DB, subjectType entitlementdomain.SubjectType, subjectID snowflake.ID) (*entitlementdomain.Entitlement, error) {
	if e, ok := f.bySubject[subjectKey(subjectType, subjectID)]; ok {
		copied := *e
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeEntitlementRepo) FindBySubjectForUpdate(ctx context.Context, db *gorm.DB, subjectType entitlementdomain.SubjectType, subjectID snowflake.ID) (*entitlementdomain.Entitlement, error) {
	return f.FindBySubject(ctx, db, subjectType, subjectID)
}

func (f *fakeEntitlementRepo) FindByAccountForUpdate(_ context.Context, _ *gorm.DB, accountID snowflake.ID) ([]entitlementdomain.Entitlement, error) {
	var all []entitlementdomain.Entitlement
	for _, e := range f.byID {
		if e.AccountID == accountID {
			all = append(all, *e)
		}
	}
	return all, nil
}

func (f *fakeEntitlementRepo) Insert(_ context.Context, _ *gorm.DB, entitlement *entitlementdomain.Entitlement) error {
	copied := *entitlement
	f.byID[copied.ID] = &copied
	f.bySubject[subjectKey(copied.SubjectType, copied.SubjectID)] = f.byID[copied.ID]
	return nil
}

func (f *fakeEntitlementRepo) ApplyGrant(_ context.Context, _ *gorm.DB, id snowflake.ID, grant entitlementdomain.Grant, now time.Time) error {
	e, ok := f.byID[id]
	if !ok {
		return nil
	}
	planID := grant.PlanID
	expires := grant.ExpiresAt
	e.Tier = grant.Tier
	e.PlanID = &planID
	e.ExpiresAt = &expires
	e.UpdatedAt = now
	return nil
}

func (f *fakeEntitlementRepo) Reset(_ context.Context, _ *gorm.DB, id snowflake.ID, now time.Time) error {
	e, ok := f.byID[id]
	if !ok {
		return nil
	}
	e.Tier = entitlementdomain.TierNone
	e.PlanID = nil
	e.ExpiresAt = nil
	e.HighlightActive = false
	e.UpdatedAt = now
	return nil
}

func (f *fakeEntitlementRepo) SetHighlight(_ context.Context, _ *gorm.DB, id snowflake.ID, active bool, now time.Time) error {
	if e, ok := f.byID[id]; ok {
		e.HighlightActive = active
		e.UpdatedAt = now
	}
	return nil
}

type fakePlanService struct {
	plans map[string]plandomain.Plan
}

func (f *fakePlanService) List(_ context.Context, _ plandomain.ListPlanRequest) ([]plandomain.Plan, error) {
	return nil, nil
}

func (f *fakePlanService) GetByID(_ context.Context, id string) (plandomain.Plan, error) {
	if p, ok := f.plans[id]; ok {
		return p, nil
	}
	return plandomain.Plan{}, plandomain.ErrPlanNotFound
}

func (f *fakePlanService) Create(_ context.Context, _ plandomain.CreatePlanRequest) (plandomain.Plan, error) {
	return plandomain.Plan{}, nil
}

func (f *fakePlanService) Deactivate(_ context.Context, _ string) error { return nil }

type fakeAuthz struct {
	admins map[string]bool
}

func (f *fakeAuthz) Authorize(_ context.Context, actor, _, _ string) error {
	if f.admins[actor] {
		return nil
	}
	return authorization.ErrForbidden
}

func (f *fakeAuthz) IsAdmin(_ context.Context, actor string) bool {
	return f.admins[actor]
}

type fixture struct {
	svc     highlightdomain.Service
	clock   *clock.FakeClock
	entRepo *fakeEntitlementRepo
	plans   *fakePlanService
	authz   *fakeAuthz
	node    *snowflake.Node
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	node, err := snowflake.NewNode(3)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	fakeClock := clock.NewFakeClock(now)
	entRepo := newFakeEntitlementRepo()
	plans := &fakePlanService{plans: map[string]plandomain.Plan{}}
	authz := &fakeAuthz{admins: map[string]bool{}}

	svc := NewService(ServiceParam{
		DB:         conn,
		Log:        zap.NewNop(),
		Clock:      fakeClock,
		EntRepo:    entRepo,
		Plansvc:    plans,
		Membership: config.NewStaticMembershipConfigHolder(config.DefaultMembershipConfig()),
		Authz:      authz,
	})

	return &fixture{
		svc:     svc,
		clock:   fakeClock,
		entRepo: entRepo,
		plans:   plans,
		authz:   authz,
		node:    node,
	}
}

func (f *fixture) addPlan(period plandomain.BillingPeriod) plandomain.Plan {
	plan := plandomain.Plan{
		ID:            f.node.Generate(),
		Code:          "conecta-" + string(period),
		Tier:          entitlementdomain.TierConecta,
		BillingPeriod: period,
		DurationDays:  30,
		PriceUSD:      9.99,
		Active:        true,
	}
	f.plans.plans[plan.ID.String()] = plan
	return plan
}

func (f *fixture) addEntitlement(accountID snowflake.ID, plan plandomain.Plan, expiresAt time.Time, highlighted bool) entitlementdomain.Entitlement {
	planID := plan.ID
	ent := entitlementdomain.Entitlement{
		ID:              f.node.Generate(),
		SubjectType:     entitlementdomain.SubjectTypeBusiness,
		SubjectID:       f.node.Generate(),
		AccountID:       accountID,
		Tier:            plan.Tier,
		PlanID:          &planID,
		ExpiresAt:       &expiresAt,
		HighlightActive: highlighted,
	}
	f.entRepo.Insert(context.Background(), nil, &ent)
	return ent
}

func toggleReq(ent entitlementdomain.Entitlement, active bool) highlightdomain.ToggleRequest {
	return highlightdomain.ToggleRequest{
		SubjectType: string(ent.SubjectType),
		SubjectID:   ent.SubjectID.String(),
		Active:      active,
		Caller:      ent.AccountID.String(),
	}
}

func TestToggleOn(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, now)
	plan := f.addPlan(plandomain.BillingPeriodMonthly)
	account := f.node.Generate()
	ent := f.addEntitlement(account, plan, now.AddDate(0, 0, 30), false)

	got, err := f.svc.Toggle(context.Background(), toggleReq(ent, true))
	if err != nil {
		t.Fatalf("toggle on: %v", err)
	}
	if !got.HighlightActive {
		t.Fatal("expected highlight active")
	}
}

func TestToggleOnSlotLimit(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, now)
	plan := f.addPlan(plandomain.BillingPeriodMonthly)
	account := f.node.Generate()
	f.addEntitlement(account, plan, now.AddDate(0, 0, 30), true)
	second := f.addEntitlement(account, plan, now.AddDate(0, 0, 30), false)

	_, err := f.svc.Toggle(context.Background(), toggleReq(second, true))
	if !errors.Is(err, highlightdomain.ErrHighlightLimitReached) {
		t.Fatalf("expected ErrHighlightLimitReached, got %v", err)
	}

	var limitErr *highlightdomain.LimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected LimitError, got %T", err)
	}
	if limitErr.Limit != 1 || limitErr.Active != 1 {
		t.Fatalf("expected limit=1 active=1, got %+v", limitErr)
	}
}

func TestToggleOnYearlyGetsTwoSlots(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, now)
	plan := f.addPlan(plandomain.BillingPeriodYearly)
	account := f.node.Generate()
	f.addEntitlement(account, plan, now.AddDate(0, 0, 365), true)
	second := f.addEntitlement(account, plan, now.AddDate(0, 0, 365), false)

	got, err := f.svc.Toggle(context.Background(), toggleReq(second, true))
	if err != nil {
		t.Fatalf("toggle on: %v", err)
	}
	if !got.HighlightActive {
		t.Fatal("expected second slot granted")
	}

	third := f.addEntitlement(account, plan, now.AddDate(0, 0, 365), false)
	_, err = f.svc.Toggle(context.Background(), toggleReq(third, true))
	if !errors.Is(err, highlightdomain.ErrHighlightLimitReached) {
		t.Fatalf("expected ErrHighlightLimitReached, got %v", err)
	}
}

func TestToggleOnMixedPlansUsesAccountBestLimit(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, now)
	yearly := f.addPlan(plandomain.BillingPeriodYearly)
	monthly := f.addPlan(plandomain.BillingPeriodMonthly)
	account := f.node.Generate()

	// The yearly membership grants two slots for the whole account; the
	// monthly subject toggles on against that cap, not its own plan's.
	f.addEntitlement(account, yearly, now.AddDate(0, 0, 365), true)
	monthlySubject := f.addEntitlement(account, monthly, now.AddDate(0, 0, 30), false)

	got, err := f.svc.Toggle(context.Background(), toggleReq(monthlySubject, true))
	if err != nil {
		t.Fatalf("toggle on monthly subject under yearly account: %v", err)
	}
	if !got.HighlightActive {
		t.Fatal("expected second slot granted")
	}

	third := f.addEntitlement(account, monthly, now.AddDate(0, 0, 30), false)
	_, err = f.svc.Toggle(context.Background(), toggleReq(third, true))
	var limitErr *highlightdomain.LimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected LimitError, got %v", err)
	}
	if limitErr.Limit != 2 || limitErr.Active != 2 {
		t.Fatalf("expected limit=2 active=2, got %+v", limitErr)
	}
}

func TestToggleOnIgnoresLapsedPlansForLimit(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, now)
	yearly := f.addPlan(plandomain.BillingPeriodYearly)
	monthly := f.addPlan(plandomain.BillingPeriodMonthly)
	account := f.node.Generate()

	// A lapsed yearly membership contributes nothing to the cap.
	f.addEntitlement(account, yearly, now.AddDate(0, 0, -10), false)
	f.addEntitlement(account, monthly, now.AddDate(0, 0, 30), true)
	second := f.addEntitlement(account, monthly, now.AddDate(0, 0, 30), false)

	_, err := f.svc.Toggle(context.Background(), toggleReq(second, true))
	var limitErr *highlightdomain.LimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected LimitError, got %v", err)
	}
	if limitErr.Limit != 1 || limitErr.Active != 1 {
		t.Fatalf("expected limit=1 active=1, got %+v", limitErr)
	}
}

func TestToggleOffFreesSlot(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, now)
	plan := f.addPlan(plandomain.BillingPeriodMonthly)
	account := f.node.Generate()
	first := f.addEntitlement(account, plan, now.AddDate(0, 0, 30), true)
	second := f.addEntitlement(account, plan, now.AddDate(0, 0, 30), false)

	if _, err := f.svc.Toggle(context.Background(), toggleReq(first, false)); err != nil {
		t.Fatalf("toggle off: %v", err)
	}

	got, err := f.svc.Toggle(context.Background(), toggleReq(second, true))
	if err != nil {
		t.Fatalf("toggle on after freeing slot: %v", err)
	}
	if !got.HighlightActive {
		t.Fatal("expected freed slot granted")
	}
}

func TestToggleOffOnLapsedMembership(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, now)
	plan := f.addPlan(plandomain.BillingPeriodMonthly)
	account := f.node.Generate()
	lapsed := f.addEntitlement(account, plan, now.AddDate(0, 0, -10), true)

	got, err := f.svc.Toggle(context.Background(), toggleReq(lapsed, false))
	if err != nil {
		t.Fatalf("toggle off on lapsed membership: %v", err)
	}
	if got.HighlightActive {
		t.Fatal("expected highlight cleared")
	}
}

func TestToggleOnRequiresActiveMembership(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, now)
	plan := f.addPlan(plandomain.BillingPeriodMonthly)
	account := f.node.Generate()
	lapsed := f.addEntitlement(account, plan, now.AddDate(0, 0, -10), false)

	_, err := f.svc.Toggle(context.Background(), toggleReq(lapsed, true))
	if !errors.Is(err, highlightdomain.ErrNoActiveMembership) {
		t.Fatalf("expected ErrNoActiveMembership, got %v", err)
	}
}

func TestToggleOnIsIdempotent(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, now)
	plan := f.addPlan(plandomain.BillingPeriodMonthly)
	account := f.node.Generate()
	ent := f.addEntitlement(account, plan, now.AddDate(0, 0, 30), true)

	got, err := f.svc.Toggle(context.Background(), toggleReq(ent, true))
	if err != nil {
		t.Fatalf("toggle on already-highlighted subject: %v", err)
	}
	if !got.HighlightActive {
		t.Fatal("expected highlight still active")
	}
}

func TestToggleByStranger(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, now)
	plan := f.addPlan(plandomain.BillingPeriodMonthly)
	account := f.node.Generate()
	ent := f.addEntitlement(account, plan, now.AddDate(0, 0, 30), false)

	req := toggleReq(ent, true)
	req.Caller = f.node.Generate().String()
	_, err := f.svc.Toggle(context.Background(), req)
	if !errors.Is(err, authorization.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestToggleByAdmin(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, now)
	plan := f.addPlan(plandomain.BillingPeriodMonthly)
	account := f.node.Generate()
	ent := f.addEntitlement(account, plan, now.AddDate(0, 0, 30), false)

	admin := f.node.Generate()
	f.authz.admins["account:"+admin.String()] = true

	req := toggleReq(ent, true)
	req.Caller = admin.String()
	got, err := f.svc.Toggle(context.Background(), req)
	if err != nil {
		t.Fatalf("admin toggle: %v", err)
	}
	if !got.HighlightActive {
		t.Fatal("expected highlight active")
	}
}
