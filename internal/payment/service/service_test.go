package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/conectalocal/vitrina/internal/clock"
	"github.com/conectalocal/vitrina/internal/config"
	entitlementdomain "github.com/conectalocal/vitrina/internal/entitlement/domain"
	paymentdomain "github.com/conectalocal/vitrina/internal/payment/domain"
	plandomain "github.com/conectalocal/vitrina/internal/plan/domain"
	providerdomain "github.com/conectalocal/vitrina/internal/providers/payment/domain"
	subscriptiondomain "github.com/conectalocal/vitrina/internal/subscription/domain"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakePaymentRepo struct {
	submissions map[snowflake.ID]*paymentdomain.Submission
	payments    map[string]*paymentdomain.Payment
	writes      int
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{
		submissions: map[snowflake.ID]*paymentdomain.Submission{},
		payments:    map[string]*paymentdomain.Payment{},
	}
}

func refKey(gateway, ref string) string { return gateway + "/" + ref }

func (f *fakePaymentRepo) InsertSubmission(_ context.Context, _ *gorm.DB, submission *paymentdomain.Submission) error {
	copied := *submission
	f.submissions[copied.ID] = &copied
	f.writes++
	return nil
}

func (f *fakePaymentRepo) FindSubmissionByIDForUpdate(_ context.Context, _ *gorm.DB, id snowflake.ID) (*paymentdomain.Submission, error) {
	if s, ok := f.submissions[id]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, nil
}

func (f *fakePaymentRepo) ListSubmissions(_ context.Context, _ *gorm.DB, status paymentdomain.SubmissionStatus) ([]paymentdomain.Submission, error) {
	var out []paymentdomain.Submission
	for _, s := range f.submissions {
		if status == "" || s.Status == status {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakePaymentRepo) MarkSubmissionReviewed(_ context.Context, _ *gorm.DB, id snowflake.ID, status paymentdomain.SubmissionStatus, reviewerID snowflake.ID, now time.Time) error {
	s, ok := f.submissions[id]
	if !ok {
		return nil
	}
	s.Status = status
	s.ReviewedBy = &reviewerID
	s.ReviewedAt = &now
	s.UpdatedAt = now
	f.writes++
	return nil
}

func (f *fakePaymentRepo) InsertPayment(_ context.Context, _ *gorm.DB, payment *paymentdomain.Payment) error {
	key := refKey(payment.Gateway, payment.TransactionRef)
	if _, exists := f.payments[key]; exists {
		return gorm.ErrDuplicatedKey
	}
	copied := *payment
	f.payments[key] = &copied
	f.writes++
	return nil
}

func (f *fakePaymentRepo) FindPaymentByRef(_ context.Context, _ *gorm.DB, gateway, transactionRef string) (*paymentdomain.Payment, error) {
	if p, ok := f.payments[refKey(gateway, transactionRef)]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, nil
}

func (f *fakePaymentRepo) MarkPaymentCompleted(_ context.Context, _ *gorm.DB, id snowflake.ID, subscriptionID snowflake.ID, now time.Time) error {
	for _, p := range f.payments {
		if p.ID == id {
			p.Status = paymentdomain.PaymentStatusCompleted
			p.SubscriptionID = &subscriptionID
			p.UpdatedAt = now
			f.writes++
			return nil
		}
	}
	return nil
}

func (f *fakePaymentRepo) FindPaymentBySubmissionForUpdate(_ context.Context, _ *gorm.DB, submissionID snowflake.ID) (*paymentdomain.Payment, error) {
	for _, p := range f.payments {
		if p.SubmissionID != nil && *p.SubmissionID == submissionID {
			copied := *p
			return &copied, nil
		}
	}
	return nil, nil
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

type fakeSubscriptionService struct {
	node    *snowflake.Node
	applied int
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

func (f *fakeSubscriptionService) ExpireLapsed(_ context.Context) (int64, error) { return 0, nil }

func (f *fakeSubscriptionService) ApplyPaidPeriodTx(_ context.Context, _ *gorm.DB, req subscriptiondomain.PaidPeriodRequest) (subscriptiondomain.PaidPeriodResult, error) {
	f.applied++
	return subscriptiondomain.PaidPeriodResult{
		Subscription: subscriptiondomain.Subscription{
			ID:          f.node.Generate(),
			SubjectType: req.SubjectType,
			SubjectID:   req.SubjectID,
			PlanID:      req.Plan.ID,
			Status:      subscriptiondomain.SubscriptionStatusActive,
		},
		ExpiresAt: time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
	}, nil
}

type fakeOrderVerifier struct {
	result providerdomain.CaptureResult
	err    error
	calls  int
}

func (f *fakeOrderVerifier) Capture(_ context.Context, orderID string) (providerdomain.CaptureResult, error) {
	f.calls++
	if f.err != nil {
		return providerdomain.CaptureResult{}, f.err
	}
	result := f.result
	result.OrderID = orderID
	return result, nil
}

type fakeChainVerifier struct {
	transfer providerdomain.ChainTransfer
	err      error
}

func (f *fakeChainVerifier) LookupTransaction(_ context.Context, txHash string) (providerdomain.ChainTransfer, error) {
	if f.err != nil {
		return providerdomain.ChainTransfer{}, f.err
	}
	transfer := f.transfer
	transfer.TxHash = txHash
	return transfer, nil
}

type fixture struct {
	svc      paymentdomain.Service
	repo     *fakePaymentRepo
	plans    *fakePlanService
	subs     *fakeSubscriptionService
	verifier *fakeOrderVerifier
	chain    *fakeChainVerifier
	node     *snowflake.Node
	clock    *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	node, err := snowflake.NewNode(2)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	repo := newFakePaymentRepo()
	plans := &fakePlanService{plans: map[string]plandomain.Plan{}}
	subs := &fakeSubscriptionService{node: node}
	verifier := &fakeOrderVerifier{}
	chain := &fakeChainVerifier{}
	fakeClock := clock.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	svc := NewService(ServiceParam{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fakeClock,
		Repo:  repo,
		Config: config.Config{
			Chain: config.ChainConfig{
				ReceiverAddress: "0xreceiver",
				TokenContract:   "0xusdt",
			},
		},
		Plansvc:       plans,
		Subsvc:        subs,
		OrderVerifier: verifier,
		ChainVerifier: chain,
	})

	return &fixture{
		svc:      svc,
		repo:     repo,
		plans:    plans,
		subs:     subs,
		verifier: verifier,
		chain:    chain,
		node:     node,
		clock:    fakeClock,
	}
}

func (f *fixture) addPlan(price float64) plandomain.Plan {
	plan := plandomain.Plan{
		ID:            f.node.Generate(),
		Code:          "conecta-monthly",
		Tier:          entitlementdomain.TierConecta,
		BillingPeriod: plandomain.BillingPeriodMonthly,
		DurationDays:  30,
		PriceUSD:      price,
		Active:        true,
	}
	f.plans.plans[plan.ID.String()] = plan
	return plan
}

func (f *fixture) addPendingSubmission(plan plandomain.Plan) paymentdomain.Submission {
	submission := paymentdomain.Submission{
		ID:          f.node.Generate(),
		SubjectType: entitlementdomain.SubjectTypeBusiness,
		SubjectID:   f.node.Generate(),
		AccountID:   f.node.Generate(),
		PayerID:     f.node.Generate(),
		PlanID:      plan.ID,
		AmountUSD:   plan.PriceUSD,
		Status:      paymentdomain.SubmissionStatusPending,
	}
	f.repo.submissions[submission.ID] = &submission
	return submission
}

func TestApproveSubmission(t *testing.T) {
	f := newFixture(t)
	plan := f.addPlan(9.99)
	submission := f.addPendingSubmission(plan)
	reviewer := f.node.Generate()

	approved, err := f.svc.ApproveSubmission(context.Background(), paymentdomain.ReviewSubmissionRequest{
		SubmissionID: submission.ID.String(),
		ReviewerID:   reviewer,
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}

	if approved.Status != paymentdomain.SubmissionStatusApproved {
		t.Fatalf("expected approved, got %s", approved.Status)
	}
	if approved.ReviewedBy == nil || *approved.ReviewedBy != reviewer {
		t.Fatal("expected reviewer recorded")
	}
	if f.subs.applied != 1 {
		t.Fatalf("expected 1 paid period applied, got %d", f.subs.applied)
	}

	ledger, _ := f.repo.FindPaymentBySubmissionForUpdate(context.Background(), nil, submission.ID)
	if ledger == nil || ledger.Status != paymentdomain.PaymentStatusCompleted {
		t.Fatalf("expected completed ledger row, got %+v", ledger)
	}
}

func TestApproveSubmissionSingleProcessing(t *testing.T) {
	f := newFixture(t)
	plan := f.addPlan(9.99)
	submission := f.addPendingSubmission(plan)
	reviewer := f.node.Generate()

	req := paymentdomain.ReviewSubmissionRequest{
		SubmissionID: submission.ID.String(),
		ReviewerID:   reviewer,
	}
	if _, err := f.svc.ApproveSubmission(context.Background(), req); err != nil {
		t.Fatalf("first approve: %v", err)
	}

	writesAfterFirst := f.repo.writes
	_, err := f.svc.ApproveSubmission(context.Background(), req)
	if !errors.Is(err, paymentdomain.ErrSubmissionProcessed) {
		t.Fatalf("expected ErrSubmissionProcessed, got %v", err)
	}
	if f.repo.writes != writesAfterFirst {
		t.Fatal("second approval must not write")
	}
	if f.subs.applied != 1 {
		t.Fatalf("expected entitlement applied once, got %d", f.subs.applied)
	}
}

func TestRejectThenApproveIsConflict(t *testing.T) {
	f := newFixture(t)
	plan := f.addPlan(9.99)
	submission := f.addPendingSubmission(plan)
	reviewer := f.node.Generate()

	req := paymentdomain.ReviewSubmissionRequest{
		SubmissionID: submission.ID.String(),
		ReviewerID:   reviewer,
	}
	if _, err := f.svc.RejectSubmission(context.Background(), req); err != nil {
		t.Fatalf("reject: %v", err)
	}

	_, err := f.svc.ApproveSubmission(context.Background(), req)
	if !errors.Is(err, paymentdomain.ErrSubmissionProcessed) {
		t.Fatalf("expected ErrSubmissionProcessed, got %v", err)
	}
}

func TestCapturePayPalOrder(t *testing.T) {
	f := newFixture(t)
	plan := f.addPlan(9.99)
	f.verifier.result = providerdomain.CaptureResult{Status: "COMPLETED", Amount: 9.99, Currency: "USD"}

	resp, err := f.svc.CapturePayPalOrder(context.Background(), paymentdomain.CapturePayPalRequest{
		SubjectType: "account",
		SubjectID:   f.node.Generate().String(),
		AccountID:   f.node.Generate().String(),
		PlanID:      plan.ID.String(),
		OrderID:     "ORDER-1",
	})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if resp.SubscriptionID == 0 {
		t.Fatal("expected subscription id")
	}

	ledger, _ := f.repo.FindPaymentByRef(context.Background(), nil, providerdomain.GatewayPayPal, "ORDER-1")
	if ledger == nil || ledger.Status != paymentdomain.PaymentStatusCompleted {
		t.Fatalf("expected completed ledger row, got %+v", ledger)
	}
}

func TestCapturePayPalReplayGuard(t *testing.T) {
	f := newFixture(t)
	plan := f.addPlan(9.99)
	f.verifier.result = providerdomain.CaptureResult{Status: "COMPLETED", Amount: 9.99, Currency: "USD"}

	req := paymentdomain.CapturePayPalRequest{
		SubjectType: "account",
		SubjectID:   f.node.Generate().String(),
		AccountID:   f.node.Generate().String(),
		PlanID:      plan.ID.String(),
		OrderID:     "ORDER-REPLAY",
	}

	if _, err := f.svc.CapturePayPalOrder(context.Background(), req); err != nil {
		t.Fatalf("first capture: %v", err)
	}

	_, err := f.svc.CapturePayPalOrder(context.Background(), req)
	if !errors.Is(err, paymentdomain.ErrTransactionUsed) {
		t.Fatalf("expected ErrTransactionUsed, got %v", err)
	}
	if f.subs.applied != 1 {
		t.Fatalf("expected entitlement applied exactly once, got %d", f.subs.applied)
	}
}

func TestCapturePayPalVerifierDownWritesNothing(t *testing.T) {
	f := newFixture(t)
	plan := f.addPlan(9.99)
	f.verifier.err = providerdomain.ErrVerifierUnavailable

	_, err := f.svc.CapturePayPalOrder(context.Background(), paymentdomain.CapturePayPalRequest{
		SubjectType: "account",
		SubjectID:   f.node.Generate().String(),
		AccountID:   f.node.Generate().String(),
		PlanID:      plan.ID.String(),
		OrderID:     "ORDER-DOWN",
	})
	if !errors.Is(err, providerdomain.ErrVerifierUnavailable) {
		t.Fatalf("expected ErrVerifierUnavailable, got %v", err)
	}
	if f.repo.writes != 0 {
		t.Fatal("verification failure must not write")
	}
}

func TestCapturePayPalAmountMismatch(t *testing.T) {
	f := newFixture(t)
	plan := f.addPlan(9.99)
	f.verifier.result = providerdomain.CaptureResult{Status: "COMPLETED", Amount: 5.00, Currency: "USD"}

	_, err := f.svc.CapturePayPalOrder(context.Background(), paymentdomain.CapturePayPalRequest{
		SubjectType: "account",
		SubjectID:   f.node.Generate().String(),
		AccountID:   f.node.Generate().String(),
		PlanID:      plan.ID.String(),
		OrderID:     "ORDER-SHORT",
	})
	if !errors.Is(err, paymentdomain.ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got %v", err)
	}
}

func TestVerifyCryptoPayment(t *testing.T) {
	f := newFixture(t)
	plan := f.addPlan(9.99)
	f.chain.transfer = providerdomain.ChainTransfer{
		ToAddress:       "0xreceiver",
		ContractAddress: "0xusdt",
		Amount:          10.00,
		Confirmations:   30,
	}

	resp, err := f.svc.VerifyCryptoPayment(context.Background(), paymentdomain.VerifyCryptoRequest{
		SubjectType: "account",
		SubjectID:   f.node.Generate().String(),
		AccountID:   f.node.Generate().String(),
		PlanID:      plan.ID.String(),
		TxHash:      "0xABCDEF",
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if resp.PaymentID == 0 {
		t.Fatal("expected payment id")
	}

	// The hash is normalized before it becomes the replay key.
	ledger, _ := f.repo.FindPaymentByRef(context.Background(), nil, providerdomain.GatewayCrypto, "0xabcdef")
	if ledger == nil {
		t.Fatal("expected ledger row under normalized hash")
	}
}

func TestVerifyCryptoWrongReceiver(t *testing.T) {
	f := newFixture(t)
	plan := f.addPlan(9.99)
	f.chain.transfer = providerdomain.ChainTransfer{
		ToAddress:       "0xsomeoneelse",
		ContractAddress: "0xusdt",
		Amount:          10.00,
		Confirmations:   30,
	}

	_, err := f.svc.VerifyCryptoPayment(context.Background(), paymentdomain.VerifyCryptoRequest{
		SubjectType: "account",
		SubjectID:   f.node.Generate().String(),
		AccountID:   f.node.Generate().String(),
		PlanID:      plan.ID.String(),
		TxHash:      "0xabc",
	})
	if !errors.Is(err, paymentdomain.ErrTransferMismatch) {
		t.Fatalf("expected ErrTransferMismatch, got %v", err)
	}
}
