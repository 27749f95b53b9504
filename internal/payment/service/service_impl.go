package service

import (
	"context"
	"math"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/conectalocal/vitrina/internal/clock"
	"github.com/conectalocal/vitrina/internal/config"
	entitlementdomain "github.com/conectalocal/vitrina/internal/entitlement/domain"
	"github.com/conectalocal/vitrina/internal/observability/metrics"
	paymentdomain "github.com/conectalocal/vitrina/internal/payment/domain"
	plandomain "github.com/conectalocal/vitrina/internal/plan/domain"
	providerdomain "github.com/conectalocal/vitrina/internal/providers/payment/domain"
	subscriptiondomain "github.com/conectalocal/vitrina/internal/subscription/domain"
	"github.com/conectalocal/vitrina/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// amountTolerance absorbs sub-cent rounding between the gateway and the
// plan price.
const amountTolerance = 0.01

const minConfirmations = 12

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID   *snowflake.Node
	clock   clock.Clock
	repo    paymentdomain.Repository
	metrics *metrics.Metrics
	chain   config.ChainConfig

	plansvc       plandomain.Service
	subsvc        subscriptiondomain.Service
	orderVerifier providerdomain.OrderVerifier
	chainVerifier providerdomain.ChainVerifier
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    paymentdomain.Repository
	Metrics *metrics.Metrics `optional:"true"`
	Config  config.Config

	Plansvc       plandomain.Service
	Subsvc        subscriptiondomain.Service
	OrderVerifier providerdomain.OrderVerifier
	ChainVerifier providerdomain.ChainVerifier
}

func NewService(p ServiceParam) paymentdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("payment.service"),

		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,
		chain:   p.Config.Chain,

		plansvc:       p.Plansvc,
		subsvc:        p.Subsvc,
		orderVerifier: p.OrderVerifier,
		chainVerifier: p.ChainVerifier,
	}
}

func (s *Service) CreateSubmission(ctx context.Context, req paymentdomain.CreateSubmissionRequest) (paymentdomain.Submission, error) {
	subjectType, subjectID, accountID, err := parseSubject(req.SubjectType, req.SubjectID, req.AccountID)
	if err != nil {
		return paymentdomain.Submission{}, err
	}
	if req.AmountUSD <= 0 {
		return paymentdomain.Submission{}, paymentdomain.ErrInvalidAmount
	}

	plan, err := s.plansvc.GetByID(ctx, req.PlanID)
	if err != nil {
		return paymentdomain.Submission{}, err
	}
	if !plan.Active {
		return paymentdomain.Submission{}, plandomain.ErrPlanInactive
	}

	now := s.clock.Now()
	submission := paymentdomain.Submission{
		ID:          s.genID.Generate(),
		SubjectType: subjectType,
		SubjectID:   subjectID,
		AccountID:   accountID,
		PayerID:     accountID,
		PlanID:      plan.ID,
		AmountUSD:   req.AmountUSD,
		ReceiptURL:  strings.TrimSpace(req.ReceiptURL),
		Status:      paymentdomain.SubmissionStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.InsertSubmission(ctx, s.db, &submission); err != nil {
		return paymentdomain.Submission{}, err
	}

	s.metrics.RecordPaymentEvent(ctx, providerdomain.GatewayManual, "submitted")
	s.log.Info("payment submission created",
		zap.String("submission_id", submission.ID.String()),
		zap.String("subject_id", subjectID.String()),
		zap.Float64("amount_usd", submission.AmountUSD),
	)
	return submission, nil
}

func (s *Service) ListSubmissions(ctx context.Context, req paymentdomain.ListSubmissionRequest) ([]paymentdomain.Submission, error) {
	status := paymentdomain.SubmissionStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	switch status {
	case "", paymentdomain.SubmissionStatusPending,
		paymentdomain.SubmissionStatusApproved,
		paymentdomain.SubmissionStatusRejected:
	default:
		return nil, paymentdomain.ErrInvalidSubmission
	}
	return s.repo.ListSubmissions(ctx, s.db, status)
}

// ApproveSubmission applies the submitted plan to the subject with the
// same cumulative rule as Activate, then freezes the submission. A
// submission that already left PENDING is never processed twice.
func (s *Service) ApproveSubmission(ctx context.Context, req paymentdomain.ReviewSubmissionRequest) (paymentdomain.Submission, error) {
	submissionID, err := snowflake.ParseString(strings.TrimSpace(req.SubmissionID))
	if err != nil {
		return paymentdomain.Submission{}, paymentdomain.ErrInvalidSubmission
	}

	now := s.clock.Now()
	var approved paymentdomain.Submission
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		submission, err := s.repo.FindSubmissionByIDForUpdate(ctx, tx, submissionID)
		if err != nil {
			return err
		}
		if submission == nil {
			return paymentdomain.ErrSubmissionNotFound
		}
		if submission.Status != paymentdomain.SubmissionStatusPending {
			return paymentdomain.ErrSubmissionProcessed
		}

		plan, err := s.plansvc.GetByID(ctx, submission.PlanID.String())
		if err != nil {
			return err
		}

		result, err := s.subsvc.ApplyPaidPeriodTx(ctx, tx, subscriptiondomain.PaidPeriodRequest{
			SubjectType: submission.SubjectType,
			SubjectID:   submission.SubjectID,
			AccountID:   submission.AccountID,
			PayerID:     submission.PayerID,
			Plan:        plan,
		})
		if err != nil {
			return err
		}

		if err := s.repo.MarkSubmissionReviewed(ctx, tx, submission.ID, paymentdomain.SubmissionStatusApproved, req.ReviewerID, now); err != nil {
			return err
		}

		ledger, err := s.repo.FindPaymentBySubmissionForUpdate(ctx, tx, submission.ID)
		if err != nil {
			return err
		}
		if ledger != nil {
			if err := s.repo.MarkPaymentCompleted(ctx, tx, ledger.ID, result.Subscription.ID, now); err != nil {
				return err
			}
		} else {
			payment := paymentdomain.Payment{
				ID:             s.genID.Generate(),
				SubmissionID:   &submission.ID,
				SubscriptionID: &result.Subscription.ID,
				Gateway:        providerdomain.GatewayManual,
				TransactionRef: "submission-" + submission.ID.String(),
				Amount:         submission.AmountUSD,
				Currency:       "USD",
				Status:         paymentdomain.PaymentStatusCompleted,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := s.repo.InsertPayment(ctx, tx, &payment); err != nil {
				return err
			}
		}

		approved = *submission
		approved.Status = paymentdomain.SubmissionStatusApproved
		approved.ReviewedBy = &req.ReviewerID
		approved.ReviewedAt = &now
		return nil
	})
	if err != nil {
		return paymentdomain.Submission{}, err
	}

	s.metrics.RecordPaymentEvent(ctx, providerdomain.GatewayManual, "approved")
	s.log.Info("payment submission approved",
		zap.String("submission_id", approved.ID.String()),
		zap.String("reviewer_id", req.ReviewerID.String()),
	)
	return approved, nil
}

func (s *Service) RejectSubmission(ctx context.Context, req paymentdomain.ReviewSubmissionRequest) (paymentdomain.Submission, error) {
	submissionID, err := snowflake.ParseString(strings.TrimSpace(req.SubmissionID))
	if err != nil {
		return paymentdomain.Submission{}, paymentdomain.ErrInvalidSubmission
	}

	now := s.clock.Now()
	var rejected paymentdomain.Submission
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		submission, err := s.repo.FindSubmissionByIDForUpdate(ctx, tx, submissionID)
		if err != nil {
			return err
		}
		if submission == nil {
			return paymentdomain.ErrSubmissionNotFound
		}
		if submission.Status != paymentdomain.SubmissionStatusPending {
			return paymentdomain.ErrSubmissionProcessed
		}

		if err := s.repo.MarkSubmissionReviewed(ctx, tx, submission.ID, paymentdomain.SubmissionStatusRejected, req.ReviewerID, now); err != nil {
			return err
		}

		rejected = *submission
		rejected.Status = paymentdomain.SubmissionStatusRejected
		rejected.ReviewedBy = &req.ReviewerID
		rejected.ReviewedAt = &now
		return nil
	})
	if err != nil {
		return paymentdomain.Submission{}, err
	}

	s.metrics.RecordPaymentEvent(ctx, providerdomain.GatewayManual, "rejected")
	return rejected, nil
}

// CapturePayPalOrder verifies the order with PayPal before touching any
// local state, then applies the paid period. The ledger's unique
// (gateway, transaction_ref) pair rejects replays.
func (s *Service) CapturePayPalOrder(ctx context.Context, req paymentdomain.CapturePayPalRequest) (paymentdomain.CaptureResponse, error) {
	subjectType, subjectID, accountID, err := parseSubject(req.SubjectType, req.SubjectID, req.AccountID)
	if err != nil {
		return paymentdomain.CaptureResponse{}, err
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return paymentdomain.CaptureResponse{}, providerdomain.ErrInvalidOrder
	}

	plan, err := s.plansvc.GetByID(ctx, req.PlanID)
	if err != nil {
		return paymentdomain.CaptureResponse{}, err
	}
	if !plan.Active {
		return paymentdomain.CaptureResponse{}, plandomain.ErrPlanInactive
	}

	existing, err := s.repo.FindPaymentByRef(ctx, s.db, providerdomain.GatewayPayPal, orderID)
	if err != nil {
		return paymentdomain.CaptureResponse{}, err
	}
	if existing != nil {
		return paymentdomain.CaptureResponse{}, paymentdomain.ErrTransactionUsed
	}

	result, err := s.orderVerifier.Capture(ctx, orderID)
	if err != nil {
		s.metrics.RecordPaymentEvent(ctx, providerdomain.GatewayPayPal, "verify_failed")
		return paymentdomain.CaptureResponse{}, err
	}
	if result.Currency != "USD" {
		return paymentdomain.CaptureResponse{}, paymentdomain.ErrCurrencyMismatch
	}
	if math.Abs(result.Amount-plan.PriceUSD) > amountTolerance {
		s.log.Warn("paypal capture amount mismatch",
			zap.String("order_id", orderID),
			zap.Float64("captured", result.Amount),
			zap.Float64("expected", plan.PriceUSD),
		)
		return paymentdomain.CaptureResponse{}, paymentdomain.ErrAmountMismatch
	}

	return s.applyGatewayPayment(ctx, gatewayPayment{
		Gateway:        providerdomain.GatewayPayPal,
		TransactionRef: orderID,
		Amount:         result.Amount,
		Currency:       result.Currency,
		SubjectType:    subjectType,
		SubjectID:      subjectID,
		AccountID:      accountID,
		Plan:           plan,
		Metadata: datatypes.JSONMap{
			"paypal_status": result.Status,
		},
	})
}

// VerifyCryptoPayment resolves the transaction on chain, checks the
// transfer landed on our receiving address with the configured token
// and enough value, then applies the paid period.
func (s *Service) VerifyCryptoPayment(ctx context.Context, req paymentdomain.VerifyCryptoRequest) (paymentdomain.CaptureResponse, error) {
	subjectType, subjectID, accountID, err := parseSubject(req.SubjectType, req.SubjectID, req.AccountID)
	if err != nil {
		return paymentdomain.CaptureResponse{}, err
	}
	txHash := strings.ToLower(strings.TrimSpace(req.TxHash))
	if txHash == "" {
		return paymentdomain.CaptureResponse{}, providerdomain.ErrTransactionNotFound
	}

	plan, err := s.plansvc.GetByID(ctx, req.PlanID)
	if err != nil {
		return paymentdomain.CaptureResponse{}, err
	}
	if !plan.Active {
		return paymentdomain.CaptureResponse{}, plandomain.ErrPlanInactive
	}

	existing, err := s.repo.FindPaymentByRef(ctx, s.db, providerdomain.GatewayCrypto, txHash)
	if err != nil {
		return paymentdomain.CaptureResponse{}, err
	}
	if existing != nil {
		return paymentdomain.CaptureResponse{}, paymentdomain.ErrTransactionUsed
	}

	transfer, err := s.chainVerifier.LookupTransaction(ctx, txHash)
	if err != nil {
		s.metrics.RecordPaymentEvent(ctx, providerdomain.GatewayCrypto, "verify_failed")
		return paymentdomain.CaptureResponse{}, err
	}

	if !strings.EqualFold(transfer.ToAddress, s.chain.ReceiverAddress) ||
		!strings.EqualFold(transfer.ContractAddress, s.chain.TokenContract) {
		return paymentdomain.CaptureResponse{}, paymentdomain.ErrTransferMismatch
	}
	if transfer.Confirmations < minConfirmations {
		return paymentdomain.CaptureResponse{}, providerdomain.ErrPaymentNotCompleted
	}
	if transfer.Amount+amountTolerance < plan.PriceUSD {
		s.log.Warn("crypto transfer amount mismatch",
			zap.String("tx_hash", txHash),
			zap.Float64("transferred", transfer.Amount),
			zap.Float64("expected", plan.PriceUSD),
		)
		return paymentdomain.CaptureResponse{}, paymentdomain.ErrAmountMismatch
	}

	return s.applyGatewayPayment(ctx, gatewayPayment{
		Gateway:        providerdomain.GatewayCrypto,
		TransactionRef: txHash,
		Amount:         transfer.Amount,
		Currency:       "USD",
		SubjectType:    subjectType,
		SubjectID:      subjectID,
		AccountID:      accountID,
		Plan:           plan,
		Metadata: datatypes.JSONMap{
			"contract_address": transfer.ContractAddress,
			"confirmations":    transfer.Confirmations,
		},
	})
}

type gatewayPayment struct {
	Gateway        string
	TransactionRef string
	Amount         float64
	Currency       string
	SubjectType    entitlementdomain.SubjectType
	SubjectID      snowflake.ID
	AccountID      snowflake.ID
	Plan           plandomain.Plan
	Metadata       datatypes.JSONMap
}

func (s *Service) applyGatewayPayment(ctx context.Context, p gatewayPayment) (paymentdomain.CaptureResponse, error) {
	now := s.clock.Now()
	var resp paymentdomain.CaptureResponse

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment := paymentdomain.Payment{
			ID:             s.genID.Generate(),
			Gateway:        p.Gateway,
			TransactionRef: p.TransactionRef,
			Amount:         p.Amount,
			Currency:       p.Currency,
			Status:         paymentdomain.PaymentStatusPending,
			Metadata:       p.Metadata,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.repo.InsertPayment(ctx, tx, &payment); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return paymentdomain.ErrTransactionUsed
			}
			return err
		}

		result, err := s.subsvc.ApplyPaidPeriodTx(ctx, tx, subscriptiondomain.PaidPeriodRequest{
			SubjectType: p.SubjectType,
			SubjectID:   p.SubjectID,
			AccountID:   p.AccountID,
			PayerID:     p.AccountID,
			Plan:        p.Plan,
		})
		if err != nil {
			return err
		}

		if err := s.repo.MarkPaymentCompleted(ctx, tx, payment.ID, result.Subscription.ID, now); err != nil {
			return err
		}

		resp = paymentdomain.CaptureResponse{
			PaymentID:      payment.ID,
			SubscriptionID: result.Subscription.ID,
			ExpiresAt:      result.ExpiresAt,
		}
		return nil
	})
	if err != nil {
		return paymentdomain.CaptureResponse{}, err
	}

	s.metrics.RecordPaymentEvent(ctx, p.Gateway, "completed")
	s.log.Info("gateway payment applied",
		zap.String("gateway", p.Gateway),
		zap.String("transaction_ref", p.TransactionRef),
		zap.String("subscription_id", resp.SubscriptionID.String()),
		zap.Time("expires_at", resp.ExpiresAt),
	)
	return resp, nil
}

func parseSubject(rawType, rawSubject, rawAccount string) (entitlementdomain.SubjectType, snowflake.ID, snowflake.ID, error) {
	subjectType, ok := entitlementdomain.ParseSubjectType(strings.TrimSpace(rawType))
	if !ok {
		return "", 0, 0, entitlementdomain.ErrInvalidSubjectType
	}
	subjectID, err := snowflake.ParseString(strings.TrimSpace(rawSubject))
	if err != nil {
		return "", 0, 0, entitlementdomain.ErrInvalidSubject
	}
	accountID, err := snowflake.ParseString(strings.TrimSpace(rawAccount))
	if err != nil {
		return "", 0, 0, subscriptiondomain.ErrInvalidAccount
	}
	return subjectType, subjectID, accountID, nil
}
