package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/conectalocal/vitrina/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() paymentdomain.Repository {
	return &repo{}
}

const submissionColumns = `id, subject_type, subject_id, account_id, payer_id, plan_id, amount_usd,
	 receipt_url, status, reviewed_by, reviewed_at, created_at, updated_at`

const paymentColumns = `id, submission_id, subscription_id, gateway, transaction_ref, amount,
	 currency, status, metadata, created_at, updated_at`

func (r *repo) InsertSubmission(ctx context.Context, db *gorm.DB, submission *paymentdomain.Submission) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_submissions (
			id, subject_type, subject_id, account_id, payer_id, plan_id, amount_usd,
			receipt_url, status, reviewed_by, reviewed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		submission.ID,
		submission.SubjectType,
		submission.SubjectID,
		submission.AccountID,
		submission.PayerID,
		submission.PlanID,
		submission.AmountUSD,
		submission.ReceiptURL,
		submission.Status,
		submission.ReviewedBy,
		submission.ReviewedAt,
		submission.CreatedAt,
		submission.UpdatedAt,
	).Error
}

func (r *repo) FindSubmissionByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*paymentdomain.Submission, error) {
	var submission paymentdomain.Submission
	err := db.WithContext(ctx).Raw(
		`SELECT `+submissionColumns+` FROM payment_submissions WHERE id = ? FOR UPDATE`,
		id,
	).Scan(&submission).Error
	if err != nil {
		return nil, err
	}
	if submission.ID == 0 {
		return nil, nil
	}
	return &submission, nil
}

func (r *repo) ListSubmissions(ctx context.Context, db *gorm.DB, status paymentdomain.SubmissionStatus) ([]paymentdomain.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM payment_submissions`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	var submissions []paymentdomain.Submission
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&submissions).Error; err != nil {
		return nil, err
	}
	return submissions, nil
}

func (r *repo) MarkSubmissionReviewed(ctx context.Context, db *gorm.DB, id snowflake.ID, status paymentdomain.SubmissionStatus, reviewerID snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_submissions
		 SET status = ?, reviewed_by = ?, reviewed_at = ?, updated_at = ?
		 WHERE id = ?`,
		status,
		reviewerID,
		now,
		now,
		id,
	).Error
}

func (r *repo) InsertPayment(ctx context.Context, db *gorm.DB, payment *paymentdomain.Payment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (
			id, submission_id, subscription_id, gateway, transaction_ref, amount,
			currency, status, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID,
		payment.SubmissionID,
		payment.SubscriptionID,
		payment.Gateway,
		payment.TransactionRef,
		payment.Amount,
		payment.Currency,
		payment.Status,
		payment.Metadata,
		payment.CreatedAt,
		payment.UpdatedAt,
	).Error
}

func (r *repo) FindPaymentByRef(ctx context.Context, db *gorm.DB, gateway, transactionRef string) (*paymentdomain.Payment, error) {
	var payment paymentdomain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payments WHERE gateway = ? AND transaction_ref = ?`,
		gateway,
		transactionRef,
	).Scan(&payment).Error
	if err != nil {
		return nil, err
	}
	if payment.ID == 0 {
		return nil, nil
	}
	return &payment, nil
}

func (r *repo) MarkPaymentCompleted(ctx context.Context, db *gorm.DB, id snowflake.ID, subscriptionID snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payments SET status = ?, subscription_id = ?, updated_at = ? WHERE id = ?`,
		paymentdomain.PaymentStatusCompleted,
		subscriptionID,
		now,
		id,
	).Error
}

func (r *repo) FindPaymentBySubmissionForUpdate(ctx context.Context, db *gorm.DB, submissionID snowflake.ID) (*paymentdomain.Payment, error) {
	var payment paymentdomain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payments WHERE submission_id = ? LIMIT 1 FOR UPDATE`,
		submissionID,
	).Scan(&payment).Error
	if err != nil {
		return nil, err
	}
	if payment.ID == 0 {
		return nil, nil
	}
	return &payment, nil
}
