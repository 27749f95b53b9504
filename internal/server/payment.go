package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/conectalocal/vitrina/internal/audit/masking"
	paymentdomain "github.com/conectalocal/vitrina/internal/payment/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) CreatePaymentSubmission(c *gin.Context) {
	var req paymentdomain.CreateSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	submission, err := s.paymentSvc.CreateSubmission(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, submission)
}

func (s *Server) ListPaymentSubmissions(c *gin.Context) {
	submissions, err := s.paymentSvc.ListSubmissions(c.Request.Context(), paymentdomain.ListSubmissionRequest{
		Status: c.Query("status"),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"submissions": submissions})
}

func (s *Server) ApprovePaymentSubmission(c *gin.Context) {
	reviewerID, err := s.reviewerFromCaller(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	submission, err := s.paymentSvc.ApproveSubmission(c.Request.Context(), paymentdomain.ReviewSubmissionRequest{
		SubmissionID: c.Param("id"),
		ReviewerID:   reviewerID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, "payment_submission.approve", "payment_submission", c.Param("id"), map[string]any{
		"receipt_url": masking.MaskSecret(submission.ReceiptURL),
	})
	c.JSON(http.StatusOK, submission)
}

func (s *Server) RejectPaymentSubmission(c *gin.Context) {
	reviewerID, err := s.reviewerFromCaller(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	submission, err := s.paymentSvc.RejectSubmission(c.Request.Context(), paymentdomain.ReviewSubmissionRequest{
		SubmissionID: c.Param("id"),
		ReviewerID:   reviewerID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, "payment_submission.reject", "payment_submission", c.Param("id"), nil)
	c.JSON(http.StatusOK, submission)
}

func (s *Server) CapturePayPalOrder(c *gin.Context) {
	var req paymentdomain.CapturePayPalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	release, ok := s.acquireCapture(c, "paypal", req.SubjectType, req.SubjectID)
	if !ok {
		return
	}
	defer release()

	resp, err := s.paymentSvc.CapturePayPalOrder(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) VerifyCryptoPayment(c *gin.Context) {
	var req paymentdomain.VerifyCryptoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	release, ok := s.acquireCapture(c, "crypto", req.SubjectType, req.SubjectID)
	if !ok {
		return
	}
	defer release()

	resp, err := s.paymentSvc.VerifyCryptoPayment(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) reviewerFromCaller(c *gin.Context) (snowflake.ID, error) {
	caller := s.callerID(c)
	if caller == "" {
		return 0, ErrUnauthorized
	}
	reviewerID, err := snowflake.ParseString(caller)
	if err != nil {
		return 0, ErrUnauthorized
	}
	return reviewerID, nil
}
