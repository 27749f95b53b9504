package server

import (
	"net/http"
	"strconv"
	"strings"

	subscriptiondomain "github.com/conectalocal/vitrina/internal/subscription/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) ListSubscriptions(c *gin.Context) {
	pageSize := 0
	if raw := strings.TrimSpace(c.Query("page_size")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			AbortWithError(c, newValidationError("page_size", "invalid_page_size", "page_size must be a non-negative integer"))
			return
		}
		pageSize = parsed
	}

	resp, err := s.subscriptionSvc.List(c.Request.Context(), subscriptiondomain.ListSubscriptionRequest{
		Status:    c.Query("status"),
		SubjectID: c.Query("subject_id"),
		PageToken: c.Query("page_token"),
		PageSize:  pageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetSubscriptionByID(c *gin.Context) {
	subscription, err := s.subscriptionSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, subscription)
}

func (s *Server) ActivateSubscription(c *gin.Context) {
	var req subscriptiondomain.ActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	subscription, err := s.subscriptionSvc.Activate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, "membership.activate", "subscription", subscription.ID.String(), map[string]any{
		"plan_id":    subscription.PlanID.String(),
		"subject_id": subscription.SubjectID.String(),
	})
	c.JSON(http.StatusCreated, subscription)
}

func (s *Server) ExtendSubscription(c *gin.Context) {
	var req subscriptiondomain.ExtendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.SubscriptionID = c.Param("id")

	subscription, err := s.subscriptionSvc.Extend(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, "membership.extend", "subscription", subscription.ID.String(), map[string]any{
		"end_at": subscription.EndAt,
	})
	c.JSON(http.StatusOK, subscription)
}

func (s *Server) DeactivateSubscription(c *gin.Context) {
	if err := s.subscriptionSvc.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, "membership.deactivate", "subscription", c.Param("id"), nil)
	c.JSON(http.StatusOK, gin.H{"status": "deactivated"})
}
