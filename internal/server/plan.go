package server

import (
	"net/http"
	"strings"

	plandomain "github.com/conectalocal/vitrina/internal/plan/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) ListPlans(c *gin.Context) {
	includeInactive := strings.EqualFold(c.Query("include_inactive"), "true")

	plans, err := s.planSvc.List(c.Request.Context(), plandomain.ListPlanRequest{
		IncludeInactive: includeInactive,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"plans": plans})
}

func (s *Server) GetPlanByID(c *gin.Context) {
	plan, err := s.planSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, plan)
}

func (s *Server) CreatePlan(c *gin.Context) {
	var req plandomain.CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	plan, err := s.planSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, "plan.create", "plan", plan.ID.String(), map[string]any{
		"code": plan.Code,
		"tier": plan.Tier,
	})
	c.JSON(http.StatusCreated, plan)
}

func (s *Server) DeactivatePlan(c *gin.Context) {
	if err := s.planSvc.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, "plan.deactivate", "plan", c.Param("id"), nil)
	c.JSON(http.StatusOK, gin.H{"status": "deactivated"})
}
