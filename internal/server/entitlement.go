package server

import (
	"net/http"

	entitlementdomain "github.com/conectalocal/vitrina/internal/entitlement/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) GetEntitlement(c *gin.Context) {
	entitlement, err := s.entitlementSvc.GetBySubject(c.Request.Context(), entitlementdomain.GetEntitlementRequest{
		SubjectType: c.Param("subject_type"),
		SubjectID:   c.Param("subject_id"),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, entitlement)
}
