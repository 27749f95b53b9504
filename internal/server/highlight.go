package server

import (
	"net/http"

	highlightdomain "github.com/conectalocal/vitrina/internal/highlight/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) ToggleHighlight(c *gin.Context) {
	caller := s.callerID(c)
	if caller == "" {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req highlightdomain.ToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Caller = caller

	entitlement, err := s.highlightSvc.Toggle(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, entitlement)
}
