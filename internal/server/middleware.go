package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/conectalocal/vitrina/internal/observability/obscontext"
	"github.com/gin-gonic/gin"
)

const contextCallerIDKey = "caller_id"

// CallerContext lifts the identity resolved by the auth gateway into the
// request context. Anonymous requests pass through with no caller; each
// handler decides whether that is acceptable.
func (s *Server) CallerContext() gin.HandlerFunc {
	header := s.cfg.CallerHeader
	return func(c *gin.Context) {
		caller := strings.TrimSpace(c.GetHeader(header))
		if caller != "" {
			c.Set(contextCallerIDKey, caller)
			ctx := obscontext.WithCallerID(c.Request.Context(), caller)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

func (s *Server) callerID(c *gin.Context) string {
	return c.GetString(contextCallerIDKey)
}

func (s *Server) authorizeAction(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := s.callerID(c)
		if caller == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), "account:"+caller, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// CaptureRateLimit throttles the gateway verification endpoints per
// caller and per process. Disabled limiter means everything passes.
func (s *Server) CaptureRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.captureLimiter.Enabled() {
			c.Next()
			return
		}

		caller := s.callerID(c)
		if caller == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		result, err := s.captureLimiter.AllowAccount(c.Request.Context(), caller)
		if err != nil {
			// Redis being down must not block payments.
			c.Next()
			return
		}
		if !result.Allowed {
			s.obsMetrics.RecordRateLimitVerdict(c.Request.Context(), "capture_account", "denied")
			setRetryAfter(c, result.RetryAfter)
			AbortWithError(c, ErrRateLimited)
			return
		}

		s.obsMetrics.RecordRateLimitVerdict(c.Request.Context(), "capture_account", "allowed")
		c.Next()
	}
}

// acquireCapture applies the shared per-gateway budget and takes the
// per-subject lock so two concurrent captures for the same subject
// cannot race the verifier. The returned release func must be called
// once the capture finishes. Redis errors fail open: redis being down
// must not block payments.
func (s *Server) acquireCapture(c *gin.Context, gateway, subjectType, subjectID string) (func(), bool) {
	if !s.captureLimiter.Enabled() {
		return func() {}, true
	}
	ctx := c.Request.Context()

	result, err := s.captureLimiter.AllowGateway(ctx, gateway)
	if err == nil && !result.Allowed {
		s.obsMetrics.RecordRateLimitVerdict(ctx, "capture_gateway", "denied")
		setRetryAfter(c, result.RetryAfter)
		AbortWithError(c, ErrRateLimited)
		return nil, false
	}

	token, locked, err := s.captureLimiter.TryLockSubject(ctx, subjectType, subjectID)
	if err != nil {
		return func() {}, true
	}
	if !locked {
		s.obsMetrics.RecordRateLimitVerdict(ctx, "capture_subject", "denied")
		setRetryAfter(c, time.Second)
		AbortWithError(c, ErrRateLimited)
		return nil, false
	}

	return func() {
		_ = s.captureLimiter.ReleaseSubject(ctx, subjectType, subjectID, token)
	}, true
}

func setRetryAfter(c *gin.Context, after time.Duration) {
	seconds := int(after / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	c.Header("Retry-After", strconv.Itoa(seconds))
}
