package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/conectalocal/vitrina/internal/audit/domain"
	"github.com/conectalocal/vitrina/internal/authorization"
	"github.com/conectalocal/vitrina/internal/config"
	entitlementdomain "github.com/conectalocal/vitrina/internal/entitlement/domain"
	highlightdomain "github.com/conectalocal/vitrina/internal/highlight/domain"
	"github.com/conectalocal/vitrina/internal/observability"
	obsmiddleware "github.com/conectalocal/vitrina/internal/observability/logger"
	obsmetrics "github.com/conectalocal/vitrina/internal/observability/metrics"
	obstracing "github.com/conectalocal/vitrina/internal/observability/tracing"
	paymentdomain "github.com/conectalocal/vitrina/internal/payment/domain"
	plandomain "github.com/conectalocal/vitrina/internal/plan/domain"
	"github.com/conectalocal/vitrina/internal/ratelimit"
	subscriptiondomain "github.com/conectalocal/vitrina/internal/subscription/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, registry *prometheus.Registry) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware(obsCfg.ServiceName))
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, registry *prometheus.Registry) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics, registry)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	db     *gorm.DB
	genID  *snowflake.Node

	authzSvc       authorization.Service
	planSvc        plandomain.Service
	entitlementSvc entitlementdomain.Service
	subscriptionSvc subscriptiondomain.Service
	paymentSvc     paymentdomain.Service
	highlightSvc   highlightdomain.Service
	auditSvc       auditdomain.Service

	obsMetrics     *obsmetrics.Metrics
	captureLimiter *ratelimit.CaptureLimiter
}

type ServerParams struct {
	fx.In

	Gin   *gin.Engine
	Cfg   config.Config
	DB    *gorm.DB
	GenID *snowflake.Node

	AuthzSvc        authorization.Service
	PlanSvc         plandomain.Service
	EntitlementSvc  entitlementdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	PaymentSvc      paymentdomain.Service
	HighlightSvc    highlightdomain.Service
	AuditSvc        auditdomain.Service

	ObsMetrics     *obsmetrics.Metrics        `optional:"true"`
	CaptureLimiter *ratelimit.CaptureLimiter  `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine: p.Gin,
		cfg:    p.Cfg,
		db:     p.DB,
		genID:  p.GenID,

		authzSvc:        p.AuthzSvc,
		planSvc:         p.PlanSvc,
		entitlementSvc:  p.EntitlementSvc,
		subscriptionSvc: p.SubscriptionSvc,
		paymentSvc:      p.PaymentSvc,
		highlightSvc:    p.HighlightSvc,
		auditSvc:        p.AuditSvc,

		obsMetrics:     p.ObsMetrics,
		captureLimiter: p.CaptureLimiter,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(s.CallerContext())

	// -------- Plans --------
	api.GET("/plans", s.ListPlans)
	api.GET("/plans/:id", s.GetPlanByID)

	// -------- Entitlements --------
	api.GET("/entitlements/:subject_type/:subject_id", s.GetEntitlement)

	// -------- Subscriptions --------
	api.GET("/subscriptions", s.ListSubscriptions)
	api.GET("/subscriptions/:id", s.GetSubscriptionByID)

	// -------- Payments --------
	// Gateway verification happens before any write, so these sit
	// behind the capture limiter.
	api.POST("/payments/submissions", s.CreatePaymentSubmission)
	api.POST("/payments/paypal/capture", s.CaptureRateLimit(), s.CapturePayPalOrder)
	api.POST("/payments/crypto/verify", s.CaptureRateLimit(), s.VerifyCryptoPayment)

	// -------- Highlights --------
	api.POST("/highlights/toggle", s.ToggleHighlight)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")
	admin.Use(s.CallerContext())

	admin.POST("/plans", s.authorizeAction(authorization.ObjectPlan, authorization.ActionPlanCreate), s.CreatePlan)
	admin.POST("/plans/:id/deactivate", s.authorizeAction(authorization.ObjectPlan, authorization.ActionPlanDeactivate), s.DeactivatePlan)

	admin.POST("/subscriptions/activate", s.authorizeAction(authorization.ObjectMembership, authorization.ActionMembershipActivate), s.ActivateSubscription)
	admin.POST("/subscriptions/:id/extend", s.authorizeAction(authorization.ObjectMembership, authorization.ActionMembershipExtend), s.ExtendSubscription)
	admin.POST("/subscriptions/:id/deactivate", s.authorizeAction(authorization.ObjectMembership, authorization.ActionMembershipDeactivate), s.DeactivateSubscription)

	admin.GET("/payments/submissions", s.authorizeAction(authorization.ObjectSubmission, authorization.ActionSubmissionView), s.ListPaymentSubmissions)
	admin.POST("/payments/submissions/:id/approve", s.authorizeAction(authorization.ObjectSubmission, authorization.ActionSubmissionReview), s.ApprovePaymentSubmission)
	admin.POST("/payments/submissions/:id/reject", s.authorizeAction(authorization.ObjectSubmission, authorization.ActionSubmissionReview), s.RejectPaymentSubmission)

	admin.GET("/audit-logs", s.authorizeAction(authorization.ObjectAudit, authorization.ActionAuditView), s.ListAuditLogs)
}
