package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectPlan       = "plan"
	ObjectMembership = "membership"
	ObjectSubmission = "payment_submission"
	ObjectHighlight  = "highlight"
	ObjectAudit      = "audit_log"
)

const (
	ActionPlanCreate     = "plan.create"
	ActionPlanDeactivate = "plan.deactivate"

	ActionMembershipActivate   = "membership.activate"
	ActionMembershipExtend     = "membership.extend"
	ActionMembershipDeactivate = "membership.deactivate"
	ActionMembershipView       = "membership.view"

	ActionSubmissionReview = "payment_submission.review"
	ActionSubmissionView   = "payment_submission.view"

	ActionHighlightToggle = "highlight.toggle"

	ActionAuditView = "audit_log.view"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrUnauthorized
	}
	object = strings.TrimSpace(object)
	action = strings.TrimSpace(action)
	if object == "" || action == "" {
		return ErrForbidden
	}

	subject, roleName, err := s.resolveActor(ctx, actor)
	if err != nil {
		return err
	}

	if err := s.ensureGrouping(subject, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("actor", subject),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) IsAdmin(ctx context.Context, actor string) bool {
	actor = strings.TrimSpace(actor)
	if actor == "system" {
		return true
	}
	accountID, err := parseAccountActor(actor)
	if err != nil {
		return false
	}
	role, err := s.roleForAccount(ctx, accountID)
	if err != nil {
		return false
	}
	return strings.EqualFold(role, "admin")
}

func (s *ServiceImpl) resolveActor(ctx context.Context, actor string) (string, string, error) {
	if actor == "system" {
		return actor, "role:system", nil
	}
	accountID, err := parseAccountActor(actor)
	if err != nil {
		return "", "", err
	}
	role, err := s.roleForAccount(ctx, accountID)
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf("account:%s", accountID.String()), fmt.Sprintf("role:%s", strings.ToLower(role)), nil
}

func parseAccountActor(actor string) (snowflake.ID, error) {
	raw := strings.TrimPrefix(actor, "account:")
	accountID, err := snowflake.ParseString(raw)
	if err != nil || accountID == 0 {
		return 0, ErrInvalidActor
	}
	return accountID, nil
}

// roleForAccount falls back to "member": every authenticated account can
// act on its own resources even without an account_roles row.
func (s *ServiceImpl) roleForAccount(ctx context.Context, accountID snowflake.ID) (string, error) {
	var row struct {
		Role string `gorm:"column:role"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT role
		 FROM account_roles
		 WHERE account_id = ?
		 LIMIT 1`,
		accountID,
	).Scan(&row).Error; err != nil {
		return "", err
	}

	role := strings.TrimSpace(row.Role)
	if role == "" {
		return "member", nil
	}
	return role, nil
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Members view their own memberships and toggle their own
		// highlights; ownership is checked by the calling service.
		{"role:member", ObjectMembership, ActionMembershipView},
		{"role:member", ObjectHighlight, ActionHighlightToggle},

		// Admins run the back office.
		{"role:admin", ObjectPlan, ActionPlanCreate},
		{"role:admin", ObjectPlan, ActionPlanDeactivate},
		{"role:admin", ObjectMembership, ActionMembershipActivate},
		{"role:admin", ObjectMembership, ActionMembershipExtend},
		{"role:admin", ObjectMembership, ActionMembershipDeactivate},
		{"role:admin", ObjectMembership, ActionMembershipView},
		{"role:admin", ObjectSubmission, ActionSubmissionReview},
		{"role:admin", ObjectSubmission, ActionSubmissionView},
		{"role:admin", ObjectHighlight, ActionHighlightToggle},
		{"role:admin", ObjectAudit, ActionAuditView},

		// The expiry sweeper and other automation.
		{"role:system", ObjectMembership, "*"},
		{"role:system", ObjectSubmission, ActionSubmissionView},
	}

	for _, policy := range policies {
		if len(policy) < 3 {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
