package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

var Module = fx.Module("authorization",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
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
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, organizerID string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	organizerID = strings.TrimSpace(organizerID)
	if _, err := uuid.Parse(organizerID); err != nil {
		return ErrInvalidOrganizer
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	roleName, err := resolveRole(actor, organizerID)
	if err != nil {
		s.log.Info("authorization denied",
			zap.String("actor", actor),
			zap.String("organizer_id", organizerID),
			zap.String("action", action),
			zap.Error(err),
		)
		return err
	}

	domain := fmt.Sprintf("organizer:%s", organizerID)
	if err := s.ensureGrouping(actor, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(actor, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("authorization denied",
			zap.String("actor", actor),
			zap.String("organizer_id", organizerID),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

// resolveRole maps an actor to its role. Organizers only act inside their own
// organizer domain.
func resolveRole(actor string, organizerID string) (string, error) {
	if actor == "system" {
		return "role:system", nil
	}
	kind, id, ok := strings.Cut(actor, ":")
	if !ok || strings.TrimSpace(id) == "" {
		return "", ErrInvalidActor
	}
	switch kind {
	case "admin":
		return "role:admin", nil
	case "scanner":
		return "role:scanner", nil
	case "organizer":
		parsed, err := uuid.Parse(id)
		if err != nil {
			return "", ErrInvalidActor
		}
		if parsed.String() != strings.ToLower(organizerID) {
			return "", ErrForbidden
		}
		return "role:organizer", nil
	default:
		return "", ErrInvalidActor
	}
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{"role:admin", "*", ObjectOrder, ActionOrderMarkPaid},
		{"role:admin", "*", ObjectOrder, ActionOrderCancel},
		{"role:admin", "*", ObjectOrder, ActionOrderExpire},
		{"role:admin", "*", ObjectOrder, ActionOrderRefund},
		{"role:admin", "*", ObjectCheckIn, ActionCheckInCreate},
		{"role:admin", "*", ObjectReviewQueue, ActionReviewView},
		{"role:admin", "*", ObjectReviewQueue, ActionReviewResolve},
		{"role:admin", "*", ObjectPaymentProvider, ActionPaymentProviderManage},
		{"role:admin", "*", ObjectPayout, ActionPayoutView},
		{"role:admin", "*", ObjectPayout, ActionPayoutCreate},

		{"role:organizer", "*", ObjectOrder, ActionOrderMarkPaid},
		{"role:organizer", "*", ObjectOrder, ActionOrderCancel},
		{"role:organizer", "*", ObjectCheckIn, ActionCheckInCreate},
		{"role:organizer", "*", ObjectReviewQueue, ActionReviewView},
		{"role:organizer", "*", ObjectPaymentProvider, ActionPaymentProviderManage},
		{"role:organizer", "*", ObjectPayout, ActionPayoutView},

		{"role:scanner", "*", ObjectCheckIn, ActionCheckInCreate},

		{"role:system", "*", ObjectOrder, ActionOrderMarkPaid},
		{"role:system", "*", ObjectOrder, ActionOrderCancel},
		{"role:system", "*", ObjectOrder, ActionOrderExpire},
		{"role:system", "*", ObjectPayout, ActionPayoutCreate},
	}
	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy[0], policy[1], policy[2], policy[3])
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy[0], policy[1], policy[2], policy[3]); err != nil {
			return err
		}
	}
	return nil
}
