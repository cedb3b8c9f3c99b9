package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	entitlementdomain "github.com/entitlehq/entitled/internal/entitlement/domain"
	"github.com/entitlehq/entitled/internal/quota/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultSwitchReason = "switch quota"

type Params struct {
	fx.In

	Log    *zap.Logger
	Ledger entitlementdomain.Service
}

type Service struct {
	log    *zap.Logger
	ledger entitlementdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		log:    p.Log.Named("quota.service"),
		ledger: p.Ledger,
	}
}

func (s *Service) GetUserQuota(ctx context.Context, accountID snowflake.ID) (*domain.Response, error) {
	grant, err := s.ledger.CurrentQuota(ctx, accountID)
	if err != nil {
		return nil, err
	}
	resp := toResponse(*grant)
	return &resp, nil
}

func (s *Service) GetUserQuotas(ctx context.Context, accountID snowflake.ID) ([]domain.Response, error) {
	grants, err := s.ledger.QuotaHistory(ctx, accountID)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.Response, 0, len(grants))
	for _, grant := range grants {
		resp = append(resp, toResponse(grant))
	}
	return resp, nil
}

// SwitchUserQuota delegates to the ledger grant, which short-circuits
// when the requested quota is already active. Repeated identical
// requests (idempotent webhook delivery) cause no history churn.
func (s *Service) SwitchUserQuota(ctx context.Context, accountID snowflake.ID, req domain.SwitchRequest) error {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = defaultSwitchReason
	}
	return s.ledger.GrantQuota(ctx, accountID, req.Quota, reason, req.ExpiresAt)
}

func (s *Service) HasQuota(ctx context.Context, accountID snowflake.ID, name string) (bool, error) {
	return s.ledger.HasActive(ctx, accountID, name)
}

func toResponse(grant entitlementdomain.Grant) domain.Response {
	return domain.Response{
		RecordID:    grant.Record.ID.String(),
		Quota:       grant.Definition.Name,
		Version:     grant.Definition.Version,
		Config:      json.RawMessage(grant.Definition.Config),
		Activated:   grant.Record.Activated,
		Reason:      grant.Record.Reason,
		ActivatedAt: grant.Record.CreatedAt,
		ExpiresAt:   grant.Record.ExpiredAt,
	}
}
