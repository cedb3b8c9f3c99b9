package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	entitlementdomain "github.com/entitlehq/entitled/internal/entitlement/domain"
	"github.com/entitlehq/entitled/internal/feature/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultGrantReason = "grant feature"

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
		log:    p.Log.Named("feature.service"),
		ledger: p.Ledger,
	}
}

func (s *Service) GetUserFeatures(ctx context.Context, accountID snowflake.ID) ([]domain.Response, error) {
	grants, err := s.ledger.ActiveFeatures(ctx, accountID)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.Response, 0, len(grants))
	for _, grant := range grants {
		resp = append(resp, domain.Response{
			RecordID:  grant.Record.ID.String(),
			Feature:   grant.Definition.Name,
			Version:   grant.Definition.Version,
			Config:    json.RawMessage(grant.Definition.Config),
			Reason:    grant.Record.Reason,
			GrantedAt: grant.Record.CreatedAt,
		})
	}
	return resp, nil
}

func (s *Service) GrantFeatures(ctx context.Context, accountID snowflake.ID, req domain.GrantRequest) error {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = defaultGrantReason
	}
	return s.ledger.GrantFeatures(ctx, accountID, req.Features, reason)
}

func (s *Service) RevokeFeature(ctx context.Context, accountID snowflake.ID, name string) error {
	return s.ledger.RevokeFeature(ctx, accountID, name)
}

func (s *Service) HasFeature(ctx context.Context, accountID snowflake.ID, name string) (bool, error) {
	return s.ledger.HasActive(ctx, accountID, name)
}
