package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/entitlehq/entitled/internal/cache"
	definitiondomain "github.com/entitlehq/entitled/internal/definition/domain"
	"github.com/entitlehq/entitled/internal/entitlement/domain"
	obsmetrics "github.com/entitlehq/entitled/internal/observability/metrics"
	"github.com/entitlehq/entitled/internal/registry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Defs       definitiondomain.Repository
	DefCache   cache.DefinitionCache `optional:"true"`
	ObsMetrics *obsmetrics.Metrics   `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	defs       definitiondomain.Repository
	defCache   cache.DefinitionCache
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("entitlement.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		defs:       p.Defs,
		defCache:   p.DefCache,
		obsMetrics: p.ObsMetrics,
	}
}

// GrantQuota runs the precondition read, the deactivation of the old
// quota, and the insert of the new record inside one transaction, so
// concurrent grants for the same account never commit two active
// quota records. The account's rows are locked first; under
// read-committed isolation the transaction body alone is not enough,
// because a concurrent grant's statement snapshots would miss the
// other insert.
func (s *Service) GrantQuota(ctx context.Context, accountID snowflake.ID, quotaName, reason string, expiredAt *time.Time) error {
	if accountID == 0 {
		return domain.ErrInvalidAccount
	}
	quotaName = strings.TrimSpace(quotaName)
	if quotaName == "" {
		return domain.ErrInvalidName
	}

	switched := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.LockAccount(ctx, tx, accountID); err != nil {
			return err
		}
		now := time.Now().UTC()

		existing, err := s.repo.FindActiveByName(ctx, tx, accountID, quotaName, now)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}

		def, err := s.defs.LatestByName(ctx, tx, quotaName, registry.KindQuota)
		if err != nil {
			return err
		}
		if def == nil {
			return definitiondomain.ErrDefinitionNotFound
		}

		if err := s.repo.DeactivateActiveByKind(ctx, tx, accountID, registry.KindQuota); err != nil {
			return err
		}

		record := &domain.ActivationRecord{
			ID:           s.genID.Generate(),
			AccountID:    accountID,
			DefinitionID: def.ID,
			Activated:    true,
			Reason:       reason,
			CreatedAt:    now,
			ExpiredAt:    expiredAt,
		}
		if err := s.repo.Insert(ctx, tx, record); err != nil {
			return err
		}

		switched = true
		return nil
	})
	if err != nil {
		return err
	}

	if switched {
		s.log.Info("quota granted",
			zap.String("account_id", accountID.String()),
			zap.String("quota", quotaName),
			zap.String("reason", reason),
		)
		s.obsMetrics.RecordQuotaSwitch(ctx, quotaName)
	}
	return nil
}

// GrantFeatures is idempotent per name: names already active are
// skipped without failing the rest of the batch.
func (s *Service) GrantFeatures(ctx context.Context, accountID snowflake.ID, names []string, reason string) error {
	if accountID == 0 {
		return domain.ErrInvalidAccount
	}

	granted := make([]string, 0, len(names))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.LockAccount(ctx, tx, accountID); err != nil {
			return err
		}
		now := time.Now().UTC()

		for _, raw := range names {
			name := strings.TrimSpace(raw)
			if name == "" {
				return domain.ErrInvalidName
			}

			existing, err := s.repo.FindActiveByName(ctx, tx, accountID, name, now)
			if err != nil {
				return err
			}
			if existing != nil {
				continue
			}

			def, err := s.defs.LatestByName(ctx, tx, name, registry.KindFeature)
			if err != nil {
				return err
			}
			if def == nil {
				return definitiondomain.ErrDefinitionNotFound
			}

			record := &domain.ActivationRecord{
				ID:           s.genID.Generate(),
				AccountID:    accountID,
				DefinitionID: def.ID,
				Activated:    true,
				Reason:       reason,
				CreatedAt:    now,
			}
			if err := s.repo.Insert(ctx, tx, record); err != nil {
				return err
			}
			granted = append(granted, name)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, name := range granted {
		s.log.Info("feature granted",
			zap.String("account_id", accountID.String()),
			zap.String("feature", name),
			zap.String("reason", reason),
		)
		s.obsMetrics.RecordFeatureGrant(ctx, name)
	}
	return nil
}

func (s *Service) RevokeFeature(ctx context.Context, accountID snowflake.ID, name string) error {
	if accountID == 0 {
		return domain.ErrInvalidAccount
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.ErrInvalidName
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.DeactivateActiveByName(ctx, tx, accountID, name)
	})
	if err != nil {
		return err
	}

	s.log.Info("feature revoked",
		zap.String("account_id", accountID.String()),
		zap.String("feature", name),
	)
	s.obsMetrics.RecordFeatureRevoke(ctx, name)
	return nil
}

func (s *Service) CurrentQuota(ctx context.Context, accountID snowflake.ID) (*domain.Grant, error) {
	if accountID == 0 {
		return nil, domain.ErrInvalidAccount
	}

	now := time.Now().UTC()
	record, err := s.repo.FindActiveByKind(ctx, s.db, accountID, registry.KindQuota, now)
	if err != nil {
		return nil, err
	}
	if record == nil {
		s.log.Error("account has no active quota", zap.String("account_id", accountID.String()))
		return nil, domain.ErrNoActiveQuota
	}

	def, err := s.resolveDefinition(ctx, record.DefinitionID)
	if err != nil {
		return nil, err
	}
	if def == nil {
		s.log.Error("active quota references missing definition",
			zap.String("account_id", accountID.String()),
			zap.String("definition_id", record.DefinitionID.String()),
		)
		return nil, definitiondomain.ErrDefinitionNotFound
	}

	return &domain.Grant{Record: *record, Definition: *def}, nil
}

// QuotaHistory tolerates orphaned definition references: rows that no
// longer resolve are omitted instead of failing the whole query.
func (s *Service) QuotaHistory(ctx context.Context, accountID snowflake.ID) ([]domain.Grant, error) {
	if accountID == 0 {
		return nil, domain.ErrInvalidAccount
	}

	records, err := s.repo.ListByKind(ctx, s.db, accountID, registry.KindQuota)
	if err != nil {
		return nil, err
	}
	return s.resolveGrants(ctx, records)
}

func (s *Service) ActiveFeatures(ctx context.Context, accountID snowflake.ID) ([]domain.Grant, error) {
	if accountID == 0 {
		return nil, domain.ErrInvalidAccount
	}

	now := time.Now().UTC()
	records, err := s.repo.ListActiveByKind(ctx, s.db, accountID, registry.KindFeature, now)
	if err != nil {
		return nil, err
	}
	return s.resolveGrants(ctx, records)
}

func (s *Service) HasActive(ctx context.Context, accountID snowflake.ID, name string) (bool, error) {
	if accountID == 0 {
		return false, domain.ErrInvalidAccount
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return false, domain.ErrInvalidName
	}

	record, err := s.repo.FindActiveByName(ctx, s.db, accountID, name, time.Now().UTC())
	if err != nil {
		return false, err
	}
	return record != nil, nil
}

func (s *Service) ExpireAll(ctx context.Context, accountID snowflake.ID, reason string) error {
	if accountID == 0 {
		return domain.ErrInvalidAccount
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.DeactivateAll(ctx, tx, accountID)
	})
	if err != nil {
		return err
	}

	s.log.Info("all grants deactivated",
		zap.String("account_id", accountID.String()),
		zap.String("reason", reason),
	)
	return nil
}

func (s *Service) resolveDefinition(ctx context.Context, id snowflake.ID) (*definitiondomain.FeatureDefinition, error) {
	if s.defCache != nil {
		if def, ok := s.defCache.Get(id); ok {
			return def, nil
		}
	}

	def, err := s.defs.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if def != nil && s.defCache != nil {
		s.defCache.Set(def)
	}
	return def, nil
}

func (s *Service) resolveGrants(ctx context.Context, records []domain.ActivationRecord) ([]domain.Grant, error) {
	if len(records) == 0 {
		return nil, nil
	}

	ids := make([]snowflake.ID, 0, len(records))
	seen := make(map[snowflake.ID]struct{}, len(records))
	for _, record := range records {
		if _, ok := seen[record.DefinitionID]; ok {
			continue
		}
		seen[record.DefinitionID] = struct{}{}
		ids = append(ids, record.DefinitionID)
	}

	defs, err := s.defs.ListByIDs(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[snowflake.ID]definitiondomain.FeatureDefinition, len(defs))
	for _, def := range defs {
		byID[def.ID] = def
		if s.defCache != nil {
			d := def
			s.defCache.Set(&d)
		}
	}

	grants := make([]domain.Grant, 0, len(records))
	for _, record := range records {
		def, ok := byID[record.DefinitionID]
		if !ok {
			s.log.Warn("omitting record with unresolvable definition",
				zap.String("record_id", record.ID.String()),
				zap.String("definition_id", record.DefinitionID.String()),
			)
			continue
		}
		grants = append(grants, domain.Grant{Record: record, Definition: def})
	}
	return grants, nil
}
