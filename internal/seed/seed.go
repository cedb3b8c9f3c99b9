// Package seed migrates the schema and inserts the built-in catalog at
// startup. Seeding is idempotent and never rewrites an existing
// version, so the catalog table stays append only.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	definitiondomain "github.com/entitlehq/entitled/internal/definition/domain"
	entitlementdomain "github.com/entitlehq/entitled/internal/entitlement/domain"
	eventsdomain "github.com/entitlehq/entitled/internal/events/domain"
	"github.com/entitlehq/entitled/internal/registry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Registry registry.Registry
	Defs     definitiondomain.Repository
}

var Module = fx.Module("seed",
	fx.Invoke(Run),
)

// Run migrates the schema and seeds the catalog. Any failure is fatal
// because the service cannot grant against a missing definition.
func Run(p Params) error {
	ctx := context.Background()

	err := p.DB.WithContext(ctx).AutoMigrate(
		&definitiondomain.FeatureDefinition{},
		&entitlementdomain.ActivationRecord{},
		&eventsdomain.EntitlementEvent{},
	)
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}

	defs, err := BuildDefinitions(p.GenID, p.Registry.Entries())
	if err != nil {
		return err
	}

	err = p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return p.Defs.EnsureSeeded(ctx, tx, defs)
	})
	if err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}

	p.Log.Info("catalog seeded", zap.Int("definitions", len(defs)))
	return nil
}

// BuildDefinitions converts catalog entries into persistable rows.
func BuildDefinitions(genID *snowflake.Node, entries []registry.Entry) ([]definitiondomain.FeatureDefinition, error) {
	defs := make([]definitiondomain.FeatureDefinition, 0, len(entries))
	now := time.Now().UTC()
	for _, entry := range entries {
		config, err := entry.MarshalConfig()
		if err != nil {
			return nil, fmt.Errorf("marshal config for %s@%d: %w", entry.Name, entry.Version, err)
		}
		defs = append(defs, definitiondomain.FeatureDefinition{
			ID:        genID.Generate(),
			Name:      entry.Name,
			Kind:      entry.Kind,
			Version:   entry.Version,
			Config:    config,
			CreatedAt: now,
		})
	}
	return defs, nil
}
