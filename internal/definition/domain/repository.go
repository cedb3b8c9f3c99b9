package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/entitlehq/entitled/internal/registry"
	"gorm.io/gorm"
)

// Repository exposes catalog persistence. Lookups return (nil, nil)
// when no row matches; callers decide whether that is an error.
type Repository interface {
	EnsureSeeded(ctx context.Context, db *gorm.DB, defs []FeatureDefinition) error
	LatestByName(ctx context.Context, db *gorm.DB, name string, kind registry.Kind) (*FeatureDefinition, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*FeatureDefinition, error)
	ListByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]FeatureDefinition, error)
	ListLatest(ctx context.Context, db *gorm.DB) ([]FeatureDefinition, error)
}
