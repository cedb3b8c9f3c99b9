// Package domain contains the persisted catalog model for feature and
// quota definitions.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/entitlehq/entitled/internal/registry"
	"gorm.io/datatypes"
)

// FeatureDefinition is one immutable, versioned catalog row. Rows are
// appended by the seeder and never updated, so activation records can
// pin a definition by surrogate id.
type FeatureDefinition struct {
	ID        snowflake.ID   `gorm:"primaryKey"`
	Name      string         `gorm:"type:text;not null;uniqueIndex:ux_feature_definitions_name_version,priority:1"`
	Kind      registry.Kind  `gorm:"type:text;not null;index"`
	Version   int            `gorm:"not null;uniqueIndex:ux_feature_definitions_name_version,priority:2"`
	Config    datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (FeatureDefinition) TableName() string { return "feature_definitions" }

var (
	// ErrDefinitionNotFound signals a grant against a name that was
	// never seeded, or a pinned id that no longer resolves. Seeding
	// precedes any grant, so callers treat this as operator
	// misconfiguration and do not retry.
	ErrDefinitionNotFound = errors.New("definition_not_found")
)
