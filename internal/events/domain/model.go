// Package domain contains the inbound lifecycle event model. Events
// arrive at-least-once, possibly duplicated and out of order; the
// dedupe key absorbs duplicates and every handler is idempotent.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EntitlementEvent captures one inbound lifecycle event awaiting
// processing.
type EntitlementEvent struct {
	ID          snowflake.ID      `gorm:"primaryKey"`
	AccountID   snowflake.ID      `gorm:"not null;index"`
	EventType   string            `gorm:"type:text;not null;index"`
	Payload     datatypes.JSONMap `gorm:"type:jsonb;not null"`
	DedupeKey   *string           `gorm:"type:text;uniqueIndex:ux_entitlement_events_dedupe"`
	Processed   bool              `gorm:"not null;default:false"`
	ProcessedAt *time.Time        `gorm:""`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (EntitlementEvent) TableName() string { return "entitlement_events" }
