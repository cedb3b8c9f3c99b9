// Package domain contains the activation-record ledger model: the
// per-account, append-mostly source of truth for current and
// historical entitlements.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	definitiondomain "github.com/entitlehq/entitled/internal/definition/domain"
)

// ActivationRecord grants one pinned definition version to an account.
// Records are deactivated on switch or revocation, never deleted, so
// the ledger preserves full audit history.
type ActivationRecord struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	AccountID    snowflake.ID `gorm:"not null;index:ix_activation_records_account"`
	DefinitionID snowflake.ID `gorm:"not null;index"`
	Activated    bool         `gorm:"not null;default:true"`
	Reason       string       `gorm:"type:text;not null"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	ExpiredAt    *time.Time   `gorm:""`
}

// TableName sets the database table name.
func (ActivationRecord) TableName() string { return "activation_records" }

// Active reports whether the record is in effect at the given instant.
// A past expiry deactivates the record even while the stored flag is
// still true.
func (r ActivationRecord) Active(at time.Time) bool {
	if !r.Activated {
		return false
	}
	if r.ExpiredAt != nil && !r.ExpiredAt.After(at) {
		return false
	}
	return true
}

// Grant pairs a ledger record with its resolved definition.
type Grant struct {
	Record     ActivationRecord
	Definition definitiondomain.FeatureDefinition
}

var (
	ErrInvalidAccount = errors.New("invalid_account")
	ErrInvalidName    = errors.New("invalid_name")

	// ErrNoActiveQuota signals an account with no active quota. Every
	// account holds exactly one active quota after creation, so this
	// is a data-integrity breach, not a legitimate empty state.
	ErrNoActiveQuota = errors.New("no_active_quota")
)
