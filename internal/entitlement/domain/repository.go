package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/entitlehq/entitled/internal/registry"
	"gorm.io/gorm"
)

// Repository persists activation records. Callers pass the gorm
// handle so mutations can share one transaction; "active" always
// means activated and not expired at the given instant. Grant
// transactions call LockAccount before their precondition reads so
// concurrent writers for the same account serialize.
type Repository interface {
	LockAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) error
	Insert(ctx context.Context, db *gorm.DB, record *ActivationRecord) error
	FindActiveByName(ctx context.Context, db *gorm.DB, accountID snowflake.ID, name string, at time.Time) (*ActivationRecord, error)
	FindActiveByKind(ctx context.Context, db *gorm.DB, accountID snowflake.ID, kind registry.Kind, at time.Time) (*ActivationRecord, error)
	ListActiveByKind(ctx context.Context, db *gorm.DB, accountID snowflake.ID, kind registry.Kind, at time.Time) ([]ActivationRecord, error)
	ListByKind(ctx context.Context, db *gorm.DB, accountID snowflake.ID, kind registry.Kind) ([]ActivationRecord, error)
	DeactivateActiveByKind(ctx context.Context, db *gorm.DB, accountID snowflake.ID, kind registry.Kind) error
	DeactivateActiveByName(ctx context.Context, db *gorm.DB, accountID snowflake.ID, name string) error
	DeactivateAll(ctx context.Context, db *gorm.DB, accountID snowflake.ID) error
}
