package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/entitlehq/entitled/internal/entitlement/domain"
	"github.com/entitlehq/entitled/internal/registry"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// LockAccount takes row locks on every activation record of the
// account, so a concurrent grant transaction blocks here until the
// first one commits and then reads its writes. Without the lock,
// read-committed postgres lets two grants both pass their precondition
// reads and commit two active quota rows. Sqlite is a single writer
// and needs no lock; tests strip the clause.
func (r *repo) LockAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) error {
	var ids []int64
	return db.WithContext(ctx).Raw(
		`SELECT id FROM activation_records WHERE account_id = ? FOR UPDATE`,
		accountID,
	).Scan(&ids).Error
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *domain.ActivationRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO activation_records (
			id, account_id, definition_id, activated, reason, created_at, expired_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.AccountID,
		record.DefinitionID,
		record.Activated,
		record.Reason,
		record.CreatedAt,
		record.ExpiredAt,
	).Error
}

func (r *repo) FindActiveByName(ctx context.Context, db *gorm.DB, accountID snowflake.ID, name string, at time.Time) (*domain.ActivationRecord, error) {
	var record domain.ActivationRecord
	err := db.WithContext(ctx).Raw(
		`SELECT ar.id, ar.account_id, ar.definition_id, ar.activated, ar.reason, ar.created_at, ar.expired_at
		 FROM activation_records ar
		 JOIN feature_definitions fd ON fd.id = ar.definition_id
		 WHERE ar.account_id = ?
		   AND fd.name = ?
		   AND ar.activated
		   AND (ar.expired_at IS NULL OR ar.expired_at > ?)
		 LIMIT 1`,
		accountID,
		name,
		at,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) FindActiveByKind(ctx context.Context, db *gorm.DB, accountID snowflake.ID, kind registry.Kind, at time.Time) (*domain.ActivationRecord, error) {
	var record domain.ActivationRecord
	err := db.WithContext(ctx).Raw(
		`SELECT ar.id, ar.account_id, ar.definition_id, ar.activated, ar.reason, ar.created_at, ar.expired_at
		 FROM activation_records ar
		 JOIN feature_definitions fd ON fd.id = ar.definition_id
		 WHERE ar.account_id = ?
		   AND fd.kind = ?
		   AND ar.activated
		   AND (ar.expired_at IS NULL OR ar.expired_at > ?)
		 ORDER BY ar.id DESC
		 LIMIT 1`,
		accountID,
		kind,
		at,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) ListActiveByKind(ctx context.Context, db *gorm.DB, accountID snowflake.ID, kind registry.Kind, at time.Time) ([]domain.ActivationRecord, error) {
	var records []domain.ActivationRecord
	err := db.WithContext(ctx).Raw(
		`SELECT ar.id, ar.account_id, ar.definition_id, ar.activated, ar.reason, ar.created_at, ar.expired_at
		 FROM activation_records ar
		 JOIN feature_definitions fd ON fd.id = ar.definition_id
		 WHERE ar.account_id = ?
		   AND fd.kind = ?
		   AND ar.activated
		   AND (ar.expired_at IS NULL OR ar.expired_at > ?)
		 ORDER BY ar.id ASC`,
		accountID,
		kind,
		at,
	).Scan(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ListByKind returns the full history, active and inactive. Snowflake
// ids are time ordered, so id order is insertion order.
func (r *repo) ListByKind(ctx context.Context, db *gorm.DB, accountID snowflake.ID, kind registry.Kind) ([]domain.ActivationRecord, error) {
	var records []domain.ActivationRecord
	err := db.WithContext(ctx).Raw(
		`SELECT ar.id, ar.account_id, ar.definition_id, ar.activated, ar.reason, ar.created_at, ar.expired_at
		 FROM activation_records ar
		 JOIN feature_definitions fd ON fd.id = ar.definition_id
		 WHERE ar.account_id = ? AND fd.kind = ?
		 ORDER BY ar.id ASC`,
		accountID,
		kind,
	).Scan(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) DeactivateActiveByKind(ctx context.Context, db *gorm.DB, accountID snowflake.ID, kind registry.Kind) error {
	return db.WithContext(ctx).Exec(
		`UPDATE activation_records
		 SET activated = false
		 WHERE account_id = ?
		   AND activated
		   AND definition_id IN (SELECT id FROM feature_definitions WHERE kind = ?)`,
		accountID,
		kind,
	).Error
}

func (r *repo) DeactivateActiveByName(ctx context.Context, db *gorm.DB, accountID snowflake.ID, name string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE activation_records
		 SET activated = false
		 WHERE account_id = ?
		   AND activated
		   AND definition_id IN (SELECT id FROM feature_definitions WHERE name = ?)`,
		accountID,
		name,
	).Error
}

func (r *repo) DeactivateAll(ctx context.Context, db *gorm.DB, accountID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE activation_records
		 SET activated = false
		 WHERE account_id = ? AND activated`,
		accountID,
	).Error
}
