package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/entitlehq/entitled/internal/definition/domain"
	"github.com/entitlehq/entitled/internal/registry"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// EnsureSeeded inserts missing (name, version) rows. The uniqueness
// constraint makes the insert a no-op for rows that already exist, so
// concurrent startups across instances are safe.
func (r *repo) EnsureSeeded(ctx context.Context, db *gorm.DB, defs []domain.FeatureDefinition) error {
	for _, def := range defs {
		err := db.WithContext(ctx).Exec(
			`INSERT INTO feature_definitions (
				id, name, kind, version, config, created_at
			) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (name, version) DO NOTHING`,
			def.ID,
			def.Name,
			def.Kind,
			def.Version,
			def.Config,
			def.CreatedAt,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) LatestByName(ctx context.Context, db *gorm.DB, name string, kind registry.Kind) (*domain.FeatureDefinition, error) {
	var def domain.FeatureDefinition
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, kind, version, config, created_at
		 FROM feature_definitions
		 WHERE name = ? AND kind = ?
		 ORDER BY version DESC
		 LIMIT 1`,
		name,
		kind,
	).Scan(&def).Error
	if err != nil {
		return nil, err
	}
	if def.ID == 0 {
		return nil, nil
	}
	return &def, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.FeatureDefinition, error) {
	var def domain.FeatureDefinition
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, kind, version, config, created_at
		 FROM feature_definitions WHERE id = ?`,
		id,
	).Scan(&def).Error
	if err != nil {
		return nil, err
	}
	if def.ID == 0 {
		return nil, nil
	}
	return &def, nil
}

func (r *repo) ListByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]domain.FeatureDefinition, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []domain.FeatureDefinition
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, kind, version, config, created_at
		 FROM feature_definitions WHERE id IN ?`,
		ids,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListLatest(ctx context.Context, db *gorm.DB) ([]domain.FeatureDefinition, error) {
	var items []domain.FeatureDefinition
	err := db.WithContext(ctx).Raw(
		`SELECT d.id, d.name, d.kind, d.version, d.config, d.created_at
		 FROM feature_definitions d
		 JOIN (
			SELECT name, MAX(version) AS max_version
			FROM feature_definitions
			GROUP BY name
		 ) latest ON latest.name = d.name AND latest.max_version = d.version
		 ORDER BY d.name ASC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
