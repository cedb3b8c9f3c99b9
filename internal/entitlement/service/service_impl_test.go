package service

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	definitiondomain "github.com/entitlehq/entitled/internal/definition/domain"
	definitionrepo "github.com/entitlehq/entitled/internal/definition/repository"
	"github.com/entitlehq/entitled/internal/entitlement/domain"
	"github.com/entitlehq/entitled/internal/entitlement/repository"
	eventsdomain "github.com/entitlehq/entitled/internal/events/domain"
	"github.com/entitlehq/entitled/internal/registry"
	"github.com/entitlehq/entitled/internal/seed"
	"github.com/entitlehq/entitled/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := db.NewTest()
	require.NoError(t, err)

	// In-memory sqlite gives every pool connection its own database,
	// so the pool must be pinned to a single connection.
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, gdb.AutoMigrate(
		&definitiondomain.FeatureDefinition{},
		&domain.ActivationRecord{},
		&eventsdomain.EntitlementEvent{},
	))

	return gdb
}

func seedCatalog(t *testing.T, gdb *gorm.DB, genID *snowflake.Node) {
	t.Helper()

	reg, err := registry.Load()
	require.NoError(t, err)

	defs, err := seed.BuildDefinitions(genID, reg.Entries())
	require.NoError(t, err)

	require.NoError(t, definitionrepo.Provide().EnsureSeeded(context.Background(), gdb, defs))
}

func newTestService(t *testing.T) (domain.Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	gdb := setupTestDB(t)

	genID, err := snowflake.NewNode(1)
	require.NoError(t, err)

	seedCatalog(t, gdb, genID)

	svc := New(Params{
		DB:    gdb,
		Log:   zap.NewNop(),
		GenID: genID,
		Repo:  repository.Provide(),
		Defs:  definitionrepo.Provide(),
	})
	return svc, gdb, genID
}

func countActiveQuotaRecords(t *testing.T, gdb *gorm.DB, accountID snowflake.ID) int {
	t.Helper()

	var count int
	err := gdb.Raw(
		`SELECT COUNT(*) FROM activation_records ar
		 JOIN feature_definitions fd ON fd.id = ar.definition_id
		 WHERE ar.account_id = ? AND fd.kind = ? AND ar.activated
		   AND (ar.expired_at IS NULL OR ar.expired_at > ?)`,
		accountID, registry.KindQuota, time.Now().UTC(),
	).Scan(&count).Error
	require.NoError(t, err)
	return count
}

func TestGrantQuotaKeepsSingleActive(t *testing.T) {
	svc, gdb, genID := newTestService(t)
	ctx := context.Background()
	accountID := genID.Generate()

	require.NoError(t, svc.GrantQuota(ctx, accountID, registry.QuotaPersonalWorkspace, "sign up", nil))
	require.NoError(t, svc.GrantQuota(ctx, accountID, registry.QuotaTeamWorkspace, "subscription activated", nil))

	current, err := svc.CurrentQuota(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, registry.QuotaTeamWorkspace, current.Definition.Name)

	history, err := svc.QuotaHistory(ctx, accountID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, registry.QuotaPersonalWorkspace, history[0].Definition.Name)
	assert.False(t, history[0].Record.Activated)
	assert.Equal(t, registry.QuotaTeamWorkspace, history[1].Definition.Name)
	assert.True(t, history[1].Record.Activated)

	assert.Equal(t, 1, countActiveQuotaRecords(t, gdb, accountID))

	hasPersonal, err := svc.HasActive(ctx, accountID, registry.QuotaPersonalWorkspace)
	require.NoError(t, err)
	assert.False(t, hasPersonal)
}

func TestGrantQuotaAlreadyActiveIsNoOp(t *testing.T) {
	svc, _, genID := newTestService(t)
	ctx := context.Background()
	accountID := genID.Generate()

	require.NoError(t, svc.GrantQuota(ctx, accountID, registry.QuotaPersonalWorkspace, "sign up", nil))
	require.NoError(t, svc.GrantQuota(ctx, accountID, registry.QuotaPersonalWorkspace, "sign up", nil))

	history, err := svc.QuotaHistory(ctx, accountID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestGrantQuotaUnknownDefinition(t *testing.T) {
	svc, _, genID := newTestService(t)

	err := svc.GrantQuota(context.Background(), genID.Generate(), "galactic_workspace", "sign up", nil)
	assert.ErrorIs(t, err, definitiondomain.ErrDefinitionNotFound)
}

func TestCurrentQuotaMissingIsIntegrityError(t *testing.T) {
	svc, _, genID := newTestService(t)

	_, err := svc.CurrentQuota(context.Background(), genID.Generate())
	assert.ErrorIs(t, err, domain.ErrNoActiveQuota)
}

func TestExpiredQuotaIsNotActive(t *testing.T) {
	svc, _, genID := newTestService(t)
	ctx := context.Background()
	accountID := genID.Generate()

	past := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, svc.GrantQuota(ctx, accountID, registry.QuotaPersonalWorkspace, "sign up", &past))

	_, err := svc.CurrentQuota(ctx, accountID)
	assert.ErrorIs(t, err, domain.ErrNoActiveQuota)

	// The expired record stays in history untouched.
	history, err := svc.QuotaHistory(ctx, accountID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Record.Activated)
}

func TestGrantFeaturesSkipsActiveNames(t *testing.T) {
	svc, _, genID := newTestService(t)
	ctx := context.Background()
	accountID := genID.Generate()

	names := []string{registry.FeatureAIAssistant, registry.FeatureEarlyAccess}
	require.NoError(t, svc.GrantFeatures(ctx, accountID, names, "subscription activated"))
	require.NoError(t, svc.GrantFeatures(ctx, accountID, []string{registry.FeatureAIAssistant}, "subscription activated"))

	features, err := svc.ActiveFeatures(ctx, accountID)
	require.NoError(t, err)
	assert.Len(t, features, 2)
}

func TestGrantFeaturesRejectsQuotaName(t *testing.T) {
	svc, _, genID := newTestService(t)

	err := svc.GrantFeatures(context.Background(), genID.Generate(), []string{registry.QuotaPersonalWorkspace}, "test")
	assert.ErrorIs(t, err, definitiondomain.ErrDefinitionNotFound)
}

func TestRevokeFeature(t *testing.T) {
	svc, _, genID := newTestService(t)
	ctx := context.Background()
	accountID := genID.Generate()

	require.NoError(t, svc.GrantFeatures(ctx, accountID, []string{registry.FeatureAIAssistant}, "subscription activated"))
	require.NoError(t, svc.RevokeFeature(ctx, accountID, registry.FeatureAIAssistant))

	has, err := svc.HasActive(ctx, accountID, registry.FeatureAIAssistant)
	require.NoError(t, err)
	assert.False(t, has)

	features, err := svc.ActiveFeatures(ctx, accountID)
	require.NoError(t, err)
	assert.Empty(t, features)
}

func TestExpireAllDeactivatesEverything(t *testing.T) {
	svc, gdb, genID := newTestService(t)
	ctx := context.Background()
	accountID := genID.Generate()

	require.NoError(t, svc.GrantQuota(ctx, accountID, registry.QuotaPersonalWorkspace, "sign up", nil))
	require.NoError(t, svc.GrantFeatures(ctx, accountID, []string{registry.FeatureAIAssistant}, "subscription activated"))

	require.NoError(t, svc.ExpireAll(ctx, accountID, "account deleted"))

	_, err := svc.CurrentQuota(ctx, accountID)
	assert.ErrorIs(t, err, domain.ErrNoActiveQuota)

	features, err := svc.ActiveFeatures(ctx, accountID)
	require.NoError(t, err)
	assert.Empty(t, features)
	assert.Equal(t, 0, countActiveQuotaRecords(t, gdb, accountID))
}

func TestGrantPinsDefinitionVersion(t *testing.T) {
	svc, gdb, genID := newTestService(t)
	ctx := context.Background()
	accountID := genID.Generate()

	require.NoError(t, svc.GrantQuota(ctx, accountID, registry.QuotaPersonalWorkspace, "sign up", nil))

	// A new catalog version appears after the grant.
	v2 := definitiondomain.FeatureDefinition{
		ID:        genID.Generate(),
		Name:      registry.QuotaPersonalWorkspace,
		Kind:      registry.KindQuota,
		Version:   2,
		Config:    []byte(`{"storage_quota_gb":10,"member_limit":1,"history_days":30}`),
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, gdb.Create(&v2).Error)

	current, err := svc.CurrentQuota(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, 1, current.Definition.Version)

	otherAccount := genID.Generate()
	require.NoError(t, svc.GrantQuota(ctx, otherAccount, registry.QuotaPersonalWorkspace, "sign up", nil))

	otherCurrent, err := svc.CurrentQuota(ctx, otherAccount)
	require.NoError(t, err)
	assert.Equal(t, 2, otherCurrent.Definition.Version)
}

func TestQuotaHistoryOmitsUnresolvableDefinitions(t *testing.T) {
	svc, gdb, genID := newTestService(t)
	ctx := context.Background()
	accountID := genID.Generate()

	require.NoError(t, svc.GrantQuota(ctx, accountID, registry.QuotaPersonalWorkspace, "sign up", nil))
	require.NoError(t, svc.GrantQuota(ctx, accountID, registry.QuotaTeamWorkspace, "upgrade", nil))

	err := gdb.Exec(`DELETE FROM feature_definitions WHERE name = ?`, registry.QuotaPersonalWorkspace).Error
	require.NoError(t, err)

	history, err := svc.QuotaHistory(ctx, accountID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, registry.QuotaTeamWorkspace, history[0].Definition.Name)
}

func TestGrantTransactionsLockAccountRows(t *testing.T) {
	svc, gdb, genID := newTestService(t)
	ctx := context.Background()
	accountID := genID.Generate()

	// Capture statements before the sqlite strip rewrites them, so the
	// locking clause issued against postgres and mysql is visible.
	var locked []string
	err := gdb.Callback().Row().Before("sqlite_for_update_row").Register("capture_lock_sql", func(d *gorm.DB) {
		sql := d.Statement.SQL.String()
		if strings.Contains(sql, "FOR UPDATE") {
			locked = append(locked, sql)
		}
	})
	require.NoError(t, err)

	require.NoError(t, svc.GrantQuota(ctx, accountID, registry.QuotaPersonalWorkspace, "sign up", nil))
	require.NotEmpty(t, locked, "quota grant must lock the account's rows")
	assert.Contains(t, locked[0], "activation_records")

	locked = nil
	require.NoError(t, svc.GrantFeatures(ctx, accountID, []string{registry.FeatureAIAssistant}, "test"))
	require.NotEmpty(t, locked, "feature grant must lock the account's rows")
}

func TestConcurrentSwitchesAcrossConnections(t *testing.T) {
	// File-backed sqlite so the pool is not pinned to one connection.
	gdb, err := db.NewTestFile(filepath.Join(t.TempDir(), "entitled.db"))
	require.NoError(t, err)

	require.NoError(t, gdb.AutoMigrate(
		&definitiondomain.FeatureDefinition{},
		&domain.ActivationRecord{},
		&eventsdomain.EntitlementEvent{},
	))

	genID, err := snowflake.NewNode(1)
	require.NoError(t, err)
	seedCatalog(t, gdb, genID)

	svc := New(Params{
		DB:    gdb,
		Log:   zap.NewNop(),
		GenID: genID,
		Repo:  repository.Provide(),
		Defs:  definitionrepo.Provide(),
	})

	ctx := context.Background()
	accountID := genID.Generate()
	require.NoError(t, svc.GrantQuota(ctx, accountID, registry.QuotaPersonalWorkspace, "sign up", nil))
	require.NoError(t, svc.GrantFeatures(ctx, accountID, []string{registry.FeatureAIAssistant}, "test"))

	// Busy writers may error; the invariant is about what commits.
	quotas := []string{registry.QuotaPersonalWorkspace, registry.QuotaTeamWorkspace}
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%3 == 0 {
				_ = svc.GrantFeatures(ctx, accountID, []string{registry.FeatureAIAssistant}, "stress")
				return
			}
			_ = svc.GrantQuota(ctx, accountID, quotas[i%len(quotas)], "stress", nil)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, countActiveQuotaRecords(t, gdb, accountID))

	var activeFeatures int
	require.NoError(t, gdb.Raw(
		`SELECT COUNT(*) FROM activation_records ar
		 JOIN feature_definitions fd ON fd.id = ar.definition_id
		 WHERE ar.account_id = ? AND fd.name = ? AND ar.activated`,
		accountID, registry.FeatureAIAssistant,
	).Scan(&activeFeatures).Error)
	assert.Equal(t, 1, activeFeatures)
}

func TestConcurrentQuotaSwitchesKeepSingleActive(t *testing.T) {
	svc, gdb, genID := newTestService(t)
	ctx := context.Background()
	accountID := genID.Generate()

	require.NoError(t, svc.GrantQuota(ctx, accountID, registry.QuotaPersonalWorkspace, "sign up", nil))

	quotas := []string{registry.QuotaPersonalWorkspace, registry.QuotaTeamWorkspace}
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = svc.GrantQuota(ctx, accountID, quotas[i%len(quotas)], "stress", nil)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, countActiveQuotaRecords(t, gdb, accountID))
}
