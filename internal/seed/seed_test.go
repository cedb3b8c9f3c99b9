package seed

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	definitionrepo "github.com/entitlehq/entitled/internal/definition/repository"
	"github.com/entitlehq/entitled/internal/registry"
	"github.com/entitlehq/entitled/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupParams(t *testing.T) (Params, *gorm.DB) {
	t.Helper()

	gdb, err := db.NewTest()
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	genID, err := snowflake.NewNode(1)
	require.NoError(t, err)

	reg, err := registry.Load()
	require.NoError(t, err)

	return Params{
		DB:       gdb,
		Log:      zap.NewNop(),
		GenID:    genID,
		Registry: reg,
		Defs:     definitionrepo.Provide(),
	}, gdb
}

func TestRunSeedsCatalogOnce(t *testing.T) {
	p, gdb := setupParams(t)

	require.NoError(t, Run(p))

	var ids []int64
	require.NoError(t, gdb.Raw(`SELECT id FROM feature_definitions ORDER BY name`).Scan(&ids).Error)
	require.NotEmpty(t, ids)

	// A second startup against the same database must leave the rows
	// untouched even though it generates fresh candidate ids.
	require.NoError(t, Run(p))

	var again []int64
	require.NoError(t, gdb.Raw(`SELECT id FROM feature_definitions ORDER BY name`).Scan(&again).Error)
	assert.Equal(t, ids, again)
}
