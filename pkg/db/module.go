package db

import (
	"strings"
	"time"

	"github.com/entitlehq/entitled/internal/config"
	obslogger "github.com/entitlehq/entitled/internal/observability/logger"
	glebsqlite "github.com/glebarez/sqlite"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// FromAppConfig maps application configuration to database settings.
func FromAppConfig(cfg config.Config) Config {
	return Config{
		Type:            cfg.DBType,
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		Name:            cfg.DBName,
		User:            cfg.DBUser,
		Password:        cfg.DBPassword,
		SSLMode:         cfg.DBSSLMode,
		MaxIdleConn:     cfg.DBMaxIdleConn,
		MaxOpenConn:     cfg.DBMaxOpenConn,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	}
}

// New opens the database connection and configures the pool.
func New(cfg Config, log *zap.Logger) (*gorm.DB, error) {
	dialector, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: obslogger.NewGormLogger(log, obslogger.DefaultGormLoggerConfig()),
	})
	if err != nil {
		return nil, err
	}

	if err := gdb.Use(otelgorm.NewPlugin(otelgorm.WithDBName(cfg.Name))); err != nil {
		return nil, err
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConn)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConn)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Second)

	log.Info("database connected",
		zap.String("type", cfg.Type),
		zap.String("host", cfg.Host),
		zap.String("name", cfg.Name),
	)
	return gdb, nil
}

// NewTest opens an in-memory sqlite database for tests.
func NewTest() (*gorm.DB, error) {
	return newTest(":memory:")
}

// NewTestFile opens a file-backed sqlite database so tests can run
// with more than one pool connection.
func NewTestFile(path string) (*gorm.DB, error) {
	return newTest(path)
}

func newTest(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(glebsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	stripForUpdate(gdb)
	return gdb, nil
}

// sqlite has no FOR UPDATE and serializes writers on its own, so the
// locking clauses are removed before execution.
func stripForUpdate(gdb *gorm.DB) {
	strip := func(d *gorm.DB) {
		sql := d.Statement.SQL.String()
		if strings.Contains(sql, "FOR UPDATE") {
			sql = strings.ReplaceAll(sql, "FOR UPDATE SKIP LOCKED", "")
			sql = strings.ReplaceAll(sql, "FOR UPDATE", "")
			d.Statement.SQL.Reset()
			d.Statement.SQL.WriteString(sql)
		}
	}
	_ = gdb.Callback().Query().Before("gorm:query").Register("sqlite_for_update", strip)
	_ = gdb.Callback().Row().Before("gorm:row").Register("sqlite_for_update_row", strip)
}

// Module provides the gorm handle to the fx graph.
var Module = fx.Module("db",
	fx.Provide(FromAppConfig),
	fx.Provide(New),
)
