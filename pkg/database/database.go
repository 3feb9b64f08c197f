package database

import (
	"context"
	"fmt"
	"net/url"

	"github.com/flare-foundation/go-flare-common/pkg/logger"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const createBatchSize = 1000

// Config holds the postgres connection settings.
type Config struct {
	Host             string `toml:"host"`
	Port             int    `toml:"port"`
	Username         string `toml:"username"`
	Password         string `toml:"password"`
	DBName           string `toml:"db_name"`
	LogQueries       bool   `toml:"log_queries"`
	DropTableAtStart bool   `toml:"drop_table_at_start"`
}

// DB wraps the gorm handle and exposes all query contracts of the indexer.
type DB struct {
	g *gorm.DB
}

func New(cfg *Config) (*DB, error) {
	db, err := Connect(cfg)
	if err != nil {
		return nil, err
	}

	logger.Debug("connected to the DB")

	if cfg.DropTableAtStart {
		logger.Info("DB tables dropped at start")

		if err := db.Migrator().DropTable(allEntities()...); err != nil {
			return nil, err
		}
	}

	if err := db.AutoMigrate(allEntities()...); err != nil {
		return nil, err
	}

	logger.Debug("migrated DB entities")

	return &DB{g: db}, nil
}

// NewFromGorm wraps an existing gorm handle. Used by tests.
func NewFromGorm(g *gorm.DB) *DB {
	return &DB{g: g}
}

func Connect(cfg *Config) (*gorm.DB, error) {
	dsn := formatDSN(cfg)

	gormCfg := gorm.Config{
		Logger:          gormlogger.Default.LogMode(getGormLogLevel(cfg)),
		CreateBatchSize: createBatchSize,
	}

	return gorm.Open(postgres.Open(dsn), &gormCfg)
}

func getGormLogLevel(cfg *Config) gormlogger.LogLevel {
	if cfg.LogQueries {
		return gormlogger.Info
	}

	return gormlogger.Silent
}

func formatDSN(cfg *Config) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.Username, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   cfg.DBName,
	}

	return u.String()
}

// RunInTransaction executes fn inside one database transaction, presenting
// the transaction as a DB view so every query contract stays available.
func (db *DB) RunInTransaction(ctx context.Context, fn func(txDB *DB) error) error {
	return db.g.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&DB{g: tx})
	})
}
