package cmd

import (
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/payconfirm/internal"
	"github.com/frahmantamala/payconfirm/internal/core/datamodel/payment"
)

// sqlDriver maps the configured database driver to its database/sql name.
func sqlDriver(cfg internal.DatabaseConfig) string {
	if cfg.Driver == "sqlite" {
		return "sqlite3"
	}
	return "pgx"
}

// openLedger opens the gorm ledger. SQLite databases are migrated in place;
// Postgres is migrated with the migrate command.
func openLedger(cfg internal.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.GetDSN())
	default:
		dialector = postgres.Open(cfg.GetDSN())
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.Driver == "sqlite" {
		if err := db.AutoMigrate(&payment.PaymentRecord{}, &payment.CallbackRecord{}); err != nil {
			return nil, fmt.Errorf("failed to migrate sqlite ledger: %w", err)
		}
	}

	return db, nil
}

// openReportDB opens a read connection for reporting queries.
func openReportDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect(sqlDriver(cfg), cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open report connection: %w", err)
	}
	db.SetMaxOpenConns(2)
	return db, nil
}
