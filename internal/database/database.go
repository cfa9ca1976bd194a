// Package database opens the primary and read-replica connections and manages the schema.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"welcomemat/internal/config"
	"welcomemat/internal/middleware"

	"github.com/jackc/pgx/v5"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var readDB *gorm.DB

// ConnectOptions tunes Connect.
type ConnectOptions struct {
	// ApplySchema runs ApplySchema right after connecting.
	ApplySchema bool
}

// Connect opens the primary connection, applies the schema and opens the read replica when
// one is configured.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	return ConnectWithOptions(cfg, ConnectOptions{ApplySchema: true})
}

// ConnectWithOptions is Connect with explicit options.
func ConnectWithOptions(cfg *config.Config, opts ConnectOptions) (*gorm.DB, error) {
	db, err := gorm.Open(dialector(cfg), &gorm.Config{
		Logger: NewGormLogger(middleware.Logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	middleware.Logger.Info("Database connected successfully", slog.String("driver", driverName(cfg)))

	if err := configurePool(db); err != nil {
		return nil, err
	}

	if opts.ApplySchema {
		if err := ApplySchema(context.Background(), db, cfg); err != nil {
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	if cfg.DBReadHost != "" && driverName(cfg) == "postgres" {
		replica, err := gorm.Open(postgres.Open(ReadDSN(cfg)), &gorm.Config{
			Logger: NewGormLogger(middleware.Logger),
		})
		if err != nil {
			middleware.Logger.Warn("Read replica unavailable, reads use the primary", slog.String("error", err.Error()))
		} else {
			readDB = replica
		}
	}

	return db, nil
}

// GetReadDB returns the read replica, or nil when none is configured.
func GetReadDB() *gorm.DB {
	return readDB
}

func driverName(cfg *config.Config) string {
	if cfg.DBDriver == "" {
		return "postgres"
	}
	return cfg.DBDriver
}

func dialector(cfg *config.Config) gorm.Dialector {
	if driverName(cfg) == "sqlite" {
		return sqlite.Open(cfg.SQLitePath)
	}
	return postgres.Open(DSN(cfg))
}

// DSN builds the primary PostgreSQL connection string.
func DSN(cfg *config.Config) string {
	return pgDSN(cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)
}

// ReadDSN builds the read-replica connection string.
func ReadDSN(cfg *config.Config) string {
	return pgDSN(cfg.DBReadHost, cfg.DBReadPort, cfg.DBReadUser, cfg.DBReadPassword, cfg.DBName, cfg.DBSSLMode)
}

func pgDSN(host, port, user, password, name, sslMode string) string {
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, name, sslMode,
	)
}

func configurePool(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	return nil
}

// Ping checks the database from outside the pool. For PostgreSQL it opens a fresh pgx
// connection so a wedged pool does not report healthy; other drivers ping the pool.
func Ping(ctx context.Context, cfg *config.Config, db *gorm.DB) error {
	if driverName(cfg) == "postgres" && cfg.DBHost != "" {
		conn, err := pgx.Connect(ctx, DSN(cfg))
		if err != nil {
			return fmt.Errorf("pgx connect: %w", err)
		}
		defer func() { _ = conn.Close(context.Background()) }()
		return conn.Ping(ctx)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
