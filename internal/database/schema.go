package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"welcomemat/internal/config"
	"welcomemat/internal/middleware"

	"gorm.io/gorm"
)

// Schema modes selected by DB_SCHEMA_MODE.
const (
	SchemaModeHybrid = "hybrid"
	SchemaModeSQL    = "sql"
	SchemaModeAuto   = "auto"
)

// SchemaStatus describes what ApplySchema would do.
type SchemaStatus struct {
	Mode               string
	Environment        string
	WillRunSQL         bool
	WillRunAutoMigrate bool
	AppliedVersions    []int
	PendingMigrations  []Migration
}

// schemaPlan is the resolved DB_SCHEMA_MODE for one driver and environment.
type schemaPlan struct {
	mode    string
	env     string
	sql     bool // embedded SQL migrations, PostgreSQL only
	autoMig bool // GORM AutoMigrate of PersistentModels
}

// sharedEnvs hold data other people rely on; AutoMigrate never runs there.
var sharedEnvs = map[string]bool{"production": true, "prod": true, "staging": true, "stage": true}

func planSchema(cfg *config.Config) (schemaPlan, error) {
	p := schemaPlan{mode: cfg.DBSchemaMode, env: cfg.Env}
	if p.mode == "" {
		p.mode = SchemaModeHybrid
	}
	shared := sharedEnvs[strings.ToLower(strings.TrimSpace(cfg.Env))]

	// The SQL migrations are PostgreSQL DDL.
	if driverName(cfg) == "sqlite" {
		p.autoMig = true
		return p, nil
	}

	switch p.mode {
	case SchemaModeSQL:
		p.sql = true
	case SchemaModeAuto:
		if shared {
			return p, fmt.Errorf("refusing DB_SCHEMA_MODE=auto in %q", cfg.Env)
		}
		p.autoMig = true
	case SchemaModeHybrid:
		p.sql = true
		p.autoMig = !shared
	default:
		return p, fmt.Errorf("unsupported DB_SCHEMA_MODE %q", p.mode)
	}
	return p, nil
}

// ApplySchema brings the schema up to date according to the configured mode.
func ApplySchema(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	plan, err := planSchema(cfg)
	if err != nil {
		return err
	}

	if plan.sql {
		if err := RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("run sql migrations: %w", err)
		}
	}
	if !plan.autoMig {
		return nil
	}
	middleware.Logger.InfoContext(ctx, "auto-migrating models",
		slog.String("mode", plan.mode), slog.String("env", plan.env), slog.Int("models", len(PersistentModels())))
	if err := db.WithContext(ctx).AutoMigrate(PersistentModels()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

// GetSchemaStatus reports the schema plan and, when SQL migrations are in play, which of
// them are still pending.
func GetSchemaStatus(ctx context.Context, db *gorm.DB, cfg *config.Config) (*SchemaStatus, error) {
	plan, err := planSchema(cfg)
	if err != nil {
		return nil, err
	}

	status := &SchemaStatus{
		Mode:               plan.mode,
		Environment:        plan.env,
		WillRunSQL:         plan.sql,
		WillRunAutoMigrate: plan.autoMig,
	}
	if plan.sql {
		applied, err := NewMigrationStore(db).GetAppliedMigrations(ctx)
		if err != nil {
			return nil, err
		}
		status.AppliedVersions = applied
		status.PendingMigrations = pendingMigrations(applied, migrations)
	}
	return status, nil
}

func pendingMigrations(applied []int, registered []Migration) []Migration {
	done := make(map[int]struct{}, len(applied))
	for _, v := range applied {
		done[v] = struct{}{}
	}
	var pending []Migration
	for _, m := range registered {
		if _, ok := done[m.Version]; !ok {
			pending = append(pending, m)
		}
	}
	return pending
}
