// Command migrate applies, inspects and rolls back the Welcome Mat schema.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"

	"welcomemat/internal/config"
	"welcomemat/internal/database"

	"gorm.io/gorm"
)

const usageText = "usage: migrate <up|auto|status|down> [version]"

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	flag.Usage = func() { fmt.Fprintln(flag.CommandLine.Output(), usageText) }
	flag.Parse()
	if flag.NArg() < 1 {
		return fmt.Errorf(usageText)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// The schema is only touched by the subcommand below.
	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: false})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	ctx := context.Background()
	switch strings.ToLower(strings.TrimSpace(flag.Arg(0))) {
	case "up":
		return up(ctx, db)
	case "auto":
		return auto(ctx, db, cfg)
	case "status":
		return status(ctx, db, cfg)
	case "down":
		return down(ctx, db, flag.Arg(1))
	default:
		return fmt.Errorf(usageText)
	}
}

func up(ctx context.Context, db *gorm.DB) error {
	if err := database.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("sql migrations failed: %w", err)
	}
	log.Println("sql migrations applied")
	return nil
}

// auto forces AutoMigrate regardless of DB_SCHEMA_MODE.
func auto(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	cfg.DBSchemaMode = database.SchemaModeAuto
	if err := database.ApplySchema(ctx, db, cfg); err != nil {
		return fmt.Errorf("auto schema apply failed: %w", err)
	}
	log.Println("automigrations applied")
	return nil
}

func status(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	st, err := database.GetSchemaStatus(ctx, db, cfg)
	if err != nil {
		return fmt.Errorf("schema status failed: %w", err)
	}
	log.Printf("mode=%s env=%s run_sql=%t run_auto=%t applied=%v",
		st.Mode, st.Environment, st.WillRunSQL, st.WillRunAutoMigrate, st.AppliedVersions)
	if len(st.PendingMigrations) == 0 {
		log.Println("schema is up to date")
	}
	for _, m := range st.PendingMigrations {
		log.Printf("pending: %s", m.String())
	}
	return nil
}

func down(ctx context.Context, db *gorm.DB, arg string) error {
	if arg == "" {
		return fmt.Errorf("usage: migrate down <version>")
	}
	version, err := strconv.Atoi(arg)
	if err != nil {
		return fmt.Errorf("invalid version %q: %w", arg, err)
	}
	if err := database.RollbackMigration(ctx, db, version); err != nil {
		return fmt.Errorf("rollback of %d failed: %w", version, err)
	}
	log.Printf("rolled back migration %d", version)
	return nil
}
