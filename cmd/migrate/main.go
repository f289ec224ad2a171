// Command migrate manages the schemas of both stores: versioned Postgres
// migrations for the pipeline tables and additive DDL for the ClickHouse
// fill archive.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"

	"github.com/fill-tracker/internal/config"
	"github.com/fill-tracker/internal/storage"
)

const (
	postgresMigrationsPath   = "migrations/postgres"
	clickhouseMigrationsPath = "migrations/clickhouse"
)

func main() {
	action := flag.String("action", "up", "up, down or version")
	store := flag.String("db", "postgres", "postgres or clickhouse")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	switch *store {
	case "postgres":
		err = migratePostgres(cfg, *action)
	case "clickhouse":
		err = migrateClickHouse(cfg, *action)
	default:
		err = fmt.Errorf("unknown store: %s", *store)
	}
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
}

func migratePostgres(cfg *config.Config, action string) error {
	pg := cfg.Database.Postgres
	dsn := (&url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(pg.User, pg.Password),
		Host:     pg.Host + ":" + pg.Port,
		Path:     "/" + pg.Database,
		RawQuery: "sslmode=disable",
	}).String()

	switch action {
	case "up":
		if err := storage.RunMigrations(dsn, postgresMigrationsPath); err != nil {
			return err
		}
		log.Println("Postgres schema is up to date")
		return nil
	case "down":
		if err := storage.RollbackMigrations(dsn, postgresMigrationsPath); err != nil {
			return err
		}
		log.Println("Rolled back one Postgres migration")
		return nil
	case "version":
		version, dirty, err := storage.MigrationVersion(dsn, postgresMigrationsPath)
		if err != nil {
			return err
		}
		log.Printf("Postgres schema version %d (dirty: %v)", version, dirty)
		return nil
	default:
		return fmt.Errorf("unknown action: %s", action)
	}
}

func migrateClickHouse(cfg *config.Config, action string) error {
	if action != "up" {
		return fmt.Errorf("the ClickHouse archive only supports 'up'")
	}
	if !cfg.Database.ClickHouse.Enabled() {
		return fmt.Errorf("ClickHouse is not configured")
	}
	if _, err := os.Stat(clickhouseMigrationsPath); err != nil {
		return fmt.Errorf("archive migrations directory: %w", err)
	}

	db, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Printf("Error closing ClickHouse connection: %v", cerr)
		}
	}()

	if err := storage.RunClickHouseMigrations(context.Background(), db, clickhouseMigrationsPath); err != nil {
		return err
	}
	log.Println("ClickHouse archive schema is up to date")
	return nil
}
