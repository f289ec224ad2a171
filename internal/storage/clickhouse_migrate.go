package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// RunClickHouseMigrations applies the .sql files in migrationsPath against
// the archive database, in lexical order. ClickHouse DDL here is additive
// only; there is no rollback.
func RunClickHouseMigrations(ctx context.Context, db *ClickHouseDB, migrationsPath string) error {
	entries, err := os.ReadDir(migrationsPath)
	if err != nil {
		return fmt.Errorf("read archive migrations dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		script, err := os.ReadFile(filepath.Join(migrationsPath, name)) // #nosec G304 - path comes from config
		if err != nil {
			return fmt.Errorf("read archive migration %s: %w", name, err)
		}

		// clickhouse-go executes one statement per call
		for _, stmt := range strings.Split(string(script), ";") {
			if stmt = strings.TrimSpace(stmt); stmt == "" {
				continue
			}
			if err := db.Conn().Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply archive migration %s: %w", name, err)
			}
		}
	}

	return nil
}
