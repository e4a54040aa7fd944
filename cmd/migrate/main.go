// Command migrate applies the SQL files under ./migrations in name order,
// recording each in schema_migrations so reruns skip what is applied.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/policetracker/internal/adapters/postgres"
	"github.com/samirrijal/policetracker/internal/pkg/config"
	"github.com/samirrijal/policetracker/internal/pkg/logging"
)

const migrationsGlob = "migrations/*.sql"

const createTracking = `CREATE TABLE IF NOT EXISTS schema_migrations (
	name       TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|status>")
	}

	cfg, err := config.Load("policetracker-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup("policetracker-migrate", cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Database.DSN(), 2)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	if _, err := db.Pool.Exec(ctx, createTracking); err != nil {
		log.Fatalf("create schema_migrations: %v", err)
	}

	files, err := migrationFiles()
	if err != nil {
		log.Fatalf("list migrations: %v", err)
	}
	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		log.Fatalf("read schema_migrations: %v", err)
	}

	switch os.Args[1] {
	case "up":
		n := 0
		for _, f := range files {
			name := filepath.Base(f)
			if applied[name] {
				continue
			}
			if err := apply(ctx, db, f, name); err != nil {
				log.Fatalf("%s: %v", name, err)
			}
			slog.Info("migration applied", "name", name)
			n++
		}
		slog.Info("migrations up to date", "applied", n, "total", len(files))
	case "status":
		for _, f := range files {
			state := "pending"
			if applied[filepath.Base(f)] {
				state = "applied"
			}
			fmt.Printf("%-8s %s\n", state, filepath.Base(f))
		}
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
}

func migrationFiles() ([]string, error) {
	files, err := filepath.Glob(migrationsGlob)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files match %s", migrationsGlob)
	}
	sort.Strings(files)
	return files, nil
}

func appliedMigrations(ctx context.Context, db *postgres.DB) (map[string]bool, error) {
	rows, err := db.Pool.Query(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out, nil
}

// apply runs one file and records it in the same transaction.
func apply(ctx context.Context, db *postgres.DB, path, name string) error {
	sql, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, string(sql)); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name)
		return err
	})
}
