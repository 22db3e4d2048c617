// Command keygen issues an API key directly against the database. It is how
// the first admin key is created before any key can call the admin API.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	mw "github.com/kiranshivaraju/orthogate/internal/api/middleware"
	"github.com/kiranshivaraju/orthogate/internal/config"
	"github.com/kiranshivaraju/orthogate/internal/store"
	"github.com/kiranshivaraju/orthogate/pkg/models"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	_ = godotenv.Load()

	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("keygen failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	name := fs.String("name", "bootstrap-admin", "Human-readable key name")
	scopes := fs.String("scopes", models.ScopeAdmin, "Comma-separated scopes (read, analyze, admin)")
	databaseURL := fs.String("database-url", os.Getenv("DATABASE_URL"), "Postgres connection URL")
	migrations := fs.String("migrations", "migrations", "Migrations directory, empty to skip")
	if err := fs.Parse(args); err != nil {
		return err
	}

	scopeList, err := parseScopes(*scopes)
	if err != nil {
		return err
	}
	if *databaseURL == "" {
		return fmt.Errorf("-database-url or DATABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, config.DatabaseConfig{URL: *databaseURL, MaxOpenConns: 2})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if *migrations != "" {
		if err := store.RunMigrations(*databaseURL, *migrations); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	key, rawKey, err := mw.NewAPIKey(*name, scopeList)
	if err != nil {
		return err
	}
	if err := store.NewPostgresStore(pool).CreateAPIKey(ctx, key); err != nil {
		return fmt.Errorf("store key: %w", err)
	}

	slog.Info("api key created", "key_id", key.ID, "name", key.Name, "scopes", key.Scopes)
	fmt.Fprintln(out, rawKey)
	return nil
}

func parseScopes(raw string) ([]string, error) {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		switch s {
		case models.ScopeRead, models.ScopeAnalyze, models.ScopeAdmin:
			out = append(out, s)
		default:
			return nil, fmt.Errorf("unknown scope %q", s)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one scope is required")
	}
	return out, nil
}
