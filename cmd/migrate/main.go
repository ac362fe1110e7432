// cmd/migrate/main.go
package main

import (
	"context"
	"database/sql"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/unclebandit/prospect-pipeline/internal/db"
	"github.com/unclebandit/prospect-pipeline/internal/logger"
)

// usage: migrate [up|down|status|redo|version] [args...]
func main() {
	logg := logger.New(logger.Options{ServiceName: "prospect-migrate", Format: "console"})
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		logg.Error(ctx, "DATABASE_URL or DB_DSN must point at postgres", nil)
		os.Exit(1)
	}

	command := "up"
	var args []string
	if len(os.Args) > 1 {
		command, args = os.Args[1], os.Args[2:]
	}

	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		logg.Error(ctx, "failed to open database", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := db.RunMigrations(ctx, sqlDB, command, args...); err != nil {
		logg.Error(ctx, "migration failed", err)
		os.Exit(1)
	}
	logg.Info(logg.WithField(ctx, "command", command), "migrations applied")
}
