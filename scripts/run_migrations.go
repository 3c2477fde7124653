package main

import (
	"database/sql"
	"os"

	_ "github.com/lib/pq"
	"github.com/safar/cosmetics-store/internal/config"
	"github.com/safar/cosmetics-store/internal/database"
	"github.com/sirupsen/logrus"
)

func main() {
	if len(os.Args) < 2 {
		logrus.Fatal("Usage: go run scripts/run_migrations.go [up|down]")
	}
	direction := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Load config")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logrus.WithError(err).Fatal("Connect to database")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logrus.WithError(err).Fatal("Ping database")
	}

	migrationDir := os.Getenv("MIGRATIONS_DIR")
	if migrationDir == "" {
		migrationDir = "migrations"
	}

	n, err := database.RunMigrations(db, migrationDir, direction)
	if err != nil {
		logrus.WithError(err).Fatal("Run migrations")
	}

	logrus.WithFields(logrus.Fields{"count": n, "direction": direction}).Info("Migrations applied")
}
