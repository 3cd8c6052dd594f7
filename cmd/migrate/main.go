package main

import (
	"database/sql"
	"flag"
	"os"

	"tgrelay/internal/constants"
	"tgrelay/internal/migrations"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

func main() {
	dbPath := flag.String("db", constants.DefaultDatabasePath, "Path to the event store database")
	direction := flag.String("direction", "up", "Migration direction: up or down")
	steps := flag.Int("steps", 1, "Number of migrations to roll back when direction is down")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if _, err := os.Stat(*dbPath); os.IsNotExist(err) && *direction == "down" {
		logger.Fatalf("Database file not found: %s", *dbPath)
	}

	db, err := sql.Open("sqlite3", *dbPath)
	if err != nil {
		logger.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	switch *direction {
	case "up":
		err = migrations.Up(db)
	case "down":
		err = migrations.Down(db, *steps)
	default:
		logger.Fatalf("Unknown direction %q, expected up or down", *direction)
	}
	if err != nil {
		logger.Fatalf("Migration failed: %v", err)
	}

	version, dirty, err := migrations.Version(db)
	if err != nil {
		logger.Fatalf("Failed to read schema version: %v", err)
	}
	logger.WithFields(logrus.Fields{
		"version":   version,
		"dirty":     dirty,
		"direction": *direction,
	}).Info("Event store schema updated")
}
