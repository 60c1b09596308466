package db

import (
	"log/slog"
	"testing"

	"github.com/emberian/tulip/internal/config"
)

func TestRunMigrateUnknownCommand(t *testing.T) {
	cfg := config.PostgresConfig{
		Host:     "127.0.0.1",
		Port:     5432,
		User:     "postgres",
		Database: "tulip",
		SSLMode:  "disable",
	}
	err := RunMigrate(slog.Default(), cfg, nil, "sideways", nil)
	if err == nil {
		t.Fatalf("expected error for unknown command")
	}
}

func TestRunMigrateForceRequiresVersion(t *testing.T) {
	err := RunMigrate(slog.Default(), config.PostgresConfig{}, nil, "force", nil)
	if err == nil {
		t.Fatalf("expected error when force has no version argument")
	}
}
