package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 14, cfg.MaxBorrowDays)
	assert.Equal(t, 5, cfg.MaxBooksPerUser)
	assert.Equal(t, 24*time.Hour, cfg.OverdueCheckInterval)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("MAX_BORROW_DAYS", "21")
	t.Setenv("MAX_BOOKS_PER_USER", "3")
	t.Setenv("OVERDUE_CHECK_INTERVAL_MS", "60000")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 21, cfg.MaxBorrowDays)
	assert.Equal(t, 3, cfg.MaxBooksPerUser)
	assert.Equal(t, time.Minute, cfg.OverdueCheckInterval)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoadFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MAX_BOOKS_PER_USER=7\nDB_NAME=circulation\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("MAX_BOOKS_PER_USER")
		os.Unsetenv("DB_NAME")
	})

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.MaxBooksPerUser)
	assert.Contains(t, cfg.PostgresDSN(), "dbname=circulation")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "not a number", key: "MAX_BORROW_DAYS", value: "two weeks"},
		{name: "zero limit", key: "MAX_BOOKS_PER_USER", value: "0"},
		{name: "unknown driver", key: "DB_DRIVER", value: "mongo"},
		{name: "negative interval", key: "OVERDUE_CHECK_INTERVAL_MS", value: "-5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingEnvFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}
