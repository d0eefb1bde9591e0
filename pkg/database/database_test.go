package database

import (
	"bytes"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libtrack/pkg/config"
	"libtrack/pkg/models"
)

func TestOpenSQLiteMigratesSchema(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { Close(db) })

	for _, model := range models.All() {
		assert.True(t, db.Migrator().HasTable(model))
	}
	assert.True(t, db.Migrator().HasIndex(&models.Borrowing{}, "idx_borrowings_open_pair"))
	assert.NoError(t, Ping(db))
}

func TestOpenSQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "libtrack.db")
	cfg := config.Config{DBDriver: "sqlite", SQLitePath: path}

	db, err := Open(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	user := models.User{Email: "reader@example.com", FullName: "Reader"}
	require.NoError(t, db.Create(&user).Error)
	require.NoError(t, Close(db))

	reopened, err := OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { Close(reopened) })

	var found models.User
	require.NoError(t, reopened.First(&found, "email = ?", "reader@example.com").Error)
	assert.Equal(t, user.ID, found.ID)
	assert.Equal(t, models.RoleUser, found.Role)
	assert.Equal(t, models.UserActive, found.Status)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(config.Config{DBDriver: "mongo"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func TestGormTracesGoToSlog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	cfg := config.Config{DBDriver: "sqlite", SQLitePath: ":memory:"}
	db, err := Open(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { Close(db) })

	buf.Reset()
	require.Error(t, db.Exec("SELECT * FROM no_such_table").Error)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "no_such_table")
}
