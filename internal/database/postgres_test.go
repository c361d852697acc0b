package database

import (
	"io/fs"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/maheshrc27/crosspost/internal/database/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_Embedded(t *testing.T) {
	source, err := iofs.New(migrations.FS, ".")
	require.NoError(t, err)
	defer source.Close()

	first, err := source.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	up, name, err := source.ReadUp(first)
	require.NoError(t, err)
	defer up.Close()
	assert.Equal(t, "init", name)

	down, _, err := source.ReadDown(first)
	require.NoError(t, err)
	down.Close()
}

func TestMigrations_UpAndDownAreSeparate(t *testing.T) {
	up, err := fs.ReadFile(migrations.FS, "001_init.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(up), "CREATE TABLE IF NOT EXISTS post_events")
	assert.NotContains(t, string(up), "DROP TABLE")

	down, err := fs.ReadFile(migrations.FS, "001_init.down.sql")
	require.NoError(t, err)
	assert.Contains(t, string(down), "DROP TABLE IF EXISTS post_events")
	assert.NotContains(t, string(down), "CREATE TABLE")
}
