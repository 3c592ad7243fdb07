package database

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateDriverInitFailure(t *testing.T) {
	// A mock connection with no scripted expectations rejects the driver's
	// first introspection query, so Migrate fails before touching the
	// filesystem source.
	mockDB, _, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	db := sqlx.NewDb(mockDB, "sqlmock")

	err = Migrate(db, "migrations", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration driver")
}
