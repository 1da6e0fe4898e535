package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	"github.com/wordgrove/groveapi/internal/db/bunx"
	"github.com/wordgrove/groveapi/internal/db/models"
	"github.com/wordgrove/groveapi/internal/migrations"
)

// setupTestDB opens a fresh in-memory SQLite database and applies the full
// migration set. Each test gets its own named database so tests cannot
// observe each other's rows.
func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:repotest_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := bunx.NewDB(dsn, 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	migrator := migrate.NewMigrator(db, migrations.Migrations)
	require.NoError(t, migrator.Init(ctx))
	_, err = migrator.Migrate(ctx)
	require.NoError(t, err)

	return db
}

// newTestUser builds a user with a unique principal ID and email.
func newTestUser(role models.Role) *models.User {
	id := bunx.NewUUIDv7()
	return &models.User{
		ID:    id,
		Email: id + "@grove.test",
		Role:  role,
	}
}
