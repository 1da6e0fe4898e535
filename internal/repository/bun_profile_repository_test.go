package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wordgrove/groveapi/internal/db/bunx"
	"github.com/wordgrove/groveapi/internal/db/models"
)

func TestProfileRepository_CreateAndFind(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunProfileRepository(db)
	ctx := context.Background()

	for _, role := range []models.Role{models.RoleStudent, models.RoleTeacher, models.RoleParent} {
		t.Run(string(role), func(t *testing.T) {
			profile := &Profile{
				ID:     bunx.NewUUIDv7(),
				UserID: bunx.NewUUIDv7(),
				Name:   "Robin",
			}
			require.NoError(t, repo.Create(ctx, role, profile))

			byUser, err := repo.FindByUserID(ctx, role, profile.UserID)
			require.NoError(t, err)
			require.NotNil(t, byUser)
			assert.Equal(t, profile.ID, byUser.ID)
			assert.Equal(t, "Robin", byUser.Name)

			byID, err := repo.FindByID(ctx, role, profile.ID)
			require.NoError(t, err)
			require.NotNil(t, byID)
			assert.Equal(t, profile.UserID, byID.UserID)
		})
	}
}

func TestProfileRepository_Create_DuplicateUserID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunProfileRepository(db)
	ctx := context.Background()

	userID := bunx.NewUUIDv7()
	first := &Profile{ID: bunx.NewUUIDv7(), UserID: userID, Name: "First"}
	require.NoError(t, repo.Create(ctx, models.RoleStudent, first))

	second := &Profile{ID: bunx.NewUUIDv7(), UserID: userID, Name: "Second"}
	err := repo.Create(ctx, models.RoleStudent, second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)

	// The first profile for the user wins.
	got, err := repo.FindByUserID(ctx, models.RoleStudent, userID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID)
}

func TestProfileRepository_StudentStartsAtLevelOne(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunProfileRepository(db)
	ctx := context.Background()

	profile := &Profile{ID: bunx.NewUUIDv7(), UserID: bunx.NewUUIDv7(), Name: "Newbie"}
	require.NoError(t, repo.Create(ctx, models.RoleStudent, profile))

	student := new(models.Student)
	err := db.NewSelect().Model(student).Where("id = ?", profile.ID).Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, student.Level)
}

func TestProfileRepository_AdminHasNoTable(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunProfileRepository(db)
	ctx := context.Background()

	err := repo.Create(ctx, models.RoleAdmin, &Profile{ID: bunx.NewUUIDv7(), UserID: bunx.NewUUIDv7()})
	assert.Error(t, err)

	_, err = repo.FindByUserID(ctx, models.RoleAdmin, bunx.NewUUIDv7())
	assert.Error(t, err)
}

func TestProfileRepository_Find_MissingRowIsNil(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunProfileRepository(db)
	ctx := context.Background()

	got, err := repo.FindByUserID(ctx, models.RoleTeacher, bunx.NewUUIDv7())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestProfileRepository_ReassignUser(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunProfileRepository(db)
	ctx := context.Background()

	oldUserID := bunx.NewUUIDv7()
	newUserID := bunx.NewUUIDv7()
	profile := &Profile{ID: bunx.NewUUIDv7(), UserID: oldUserID, Name: "Mover"}
	require.NoError(t, repo.Create(ctx, models.RoleParent, profile))

	moved, err := repo.ReassignUser(ctx, models.RoleParent, oldUserID, newUserID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), moved)

	under, err := repo.FindByUserID(ctx, models.RoleParent, newUserID)
	require.NoError(t, err)
	require.NotNil(t, under)
	assert.Equal(t, profile.ID, under.ID, "profile keeps its identity across reassignment")

	stale, err := repo.FindByUserID(ctx, models.RoleParent, oldUserID)
	require.NoError(t, err)
	assert.Nil(t, stale)

	// No rows under the old ID anymore; a second reassign moves nothing.
	moved, err = repo.ReassignUser(ctx, models.RoleParent, oldUserID, newUserID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), moved)
}
