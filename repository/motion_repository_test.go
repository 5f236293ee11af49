package repository

import (
	"context"
	"testing"
	"time"

	"plutocrat/repository/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMotionRepository_Create(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewMotionRepository(testDB.DB)
	ctx := context.Background()

	first := testutil.CreateTestMotion(7, "first motion")
	require.NoError(t, repo.Create(ctx, first))
	assert.NotZero(t, first.ID)
	assert.False(t, first.MotionedAt.IsZero())
	assert.True(t, first.NeedsUpdate)

	second := testutil.CreateTestMotion(7, "second motion")
	require.NoError(t, repo.Create(ctx, second))
	assert.Greater(t, second.ID, first.ID)
}

func TestMotionRepository_IDsNeverReused(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewMotionRepository(testDB.DB)
	ctx := context.Background()

	first := testutil.CreateTestMotion(7, "short-lived motion")
	require.NoError(t, repo.Create(ctx, first))

	// Even if a motion row disappears, its id stays burned in the
	// id sequence table.
	_, err := testDB.DB.Pool.Exec(ctx, `DELETE FROM motions WHERE id = $1`, first.ID)
	require.NoError(t, err)

	second := testutil.CreateTestMotion(7, "replacement motion")
	require.NoError(t, repo.Create(ctx, second))
	assert.Greater(t, second.ID, first.ID)
}

func TestMotionRepository_GetByID(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewMotionRepository(testDB.DB)
	ctx := context.Background()

	t.Run("missing motion", func(t *testing.T) {
		motion, err := repo.GetByID(ctx, 999)
		require.NoError(t, err)
		assert.Nil(t, motion)
	})

	t.Run("round trip", func(t *testing.T) {
		created := testutil.CreateTestMotion(7, "give everyone a pony")
		created.IsSuper = true
		require.NoError(t, repo.Create(ctx, created))

		motion, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		require.NotNil(t, motion)
		assert.Equal(t, "give everyone a pony", motion.Text)
		assert.True(t, motion.IsSuper)
		assert.Equal(t, int64(7), motion.MotionedBy)
		assert.Nil(t, motion.AnnouncementMessageID)
	})
}

func TestMotionRepository_MarkResolved_ExactlyOnce(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewMotionRepository(testDB.DB)
	ctx := context.Background()

	motion := testutil.CreateTestMotion(7, "contested motion")
	require.NoError(t, repo.Create(ctx, motion))

	won, err := repo.MarkResolved(ctx, motion.ID, 900)
	require.NoError(t, err)
	assert.True(t, won)

	// Second attempt loses the race, regardless of message id
	won, err = repo.MarkResolved(ctx, motion.ID, 901)
	require.NoError(t, err)
	assert.False(t, won)

	resolved, err := repo.GetByID(ctx, motion.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(900), *resolved.AnnouncementMessageID)
	assert.False(t, resolved.NeedsUpdate)
}

func TestMotionRepository_GetExpiredUnresolved(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewMotionRepository(testDB.DB)
	ctx := context.Background()

	open := testutil.CreateTestMotion(7, "still counting")
	require.NoError(t, repo.Create(ctx, open))

	resolved := testutil.CreateTestMotion(7, "already done")
	require.NoError(t, repo.Create(ctx, resolved))
	_, err := repo.MarkResolved(ctx, resolved.ID, 900)
	require.NoError(t, err)

	t.Run("past cutoff", func(t *testing.T) {
		due, err := repo.GetExpiredUnresolved(ctx, time.Now().Add(time.Minute))
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, open.ID, due[0].ID)
	})

	t.Run("future cutoff excludes fresh motions", func(t *testing.T) {
		due, err := repo.GetExpiredUnresolved(ctx, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		assert.Empty(t, due)
	})
}

func TestMotionRepository_NeedsUpdateLifecycle(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewMotionRepository(testDB.DB)
	ctx := context.Background()

	motion := testutil.CreateTestMotion(7, "flip-flopping motion")
	require.NoError(t, repo.Create(ctx, motion))

	// Fresh motions start flagged for a status broadcast
	flagged, err := repo.ListNeedingUpdate(ctx)
	require.NoError(t, err)
	require.Len(t, flagged, 1)

	require.NoError(t, repo.ClearNeedsUpdate(ctx, motion.ID))
	flagged, err = repo.ListNeedingUpdate(ctx)
	require.NoError(t, err)
	assert.Empty(t, flagged)

	changedAt := time.Now()
	require.NoError(t, repo.RecordResultChange(ctx, motion.ID, changedAt))

	flagged, err = repo.ListNeedingUpdate(ctx)
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.WithinDuration(t, changedAt, flagged[0].LastResultChange, time.Second)
}

func TestMotionRepository_List_UnresolvedFirst(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewMotionRepository(testDB.DB)
	ctx := context.Background()

	oldOpen := testutil.CreateTestMotion(7, "old but open")
	require.NoError(t, repo.Create(ctx, oldOpen))

	closed := testutil.CreateTestMotion(7, "newer but closed")
	require.NoError(t, repo.Create(ctx, closed))
	_, err := repo.MarkResolved(ctx, closed.ID, 900)
	require.NoError(t, err)

	motions, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, motions, 2)
	assert.Equal(t, oldOpen.ID, motions[0].ID)
	assert.Equal(t, closed.ID, motions[1].ID)
}
