package chat

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Chat{}, &ChatShare{}, &ApiToken{}))
	return db
}

func TestAddShareIdempotent(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.AddShare(ctx, 10, 1))
	require.NoError(t, repo.AddShare(ctx, 10, 1))
	require.NoError(t, repo.AddShare(ctx, 10, 1))

	ids, err := repo.SharedUserIDs(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []int64{1}, ids)
}

func TestRemoveShareIdempotent(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.AddShare(ctx, 10, 1))
	require.NoError(t, repo.RemoveShare(ctx, 10, 1))
	require.NoError(t, repo.RemoveShare(ctx, 10, 1))

	shared, err := repo.IsShared(ctx, 1)
	require.NoError(t, err)
	require.False(t, shared)
}

func TestCanonicalChatIsMinAndOrderIndependent(t *testing.T) {
	ctx := context.Background()
	orders := [][]int64{
		{5, 2, 9},
		{9, 5, 2},
		{2, 9, 5},
	}
	for i, chats := range orders {
		t.Run(fmt.Sprintf("order%d", i), func(t *testing.T) {
			repo := NewRepository(newTestDB(t))
			for _, chatID := range chats {
				require.NoError(t, repo.AddShare(ctx, chatID, 7))
			}
			canonical, ok, err := repo.CanonicalChat(ctx, 7)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, int64(2), canonical)
		})
	}
}

func TestCanonicalChatWithoutShares(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	_, ok, err := repo.CanonicalChat(context.Background(), 42)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCanonicalChatShiftsWhenShareRemoved(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.AddShare(ctx, 2, 7))
	require.NoError(t, repo.AddShare(ctx, 5, 7))
	require.NoError(t, repo.RemoveShare(ctx, 2, 7))

	canonical, ok, err := repo.CanonicalChat(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(5), canonical)
}

func TestEnsureTokenStable(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()

	first, err := repo.EnsureToken(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := repo.EnsureToken(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, first, second)

	chatID, ok, err := repo.ChatIDByToken(ctx, first)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(10), chatID)
}

func TestChatIDByUnknownToken(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	_, ok, err := repo.ChatIDByToken(context.Background(), "nope")
	require.NoError(t, err)
	require.False(t, ok)
}
