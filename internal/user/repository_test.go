package user

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
	require.NoError(t, db.AutoMigrate(&User{}))
	return db
}

func TestUpsertKeepsProfileOnPartialObservation(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, User{
		UserID:    1,
		Username:  "alice",
		FirstName: "Alice",
		LastName:  "Liddell",
	}))
	// 第二次观察没带任何资料字段，不应抹掉已有的值
	require.NoError(t, repo.Upsert(ctx, User{UserID: 1}))

	u, err := repo.ByID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, u)
	require.Equal(t, "alice", u.Username)
	require.Equal(t, "Alice", u.FirstName)
	require.Equal(t, "Liddell", u.LastName)
	require.Equal(t, "alice", u.DisplayName())
}

func TestUpsertRefreshesChangedFields(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, User{UserID: 1, Username: "alice", FirstName: "Alice"}))
	require.NoError(t, repo.Upsert(ctx, User{UserID: 1, Username: "wonderalice"}))

	u, err := repo.ByID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, u)
	require.Equal(t, "wonderalice", u.Username)
	require.Equal(t, "Alice", u.FirstName)
}

func TestUpsertLiteKeepsNameAndUsername(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, User{UserID: 2, Username: "bob", FirstName: "Bob"}))
	require.NoError(t, repo.UpsertLite(ctx, 2, ""))

	u, err := repo.ByID(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, u)
	require.Equal(t, "bob", u.Username)
	require.Equal(t, "Bob", u.FirstName)
}
