package record

import (
	"context"
	"fmt"
	"testing"
	"time"

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
	require.NoError(t, db.AutoMigrate(&UserRecord{}))
	// 重算和入榜查询直接读这两张表
	require.NoError(t, db.Exec(`CREATE TABLE daily_counts (
		chat_id INTEGER, user_id INTEGER, date TEXT, count INTEGER, updated_at DATETIME,
		PRIMARY KEY (chat_id, user_id, date))`).Error)
	require.NoError(t, db.Exec(`CREATE TABLE approaches (
		id INTEGER PRIMARY KEY AUTOINCREMENT, user_id INTEGER, date TEXT,
		count INTEGER, migrated BOOLEAN, created_at DATETIME)`).Error)
	require.NoError(t, db.Exec(`CREATE TABLE chat_shares (
		id INTEGER PRIMARY KEY AUTOINCREMENT, chat_id INTEGER, user_id INTEGER, created_at DATETIME)`).Error)
	return db
}

func insertDaily(t *testing.T, db *gorm.DB, chatID, userID int64, date string, count int) {
	t.Helper()
	require.NoError(t, db.Exec(
		"INSERT INTO daily_counts (chat_id, user_id, date, count, updated_at) VALUES (?, ?, ?, ?, ?)",
		chatID, userID, date, count, time.Now(),
	).Error)
}

func insertApproach(t *testing.T, db *gorm.DB, userID int64, date string, count int, migrated bool) {
	t.Helper()
	require.NoError(t, db.Exec(
		"INSERT INTO approaches (user_id, date, count, migrated, created_at) VALUES (?, ?, ?, ?, ?)",
		userID, date, count, migrated, time.Now(),
	).Error)
}

func TestUpdateRecordIsMonotone(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.UpdateRecord(ctx, 1, 30, 80, "2026-08-29"))
	require.NoError(t, repo.UpdateRecord(ctx, 1, 20, 50, "2026-08-30"))

	rec, err := repo.ByUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 30, rec.MaxAdd)
	require.Equal(t, 80, rec.RecordCount)
	require.Equal(t, "2026-08-29", rec.RecordDate)
}

func TestUpdateRecordOrderIndependent(t *testing.T) {
	ctx := context.Background()
	type update struct {
		add   int
		total int
		date  string
	}
	updates := []update{
		{add: 20, total: 50, date: "2026-08-28"},
		{add: 45, total: 45, date: "2026-08-29"},
		{add: 10, total: 80, date: "2026-08-30"},
	}
	orders := [][]int{{0, 1, 2}, {2, 1, 0}, {1, 2, 0}}
	for i, order := range orders {
		t.Run(fmt.Sprintf("order%d", i), func(t *testing.T) {
			repo := NewRepository(newTestDB(t))
			for _, idx := range order {
				u := updates[idx]
				require.NoError(t, repo.UpdateRecord(ctx, 1, u.add, u.total, u.date))
			}
			rec, err := repo.ByUser(ctx, 1)
			require.NoError(t, err)
			require.Equal(t, 45, rec.MaxAdd)
			require.Equal(t, 80, rec.RecordCount)
		})
	}
}

func TestUpdateRecordTieKeepsEarlierDate(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.UpdateRecord(ctx, 1, 10, 100, "2026-08-20"))
	require.NoError(t, repo.UpdateRecord(ctx, 1, 10, 100, "2026-08-25"))

	rec, err := repo.ByUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "2026-08-20", rec.RecordDate)
}

func TestSyncUserRecordRecomputesFromScratch(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	// 跨群的同一天要合并成一个单日总数
	insertDaily(t, db, 10, 1, "2026-08-29", 40)
	insertDaily(t, db, 20, 1, "2026-08-29", 30)
	insertDaily(t, db, 10, 1, "2026-08-30", 60)
	insertApproach(t, db, 1, "2026-08-29", 40, false)
	insertApproach(t, db, 1, "2026-08-29", 55, true)

	require.NoError(t, repo.SyncUserRecord(ctx, 1))

	rec, err := repo.ByUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 70, rec.RecordCount)
	require.Equal(t, "2026-08-29", rec.RecordDate)
	// 回填的流水不算单组纪录
	require.Equal(t, 40, rec.MaxAdd)
}

func TestSyncUserRecordCanLowerRecord(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.UpdateRecord(ctx, 1, 50, 120, "2026-08-28"))
	insertDaily(t, db, 10, 1, "2026-08-30", 20)

	require.NoError(t, repo.SyncUserRecord(ctx, 1))

	rec, err := repo.ByUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 20, rec.RecordCount)
	require.Equal(t, 0, rec.MaxAdd)
}

func TestByChatUnionAndOrdering(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	// 用户1、2在群10发过，用户3只是共享进来
	insertDaily(t, db, 10, 1, "2026-08-30", 30)
	insertDaily(t, db, 10, 2, "2026-08-30", 50)
	require.NoError(t, db.Exec(
		"INSERT INTO chat_shares (chat_id, user_id, created_at) VALUES (?, ?, ?)", 10, 3, time.Now(),
	).Error)

	require.NoError(t, repo.UpdateRecord(ctx, 1, 30, 30, "2026-08-30"))
	require.NoError(t, repo.UpdateRecord(ctx, 2, 50, 50, "2026-08-30"))
	require.NoError(t, repo.UpdateRecord(ctx, 3, 50, 50, "2026-08-30"))

	rows, err := repo.ByChat(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	// 并列的按user_id升序
	require.Equal(t, int64(2), rows[0].UserID)
	require.Equal(t, int64(3), rows[1].UserID)
	require.Equal(t, int64(1), rows[2].UserID)
}

func TestBackfillUserRecords(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	insertDaily(t, db, 10, 1, "2026-08-29", 40)
	insertDaily(t, db, 10, 1, "2026-08-30", 25)
	insertDaily(t, db, 20, 2, "2026-08-30", 90)

	require.NoError(t, BackfillUserRecords(db))

	rec, err := repo.ByUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 40, rec.RecordCount)
	require.Equal(t, "2026-08-29", rec.RecordDate)

	rec, err = repo.ByUser(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, 90, rec.RecordCount)
}
