package workout

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/SlpAus/pushup-tracker-backend/internal/chat"
	"github.com/SlpAus/pushup-tracker-backend/internal/record"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&DailyCount{}, &Approach{},
		&chat.Chat{}, &chat.ChatShare{},
		&record.UserRecord{},
	))
	return db
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *chat.Repository, *record.Repository) {
	t.Helper()
	db := newTestDB(t)
	chats := chat.NewRepository(db)
	records := record.NewRepository(db)
	return NewService(NewRepository(db), chats, records), db, chats, records
}

func TestRecordIncrementDualWrite(t *testing.T) {
	svc, db, _, records := newTestService(t)
	ctx := context.Background()

	count, err := svc.RecordIncrement(ctx, 10, 1, "2026-08-30", 20)
	require.NoError(t, err)
	require.Equal(t, 20, count)

	count, err = svc.RecordIncrement(ctx, 10, 1, "2026-08-30", 35)
	require.NoError(t, err)
	require.Equal(t, 55, count)

	var approaches []Approach
	require.NoError(t, db.Order("id ASC").Find(&approaches).Error)
	require.Len(t, approaches, 2)
	require.Equal(t, 20, approaches[0].Count)
	require.Equal(t, 35, approaches[1].Count)
	require.False(t, approaches[0].Migrated)

	rec, err := records.ByUser(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, 35, rec.MaxAdd)
	require.Equal(t, 55, rec.RecordCount)
	require.Equal(t, "2026-08-30", rec.RecordDate)
}

func TestRecordIncrementZeroDeltaRegistersAttendance(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	ctx := context.Background()

	count, err := svc.RecordIncrement(ctx, 10, 1, "2026-08-30", 0)
	require.NoError(t, err)
	require.Equal(t, 0, count)

	var rows []DailyCount
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, 0, rows[0].Count)

	var ledger int64
	require.NoError(t, db.Model(&Approach{}).Count(&ledger).Error)
	require.Zero(t, ledger)
}

func TestRecordIncrementOversizedDeltaSkipsLedger(t *testing.T) {
	svc, db, _, records := newTestService(t)
	ctx := context.Background()

	count, err := svc.RecordIncrement(ctx, 10, 1, "2026-08-30", 1500)
	require.NoError(t, err)
	require.Equal(t, 1500, count)

	var ledger int64
	require.NoError(t, db.Model(&Approach{}).Count(&ledger).Error)
	require.Zero(t, ledger)

	// 没进流水的增量也不参与最佳单组，否则全量重算会把它抹掉
	rec, err := records.ByUser(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Zero(t, rec.MaxAdd)
	require.Equal(t, 1500, rec.RecordCount)

	require.NoError(t, records.SyncUserRecord(ctx, 1))
	rec, err = records.ByUser(ctx, 1)
	require.NoError(t, err)
	require.Zero(t, rec.MaxAdd)
	require.Equal(t, 1500, rec.RecordCount)
}

func TestRecordIncrementRejectsNegativeDelta(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.RecordIncrement(context.Background(), 10, 1, "2026-08-30", -5)
	require.ErrorIs(t, err, ErrNegativeDelta)
}

func TestSharedWritesLandInCanonicalChat(t *testing.T) {
	svc, db, chats, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, chats.AddShare(ctx, 5, 1))
	require.NoError(t, chats.AddShare(ctx, 2, 1))

	// 在共享过的群聊写入，落到规范群聊
	_, err := svc.RecordIncrement(ctx, 5, 1, "2026-08-30", 10)
	require.NoError(t, err)

	var rows []DailyCount
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, int64(2), rows[0].ChatID)

	// 没共享进来的群聊照常写本地行
	_, err = svc.RecordIncrement(ctx, 9, 1, "2026-08-30", 5)
	require.NoError(t, err)

	var local DailyCount
	require.NoError(t, db.Where("chat_id = ?", 9).First(&local).Error)
	require.Equal(t, 5, local.Count)
}

func TestSetCountForDateBypassesLedger(t *testing.T) {
	svc, db, _, records := newTestService(t)
	ctx := context.Background()

	_, err := svc.RecordIncrement(ctx, 10, 1, "2026-08-30", 80)
	require.NoError(t, err)

	require.NoError(t, svc.SetCountForDate(ctx, 10, 1, "2026-08-30", 30))

	var row DailyCount
	require.NoError(t, db.First(&row).Error)
	require.Equal(t, 30, row.Count)

	// 修正不补流水也不删流水
	var ledger int64
	require.NoError(t, db.Model(&Approach{}).Count(&ledger).Error)
	require.Equal(t, int64(1), ledger)

	// 纪录被全量重算，允许变小
	rec, err := records.ByUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 30, rec.RecordCount)
	require.Equal(t, 80, rec.MaxAdd)
}

func TestInsertApproachesKeepsAggregateInSync(t *testing.T) {
	svc, db, _, records := newTestService(t)
	ctx := context.Background()

	err := svc.InsertApproaches(ctx, 1, []ApproachInput{
		{Date: "2026-08-29", Count: 25},
		{Date: "2026-08-29", Count: 30},
		{Date: "2026-08-30", Count: 40},
	})
	require.NoError(t, err)

	var rows []DailyCount
	require.NoError(t, db.Order("date ASC").Find(&rows).Error)
	require.Len(t, rows, 2)
	require.Equal(t, 55, rows[0].Count)
	require.Equal(t, 40, rows[1].Count)
	// 没有任何群聊上下文时落到私聊
	require.Equal(t, int64(1), rows[0].ChatID)

	rec, err := records.ByUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 40, rec.MaxAdd)
	require.Equal(t, 55, rec.RecordCount)
	require.Equal(t, "2026-08-29", rec.RecordDate)
}

func TestInsertApproachesPrefersMostRecentChat(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.RecordIncrement(ctx, 77, 1, "2026-08-28", 10)
	require.NoError(t, err)

	err = svc.InsertApproaches(ctx, 1, []ApproachInput{{Date: "2026-08-30", Count: 15}})
	require.NoError(t, err)

	var row DailyCount
	require.NoError(t, db.Where("date = ?", "2026-08-30").First(&row).Error)
	require.Equal(t, int64(77), row.ChatID)
}

func TestUpdateApproachAdjustsAggregate(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.RecordIncrement(ctx, 10, 1, "2026-08-30", 20)
	require.NoError(t, err)

	var a Approach
	require.NoError(t, db.First(&a).Error)

	require.NoError(t, svc.UpdateApproach(ctx, 1, a.ID, 35))

	var row DailyCount
	require.NoError(t, db.First(&row).Error)
	require.Equal(t, 35, row.Count)
}

func TestUpdateApproachOwnership(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.RecordIncrement(ctx, 10, 1, "2026-08-30", 20)
	require.NoError(t, err)
	var a Approach
	require.NoError(t, db.First(&a).Error)

	require.ErrorIs(t, svc.UpdateApproach(ctx, 2, a.ID, 30), ErrNotOwned)
	require.ErrorIs(t, svc.UpdateApproach(ctx, 1, a.ID+100, 30), ErrNotFound)
}

func TestDeleteApproachAdjustsAggregate(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.RecordIncrement(ctx, 10, 1, "2026-08-30", 20)
	require.NoError(t, err)
	_, err = svc.RecordIncrement(ctx, 10, 1, "2026-08-30", 30)
	require.NoError(t, err)

	var a Approach
	require.NoError(t, db.Where("count = ?", 20).First(&a).Error)
	require.NoError(t, svc.DeleteApproach(ctx, 1, a.ID))

	var row DailyCount
	require.NoError(t, db.First(&row).Error)
	require.Equal(t, 30, row.Count)

	var ledger int64
	require.NoError(t, db.Model(&Approach{}).Count(&ledger).Error)
	require.Equal(t, int64(1), ledger)
}

func TestDeleteApproachAfterShareChangeDrainsOriginalRow(t *testing.T) {
	svc, db, chats, _ := newTestService(t)
	ctx := context.Background()

	// 未共享时写在本群，之后共享关系改变，规范群聊解析到别处
	_, err := svc.RecordIncrement(ctx, 10, 1, "2026-08-30", 20)
	require.NoError(t, err)
	require.NoError(t, chats.AddShare(ctx, 2, 1))

	var a Approach
	require.NoError(t, db.First(&a).Error)
	require.NoError(t, svc.DeleteApproach(ctx, 1, a.ID))

	// 扣减落在实际持有计数的行上，不会凭空多出一条负数行
	var rows []DailyCount
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, int64(10), rows[0].ChatID)
	require.Zero(t, rows[0].Count)

	require.NoError(t, chats.RemoveShare(ctx, 2, 1))
	entries, err := svc.StatusByDate(ctx, 2, "2026-08-30")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestUpdateApproachDecreaseAfterShareChange(t *testing.T) {
	svc, db, chats, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.RecordIncrement(ctx, 10, 1, "2026-08-30", 20)
	require.NoError(t, err)
	require.NoError(t, chats.AddShare(ctx, 2, 1))

	var a Approach
	require.NoError(t, db.First(&a).Error)
	require.NoError(t, svc.UpdateApproach(ctx, 1, a.ID, 5))

	var rows []DailyCount
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, int64(10), rows[0].ChatID)
	require.Equal(t, 5, rows[0].Count)
}

func TestDeleteApproachSpansMultipleRows(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	ctx := context.Background()

	// 同一天的计数散落在两个群聊里，扣减跨行进行且每行不低于0
	_, err := svc.RecordIncrement(ctx, 10, 1, "2026-08-30", 15)
	require.NoError(t, err)
	_, err = svc.RecordIncrement(ctx, 9, 1, "2026-08-30", 5)
	require.NoError(t, err)

	require.NoError(t, db.Where("date = ?", "2026-08-30").Delete(&Approach{}).Error)
	require.NoError(t, InsertApproach(db, 1, "2026-08-30", 18, false))

	var a Approach
	require.NoError(t, db.First(&a).Error)
	require.NoError(t, svc.DeleteApproach(ctx, 1, a.ID))

	var rows []DailyCount
	require.NoError(t, db.Order("chat_id ASC").Find(&rows).Error)
	require.Len(t, rows, 2)
	for _, row := range rows {
		require.GreaterOrEqual(t, row.Count, 0)
	}
	var total int
	for _, row := range rows {
		total += row.Count
	}
	require.Equal(t, 2, total)
}

func TestStatusByDateOrderingAndSharing(t *testing.T) {
	svc, _, chats, _ := newTestService(t)
	ctx := context.Background()

	// 用户3共享进群10和群20，写入落到规范群10
	require.NoError(t, chats.AddShare(ctx, 10, 3))
	require.NoError(t, chats.AddShare(ctx, 20, 3))

	_, err := svc.RecordIncrement(ctx, 10, 1, "2026-08-30", 50)
	require.NoError(t, err)
	_, err = svc.RecordIncrement(ctx, 10, 2, "2026-08-30", 50)
	require.NoError(t, err)
	_, err = svc.RecordIncrement(ctx, 20, 3, "2026-08-30", 70)
	require.NoError(t, err)

	// 群20的看板：共享用户3展示跨群总数
	entries, err := svc.StatusByDate(ctx, 20, "2026-08-30")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, int64(3), entries[0].UserID)
	require.Equal(t, 70, entries[0].Total)
	require.True(t, entries[0].Shared)

	// 群10的看板：并列的按user_id升序
	entries, err = svc.StatusByDate(ctx, 10, "2026-08-30")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, int64(3), entries[0].UserID)
	require.Equal(t, int64(1), entries[1].UserID)
	require.Equal(t, int64(2), entries[2].UserID)
}

func TestStatusByDateKeepsZeroRows(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.RecordIncrement(ctx, 10, 1, "2026-08-30", 0)
	require.NoError(t, err)

	entries, err := svc.StatusByDate(ctx, 10, "2026-08-30")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, 0, entries[0].Total)
}

func TestHistoryByUserSharedVsLocal(t *testing.T) {
	svc, _, chats, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.RecordIncrement(ctx, 10, 1, "2026-08-29", 10)
	require.NoError(t, err)
	_, err = svc.RecordIncrement(ctx, 20, 1, "2026-08-30", 15)
	require.NoError(t, err)

	// 未共享：只看本群
	history, err := svc.HistoryByUser(ctx, 10, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "2026-08-29", history[0].Date)

	// 共享进群10之后：跨群口径
	require.NoError(t, chats.AddShare(ctx, 10, 1))
	history, err = svc.HistoryByUser(ctx, 10, 1)
	require.NoError(t, err)
	require.Len(t, history, 2)
}

func TestHistorySharedChatsAreEquivalent(t *testing.T) {
	svc, _, chats, _ := newTestService(t)
	ctx := context.Background()

	// 有老数据的用户再开启共享：两个群聊看到完全一致的历史
	_, err := svc.RecordIncrement(ctx, 10, 1, "2026-08-28", 10)
	require.NoError(t, err)
	_, err = svc.RecordIncrement(ctx, 20, 1, "2026-08-29", 15)
	require.NoError(t, err)

	require.NoError(t, chats.AddShare(ctx, 10, 1))
	require.NoError(t, chats.AddShare(ctx, 20, 1))

	fromA, err := svc.HistoryByUser(ctx, 10, 1)
	require.NoError(t, err)
	fromB, err := svc.HistoryByUser(ctx, 20, 1)
	require.NoError(t, err)
	require.Equal(t, fromA, fromB)
	require.Len(t, fromA, 2)
}

func TestHasReachedFiresOncePerCrossing(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.RecordIncrement(ctx, 10, 1, "2026-08-30", 60)
	require.NoError(t, err)
	reached, err := svc.HasReached(ctx, 10, 1, "2026-08-30", 100)
	require.NoError(t, err)
	require.False(t, reached)

	_, err = svc.RecordIncrement(ctx, 10, 1, "2026-08-30", 50)
	require.NoError(t, err)
	reached, err = svc.HasReached(ctx, 10, 1, "2026-08-30", 100)
	require.NoError(t, err)
	require.True(t, reached)

	// 跨过阈值只发生在一次写入上：之前不满足，之后总数-增量已经达标
	total, err := svc.DayTotal(ctx, 10, 1, "2026-08-30")
	require.NoError(t, err)
	require.Equal(t, 110, total)
}

func TestCrossedThresholdFiresOnce(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.RecordIncrement(ctx, 10, 1, "2026-08-30", 60)
	require.NoError(t, err)
	crossed, err := svc.CrossedThreshold(ctx, 10, 1, "2026-08-30", 60, 100)
	require.NoError(t, err)
	require.False(t, crossed)

	// 把总数推过100的那次写入算跨过
	_, err = svc.RecordIncrement(ctx, 10, 1, "2026-08-30", 50)
	require.NoError(t, err)
	crossed, err = svc.CrossedThreshold(ctx, 10, 1, "2026-08-30", 50, 100)
	require.NoError(t, err)
	require.True(t, crossed)

	// 之后的写入不再算
	_, err = svc.RecordIncrement(ctx, 10, 1, "2026-08-30", 10)
	require.NoError(t, err)
	crossed, err = svc.CrossedThreshold(ctx, 10, 1, "2026-08-30", 10, 100)
	require.NoError(t, err)
	require.False(t, crossed)

	crossed, err = svc.CrossedThreshold(ctx, 10, 1, "2026-08-30", 0, 100)
	require.NoError(t, err)
	require.False(t, crossed)
}
