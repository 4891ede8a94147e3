package workout

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository 封装daily_counts与approaches两张表的读写
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// DB 暴露底层句柄，service层用它开事务
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// IncrementDailyCount 原子累加一条聚合行并返回累加后的值
// 自增发生在数据库端（count = count + excluded.count），并发安全
func IncrementDailyCount(tx *gorm.DB, chatID, userID int64, date string, delta int) (int, error) {
	row := DailyCount{
		ChatID:    chatID,
		UserID:    userID,
		Date:      date,
		Count:     delta,
		UpdatedAt: time.Now(),
	}
	err := tx.Clauses(
		clause.OnConflict{
			Columns: []clause.Column{{Name: "chat_id"}, {Name: "user_id"}, {Name: "date"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"count":      gorm.Expr("daily_counts.count + excluded.count"),
				"updated_at": time.Now(),
			}),
		},
		clause.Returning{Columns: []clause.Column{{Name: "count"}}},
	).Create(&row).Error
	if err != nil {
		return 0, err
	}
	return row.Count, nil
}

// DecrementDailyCount 从该用户当天已有的聚合行里扣除amount
// 流水插入后共享关系可能变过，扣减必须落在实际持有计数的行上
// 按count从大到小逐行扣，每行下限为0，绝不新建行也绝不产生负值
func DecrementDailyCount(tx *gorm.DB, userID int64, date string, amount int) error {
	if amount <= 0 {
		return nil
	}
	var rows []DailyCount
	err := tx.Where("user_id = ? AND date = ?", userID, date).
		Order("count DESC, chat_id ASC").Find(&rows).Error
	if err != nil {
		return err
	}
	remaining := amount
	for _, row := range rows {
		if remaining == 0 {
			break
		}
		take := row.Count
		if take > remaining {
			take = remaining
		}
		if take <= 0 {
			continue
		}
		err = tx.Model(&DailyCount{}).
			Where("chat_id = ? AND user_id = ? AND date = ?", row.ChatID, userID, date).
			Updates(map[string]interface{}{
				"count":      gorm.Expr("count - ?", take),
				"updated_at": time.Now(),
			}).Error
		if err != nil {
			return err
		}
		remaining -= take
	}
	return nil
}

// ReplaceDailyCount 把聚合行覆盖为指定值：先删后插
// 修正路径专用，流水表不动
func ReplaceDailyCount(tx *gorm.DB, chatID, userID int64, date string, count int) error {
	err := tx.Where("chat_id = ? AND user_id = ? AND date = ?", chatID, userID, date).
		Delete(&DailyCount{}).Error
	if err != nil {
		return err
	}
	row := DailyCount{
		ChatID:    chatID,
		UserID:    userID,
		Date:      date,
		Count:     count,
		UpdatedAt: time.Now(),
	}
	return tx.Create(&row).Error
}

// InsertApproach 追加一条流水
func InsertApproach(tx *gorm.DB, userID int64, date string, count int, migrated bool) error {
	a := Approach{
		UserID:    userID,
		Date:      date,
		Count:     count,
		Migrated:  migrated,
		CreatedAt: time.Now(),
	}
	return tx.Create(&a).Error
}

// StatusRows 某群聊某天的全部聚合行
func (r *Repository) StatusRows(ctx context.Context, chatID int64, date string) ([]DailyCount, error) {
	var rows []DailyCount
	err := r.db.WithContext(ctx).
		Where("chat_id = ? AND date = ?", chatID, date).
		Find(&rows).Error
	return rows, err
}

// SumForUserDate 某用户某天跨所有群聊的总次数
// 共享用户的口径：一天一个总数，不论写进了哪个群聊
func (r *Repository) SumForUserDate(ctx context.Context, userID int64, date string) (int, bool, error) {
	var result struct {
		Total *int
	}
	err := r.db.WithContext(ctx).Model(&DailyCount{}).
		Select("SUM(count) AS total").
		Where("user_id = ? AND date = ?", userID, date).
		Scan(&result).Error
	if err != nil {
		return 0, false, err
	}
	if result.Total == nil {
		return 0, false, nil
	}
	return *result.Total, true, nil
}

// LocalCount 某用户在某群聊某天的聚合值
func (r *Repository) LocalCount(ctx context.Context, chatID, userID int64, date string) (int, bool, error) {
	var row DailyCount
	err := r.db.WithContext(ctx).
		Where("chat_id = ? AND user_id = ? AND date = ?", chatID, userID, date).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return row.Count, true, nil
}

// DateTotal 每日汇总的一行
type DateTotal struct {
	Date  string `json:"date"`
	Total int    `json:"total"`
}

// HistoryLocal 某用户在单个群聊的逐日历史
func (r *Repository) HistoryLocal(ctx context.Context, chatID, userID int64) ([]DateTotal, error) {
	var rows []DateTotal
	err := r.db.WithContext(ctx).Model(&DailyCount{}).
		Select("date, count AS total").
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Order("date ASC").
		Scan(&rows).Error
	return rows, err
}

// HistoryShared 某用户跨所有群聊按天求和的历史
func (r *Repository) HistoryShared(ctx context.Context, userID int64) ([]DateTotal, error) {
	var rows []DateTotal
	err := r.db.WithContext(ctx).Model(&DailyCount{}).
		Select("date, SUM(count) AS total").
		Where("user_id = ?", userID).
		Group("date").
		Order("date ASC").
		Scan(&rows).Error
	return rows, err
}

// LedgerTotalForDate 某用户某天的流水总和，v2口径的当日总数
func (r *Repository) LedgerTotalForDate(ctx context.Context, userID int64, date string) (int, error) {
	var result struct {
		Total *int
	}
	err := r.db.WithContext(ctx).Model(&Approach{}).
		Select("SUM(count) AS total").
		Where("user_id = ? AND date = ?", userID, date).
		Scan(&result).Error
	if err != nil {
		return 0, err
	}
	if result.Total == nil {
		return 0, nil
	}
	return *result.Total, nil
}

// LedgerHistory 从流水表按天求和的历史，v2接口使用
func (r *Repository) LedgerHistory(ctx context.Context, userID int64, from, to string) ([]DateTotal, error) {
	var rows []DateTotal
	err := r.db.WithContext(ctx).Model(&Approach{}).
		Select("date, SUM(count) AS total").
		Where("user_id = ? AND date >= ? AND date <= ?", userID, from, to).
		Group("date").
		Order("date ASC").
		Scan(&rows).Error
	return rows, err
}

// ApproachesInRange 某用户在日期区间内的全部流水，按date、id排序
func (r *Repository) ApproachesInRange(ctx context.Context, userID int64, from, to string) ([]Approach, error) {
	var rows []Approach
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND date >= ? AND date <= ?", userID, from, to).
		Order("date ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

// ApproachByID 按主键取一条流水，找不到时返回nil
func (r *Repository) ApproachByID(ctx context.Context, id uint) (*Approach, error) {
	var row Approach
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// MostRecentChat 该用户最近写过聚合行的群聊
// v2无群聊上下文的写入用它兜底
func (r *Repository) MostRecentChat(ctx context.Context, userID int64) (int64, bool, error) {
	var row DailyCount
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return row.ChatID, true, nil
}
