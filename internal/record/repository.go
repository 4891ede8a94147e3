package record

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SlpAus/pushup-tracker-backend/internal/platform/database"
)

// Repository 维护user_records表
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// UpdateRecord 单调合并一次写入产生的候选值
// 合并在数据库端完成，并发写入不会把纪录改小
// record_date只在严格打破纪录时更新，追平保留更早的日期
func (r *Repository) UpdateRecord(ctx context.Context, userID int64, addCandidate int, dayTotal int, date string) error {
	row := UserRecord{
		UserID:      userID,
		MaxAdd:      addCandidate,
		RecordCount: dayTotal,
		RecordDate:  date,
		UpdatedAt:   time.Now(),
	}

	// sqlite的双参MAX等价于postgres的GREATEST
	maxFn := "MAX"
	if database.IsPostgres(r.db) {
		maxFn = "GREATEST"
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"max_add": gorm.Expr(fmt.Sprintf("%s(user_records.max_add, excluded.max_add)", maxFn)),
			"record_date": gorm.Expr(
				"CASE WHEN excluded.record_count > user_records.record_count THEN excluded.record_date ELSE user_records.record_date END"),
			"record_count": gorm.Expr(fmt.Sprintf("%s(user_records.record_count, excluded.record_count)", maxFn)),
			"updated_at":   time.Now(),
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("无法合并纪录 user=%d: %w", userID, err)
	}
	return nil
}

// SyncUserRecord 从底层数据全量重算一个用户的纪录并覆盖
// 修正路径之后调用，结果可能比原纪录小
func (r *Repository) SyncUserRecord(ctx context.Context, userID int64) error {
	return recomputeRecord(r.db.WithContext(ctx), userID)
}

func recomputeRecord(tx *gorm.DB, userID int64) error {
	var best struct {
		Date  string
		Total int
	}
	err := tx.Table("daily_counts").
		Select("date, SUM(count) AS total").
		Where("user_id = ?", userID).
		Group("date").
		Order("total DESC").
		Order("date ASC").
		Limit(1).
		Scan(&best).Error
	if err != nil {
		return err
	}

	// 回填的流水不参与单组纪录
	var maxAdd struct {
		Value *int
	}
	err = tx.Table("approaches").
		Select("MAX(count) AS value").
		Where("user_id = ? AND migrated = ?", userID, false).
		Scan(&maxAdd).Error
	if err != nil {
		return err
	}

	row := UserRecord{
		UserID:      userID,
		RecordCount: best.Total,
		RecordDate:  best.Date,
		UpdatedAt:   time.Now(),
	}
	if maxAdd.Value != nil {
		row.MaxAdd = *maxAdd.Value
	}
	err = tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"max_add", "record_count", "record_date", "updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("无法重算纪录 user=%d: %w", userID, err)
	}
	return nil
}

// ByUser 取一个用户的纪录，没有时返回nil
func (r *Repository) ByUser(ctx context.Context, userID int64) (*UserRecord, error) {
	var row UserRecord
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// ByChat 某群聊的纪录榜
// 入榜范围是本群写过聚合行的用户加上共享进本群的用户
// 排序：record_count降序，相同时user_id升序
func (r *Repository) ByChat(ctx context.Context, chatID int64) ([]UserRecord, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Table("daily_counts").
		Distinct("user_id").
		Where("chat_id = ?", chatID).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	var sharedIDs []int64
	err = r.db.WithContext(ctx).Table("chat_shares").
		Where("chat_id = ?", chatID).
		Pluck("user_id", &sharedIDs).Error
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]bool, len(ids)+len(sharedIDs))
	for _, id := range ids {
		seen[id] = true
	}
	for _, id := range sharedIDs {
		if !seen[id] {
			ids = append(ids, id)
			seen[id] = true
		}
	}
	if len(ids) == 0 {
		return []UserRecord{}, nil
	}

	var rows []UserRecord
	err = r.db.WithContext(ctx).
		Where("user_id IN ?", ids).
		Order("record_count DESC").
		Order("user_id ASC").
		Find(&rows).Error
	return rows, err
}

// BackfillUserRecords 为已有聚合数据的用户生成纪录行
// 注册成具名数据迁移，只跑一次
func BackfillUserRecords(tx *gorm.DB) error {
	var ids []int64
	err := tx.Table("daily_counts").Distinct("user_id").Pluck("user_id", &ids).Error
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := recomputeRecord(tx, id); err != nil {
			return err
		}
	}
	return nil
}
