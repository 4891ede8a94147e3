package workout

import "gorm.io/gorm"

// CopyDailyCountsToApproaches 把既有的正数聚合行回填进流水表
// 每行生成一条migrated=true的流水，次数截断到单组上限
// 只注册成具名数据迁移跑一次，幂等性由迁移标记保证
func CopyDailyCountsToApproaches(tx *gorm.DB) error {
	return tx.Exec(`
		INSERT INTO approaches (user_id, date, count, migrated, created_at)
		SELECT user_id, date,
		       CASE WHEN count > ? THEN ? ELSE count END,
		       ?, updated_at
		FROM daily_counts
		WHERE count > 0`,
		MaxApproachCount, MaxApproachCount, true,
	).Error
}
