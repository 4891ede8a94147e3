package workout

import "time"

// DailyCount 每日聚合行：某用户在某群聊某天的累计次数
// 主键是 (chat_id, user_id, date)，date为YYYY-MM-DD字符串
// count为0表示打卡但没有计次，这种行照常保留
type DailyCount struct {
	ChatID    int64  `gorm:"primaryKey;autoIncrement:false"`
	UserID    int64  `gorm:"primaryKey;autoIncrement:false"`
	Date      string `gorm:"primaryKey;type:varchar(10)"`
	Count     int    `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

func (DailyCount) TableName() string {
	return "daily_counts"
}

// Approach 一组动作的流水记录，只追加
// 修正（set）路径不会写这张表，所以流水之和允许小于聚合值
// migrated标记从老聚合表回填的行，统计最佳单组时要排除
type Approach struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    int64  `gorm:"not null;index:idx_approach_user_date,priority:1"`
	Date      string `gorm:"not null;type:varchar(10);index:idx_approach_user_date,priority:2"`
	Count     int    `gorm:"not null;check:count > 0 AND count <= 1000"`
	Migrated  bool   `gorm:"not null;default:false"`
	CreatedAt time.Time
}

func (Approach) TableName() string {
	return "approaches"
}
