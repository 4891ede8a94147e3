package record

import "time"

// UserRecord 个人最佳纪录，一个用户一行
// max_add是单组最多次数，record_count是单日最多次数
// record_date是第一次打出record_count的那天，追平不更新
type UserRecord struct {
	UserID      int64  `gorm:"primaryKey;autoIncrement:false"`
	MaxAdd      int    `gorm:"not null;default:0"`
	RecordCount int    `gorm:"not null;default:0"`
	RecordDate  string `gorm:"type:varchar(10)"`
	UpdatedAt   time.Time
}

func (UserRecord) TableName() string {
	return "user_records"
}
