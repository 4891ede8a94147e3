package migrate

import "time"

// MigrationFlag 是一次性数据迁移的幂等标记
// 标记行与迁移本身在同一个事务中写入，因此迁移要么连同标记一起提交，
// 要么连同标记一起回滚，不存在"标记在、数据不在"的中间态
type MigrationFlag struct {
	Name      string    `gorm:"primarykey;type:varchar(255)"`
	AppliedAt time.Time `gorm:"not null"`
}

// SchemaLock 是sqlite方言下命名锁的落地形式
// PostgreSQL方言下不使用该表，改用advisory lock
type SchemaLock struct {
	Name       string    `gorm:"primarykey;type:varchar(255)"`
	Owner      string    `gorm:"type:varchar(36);not null"`
	AcquiredAt time.Time `gorm:"not null"`
}
