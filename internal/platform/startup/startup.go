package startup

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/SlpAus/pushup-tracker-backend/internal/chat"
	"github.com/SlpAus/pushup-tracker-backend/internal/platform/migrate"
	"github.com/SlpAus/pushup-tracker-backend/internal/record"
	"github.com/SlpAus/pushup-tracker-backend/internal/user"
	"github.com/SlpAus/pushup-tracker-backend/internal/workout"
)

// InitializeDatabase 启动期的表结构与数据迁移，失败时进程不应继续启动
func InitializeDatabase(db *gorm.DB) error {
	schema := func(db *gorm.DB) error {
		return db.AutoMigrate(
			&user.User{},
			&chat.Chat{},
			&chat.ChatShare{},
			&chat.ApiToken{},
			&workout.DailyCount{},
			&workout.Approach{},
			&record.UserRecord{},
		)
	}

	migrations := []migrate.Migration{
		{Name: "backfill_user_records", Run: record.BackfillUserRecords},
		{Name: "copy_daily_counts_to_approaches", Run: workout.CopyDailyCountsToApproaches},
	}

	if err := migrate.Apply(db, schema, migrations); err != nil {
		return fmt.Errorf("数据库初始化失败: %w", err)
	}
	fmt.Println("数据库初始化完成。")
	return nil
}
