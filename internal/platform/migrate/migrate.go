package migrate

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Migration 是一个具名的一次性数据迁移
// Run 在一个已开启的事务中被调用；事务同时包含标记行的写入
type Migration struct {
	Name string
	Run  func(tx *gorm.DB) error
}

// Apply 是启动期迁移的总入口，必须在任何业务模块工作之前执行完毕
// 在命名锁的保护下依次完成：幂等DDL（schema回调）、按序执行尚未
// 标记过的具名数据迁移。任何一步失败都应让进程启动失败，
// 绝不在可疑的表结构上继续服务
func Apply(db *gorm.DB, schema func(db *gorm.DB) error, migrations []Migration) error {
	return WithLock(db, SchemaMigrationLock, func() error {
		// 1. 标记表自身的DDL也要先就位
		if err := db.AutoMigrate(&MigrationFlag{}); err != nil {
			return fmt.Errorf("无法迁移migration_flags表: %w", err)
		}

		// 2. 幂等DDL：建表、建索引、补列
		if err := schema(db); err != nil {
			return fmt.Errorf("执行表结构迁移失败: %w", err)
		}

		// 3. 具名数据迁移，至多一次
		for _, m := range migrations {
			applied, err := hasFlag(db, m.Name)
			if err != nil {
				return err
			}
			if applied {
				continue
			}

			fmt.Printf("正在执行数据迁移 [%s] ...\n", m.Name)
			err = db.Transaction(func(tx *gorm.DB) error {
				// 先插标记再干活：崩溃时二者一起回滚，语义是至多一次
				flag := MigrationFlag{Name: m.Name, AppliedAt: time.Now()}
				if err := tx.Create(&flag).Error; err != nil {
					return fmt.Errorf("写入迁移标记失败: %w", err)
				}
				return m.Run(tx)
			})
			if err != nil {
				return fmt.Errorf("数据迁移 [%s] 失败: %w", m.Name, err)
			}
			fmt.Printf("数据迁移 [%s] 完成。\n", m.Name)
		}

		return nil
	})
}

// hasFlag 检查具名迁移是否已经提交过
func hasFlag(db *gorm.DB, name string) (bool, error) {
	var flag MigrationFlag
	err := db.Where("name = ?", name).First(&flag).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("查询迁移标记 %q 失败: %w", name, err)
	}
	return true, nil
}
