package database

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/SlpAus/pushup-tracker-backend/internal/platform/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenDB 根据配置建立数据库连接并返回句柄
// 连接句柄由进程引导代码持有，并在构造各个模块时显式注入，
// 不再以包级全局变量的形式共享
func OpenDB(cfg config.DatabaseConfig) (*gorm.DB, error) {
	// GORM日志配置
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: 0,
			LogLevel:      logger.Silent, // 在生产环境中保持Silent
			Colorful:      true,
		},
	)

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		if dir := filepath.Dir(cfg.SqlitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("无法创建sqlite数据目录: %w", err)
			}
		}
		dialector = sqlite.Open(cfg.SqlitePath)
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	fmt.Println("数据库连接成功！")
	return db, nil
}

// IsPostgres 判断句柄背后是否为PostgreSQL
// 少数需要方言分支的SQL（GREATEST/advisory lock）据此选择写法
func IsPostgres(db *gorm.DB) bool {
	return db.Dialector.Name() == "postgres"
}
