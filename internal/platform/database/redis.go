package database

import (
	"context"
	"fmt"
	"time"

	"github.com/SlpAus/pushup-tracker-backend/internal/platform/config"
	"github.com/redis/go-redis/v9"
)

// OpenRedis 初始化与Redis的连接并返回客户端
// Redis在本项目中只承载限流窗口这类有过期时间的辅助状态；
// 未启用时返回nil，调用方必须把nil客户端视为"限流关闭"
func OpenRedis(cfg config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		fmt.Println("Redis未启用，限流功能关闭。")
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 使用Ping命令来测试连接是否成功
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("无法连接到Redis: %w", err)
	}

	fmt.Println("Redis 连接成功！")
	return rdb, nil
}
