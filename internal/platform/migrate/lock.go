package migrate

import (
	"fmt"
	"hash/fnv"
	"time"

	"github.com/SlpAus/pushup-tracker-backend/internal/platform/database"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LockName 是进程间互斥锁的命名类型
// 用字符串命名让锁的用途自解释，数值键由哈希派生，避免手抄魔法数字
type LockName string

// SchemaMigrationLock 是迁移/DDL阶段唯一使用的锁
// 稳态读写流量完全依赖数据库的行级原子性，不经过这里
const SchemaMigrationLock LockName = "pushups:schema-migration"

// Key 把锁名确定性地映射为advisory lock使用的64位键
func (n LockName) Key() int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(n))
	return int64(h.Sum64())
}

const (
	lockAcquireTimeout = 30 * time.Second
	lockRetryInterval  = 250 * time.Millisecond
	// staleLockAge 之前崩溃的实例留下的锁行超过该年龄即视为失效
	staleLockAge = 5 * time.Minute
)

// withAdvisoryLock 在PostgreSQL会话级advisory lock的保护下执行fn
// 锁和解锁必须发生在同一条连接上，因此整个过程包在Connection回调里；
// 解锁放在defer中，即使fn失败也不会把锁滞留给后续实例
func withAdvisoryLock(db *gorm.DB, name LockName, fn func() error) error {
	return db.Connection(func(conn *gorm.DB) error {
		if err := conn.Exec("SELECT pg_advisory_lock(?)", name.Key()).Error; err != nil {
			return fmt.Errorf("获取advisory lock %q 失败: %w", name, err)
		}
		defer func() {
			if err := conn.Exec("SELECT pg_advisory_unlock(?)", name.Key()).Error; err != nil {
				fmt.Printf("警告: 释放advisory lock %q 失败: %v\n", name, err)
			}
		}()
		return fn()
	})
}

// withTableLock 是sqlite方言下的命名锁实现：向锁表插入带属主的行
// 行插入因唯一键冲突失败则轮询等待；过期的残留行会被接管
func withTableLock(db *gorm.DB, name LockName, fn func() error) error {
	if err := db.AutoMigrate(&SchemaLock{}); err != nil {
		return fmt.Errorf("无法准备锁表: %w", err)
	}

	owner := uuid.NewString()
	deadline := time.Now().Add(lockAcquireTimeout)
	for {
		res := db.Create(&SchemaLock{Name: string(name), Owner: owner, AcquiredAt: time.Now()})
		if res.Error == nil {
			break
		}

		// 清理崩溃实例留下的过期锁行后重试
		db.Where("name = ? AND acquired_at < ?", string(name), time.Now().Add(-staleLockAge)).
			Delete(&SchemaLock{})

		if time.Now().After(deadline) {
			return fmt.Errorf("等待锁 %q 超时: %w", name, res.Error)
		}
		time.Sleep(lockRetryInterval)
	}

	defer func() {
		if err := db.Where("name = ? AND owner = ?", string(name), owner).
			Delete(&SchemaLock{}).Error; err != nil {
			fmt.Printf("警告: 释放锁 %q 失败: %v\n", name, err)
		}
	}()
	return fn()
}

// WithLock 按方言选择锁实现，在锁的保护下执行fn
func WithLock(db *gorm.DB, name LockName, fn func() error) error {
	if database.IsPostgres(db) {
		return withAdvisoryLock(db, name, fn)
	}
	return withTableLock(db, name, fn)
}
