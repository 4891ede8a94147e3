package migrate

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db
}

type counter struct {
	ID    uint `gorm:"primaryKey"`
	Value int
}

func TestApplyRunsMigrationsOnce(t *testing.T) {
	db := newTestDB(t)
	runs := 0
	schema := func(db *gorm.DB) error {
		return db.AutoMigrate(&counter{})
	}
	migrations := []Migration{{
		Name: "seed_counter",
		Run: func(tx *gorm.DB) error {
			runs++
			return tx.Create(&counter{Value: 1}).Error
		},
	}}

	require.NoError(t, Apply(db, schema, migrations))
	require.NoError(t, Apply(db, schema, migrations))
	require.Equal(t, 1, runs)

	var flags []MigrationFlag
	require.NoError(t, db.Find(&flags).Error)
	require.Len(t, flags, 1)
	require.Equal(t, "seed_counter", flags[0].Name)
}

func TestApplyRunsMigrationsInOrder(t *testing.T) {
	db := newTestDB(t)
	var order []string
	schema := func(db *gorm.DB) error { return nil }
	migrations := []Migration{
		{Name: "first", Run: func(tx *gorm.DB) error {
			order = append(order, "first")
			return nil
		}},
		{Name: "second", Run: func(tx *gorm.DB) error {
			order = append(order, "second")
			return nil
		}},
	}

	require.NoError(t, Apply(db, schema, migrations))
	require.Equal(t, []string{"first", "second"}, order)
}

func TestApplyRollsBackFailedMigration(t *testing.T) {
	db := newTestDB(t)
	boom := errors.New("boom")
	schema := func(db *gorm.DB) error {
		return db.AutoMigrate(&counter{})
	}
	failing := []Migration{{
		Name: "explodes",
		Run: func(tx *gorm.DB) error {
			if err := tx.Create(&counter{Value: 1}).Error; err != nil {
				return err
			}
			return boom
		},
	}}

	err := Apply(db, schema, failing)
	require.ErrorIs(t, err, boom)

	// 标记和数据一起回滚，修好之后还能重跑
	var flags int64
	require.NoError(t, db.Model(&MigrationFlag{}).Count(&flags).Error)
	require.Zero(t, flags)
	var rows int64
	require.NoError(t, db.Model(&counter{}).Count(&rows).Error)
	require.Zero(t, rows)

	fixed := []Migration{{
		Name: "explodes",
		Run: func(tx *gorm.DB) error {
			return tx.Create(&counter{Value: 1}).Error
		},
	}}
	require.NoError(t, Apply(db, schema, fixed))
	require.NoError(t, db.Model(&counter{}).Count(&rows).Error)
	require.Equal(t, int64(1), rows)
}

func TestLockNameKeyIsStable(t *testing.T) {
	require.Equal(t, SchemaMigrationLock.Key(), SchemaMigrationLock.Key())
	require.NotEqual(t, LockName("a").Key(), LockName("b").Key())
}

func TestTableLockBlocksSecondOwner(t *testing.T) {
	db := newTestDB(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- WithLock(db, "test-lock", func() error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	// 第一个持有者未释放前，锁行插入必然冲突
	var count int64
	require.NoError(t, db.Model(&SchemaLock{}).Where("name = ?", "test-lock").Count(&count).Error)
	require.Equal(t, int64(1), count)

	close(release)
	require.NoError(t, <-done)

	// 释放后锁行应当消失，后续持有者可以直接进入
	require.NoError(t, WithLock(db, "test-lock", func() error { return nil }))
}
