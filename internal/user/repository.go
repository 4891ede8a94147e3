package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository 封装users表的读写
// 数据库句柄在构造时注入，生命周期由进程引导代码负责
type Repository struct {
	db *gorm.DB
}

// NewRepository 创建一个user仓库
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// keepNonEmpty 生成"新值非空才覆盖"的赋值表达式
// 资料字段是可选的，一次没带资料的观察不应抹掉已有的值
func keepNonEmpty(column string) clause.Assignment {
	return clause.Assignment{
		Column: clause.Column{Name: column},
		Value: gorm.Expr(
			fmt.Sprintf("CASE WHEN excluded.%s <> '' THEN excluded.%s ELSE users.%s END",
				column, column, column),
		),
	}
}

// Upsert 写入或刷新一个用户的资料，幂等
// 每个资料字段只在新观察值非空时才覆盖
func (r *Repository) Upsert(ctx context.Context, u User) error {
	if u.UserID == 0 {
		return nil
	}
	u.UpdatedAt = time.Now()
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Set{
			keepNonEmpty("username"),
			keepNonEmpty("first_name"),
			keepNonEmpty("last_name"),
			{Column: clause.Column{Name: "updated_at"}, Value: u.UpdatedAt},
		},
	}).Create(&u).Error
	if err != nil {
		return fmt.Errorf("无法写入用户 %d: %w", u.UserID, err)
	}
	return nil
}

// UpsertLite 只用v2鉴权能拿到的字段刷新用户，不覆盖姓名
// WebApp的initData里只有id和username
func (r *Repository) UpsertLite(ctx context.Context, userID int64, username string) error {
	if userID == 0 {
		return nil
	}
	u := User{UserID: userID, Username: username, UpdatedAt: time.Now()}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Set{
			keepNonEmpty("username"),
			{Column: clause.Column{Name: "updated_at"}, Value: u.UpdatedAt},
		},
	}).Create(&u).Error
	if err != nil {
		return fmt.Errorf("无法写入用户 %d: %w", userID, err)
	}
	return nil
}

// ByID 按主键查找用户，找不到时返回nil而不是错误
func (r *Repository) ByID(ctx context.Context, userID int64) (*User, error) {
	var u User
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// ByIDs 批量取回一组用户，返回 user_id → User 的映射
// 读聚合器用它一次性补齐展示名
func (r *Repository) ByIDs(ctx context.Context, userIDs []int64) (map[int64]User, error) {
	result := make(map[int64]User, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}
	var users []User
	if err := r.db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		result[u.UserID] = u
	}
	return result, nil
}
