package user

import (
	"fmt"
	"strings"
	"time"
)

// User 定义了Telegram用户在数据库中的持久化模型
// 用户只增不删：每次观察到的交互都会刷新资料字段
type User struct {
	// UserID 是Telegram分配的稳定外部标识，直接作为主键
	UserID int64 `gorm:"primarykey" json:"user_id"`

	// 以下资料字段都可能为空，取决于用户在Telegram中的设置
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`

	UpdatedAt time.Time `json:"-"`
}

// DisplayName 按 username → 姓名 → "User <id>" 的顺序挑选展示名
func (u User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	parts := make([]string, 0, 2)
	if u.FirstName != "" {
		parts = append(parts, u.FirstName)
	}
	if u.LastName != "" {
		parts = append(parts, u.LastName)
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}
	return fmt.Sprintf("User %d", u.UserID)
}
