package chat

import "time"

// Chat 群聊元数据，由bot侧在见到群聊时刷新
type Chat struct {
	ChatID    int64  `gorm:"primaryKey"`
	Title     string `gorm:"type:varchar(255)"`
	Type      string `gorm:"type:varchar(32)"`
	UpdatedAt time.Time
}

// ChatShare 共享关系：一个用户在某个群聊里开启了跨群身份共享
// (chat_id, user_id) 唯一，重复开启是幂等的
type ChatShare struct {
	ID        uint  `gorm:"primaryKey"`
	ChatID    int64 `gorm:"not null;uniqueIndex:idx_chat_share,priority:1"`
	UserID    int64 `gorm:"not null;index;uniqueIndex:idx_chat_share,priority:2"`
	CreatedAt time.Time
}

// ApiToken v1接口的群聊访问令牌，一个群聊一条
type ApiToken struct {
	ChatID    int64  `gorm:"primaryKey"`
	Token     string `gorm:"type:varchar(64);uniqueIndex;not null"`
	CreatedAt time.Time
}
