package chat

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository 封装共享关系、群聊元数据与v1令牌的读写
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// AddShare 为用户在某群聊开启共享，重复调用幂等
func (r *Repository) AddShare(ctx context.Context, chatID, userID int64) error {
	share := ChatShare{ChatID: chatID, UserID: userID, CreatedAt: time.Now()}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chat_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(&share).Error
	if err != nil {
		return fmt.Errorf("无法开启共享 chat=%d user=%d: %w", chatID, userID, err)
	}
	return nil
}

// RemoveShare 关闭共享，删除不存在的关系同样视为成功
func (r *Repository) RemoveShare(ctx context.Context, chatID, userID int64) error {
	err := r.db.WithContext(ctx).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Delete(&ChatShare{}).Error
	if err != nil {
		return fmt.Errorf("无法关闭共享 chat=%d user=%d: %w", chatID, userID, err)
	}
	return nil
}

// IsShared 该用户是否在任何群聊开启了共享
func (r *Repository) IsShared(ctx context.Context, userID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&ChatShare{}).
		Where("user_id = ?", userID).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// IsSharedIn 该用户是否在指定群聊开启了共享
func (r *Repository) IsSharedIn(ctx context.Context, chatID, userID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&ChatShare{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SharedUserIDs 指定群聊里开启了共享的全部用户
func (r *Repository) SharedUserIDs(ctx context.Context, chatID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&ChatShare{}).
		Where("chat_id = ?", chatID).Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// SharedChatIDs 该用户开启了共享的全部群聊
func (r *Repository) SharedChatIDs(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&ChatShare{}).
		Where("user_id = ?", userID).Pluck("chat_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// CanonicalChat 该用户的规范写入群聊：所有生效共享关系中最小的chat_id
// 没有共享关系时返回 (0, false)
// 取MIN保证同一组共享关系下结果与遍历顺序无关
func (r *Repository) CanonicalChat(ctx context.Context, userID int64) (int64, bool, error) {
	var result struct {
		ChatID *int64
	}
	err := r.db.WithContext(ctx).Model(&ChatShare{}).
		Select("MIN(chat_id) AS chat_id").
		Where("user_id = ?", userID).
		Scan(&result).Error
	if err != nil {
		return 0, false, err
	}
	if result.ChatID == nil {
		return 0, false, nil
	}
	return *result.ChatID, true, nil
}

// UpsertMeta 写入或刷新群聊元数据
func (r *Repository) UpsertMeta(ctx context.Context, chatID int64, title, chatType string) error {
	c := Chat{ChatID: chatID, Title: title, Type: chatType, UpdatedAt: time.Now()}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chat_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "type", "updated_at"}),
	}).Create(&c).Error
	if err != nil {
		return fmt.Errorf("无法写入群聊元数据 %d: %w", chatID, err)
	}
	return nil
}

// MetaByIDs 批量取回群聊元数据
func (r *Repository) MetaByIDs(ctx context.Context, chatIDs []int64) (map[int64]Chat, error) {
	result := make(map[int64]Chat, len(chatIDs))
	if len(chatIDs) == 0 {
		return result, nil
	}
	var chats []Chat
	if err := r.db.WithContext(ctx).Where("chat_id IN ?", chatIDs).Find(&chats).Error; err != nil {
		return nil, err
	}
	for _, c := range chats {
		result[c.ChatID] = c
	}
	return result, nil
}

// EnsureToken 为群聊返回v1访问令牌，不存在时生成一个
func (r *Repository) EnsureToken(ctx context.Context, chatID int64) (string, error) {
	var existing ApiToken
	err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).First(&existing).Error
	if err == nil {
		return existing.Token, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("无法生成令牌: %w", err)
	}
	token := ApiToken{
		ChatID:    chatID,
		Token:     hex.EncodeToString(buf),
		CreatedAt: time.Now(),
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chat_id"}},
		DoNothing: true,
	}).Create(&token).Error
	if err != nil {
		return "", fmt.Errorf("无法写入令牌 chat=%d: %w", chatID, err)
	}
	// 并发生成时读回落库的那一条
	if err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).First(&existing).Error; err != nil {
		return "", err
	}
	return existing.Token, nil
}

// ChatIDByToken v1令牌反查群聊ID，找不到时返回 (0, false)
func (r *Repository) ChatIDByToken(ctx context.Context, token string) (int64, bool, error) {
	var row ApiToken
	err := r.db.WithContext(ctx).Where("token = ?", token).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return row.ChatID, true, nil
}
