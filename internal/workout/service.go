package workout

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"github.com/SlpAus/pushup-tracker-backend/internal/chat"
	"github.com/SlpAus/pushup-tracker-backend/internal/platform/metrics"
)

var (
	// ErrNegativeDelta 增量写入不接受负数
	ErrNegativeDelta = errors.New("delta must not be negative")
	// ErrNotFound 流水记录不存在
	ErrNotFound = errors.New("approach not found")
	// ErrNotOwned 流水记录属于别的用户
	ErrNotOwned = errors.New("approach not owned by user")
)

// MaxApproachCount 单组动作的上限，超过的增量只进聚合表不进流水
const MaxApproachCount = 1000

// RecordUpdater 把最佳纪录的维护交给record包，避免反向依赖
type RecordUpdater interface {
	// UpdateRecord 单调合并一次写入产生的候选值
	UpdateRecord(ctx context.Context, userID int64, addCandidate int, dayTotal int, date string) error
	// SyncUserRecord 从底层数据全量重算，修正之后调用
	SyncUserRecord(ctx context.Context, userID int64) error
}

// Service 实现双写与读聚合的业务规则
type Service struct {
	repo    *Repository
	chats   *chat.Repository
	records RecordUpdater
}

func NewService(repo *Repository, chats *chat.Repository, records RecordUpdater) *Service {
	return &Service{repo: repo, chats: chats, records: records}
}

// ResolveWriteChat 确定一次带群聊上下文的写入落到哪个群聊
// 在本群开启了共享的用户固定写入规范群聊（最小chat_id），其余写本群
// 同一组共享关系下所有并发写入者都会解析到同一行，无需加锁
func (s *Service) ResolveWriteChat(ctx context.Context, chatID, userID int64) (int64, error) {
	sharedHere, err := s.chats.IsSharedIn(ctx, chatID, userID)
	if err != nil {
		return 0, err
	}
	if !sharedHere {
		return chatID, nil
	}
	canonical, ok, err := s.chats.CanonicalChat(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return chatID, nil
	}
	return canonical, nil
}

// ResolveWriteChatForUser 确定无群聊上下文（v2）的写入落点
// 依次尝试：规范群聊 → 最近写过的群聊 → 私聊（chat_id等于user_id）
func (s *Service) ResolveWriteChatForUser(ctx context.Context, userID int64) (int64, error) {
	canonical, ok, err := s.chats.CanonicalChat(ctx, userID)
	if err != nil {
		return 0, err
	}
	if ok {
		return canonical, nil
	}
	recent, ok, err := s.repo.MostRecentChat(ctx, userID)
	if err != nil {
		return 0, err
	}
	if ok {
		return recent, nil
	}
	return userID, nil
}

// RecordIncrement 一次增量写入：聚合表必写，流水表尽力而为
// 返回累加后的当日聚合值
// delta为0表示打卡，只保证聚合行存在，不写流水
func (s *Service) RecordIncrement(ctx context.Context, chatID, userID int64, date string, delta int) (int, error) {
	if delta < 0 {
		return 0, ErrNegativeDelta
	}
	writeChat, err := s.ResolveWriteChat(ctx, chatID, userID)
	if err != nil {
		return 0, err
	}

	newCount, err := IncrementDailyCount(s.repo.DB().WithContext(ctx), writeChat, userID, date, delta)
	if err != nil {
		return 0, fmt.Errorf("无法累加聚合行 chat=%d user=%d date=%s: %w", writeChat, userID, date, err)
	}

	// 流水写入失败不回滚聚合，聚合表是记账的权威
	if delta > 0 && delta <= MaxApproachCount {
		if err := InsertApproach(s.repo.DB().WithContext(ctx), userID, date, delta, false); err != nil {
			fmt.Printf("流水写入失败 user=%d date=%s count=%d: %v\n", userID, date, delta, err)
			metrics.LedgerWriteFailures.Inc()
		}
	}

	if delta > 0 {
		// 纪录是用户维度的，单日总数一律按跨群求和的口径取
		dayTotal, _, err := s.repo.SumForUserDate(ctx, userID, date)
		if err != nil {
			return newCount, err
		}
		// 单组候选值与流水同域：没进流水的超限增量不参与最佳单组
		// 否则全量重算时会因为找不到对应流水而把纪录又拉回去
		addCandidate := delta
		if addCandidate > MaxApproachCount {
			addCandidate = 0
		}
		if err := s.records.UpdateRecord(ctx, userID, addCandidate, dayTotal, date); err != nil {
			return newCount, fmt.Errorf("无法更新最佳纪录 user=%d: %w", userID, err)
		}
	}
	return newCount, nil
}

// SetCountForDate 把某天的聚合值改成指定数，修正路径
// 流水表不补不删，纪录随后全量重算
func (s *Service) SetCountForDate(ctx context.Context, chatID, userID int64, date string, count int) error {
	if count < 0 {
		return ErrNegativeDelta
	}
	writeChat, err := s.ResolveWriteChat(ctx, chatID, userID)
	if err != nil {
		return err
	}
	err = s.repo.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return ReplaceDailyCount(tx, writeChat, userID, date, count)
	})
	if err != nil {
		return fmt.Errorf("无法覆盖聚合行 chat=%d user=%d date=%s: %w", writeChat, userID, date, err)
	}
	return s.records.SyncUserRecord(ctx, userID)
}

// ApproachInput 一条待写入的流水
type ApproachInput struct {
	Date  string
	Count int
}

// InsertApproaches v2批量写入：流水与聚合在同一事务里落库
// 聚合落点按无群聊上下文的规则确定
func (s *Service) InsertApproaches(ctx context.Context, userID int64, items []ApproachInput) error {
	if len(items) == 0 {
		return nil
	}
	writeChat, err := s.ResolveWriteChatForUser(ctx, userID)
	if err != nil {
		return err
	}

	perDate := make(map[string]int)
	maxPerDate := make(map[string]int)
	for _, item := range items {
		perDate[item.Date] += item.Count
		if item.Count > maxPerDate[item.Date] {
			maxPerDate[item.Date] = item.Count
		}
	}

	err = s.repo.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range items {
			if err := InsertApproach(tx, userID, item.Date, item.Count, false); err != nil {
				return err
			}
		}
		for date, delta := range perDate {
			if _, err := IncrementDailyCount(tx, writeChat, userID, date, delta); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("无法写入流水 user=%d: %w", userID, err)
	}

	for date, addMax := range maxPerDate {
		dayTotal, _, err := s.repo.SumForUserDate(ctx, userID, date)
		if err != nil {
			return err
		}
		if err := s.records.UpdateRecord(ctx, userID, addMax, dayTotal, date); err != nil {
			return fmt.Errorf("无法更新最佳纪录 user=%d: %w", userID, err)
		}
	}
	return nil
}

// UpdateApproach 修改一条流水的次数，并同步调整聚合值
func (s *Service) UpdateApproach(ctx context.Context, userID int64, id uint, newCount int) error {
	row, err := s.repo.ApproachByID(ctx, id)
	if err != nil {
		return err
	}
	if row == nil {
		return ErrNotFound
	}
	if row.UserID != userID {
		return ErrNotOwned
	}
	delta := newCount - row.Count
	err = s.repo.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Approach{}).Where("id = ?", id).Update("count", newCount).Error; err != nil {
			return err
		}
		switch {
		case delta > 0:
			writeChat, err := s.ResolveWriteChatForUser(ctx, userID)
			if err != nil {
				return err
			}
			if _, err := IncrementDailyCount(tx, writeChat, userID, row.Date, delta); err != nil {
				return err
			}
		case delta < 0:
			// 扣减落在实际持有计数的行上，而不是按当前共享关系重新解析
			if err := DecrementDailyCount(tx, userID, row.Date, -delta); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("无法修改流水 id=%d: %w", id, err)
	}
	// 减少次数可能拉低纪录，全量重算
	return s.records.SyncUserRecord(ctx, userID)
}

// DeleteApproach 删除一条流水，并从聚合值里扣除
func (s *Service) DeleteApproach(ctx context.Context, userID int64, id uint) error {
	row, err := s.repo.ApproachByID(ctx, id)
	if err != nil {
		return err
	}
	if row == nil {
		return ErrNotFound
	}
	if row.UserID != userID {
		return ErrNotOwned
	}
	err = s.repo.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&Approach{}, row.ID).Error; err != nil {
			return err
		}
		return DecrementDailyCount(tx, userID, row.Date, row.Count)
	})
	if err != nil {
		return fmt.Errorf("无法删除流水 id=%d: %w", id, err)
	}
	return s.records.SyncUserRecord(ctx, userID)
}

// DayTotal 某用户某天口径内的总数
// 在本群开启共享的用户取跨群总和，否则取本群聚合值
func (s *Service) DayTotal(ctx context.Context, chatID, userID int64, date string) (int, error) {
	shared, err := s.chats.IsSharedIn(ctx, chatID, userID)
	if err != nil {
		return 0, err
	}
	if shared {
		total, _, err := s.repo.SumForUserDate(ctx, userID, date)
		if err != nil {
			return 0, err
		}
		return total, nil
	}
	local, _, err := s.repo.LocalCount(ctx, chatID, userID, date)
	if err != nil {
		return 0, err
	}
	return local, nil
}

// HasReached 某用户某天的口径内总数是否达到阈值
// bot用它判断庆祝消息该不该发，跨过阈值的那次写入只触发一次
func (s *Service) HasReached(ctx context.Context, chatID, userID int64, date string, threshold int) (bool, error) {
	total, err := s.DayTotal(ctx, chatID, userID, date)
	if err != nil {
		return false, err
	}
	return total >= threshold, nil
}

// CrossedThreshold 在一次delta写入之后调用，判断这次写入是否恰好把当天总数首次推过阈值
// 之后的写入不再算跨过，庆祝消息因此只发一次
func (s *Service) CrossedThreshold(ctx context.Context, chatID, userID int64, date string, delta, threshold int) (bool, error) {
	if delta <= 0 {
		return false, nil
	}
	reached, err := s.HasReached(ctx, chatID, userID, date, threshold)
	if err != nil || !reached {
		return false, err
	}
	total, err := s.DayTotal(ctx, chatID, userID, date)
	if err != nil {
		return false, err
	}
	return total-delta < threshold, nil
}

// StatusEntry 状态看板里的一行
type StatusEntry struct {
	UserID int64 `json:"user_id"`
	Total  int   `json:"total"`
	Shared bool  `json:"shared"`
}

// StatusByDate 某群聊某天的状态看板
// 本群开启共享的用户展示跨群总数，其余展示本群聚合值
// 排序：总数降序，相同时user_id升序；0次的行保留，由调用方决定过滤
func (s *Service) StatusByDate(ctx context.Context, chatID int64, date string) ([]StatusEntry, error) {
	rows, err := s.repo.StatusRows(ctx, chatID, date)
	if err != nil {
		return nil, err
	}
	sharedIDs, err := s.chats.SharedUserIDs(ctx, chatID)
	if err != nil {
		return nil, err
	}
	sharedSet := make(map[int64]bool, len(sharedIDs))
	for _, id := range sharedIDs {
		sharedSet[id] = true
	}

	totals := make(map[int64]int, len(rows))
	for _, row := range rows {
		if !sharedSet[row.UserID] {
			totals[row.UserID] = row.Count
		}
	}
	for _, id := range sharedIDs {
		total, _, err := s.repo.SumForUserDate(ctx, id, date)
		if err != nil {
			return nil, err
		}
		totals[id] = total
	}

	entries := make([]StatusEntry, 0, len(totals))
	for id, total := range totals {
		entries = append(entries, StatusEntry{UserID: id, Total: total, Shared: sharedSet[id]})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Total != entries[j].Total {
			return entries[i].Total > entries[j].Total
		}
		return entries[i].UserID < entries[j].UserID
	})
	return entries, nil
}

// HistoryByUser 某用户的逐日历史
// 在本群开启共享的用户按跨群口径求和，否则只看本群
func (s *Service) HistoryByUser(ctx context.Context, chatID, userID int64) ([]DateTotal, error) {
	shared, err := s.chats.IsSharedIn(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	if shared {
		return s.repo.HistoryShared(ctx, userID)
	}
	return s.repo.HistoryLocal(ctx, chatID, userID)
}

// LedgerHistoryByUser 从流水表口径的逐日历史，v2接口使用
func (s *Service) LedgerHistoryByUser(ctx context.Context, userID int64, from, to string) ([]DateTotal, error) {
	return s.repo.LedgerHistory(ctx, userID, from, to)
}

// TotalForUserDate 某用户某天的流水总和
func (s *Service) TotalForUserDate(ctx context.Context, userID int64, date string) (int, error) {
	return s.repo.LedgerTotalForDate(ctx, userID, date)
}

// ApproachesByUser 日期区间内的流水明细
func (s *Service) ApproachesByUser(ctx context.Context, userID int64, from, to string) ([]Approach, error) {
	return s.repo.ApproachesInRange(ctx, userID, from, to)
}
