package workout

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SlpAus/pushup-tracker-backend/internal/chat"
	"github.com/SlpAus/pushup-tracker-backend/internal/notify"
	"github.com/SlpAus/pushup-tracker-backend/internal/user"
)

// CelebrationThreshold 单日达到该数量时向群聊推送庆祝消息
const CelebrationThreshold = 100

// Handler 提供v1（群聊口径）与v2（用户口径）的训练数据端点
type Handler struct {
	service  *Service
	users    *user.Repository
	chats    *chat.Repository
	notifier notify.Notifier
}

func NewHandler(service *Service, users *user.Repository, chats *chat.Repository, notifier notify.Notifier) *Handler {
	return &Handler{service: service, users: users, chats: chats, notifier: notifier}
}

const dateLayout = "2006-01-02"

func validDate(s string) bool {
	if len(s) != len(dateLayout) {
		return false
	}
	_, err := time.Parse(dateLayout, s)
	return err == nil
}

type addRequest struct {
	UserID    int64  `json:"user_id" binding:"required"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Date      string `json:"date" binding:"required"`
	Count     int    `json:"count"`
}

// AddV1 POST /api/v1/add
// 一次增量写入，count为0时只登记打卡
func (h *Handler) AddV1(c *gin.Context) {
	chatID, ok := chat.ChatIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing chat"})
		return
	}
	var req addRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if !validDate(req.Date) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	if req.Count < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "count must not be negative"})
		return
	}

	ctx := c.Request.Context()
	err := h.users.Upsert(ctx, user.User{
		UserID:    req.UserID,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		fmt.Println("用户信息写入失败:", err)
	}

	newCount, err := h.service.RecordIncrement(ctx, chatID, req.UserID, req.Date, req.Count)
	if err != nil {
		if errors.Is(err, ErrNegativeDelta) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "count must not be negative"})
			return
		}
		fmt.Println("增量写入失败:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	if req.Count > 0 {
		crossed, err := h.service.CrossedThreshold(ctx, chatID, req.UserID, req.Date, req.Count, CelebrationThreshold)
		if err == nil && crossed {
			name := fmt.Sprintf("User %d", req.UserID)
			if u, lookupErr := h.users.ByID(ctx, req.UserID); lookupErr == nil && u != nil {
				name = u.DisplayName()
			}
			h.notifier.Celebrate(chatID, fmt.Sprintf("%s hit %d pushups today! 💪", name, CelebrationThreshold))
		}
	}

	c.JSON(http.StatusOK, gin.H{"date": req.Date, "count": newCount})
}

type setRequest struct {
	UserID int64  `json:"user_id" binding:"required"`
	Date   string `json:"date" binding:"required"`
	Count  *int   `json:"count" binding:"required"`
}

// SetV1 POST /api/v1/set
// 修正某天的聚合值，流水不动
func (h *Handler) SetV1(c *gin.Context) {
	chatID, ok := chat.ChatIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing chat"})
		return
	}
	var req setRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if !validDate(req.Date) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	if *req.Count < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "count must not be negative"})
		return
	}
	if err := h.service.SetCountForDate(c.Request.Context(), chatID, req.UserID, req.Date, *req.Count); err != nil {
		fmt.Println("修正写入失败:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": req.Date, "count": *req.Count})
}

type statusEntryDTO struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
	Total  int    `json:"total"`
	Shared bool   `json:"shared"`
}

func (h *Handler) statusEntries(c *gin.Context, chatID int64, date string, dropZero bool) ([]statusEntryDTO, bool) {
	ctx := c.Request.Context()
	entries, err := h.service.StatusByDate(ctx, chatID, date)
	if err != nil {
		fmt.Println("状态查询失败:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return nil, false
	}
	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.UserID)
	}
	names, err := h.users.ByIDs(ctx, ids)
	if err != nil {
		fmt.Println("用户查询失败:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return nil, false
	}

	result := make([]statusEntryDTO, 0, len(entries))
	for _, e := range entries {
		if dropZero && e.Total == 0 {
			continue
		}
		name := fmt.Sprintf("User %d", e.UserID)
		if u, ok := names[e.UserID]; ok {
			name = u.DisplayName()
		}
		result = append(result, statusEntryDTO{
			UserID: e.UserID,
			Name:   name,
			Total:  e.Total,
			Shared: e.Shared,
		})
	}
	return result, true
}

// StatusV1 GET /api/v1/status?date=
// 0次的打卡行照常返回
func (h *Handler) StatusV1(c *gin.Context) {
	chatID, ok := chat.ChatIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing chat"})
		return
	}
	date := c.Query("date")
	if date == "" {
		date = time.Now().Format(dateLayout)
	}
	if !validDate(date) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	entries, ok := h.statusEntries(c, chatID, date, false)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "status": entries})
}

// HistoryV1 GET /api/v1/history?user_id=
// 在别的群聊开了共享、但没共享进本群的用户拒绝访问
func (h *Handler) HistoryV1(c *gin.Context) {
	chatID, ok := chat.ChatIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing chat"})
		return
	}
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	ctx := c.Request.Context()
	shared, err := h.chats.IsShared(ctx, userID)
	if err != nil {
		fmt.Println("共享状态查询失败:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if shared {
		inChat, err := h.chats.IsSharedIn(ctx, chatID, userID)
		if err != nil {
			fmt.Println("共享状态查询失败:", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if !inChat {
			c.JSON(http.StatusForbidden, gin.H{"error": "user not shared in this chat"})
			return
		}
	}

	history, err := h.service.HistoryByUser(ctx, chatID, userID)
	if err != nil {
		fmt.Println("历史查询失败:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "history": history})
}

type approachItemDTO struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type addV2Request struct {
	Approaches []approachItemDTO `json:"approaches" binding:"required"`
}

// AddV2 POST /api/v2/add
// 一次最多100组，每组1到1000次，不接受未来日期
func (h *Handler) AddV2(c *gin.Context) {
	userID, ok := user.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user"})
		return
	}
	var req addV2Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if len(req.Approaches) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "approaches must not be empty"})
		return
	}
	if len(req.Approaches) > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at most 100 approaches per request"})
		return
	}
	today := time.Now().Format(dateLayout)
	items := make([]ApproachInput, 0, len(req.Approaches))
	for _, a := range req.Approaches {
		if !validDate(a.Date) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		if a.Date > today {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must not be in the future"})
			return
		}
		if a.Count < 1 || a.Count > MaxApproachCount {
			c.JSON(http.StatusBadRequest, gin.H{"error": "count must be between 1 and 1000"})
			return
		}
		items = append(items, ApproachInput{Date: a.Date, Count: a.Count})
	}

	if err := h.service.InsertApproaches(c.Request.Context(), userID, items); err != nil {
		fmt.Println("批量写入失败:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"inserted": len(items)})
}

// StatusV2 GET /api/v2/status?chat_id=&date=
// 只对共享进该群聊的用户开放，0次的行过滤掉
func (h *Handler) StatusV2(c *gin.Context) {
	userID, ok := user.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user"})
		return
	}
	chatID, err := strconv.ParseInt(c.Query("chat_id"), 10, 64)
	if err != nil || chatID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chat_id is required"})
		return
	}
	date := c.Query("date")
	if date == "" {
		date = time.Now().Format(dateLayout)
	}
	if !validDate(date) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}

	member, err := h.chats.IsSharedIn(c.Request.Context(), chatID, userID)
	if err != nil {
		fmt.Println("共享状态查询失败:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this chat"})
		return
	}

	entries, ok := h.statusEntries(c, chatID, date, true)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "status": entries})
}

func parseRange(c *gin.Context) (string, string, bool) {
	now := time.Now()
	from := c.Query("from")
	to := c.Query("to")
	if to == "" {
		to = now.Format(dateLayout)
	}
	if from == "" {
		from = now.AddDate(0, 0, -30).Format(dateLayout)
	}
	if !validDate(from) || !validDate(to) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return "", "", false
	}
	if from > to {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must not be after to"})
		return "", "", false
	}
	fromDay, _ := time.Parse(dateLayout, from)
	toDay, _ := time.Parse(dateLayout, to)
	if toDay.Sub(fromDay) > 365*24*time.Hour {
		c.JSON(http.StatusBadRequest, gin.H{"error": "range must not exceed 365 days"})
		return "", "", false
	}
	return from, to, true
}

// HistoryV2 GET /api/v2/history?from=&to=
// 流水口径的逐日汇总
func (h *Handler) HistoryV2(c *gin.Context) {
	userID, ok := user.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user"})
		return
	}
	from, to, ok := parseRange(c)
	if !ok {
		return
	}
	history, err := h.service.LedgerHistoryByUser(c.Request.Context(), userID, from, to)
	if err != nil {
		fmt.Println("历史查询失败:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"from": from, "to": to, "history": history})
}

// TotalV2 GET /api/v2/total?date=
// 当日流水总和，WebApp首页的数字
func (h *Handler) TotalV2(c *gin.Context) {
	userID, ok := user.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user"})
		return
	}
	date := c.Query("date")
	if date == "" {
		date = time.Now().Format(dateLayout)
	}
	if !validDate(date) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	total, err := h.service.TotalForUserDate(c.Request.Context(), userID, date)
	if err != nil {
		fmt.Println("总数查询失败:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "total": total})
}

type approachDTO struct {
	ID        uint   `json:"id"`
	Date      string `json:"date"`
	Count     int    `json:"count"`
	Migrated  bool   `json:"migrated"`
	CreatedAt string `json:"created_at"`
}

// ListApproaches GET /api/v2/approaches?from=&to=
func (h *Handler) ListApproaches(c *gin.Context) {
	userID, ok := user.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user"})
		return
	}
	from, to, ok := parseRange(c)
	if !ok {
		return
	}
	rows, err := h.service.ApproachesByUser(c.Request.Context(), userID, from, to)
	if err != nil {
		fmt.Println("流水查询失败:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	approaches := make([]approachDTO, 0, len(rows))
	for _, row := range rows {
		approaches = append(approaches, approachDTO{
			ID:        row.ID,
			Date:      row.Date,
			Count:     row.Count,
			Migrated:  row.Migrated,
			CreatedAt: row.CreatedAt.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"from": from, "to": to, "approaches": approaches})
}

type patchApproachRequest struct {
	Count *int `json:"count" binding:"required"`
}

// PatchApproach PATCH /api/v2/approaches/:id
func (h *Handler) PatchApproach(c *gin.Context) {
	userID, ok := user.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user"})
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req patchApproachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if *req.Count < 1 || *req.Count > MaxApproachCount {
		c.JSON(http.StatusBadRequest, gin.H{"error": "count must be between 1 and 1000"})
		return
	}

	err = h.service.UpdateApproach(c.Request.Context(), userID, uint(id), *req.Count)
	if err != nil {
		h.writeApproachError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "count": *req.Count})
}

// DeleteApproach DELETE /api/v2/approaches/:id
func (h *Handler) DeleteApproach(c *gin.Context) {
	userID, ok := user.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user"})
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	err = h.service.DeleteApproach(c.Request.Context(), userID, uint(id))
	if err != nil {
		h.writeApproachError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "deleted": true})
}

func (h *Handler) writeApproachError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "approach not found"})
	case errors.Is(err, ErrNotOwned):
		c.JSON(http.StatusForbidden, gin.H{"error": "approach not owned by user"})
	default:
		fmt.Println("流水修改失败:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
