package record

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/SlpAus/pushup-tracker-backend/internal/chat"
	"github.com/SlpAus/pushup-tracker-backend/internal/user"
)

// Handler 提供纪录榜与个人纪录的端点
type Handler struct {
	repo  *Repository
	users *user.Repository
	chats *chat.Repository
}

func NewHandler(repo *Repository, users *user.Repository, chats *chat.Repository) *Handler {
	return &Handler{repo: repo, users: users, chats: chats}
}

type recordDTO struct {
	UserID      int64  `json:"user_id"`
	Name        string `json:"name"`
	MaxAdd      int    `json:"max_add"`
	RecordCount int    `json:"record_count"`
	RecordDate  string `json:"record_date"`
}

func (h *Handler) chatRecords(c *gin.Context, chatID int64) {
	ctx := c.Request.Context()
	rows, err := h.repo.ByChat(ctx, chatID)
	if err != nil {
		fmt.Println("纪录榜查询失败:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.UserID)
	}
	names, err := h.users.ByIDs(ctx, ids)
	if err != nil {
		fmt.Println("用户查询失败:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	records := make([]recordDTO, 0, len(rows))
	for _, row := range rows {
		name := fmt.Sprintf("User %d", row.UserID)
		if u, ok := names[row.UserID]; ok {
			name = u.DisplayName()
		}
		records = append(records, recordDTO{
			UserID:      row.UserID,
			Name:        name,
			MaxAdd:      row.MaxAdd,
			RecordCount: row.RecordCount,
			RecordDate:  row.RecordDate,
		})
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// RecordsV1 GET /api/v1/records
func (h *Handler) RecordsV1(c *gin.Context) {
	chatID, ok := chat.ChatIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing chat"})
		return
	}
	h.chatRecords(c, chatID)
}

// RecordsV2 GET /api/v2/records?chat_id=
// 只对共享进该群聊的用户开放
func (h *Handler) RecordsV2(c *gin.Context) {
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
	h.chatRecords(c, chatID)
}

// MyRecordV2 GET /api/v2/record
func (h *Handler) MyRecordV2(c *gin.Context) {
	userID, ok := user.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user"})
		return
	}
	row, err := h.repo.ByUser(c.Request.Context(), userID)
	if err != nil {
		fmt.Println("纪录查询失败:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if row == nil {
		c.JSON(http.StatusOK, gin.H{"record": recordDTO{UserID: userID}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": recordDTO{
		UserID:      row.UserID,
		MaxAdd:      row.MaxAdd,
		RecordCount: row.RecordCount,
		RecordDate:  row.RecordDate,
	}})
}
