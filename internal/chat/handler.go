package chat

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler 提供共享关系与群聊元数据相关的端点
type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

type shareRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

// ShareOn POST /api/v1/share
// 为用户在当前群聊开启跨群共享，重复调用幂等
func (h *Handler) ShareOn(c *gin.Context) {
	chatID, ok := ChatIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing chat"})
		return
	}
	var req shareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	if err := h.repo.AddShare(c.Request.Context(), chatID, req.UserID); err != nil {
		fmt.Println("开启共享失败:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat_id": chatID, "user_id": req.UserID, "shared": true})
}

// ShareOff DELETE /api/v1/share
// 关闭共享，已有数据留在原群聊
func (h *Handler) ShareOff(c *gin.Context) {
	chatID, ok := ChatIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing chat"})
		return
	}
	var req shareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	if err := h.repo.RemoveShare(c.Request.Context(), chatID, req.UserID); err != nil {
		fmt.Println("关闭共享失败:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat_id": chatID, "user_id": req.UserID, "shared": false})
}

type registerChatRequest struct {
	ChatID int64  `json:"chat_id" binding:"required"`
	Title  string `json:"title"`
	Type   string `json:"type"`
}

// Register POST /api/internal/chats
// bot侧登记群聊元数据并换取v1访问令牌，由共享密钥保护
func (h *Handler) Register(c *gin.Context) {
	var req registerChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chat_id is required"})
		return
	}
	ctx := c.Request.Context()
	if err := h.repo.UpsertMeta(ctx, req.ChatID, req.Title, req.Type); err != nil {
		fmt.Println("群聊元数据写入失败:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	token, err := h.repo.EnsureToken(ctx, req.ChatID)
	if err != nil {
		fmt.Println("令牌生成失败:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat_id": req.ChatID, "token": token})
}

type chatDTO struct {
	ChatID int64  `json:"chat_id"`
	Title  string `json:"title"`
	Shared bool   `json:"shared"`
}

// ListChats GET /api/v2/chats
// 返回当前用户开启了共享的群聊及其元数据
func (h *Handler) ListChats(c *gin.Context, userID int64) {
	ctx := c.Request.Context()
	chatIDs, err := h.repo.SharedChatIDs(ctx, userID)
	if err != nil {
		fmt.Println("查询共享群聊失败:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	metas, err := h.repo.MetaByIDs(ctx, chatIDs)
	if err != nil {
		fmt.Println("查询群聊元数据失败:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	chats := make([]chatDTO, 0, len(chatIDs))
	for _, id := range chatIDs {
		title := fmt.Sprintf("Chat %d", id)
		if meta, ok := metas[id]; ok && meta.Title != "" {
			title = meta.Title
		}
		chats = append(chats, chatDTO{ChatID: id, Title: title, Shared: true})
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}
