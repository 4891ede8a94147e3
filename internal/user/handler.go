package user

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SlpAus/pushup-tracker-backend/pkg/webapp"
)

// Handler 提供v2鉴权端点
type Handler struct {
	repo     *Repository
	issuer   *TokenIssuer
	botToken string
}

func NewHandler(repo *Repository, issuer *TokenIssuer, botToken string) *Handler {
	return &Handler{repo: repo, issuer: issuer, botToken: botToken}
}

type authRequest struct {
	InitData string `json:"init_data" binding:"required"`
}

// Auth POST /api/v2/auth
// 校验Telegram WebApp的initData签名，通过后签发JWT
func (h *Handler) Auth(c *gin.Context) {
	var req authRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "init_data is required"})
		return
	}
	u, err := webapp.ValidateInitData(req.InitData, h.botToken, time.Now())
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid init data"})
		return
	}

	if err := h.repo.UpsertLite(c.Request.Context(), u.ID, u.Username); err != nil {
		fmt.Println("用户信息写入失败:", err)
	}

	token, err := h.issuer.Issue(u.ID, time.Now())
	if err != nil {
		fmt.Println("令牌签发失败:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user_id": u.ID})
}
