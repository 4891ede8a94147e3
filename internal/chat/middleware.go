package chat

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ContextChatIDKey v1鉴权中间件写入gin上下文的键
const ContextChatIDKey = "authChatID"

// TokenMiddleware 校验v1接口的群聊令牌，并把群聊ID放进上下文
// 令牌通过 Authorization: Bearer <token> 携带
func TokenMiddleware(repo *Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		chatID, ok, err := repo.ChatIDByToken(c.Request.Context(), strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ContextChatIDKey, chatID)
		c.Next()
	}
}

// ChatIDFromContext 取出中间件写入的群聊ID
func ChatIDFromContext(c *gin.Context) (int64, bool) {
	v, ok := c.Get(ContextChatIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}
