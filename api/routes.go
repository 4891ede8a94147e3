package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SlpAus/pushup-tracker-backend/internal/chat"
	"github.com/SlpAus/pushup-tracker-backend/internal/record"
	"github.com/SlpAus/pushup-tracker-backend/internal/user"
	"github.com/SlpAus/pushup-tracker-backend/internal/workout"
)

// Handlers 路由注册需要的全部处理器
type Handlers struct {
	Users    *user.Handler
	Chats    *chat.Handler
	Workouts *workout.Handler
	Records  *record.Handler

	ChatRepo       *chat.Repository
	Issuer         *user.TokenIssuer
	Limiter        *RateLimiter
	InternalSecret string
}

// SetupRoutes 注册全部API路由
// v1由群聊令牌保护，v2由JWT保护，internal由共享密钥保护
func SetupRoutes(router *gin.Engine, h Handlers) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	internal := router.Group("/api/internal")
	internal.Use(sharedSecretMiddleware(h.InternalSecret))
	{
		internal.POST("/chats", h.Chats.Register)
	}

	v1 := router.Group("/api/v1")
	v1.Use(chat.TokenMiddleware(h.ChatRepo))
	{
		v1.POST("/add", h.Workouts.AddV1)
		v1.POST("/set", h.Workouts.SetV1)
		v1.GET("/status", h.Workouts.StatusV1)
		v1.GET("/history", h.Workouts.HistoryV1)
		v1.GET("/records", h.Records.RecordsV1)
		v1.POST("/share", h.Chats.ShareOn)
		v1.DELETE("/share", h.Chats.ShareOff)
	}

	v2 := router.Group("/api/v2")
	v2.POST("/auth", h.Users.Auth)
	v2.Use(user.AuthMiddleware(h.Issuer))
	{
		v2.POST("/add", h.Limiter.Middleware(), h.Workouts.AddV2)
		v2.GET("/status", h.Workouts.StatusV2)
		v2.GET("/history", h.Workouts.HistoryV2)
		v2.GET("/total", h.Workouts.TotalV2)
		v2.GET("/approaches", h.Workouts.ListApproaches)
		v2.PATCH("/approaches/:id", h.Workouts.PatchApproach)
		v2.DELETE("/approaches/:id", h.Workouts.DeleteApproach)
		v2.GET("/records", h.Records.RecordsV2)
		v2.GET("/record", h.Records.MyRecordV2)
		v2.GET("/chats", func(c *gin.Context) {
			userID, ok := user.UserIDFromContext(c)
			if !ok {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user"})
				return
			}
			h.Chats.ListChats(c, userID)
		})
	}
}

func sharedSecretMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if secret == "" || !strings.HasPrefix(header, "Bearer ") ||
			strings.TrimPrefix(header, "Bearer ") != secret {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid secret"})
			return
		}
		c.Next()
	}
}
