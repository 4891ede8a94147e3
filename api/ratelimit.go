package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/SlpAus/pushup-tracker-backend/internal/user"
)

// RateLimiter 基于Redis有序集合的滑动窗口限流器
// client为nil时限流关闭；Redis故障时放行，不把限流做成单点
type RateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewRateLimiter(client *redis.Client, limit int) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: time.Minute,
	}
}

// Allow 判断该用户此刻能否再写一次
func (l *RateLimiter) Allow(c *gin.Context, userID int64) bool {
	if l.client == nil || l.limit <= 0 {
		return true
	}
	ctx := c.Request.Context()
	key := fmt.Sprintf("ratelimit:add:%d", userID)
	now := time.Now()
	cutoff := now.Add(-l.window)

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", cutoff.UnixNano()))
	countCmd := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		fmt.Println("限流检查失败:", err)
		return true
	}
	if countCmd.Val() >= int64(l.limit) {
		return false
	}

	pipe = l.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.Expire(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		fmt.Println("限流记录失败:", err)
	}
	return true
}

// Middleware 套在v2写入端点上的限流中间件
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := user.UserIDFromContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing user"})
			return
		}
		if !l.Allow(c, userID) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
