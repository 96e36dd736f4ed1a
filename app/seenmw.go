// app/seenmw.go
package app

import (
	"log/slog"
	"time"

	"IT_borrowing_system/db"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// TouchLastSeen updates last_seen_at at most once per throttle window.
func TouchLastSeen(repo *db.Repo, rdb *redis.Client, throttle time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.GetString("userID")
		if uid == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := "user:lastseen:" + uid
		if ok, err := rdb.SetNX(ctx, key, "1", throttle).Result(); err != nil {
			slog.Debug("last seen throttle unavailable", "err", err)
		} else if ok {
			_ = repo.TouchUserSeen(ctx, uid) // 忽略错误，不阻塞请求
		}
		c.Next()
	}
}
