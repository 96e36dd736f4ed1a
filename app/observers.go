package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"IT_borrowing_system/borrowing"
	"IT_borrowing_system/db"
	"IT_borrowing_system/models"

	"github.com/redis/go-redis/v9"
)

// AuditObserver persists every committed engine event.
func AuditObserver(repo *db.Repo, log *slog.Logger) borrowing.Observer {
	return func(ctx context.Context, ev borrowing.Event) {
		// 请求已结束也要写完
		ctx = context.WithoutCancel(ctx)
		entry := &models.AuditLog{
			Event:       string(ev.Type),
			BorrowingID: optional(ev.BorrowingID),
			DeviceID:    optional(ev.DeviceID),
			UserID:      optional(ev.UserID),
			Message:     ev.Message(),
			CreatedAt:   ev.At,
		}
		if err := repo.LogAudit(ctx, entry); err != nil {
			log.ErrorContext(ctx, "audit log write failed", "event", ev.Type, "err", err)
		}
	}
}

const PublishTimeout = 500 * time.Millisecond

// PublishObserver fans events out on a redis channel for any listener.
func PublishObserver(rdb *redis.Client, channel string, log *slog.Logger) borrowing.Observer {
	return func(ctx context.Context, ev borrowing.Event) {
		b, err := json.Marshal(ev)
		if err != nil {
			log.ErrorContext(ctx, "encode event", "err", err)
			return
		}
		// 观察者在请求协程上同步执行，redis 不可用时不能拖住响应
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), PublishTimeout)
		defer cancel()
		if err := rdb.Publish(pctx, channel, b).Err(); err != nil {
			log.WarnContext(ctx, "publish event failed", "channel", channel, "err", err)
		}
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
