package app

import (
	"context"
	"log/slog"
	"os"
	"time"

	"IT_borrowing_system/borrowing"
	"IT_borrowing_system/db"
	"IT_borrowing_system/metrics"
	"IT_borrowing_system/notify"
	"IT_borrowing_system/session"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// 简化别名，便于 handlers 调用
type Ctx = gin.Context
type H = gin.H

// App 聚合各依赖
type App struct {
	Router  *gin.Engine
	DB      *gorm.DB
	RDB     *redis.Client
	Repo    *db.Repo
	Engine  *borrowing.Engine
	Notify  *notify.Projector
	Metrics *metrics.Metrics
	Config  Config
	Log     *slog.Logger

	appSess *session.AppSessionStore
}

func (a *App) AppSessions() *session.AppSessionStore { return a.appSess }

// MustNew connects postgres and redis from cfg and exits on failure.
func MustNew(cfg Config) *App {
	conn, err := db.ConnectDB(cfg.DatabaseURL)
	if err != nil {
		fatal("database", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPwd, DB: 0})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		fatal("redis", err)
	}

	return New(cfg, conn, rdb, slog.Default())
}

// New wires everything around already opened connections.
func New(cfg Config, conn *gorm.DB, rdb *redis.Client, log *slog.Logger) *App {
	repo := db.NewRepo(conn)
	m := metrics.New()

	eng := borrowing.NewEngine(repo, cfg.Fines, borrowing.WithLogger(log))
	eng.Subscribe(borrowing.LogObserver(log))
	eng.Subscribe(AuditObserver(repo, log))
	eng.Subscribe(PublishObserver(rdb, cfg.EventsChannel, log))
	eng.Subscribe(m.Observer())

	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(log), m.Middleware())
	useCORS(r, cfg.WebOrigin)

	return &App{
		Router:  r,
		DB:      conn,
		RDB:     rdb,
		Repo:    repo,
		Engine:  eng,
		Notify:  notify.NewProjector(repo, time.Now),
		Metrics: m,
		Config:  cfg,
		Log:     log,
		appSess: session.NewAppSessionStore(rdb, cfg.SessionTTL),
	}
}

func (a *App) Close() {
	_ = a.RDB.Close()
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func fatal(what string, err error) {
	slog.Error(what+" unavailable", "err", err)
	os.Exit(1)
}
